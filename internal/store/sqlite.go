package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/aaleta/C72h-whiteworms/internal/model"
	"github.com/aaleta/C72h-whiteworms/internal/montecarlo"
)

// timeLayout is fixed-width so created_at sorts chronologically as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteResultStore implements ResultStore on a SQLite database file.
type SQLiteResultStore struct {
	mu     sync.RWMutex
	db     *sql.DB
	dbPath string
}

// NewSQLiteResultStore opens (creating if needed) the database at dbPath.
func NewSQLiteResultStore(dbPath string) (*SQLiteResultStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := InitSchema(context.Background(), db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteResultStore{db: db, dbPath: dbPath}, nil
}

// Path returns the database file path.
func (s *SQLiteResultStore) Path() string { return s.dbPath }

// SaveRun stores res and all its trial summaries, returning the run ID.
func (s *SQLiteResultStore) SaveRun(ctx context.Context, res *montecarlo.Result) (string, error) {
	if res == nil {
		return "", fmt.Errorf("nil result")
	}
	run := NewRun(res)
	if _, err := s.ImportRun(ctx, run, res.Trials); err != nil {
		return "", err
	}
	return run.ID, nil
}

// ImportRun stores run and trials unless a run with the same ID exists.
// It reports whether the run was inserted.
func (s *SQLiteResultStore) ImportRun(ctx context.Context, run Run, trials []montecarlo.TrialSummary) (bool, error) {
	if run.ID == "" {
		return false, fmt.Errorf("run ID is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO runs (
			id, network, nodes, edges, directed,
			beta_b, beta_w, epsilon, gamma, mu,
			trials, base_seed, black_seeds, white_seeds, max_time, max_events, persistence_threshold,
			truncated, mean_protected, created_at, elapsed_ms
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Network, run.Nodes, run.Edges, boolToInt(run.Directed),
		run.Params.BetaB, run.Params.BetaW, run.Params.Epsilon, run.Params.Gamma, run.Params.Mu,
		run.Trials, int64(run.BaseSeed), run.Black, run.White, run.MaxTime, run.MaxEvents, run.PersistenceThreshold,
		run.Truncated, run.MeanProtected, run.CreatedAt.UTC().Format(timeLayout), run.ElapsedMS,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert run %s: %w", run.ID, err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return false, nil
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO trials (
			run_id, trial, seed, protected_fraction,
			peak_black_infected, peak_black_fraction, peak_time, persistence_window,
			final_time, events, absorbed, stop, final_counts
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return false, fmt.Errorf("failed to prepare trial insert: %w", err)
	}
	defer stmt.Close()

	for _, t := range trials {
		counts, err := json.Marshal(t.FinalCounts)
		if err != nil {
			return false, fmt.Errorf("marshal final counts of trial %d: %w", t.Trial, err)
		}
		if _, err := stmt.ExecContext(ctx,
			run.ID, t.Trial, int64(t.Seed), t.ProtectedFraction,
			t.PeakBlackInfected, t.PeakBlackFraction, t.PeakTime, t.PersistenceWindow,
			t.FinalTime, t.Events, boolToInt(t.Absorbed), t.Stop, string(counts),
		); err != nil {
			return false, fmt.Errorf("failed to insert trial %d: %w", t.Trial, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit run %s: %w", run.ID, err)
	}
	return true, nil
}

const runColumns = `id, network, nodes, edges, directed,
	beta_b, beta_w, epsilon, gamma, mu,
	trials, base_seed, black_seeds, white_seeds, max_time, max_events, persistence_threshold,
	truncated, mean_protected, created_at, elapsed_ms`

// GetRun returns the run whose ID equals id or, failing that, the single
// run whose ID starts with id.
func (s *SQLiteResultStore) GetRun(ctx context.Context, id string) (*Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	full, err := s.resolveID(ctx, id)
	if err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, full)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return run, nil
}

// ListRuns returns stored runs, newest first.
func (s *SQLiteResultStore) ListRuns(ctx context.Context, filter RunFilter) ([]Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT ` + runColumns + ` FROM runs`
	var args []any
	if filter.Network != "" {
		query += ` WHERE network = ?`
		args = append(args, filter.Network)
	}
	query += ` ORDER BY created_at DESC, id`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate runs: %w", err)
	}
	return runs, nil
}

// TrialsForRun returns the trial summaries of a run ordered by trial index.
func (s *SQLiteResultStore) TrialsForRun(ctx context.Context, id string) ([]montecarlo.TrialSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	full, err := s.resolveID(ctx, id)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT trial, seed, protected_fraction,
			peak_black_infected, peak_black_fraction, peak_time, persistence_window,
			final_time, events, absorbed, stop, final_counts
		FROM trials WHERE run_id = ? ORDER BY trial`, full)
	if err != nil {
		return nil, fmt.Errorf("failed to query trials: %w", err)
	}
	defer rows.Close()

	var trials []montecarlo.TrialSummary
	for rows.Next() {
		var (
			t        montecarlo.TrialSummary
			seed     int64
			absorbed int
			counts   string
		)
		if err := rows.Scan(&t.Trial, &seed, &t.ProtectedFraction,
			&t.PeakBlackInfected, &t.PeakBlackFraction, &t.PeakTime, &t.PersistenceWindow,
			&t.FinalTime, &t.Events, &absorbed, &t.Stop, &counts); err != nil {
			return nil, fmt.Errorf("failed to scan trial: %w", err)
		}
		t.Seed = uint64(seed)
		t.Absorbed = absorbed != 0
		if err := json.Unmarshal([]byte(counts), &t.FinalCounts); err != nil {
			return nil, fmt.Errorf("unmarshal final counts of trial %d: %w", t.Trial, err)
		}
		trials = append(trials, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate trials: %w", err)
	}
	return trials, nil
}

// DeleteRun removes a run and, by cascade, its trials.
func (s *SQLiteResultStore) DeleteRun(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	full, err := s.resolveID(ctx, id)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, full); err != nil {
		return fmt.Errorf("failed to delete run %s: %w", full, err)
	}
	return nil
}

// Close closes the database.
func (s *SQLiteResultStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// resolveID expands a unique ID prefix to the full run ID.
func (s *SQLiteResultStore) resolveID(ctx context.Context, id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", fmt.Errorf("%w: empty ID", ErrRunNotFound)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM runs WHERE id = ? OR id LIKE ? ESCAPE '\' ORDER BY id = ? DESC LIMIT 2`,
		id, escapeLike(id)+"%", id)
	if err != nil {
		return "", fmt.Errorf("failed to look up run %s: %w", id, err)
	}
	defer rows.Close()

	var matches []string
	for rows.Next() {
		var m string
		if err := rows.Scan(&m); err != nil {
			return "", fmt.Errorf("failed to scan run ID: %w", err)
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return "", err
	}

	switch {
	case len(matches) == 0:
		return "", fmt.Errorf("%w: %s", ErrRunNotFound, id)
	case matches[0] == id, len(matches) == 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("%w: %s", ErrAmbiguousID, id)
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*Run, error) {
	var (
		run       Run
		p         model.Params
		directed  int
		seed      int64
		createdAt string
	)
	if err := row.Scan(&run.ID, &run.Network, &run.Nodes, &run.Edges, &directed,
		&p.BetaB, &p.BetaW, &p.Epsilon, &p.Gamma, &p.Mu,
		&run.Trials, &seed, &run.Black, &run.White, &run.MaxTime, &run.MaxEvents, &run.PersistenceThreshold,
		&run.Truncated, &run.MeanProtected, &createdAt, &run.ElapsedMS); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan run: %w", err)
	}
	run.Params = p
	run.Directed = directed != 0
	run.BaseSeed = uint64(seed)
	t, err := time.Parse(timeLayout, createdAt)
	if err != nil {
		return nil, fmt.Errorf("run %s: parse created_at %q: %w", run.ID, createdAt, err)
	}
	run.CreatedAt = t
	return &run, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
