// Package backup archives stored Monte Carlo runs to portable files and
// restores them into a result store.
package backup

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/aaleta/C72h-whiteworms/internal/montecarlo"
	"github.com/aaleta/C72h-whiteworms/internal/store"
)

// ErrNoRuns is returned when an export selects nothing.
var ErrNoRuns = errors.New("no runs to archive")

// Archive is the JSON payload of an archive file.
type Archive struct {
	Version   int               `json:"version"`
	CreatedAt time.Time         `json:"created_at"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Runs      []ArchivedRun     `json:"runs"`
}

// ArchivedRun is a run header together with its per-trial summaries.
type ArchivedRun struct {
	Run    store.Run                 `json:"run"`
	Trials []montecarlo.TrialSummary `json:"trials"`
}

// TrialCount sums the trials over all runs.
func (a *Archive) TrialCount() int {
	n := 0
	for _, r := range a.Runs {
		n += len(r.Trials)
	}
	return n
}

// DefaultArchiveDir returns the default archive directory (~/.whiteworms/archives/).
func DefaultArchiveDir() (string, error) {
	dataDir, err := store.DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dataDir, "archives"), nil
}

// GeneratePath creates a timestamped archive filename in the given directory.
func GeneratePath(dir string) string {
	ts := time.Now().Format("20060102-150405")
	return filepath.Join(dir, fmt.Sprintf("whiteworms-runs-%s.json.gz", ts))
}

// Export writes the runs selected by ids, or by filter when ids is empty,
// to outputPath.
func Export(ctx context.Context, rs store.ResultStore, outputPath string, filter store.RunFilter, ids ...string) (*Archive, error) {
	var runs []store.Run
	if len(ids) > 0 {
		for _, id := range ids {
			run, err := rs.GetRun(ctx, id)
			if err != nil {
				return nil, fmt.Errorf("failed to get run %s: %w", id, err)
			}
			runs = append(runs, *run)
		}
	} else {
		var err error
		runs, err = rs.ListRuns(ctx, filter)
		if err != nil {
			return nil, fmt.Errorf("failed to list runs: %w", err)
		}
	}
	if len(runs) == 0 {
		return nil, ErrNoRuns
	}

	archive := &Archive{
		Version:   FormatVersion,
		CreatedAt: time.Now().UTC(),
		Runs:      make([]ArchivedRun, 0, len(runs)),
	}
	if filter.Network != "" {
		archive.Metadata = map[string]string{"network": filter.Network}
	}
	for _, run := range runs {
		trials, err := rs.TrialsForRun(ctx, run.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to read trials of %s: %w", run.ID, err)
		}
		archive.Runs = append(archive.Runs, ArchivedRun{Run: run, Trials: trials})
	}

	if err := Write(outputPath, archive); err != nil {
		return nil, err
	}
	return archive, nil
}

// ImportResult contains statistics about an import.
type ImportResult struct {
	RunsImported   int `json:"runs_imported"`
	RunsSkipped    int `json:"runs_skipped"`
	TrialsImported int `json:"trials_imported"`
}

// Import restores every run in the archive at inputPath. Runs whose ID is
// already stored are skipped, so importing twice is harmless.
func Import(ctx context.Context, rs store.ResultStore, inputPath string) (*ImportResult, error) {
	archive, err := Read(inputPath)
	if err != nil {
		return nil, err
	}

	result := &ImportResult{}
	for _, ar := range archive.Runs {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		inserted, err := rs.ImportRun(ctx, ar.Run, ar.Trials)
		if err != nil {
			return result, fmt.Errorf("failed to import run %s: %w", ar.Run.ID, err)
		}
		if !inserted {
			result.RunsSkipped++
			continue
		}
		result.RunsImported++
		result.TrialsImported += len(ar.Trials)
	}
	return result, nil
}
