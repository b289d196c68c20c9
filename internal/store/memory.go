package store

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/aaleta/C72h-whiteworms/internal/montecarlo"
)

// InMemoryResultStore implements ResultStore without persistence. It backs
// the MCP server when no database is configured, and tests.
type InMemoryResultStore struct {
	mu     sync.RWMutex
	runs   map[string]Run
	trials map[string][]montecarlo.TrialSummary
}

// NewInMemoryResultStore creates an empty in-memory store.
func NewInMemoryResultStore() *InMemoryResultStore {
	return &InMemoryResultStore{
		runs:   make(map[string]Run),
		trials: make(map[string][]montecarlo.TrialSummary),
	}
}

// SaveRun stores res and returns the run ID.
func (s *InMemoryResultStore) SaveRun(ctx context.Context, res *montecarlo.Result) (string, error) {
	if res == nil {
		return "", fmt.Errorf("nil result")
	}
	run := NewRun(res)
	if _, err := s.ImportRun(ctx, run, res.Trials); err != nil {
		return "", err
	}
	return run.ID, nil
}

// ImportRun stores run unless its ID already exists.
func (s *InMemoryResultStore) ImportRun(_ context.Context, run Run, trials []montecarlo.TrialSummary) (bool, error) {
	if run.ID == "" {
		return false, fmt.Errorf("run ID is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.runs[run.ID]; exists {
		return false, nil
	}
	s.runs[run.ID] = run
	s.trials[run.ID] = slices.Clone(trials)
	return true, nil
}

// GetRun returns the run with the given ID or unique ID prefix.
func (s *InMemoryResultStore) GetRun(_ context.Context, id string) (*Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	full, err := s.resolveID(id)
	if err != nil {
		return nil, err
	}
	run := s.runs[full]
	return &run, nil
}

// ListRuns returns stored runs, newest first.
func (s *InMemoryResultStore) ListRuns(_ context.Context, filter RunFilter) ([]Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	runs := make([]Run, 0, len(s.runs))
	for _, run := range s.runs {
		if filter.Network != "" && run.Network != filter.Network {
			continue
		}
		runs = append(runs, run)
	}
	slices.SortFunc(runs, func(a, b Run) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	if filter.Limit > 0 && len(runs) > filter.Limit {
		runs = runs[:filter.Limit]
	}
	return runs, nil
}

// TrialsForRun returns a copy of the trial summaries of a run.
func (s *InMemoryResultStore) TrialsForRun(_ context.Context, id string) ([]montecarlo.TrialSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	full, err := s.resolveID(id)
	if err != nil {
		return nil, err
	}
	return slices.Clone(s.trials[full]), nil
}

// DeleteRun removes a run.
func (s *InMemoryResultStore) DeleteRun(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	full, err := s.resolveID(id)
	if err != nil {
		return err
	}
	delete(s.runs, full)
	delete(s.trials, full)
	return nil
}

// Close is a no-op.
func (s *InMemoryResultStore) Close() error { return nil }

func (s *InMemoryResultStore) resolveID(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", fmt.Errorf("%w: empty ID", ErrRunNotFound)
	}
	if _, ok := s.runs[id]; ok {
		return id, nil
	}
	var match string
	for candidate := range s.runs {
		if !strings.HasPrefix(candidate, id) {
			continue
		}
		if match != "" {
			return "", fmt.Errorf("%w: %s", ErrAmbiguousID, id)
		}
		match = candidate
	}
	if match == "" {
		return "", fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return match, nil
}
