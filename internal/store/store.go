// Package store persists Monte Carlo runs and their per-trial summaries.
package store

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"math"
	"time"

	"github.com/aaleta/C72h-whiteworms/internal/model"
	"github.com/aaleta/C72h-whiteworms/internal/montecarlo"
)

// ErrRunNotFound is returned when no stored run matches an ID.
var ErrRunNotFound = errors.New("run not found")

// ErrAmbiguousID is returned when an ID prefix matches more than one run.
var ErrAmbiguousID = errors.New("ambiguous run ID prefix")

// Run is the stored header of one Monte Carlo batch.
type Run struct {
	ID        string       `json:"id"`
	Network   string       `json:"network"`
	Nodes     int          `json:"nodes"`
	Edges     int          `json:"edges"`
	Directed  bool         `json:"directed"`
	Params    model.Params `json:"params"`
	Trials    int          `json:"trials"`
	BaseSeed  uint64       `json:"base_seed"`
	Black     int          `json:"black_seeds"`
	White     int          `json:"white_seeds"`
	MaxTime   float64      `json:"max_time"`
	MaxEvents int          `json:"max_events"`

	PersistenceThreshold float64 `json:"persistence_threshold"`

	Truncated     int       `json:"truncated"`
	MeanProtected float64   `json:"mean_protected"`
	CreatedAt     time.Time `json:"created_at"`
	ElapsedMS     int64     `json:"elapsed_ms"`
}

// RunFilter narrows ListRuns. Zero values match everything.
type RunFilter struct {
	Network string
	Limit   int
}

// ResultStore stores and queries runs.
type ResultStore interface {
	SaveRun(ctx context.Context, res *montecarlo.Result) (string, error)
	ImportRun(ctx context.Context, run Run, trials []montecarlo.TrialSummary) (bool, error)
	GetRun(ctx context.Context, id string) (*Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]Run, error)
	TrialsForRun(ctx context.Context, id string) ([]montecarlo.TrialSummary, error)
	DeleteRun(ctx context.Context, id string) error
	Close() error
}

// NewRun builds the stored header of res.
func NewRun(res *montecarlo.Result) Run {
	fractions := res.ProtectedFractions()
	mean := 0.0
	for _, f := range fractions {
		mean += f
	}
	if len(fractions) > 0 {
		mean /= float64(len(fractions))
	}

	return Run{
		ID:                   computeRunID(res),
		Network:              res.Network,
		Nodes:                res.Nodes,
		Edges:                res.Edges,
		Directed:             res.Directed,
		Params:               res.Params,
		Trials:               len(res.Trials),
		BaseSeed:             res.BaseSeed,
		Black:                res.Initial[model.B],
		White:                res.Initial[model.W],
		MaxTime:              res.Config.Engine.MaxTime,
		MaxEvents:            res.Config.Engine.MaxEvents,
		PersistenceThreshold: res.Config.PersistenceThreshold,
		Truncated:            res.Truncated(),
		MeanProtected:        mean,
		CreatedAt:            res.StartedAt.UTC(),
		ElapsedMS:            res.Elapsed.Milliseconds(),
	}
}

// computeRunID hashes the identity of a run into a short hex ID.
func computeRunID(res *montecarlo.Result) string {
	h := sha256.New()
	h.Write([]byte(res.Network))
	h.Write([]byte{0})
	h.Write([]byte(res.Params.Tag()))
	var buf [8]byte
	for _, v := range []uint64{
		res.BaseSeed,
		uint64(len(res.Trials)),
		uint64(res.StartedAt.UnixNano()),
		math.Float64bits(res.Config.Engine.MaxTime),
		uint64(res.Config.Engine.MaxEvents),
	} {
		binary.LittleEndian.PutUint64(buf[:], v)
		h.Write(buf[:])
	}
	sum := h.Sum(nil)
	return hex.EncodeToString(sum[:8])
}

// ShortID abbreviates a run ID for display. GetRun accepts the short form.
func ShortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
