package montecarlo

import (
	"time"

	"github.com/aaleta/C72h-whiteworms/internal/gillespie"
	"github.com/aaleta/C72h-whiteworms/internal/model"
)

// TrialSummary reduces one realization to the quantities reported per trial.
type TrialSummary struct {
	Trial             int     `json:"trial"`
	Seed              uint64  `json:"seed"`
	ProtectedFraction float64 `json:"protected_fraction"`

	PeakBlackInfected int          `json:"peak_black_infected"`
	PeakBlackFraction float64      `json:"peak_black_fraction"`
	PeakTime          float64      `json:"peak_time"`
	PersistenceWindow float64      `json:"persistence_window"`
	FinalTime         float64      `json:"final_time"`
	Events            int          `json:"events"`
	Absorbed          bool         `json:"absorbed"`
	Stop              string       `json:"stop"`
	FinalCounts       model.Counts `json:"final_counts"`
}

// Summarize extracts the trial summary of traj.
func Summarize(trial int, seed uint64, traj *gillespie.Trajectory, threshold float64) TrialSummary {
	peak, at := PeakBlackInfected(traj)
	s := TrialSummary{
		Trial:             trial,
		Seed:              seed,
		ProtectedFraction: traj.ProtectedFraction(),
		PeakBlackInfected: peak,
		PeakTime:          at,
		PersistenceWindow: PersistenceWindow(traj, threshold),
		FinalTime:         traj.FinalTime(),
		Events:            traj.Events(),
		Absorbed:          traj.Absorbed,
		Stop:              traj.Stop.String(),
		FinalCounts:       traj.Final(),
	}
	if traj.Nodes > 0 {
		s.PeakBlackFraction = float64(peak) / float64(traj.Nodes)
	}
	return s
}

// PeakBlackInfected returns the maximum of B + DB + WB over the trajectory
// and the time it was first reached.
func PeakBlackInfected(traj *gillespie.Trajectory) (int, float64) {
	peak, at := 0, 0.0
	for i, c := range traj.Counts {
		if v := c.BlackInfected(); v > peak {
			peak, at = v, traj.Times[i]
		}
	}
	return peak, at
}

// PersistenceWindow returns the time between the first and the last sample
// whose black-infected share exceeds threshold, or 0 if none does.
func PersistenceWindow(traj *gillespie.Trajectory, threshold float64) float64 {
	if traj.Nodes == 0 {
		return 0
	}
	first, last := -1, -1
	for i, c := range traj.Counts {
		if float64(c.BlackInfected())/float64(traj.Nodes) > threshold {
			if first < 0 {
				first = i
			}
			last = i
		}
	}
	if first < 0 {
		return 0
	}
	return traj.Times[last] - traj.Times[first]
}

// Result is the outcome of one Monte Carlo batch.
type Result struct {
	Network  string       `json:"network"`
	Nodes    int          `json:"nodes"`
	Edges    int          `json:"edges"`
	Directed bool         `json:"directed"`
	Params   model.Params `json:"params"`
	Config   Config       `json:"config"`
	BaseSeed uint64       `json:"base_seed"`

	// Initial holds the initial compartment counts of trial 0.
	Initial model.Counts `json:"initial"`

	Trials    []TrialSummary `json:"trials"`
	StartedAt time.Time      `json:"started_at"`
	Elapsed   time.Duration  `json:"elapsed"`

	// First is the trajectory of trial 0 when Config.KeepFirst is set.
	First *gillespie.Trajectory `json:"-"`
}

// ProtectedFractions returns the protected fraction of every trial in
// trial order.
func (r *Result) ProtectedFractions() []float64 {
	out := make([]float64, len(r.Trials))
	for i, t := range r.Trials {
		out[i] = t.ProtectedFraction
	}
	return out
}

// AbsorbedOnly returns the summaries of trials that reached absorption.
func (r *Result) AbsorbedOnly() []TrialSummary {
	out := make([]TrialSummary, 0, len(r.Trials))
	for _, t := range r.Trials {
		if t.Absorbed {
			out = append(out, t)
		}
	}
	return out
}

// Truncated counts trials cut short by the engine budget.
func (r *Result) Truncated() int {
	n := 0
	for _, t := range r.Trials {
		if !t.Absorbed {
			n++
		}
	}
	return n
}
