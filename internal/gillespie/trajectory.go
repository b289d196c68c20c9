package gillespie

import "github.com/aaleta/C72h-whiteworms/internal/model"

// Trajectory is the time-ordered record of per-compartment counts, one sample
// at t=0 and one after every accepted event.
type Trajectory struct {
	Times  []float64
	Counts []model.Counts
	Nodes  int

	// Absorbed is false when the run was cut short by a budget.
	Absorbed bool
	Stop     StopReason
}

// Len returns the number of samples.
func (t *Trajectory) Len() int { return len(t.Times) }

// Events returns the number of accepted events.
func (t *Trajectory) Events() int {
	if len(t.Times) == 0 {
		return 0
	}
	return len(t.Times) - 1
}

// Final returns the last recorded counts.
func (t *Trajectory) Final() model.Counts {
	if len(t.Counts) == 0 {
		return model.Counts{}
	}
	return t.Counts[len(t.Counts)-1]
}

// FinalTime returns the time of the last accepted event (0 if none).
func (t *Trajectory) FinalTime() float64 {
	if len(t.Times) == 0 {
		return 0
	}
	return t.Times[len(t.Times)-1]
}

// ProtectedFraction returns (Pg + Pmu) / nodes at the end of the run.
func (t *Trajectory) ProtectedFraction() float64 {
	if t.Nodes == 0 {
		return 0
	}
	return float64(t.Final().Protected()) / float64(t.Nodes)
}

// Series returns the count of compartment c at every sample, normalized by
// the node count when normalized is true.
func (t *Trajectory) Series(c model.Compartment, normalized bool) []float64 {
	out := make([]float64, len(t.Counts))
	for i, counts := range t.Counts {
		out[i] = float64(counts[c])
	}
	if normalized && t.Nodes > 0 {
		for i := range out {
			out[i] /= float64(t.Nodes)
		}
	}
	return out
}
