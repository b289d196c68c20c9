package model

import "fmt"

// SpontaneousRule fires independently for each node in From at rate Rate.
type SpontaneousRule struct {
	From Compartment
	To   Compartment
	Rate float64
}

// InducedRule fires once per directed edge instance whose neighbor endpoint
// is in Neighbor and whose self endpoint is in From; the self node moves to
// To and the neighbor is unchanged.
type InducedRule struct {
	Neighbor Compartment
	From     Compartment
	To       Compartment
	Rate     float64
}

func (r SpontaneousRule) String() string {
	return fmt.Sprintf("%s->%s (%g)", r.From, r.To, r.Rate)
}

func (r InducedRule) String() string {
	return fmt.Sprintf("(%s,%s)->(%s,%s) (%g)", r.Neighbor, r.From, r.Neighbor, r.To, r.Rate)
}

// TransitionModel is the fixed rule set derived from Params. It is read-only
// once built and may be shared across concurrent runs.
type TransitionModel struct {
	Spontaneous []SpontaneousRule
	Induced     []InducedRule
}

// blackCarriers can pass the black worm to a neighbor.
var blackCarriers = []Compartment{B, DB, WB}

// whiteCarriers can pass the white worm to a neighbor.
var whiteCarriers = []Compartment{W, WB}

// Build constructs the spontaneous and induced rules for p. It is pure and
// fails only when p is invalid.
func Build(p Params) (TransitionModel, error) {
	if err := p.Validate(); err != nil {
		return TransitionModel{}, err
	}

	spontaneous := []SpontaneousRule{
		// White worm activation.
		{From: D, To: W, Rate: p.Epsilon},
		{From: DB, To: WB, Rate: p.Epsilon},
		// User fix when prompted.
		{From: D, To: Pg, Rate: p.Gamma},
		{From: DB, To: Pg, Rate: p.Gamma},
		// White worm fix.
		{From: W, To: Pmu, Rate: p.Mu},
		{From: WB, To: Pmu, Rate: p.Mu},
	}

	induced := make([]InducedRule, 0, len(blackCarriers)*3+len(whiteCarriers)*2)
	for _, n := range blackCarriers {
		induced = append(induced,
			InducedRule{Neighbor: n, From: V, To: B, Rate: p.BetaB},
			InducedRule{Neighbor: n, From: D, To: DB, Rate: p.BetaB},
			InducedRule{Neighbor: n, From: W, To: WB, Rate: p.BetaB},
		)
	}
	for _, n := range whiteCarriers {
		induced = append(induced, InducedRule{Neighbor: n, From: V, To: D, Rate: p.BetaW})
	}
	// A clean white worm activates on a black-infected node straight away,
	// while one spread from a dual-infected node lands dormant.
	induced = append(induced,
		InducedRule{Neighbor: W, From: B, To: WB, Rate: p.BetaW},
		InducedRule{Neighbor: WB, From: B, To: DB, Rate: p.BetaW},
	)

	return TransitionModel{Spontaneous: spontaneous, Induced: induced}, nil
}

// Validate checks that every rule references known compartments and carries a
// non-negative rate. Models produced by Build always pass.
func (m TransitionModel) Validate() error {
	for _, r := range m.Spontaneous {
		if !r.From.Valid() || !r.To.Valid() {
			return fmt.Errorf("spontaneous rule %v: %w", r, ErrUnknownCompartment)
		}
		if !(r.Rate >= 0) {
			return fmt.Errorf("%w: spontaneous rule %v has negative rate", ErrInvalidParameter, r)
		}
	}
	for _, r := range m.Induced {
		if !r.Neighbor.Valid() || !r.From.Valid() || !r.To.Valid() {
			return fmt.Errorf("induced rule %v: %w", r, ErrUnknownCompartment)
		}
		if !(r.Rate >= 0) {
			return fmt.Errorf("%w: induced rule %v has negative rate", ErrInvalidParameter, r)
		}
	}
	return nil
}
