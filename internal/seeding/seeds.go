// Package seeding assigns initial compartments to nodes before a run.
package seeding

import (
	"errors"
	"fmt"
	"math/rand/v2"

	"github.com/aaleta/C72h-whiteworms/internal/model"
)

// ErrTooManySeeds is returned when more seeds are requested than there are nodes.
var ErrTooManySeeds = errors.New("seed count exceeds node count")

// Nodes is the view of a network a Policy needs. *network.Network
// satisfies it.
type Nodes interface {
	NodeCount() int
	Index(label int64) (int, bool)
}

// Policy draws an initial condition, keyed by dense node index, for nodes.
// Implementations must only draw randomness from rng so trials stay
// reproducible.
type Policy interface {
	Draw(nodes Nodes, rng *rand.Rand) (model.InitialCondition, error)
}

// RandomSeeds picks black+white distinct nodes uniformly without replacement.
// The first black picks become B, the next white picks become W; every other
// node is left to the V default.
func RandomSeeds(n, black, white int, rng *rand.Rand) (model.InitialCondition, error) {
	if black < 0 || white < 0 {
		return nil, fmt.Errorf("%w: seed counts must be non-negative (black=%d, white=%d)", model.ErrInvalidParameter, black, white)
	}
	if black+white > n {
		return nil, fmt.Errorf("%w: black=%d + white=%d > nodes=%d", ErrTooManySeeds, black, white, n)
	}

	picks := sample(n, black+white, rng)
	ic := make(model.InitialCondition, len(picks))
	for i, node := range picks {
		if i < black {
			ic[node] = model.B
		} else {
			ic[node] = model.W
		}
	}
	return ic, nil
}

// sample returns k distinct values from [0, n) by a partial Fisher-Yates
// shuffle over a sparse permutation, so memory is O(k) regardless of n.
func sample(n, k int, rng *rand.Rand) []int {
	swapped := make(map[int]int, k)
	at := func(i int) int {
		if v, ok := swapped[i]; ok {
			return v
		}
		return i
	}

	out := make([]int, k)
	for i := 0; i < k; i++ {
		j := i + rng.IntN(n-i)
		vi, vj := at(i), at(j)
		swapped[i], swapped[j] = vj, vi
		out[i] = vj
	}
	return out
}

// RandomPolicy draws fresh random seeds on every call.
type RandomPolicy struct {
	Black int
	White int
}

// Draw implements Policy.
func (p RandomPolicy) Draw(nodes Nodes, rng *rand.Rand) (model.InitialCondition, error) {
	return RandomSeeds(nodes.NodeCount(), p.Black, p.White, rng)
}

// FixedPolicy reuses the same initial condition for every trial. Condition
// is keyed by node label as written in the edge list.
type FixedPolicy struct {
	Condition map[int64]model.Compartment
}

// Draw implements Policy. Labels missing from nodes are an error.
func (p FixedPolicy) Draw(nodes Nodes, _ *rand.Rand) (model.InitialCondition, error) {
	ic := make(model.InitialCondition, len(p.Condition))
	for label, c := range p.Condition {
		idx, ok := nodes.Index(label)
		if !ok {
			return nil, fmt.Errorf("%w: seeded node %d is not in the network", model.ErrInvalidParameter, label)
		}
		ic[idx] = c
	}
	return ic, nil
}

// ParseFixed converts node label to compartment assignments, e.g.
// {0: "B", 2: "D"}, into a FixedPolicy.
func ParseFixed(assignments map[int]string) (FixedPolicy, error) {
	cond := make(map[int64]model.Compartment, len(assignments))
	for label, name := range assignments {
		c, err := model.ParseCompartment(name)
		if err != nil {
			return FixedPolicy{}, fmt.Errorf("node %d: %w", label, err)
		}
		cond[int64(label)] = c
	}
	return FixedPolicy{Condition: cond}, nil
}
