// Package gillespie implements a continuous-time stochastic simulation
// (Gillespie's direct method) of the worm contagion on a static network.
//
// Each node carries its total propensity: the sum of its enabled spontaneous
// rules plus, for every induced rule matching its own compartment, the rule
// rate times the number of influencers in the rule's neighbor compartment.
// Propensities live in a sum tree, so drawing the next event is O(log n) and
// an event only refreshes the changed node and the nodes it influences.
package gillespie

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/aaleta/C72h-whiteworms/internal/model"
	"github.com/aaleta/C72h-whiteworms/internal/network"
)

var (
	// ErrUnknownNode is returned when an initial condition names a node
	// index outside the network.
	ErrUnknownNode = errors.New("unknown node")

	// ErrInvariant signals a violated engine invariant (a non-finite total
	// propensity, or a selected node with no enabled rule). It is fatal.
	ErrInvariant = errors.New("simulation invariant violated")
)

// Config bounds a single run. The zero value runs until absorption.
type Config struct {
	// MaxTime stops the run before the first event past this simulated
	// time. 0 means unbounded.
	MaxTime float64 `json:"max_time" yaml:"max_time"`

	// MaxEvents stops the run after this many events. 0 means unbounded.
	MaxEvents int `json:"max_events" yaml:"max_events"`
}

// DefaultConfig runs to absorption.
func DefaultConfig() Config {
	return Config{}
}

// Validate checks the budget values.
func (c Config) Validate() error {
	if !(c.MaxTime >= 0) || math.IsInf(c.MaxTime, 1) {
		return fmt.Errorf("%w: max_time must be a finite non-negative number, got %v", model.ErrInvalidParameter, c.MaxTime)
	}
	if c.MaxEvents < 0 {
		return fmt.Errorf("%w: max_events must be non-negative, got %d", model.ErrInvalidParameter, c.MaxEvents)
	}
	return nil
}

// ruleTable indexes the transition model by the transitioning node's
// compartment. Zero-rate rules are dropped since they can never fire.
type ruleTable struct {
	spontaneous     [model.NumCompartments][]model.SpontaneousRule
	spontaneousRate [model.NumCompartments]float64
	induced         [model.NumCompartments][]model.InducedRule
}

func compile(m model.TransitionModel) ruleTable {
	var t ruleTable
	for _, r := range m.Spontaneous {
		if r.Rate == 0 {
			continue
		}
		t.spontaneous[r.From] = append(t.spontaneous[r.From], r)
		t.spontaneousRate[r.From] += r.Rate
	}
	for _, r := range m.Induced {
		if r.Rate == 0 {
			continue
		}
		t.induced[r.From] = append(t.induced[r.From], r)
	}
	return t
}

// Engine simulates realizations of the process on one network with one
// transition model. It holds only read-only data; all run state lives in the
// Simulation returned by Start, so an Engine may be shared by concurrent runs.
type Engine struct {
	net    *network.Network
	rules  ruleTable
	config Config
}

// NewEngine validates the model and budget and returns an engine.
func NewEngine(net *network.Network, m model.TransitionModel, config Config) (*Engine, error) {
	if net == nil {
		return nil, errors.New("gillespie: nil network")
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("gillespie: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("gillespie: %w", err)
	}
	return &Engine{
		net:    net,
		rules:  compile(m),
		config: config,
	}, nil
}

// Network returns the topology the engine runs on.
func (e *Engine) Network() *network.Network { return e.net }

// Start prepares a run from ic. Nodes absent from ic start vulnerable.
func (e *Engine) Start(ic model.InitialCondition, rng *rand.Rand) (*Simulation, error) {
	if rng == nil {
		return nil, errors.New("gillespie: nil random source")
	}

	n := e.net.NodeCount()
	state := make([]model.Compartment, n)
	for node, c := range ic {
		if node < 0 || node >= n {
			return nil, fmt.Errorf("%w: initial condition names node %d, network has %d nodes", ErrUnknownNode, node, n)
		}
		if !c.Valid() {
			return nil, fmt.Errorf("node %d: %w: %d", node, model.ErrUnknownCompartment, uint8(c))
		}
		state[node] = c
	}

	return newSimulation(e, state, rng), nil
}

// Run simulates one realization from ic until absorption or until the
// configured budget is exhausted.
func (e *Engine) Run(ic model.InitialCondition, rng *rand.Rand) (*Trajectory, error) {
	sim, err := e.Start(ic, rng)
	if err != nil {
		return nil, err
	}
	for {
		ok, err := sim.Step()
		if err != nil {
			return nil, err
		}
		if !ok {
			return sim.Trajectory(), nil
		}
	}
}
