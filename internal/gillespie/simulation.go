package gillespie

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/aaleta/C72h-whiteworms/internal/model"
	"github.com/aaleta/C72h-whiteworms/internal/network"
)

// StopReason says why a run ended.
type StopReason int

const (
	Running StopReason = iota
	Absorbed
	MaxTimeReached
	MaxEventsReached
)

func (r StopReason) String() string {
	switch r {
	case Running:
		return "running"
	case Absorbed:
		return "absorbed"
	case MaxTimeReached:
		return "max_time"
	case MaxEventsReached:
		return "max_events"
	default:
		return fmt.Sprintf("StopReason(%d)", int(r))
	}
}

// Simulation is the mutable state of one run. It is not safe for concurrent
// use and is discarded once its trajectory is taken.
type Simulation struct {
	net    *network.Network
	rules  *ruleTable
	config Config
	rng    *rand.Rand

	state []model.Compartment
	// neighbors[i*NumCompartments+c] counts influencers of i in compartment c.
	neighbors []int32
	tree      *sumTree
	// active is the number of nodes with a positive propensity.
	active int

	counts model.Counts
	time   float64
	events int
	stop   StopReason

	traj *Trajectory
}

func newSimulation(e *Engine, state []model.Compartment, rng *rand.Rand) *Simulation {
	n := len(state)
	s := &Simulation{
		net:       e.net,
		rules:     &e.rules,
		config:    e.config,
		rng:       rng,
		state:     state,
		neighbors: make([]int32, n*model.NumCompartments),
		tree:      newSumTree(n),
	}

	for i, c := range state {
		s.counts[c]++
		for _, j := range s.net.Influenced(i) {
			s.neighbors[int(j)*model.NumCompartments+int(c)]++
		}
	}

	weights := make([]float64, n)
	for i := range state {
		weights[i] = s.nodeRate(i)
		if weights[i] > 0 {
			s.active++
		}
	}
	s.tree.load(weights)

	s.traj = &Trajectory{Nodes: n}
	s.record()
	return s
}

// Time returns the current simulated time.
func (s *Simulation) Time() float64 { return s.time }

// Events returns the number of accepted events so far.
func (s *Simulation) Events() int { return s.events }

// Counts returns the current per-compartment population.
func (s *Simulation) Counts() model.Counts { return s.counts }

// State returns the compartment of node i.
func (s *Simulation) State(i int) model.Compartment { return s.state[i] }

// Propensity returns the total rate of all enabled transition instances.
// It is exactly zero in an absorbing configuration.
func (s *Simulation) Propensity() float64 {
	if s.active == 0 {
		return 0
	}
	return s.tree.total()
}

// Absorbed reports whether no transition can fire any more.
func (s *Simulation) Absorbed() bool {
	return s.active == 0
}

// StopReason returns why the run ended, or Running.
func (s *Simulation) StopReason() StopReason { return s.stop }

// Step fires one event. It returns false, without changing state, once the
// configuration is absorbing or the budget is exhausted.
func (s *Simulation) Step() (bool, error) {
	if s.stop != Running {
		return false, nil
	}
	if s.active == 0 {
		s.finish(Absorbed)
		return false, nil
	}
	if s.config.MaxEvents > 0 && s.events >= s.config.MaxEvents {
		s.finish(MaxEventsReached)
		return false, nil
	}

	total := s.tree.total()
	if !(total > 0) || math.IsInf(total, 1) {
		return false, fmt.Errorf("%w: total propensity %v with %d active nodes", ErrInvariant, total, s.active)
	}

	next := s.time + s.rng.ExpFloat64()/total
	if next <= s.time {
		next = math.Nextafter(s.time, math.Inf(1))
	}
	if s.config.MaxTime > 0 && next > s.config.MaxTime {
		s.finish(MaxTimeReached)
		return false, nil
	}

	node := s.tree.find(s.rng.Float64() * total)
	to, ok := s.pick(node)
	if !ok {
		return false, fmt.Errorf("%w: node %d in %v selected with no enabled rule", ErrInvariant, node, s.state[node])
	}

	s.apply(node, to)
	s.time = next
	s.events++
	s.record()
	return true, nil
}

// Trajectory returns the samples recorded so far. After the run has stopped
// the trajectory is final.
func (s *Simulation) Trajectory() *Trajectory {
	return s.traj
}

func (s *Simulation) finish(reason StopReason) {
	s.stop = reason
	s.traj.Absorbed = reason == Absorbed
	s.traj.Stop = reason
}

func (s *Simulation) record() {
	s.traj.Times = append(s.traj.Times, s.time)
	s.traj.Counts = append(s.traj.Counts, s.counts)
}

// nodeRate sums the rates of every rule enabled at node i.
func (s *Simulation) nodeRate(i int) float64 {
	c := s.state[i]
	rate := s.rules.spontaneousRate[c]
	base := i * model.NumCompartments
	for _, r := range s.rules.induced[c] {
		rate += r.Rate * float64(s.neighbors[base+int(r.Neighbor)])
	}
	return rate
}

// pick chooses one enabled rule of node proportionally to its rate and
// returns the destination compartment.
func (s *Simulation) pick(node int) (model.Compartment, bool) {
	c := s.state[node]
	u := s.rng.Float64() * s.tree.get(node)

	var last model.Compartment
	found := false
	for _, r := range s.rules.spontaneous[c] {
		if u < r.Rate {
			return r.To, true
		}
		u -= r.Rate
		last, found = r.To, true
	}
	base := node * model.NumCompartments
	for _, r := range s.rules.induced[c] {
		k := s.neighbors[base+int(r.Neighbor)]
		if k == 0 {
			continue
		}
		w := r.Rate * float64(k)
		if u < w {
			return r.To, true
		}
		u -= w
		last, found = r.To, true
	}
	// Rounding can leave u just past the final weight.
	return last, found
}

// apply moves node to compartment to and refreshes the propensities that
// depend on it: its own and those of the nodes it influences.
func (s *Simulation) apply(node int, to model.Compartment) {
	from := s.state[node]
	s.state[node] = to
	s.counts[from]--
	s.counts[to]++

	for _, j := range s.net.Influenced(node) {
		base := int(j) * model.NumCompartments
		s.neighbors[base+int(from)]--
		s.neighbors[base+int(to)]++
		s.refresh(int(j))
	}
	s.refresh(node)
}

func (s *Simulation) refresh(i int) {
	w := s.nodeRate(i)
	old := s.tree.get(i)
	if old > 0 && w == 0 {
		s.active--
	} else if old == 0 && w > 0 {
		s.active++
	}
	s.tree.set(i, w)
}
