package gillespie

import (
	"errors"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/aaleta/C72h-whiteworms/internal/model"
	"github.com/aaleta/C72h-whiteworms/internal/network"
)

func newRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, 0xda3e39cb94b95bdb))
}

// buildNetwork is a test helper that builds an undirected network from
// label pairs, with labels 0..nodes-1 pre-registered.
func buildNetwork(t *testing.T, nodes int, directed bool, edges ...[2]int64) *network.Network {
	t.Helper()
	b := network.NewBuilder("test", directed)
	b.AddNodes(nodes)
	for _, e := range edges {
		b.AddEdge(e[0], e[1])
	}
	n, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return n
}

// randomNetwork builds an Erdős–Rényi graph with edge probability p.
func randomNetwork(t *testing.T, nodes int, p float64, rng *rand.Rand) *network.Network {
	t.Helper()
	var edges [][2]int64
	for u := 0; u < nodes; u++ {
		for v := u + 1; v < nodes; v++ {
			if rng.Float64() < p {
				edges = append(edges, [2]int64{int64(u), int64(v)})
			}
		}
	}
	return buildNetwork(t, nodes, false, edges...)
}

func newEngine(t *testing.T, net *network.Network, p model.Params, cfg Config) *Engine {
	t.Helper()
	m, err := model.Build(p)
	if err != nil {
		t.Fatalf("model.Build: %v", err)
	}
	e, err := NewEngine(net, m, cfg)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return e
}

// rescan computes the total propensity from scratch by enumerating every
// node and directed edge instance.
func rescan(s *Simulation, m model.TransitionModel) float64 {
	total := 0.0
	for i, c := range s.state {
		for _, r := range m.Spontaneous {
			if r.From == c {
				total += r.Rate
			}
		}
		for _, u := range s.net.Influencers(i) {
			for _, r := range m.Induced {
				if s.state[u] == r.Neighbor && c == r.From {
					total += r.Rate
				}
			}
		}
	}
	return total
}

func TestEngine_ZeroRatesIsAbsorbing(t *testing.T) {
	net := buildNetwork(t, 4, false, [2]int64{0, 1}, [2]int64{1, 2}, [2]int64{2, 3})
	e := newEngine(t, net, model.Params{}, DefaultConfig())

	ic := model.InitialCondition{0: model.B, 1: model.D, 2: model.W}
	traj, err := e.Run(ic, newRand(1))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if traj.Len() != 1 {
		t.Fatalf("Len = %d, want 1", traj.Len())
	}
	if traj.Times[0] != 0 {
		t.Errorf("Times[0] = %v, want 0", traj.Times[0])
	}
	if traj.Counts[0] != ic.Counts(4) {
		t.Errorf("Counts[0] = %v, want %v", traj.Counts[0], ic.Counts(4))
	}
	if !traj.Absorbed || traj.Stop != Absorbed {
		t.Errorf("Absorbed = %v, Stop = %v", traj.Absorbed, traj.Stop)
	}
}

func TestEngine_TwoNodeBlackInfection(t *testing.T) {
	net := buildNetwork(t, 2, false, [2]int64{0, 1})
	e := newEngine(t, net, model.Params{BetaB: 1}, DefaultConfig())
	ic := model.InitialCondition{0: model.B}

	rng := newRand(2)
	const trials = 4000
	sum := 0.0
	for i := 0; i < trials; i++ {
		traj, err := e.Run(ic, rng)
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		if traj.Len() != 2 {
			t.Fatalf("Len = %d, want 2 (one infection then absorption)", traj.Len())
		}
		if final := traj.Final(); final[model.B] != 2 {
			t.Fatalf("final = %v, want B=2", final)
		}
		if !traj.Absorbed {
			t.Fatal("expected absorption")
		}
		sum += traj.FinalTime()
	}

	mean := sum / trials
	if math.Abs(mean-1.0) > 0.08 {
		t.Errorf("mean infection time = %.3f, want ~1/beta_B = 1", mean)
	}
}

func TestEngine_CompetingSpontaneousRace(t *testing.T) {
	net := buildNetwork(t, 1, false)
	e := newEngine(t, net, model.Params{Epsilon: 2, Gamma: 1}, DefaultConfig())
	ic := model.InitialCondition{0: model.D}

	rng := newRand(3)
	const trials = 6000
	toW := 0
	for i := 0; i < trials; i++ {
		traj, err := e.Run(ic, rng)
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		final := traj.Final()
		switch {
		case final[model.W] == 1:
			toW++
		case final[model.Pg] == 1:
		default:
			t.Fatalf("unexpected final state %v", final)
		}
	}

	frac := float64(toW) / trials
	if math.Abs(frac-2.0/3.0) > 0.03 {
		t.Errorf("P(D->W) = %.3f, want ~0.667", frac)
	}
}

func TestEngine_NoEdgesOnlySpontaneous(t *testing.T) {
	net := buildNetwork(t, 30, false)
	e := newEngine(t, net, model.Params{BetaB: 5, BetaW: 5, Epsilon: 1, Gamma: 1, Mu: 1}, DefaultConfig())

	ic := model.InitialCondition{}
	for i := 0; i < 10; i++ {
		ic[i] = model.B
	}
	for i := 10; i < 20; i++ {
		ic[i] = model.D
	}

	traj, err := e.Run(ic, newRand(4))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	final := traj.Final()
	if final[model.V] != 10 || final[model.B] != 10 {
		t.Errorf("V and B nodes must not change without edges, final = %v", final)
	}
	if final.Protected() != 10 {
		t.Errorf("Protected = %d, want all 10 dormant nodes protected", final.Protected())
	}
	for i, c := range traj.Counts {
		if c[model.DB]+c[model.WB] != 0 {
			t.Fatalf("sample %d has induced compartments: %v", i, c)
		}
	}
}

func TestEngine_DirectedEdgeActsOneWay(t *testing.T) {
	net := buildNetwork(t, 2, true, [2]int64{0, 1})
	e := newEngine(t, net, model.Params{BetaB: 1}, DefaultConfig())

	// Node 1 is infected but only node 0 influences node 1.
	traj, err := e.Run(model.InitialCondition{1: model.B}, newRand(5))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if traj.Len() != 1 || !traj.Absorbed {
		t.Errorf("Len = %d Absorbed = %v, want immediate absorption", traj.Len(), traj.Absorbed)
	}

	traj, err = e.Run(model.InitialCondition{0: model.B}, newRand(5))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if traj.Final()[model.B] != 2 {
		t.Errorf("final = %v, want B=2", traj.Final())
	}
}

func TestEngine_WhiteInfectionOfBlack(t *testing.T) {
	net := buildNetwork(t, 2, false, [2]int64{0, 1})
	e := newEngine(t, net, model.Params{BetaW: 1}, DefaultConfig())

	tests := []struct {
		carrier model.Compartment
		want    model.Compartment
	}{
		{model.W, model.WB},
		{model.WB, model.DB},
	}
	for _, tt := range tests {
		traj, err := e.Run(model.InitialCondition{0: tt.carrier, 1: model.B}, newRand(6))
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		final := traj.Final()
		if final[tt.want] != 1 || final[model.B] != 0 {
			t.Errorf("carrier %v: final = %v, want node 1 in %v", tt.carrier, final, tt.want)
		}
	}
}

func TestEngine_InvalidInitialCondition(t *testing.T) {
	net := buildNetwork(t, 3, false)
	e := newEngine(t, net, model.Params{BetaB: 1}, DefaultConfig())

	if _, err := e.Run(model.InitialCondition{5: model.B}, newRand(1)); !errors.Is(err, ErrUnknownNode) {
		t.Errorf("err = %v, want ErrUnknownNode", err)
	}
	if _, err := e.Run(model.InitialCondition{0: model.Compartment(99)}, newRand(1)); !errors.Is(err, model.ErrUnknownCompartment) {
		t.Errorf("err = %v, want ErrUnknownCompartment", err)
	}
	if _, err := e.Run(nil, nil); err == nil {
		t.Error("expected error for nil random source")
	}
}

func TestNewEngine_RejectsBadConfig(t *testing.T) {
	net := buildNetwork(t, 1, false)
	m, _ := model.Build(model.Params{})
	for _, cfg := range []Config{{MaxTime: -1}, {MaxTime: math.NaN()}, {MaxEvents: -3}} {
		if _, err := NewEngine(net, m, cfg); !errors.Is(err, model.ErrInvalidParameter) {
			t.Errorf("NewEngine(%+v) err = %v, want ErrInvalidParameter", cfg, err)
		}
	}
	bad := model.TransitionModel{Induced: []model.InducedRule{{Neighbor: model.B, From: model.V, To: model.B, Rate: -1}}}
	if _, err := NewEngine(net, bad, DefaultConfig()); !errors.Is(err, model.ErrInvalidParameter) {
		t.Errorf("NewEngine(negative rule) err = %v", err)
	}
}

func TestEngine_SameSeedSameTrajectory(t *testing.T) {
	net := randomNetwork(t, 200, 0.03, newRand(10))
	e := newEngine(t, net, model.Params{BetaB: 1.1, BetaW: 0.8, Epsilon: 1, Gamma: 0.3, Mu: 1}, DefaultConfig())
	ic := model.InitialCondition{0: model.B, 1: model.B, 2: model.W}

	a, err := e.Run(ic, newRand(99))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	b, err := e.Run(ic, newRand(99))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if a.Len() != b.Len() {
		t.Fatalf("Len %d vs %d", a.Len(), b.Len())
	}
	for i := range a.Times {
		if a.Times[i] != b.Times[i] || a.Counts[i] != b.Counts[i] {
			t.Fatalf("sample %d differs: (%v,%v) vs (%v,%v)", i, a.Times[i], a.Counts[i], b.Times[i], b.Counts[i])
		}
	}
}

func TestEngine_MaxEventsTruncates(t *testing.T) {
	net := randomNetwork(t, 100, 0.1, newRand(11))
	e := newEngine(t, net, model.Params{BetaB: 1}, Config{MaxEvents: 5})

	traj, err := e.Run(model.InitialCondition{0: model.B}, newRand(12))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if traj.Events() != 5 {
		t.Errorf("Events = %d, want 5", traj.Events())
	}
	if traj.Absorbed || traj.Stop != MaxEventsReached {
		t.Errorf("Absorbed = %v Stop = %v, want truncated by max_events", traj.Absorbed, traj.Stop)
	}
}

func TestEngine_MaxTimeTruncates(t *testing.T) {
	// A single D node with tiny rates will almost surely not fire before t=0.01.
	net := buildNetwork(t, 1, false)
	e := newEngine(t, net, model.Params{Epsilon: 1e-6}, Config{MaxTime: 0.01})

	traj, err := e.Run(model.InitialCondition{0: model.D}, newRand(13))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if traj.Absorbed || traj.Stop != MaxTimeReached {
		t.Errorf("Absorbed = %v Stop = %v, want truncated by max_time", traj.Absorbed, traj.Stop)
	}
	if traj.FinalTime() > 0.01 {
		t.Errorf("FinalTime = %v exceeds max_time", traj.FinalTime())
	}
}

func TestSimulation_AbsorptionIsIdempotent(t *testing.T) {
	net := randomNetwork(t, 50, 0.1, newRand(14))
	e := newEngine(t, net, model.Params{BetaB: 1, BetaW: 1, Epsilon: 1, Gamma: 1, Mu: 1}, DefaultConfig())

	sim, err := e.Start(model.InitialCondition{0: model.B, 1: model.W}, newRand(15))
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	for {
		ok, err := sim.Step()
		if err != nil {
			t.Fatalf("Step: %v", err)
		}
		if !ok {
			break
		}
	}
	if !sim.Absorbed() || sim.Propensity() != 0 {
		t.Fatalf("Absorbed = %v Propensity = %v", sim.Absorbed(), sim.Propensity())
	}
	samples := sim.Trajectory().Len()
	for i := 0; i < 3; i++ {
		ok, err := sim.Step()
		if ok || err != nil {
			t.Fatalf("Step after absorption = %v, %v", ok, err)
		}
		if sim.Propensity() != 0 {
			t.Fatalf("Propensity after absorption = %v", sim.Propensity())
		}
	}
	if sim.Trajectory().Len() != samples {
		t.Error("steps after absorption must not record samples")
	}
	if sim.StopReason() != Absorbed {
		t.Errorf("StopReason = %v", sim.StopReason())
	}
}

func TestSimulation_IncrementalMatchesRescan(t *testing.T) {
	net := randomNetwork(t, 120, 0.05, newRand(16))
	p := model.Params{BetaB: 1.3, BetaW: 0.7, Epsilon: 0.9, Gamma: 0.4, Mu: 1.1}
	m, err := model.Build(p)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	e, err := NewEngine(net, m, DefaultConfig())
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	sim, err := e.Start(model.InitialCondition{0: model.B, 5: model.B, 9: model.W, 20: model.D}, newRand(17))
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	for step := 0; ; step++ {
		want := rescan(sim, m)
		got := sim.Propensity()
		if math.Abs(got-want) > 1e-9*math.Max(1, want) {
			t.Fatalf("step %d: incremental propensity %v, rescan %v", step, got, want)
		}
		ok, err := sim.Step()
		if err != nil {
			t.Fatalf("Step: %v", err)
		}
		if !ok {
			break
		}
	}
	if rescan(sim, m) != 0 {
		t.Error("rescan of absorbed state must be zero")
	}
}

func TestSumTree_FindAndUpdate(t *testing.T) {
	tree := newSumTree(5)
	tree.load([]float64{0, 1, 0, 2, 0})
	if tree.total() != 3 {
		t.Fatalf("total = %v, want 3", tree.total())
	}
	if got := tree.find(0.5); got != 1 {
		t.Errorf("find(0.5) = %d, want 1", got)
	}
	if got := tree.find(1.5); got != 3 {
		t.Errorf("find(1.5) = %d, want 3", got)
	}
	// Past the end still lands on a positive leaf.
	if got := tree.find(3.5); got != 3 {
		t.Errorf("find(3.5) = %d, want 3", got)
	}

	tree.set(3, 0)
	tree.set(1, 0)
	if tree.total() != 0 {
		t.Errorf("total after clearing = %v, want exactly 0", tree.total())
	}
	tree.set(4, 0.25)
	if got := tree.find(0.1); got != 4 {
		t.Errorf("find(0.1) = %d, want 4", got)
	}
}
