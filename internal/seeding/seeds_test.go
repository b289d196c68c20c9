package seeding

import (
	"errors"
	"math/rand/v2"
	"strings"
	"testing"

	"github.com/aaleta/C72h-whiteworms/internal/model"
	"github.com/aaleta/C72h-whiteworms/internal/network"
)

func newRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

func TestRandomSeeds_Counts(t *testing.T) {
	ic, err := RandomSeeds(100, 3, 5, newRand(1))
	if err != nil {
		t.Fatalf("RandomSeeds: %v", err)
	}
	counts := ic.Counts(100)
	if counts[model.B] != 3 || counts[model.W] != 5 || counts[model.V] != 92 {
		t.Errorf("counts = %v, want B=3 W=5 V=92", counts)
	}
	for node := range ic {
		if node < 0 || node >= 100 {
			t.Errorf("seeded node %d out of range", node)
		}
	}
}

func TestRandomSeeds_AllNodes(t *testing.T) {
	ic, err := RandomSeeds(4, 2, 2, newRand(7))
	if err != nil {
		t.Fatalf("RandomSeeds: %v", err)
	}
	if len(ic) != 4 {
		t.Fatalf("len = %d, want 4 distinct nodes", len(ic))
	}
}

func TestRandomSeeds_TooMany(t *testing.T) {
	_, err := RandomSeeds(3, 2, 2, newRand(1))
	if !errors.Is(err, ErrTooManySeeds) {
		t.Fatalf("err = %v, want ErrTooManySeeds", err)
	}
	_, err = RandomSeeds(3, -1, 0, newRand(1))
	if !errors.Is(err, model.ErrInvalidParameter) {
		t.Fatalf("err = %v, want ErrInvalidParameter", err)
	}
}

func TestRandomSeeds_Deterministic(t *testing.T) {
	a, _ := RandomSeeds(1000, 10, 10, newRand(42))
	b, _ := RandomSeeds(1000, 10, 10, newRand(42))
	if len(a) != len(b) {
		t.Fatalf("len mismatch %d vs %d", len(a), len(b))
	}
	for node, c := range a {
		if b[node] != c {
			t.Fatalf("node %d: %v vs %v", node, c, b[node])
		}
	}
}

func TestRandomSeeds_Uniform(t *testing.T) {
	const n, trials = 5, 20000
	hits := make([]int, n)
	rng := newRand(3)
	for i := 0; i < trials; i++ {
		ic, err := RandomSeeds(n, 1, 0, rng)
		if err != nil {
			t.Fatalf("RandomSeeds: %v", err)
		}
		for node := range ic {
			hits[node]++
		}
	}
	for node, h := range hits {
		frac := float64(h) / trials
		if frac < 0.18 || frac > 0.22 {
			t.Errorf("node %d picked with frequency %.3f, want ~0.2", node, frac)
		}
	}
}

func TestFixedPolicy_KeyedByLabel(t *testing.T) {
	// Labels are indexed in order of first appearance: 5 -> 0, 0 -> 1, 1 -> 2.
	net, err := network.Load(strings.NewReader("5 0\n5 1\n"), network.LoadOptions{Name: "star"})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	p, err := ParseFixed(map[int]string{0: "B", 5: "D"})
	if err != nil {
		t.Fatalf("ParseFixed: %v", err)
	}
	ic, err := p.Draw(net, nil)
	if err != nil {
		t.Fatalf("Draw: %v", err)
	}
	for idx, c := range ic {
		switch net.Label(idx) {
		case 0:
			if c != model.B {
				t.Errorf("label 0 = %v, want B", c)
			}
		case 5:
			if c != model.D {
				t.Errorf("label 5 = %v, want D", c)
			}
		default:
			t.Errorf("label %d seeded with %v", net.Label(idx), c)
		}
	}
	if len(ic) != 2 {
		t.Errorf("len(ic) = %d, want 2", len(ic))
	}

	ic[0] = model.W
	if p.Condition[5] != model.D || p.Condition[0] != model.B {
		t.Error("Draw must return a copy")
	}
}

func TestFixedPolicy_UnknownLabel(t *testing.T) {
	net, err := network.Load(strings.NewReader("0 1\n"), network.LoadOptions{Name: "pair"})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	p, err := ParseFixed(map[int]string{7: "B"})
	if err != nil {
		t.Fatalf("ParseFixed: %v", err)
	}
	if _, err := p.Draw(net, nil); !errors.Is(err, model.ErrInvalidParameter) {
		t.Errorf("Draw err = %v, want ErrInvalidParameter", err)
	}
	if _, err := ParseFixed(map[int]string{0: "X"}); !errors.Is(err, model.ErrUnknownCompartment) {
		t.Errorf("ParseFixed err = %v, want ErrUnknownCompartment", err)
	}
}
