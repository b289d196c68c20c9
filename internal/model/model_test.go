package model

import (
	"errors"
	"math"
	"testing"
)

func TestParseCompartment(t *testing.T) {
	tests := []struct {
		label string
		want  Compartment
	}{
		{"V", V},
		{"B", B},
		{"D", D},
		{"DB", DB},
		{"D_B", DB},
		{"W", W},
		{"W_B", WB},
		{"Pg", Pg},
		{"P_g", Pg},
		{"Pμ", Pmu},
		{" Pmu ", Pmu},
	}
	for _, tt := range tests {
		got, err := ParseCompartment(tt.label)
		if err != nil {
			t.Errorf("ParseCompartment(%q) error: %v", tt.label, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseCompartment(%q) = %v, want %v", tt.label, got, tt.want)
		}
	}
}

func TestParseCompartment_Unknown(t *testing.T) {
	for _, label := range []string{"", "C", "v", "P"} {
		if _, err := ParseCompartment(label); !errors.Is(err, ErrUnknownCompartment) {
			t.Errorf("ParseCompartment(%q) err = %v, want ErrUnknownCompartment", label, err)
		}
	}
}

func TestCompartment_StringRoundTrip(t *testing.T) {
	for _, c := range Compartments {
		got, err := ParseCompartment(c.String())
		if err != nil || got != c {
			t.Errorf("round trip of %v gave %v, %v", c, got, err)
		}
	}
	if Compartment(NumCompartments).Valid() {
		t.Error("Compartment(NumCompartments) should be invalid")
	}
}

func TestCounts_Derived(t *testing.T) {
	c := Counts{V: 10, B: 1, D: 2, DB: 3, W: 4, WB: 5, Pg: 6, Pmu: 7}
	if got := c.Total(); got != 38 {
		t.Errorf("Total = %d, want 38", got)
	}
	if got := c.Protected(); got != 13 {
		t.Errorf("Protected = %d, want 13", got)
	}
	if got := c.BlackInfected(); got != 9 {
		t.Errorf("BlackInfected = %d, want 9", got)
	}
	if got := c.WhiteAware(); got != 14 {
		t.Errorf("WhiteAware = %d, want 14", got)
	}
	if got := c.Map()["DB"]; got != 3 {
		t.Errorf("Map[DB] = %d, want 3", got)
	}
}

func TestInitialCondition_DefaultsToVulnerable(t *testing.T) {
	ic := InitialCondition{2: B, 4: W}
	if got := ic.Of(0); got != V {
		t.Errorf("Of(0) = %v, want V", got)
	}
	if got := ic.Of(2); got != B {
		t.Errorf("Of(2) = %v, want B", got)
	}
	counts := ic.Counts(5)
	if counts[V] != 3 || counts[B] != 1 || counts[W] != 1 {
		t.Errorf("Counts = %v, want V=3 B=1 W=1", counts)
	}
}

func TestParams_Validate(t *testing.T) {
	ok := Params{BetaB: 1.1, BetaW: 0.5, Epsilon: 1, Gamma: 0, Mu: 1}
	if err := ok.Validate(); err != nil {
		t.Fatalf("Validate(%+v) = %v", ok, err)
	}

	bad := []Params{
		{BetaB: -1},
		{BetaW: -0.1},
		{Epsilon: math.NaN()},
		{Gamma: -2},
		{Mu: math.Inf(1)},
	}
	for _, p := range bad {
		if err := p.Validate(); !errors.Is(err, ErrInvalidParameter) {
			t.Errorf("Validate(%+v) err = %v, want ErrInvalidParameter", p, err)
		}
	}
}

func TestParams_WithAndGet(t *testing.T) {
	p, err := Params{}.With("gamma", 0.3)
	if err != nil {
		t.Fatalf("With: %v", err)
	}
	if v, ok := p.Get("gamma"); !ok || v != 0.3 {
		t.Errorf("Get(gamma) = %v, %v", v, ok)
	}
	if _, err := p.With("delta", 1); !errors.Is(err, ErrInvalidParameter) {
		t.Errorf("With(delta) err = %v, want ErrInvalidParameter", err)
	}
}

func TestParams_Tag(t *testing.T) {
	p := Params{BetaB: 1.1, BetaW: 0.5, Epsilon: 1, Gamma: 0.25, Mu: 2}
	if got, want := p.Tag(), "bB1.1_bW0.5_e1_g0.25_m2"; got != want {
		t.Errorf("Tag = %q, want %q", got, want)
	}
}

func TestBuild_RuleSet(t *testing.T) {
	p := Params{BetaB: 1, BetaW: 2, Epsilon: 3, Gamma: 4, Mu: 5}
	m, err := Build(p)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(m.Spontaneous) != 6 {
		t.Errorf("len(Spontaneous) = %d, want 6", len(m.Spontaneous))
	}
	if len(m.Induced) != 13 {
		t.Errorf("len(Induced) = %d, want 13", len(m.Induced))
	}
	if err := m.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}

	spont := make(map[[2]Compartment]float64)
	for _, r := range m.Spontaneous {
		spont[[2]Compartment{r.From, r.To}] = r.Rate
	}
	wantSpont := map[[2]Compartment]float64{
		{D, W}: 3, {DB, WB}: 3,
		{D, Pg}: 4, {DB, Pg}: 4,
		{W, Pmu}: 5, {WB, Pmu}: 5,
	}
	for k, v := range wantSpont {
		if spont[k] != v {
			t.Errorf("spontaneous %v->%v rate = %v, want %v", k[0], k[1], spont[k], v)
		}
	}

	induced := make(map[[3]Compartment]float64)
	for _, r := range m.Induced {
		induced[[3]Compartment{r.Neighbor, r.From, r.To}] = r.Rate
	}
	for _, n := range []Compartment{B, DB, WB} {
		for _, tr := range [][2]Compartment{{V, B}, {D, DB}, {W, WB}} {
			if got := induced[[3]Compartment{n, tr[0], tr[1]}]; got != 1 {
				t.Errorf("black rule (%v,%v)->%v rate = %v, want 1", n, tr[0], tr[1], got)
			}
		}
	}
	for _, r := range [][3]Compartment{{W, V, D}, {WB, V, D}, {W, B, WB}, {WB, B, DB}} {
		if got := induced[r]; got != 2 {
			t.Errorf("white rule (%v,%v)->%v rate = %v, want 2", r[0], r[1], r[2], got)
		}
	}
	if _, ok := induced[[3]Compartment{W, B, DB}]; ok {
		t.Error("a W neighbor must not leave a B node dormant")
	}
}

func TestBuild_NegativeRate(t *testing.T) {
	_, err := Build(Params{BetaB: 1, Mu: -0.5})
	if !errors.Is(err, ErrInvalidParameter) {
		t.Fatalf("Build err = %v, want ErrInvalidParameter", err)
	}
}

func TestTransitionModel_ValidateRejectsBadRules(t *testing.T) {
	m := TransitionModel{Spontaneous: []SpontaneousRule{{From: D, To: Compartment(42), Rate: 1}}}
	if err := m.Validate(); !errors.Is(err, ErrUnknownCompartment) {
		t.Errorf("err = %v, want ErrUnknownCompartment", err)
	}
	m = TransitionModel{Induced: []InducedRule{{Neighbor: B, From: V, To: B, Rate: -1}}}
	if err := m.Validate(); !errors.Is(err, ErrInvalidParameter) {
		t.Errorf("err = %v, want ErrInvalidParameter", err)
	}
}
