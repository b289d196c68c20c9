// Package model defines the compartments of the black/white worm contagion,
// the five rate parameters, and the transition model built from them.
package model

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownCompartment is returned when a compartment label or value is not
// one of the eight canonical compartments.
var ErrUnknownCompartment = errors.New("unknown compartment")

// Compartment is the state of a single node.
type Compartment uint8

const (
	V   Compartment = iota // vulnerable
	B                      // black-infected
	D                      // dormant: white-aware, not yet active
	DB                     // dormant + black-infected
	W                      // white-active
	WB                     // white-active + black-infected
	Pg                     // protected by user remediation (gamma)
	Pmu                    // protected by white-worm remediation (mu)
)

// NumCompartments is the size of the compartment set.
const NumCompartments = 8

// Compartments lists every compartment in canonical order.
var Compartments = [NumCompartments]Compartment{V, B, D, DB, W, WB, Pg, Pmu}

var compartmentLabels = [NumCompartments]string{"V", "B", "D", "DB", "W", "WB", "Pg", "Pmu"}

// aliases accepted by ParseCompartment in addition to the canonical labels.
var compartmentAliases = map[string]Compartment{
	"D_B":  DB,
	"W_B":  WB,
	"P_g":  Pg,
	"Pγ":   Pg,
	"P_mu": Pmu,
	"Pμ":   Pmu,
}

// Valid reports whether c is one of the eight canonical compartments.
func (c Compartment) Valid() bool {
	return c < NumCompartments
}

// String returns the canonical label of c.
func (c Compartment) String() string {
	if !c.Valid() {
		return fmt.Sprintf("Compartment(%d)", uint8(c))
	}
	return compartmentLabels[c]
}

// MarshalText implements encoding.TextMarshaler.
func (c Compartment) MarshalText() ([]byte, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownCompartment, uint8(c))
	}
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *Compartment) UnmarshalText(text []byte) error {
	parsed, err := ParseCompartment(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// ParseCompartment maps a label to a Compartment. Canonical labels are
// case-sensitive; the underscore forms (D_B, W_B, P_g, P_mu) are accepted too.
func ParseCompartment(label string) (Compartment, error) {
	label = strings.TrimSpace(label)
	for i, l := range compartmentLabels {
		if l == label {
			return Compartment(i), nil
		}
	}
	if c, ok := compartmentAliases[label]; ok {
		return c, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownCompartment, label)
}

// Counts is a per-compartment population count.
type Counts [NumCompartments]int

// Total returns the number of nodes across all compartments.
func (c Counts) Total() int {
	total := 0
	for _, n := range c {
		total += n
	}
	return total
}

// Protected returns Pg + Pmu.
func (c Counts) Protected() int {
	return c[Pg] + c[Pmu]
}

// BlackInfected returns the number of nodes carrying the black worm
// (B + DB + WB).
func (c Counts) BlackInfected() int {
	return c[B] + c[DB] + c[WB]
}

// WhiteAware returns the number of nodes reached by the white worm but not
// yet protected (D + DB + W + WB).
func (c Counts) WhiteAware() int {
	return c[D] + c[DB] + c[W] + c[WB]
}

// Map returns the counts keyed by canonical label.
func (c Counts) Map() map[string]int {
	m := make(map[string]int, NumCompartments)
	for i, n := range c {
		m[compartmentLabels[i]] = n
	}
	return m
}

// InitialCondition assigns a compartment to nodes by dense node index.
// Nodes without an entry are vulnerable.
type InitialCondition map[int]Compartment

// Of returns the compartment of node, defaulting to V.
func (ic InitialCondition) Of(node int) Compartment {
	if c, ok := ic[node]; ok {
		return c
	}
	return V
}

// Counts tallies the initial condition over n nodes.
func (ic InitialCondition) Counts(n int) Counts {
	var counts Counts
	counts[V] = n
	for node, c := range ic {
		if node < 0 || node >= n || !c.Valid() {
			continue
		}
		counts[V]--
		counts[c]++
	}
	return counts
}
