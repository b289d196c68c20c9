package montecarlo

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/aaleta/C72h-whiteworms/internal/model"
	"github.com/aaleta/C72h-whiteworms/internal/network"
	"github.com/aaleta/C72h-whiteworms/internal/seeding"
)

// ErrAxisSelection is returned when a sweep does not name exactly one free
// rate.
var ErrAxisSelection = fmt.Errorf("%w: sweep needs exactly one free rate", model.ErrInvalidParameter)

// Axis is one swept rate and the values it takes.
type Axis struct {
	Name   string    `json:"name"`
	Values []float64 `json:"values"`
}

// ParseAxis parses "name=v1,v2,..." such as "beta_w=0.1,0.5,1".
func ParseAxis(s string) (Axis, error) {
	name, list, ok := strings.Cut(s, "=")
	name = strings.ToLower(strings.TrimSpace(name))
	if !ok || name == "" {
		return Axis{}, fmt.Errorf("%w: axis %q must look like name=v1,v2", model.ErrInvalidParameter, s)
	}
	if !slices.Contains(model.ParamNames, name) {
		return Axis{}, fmt.Errorf("%w: unknown rate %q (want one of %s)", model.ErrInvalidParameter, name, strings.Join(model.ParamNames, ", "))
	}

	var values []float64
	for _, field := range strings.Split(list, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		v, err := strconv.ParseFloat(field, 64)
		if err != nil {
			return Axis{}, fmt.Errorf("%w: axis %s value %q: %v", model.ErrInvalidParameter, name, field, err)
		}
		values = append(values, v)
	}
	if len(values) == 0 {
		return Axis{}, fmt.Errorf("%w: axis %s has no values", model.ErrInvalidParameter, name)
	}
	return Axis{Name: name, Values: values}, nil
}

// SelectAxis returns the single axis in axes.
func SelectAxis(axes []Axis) (Axis, error) {
	switch len(axes) {
	case 0:
		return Axis{}, fmt.Errorf("%w: none given", ErrAxisSelection)
	case 1:
		return axes[0], nil
	default:
		names := make([]string, len(axes))
		for i, a := range axes {
			names[i] = a.Name
		}
		return Axis{}, fmt.Errorf("%w: got %s", ErrAxisSelection, strings.Join(names, ", "))
	}
}

// SweepPoint is the batch run at one axis value.
type SweepPoint struct {
	Value  float64      `json:"value"`
	Params model.Params `json:"params"`
	Result *Result      `json:"result"`
}

// Sweep runs one batch per value of the single free rate in axes, holding
// the other rates at base. Every point reuses the runner's base seed, so
// points differ only by the swept rate.
func (r *Runner) Sweep(ctx context.Context, net *network.Network, base model.Params, axes []Axis, policy seeding.Policy) ([]SweepPoint, error) {
	axis, err := SelectAxis(axes)
	if err != nil {
		return nil, err
	}

	grid := make([]model.Params, len(axis.Values))
	for i, v := range axis.Values {
		p, err := base.With(axis.Name, v)
		if err != nil {
			return nil, err
		}
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("%s=%v: %w", axis.Name, v, err)
		}
		grid[i] = p
	}

	runner := r
	if r.config.Seed == 0 {
		pinned := *r
		pinned.config.Seed = randomSeed()
		runner = &pinned
	}

	points := make([]SweepPoint, 0, len(grid))
	for i, p := range grid {
		res, err := runner.Run(ctx, net, p, policy)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return points, err
			}
			return points, fmt.Errorf("%s=%v: %w", axis.Name, axis.Values[i], err)
		}
		points = append(points, SweepPoint{Value: axis.Values[i], Params: p, Result: res})
	}
	return points, nil
}
