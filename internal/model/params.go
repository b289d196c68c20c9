package model

import (
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/go-playground/validator/v10"
)

// ErrInvalidParameter is returned for negative or non-finite rates.
var ErrInvalidParameter = errors.New("invalid parameter")

var validate = validator.New()

// Params holds the five rates of the model. All must be non-negative.
type Params struct {
	BetaB   float64 `json:"beta_b" yaml:"beta_b" validate:"gte=0"`   // black infection per edge
	BetaW   float64 `json:"beta_w" yaml:"beta_w" validate:"gte=0"`   // white infection per edge
	Epsilon float64 `json:"epsilon" yaml:"epsilon" validate:"gte=0"` // white worm activation
	Gamma   float64 `json:"gamma" yaml:"gamma" validate:"gte=0"`     // user remediation when prompted
	Mu      float64 `json:"mu" yaml:"mu" validate:"gte=0"`           // white worm remediation
}

// Validate rejects negative, NaN and infinite rates.
func (p Params) Validate() error {
	if err := validate.Struct(p); err != nil {
		return formatValidationError(err)
	}
	rates := p.byName()
	for _, name := range ParamNames {
		if math.IsInf(rates[name], 1) {
			return fmt.Errorf("%w: %s must be finite", ErrInvalidParameter, name)
		}
	}
	return nil
}

// Get returns the rate named by its configuration key (beta_b, beta_w,
// epsilon, gamma, mu).
func (p Params) Get(name string) (float64, bool) {
	v, ok := p.byName()[name]
	return v, ok
}

// With returns a copy of p with the named rate replaced.
func (p Params) With(name string, value float64) (Params, error) {
	switch name {
	case "beta_b":
		p.BetaB = value
	case "beta_w":
		p.BetaW = value
	case "epsilon":
		p.Epsilon = value
	case "gamma":
		p.Gamma = value
	case "mu":
		p.Mu = value
	default:
		return p, fmt.Errorf("%w: unknown rate %q", ErrInvalidParameter, name)
	}
	return p, nil
}

// ParamNames lists the rate keys in canonical order.
var ParamNames = []string{"beta_b", "beta_w", "epsilon", "gamma", "mu"}

func (p Params) byName() map[string]float64 {
	return map[string]float64{
		"beta_b":  p.BetaB,
		"beta_w":  p.BetaW,
		"epsilon": p.Epsilon,
		"gamma":   p.Gamma,
		"mu":      p.Mu,
	}
}

// Tag renders the rates as a filename fragment, e.g. bB1.1_bW0.5_e1_g0.2_m1.
func (p Params) Tag() string {
	return "bB" + formatRate(p.BetaB) +
		"_bW" + formatRate(p.BetaW) +
		"_e" + formatRate(p.Epsilon) +
		"_g" + formatRate(p.Gamma) +
		"_m" + formatRate(p.Mu)
}

func formatRate(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// formatValidationError converts validator errors to a user-friendly error
// wrapping ErrInvalidParameter.
func formatValidationError(err error) error {
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return fmt.Errorf("%w: %v", ErrInvalidParameter, err)
	}

	for _, e := range validationErrs {
		switch e.Tag() {
		case "gte":
			return fmt.Errorf("%w: %s must be at least %s, got %v", ErrInvalidParameter, e.Field(), e.Param(), e.Value())
		default:
			return fmt.Errorf("%w: %s failed %s", ErrInvalidParameter, e.Field(), e.Tag())
		}
	}
	return fmt.Errorf("%w: %v", ErrInvalidParameter, err)
}
