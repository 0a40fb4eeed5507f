// Package strategy holds the pure signal engines and the registry that
// resolves them. A strategy maps a candle window to a SignalResult and does
// no I/O; given identical input it must produce identical output.
package strategy

import (
	"fmt"

	"trader/internal/schema"
)

// Params are strategy parameters by name. Integer-valued parameters are
// carried as float64 and coerced during validation.
type Params map[string]float64

// Int reads an integer parameter.
func (p Params) Int(key string) int {
	return int(p[key])
}

// Float reads a float parameter.
func (p Params) Float(key string) float64 {
	return p[key]
}

// ParamKind is the declared type of a parameter.
type ParamKind string

const (
	ParamInteger ParamKind = "integer"
	ParamNumber  ParamKind = "number"
)

// ParamSpec declares one parameter's type, default and valid range.
type ParamSpec struct {
	Kind        ParamKind
	Default     float64
	Min         float64
	Max         float64
	Description string
}

// ParamSchema maps parameter names to their specs.
type ParamSchema map[string]ParamSpec

// Strategy is the contract every signal engine implements.
type Strategy interface {
	// ID is the registry identifier.
	ID() string
	// Compute evaluates the window and returns a signal. Insufficient data
	// yields a hold signal, not an error; errors are reserved for invalid
	// parameters.
	Compute(window []schema.Candle, params Params) (schema.SignalResult, error)
	// RequiresVolume reports whether the strategy needs a usable volume column.
	RequiresVolume() bool
	// DefaultParams returns the default parameter set.
	DefaultParams() Params
	// Schema describes the valid parameters.
	Schema() ParamSchema
}

// ValidateParams applies defaults and range-checks params against a schema.
// Violations are configuration errors and abort before any market interaction.
func ValidateParams(schema ParamSchema, params Params) (Params, error) {
	out := make(Params, len(schema))
	for name, spec := range schema {
		out[name] = spec.Default
	}
	for name, value := range params {
		spec, ok := schema[name]
		if !ok {
			return nil, fmt.Errorf("unknown parameter %q", name)
		}
		if spec.Kind == ParamInteger && value != float64(int64(value)) {
			return nil, fmt.Errorf("parameter %q must be an integer, got %v", name, value)
		}
		if value < spec.Min {
			return nil, fmt.Errorf("parameter %q must be >= %v, got %v", name, spec.Min, value)
		}
		if value > spec.Max {
			return nil, fmt.Errorf("parameter %q must be <= %v, got %v", name, spec.Max, value)
		}
		out[name] = value
	}
	return out, nil
}

func closes(window []schema.Candle) []float64 {
	out := make([]float64, len(window))
	for i, c := range window {
		out[i] = c.Close
	}
	return out
}

func highs(window []schema.Candle) []float64 {
	out := make([]float64, len(window))
	for i, c := range window {
		out[i] = c.High
	}
	return out
}

func lows(window []schema.Candle) []float64 {
	out := make([]float64, len(window))
	for i, c := range window {
		out[i] = c.Low
	}
	return out
}

func volumes(window []schema.Candle) []float64 {
	out := make([]float64, len(window))
	for i, c := range window {
		out[i] = c.Volume
	}
	return out
}

func ptr(v float64) *float64 { return &v }

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
