package carepulse

import (
	"errors"
	"fmt"
)

// gridConfig holds configuration during card grid construction.
type gridConfig struct {
	dimensions   map[string][]string
	paramNames   map[string]string
	staticParams map[string]string
}

// GridOption configures card grid generation.
// GridOption implements the functional options pattern for [NewCardGrid].
type GridOption func(*gridConfig) error

// WithDimensions sets the dimension values for cartesian product expansion.
// Each key in the map becomes a template variable, and the cartesian product
// of all values generates the card combinations.
//
// A dimension whose key is a parameter of the card's resource fills that
// parameter; see [WithDimensionParams] to map differently named keys.
//
// Example:
//
//	WithDimensions(map[string][]string{
//	    "disease_name": {"Malaria", "Typhoid"},
//	    "year":         {"2023", "2024"},
//	})
//
// Returns an error if the map is empty, any dimension has no values,
// or any value is an empty string.
func WithDimensions(dims map[string][]string) GridOption {
	return func(cfg *gridConfig) error {
		if len(dims) == 0 {
			return errors.New("at least one dimension required")
		}
		for k, vals := range dims {
			if len(vals) == 0 {
				return fmt.Errorf("dimension '%s' has no values", k)
			}
			for i, v := range vals {
				if v == "" {
					return fmt.Errorf("dimension '%s' contains empty value at index %d", k, i)
				}
			}
		}
		cfg.dimensions = dims
		return nil
	}
}

// WithDimensionParams maps dimension keys to resource parameter names, for
// dimensions named differently from the parameter they fill.
//
// Accepts variadic dimension-parameter pairs. The number of arguments must
// be even.
//
// Example:
//
//	WithDimensionParams("disease", "disease_name")
func WithDimensionParams(pairs ...string) GridOption {
	return func(cfg *gridConfig) error {
		if len(pairs)%2 != 0 {
			return errors.New("WithDimensionParams requires an even number of arguments (dimension-parameter pairs)")
		}
		if cfg.paramNames == nil {
			cfg.paramNames = make(map[string]string)
		}
		for i := 0; i < len(pairs); i += 2 {
			cfg.paramNames[pairs[i]] = pairs[i+1]
		}
		return nil
	}
}

// WithGridParams adds fixed parameter values to all generated cards.
// On collision, these take precedence over dimension and templated values.
//
// Accepts variadic key-value pairs. The number of arguments must be even.
//
// Example:
//
//	WithGridParams("orgname", "Korle Bu")
func WithGridParams(keyValues ...string) GridOption {
	return func(cfg *gridConfig) error {
		if len(keyValues)%2 != 0 {
			return errors.New("WithGridParams requires an even number of arguments (key-value pairs)")
		}
		if cfg.staticParams == nil {
			cfg.staticParams = make(map[string]string)
		}
		for i := 0; i < len(keyValues); i += 2 {
			cfg.staticParams[keyValues[i]] = keyValues[i+1]
		}
		return nil
	}
}
