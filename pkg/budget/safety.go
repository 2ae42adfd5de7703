package budget

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ErrInvalidFactor is returned when a safety factor is not a positive finite number.
var ErrInvalidFactor = errors.New("invalid safety factor")

// SafetyFactor is a named multiplicative margin, e.g. {"failures", 1.4}.
type SafetyFactor struct {
	Name  string  `json:"name" yaml:"name"`
	Value float64 `json:"value" yaml:"value"`
}

func (f SafetyFactor) String() string {
	return fmt.Sprintf("%s=%g", f.Name, f.Value)
}

func (f SafetyFactor) validate() error {
	if f.Value <= 0 || math.IsNaN(f.Value) || math.IsInf(f.Value, 0) {
		return fmt.Errorf("%w: %q=%v must be > 0", ErrInvalidFactor, f.Name, f.Value)
	}
	return nil
}

// ParseSafetyFactor parses "name=value" or a bare value.
//
// Examples:
//   - "failures=1.4" → {failures 1.4}
//   - "2.0"          → {"" 2.0}
//
// Non-positive values are rejected.
func ParseSafetyFactor(s string) (SafetyFactor, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return SafetyFactor{}, fmt.Errorf("%w: empty factor", ErrInvalidFactor)
	}

	name, raw, named := strings.Cut(s, "=")
	if !named {
		name, raw = "", s
	}
	name = strings.TrimSpace(name)
	if named && name == "" {
		return SafetyFactor{}, fmt.Errorf("%w: missing name in %q", ErrInvalidFactor, s)
	}

	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return SafetyFactor{}, fmt.Errorf("%w: %q: %v", ErrInvalidFactor, s, err)
	}
	f := SafetyFactor{Name: name, Value: v}
	if err := f.validate(); err != nil {
		return SafetyFactor{}, err
	}
	return f, nil
}

// ParseSafetyFactors parses a comma-separated list of factors.
// Unnamed factors are called factor1, factor2, ... by position.
func ParseSafetyFactors(s string) ([]SafetyFactor, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]SafetyFactor, 0, len(parts))
	for i, p := range parts {
		f, err := ParseSafetyFactor(p)
		if err != nil {
			return nil, err
		}
		if f.Name == "" {
			f.Name = fmt.Sprintf("factor%d", i+1)
		}
		out = append(out, f)
	}
	return out, nil
}

// SafetyMultiplier returns the product of all factor values. An empty list
// yields 1.
func SafetyMultiplier(factors []SafetyFactor) (float64, error) {
	m := 1.0
	for _, f := range factors {
		if err := f.validate(); err != nil {
			return 0, err
		}
		m *= f.Value
	}
	return m, nil
}

// ApplySafetyFactors multiplies base by every factor, in order.
func ApplySafetyFactors(base float64, factors []SafetyFactor) (float64, error) {
	m, err := SafetyMultiplier(factors)
	if err != nil {
		return 0, err
	}
	return base * m, nil
}
