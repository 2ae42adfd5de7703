// Package scaling fits wall-time scaling models to benchmark observations
// and extrapolates them to production input sizes.
//
// A benchmark series is a small set of (input size, wall time) pairs, e.g.
// a run on 5%, 10% and 20% of a dataset. Fit picks the lowest polynomial
// degree that explains the series well enough (R² threshold), and
// Model.Extrapolate evaluates that polynomial at the target size, flagging
// targets that sit far outside the sampled range.
package scaling

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

var (
	// ErrInsufficientData is returned when a series has too few observations
	// (or too few distinct sizes) to fit a model.
	ErrInsufficientData = errors.New("insufficient benchmark data")

	// ErrInvalidObservation is returned for non-positive or non-finite sizes and wall times.
	ErrInvalidObservation = errors.New("invalid observation")
)

// Observation is a single benchmark measurement.
type Observation struct {
	// Size is the input size, typically a percentage of the full dataset.
	Size float64 `json:"size" yaml:"size"`
	// WallSeconds is the measured wall-clock time in seconds.
	WallSeconds float64 `json:"wallSeconds" yaml:"wallSeconds"`
}

// Validate reports whether both fields are positive finite numbers.
func (o Observation) Validate() error {
	if !positive(o.Size) {
		return fmt.Errorf("%w: size %v must be > 0", ErrInvalidObservation, o.Size)
	}
	if !positive(o.WallSeconds) {
		return fmt.Errorf("%w: wall time %v must be > 0", ErrInvalidObservation, o.WallSeconds)
	}
	return nil
}

// Series is an ordered (by Size) sequence of observations.
type Series []Observation

// NewSeries validates the observations and returns them sorted by size.
// The input slice is not modified.
func NewSeries(obs []Observation) (Series, error) {
	s := make(Series, len(obs))
	for i, o := range obs {
		if err := o.Validate(); err != nil {
			return nil, fmt.Errorf("observation[%d]: %w", i, err)
		}
		s[i] = o
	}
	sort.SliceStable(s, func(i, j int) bool { return s[i].Size < s[j].Size })
	return s, nil
}

// Sizes returns the input sizes in series order.
func (s Series) Sizes() []float64 {
	out := make([]float64, len(s))
	for i, o := range s {
		out[i] = o.Size
	}
	return out
}

// WallTimes returns the wall times (seconds) in series order.
func (s Series) WallTimes() []float64 {
	out := make([]float64, len(s))
	for i, o := range s {
		out[i] = o.WallSeconds
	}
	return out
}

// MinSize returns the smallest observed size, or 0 for an empty series.
func (s Series) MinSize() float64 {
	if len(s) == 0 {
		return 0
	}
	m := s[0].Size
	for _, o := range s[1:] {
		m = math.Min(m, o.Size)
	}
	return m
}

// MaxSize returns the largest observed size, or 0 for an empty series.
func (s Series) MaxSize() float64 {
	m := 0.0
	for _, o := range s {
		m = math.Max(m, o.Size)
	}
	return m
}

// DistinctSizes counts the number of different input sizes.
func (s Series) DistinctSizes() int {
	seen := make(map[float64]struct{}, len(s))
	for _, o := range s {
		seen[o.Size] = struct{}{}
	}
	return len(seen)
}

func positive(v float64) bool {
	return v > 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}
