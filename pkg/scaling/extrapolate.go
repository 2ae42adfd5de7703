package scaling

import (
	"errors"
	"fmt"
)

// DefaultRangeMultiple is how far past the largest sampled size a target may
// lie before extrapolation is flagged.
const DefaultRangeMultiple = 10.0

var (
	// ErrInvalidTarget is returned for non-positive target sizes and for
	// models that predict a non-positive wall time at the target.
	ErrInvalidTarget = errors.New("invalid extrapolation target")

	// ErrExtrapolationRange is the sentinel wrapped by ExtrapolationRangeError.
	ErrExtrapolationRange = errors.New("target outside sampled range")
)

// ExtrapolationRangeError signals that a target lies more than Multiple times
// beyond the largest observed size. It is a warning: the value returned
// alongside it is still the model's prediction.
type ExtrapolationRangeError struct {
	Target      float64 `json:"target"`
	MaxObserved float64 `json:"maxObserved"`
	Multiple    float64 `json:"multiple"`
}

func (e *ExtrapolationRangeError) Error() string {
	return fmt.Sprintf("target size %g is %.1fx the largest benchmarked size %g (limit %gx); polynomial extrapolation is unreliable",
		e.Target, e.Target/e.MaxObserved, e.MaxObserved, e.Multiple)
}

func (e *ExtrapolationRangeError) Unwrap() error { return ErrExtrapolationRange }

// Extrapolate evaluates m at target with DefaultRangeMultiple.
func Extrapolate(m Model, target float64) (float64, error) {
	return m.Extrapolate(target, DefaultRangeMultiple)
}

// Extrapolate evaluates the model at target.
//
// If target exceeds MaxSize × rangeMultiple the prediction is returned
// together with an *ExtrapolationRangeError; callers decide whether to
// proceed. rangeMultiple <= 0 selects DefaultRangeMultiple.
func (m Model) Extrapolate(target, rangeMultiple float64) (float64, error) {
	if !positive(target) {
		return 0, fmt.Errorf("%w: target size %v must be > 0", ErrInvalidTarget, target)
	}
	if rangeMultiple <= 0 {
		rangeMultiple = DefaultRangeMultiple
	}

	v := m.Predict(target)
	if !positive(v) {
		return 0, fmt.Errorf("%w: model predicts %v s at size %v", ErrInvalidTarget, v, target)
	}

	if m.MaxSize > 0 && target > m.MaxSize*rangeMultiple {
		return v, &ExtrapolationRangeError{
			Target:      target,
			MaxObserved: m.MaxSize,
			Multiple:    rangeMultiple,
		}
	}
	return v, nil
}
