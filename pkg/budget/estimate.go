package budget

import (
	"errors"
	"fmt"
	"time"

	"github.com/HatiCode/corecast/pkg/scaling"
	"github.com/HatiCode/corecast/pkg/walltime"
)

// ErrInvalidRunCount is returned when the run count is not positive.
var ErrInvalidRunCount = errors.New("invalid run count")

// Input is everything Estimate needs.
type Input struct {
	// Series holds the benchmark observations.
	Series scaling.Series

	// TargetSize is the production input size, in the same units as the
	// observation sizes (e.g. 100 for the full dataset when sizes are percentages).
	TargetSize float64

	Hardware HardwareProfile

	// RunCount is how many production runs the request must cover. Must be > 0.
	RunCount int

	// Factors are applied multiplicatively in the given order.
	Factors []SafetyFactor

	// MaxDegree caps the fitted polynomial degree (0..3).
	MaxDegree int

	// MinRSquared is the acceptance threshold for a degree. <= 0 uses 0.98.
	MinRSquared float64

	// RangeMultiple controls when extrapolation is flagged. <= 0 uses 10.
	RangeMultiple float64

	// SerialTimings marks the observations as single-core timings; the
	// extrapolated time is then divided by cores × efficiency.
	SerialTimings bool
}

// Request is a computed resource request. It is a value: nothing in it is
// shared with the Input it was derived from.
type Request struct {
	Model      scaling.Model     `json:"model"`
	PowerLaw   *scaling.PowerLaw `json:"powerLaw,omitempty"`
	TargetSize float64           `json:"targetSize"`

	// WallSeconds is the extrapolated wall time of one production run.
	WallSeconds float64         `json:"wallSeconds"`
	Hardware    HardwareProfile `json:"hardware"`

	CoreHoursPerRun  float64        `json:"coreHoursPerRun"`
	RunCount         int            `json:"runCount"`
	BaseCoreHours    float64        `json:"baseCoreHours"`
	Factors          []SafetyFactor `json:"factors"`
	SafetyMultiplier float64        `json:"safetyMultiplier"`
	TotalCoreHours   float64        `json:"totalCoreHours"`

	// RangeWarning is set when the target lies far outside the sampled range.
	RangeWarning *scaling.ExtrapolationRangeError `json:"rangeWarning,omitempty"`
}

// WallTime returns WallSeconds as a duration, saturating at the largest
// time.Duration for estimates beyond its range.
func (r Request) WallTime() time.Duration {
	return walltime.FromSeconds(r.WallSeconds)
}

// Estimate fits the series and runs the full pipeline:
//
//	fit → extrapolate → (serial adjust) → core-hours/run → × runs → × safety
//
// A target far outside the sampled range does not fail the estimate; it is
// reported in Request.RangeWarning.
func Estimate(in Input) (Request, error) {
	if err := validate(in); err != nil {
		return Request{}, err
	}
	model, err := scaling.FitWithThreshold(in.Series, in.MaxDegree, in.MinRSquared)
	if err != nil {
		return Request{}, fmt.Errorf("fit: %w", err)
	}
	return estimate(model, in)
}

// EstimateWithModel runs the pipeline with a model fitted earlier for
// in.Series.
func EstimateWithModel(model scaling.Model, in Input) (Request, error) {
	if err := validate(in); err != nil {
		return Request{}, err
	}
	return estimate(model, in)
}

func validate(in Input) error {
	if err := in.Hardware.Validate(); err != nil {
		return err
	}
	if in.RunCount <= 0 {
		return fmt.Errorf("%w: runs must be > 0, got %d", ErrInvalidRunCount, in.RunCount)
	}
	if _, err := SafetyMultiplier(in.Factors); err != nil {
		return err
	}
	return nil
}

func estimate(model scaling.Model, in Input) (Request, error) {
	wall, err := model.Extrapolate(in.TargetSize, in.RangeMultiple)
	var rangeErr *scaling.ExtrapolationRangeError
	if err != nil && !errors.As(err, &rangeErr) {
		return Request{}, fmt.Errorf("extrapolate: %w", err)
	}

	if in.SerialTimings {
		wall = EffectiveWallSeconds(wall, in.Hardware)
	}

	perRun := CoreHours(wall, in.Hardware)
	base := perRun * float64(in.RunCount)
	multiplier, err := SafetyMultiplier(in.Factors)
	if err != nil {
		return Request{}, err
	}

	req := Request{
		Model:            cloneModel(model),
		TargetSize:       in.TargetSize,
		WallSeconds:      wall,
		Hardware:         in.Hardware,
		CoreHoursPerRun:  perRun,
		RunCount:         in.RunCount,
		BaseCoreHours:    base,
		Factors:          append([]SafetyFactor(nil), in.Factors...),
		SafetyMultiplier: multiplier,
		TotalCoreHours:   base * multiplier,
		RangeWarning:     rangeErr,
	}

	if pl, err := scaling.FitPowerLaw(in.Series); err == nil {
		req.PowerLaw = &pl
	}
	return req, nil
}

func cloneModel(m scaling.Model) scaling.Model {
	m.Coefficients = append([]float64(nil), m.Coefficients...)
	return m
}
