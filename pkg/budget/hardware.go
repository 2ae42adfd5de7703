// Package budget converts extrapolated wall times into core-hour requests
// using a deterministic policy (cores, parallel efficiency, run count,
// safety factors).
package budget

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidHardware is returned for non-positive core counts or an
// efficiency outside (0, 1].
var ErrInvalidHardware = errors.New("invalid hardware profile")

// HardwareProfile describes the allocation each run will use.
type HardwareProfile struct {
	// Cores is the number of CPU cores requested per run. Must be > 0.
	Cores int `json:"cores" yaml:"cores"`

	// Efficiency is the expected parallel efficiency in (0, 1].
	// Zero means 1.0 (perfect scaling). It only affects the estimate when
	// benchmark timings are serial and need converting to parallel wall time.
	Efficiency float64 `json:"efficiency,omitempty" yaml:"efficiency,omitempty"`
}

// Validate checks the profile, treating a zero efficiency as 1.
func (h HardwareProfile) Validate() error {
	if h.Cores <= 0 {
		return fmt.Errorf("%w: cores must be > 0, got %d", ErrInvalidHardware, h.Cores)
	}
	e := h.Efficiency
	if e == 0 {
		return nil
	}
	if math.IsNaN(e) || e < 0 || e > 1 {
		return fmt.Errorf("%w: efficiency must be in (0, 1], got %v", ErrInvalidHardware, e)
	}
	return nil
}

// EffectiveEfficiency returns Efficiency, or 1 when unset.
func (h HardwareProfile) EffectiveEfficiency() float64 {
	if h.Efficiency == 0 {
		return 1
	}
	return h.Efficiency
}

// CoreTime returns wall × cores in whatever unit wall is expressed in.
// Efficiency is not applied; allocated cores are billed whether busy or not.
func CoreTime(wall float64, hw HardwareProfile) float64 {
	return wall * float64(hw.Cores)
}

// CoreHours converts a wall time in seconds into core-hours.
func CoreHours(wallSeconds float64, hw HardwareProfile) float64 {
	return CoreTime(wallSeconds/3600, hw)
}

// EffectiveWallSeconds converts a serial (single-core) time into the
// expected wall time on hw: serial / (cores × efficiency).
func EffectiveWallSeconds(serialSeconds float64, hw HardwareProfile) float64 {
	return serialSeconds / (float64(hw.Cores) * hw.EffectiveEfficiency())
}

// ParallelEfficiency computes the observed efficiency of a run on cores
// relative to a baseline run on baseCores:
//
//	(baseSeconds × baseCores) / (seconds × cores)
//
// With baseCores == 1 this is speedup / cores.
func ParallelEfficiency(baseCores int, baseSeconds float64, cores int, seconds float64) (float64, error) {
	if baseCores <= 0 || cores <= 0 {
		return 0, fmt.Errorf("%w: core counts must be > 0", ErrInvalidHardware)
	}
	if baseSeconds <= 0 || seconds <= 0 {
		return 0, fmt.Errorf("wall times must be > 0")
	}
	return (baseSeconds * float64(baseCores)) / (seconds * float64(cores)), nil
}
