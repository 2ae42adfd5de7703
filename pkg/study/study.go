// Package study loads YAML study files that describe a full estimation:
// benchmark observations (inline or from a source), the production target,
// hardware, run count, safety factors and fit options.
//
//	name: climate-ensemble
//	observations:
//	  - {size: 5, wall: "0:11:15"}
//	  - {size: 10, wall: "0:22:30"}
//	  - {size: 20, wall: "0:45:00"}
//	target: 100
//	hardware: {cores: 8, efficiency: 0.9}
//	runs: 50
//	factors:
//	  - {name: failures, value: 1.4}
//	  - {name: development, value: 2.0}
//	  - {name: scaling, value: 1.2}
//	fit: {maxDegree: 3, minRSquared: 0.98, rangeMultiple: 10}
package study

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/HatiCode/corecast/pkg/budget"
	"github.com/HatiCode/corecast/pkg/scaling"
	"github.com/HatiCode/corecast/pkg/walltime"
)

// ErrInvalidStudy is returned for study files that fail validation.
var ErrInvalidStudy = errors.New("invalid study")

// Study is the decoded form of a study file.
type Study struct {
	Name         string                `yaml:"name"`
	Observations []Observation         `yaml:"observations"`
	Source       *SourceSpec           `yaml:"source,omitempty"`
	Target       float64               `yaml:"target"`
	Hardware     Hardware              `yaml:"hardware"`
	Runs         int                   `yaml:"runs"`
	Factors      []budget.SafetyFactor `yaml:"factors"`
	Fit          FitOptions            `yaml:"fit"`
}

// Observation accepts the wall time either as seconds or as a clock string.
type Observation struct {
	Size        float64 `yaml:"size"`
	Wall        string  `yaml:"wall,omitempty"`
	WallSeconds float64 `yaml:"wallSeconds,omitempty"`
}

// SourceSpec points at an observation source instead of inline observations.
// Config keys are those accepted by sources.New.
type SourceSpec struct {
	Kind   string            `yaml:"kind"`
	Config map[string]string `yaml:"config"`
}

// Hardware mirrors budget.HardwareProfile.
type Hardware struct {
	Cores      int     `yaml:"cores"`
	Efficiency float64 `yaml:"efficiency,omitempty"`
	Serial     bool    `yaml:"serialTimings,omitempty"`
}

// FitOptions tunes the scaling fit. A nil MaxDegree means the maximum supported.
type FitOptions struct {
	MaxDegree     *int    `yaml:"maxDegree,omitempty"`
	MinRSquared   float64 `yaml:"minRSquared,omitempty"`
	RangeMultiple float64 `yaml:"rangeMultiple,omitempty"`
	StrictRange   bool    `yaml:"strictRange,omitempty"`
}

// Load reads and validates the study file at path.
func Load(path string) (Study, error) {
	f, err := os.Open(path)
	if err != nil {
		return Study{}, fmt.Errorf("open study: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse decodes and validates one study document. Unknown keys are rejected.
func Parse(r io.Reader) (Study, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Study{}, fmt.Errorf("read study: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var s Study
	if err := dec.Decode(&s); err != nil {
		if errors.Is(err, io.EOF) {
			return Study{}, fmt.Errorf("%w: empty document", ErrInvalidStudy)
		}
		return Study{}, fmt.Errorf("%w: %v", ErrInvalidStudy, err)
	}
	if err := s.Validate(); err != nil {
		return Study{}, err
	}
	return s, nil
}

// Validate checks the structural rules of a study. Numeric rules (positive
// sizes, factors > 0) are enforced again by the estimation itself.
func (s Study) Validate() error {
	if len(s.Observations) > 0 && s.Source != nil {
		return fmt.Errorf("%w: set either observations or source, not both", ErrInvalidStudy)
	}
	if len(s.Observations) == 0 && s.Source == nil {
		return fmt.Errorf("%w: observations or source required", ErrInvalidStudy)
	}
	if s.Source != nil && s.Source.Kind == "" {
		return fmt.Errorf("%w: source.kind required", ErrInvalidStudy)
	}
	if s.Target <= 0 {
		return fmt.Errorf("%w: target must be > 0", ErrInvalidStudy)
	}
	if s.Hardware.Cores <= 0 {
		return fmt.Errorf("%w: hardware.cores must be > 0", ErrInvalidStudy)
	}
	if s.Runs < 0 {
		return fmt.Errorf("%w: runs must be >= 0", ErrInvalidStudy)
	}
	if d := s.Fit.MaxDegree; d != nil && (*d < 0 || *d > scaling.MaxSupportedDegree) {
		return fmt.Errorf("%w: fit.maxDegree must be in [0, %d]", ErrInvalidStudy, scaling.MaxSupportedDegree)
	}
	for i, o := range s.Observations {
		if o.Wall != "" && o.WallSeconds != 0 {
			return fmt.Errorf("%w: observation[%d]: set wall or wallSeconds, not both", ErrInvalidStudy, i)
		}
	}
	return nil
}

// Series converts the inline observations.
func (s Study) Series() (scaling.Series, error) {
	obs := make([]scaling.Observation, len(s.Observations))
	for i, o := range s.Observations {
		secs := o.WallSeconds
		if o.Wall != "" {
			v, err := walltime.ParseSeconds(o.Wall)
			if err != nil {
				return nil, fmt.Errorf("observation[%d]: %w", i, err)
			}
			secs = v
		}
		obs[i] = scaling.Observation{Size: o.Size, WallSeconds: secs}
	}
	return scaling.NewSeries(obs)
}

// ToInput builds a budget.Input from the study using series as the
// observations (typically Series() or the result of a source). Runs
// defaults to 1.
func (s Study) ToInput(series scaling.Series) budget.Input {
	maxDegree := scaling.MaxSupportedDegree
	if s.Fit.MaxDegree != nil {
		maxDegree = *s.Fit.MaxDegree
	}
	runs := s.Runs
	if runs == 0 {
		runs = 1
	}

	factors := make([]budget.SafetyFactor, len(s.Factors))
	for i, f := range s.Factors {
		if f.Name == "" {
			f.Name = fmt.Sprintf("factor%d", i+1)
		}
		factors[i] = f
	}

	return budget.Input{
		Series:        series,
		TargetSize:    s.Target,
		Hardware:      budget.HardwareProfile{Cores: s.Hardware.Cores, Efficiency: s.Hardware.Efficiency},
		RunCount:      runs,
		Factors:       factors,
		MaxDegree:     maxDegree,
		MinRSquared:   s.Fit.MinRSquared,
		RangeMultiple: s.Fit.RangeMultiple,
		SerialTimings: s.Hardware.Serial,
	}
}
