package budget

import (
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/HatiCode/corecast/pkg/scaling"
)

const tol = 1e-6

func approx(a, b float64) bool { return math.Abs(a-b) <= tol*math.Max(1, math.Abs(b)) }

func TestCoreTime(t *testing.T) {
	// 225 minutes on 8 cores.
	if got := CoreTime(225, HardwareProfile{Cores: 8}); got != 1800 {
		t.Errorf("CoreTime(225, 8) = %v, want 1800", got)
	}
	// Same run expressed in hours.
	if got := CoreTime(3.75, HardwareProfile{Cores: 8}); got != 30 {
		t.Errorf("CoreTime(3.75, 8) = %v, want 30", got)
	}
	// Efficiency never changes the core-hour definition.
	if got := CoreHours(13500, HardwareProfile{Cores: 8, Efficiency: 0.5}); got != 30 {
		t.Errorf("CoreHours(13500 s, 8) = %v, want 30", got)
	}
}

func TestHardwareProfile_Validate(t *testing.T) {
	tests := []struct {
		name    string
		hw      HardwareProfile
		wantErr bool
	}{
		{name: "defaults efficiency", hw: HardwareProfile{Cores: 4}},
		{name: "full efficiency", hw: HardwareProfile{Cores: 4, Efficiency: 1}},
		{name: "partial efficiency", hw: HardwareProfile{Cores: 4, Efficiency: 0.7}},
		{name: "zero cores", hw: HardwareProfile{Cores: 0}, wantErr: true},
		{name: "negative cores", hw: HardwareProfile{Cores: -2}, wantErr: true},
		{name: "efficiency above one", hw: HardwareProfile{Cores: 4, Efficiency: 1.2}, wantErr: true},
		{name: "negative efficiency", hw: HardwareProfile{Cores: 4, Efficiency: -0.5}, wantErr: true},
		{name: "NaN efficiency", hw: HardwareProfile{Cores: 4, Efficiency: math.NaN()}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.hw.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidHardware) {
				t.Errorf("error %v should wrap ErrInvalidHardware", err)
			}
		})
	}
}

func TestEffectiveWallSeconds(t *testing.T) {
	hw := HardwareProfile{Cores: 8, Efficiency: 0.75}
	if got := EffectiveWallSeconds(6000, hw); !approx(got, 1000) {
		t.Errorf("EffectiveWallSeconds = %v, want 1000", got)
	}
}

func TestParallelEfficiency(t *testing.T) {
	// 800 s serial, 125 s on 8 cores: speedup 6.4, efficiency 0.8.
	got, err := ParallelEfficiency(1, 800, 8, 125)
	if err != nil {
		t.Fatalf("ParallelEfficiency: %v", err)
	}
	if !approx(got, 0.8) {
		t.Errorf("efficiency = %v, want 0.8", got)
	}

	if _, err := ParallelEfficiency(0, 800, 8, 125); !errors.Is(err, ErrInvalidHardware) {
		t.Errorf("zero base cores error = %v, want ErrInvalidHardware", err)
	}
	if _, err := ParallelEfficiency(1, 800, 8, 0); err == nil {
		t.Error("zero wall time should fail")
	}
}

func TestApplySafetyFactors(t *testing.T) {
	factors := []SafetyFactor{{"failures", 1.4}, {"development", 2.0}, {"model", 1.2}}
	got, err := ApplySafetyFactors(30, factors)
	if err != nil {
		t.Fatalf("ApplySafetyFactors: %v", err)
	}
	if !approx(got, 100.8) {
		t.Errorf("ApplySafetyFactors(30, ...) = %v, want 100.8", got)
	}

	// Order does not change the number.
	reversed := []SafetyFactor{factors[2], factors[1], factors[0]}
	again, _ := ApplySafetyFactors(30, reversed)
	if !approx(again, got) {
		t.Errorf("reversed order = %v, want %v", again, got)
	}

	if got, _ := ApplySafetyFactors(42, nil); got != 42 {
		t.Errorf("no factors = %v, want 42", got)
	}
}

func TestApplySafetyFactors_Invalid(t *testing.T) {
	for _, v := range []float64{0, -1.5, math.NaN(), math.Inf(1)} {
		_, err := ApplySafetyFactors(30, []SafetyFactor{{"failures", 1.4}, {"bad", v}})
		if !errors.Is(err, ErrInvalidFactor) {
			t.Errorf("factor %v: error = %v, want ErrInvalidFactor", v, err)
		}
	}
}

func TestParseSafetyFactor(t *testing.T) {
	tests := []struct {
		in      string
		want    SafetyFactor
		wantErr bool
	}{
		{in: "failures=1.4", want: SafetyFactor{"failures", 1.4}},
		{in: " development = 2 ", want: SafetyFactor{"development", 2}},
		{in: "1.2", want: SafetyFactor{"", 1.2}},
		{in: "", wantErr: true},
		{in: "=1.2", wantErr: true},
		{in: "failures=", wantErr: true},
		{in: "failures=abc", wantErr: true},
		{in: "failures=0", wantErr: true},
		{in: "failures=-1", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseSafetyFactor(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseSafetyFactor(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidFactor) {
				t.Errorf("error %v should wrap ErrInvalidFactor", err)
			}
			if got != tt.want {
				t.Errorf("ParseSafetyFactor(%q) = %+v, want %+v", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseSafetyFactors(t *testing.T) {
	got, err := ParseSafetyFactors("failures=1.4, 2.0 ,model=1.2")
	if err != nil {
		t.Fatalf("ParseSafetyFactors: %v", err)
	}
	want := []SafetyFactor{{"failures", 1.4}, {"factor2", 2.0}, {"model", 1.2}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ParseSafetyFactors mismatch (-want +got):\n%s", diff)
	}

	if got, err := ParseSafetyFactors("  "); err != nil || got != nil {
		t.Errorf("empty list = %v, %v; want nil, nil", got, err)
	}
	if _, err := ParseSafetyFactors("a=1,b=0"); !errors.Is(err, ErrInvalidFactor) {
		t.Errorf("error = %v, want ErrInvalidFactor", err)
	}
}

func climateSeries(t *testing.T) scaling.Series {
	t.Helper()
	// 45 minutes at 20% of the data, scaling linearly.
	s, err := scaling.NewSeries([]scaling.Observation{
		{Size: 5, WallSeconds: 675},
		{Size: 10, WallSeconds: 1350},
		{Size: 20, WallSeconds: 2700},
	})
	if err != nil {
		t.Fatalf("NewSeries: %v", err)
	}
	return s
}

func TestEstimate_ClimateStudy(t *testing.T) {
	tests := []struct {
		name       string
		factors    []SafetyFactor
		multiplier float64
		total      float64
	}{
		{
			name:       "failures 1.4",
			factors:    []SafetyFactor{{"failures", 1.4}, {"development", 2.0}, {"model", 1.2}},
			multiplier: 3.36,
			total:      5040,
		},
		{
			name:       "failures 1.5",
			factors:    []SafetyFactor{{"failures", 1.5}, {"development", 2.0}, {"model", 1.2}},
			multiplier: 3.6,
			total:      5400,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := Estimate(Input{
				Series:     climateSeries(t),
				TargetSize: 100,
				Hardware:   HardwareProfile{Cores: 8},
				RunCount:   50,
				Factors:    tt.factors,
				MaxDegree:  3,
			})
			if err != nil {
				t.Fatalf("Estimate: %v", err)
			}
			if req.Model.Degree != 1 {
				t.Errorf("degree = %d, want 1", req.Model.Degree)
			}
			if !approx(req.WallSeconds, 13500) {
				t.Errorf("wall = %v s, want 13500 s", req.WallSeconds)
			}
			if !approx(req.WallTime().Minutes(), 225) {
				t.Errorf("wall = %v min, want 225", req.WallTime().Minutes())
			}
			if !approx(req.CoreHoursPerRun, 30) {
				t.Errorf("core-hours/run = %v, want 30", req.CoreHoursPerRun)
			}
			if !approx(req.BaseCoreHours, 1500) {
				t.Errorf("base = %v, want 1500", req.BaseCoreHours)
			}
			if !approx(req.SafetyMultiplier, tt.multiplier) {
				t.Errorf("multiplier = %v, want %v", req.SafetyMultiplier, tt.multiplier)
			}
			if !approx(req.TotalCoreHours, tt.total) {
				t.Errorf("total = %v, want %v", req.TotalCoreHours, tt.total)
			}
			if req.RangeWarning != nil {
				t.Errorf("unexpected range warning: %v", req.RangeWarning)
			}
			if req.PowerLaw == nil || !approx(req.PowerLaw.Exponent, 1) {
				t.Errorf("power law = %+v, want exponent 1", req.PowerLaw)
			}
		})
	}
}

func TestEstimate_RangeWarningIsNotFatal(t *testing.T) {
	req, err := Estimate(Input{
		Series:     climateSeries(t),
		TargetSize: 1000, // 50x the largest benchmark
		Hardware:   HardwareProfile{Cores: 4},
		RunCount:   1,
		MaxDegree:  1,
	})
	if err != nil {
		t.Fatalf("Estimate: %v", err)
	}
	if req.RangeWarning == nil {
		t.Fatal("expected a range warning")
	}
	if !approx(req.WallSeconds, 135000) {
		t.Errorf("wall = %v, want 135000", req.WallSeconds)
	}
}

func TestEstimate_SerialTimings(t *testing.T) {
	req, err := Estimate(Input{
		Series:        climateSeries(t),
		TargetSize:    100,
		Hardware:      HardwareProfile{Cores: 8, Efficiency: 0.75},
		RunCount:      1,
		MaxDegree:     1,
		SerialTimings: true,
	})
	if err != nil {
		t.Fatalf("Estimate: %v", err)
	}
	// 13500 s serial / (8 × 0.75) = 2250 s on 8 cores = 5 core-hours.
	if !approx(req.WallSeconds, 2250) {
		t.Errorf("wall = %v, want 2250", req.WallSeconds)
	}
	if !approx(req.CoreHoursPerRun, 5) {
		t.Errorf("core-hours/run = %v, want 5", req.CoreHoursPerRun)
	}
}

func TestEstimate_Errors(t *testing.T) {
	base := Input{
		Series:     climateSeries(t),
		TargetSize: 100,
		Hardware:   HardwareProfile{Cores: 8},
		RunCount:   10,
		MaxDegree:  3,
	}

	tests := []struct {
		name   string
		mutate func(*Input)
		want   error
	}{
		{
			name:   "single observation",
			mutate: func(in *Input) { in.Series = in.Series[:1] },
			want:   scaling.ErrInsufficientData,
		},
		{
			name:   "zero factor",
			mutate: func(in *Input) { in.Factors = []SafetyFactor{{"failures", 0}} },
			want:   ErrInvalidFactor,
		},
		{
			name:   "negative factor",
			mutate: func(in *Input) { in.Factors = []SafetyFactor{{"model", 1.2}, {"failures", -1}} },
			want:   ErrInvalidFactor,
		},
		{
			name:   "no cores",
			mutate: func(in *Input) { in.Hardware.Cores = 0 },
			want:   ErrInvalidHardware,
		},
		{
			name:   "no runs",
			mutate: func(in *Input) { in.RunCount = 0 },
			want:   ErrInvalidRunCount,
		},
		{
			name:   "zero target",
			mutate: func(in *Input) { in.TargetSize = 0 },
			want:   scaling.ErrInvalidTarget,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := base
			in.Series = append(scaling.Series(nil), base.Series...)
			tt.mutate(&in)
			_, err := Estimate(in)
			if !errors.Is(err, tt.want) {
				t.Errorf("Estimate error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestEstimateWithModel_DoesNotShareState(t *testing.T) {
	model, err := scaling.Fit(climateSeries(t), 3)
	if err != nil {
		t.Fatalf("Fit: %v", err)
	}
	factors := []SafetyFactor{{"failures", 1.4}}
	in := Input{
		Series:     climateSeries(t),
		TargetSize: 100,
		Hardware:   HardwareProfile{Cores: 8},
		RunCount:   1,
		Factors:    factors,
	}

	req, err := EstimateWithModel(model, in)
	if err != nil {
		t.Fatalf("EstimateWithModel: %v", err)
	}

	factors[0].Value = 99
	model.Coefficients[1] = 0

	if req.Factors[0].Value != 1.4 {
		t.Errorf("request factors changed with input: %v", req.Factors)
	}
	if req.Model.Coefficients[1] == 0 {
		t.Error("request model changed with input model")
	}
}
