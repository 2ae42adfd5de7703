package study

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/HatiCode/corecast/pkg/budget"
	"github.com/HatiCode/corecast/pkg/scaling"
)

const climateStudy = `
name: climate-ensemble
observations:
  - {size: 20, wall: "0:45:00"}
  - {size: 5, wall: "0:11:15"}
  - {size: 10, wallSeconds: 1350}
target: 100
hardware:
  cores: 8
runs: 50
factors:
  - {name: failures, value: 1.4}
  - {name: development, value: 2.0}
  - {value: 1.2}
fit:
  maxDegree: 2
`

func TestParse_Climate(t *testing.T) {
	s, err := Parse(strings.NewReader(climateStudy))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if s.Name != "climate-ensemble" {
		t.Errorf("Name = %q", s.Name)
	}

	series, err := s.Series()
	if err != nil {
		t.Fatalf("Series: %v", err)
	}
	wantSeries := scaling.Series{
		{Size: 5, WallSeconds: 675},
		{Size: 10, WallSeconds: 1350},
		{Size: 20, WallSeconds: 2700},
	}
	if diff := cmp.Diff(wantSeries, series); diff != "" {
		t.Errorf("series mismatch (-want +got):\n%s", diff)
	}

	in := s.ToInput(series)
	if in.MaxDegree != 2 || in.RunCount != 50 || in.Hardware.Cores != 8 {
		t.Errorf("input = %+v", in)
	}
	wantFactors := []budget.SafetyFactor{
		{Name: "failures", Value: 1.4},
		{Name: "development", Value: 2.0},
		{Name: "factor3", Value: 1.2},
	}
	if diff := cmp.Diff(wantFactors, in.Factors); diff != "" {
		t.Errorf("factors mismatch (-want +got):\n%s", diff)
	}

	req, err := budget.Estimate(in)
	if err != nil {
		t.Fatalf("Estimate: %v", err)
	}
	if math.Abs(req.TotalCoreHours-5040) > 1e-6 {
		t.Errorf("total = %v, want 5040", req.TotalCoreHours)
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "study.yaml")
	if err := os.WriteFile(path, []byte(climateStudy), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoad_Examples(t *testing.T) {
	for _, name := range []string{"study.yaml", "study-prometheus.yaml"} {
		t.Run(name, func(t *testing.T) {
			s, err := Load(filepath.Join("..", "..", "examples", "climate", name))
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if s.Target != 100 || s.Hardware.Cores != 8 || len(s.Factors) != 3 {
				t.Errorf("study = %+v", s)
			}
		})
	}
}

func TestParse_Source(t *testing.T) {
	doc := `
source:
  kind: prometheus
  config:
    url: http://prometheus:9090
    query: benchmark_wall_seconds{job="climate"}
target: 100
hardware: {cores: 16, efficiency: 0.8, serialTimings: true}
`
	s, err := Parse(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if s.Source == nil || s.Source.Kind != "prometheus" || s.Source.Config["query"] == "" {
		t.Fatalf("source = %+v", s.Source)
	}
	in := s.ToInput(nil)
	if in.RunCount != 1 {
		t.Errorf("RunCount = %d, want default 1", in.RunCount)
	}
	if in.MaxDegree != scaling.MaxSupportedDegree {
		t.Errorf("MaxDegree = %d, want %d", in.MaxDegree, scaling.MaxSupportedDegree)
	}
	if !in.SerialTimings || in.Hardware.Efficiency != 0.8 {
		t.Errorf("hardware = %+v serial=%v", in.Hardware, in.SerialTimings)
	}
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{name: "empty", doc: ""},
		{name: "unknown key", doc: "target: 1\nhardware: {cores: 1}\nobservations: [{size: 1, wallSeconds: 1}]\ncolour: red\n"},
		{name: "no observations", doc: "target: 1\nhardware: {cores: 1}\n"},
		{name: "both sources", doc: "target: 1\nhardware: {cores: 1}\nobservations: [{size: 1, wallSeconds: 1}]\nsource: {kind: log}\n"},
		{name: "source without kind", doc: "target: 1\nhardware: {cores: 1}\nsource: {config: {path: x}}\n"},
		{name: "no target", doc: "hardware: {cores: 1}\nobservations: [{size: 1, wallSeconds: 1}]\n"},
		{name: "no cores", doc: "target: 1\nobservations: [{size: 1, wallSeconds: 1}]\n"},
		{name: "negative runs", doc: "target: 1\nruns: -1\nhardware: {cores: 1}\nobservations: [{size: 1, wallSeconds: 1}]\n"},
		{name: "degree too high", doc: "target: 1\nhardware: {cores: 1}\nobservations: [{size: 1, wallSeconds: 1}]\nfit: {maxDegree: 5}\n"},
		{name: "wall twice", doc: "target: 1\nhardware: {cores: 1}\nobservations: [{size: 1, wall: '0:01:00', wallSeconds: 60}]\n"},
		{name: "bad yaml", doc: "target: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tt.doc))
			if !errors.Is(err, ErrInvalidStudy) {
				t.Errorf("Parse() error = %v, want ErrInvalidStudy", err)
			}
		})
	}
}

func TestSeries_Errors(t *testing.T) {
	s := Study{Observations: []Observation{{Size: 1, Wall: "soon"}}}
	if _, err := s.Series(); err == nil {
		t.Error("expected error for unparsable wall time")
	}

	s = Study{Observations: []Observation{{Size: -1, WallSeconds: 10}}}
	if _, err := s.Series(); !errors.Is(err, scaling.ErrInvalidObservation) {
		t.Errorf("error = %v, want ErrInvalidObservation", err)
	}
}
