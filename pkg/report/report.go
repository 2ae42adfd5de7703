// Package report renders resource requests for humans and scripts.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/HatiCode/corecast/pkg/budget"
	"github.com/HatiCode/corecast/pkg/walltime"
)

// Output formats accepted by Write.
const (
	FormatText = "text"
	FormatKV   = "kv"
	FormatJSON = "json"
)

// Report is the flattened, printable view of a budget.Request.
type Report struct {
	Degree          int       `json:"degree"`
	Coefficients    []float64 `json:"coefficients"`
	RSquared        float64   `json:"rSquared"`
	ScalingExponent *float64  `json:"scalingExponent,omitempty"`

	TargetSize     float64 `json:"targetSize"`
	WallSeconds    float64 `json:"wallSeconds"`
	WallClock      string  `json:"wallClock"`
	SlurmTimeLimit string  `json:"slurmTimeLimit"`

	Cores      int     `json:"cores"`
	Efficiency float64 `json:"efficiency"`

	CoreHoursPerRun  float64               `json:"coreHoursPerRun"`
	Runs             int                   `json:"runs"`
	BaseCoreHours    float64               `json:"baseCoreHours"`
	Factors          []budget.SafetyFactor `json:"factors"`
	SafetyMultiplier float64               `json:"safetyMultiplier"`
	TotalCoreHours   float64               `json:"totalCoreHours"`

	Warnings []string `json:"warnings,omitempty"`
}

// New builds a Report from a computed request.
func New(req budget.Request) Report {
	r := Report{
		Degree:           req.Model.Degree,
		Coefficients:     append([]float64(nil), req.Model.Coefficients...),
		RSquared:         req.Model.RSquared,
		TargetSize:       req.TargetSize,
		WallSeconds:      req.WallSeconds,
		WallClock:        walltime.FormatSeconds(req.WallSeconds),
		SlurmTimeLimit:   walltime.FormatSlurmSeconds(req.WallSeconds),
		Cores:            req.Hardware.Cores,
		Efficiency:       req.Hardware.EffectiveEfficiency(),
		CoreHoursPerRun:  req.CoreHoursPerRun,
		Runs:             req.RunCount,
		BaseCoreHours:    req.BaseCoreHours,
		Factors:          append([]budget.SafetyFactor{}, req.Factors...),
		SafetyMultiplier: req.SafetyMultiplier,
		TotalCoreHours:   req.TotalCoreHours,
	}
	if req.PowerLaw != nil {
		exp := req.PowerLaw.Exponent
		r.ScalingExponent = &exp
	}
	if req.RangeWarning != nil {
		r.Warnings = append(r.Warnings, req.RangeWarning.Error())
	}
	return r
}

// Write renders r in the given format.
func Write(w io.Writer, r Report, format string) error {
	switch format {
	case "", FormatText:
		return WriteText(w, r)
	case FormatKV:
		return WriteKV(w, r)
	case FormatJSON:
		return WriteJSON(w, r)
	default:
		return fmt.Errorf("unknown output format %q (must be text, kv or json)", format)
	}
}

// WriteText renders an aligned human-readable summary.
func WriteText(w io.Writer, r Report) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	fmt.Fprintf(tw, "Scaling model:\t%s (R² = %.4f)\n", polynomial(r.Coefficients), r.RSquared)
	fmt.Fprintf(tw, "Degree:\t%d\n", r.Degree)
	if r.ScalingExponent != nil {
		fmt.Fprintf(tw, "Scaling exponent:\t%.3f\n", *r.ScalingExponent)
	}
	fmt.Fprintf(tw, "Target size:\t%g\n", r.TargetSize)
	fmt.Fprintf(tw, "Wall time per run:\t%s (%.0f s)\n", r.WallClock, r.WallSeconds)
	fmt.Fprintf(tw, "Slurm time limit:\t%s\n", r.SlurmTimeLimit)
	fmt.Fprintf(tw, "Hardware:\t%d cores @ %.0f%% efficiency\n", r.Cores, r.Efficiency*100)
	fmt.Fprintf(tw, "Core-hours per run:\t%.2f\n", r.CoreHoursPerRun)
	fmt.Fprintf(tw, "Runs:\t%d\n", r.Runs)
	fmt.Fprintf(tw, "Base core-hours:\t%.2f\n", r.BaseCoreHours)
	for _, f := range r.Factors {
		fmt.Fprintf(tw, "  × %s\t%g\n", f.Name, f.Value)
	}
	fmt.Fprintf(tw, "Safety multiplier:\t%.4g\n", r.SafetyMultiplier)
	fmt.Fprintf(tw, "Total core-hours:\t%.2f\n", r.TotalCoreHours)
	if err := tw.Flush(); err != nil {
		return err
	}

	for _, warning := range r.Warnings {
		if _, err := fmt.Fprintf(w, "WARNING: %s\n", warning); err != nil {
			return err
		}
	}
	return nil
}

// WriteKV renders one key=value pair per line, suitable for eval or grep.
// Factors appear as factor.<name>=<value>, warnings as warning=<text>.
func WriteKV(w io.Writer, r Report) error {
	coeffs := make([]string, len(r.Coefficients))
	for i, c := range r.Coefficients {
		coeffs[i] = num(c)
	}

	lines := []string{
		"degree=" + strconv.Itoa(r.Degree),
		"coefficients=" + strings.Join(coeffs, ","),
		"r_squared=" + strconv.FormatFloat(r.RSquared, 'f', 6, 64),
	}
	if r.ScalingExponent != nil {
		lines = append(lines, "scaling_exponent="+strconv.FormatFloat(*r.ScalingExponent, 'f', 4, 64))
	}
	lines = append(lines,
		"target_size="+num(r.TargetSize),
		"wall_seconds="+strconv.FormatFloat(r.WallSeconds, 'f', 1, 64),
		"wall_clock="+r.WallClock,
		"slurm_time="+r.SlurmTimeLimit,
		"cores="+strconv.Itoa(r.Cores),
		"efficiency="+num(r.Efficiency),
		"core_hours_per_run="+hours(r.CoreHoursPerRun),
		"runs="+strconv.Itoa(r.Runs),
		"base_core_hours="+hours(r.BaseCoreHours),
	)
	for _, f := range r.Factors {
		lines = append(lines, "factor."+f.Name+"="+num(f.Value))
	}
	lines = append(lines,
		"safety_multiplier="+num(r.SafetyMultiplier),
		"total_core_hours="+hours(r.TotalCoreHours),
	)
	for _, warning := range r.Warnings {
		lines = append(lines, "warning="+strconv.Quote(warning))
	}

	_, err := io.WriteString(w, strings.Join(lines, "\n")+"\n")
	return err
}

// WriteJSON renders r as indented JSON.
func WriteJSON(w io.Writer, r Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'g', 10, 64)
}

func hours(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

// polynomial renders coefficients as "a + b·x + c·x²".
func polynomial(coeffs []float64) string {
	if len(coeffs) == 0 {
		return "0"
	}
	powers := []string{"", "·x", "·x²", "·x³"}
	terms := make([]string, 0, len(coeffs))
	for i, c := range coeffs {
		suffix := fmt.Sprintf("·x^%d", i)
		if i < len(powers) {
			suffix = powers[i]
		}
		terms = append(terms, fmt.Sprintf("%.6g%s", c, suffix))
	}
	return "t = " + strings.Join(terms, " + ")
}
