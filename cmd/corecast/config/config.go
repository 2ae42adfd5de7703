// Package config parses the corecast command line.
//
// Supported configuration sources (in order of precedence):
//  1. Command-line flags
//  2. Environment variables
//  3. Default values
//
// Observations come from exactly one of -observations (a benchmark log,
// "-" for stdin), -source (log, http or prometheus, configured through
// SOURCE_* environment variables) or -study (a YAML study file). When a
// study is used, estimation flags given explicitly on the command line
// override the study's values.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/HatiCode/corecast/pkg/budget"
	"github.com/HatiCode/corecast/pkg/report"
	"github.com/HatiCode/corecast/pkg/scaling"
	"github.com/HatiCode/corecast/pkg/tls"
)

// ErrUsage marks command-line errors; the command exits with status 2.
var ErrUsage = errors.New("usage error")

// Config holds the corecast configuration.
type Config struct {
	Observations string
	Source       string
	SourceConfig map[string]string
	SourceTLS    tls.Config
	Timeout      time.Duration
	Study        string

	Target        float64
	Cores         int
	Efficiency    float64
	Runs          int
	Factors       []budget.SafetyFactor
	MaxDegree     int
	MinRSquared   float64
	RangeMultiple float64
	Serial        bool
	StrictRange   bool

	Output    string
	LogLevel  string
	LogFormat string

	// Explicit records which flags were given on the command line.
	Explicit map[string]bool
}

// Parse parses args (without the program name) with environment fallbacks.
// Usage problems are returned wrapped in ErrUsage; flag.ErrHelp is returned
// as is for -h. Invalid safety factors are not usage errors: they are
// returned wrapping budget.ErrInvalidFactor.
func Parse(args []string, stderr io.Writer) (*Config, error) {
	cfg := &Config{}
	fs := flag.NewFlagSet("corecast", flag.ContinueOnError)
	fs.SetOutput(stderr)

	fs.StringVar(&cfg.Observations, "observations", getEnv("OBSERVATIONS", ""), "Benchmark log with 'size=<pct> wall=<H:MM:SS>' lines (- for stdin)")
	fs.StringVar(&cfg.Source, "source", getEnv("SOURCE", ""), "Observation source: log, http or prometheus (configured via SOURCE_* env vars)")
	fs.DurationVar(&cfg.Timeout, "timeout", getEnvDuration("SOURCE_TIMEOUT", 30*time.Second), "Timeout for collecting observations")
	fs.StringVar(&cfg.Study, "study", getEnv("STUDY", ""), "YAML study file")

	fs.BoolVar(&cfg.SourceTLS.Enabled, "source-tls-enabled", getEnvBool("SOURCE_TLS_ENABLED", false), "Use TLS settings for http/prometheus sources")
	fs.StringVar(&cfg.SourceTLS.CertFile, "source-tls-cert-file", getEnv("SOURCE_TLS_CERT_FILE", ""), "Client certificate for sources")
	fs.StringVar(&cfg.SourceTLS.KeyFile, "source-tls-key-file", getEnv("SOURCE_TLS_KEY_FILE", ""), "Client private key for sources")
	fs.StringVar(&cfg.SourceTLS.CAFile, "source-tls-ca-file", getEnv("SOURCE_TLS_CA_FILE", ""), "CA certificate for verifying sources")

	fs.Float64Var(&cfg.Target, "target", getEnvFloat("TARGET_SIZE", 100), "Production input size, in observation size units")
	fs.IntVar(&cfg.Cores, "cores", getEnvInt("CORES", 1), "Cores per run")
	fs.Float64Var(&cfg.Efficiency, "efficiency", getEnvFloat("EFFICIENCY", 1.0), "Expected parallel efficiency in (0,1]")
	fs.IntVar(&cfg.Runs, "runs", getEnvInt("RUNS", 1), "Number of production runs")
	factors := &factorList{}
	if env := os.Getenv("SAFETY_FACTORS"); env != "" {
		parsed, err := budget.ParseSafetyFactors(env)
		if err != nil {
			factors.err = fmt.Errorf("SAFETY_FACTORS: %w", err)
		}
		factors.factors = parsed
	}
	fs.Var(factors, "factor", "Safety factor name=value (repeatable, or comma-separated)")
	fs.IntVar(&cfg.MaxDegree, "max-degree", getEnvInt("MAX_DEGREE", scaling.MaxSupportedDegree), "Maximum polynomial degree (0-3)")
	fs.Float64Var(&cfg.MinRSquared, "min-r2", getEnvFloat("MIN_R2", scaling.DefaultMinRSquared), "R² threshold for accepting a degree")
	fs.Float64Var(&cfg.RangeMultiple, "range-multiple", getEnvFloat("RANGE_MULTIPLE", scaling.DefaultRangeMultiple), "Warn when target exceeds this multiple of the largest benchmark")
	fs.BoolVar(&cfg.Serial, "serial", getEnvBool("SERIAL_TIMINGS", false), "Observations are single-core timings; divide by cores × efficiency")
	fs.BoolVar(&cfg.StrictRange, "strict-range", getEnvBool("STRICT_RANGE", false), "Fail instead of warning when extrapolating beyond the range multiple")

	fs.StringVar(&cfg.Output, "output", getEnv("OUTPUT", report.FormatText), "Output format: text, kv or json")
	fs.StringVar(&cfg.LogFormat, "log-format", getEnv("LOG_FORMAT", "text"), "Log format: text or json")
	fs.StringVar(&cfg.LogLevel, "log-level", getEnv("LOG_LEVEL", "warn"), "Log level: debug, info, warn, error")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrUsage, err)
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("%w: unexpected arguments: %s", ErrUsage, strings.Join(fs.Args(), " "))
	}

	cfg.Factors = factors.named()
	cfg.SourceConfig = parseSourceConfig(os.Environ())
	cfg.Explicit = make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { cfg.Explicit[f.Name] = true })

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUsage, err)
	}
	if factors.err != nil {
		return nil, factors.err
	}
	return cfg, nil
}

// Validate checks flag combinations. Numeric estimation rules are enforced
// by the estimation itself so that they surface as estimation errors.
func (c *Config) Validate() error {
	inputs := 0
	for _, set := range []bool{c.Observations != "", c.Source != "", c.Study != ""} {
		if set {
			inputs++
		}
	}
	if inputs == 0 {
		return errors.New("one of -observations, -source or -study is required")
	}
	if inputs > 1 {
		return errors.New("-observations, -source and -study are mutually exclusive")
	}

	switch c.Source {
	case "", "log", "http", "prometheus":
	default:
		return fmt.Errorf("invalid -source %q (must be log, http or prometheus)", c.Source)
	}
	switch c.Output {
	case report.FormatText, report.FormatKV, report.FormatJSON:
	default:
		return fmt.Errorf("invalid -output %q (must be text, kv or json)", c.Output)
	}
	if c.MaxDegree < 0 || c.MaxDegree > scaling.MaxSupportedDegree {
		return fmt.Errorf("-max-degree must be in [0, %d]", scaling.MaxSupportedDegree)
	}
	if c.MinRSquared < 0 || c.MinRSquared > 1 {
		return errors.New("-min-r2 must be in [0, 1]")
	}
	if c.Timeout <= 0 {
		return errors.New("-timeout must be > 0")
	}
	return c.SourceTLS.Validate()
}

// factorList collects -factor flags. Values from SAFETY_FACTORS are replaced
// by the first -factor given on the command line. The first invalid factor
// is kept in err instead of failing flag parsing.
type factorList struct {
	factors  []budget.SafetyFactor
	fromFlag bool
	err      error
}

func (f *factorList) String() string {
	if f == nil {
		return ""
	}
	parts := make([]string, len(f.factors))
	for i, sf := range f.factors {
		parts[i] = sf.String()
	}
	return strings.Join(parts, ",")
}

func (f *factorList) Set(value string) error {
	if !f.fromFlag {
		f.factors = nil
		f.err = nil
		f.fromFlag = true
	}
	for _, part := range strings.Split(value, ",") {
		sf, err := budget.ParseSafetyFactor(part)
		if err != nil {
			if f.err == nil {
				f.err = fmt.Errorf("-factor: %w", err)
			}
			continue
		}
		f.factors = append(f.factors, sf)
	}
	return nil
}

// named returns the factors with unnamed entries called factorN by overall position.
func (f *factorList) named() []budget.SafetyFactor {
	out := make([]budget.SafetyFactor, len(f.factors))
	for i, sf := range f.factors {
		if sf.Name == "" {
			sf.Name = fmt.Sprintf("factor%d", i+1)
		}
		out[i] = sf
	}
	return out
}

// parseSourceConfig turns SOURCE_* environment variables into a source
// configuration map: SOURCE_SIZE_PATH=runs.#.pct becomes sizePath.
// SOURCE_TIMEOUT and SOURCE_TLS_* configure the command, not the source.
func parseSourceConfig(environ []string) map[string]string {
	config := make(map[string]string)
	for _, env := range environ {
		key, value, ok := strings.Cut(env, "=")
		if !ok || !strings.HasPrefix(key, "SOURCE_") {
			continue
		}
		name := strings.TrimPrefix(key, "SOURCE_")
		if name == "" || name == "TIMEOUT" || strings.HasPrefix(name, "TLS_") {
			continue
		}
		config[toLowerCamelCase(name)] = value
	}
	return config
}

func toLowerCamelCase(s string) string {
	var b strings.Builder
	nextUpper := false
	for i, r := range strings.ToLower(s) {
		switch {
		case r == '_':
			nextUpper = i > 0
		case nextUpper:
			b.WriteString(strings.ToUpper(string(r)))
			nextUpper = false
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var i int
		if _, err := fmt.Sscanf(value, "%d", &i); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		var f float64
		if _, err := fmt.Sscanf(value, "%f", &f); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1"
	}
	return defaultValue
}
