// Command corecast turns benchmark timings into an HPC resource request.
//
// It fits a scaling model to (input size, wall time) observations,
// extrapolates the wall time to the production size, converts it to
// core-hours for the given hardware, multiplies by the number of runs and
// applies the safety factors.
//
// Usage:
//
//	corecast -observations=bench.log -target=100 -cores=8 -runs=50 \
//	  -factor failures=1.4 -factor development=2.0 -factor scaling=1.2
//
//	SOURCE_URL=http://prometheus:9090 SOURCE_QUERY='benchmark_wall_seconds{job="climate"}' \
//	  corecast -source=prometheus -target=100 -cores=8 -output=kv
//
//	corecast -study=climate.yaml -output=json
//
// Environment variables:
//
//	OBSERVATIONS   - Benchmark log path (- for stdin)
//	SOURCE         - Observation source: log, http or prometheus
//	SOURCE_*       - Source configuration (SOURCE_URL, SOURCE_QUERY, SOURCE_SIZE_PATH, ...)
//	STUDY          - YAML study file
//	TARGET_SIZE    - Production input size (default: 100)
//	CORES          - Cores per run (default: 1)
//	EFFICIENCY     - Parallel efficiency (default: 1.0)
//	RUNS           - Number of runs (default: 1)
//	SAFETY_FACTORS - Comma-separated name=value safety factors
//	OUTPUT         - Output format: text, kv, json (default: text)
//	LOG_LEVEL      - Logging level: debug, info, warn, error (default: warn)
//	LOG_FORMAT     - Logging format: text, json (default: text)
//
// Exit status is 0 on success (a range warning is printed but does not fail
// unless -strict-range is set), 1 when the estimation fails and 2 on usage
// errors.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/HatiCode/corecast/cmd/corecast/config"
	"github.com/HatiCode/corecast/pkg/estimator"
	"github.com/HatiCode/corecast/pkg/logging"
	"github.com/HatiCode/corecast/pkg/report"
)

const (
	exitOK       = 0
	exitEstimate = 1
	exitUsage    = 2
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	cfg, err := config.Parse(args, stderr)
	if errors.Is(err, flag.ErrHelp) {
		return exitOK
	}
	if err != nil {
		fmt.Fprintf(stderr, "corecast: %v\n", err)
		if errors.Is(err, config.ErrUsage) {
			return exitUsage
		}
		return exitEstimate
	}

	logger, err := logging.New(cfg.LogFormat, cfg.LogLevel, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "corecast: %v: %v\n", config.ErrUsage, err)
		return exitUsage
	}

	in, strict, err := buildInput(ctx, cfg, stdin)
	if err != nil {
		logger.Error("failed to load observations", "error", err)
		fmt.Fprintf(stderr, "corecast: %v\n", err)
		return exitEstimate
	}
	logger.Info("observations loaded", "count", len(in.Series), "target", in.TargetSize)

	req, err := estimator.New(nil, logger, nil).Estimate(ctx, in)
	if err == nil && strict && req.RangeWarning != nil {
		err = req.RangeWarning
	}
	if err != nil {
		logger.Error("estimation failed", "reason", estimator.Reason(err), "error", err)
		fmt.Fprintf(stderr, "corecast: %v\n", err)
		return exitEstimate
	}

	if err := report.Write(stdout, report.New(req), cfg.Output); err != nil {
		fmt.Fprintf(stderr, "corecast: write report: %v\n", err)
		return exitEstimate
	}
	return exitOK
}
