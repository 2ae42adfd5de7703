package main

import (
	"context"
	"fmt"
	"io"

	"github.com/HatiCode/corecast/cmd/corecast/config"
	"github.com/HatiCode/corecast/pkg/budget"
	"github.com/HatiCode/corecast/pkg/httpx"
	"github.com/HatiCode/corecast/pkg/scaling"
	"github.com/HatiCode/corecast/pkg/sources"
	"github.com/HatiCode/corecast/pkg/study"
)

// buildInput collects the observations and assembles the estimation input.
// The returned bool reports whether range warnings must fail the run.
func buildInput(ctx context.Context, cfg *config.Config, stdin io.Reader) (budget.Input, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	if cfg.Study != "" {
		return studyInput(ctx, cfg)
	}

	var src sources.Source
	if cfg.Observations != "" {
		ls := &sources.LogSource{Path: cfg.Observations}
		if cfg.Observations == "-" {
			ls.Reader = stdin
		}
		src = ls
	} else {
		s, err := newSource(cfg, cfg.Source, cfg.SourceConfig)
		if err != nil {
			return budget.Input{}, false, err
		}
		src = s
	}

	series, err := src.Collect(ctx)
	if err != nil {
		return budget.Input{}, false, fmt.Errorf("collect observations from %s: %w", src.Name(), err)
	}

	return budget.Input{
		Series:        series,
		TargetSize:    cfg.Target,
		Hardware:      budget.HardwareProfile{Cores: cfg.Cores, Efficiency: cfg.Efficiency},
		RunCount:      cfg.Runs,
		Factors:       cfg.Factors,
		MaxDegree:     cfg.MaxDegree,
		MinRSquared:   cfg.MinRSquared,
		RangeMultiple: cfg.RangeMultiple,
		SerialTimings: cfg.Serial,
	}, cfg.StrictRange, nil
}

func studyInput(ctx context.Context, cfg *config.Config) (budget.Input, bool, error) {
	s, err := study.Load(cfg.Study)
	if err != nil {
		return budget.Input{}, false, err
	}

	var series scaling.Series
	if s.Source != nil {
		src, err := newSource(cfg, s.Source.Kind, s.Source.Config)
		if err != nil {
			return budget.Input{}, false, err
		}
		if series, err = src.Collect(ctx); err != nil {
			return budget.Input{}, false, fmt.Errorf("collect observations from %s: %w", src.Name(), err)
		}
	} else if series, err = s.Series(); err != nil {
		return budget.Input{}, false, fmt.Errorf("study %s: %w", cfg.Study, err)
	}

	in := s.ToInput(series)
	applyOverrides(&in, cfg)
	return in, s.Fit.StrictRange || cfg.StrictRange, nil
}

// applyOverrides replaces study values with the flags given on the command line.
func applyOverrides(in *budget.Input, cfg *config.Config) {
	set := cfg.Explicit
	if set["target"] {
		in.TargetSize = cfg.Target
	}
	if set["cores"] {
		in.Hardware.Cores = cfg.Cores
	}
	if set["efficiency"] {
		in.Hardware.Efficiency = cfg.Efficiency
	}
	if set["runs"] {
		in.RunCount = cfg.Runs
	}
	if set["factor"] {
		in.Factors = cfg.Factors
	}
	if set["max-degree"] {
		in.MaxDegree = cfg.MaxDegree
	}
	if set["min-r2"] {
		in.MinRSquared = cfg.MinRSquared
	}
	if set["range-multiple"] {
		in.RangeMultiple = cfg.RangeMultiple
	}
	if set["serial"] {
		in.SerialTimings = cfg.Serial
	}
}

func newSource(cfg *config.Config, kind string, sourceConfig map[string]string) (sources.Source, error) {
	client, err := httpx.NewClient(cfg.SourceTLS, cfg.Timeout)
	if err != nil {
		return nil, err
	}
	src, err := sources.New(kind, sourceConfig, sources.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("create %s source: %w", kind, err)
	}
	return src, nil
}
