// Package estimator runs budget estimations behind a shared model cache.
//
// The CLI, the HTTP router and the gRPC service all go through Estimator so
// that fitting, caching, logging and metrics behave the same everywhere.
package estimator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/HatiCode/corecast/pkg/budget"
	"github.com/HatiCode/corecast/pkg/metrics"
	"github.com/HatiCode/corecast/pkg/scaling"
	"github.com/HatiCode/corecast/pkg/storage"
)

// Estimator fits, caches and estimates. It is safe for concurrent use as
// long as its Store is.
type Estimator struct {
	store   storage.Store
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// New creates an Estimator. store and m may be nil; a nil store disables
// caching and a nil logger uses slog.Default().
func New(store storage.Store, logger *slog.Logger, m *metrics.Metrics) *Estimator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Estimator{
		store:   store,
		logger:  logger.With("component", "estimator"),
		metrics: m,
		now:     time.Now,
	}
}

// Estimate validates the series, fetches or fits its scaling model and runs
// the budget pipeline. A range warning is logged and counted and left on
// the returned request.
func (e *Estimator) Estimate(ctx context.Context, in budget.Input) (budget.Request, error) {
	series, err := scaling.NewSeries(in.Series)
	if err != nil {
		return budget.Request{}, err
	}
	in.Series = series

	model, err := e.model(ctx, in)
	if err != nil {
		return budget.Request{}, fmt.Errorf("fit: %w", err)
	}

	req, err := budget.EstimateWithModel(model, in)
	if err != nil {
		return budget.Request{}, err
	}

	if req.RangeWarning != nil {
		e.metrics.RecordRangeWarning()
		e.logger.Warn("extrapolating beyond trusted range",
			"target", req.RangeWarning.Target,
			"max_observed", req.RangeWarning.MaxObserved,
			"multiple", req.RangeWarning.Multiple,
		)
	}

	e.logger.Debug("estimate computed",
		"degree", req.Model.Degree,
		"r_squared", req.Model.RSquared,
		"wall_seconds", req.WallSeconds,
		"total_core_hours", req.TotalCoreHours,
	)
	return req, nil
}

// Process handles one transport-level request: it converts the DTO, runs
// Estimate, enforces StrictRange and records the outcome for transport.
func (e *Estimator) Process(ctx context.Context, transport string, r EstimateRequest) (budget.Request, error) {
	req, err := e.process(ctx, r)
	if err != nil {
		e.metrics.RecordEstimate(transport, "error")
		e.metrics.RecordError("estimator", Reason(err))
		e.logger.Info("estimate rejected", "transport", transport, "reason", Reason(err), "error", err)
		return budget.Request{}, err
	}
	e.metrics.RecordEstimate(transport, "ok")
	e.metrics.RecordCoreHours(req.TotalCoreHours)
	return req, nil
}

func (e *Estimator) process(ctx context.Context, r EstimateRequest) (budget.Request, error) {
	in, err := r.ToInput()
	if err != nil {
		return budget.Request{}, err
	}
	req, err := e.Estimate(ctx, in)
	if err != nil {
		return budget.Request{}, err
	}
	if r.StrictRange && req.RangeWarning != nil {
		return budget.Request{}, req.RangeWarning
	}
	return req, nil
}

// model returns the cached model for in or fits and caches a new one.
// Cache failures are logged and counted; the estimate proceeds with a fresh fit.
func (e *Estimator) model(ctx context.Context, in budget.Input) (scaling.Model, error) {
	var key string
	if e.store != nil {
		key = storage.Fingerprint(in.Series, in.MaxDegree, minRSquared(in.MinRSquared))
		m, found, err := e.store.Get(ctx, key)
		switch {
		case err != nil:
			e.metrics.RecordCache("error")
			e.metrics.RecordError("store", "get")
			e.logger.Warn("model cache lookup failed", "key", key, "error", err)
		case found:
			e.metrics.RecordCache("hit")
			e.logger.Debug("model cache hit", "key", key)
			return m, nil
		default:
			e.metrics.RecordCache("miss")
		}
	}

	start := e.now()
	m, err := scaling.FitWithThreshold(in.Series, in.MaxDegree, in.MinRSquared)
	e.metrics.RecordFit(e.now().Sub(start).Seconds())
	if err != nil {
		return scaling.Model{}, err
	}

	if e.store != nil {
		if err := e.store.Put(ctx, key, m); err != nil {
			e.metrics.RecordError("store", "put")
			e.logger.Warn("model cache store failed", "key", key, "error", err)
		}
	}
	return m, nil
}

func minRSquared(v float64) float64 {
	if v <= 0 {
		return scaling.DefaultMinRSquared
	}
	return v
}

// Reason maps an estimation error to a short label for metrics and logs.
func Reason(err error) string {
	var rangeErr *scaling.ExtrapolationRangeError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrMalformedRequest):
		return "malformed_request"
	case errors.Is(err, scaling.ErrInsufficientData):
		return "insufficient_data"
	case errors.Is(err, scaling.ErrInvalidObservation):
		return "invalid_observation"
	case errors.Is(err, scaling.ErrInvalidTarget):
		return "invalid_target"
	case errors.As(err, &rangeErr):
		return "range_exceeded"
	case errors.Is(err, budget.ErrInvalidFactor):
		return "invalid_factor"
	case errors.Is(err, budget.ErrInvalidHardware):
		return "invalid_hardware"
	case errors.Is(err, budget.ErrInvalidRunCount):
		return "invalid_runs"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "other"
	}
}

// IsEstimationError reports whether err is a deterministic consequence of
// the request content (bad data, bad factors, out-of-range target) as
// opposed to a malformed request or an infrastructure failure.
func IsEstimationError(err error) bool {
	switch Reason(err) {
	case "insufficient_data", "invalid_observation", "invalid_target", "range_exceeded",
		"invalid_factor", "invalid_hardware", "invalid_runs":
		return true
	default:
		return false
	}
}
