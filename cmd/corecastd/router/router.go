// Package router configures HTTP routes for corecastd.
//
// Routes configured:
//   - POST /estimate - Run an estimation; body is an estimator.EstimateRequest,
//     the reply a report.Report
//   - GET /healthz   - Health check (503 when the model cache is unreachable)
//   - GET /metrics   - Prometheus metrics endpoint
//
// Estimation errors caused by the request content (too few observations,
// invalid factors, a target outside the trusted range in strict mode) are
// answered with 422, undecodable or out-of-range requests with 400.
package router

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/HatiCode/corecast/pkg/estimator"
	"github.com/HatiCode/corecast/pkg/httpx"
	"github.com/HatiCode/corecast/pkg/report"
)

// Options configures SetupRoutes.
type Options struct {
	// HealthCheck backs /healthz; nil always reports healthy.
	HealthCheck func(context.Context) error

	// RequestTimeout bounds each estimation. Zero means 10 seconds.
	RequestTimeout time.Duration

	// Metrics serves /metrics. Nil uses promhttp.Handler().
	Metrics http.Handler
}

// SetupRoutes configures the corecastd HTTP endpoints.
func SetupRoutes(est *estimator.Estimator, opts Options, logger *slog.Logger) *http.ServeMux {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 10 * time.Second
	}
	if opts.Metrics == nil {
		opts.Metrics = promhttp.Handler()
	}

	mux := http.NewServeMux()
	mux.Handle("GET /healthz", httpx.HealthHandlerWithCheck(opts.HealthCheck))
	mux.HandleFunc("POST /estimate", handleEstimate(est, opts.RequestTimeout, logger))
	mux.Handle("GET /metrics", opts.Metrics)
	return mux
}

func handleEstimate(est *estimator.Estimator, timeout time.Duration, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		dto, err := estimator.DecodeRequest(r.Body)
		if err != nil {
			httpx.WriteError(w, http.StatusBadRequest, err, estimator.Reason(err))
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()

		req, err := est.Process(ctx, "http", dto)
		if err != nil {
			status := StatusFor(err)
			if status == http.StatusInternalServerError {
				logger.Error("estimation failed", "error", err)
				httpx.WriteError(w, status, errors.New("internal server error"), estimator.Reason(err))
				return
			}
			httpx.WriteError(w, status, err, estimator.Reason(err))
			return
		}

		if err := httpx.WriteJSON(w, http.StatusOK, report.New(req)); err != nil {
			logger.Error("failed to write JSON response", "error", err)
		}
	}
}

// StatusFor maps an estimation error to its HTTP status code.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, estimator.ErrMalformedRequest):
		return http.StatusBadRequest
	case estimator.IsEstimationError(err):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
