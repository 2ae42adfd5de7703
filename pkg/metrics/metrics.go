// Package metrics provides Prometheus instrumentation for estimations.
//
// Metrics exposed:
//   - corecast_estimates_total: Counter of estimations by transport and outcome
//   - corecast_fit_seconds: Histogram of scaling model fit duration
//   - corecast_model_cache_total: Counter of model cache lookups by result
//   - corecast_range_warnings_total: Counter of extrapolations beyond the trusted range
//   - corecast_requested_core_hours: Histogram of total requested core-hours
//   - corecast_errors_total: Counter of errors by component and reason
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the estimator.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	EstimatesTotal     *prometheus.CounterVec
	FitSeconds         prometheus.Histogram
	ModelCacheTotal    *prometheus.CounterVec
	RangeWarningsTotal prometheus.Counter
	RequestedCoreHours prometheus.Histogram
	ErrorsTotal        *prometheus.CounterVec
}

// New creates all metrics and registers them with the default registerer.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates all metrics and registers them with reg.
// Tests pass a fresh prometheus.NewRegistry() to avoid duplicate registration.
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		EstimatesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "corecast_estimates_total",
			Help: "Total number of estimations by transport and outcome",
		}, []string{"transport", "outcome"}),

		FitSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "corecast_fit_seconds",
			Help:    "Time spent fitting scaling models",
			Buckets: prometheus.ExponentialBuckets(0.00001, 4, 10),
		}),

		ModelCacheTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "corecast_model_cache_total",
			Help: "Model cache lookups by result (hit, miss, error)",
		}, []string{"result"}),

		RangeWarningsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "corecast_range_warnings_total",
			Help: "Estimations whose target size exceeded the trusted extrapolation range",
		}),

		RequestedCoreHours: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "corecast_requested_core_hours",
			Help:    "Total core-hours of successful estimations",
			Buckets: prometheus.ExponentialBuckets(1, 4, 12),
		}),

		ErrorsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "corecast_errors_total",
			Help: "Total number of errors by component and reason",
		}, []string{"component", "reason"}),
	}
}

// RecordEstimate increments the estimation counter.
func (m *Metrics) RecordEstimate(transport, outcome string) {
	if m == nil {
		return
	}
	m.EstimatesTotal.WithLabelValues(transport, outcome).Inc()
}

// RecordFit records the time spent fitting a model.
func (m *Metrics) RecordFit(seconds float64) {
	if m == nil {
		return
	}
	m.FitSeconds.Observe(seconds)
}

// RecordCache increments the cache lookup counter for result.
func (m *Metrics) RecordCache(result string) {
	if m == nil {
		return
	}
	m.ModelCacheTotal.WithLabelValues(result).Inc()
}

// RecordRangeWarning increments the range warning counter.
func (m *Metrics) RecordRangeWarning() {
	if m == nil {
		return
	}
	m.RangeWarningsTotal.Inc()
}

// RecordCoreHours records the total core-hours of a successful estimation.
func (m *Metrics) RecordCoreHours(total float64) {
	if m == nil {
		return
	}
	m.RequestedCoreHours.Observe(total)
}

// RecordError increments the error counter.
func (m *Metrics) RecordError(component, reason string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(component, reason).Inc()
}
