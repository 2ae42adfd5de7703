package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/HatiCode/corecast/pkg/estimator"
	"github.com/HatiCode/corecast/pkg/httpx"
	"github.com/HatiCode/corecast/pkg/metrics"
	"github.com/HatiCode/corecast/pkg/report"
	"github.com/HatiCode/corecast/pkg/scaling"
	"github.com/HatiCode/corecast/pkg/storage"
)

const climateBody = `{
  "observations": [
    {"size": 5, "wallSeconds": 675},
    {"size": 10, "wallSeconds": 1350},
    {"size": 20, "wallSeconds": 2700}
  ],
  "targetSize": 100,
  "cores": 8,
  "runs": 50,
  "factors": [
    {"name": "failures", "value": 1.4},
    {"name": "development", "value": 2.0},
    {"name": "scaling", "value": 1.2}
  ]
}`

type testServer struct {
	mux     *http.ServeMux
	metrics *metrics.Metrics
	store   *storage.MemoryStore
}

func newTestServer(t *testing.T, health func(context.Context) error) testServer {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := prometheus.NewRegistry()
	m := metrics.NewWithRegistry(reg)
	store := storage.NewMemoryStore()

	mux := SetupRoutes(estimator.New(store, logger, m), Options{
		HealthCheck: health,
		Metrics:     promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	}, logger)
	return testServer{mux: mux, metrics: m, store: store}
}

func post(mux http.Handler, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/estimate", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func TestEstimate_Success(t *testing.T) {
	srv := newTestServer(t, nil)

	w := post(srv.mux, climateBody)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}

	var rep report.Report
	if err := json.NewDecoder(w.Body).Decode(&rep); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rep.Degree != 1 || rep.SlurmTimeLimit != "0-03:45:00" || rep.Runs != 50 {
		t.Errorf("report = %+v", rep)
	}
	if rep.TotalCoreHours < 5039.99 || rep.TotalCoreHours > 5040.01 {
		t.Errorf("TotalCoreHours = %v, want 5040", rep.TotalCoreHours)
	}
	if len(rep.Warnings) != 0 {
		t.Errorf("Warnings = %v", rep.Warnings)
	}

	if got := testutil.ToFloat64(srv.metrics.EstimatesTotal.WithLabelValues("http", "ok")); got != 1 {
		t.Errorf("corecast_estimates_total{http,ok} = %v, want 1", got)
	}
	if srv.store.Len() != 1 {
		t.Errorf("model cache Len = %d, want 1", srv.store.Len())
	}

	post(srv.mux, climateBody)
	if got := testutil.ToFloat64(srv.metrics.ModelCacheTotal.WithLabelValues("hit")); got != 1 {
		t.Errorf("cache hits = %v, want 1 after second request", got)
	}
}

func TestEstimate_RangeWarning(t *testing.T) {
	srv := newTestServer(t, nil)
	body := strings.Replace(climateBody, `"targetSize": 100`, `"targetSize": 1000`, 1)

	w := post(srv.mux, body)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var rep report.Report
	if err := json.NewDecoder(w.Body).Decode(&rep); err != nil {
		t.Fatal(err)
	}
	if len(rep.Warnings) != 1 {
		t.Errorf("Warnings = %v, want one range warning", rep.Warnings)
	}

	strict := strings.Replace(body, `"runs": 50`, `"runs": 50, "strictRange": true`, 1)
	w = post(srv.mux, strict)
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("strict status = %d, want 422", w.Code)
	}
	var resp httpx.ErrorResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Reason != "range_exceeded" {
		t.Errorf("Reason = %q, want range_exceeded", resp.Reason)
	}
}

func TestEstimate_Errors(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantReason string
	}{
		{
			name:       "invalid json",
			body:       `{"observations": [`,
			wantStatus: http.StatusBadRequest,
			wantReason: "malformed_request",
		},
		{
			name:       "unknown field",
			body:       `{"targetSize": 100, "cores": 8, "gpus": 4}`,
			wantStatus: http.StatusBadRequest,
			wantReason: "malformed_request",
		},
		{
			name:       "max degree out of range",
			body:       strings.Replace(climateBody, `"runs": 50`, `"runs": 50, "maxDegree": 9`, 1),
			wantStatus: http.StatusBadRequest,
			wantReason: "malformed_request",
		},
		{
			name:       "single observation",
			body:       `{"observations": [{"size": 10, "wallSeconds": 1350}], "targetSize": 100, "cores": 8}`,
			wantStatus: http.StatusUnprocessableEntity,
			wantReason: "insufficient_data",
		},
		{
			name:       "zero factor",
			body:       strings.Replace(climateBody, `"value": 1.4`, `"value": 0`, 1),
			wantStatus: http.StatusUnprocessableEntity,
			wantReason: "invalid_factor",
		},
		{
			name:       "zero cores",
			body:       strings.Replace(climateBody, `"cores": 8`, `"cores": 0`, 1),
			wantStatus: http.StatusUnprocessableEntity,
			wantReason: "invalid_hardware",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, nil)
			w := post(srv.mux, tt.body)
			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %s)", w.Code, tt.wantStatus, w.Body.String())
			}
			var resp httpx.ErrorResponse
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
				t.Fatal(err)
			}
			if resp.Reason != tt.wantReason {
				t.Errorf("Reason = %q, want %q", resp.Reason, tt.wantReason)
			}
			if resp.Error == "" {
				t.Error("empty error message")
			}
		})
	}
}

func TestEstimate_MethodNotAllowed(t *testing.T) {
	srv := newTestServer(t, nil)
	w := httptest.NewRecorder()
	srv.mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/estimate", nil))
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", w.Code)
	}
}

func TestHealthEndpoint(t *testing.T) {
	tests := []struct {
		name   string
		check  func(context.Context) error
		status int
	}{
		{name: "healthy", check: nil, status: http.StatusOK},
		{name: "cache down", check: func(context.Context) error { return errors.New("redis unreachable") }, status: http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, tt.check)
			w := httptest.NewRecorder()
			srv.mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
			if w.Code != tt.status {
				t.Errorf("status = %d, want %d", w.Code, tt.status)
			}
		})
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t, nil)
	post(srv.mux, climateBody)

	w := httptest.NewRecorder()
	srv.mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "corecast_estimates_total") {
		t.Error("metrics output missing corecast_estimates_total")
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("%w: bad", estimator.ErrMalformedRequest), http.StatusBadRequest},
		{fmt.Errorf("fit: %w", scaling.ErrInsufficientData), http.StatusUnprocessableEntity},
		{&scaling.ExtrapolationRangeError{Target: 1000, MaxObserved: 20, Multiple: 10}, http.StatusUnprocessableEntity},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := StatusFor(tt.err); got != tt.want {
			t.Errorf("StatusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
