package sources

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/HatiCode/corecast/pkg/scaling"
)

// PrometheusSource reads benchmark timings that jobs pushed to Prometheus
// (typically through a Pushgateway), e.g.
//
//	benchmark_wall_seconds{job="climate", size="10"} 1350
//
// It issues an instant /api/v1/query call; every vector sample becomes one
// observation whose size is taken from SizeLabel and whose wall time is the
// sample value in seconds.
type PrometheusSource struct {
	// ServerURL is the base URL to Prometheus, e.g. http://prometheus:9090
	ServerURL string
	// Query is the PromQL expression to evaluate; it must return a vector.
	Query string
	// SizeLabel names the label carrying the input size. Defaults to "size".
	SizeLabel string
	// HTTPClient is optional; if nil a default client with timeout is used.
	HTTPClient *http.Client
}

func (p *PrometheusSource) Name() string { return "prometheus" }

// Collect implements Source.
func (p *PrometheusSource) Collect(ctx context.Context) (scaling.Series, error) {
	if p.ServerURL == "" || p.Query == "" {
		return nil, errors.New("prometheus source: ServerURL and Query are required")
	}

	u, err := url.Parse(p.ServerURL)
	if err != nil {
		return nil, fmt.Errorf("invalid ServerURL: %w", err)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/api/v1/query"
	q := u.Query()
	q.Set("query", p.Query)
	u.RawQuery = q.Encode()

	cli := p.HTTPClient
	if cli == nil {
		cli = &http.Client{Timeout: 10 * time.Second}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := cli.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("prometheus: status %d", resp.StatusCode)
	}

	var pr PrometheusVectorResponse
	if err := json.NewDecoder(resp.Body).Decode(&pr); err != nil {
		return nil, fmt.Errorf("decode prometheus response: %w", err)
	}
	if pr.Status != "success" {
		return nil, fmt.Errorf("prometheus status: %s", pr.Status)
	}
	if pr.Data.ResultType != "vector" {
		return nil, fmt.Errorf("prometheus: expected vector result, got %q", pr.Data.ResultType)
	}

	label := p.SizeLabel
	if label == "" {
		label = "size"
	}
	obs, err := VectorObservations(pr.Data.Result, label)
	if err != nil {
		return nil, err
	}
	return scaling.NewSeries(obs)
}

// PrometheusVectorResponse is the response of an instant query.
type PrometheusVectorResponse struct {
	Status string               `json:"status"`
	Data   PrometheusVectorData `json:"data"`
}

// PrometheusVectorData contains the result data from an instant query.
type PrometheusVectorData struct {
	ResultType string             `json:"resultType"`
	Result     []PrometheusSample `json:"result"`
}

// PrometheusSample is one element of a vector result.
type PrometheusSample struct {
	Metric map[string]string `json:"metric"`
	// Value is [ <unix_time_float>, "<value_string>" ]
	Value []any `json:"value"`
}

// VectorObservations converts vector samples into observations, reading the
// size from sizeLabel (a trailing "%" is allowed).
func VectorObservations(samples []PrometheusSample, sizeLabel string) ([]scaling.Observation, error) {
	obs := make([]scaling.Observation, 0, len(samples))
	for i, s := range samples {
		raw, ok := s.Metric[sizeLabel]
		if !ok {
			return nil, fmt.Errorf("sample %d: missing %q label", i, sizeLabel)
		}
		size, err := strconv.ParseFloat(strings.TrimSuffix(raw, "%"), 64)
		if err != nil {
			return nil, fmt.Errorf("sample %d: invalid size %q: %w", i, raw, err)
		}

		if len(s.Value) != 2 {
			return nil, fmt.Errorf("sample %d: invalid value pair length: %d", i, len(s.Value))
		}
		var wall float64
		switch v := s.Value[1].(type) {
		case string:
			wall, err = strconv.ParseFloat(v, 64)
			if err != nil {
				return nil, fmt.Errorf("sample %d: parse value: %w", i, err)
			}
		case float64:
			wall = v
		default:
			return nil, fmt.Errorf("sample %d: unexpected value type %T", i, v)
		}

		obs = append(obs, scaling.Observation{Size: size, WallSeconds: wall})
	}
	return obs, nil
}
