package sources

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// Option customises sources built by New.
type Option func(*options)

type options struct {
	client *http.Client
}

// WithHTTPClient sets the client used by the http and prometheus sources.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.client = c }
}

// New creates a source based on kind and a generic configuration map.
//
// Supported kinds and keys:
//   - "log":        path
//   - "http":       url, method, headers (JSON), body, sizePath, wallPath,
//     wallFormat, templateVars (JSON)
//   - "prometheus": url, query, sizeLabel
func New(kind string, config map[string]string, opts ...Option) (Source, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	switch kind {
	case "log":
		return newLog(config)
	case "http":
		return newHTTP(config, o.client)
	case "prometheus":
		return newPrometheus(config, o.client)
	default:
		return nil, fmt.Errorf("unknown source kind: %s (must be log, http, or prometheus)", kind)
	}
}

func newLog(config map[string]string) (Source, error) {
	path := config["path"]
	if path == "" {
		return nil, fmt.Errorf("log source requires 'path' config")
	}
	return &LogSource{Path: path}, nil
}

func newPrometheus(config map[string]string, client *http.Client) (Source, error) {
	query := config["query"]
	if query == "" {
		return nil, fmt.Errorf("prometheus source requires 'query' config")
	}

	url := config["url"]
	if url == "" {
		url = "http://localhost:9090"
	}

	return &PrometheusSource{
		ServerURL:  url,
		Query:      query,
		SizeLabel:  config["sizeLabel"],
		HTTPClient: client,
	}, nil
}

func newHTTP(config map[string]string, client *http.Client) (Source, error) {
	var headers map[string]string
	if raw := config["headers"]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &headers); err != nil {
			return nil, fmt.Errorf("invalid 'headers' JSON: %w", err)
		}
	}

	var vars map[string]string
	if raw := config["templateVars"]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &vars); err != nil {
			return nil, fmt.Errorf("invalid 'templateVars' JSON: %w", err)
		}
	}

	src := &HTTPSource{
		URL:          config["url"],
		Method:       config["method"],
		Headers:      headers,
		Body:         config["body"],
		SizePath:     config["sizePath"],
		WallPath:     config["wallPath"],
		WallFormat:   config["wallFormat"],
		TemplateVars: vars,
		HTTPClient:   client,
	}
	if err := src.ValidateConfig(); err != nil {
		return nil, fmt.Errorf("http source: %w", err)
	}
	return src, nil
}
