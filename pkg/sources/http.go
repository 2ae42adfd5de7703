package sources

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"text/template"
	"time"

	"github.com/tidwall/gjson"

	"github.com/HatiCode/corecast/pkg/scaling"
	"github.com/HatiCode/corecast/pkg/walltime"
)

// HTTPSource calls a REST endpoint (a CI results API, a benchmark database
// front-end, ...) and extracts observations with gjson paths.
//
// Example for a response {"runs":[{"pct":10,"elapsed":1350}, ...]}:
//
//	src := &HTTPSource{
//	    URL:      "https://bench.example.com/api/runs?job=climate",
//	    SizePath: "runs.#.pct",
//	    WallPath: "runs.#.elapsed",
//	}
type HTTPSource struct {
	// URL is the endpoint to call (required).
	URL string

	// Method defaults to GET.
	Method string

	// Headers are sent with the request. Values may use {{.Var}} templates
	// filled from TemplateVars.
	Headers map[string]string

	// Body is an optional request body template.
	Body string

	// SizePath and WallPath are gjson paths that must return arrays of equal length.
	SizePath string
	WallPath string

	// WallFormat tells how wall values are encoded:
	//   "seconds" - numbers of seconds (default)
	//   "clock"   - strings accepted by walltime.Parse ("0:22:30", "1-02:00:00", "45m")
	WallFormat string

	// HTTPClient is optional; if nil a default client with timeout is used.
	HTTPClient *http.Client

	// TemplateVars are available in Body and Headers templates (tokens, job ids).
	TemplateVars map[string]string
}

func (h *HTTPSource) Name() string { return "http" }

// Collect implements Source.
func (h *HTTPSource) Collect(ctx context.Context) (scaling.Series, error) {
	if err := h.ValidateConfig(); err != nil {
		return nil, fmt.Errorf("http source: %w", err)
	}

	data := make(map[string]any, len(h.TemplateVars))
	for k, v := range h.TemplateVars {
		data[k] = v
	}

	method := h.Method
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	if h.Body != "" {
		rendered, err := renderTemplate(h.Body, data)
		if err != nil {
			return nil, fmt.Errorf("render body template: %w", err)
		}
		body = bytes.NewBufferString(rendered)
	}

	req, err := http.NewRequestWithContext(ctx, method, h.URL, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	for key, value := range h.Headers {
		rendered, err := renderTemplate(value, data)
		if err != nil {
			return nil, fmt.Errorf("render header %s: %w", key, err)
		}
		req.Header.Set(key, rendered)
	}

	cli := h.HTTPClient
	if cli == nil {
		cli = &http.Client{Timeout: 10 * time.Second}
	}

	resp, err := cli.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("http status %d: %s", resp.StatusCode, string(msg))
	}

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	sizes := gjson.GetBytes(payload, h.SizePath)
	walls := gjson.GetBytes(payload, h.WallPath)
	if !sizes.Exists() {
		return nil, fmt.Errorf("size path %q not found in response", h.SizePath)
	}
	if !walls.Exists() {
		return nil, fmt.Errorf("wall path %q not found in response", h.WallPath)
	}

	sizeArr := sizes.Array()
	wallArr := walls.Array()
	if len(sizeArr) != len(wallArr) {
		return nil, fmt.Errorf("size count (%d) != wall count (%d)", len(sizeArr), len(wallArr))
	}

	obs := make([]scaling.Observation, 0, len(sizeArr))
	for i := range sizeArr {
		wall, err := h.parseWall(wallArr[i])
		if err != nil {
			return nil, fmt.Errorf("parse wall[%d]: %w", i, err)
		}
		obs = append(obs, scaling.Observation{Size: sizeArr[i].Float(), WallSeconds: wall})
	}
	return scaling.NewSeries(obs)
}

func (h *HTTPSource) parseWall(v gjson.Result) (float64, error) {
	switch h.WallFormat {
	case "", "seconds":
		if v.Type != gjson.Number && v.Type != gjson.String {
			return 0, fmt.Errorf("unexpected wall value %s", v.Raw)
		}
		return v.Float(), nil
	case "clock":
		return walltime.ParseSeconds(v.String())
	default:
		return 0, fmt.Errorf("unsupported wall format: %s", h.WallFormat)
	}
}

// ValidateConfig checks if the source configuration is valid.
func (h *HTTPSource) ValidateConfig() error {
	if h.URL == "" {
		return errors.New("url is required")
	}
	if h.SizePath == "" || h.WallPath == "" {
		return errors.New("sizePath and wallPath are required")
	}
	switch h.WallFormat {
	case "", "seconds", "clock":
	default:
		return fmt.Errorf("invalid wallFormat: %s (must be seconds or clock)", h.WallFormat)
	}
	return nil
}

func renderTemplate(tmplStr string, data map[string]any) (string, error) {
	if !strings.Contains(tmplStr, "{{") {
		return tmplStr, nil
	}

	tmpl, err := template.New("").Option("missingkey=error").Parse(tmplStr)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
