// Package sources provides corecast benchmark sources that retrieve
// (input size, wall time) observations from logs or external systems and
// normalize them into a scaling.Series.
//
// Each source implements the Source interface. Available sources:
//   - LogSource        - parses "size=<pct> wall=<H:MM:SS>" benchmark logs
//   - HTTPSource       - generic REST endpoint with gjson path extraction
//   - PrometheusSource - instant query against the Prometheus HTTP API
//
// Sources only pull and shape data; fitting and accounting live in the
// scaling and budget packages.
package sources

import (
	"context"

	"github.com/HatiCode/corecast/pkg/scaling"
)

// Source is the interface all benchmark sources implement.
//
// Collect is synchronous and must respect context cancellation.
type Source interface {
	// Collect fetches the observations and returns them as a validated,
	// size-sorted series.
	Collect(ctx context.Context) (scaling.Series, error)

	// Name returns a short identifier, e.g. "log", "http", "prometheus".
	Name() string
}
