// Package adapters provides telemetry source connectors that retrieve hourly
// cooling observations from external systems and normalize them into a
// common DataFrame structure.
//
// Available adapters:
//   - CSVAdapter: reads a static CSV export (the usual training input)
//   - HTTPAdapter: generic REST endpoint, columns extracted with gjson paths
//   - PrometheusAdapter: one query_range per signal via the Prometheus HTTP API
//     (also works against VictoriaMetrics)
//
// Adapters only pull and shape raw data. Feature synthesis lives in the
// features package.
package adapters

import (
	"context"
	"time"
)

// Row is one observation keyed by column name.
// Example: {"ts": "2025-10-25T17:00:00Z", "workload": 61.2, "outlet": 44.8}
type Row map[string]any

// DataFrame is a lightweight structure for tabular data returned by adapters.
// Rows are in chronological order.
type DataFrame struct {
	Rows []Row
}

// Adapter is the interface that all telemetry adapters implement.
//
// Collect is synchronous and should respect context cancellation and
// deadlines. windowSeconds bounds how much history is requested; adapters
// over static sources may ignore it.
type Adapter interface {
	Collect(ctx context.Context, windowSeconds int) (*DataFrame, error)

	// Name returns a short identifier such as "csv" or "prometheus".
	Name() string
}

// AlignTimestamp truncates ts to the adapter step.
func AlignTimestamp(ts time.Time, stepSec int) time.Time {
	return ts.Truncate(time.Duration(stepSec) * time.Second)
}
