package adapters

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"
)

// ErrTelemetryGap is returned when a signal has no sample for an hour inside
// the range covered by every signal.
var ErrTelemetryGap = errors.New("telemetry gap")

// PrometheusAdapter fetches telemetry from the Prometheus HTTP API (or a
// compatible server such as VictoriaMetrics). It issues one
// /api/v1/query_range call per column and joins the results on timestamp:
//
//	{"ts": RFC3339 string, "workload": float64, "outlet": float64, ...}
//
// Within a column, multiple series are SUMMED per timestamp. Rows cover the
// steps from the latest first sample to the earliest last sample across
// columns; a missing step inside that range fails with ErrTelemetryGap.
type PrometheusAdapter struct {
	// ServerURL is the base URL, e.g. http://prometheus.monitoring.svc:9090
	ServerURL string
	// Queries maps an output column name to its PromQL expression.
	Queries map[string]string
	// StepSeconds controls the resolution (defaults to 3600s if <= 0).
	StepSeconds int
	// HTTPClient is optional; if nil a default client with timeout is used.
	HTTPClient *http.Client
}

func (p *PrometheusAdapter) Name() string { return "prometheus" }

func (p *PrometheusAdapter) step() int {
	if p.StepSeconds <= 0 {
		return 3600
	}
	return p.StepSeconds
}

// Collect implements Adapter.
func (p *PrometheusAdapter) Collect(ctx context.Context, windowSeconds int) (*DataFrame, error) {
	if p.ServerURL == "" || len(p.Queries) == 0 {
		return &DataFrame{}, errors.New("prometheus adapter: ServerURL and Queries are required")
	}

	columns := make([]string, 0, len(p.Queries))
	for name := range p.Queries {
		columns = append(columns, name)
	}
	sort.Strings(columns)

	values := make([]map[int64]float64, len(columns))
	first, last := int64(math.MinInt64), int64(math.MaxInt64)
	for i, column := range columns {
		v, err := p.queryRange(ctx, p.Queries[column], windowSeconds)
		if err != nil {
			return &DataFrame{}, fmt.Errorf("prometheus adapter: column %q: %w", column, err)
		}
		if len(v) == 0 {
			return &DataFrame{}, fmt.Errorf("prometheus adapter: column %q returned no samples", column)
		}
		lo, hi := span(v)
		first, last = max(first, lo), min(last, hi)
		values[i] = v
	}
	if first > last {
		return &DataFrame{}, fmt.Errorf("prometheus adapter: %w: columns share no time range", ErrTelemetryGap)
	}

	step := int64(p.step())
	rows := make([]Row, 0, (last-first)/step+1)
	for ts := first; ts <= last; ts += step {
		row := Row{"ts": time.Unix(ts, 0).UTC().Format(time.RFC3339)}
		for i, column := range columns {
			v, ok := values[i][ts]
			if !ok {
				return &DataFrame{}, fmt.Errorf("prometheus adapter: %w: column %q has no sample at %s",
					ErrTelemetryGap, column, row["ts"])
			}
			row[column] = v
		}
		rows = append(rows, row)
	}

	return &DataFrame{Rows: rows}, nil
}

// span returns the earliest and latest timestamps in v.
func span(v map[int64]float64) (lo, hi int64) {
	lo, hi = math.MaxInt64, math.MinInt64
	for ts := range v {
		lo, hi = min(lo, ts), max(hi, ts)
	}
	return lo, hi
}

func (p *PrometheusAdapter) queryRange(ctx context.Context, query string, windowSeconds int) (map[int64]float64, error) {
	step := p.step()
	now := AlignTimestamp(time.Now().UTC(), step)
	start := now.Add(-time.Duration(windowSeconds) * time.Second)

	u, err := url.Parse(p.ServerURL)
	if err != nil {
		return nil, fmt.Errorf("invalid ServerURL: %w", err)
	}
	u.Path = "/api/v1/query_range"

	q := u.Query()
	q.Set("query", query)
	q.Set("start", strconv.FormatInt(start.Unix(), 10))
	q.Set("end", strconv.FormatInt(now.Unix(), 10))
	q.Set("step", strconv.Itoa(step))
	u.RawQuery = q.Encode()

	cli := p.HTTPClient
	if cli == nil {
		cli = &http.Client{Timeout: 30 * time.Second}
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
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	var pr PrometheusRangeResponse
	if err := json.NewDecoder(resp.Body).Decode(&pr); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if pr.Status != "success" {
		return nil, fmt.Errorf("status: %s", pr.Status)
	}

	return AggregateRangeResult(pr.Data.Result)
}

// PrometheusRangeResponse represents the response from Prometheus (and compatible systems).
type PrometheusRangeResponse struct {
	Status string              `json:"status"`
	Data   PrometheusRangeData `json:"data"`
}

// PrometheusRangeData contains the result data from a range query.
type PrometheusRangeData struct {
	ResultType string                 `json:"resultType"`
	Result     []PrometheusRangeSerie `json:"result"`
}

// PrometheusRangeSerie represents a single time series in the result.
type PrometheusRangeSerie struct {
	Metric map[string]string `json:"metric"`
	// Values is an array of [ <unix_time_float>, "<value_string>" ]
	Values [][]any `json:"values"`
}

// AggregateRangeResult sums all series per unix-second timestamp.
func AggregateRangeResult(series []PrometheusRangeSerie) (map[int64]float64, error) {
	acc := make(map[int64]float64)
	for _, s := range series {
		for _, pair := range s.Values {
			if len(pair) != 2 {
				return nil, fmt.Errorf("invalid value pair length: %d", len(pair))
			}

			var tsSec int64
			switch v := pair[0].(type) {
			case float64:
				tsSec = int64(v)
			case json.Number:
				f, _ := v.Float64()
				tsSec = int64(f)
			default:
				return nil, fmt.Errorf("unexpected timestamp type %T", v)
			}

			var val float64
			switch vv := pair[1].(type) {
			case string:
				f, err := strconv.ParseFloat(vv, 64)
				if err != nil {
					return nil, fmt.Errorf("parse value: %w", err)
				}
				val = f
			case float64:
				val = vv
			default:
				return nil, fmt.Errorf("unexpected value type %T", vv)
			}
			acc[tsSec] += val
		}
	}
	return acc, nil
}
