package adapters

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"text/template"
	"time"

	"github.com/tidwall/gjson"
)

// HTTPAdapter calls a REST endpoint returning JSON and extracts one array per
// telemetry column using gjson path expressions.
//
// It supports:
//   - Configurable HTTP method (GET, POST, etc.)
//   - Template-based request body with variables: {{.WindowSeconds}}, {{.Start}}, {{.End}}, {{.Step}}
//   - Custom headers including authentication
//   - Per-column JSON paths; all arrays must have the same length
//   - Optional timestamp path used to order rows (RFC3339, Unix seconds, Unix milliseconds)
//
// Example configuration for a building-management API:
//
//	adapter := &HTTPAdapter{
//	    URL: "https://bms.example.com/api/cooling",
//	    Columns: map[string]string{
//	        "workload": "hours.#.it_load",
//	        "outlet":   "hours.#.supply_return.return",
//	        "inlet":    "hours.#.supply_return.supply",
//	    },
//	    TimestampPath: "hours.#.ts",
//	}
type HTTPAdapter struct {
	// URL is the endpoint to call (required)
	URL string

	// Method is the HTTP method. Defaults to GET.
	Method string

	// Headers are custom HTTP headers. Values can use template variables.
	Headers map[string]string

	// Body is the request body template (for POST/PUT).
	Body string

	// Columns maps an output column name to the gjson path of its values.
	Columns map[string]string

	// TimestampPath is the gjson path to timestamps. Optional; when empty the
	// response order is kept.
	TimestampPath string

	// TimestampFormat is "rfc3339" (default), "unix" or "unix_milli".
	TimestampFormat string

	// StepSeconds is the sampling resolution, 3600 if <= 0.
	StepSeconds int

	// HTTPClient is optional; if nil a default client with timeout is used.
	HTTPClient *http.Client

	// TemplateVars are extra variables available in Body and Headers templates.
	TemplateVars map[string]string
}

func (h *HTTPAdapter) Name() string { return "http" }

// Collect implements Adapter.
func (h *HTTPAdapter) Collect(ctx context.Context, windowSeconds int) (*DataFrame, error) {
	if err := h.ValidateConfig(); err != nil {
		return &DataFrame{}, fmt.Errorf("http adapter: %w", err)
	}

	step := h.StepSeconds
	if step <= 0 {
		step = 3600
	}

	now := time.Now().UTC().Truncate(time.Second)
	start := now.Add(-time.Duration(windowSeconds) * time.Second)

	templateData := map[string]any{
		"WindowSeconds": windowSeconds,
		"Start":         start.Unix(),
		"End":           now.Unix(),
		"Step":          step,
		"StartRFC3339":  start.Format(time.RFC3339),
		"EndRFC3339":    now.Format(time.RFC3339),
	}
	for k, v := range h.TemplateVars {
		templateData[k] = v
	}

	method := h.Method
	if method == "" {
		method = http.MethodGet
	}

	var bodyReader io.Reader
	if h.Body != "" {
		rendered, err := renderTemplate(h.Body, templateData)
		if err != nil {
			return &DataFrame{}, fmt.Errorf("render body template: %w", err)
		}
		bodyReader = bytes.NewBufferString(rendered)
	}

	cli := h.HTTPClient
	if cli == nil {
		cli = &http.Client{Timeout: 30 * time.Second}
	}

	req, err := http.NewRequestWithContext(ctx, method, h.URL, bodyReader)
	if err != nil {
		return &DataFrame{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	for key, value := range h.Headers {
		rendered, err := renderTemplate(value, templateData)
		if err != nil {
			return &DataFrame{}, fmt.Errorf("render header %s: %w", key, err)
		}
		req.Header.Set(key, rendered)
	}

	resp, err := cli.Do(req)
	if err != nil {
		return &DataFrame{}, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &DataFrame{}, fmt.Errorf("http status %d: %s", resp.StatusCode, string(body))
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &DataFrame{}, fmt.Errorf("read response: %w", err)
	}

	return h.extract(respBody)
}

func (h *HTTPAdapter) extract(body []byte) (*DataFrame, error) {
	names := make([]string, 0, len(h.Columns))
	for name := range h.Columns {
		names = append(names, name)
	}
	sort.Strings(names)

	n := -1
	arrays := make(map[string][]gjson.Result, len(names))
	for _, name := range names {
		path := h.Columns[name]
		res := gjson.GetBytes(body, path)
		if !res.Exists() {
			return &DataFrame{}, fmt.Errorf("path %q for column %q not found in response", path, name)
		}
		arr := res.Array()
		if n >= 0 && len(arr) != n {
			return &DataFrame{}, fmt.Errorf("column %q has %d values, expected %d", name, len(arr), n)
		}
		n = len(arr)
		arrays[name] = arr
	}

	var timestamps []gjson.Result
	if h.TimestampPath != "" {
		res := gjson.GetBytes(body, h.TimestampPath)
		if !res.Exists() {
			return &DataFrame{}, fmt.Errorf("timestamp path %q not found in response", h.TimestampPath)
		}
		timestamps = res.Array()
		if len(timestamps) != n {
			return &DataFrame{}, fmt.Errorf("timestamp count (%d) != value count (%d)", len(timestamps), n)
		}
	}

	rows := make([]Row, 0, n)
	times := make([]time.Time, 0, n)
	for i := 0; i < n; i++ {
		row := make(Row, len(names)+1)
		for _, name := range names {
			row[name] = arrays[name][i].Float()
		}
		if timestamps != nil {
			ts, err := h.parseTimestamp(timestamps[i])
			if err != nil {
				return &DataFrame{}, fmt.Errorf("parse timestamp[%d]: %w", i, err)
			}
			times = append(times, ts)
			row["ts"] = ts.UTC().Format(time.RFC3339)
		}
		rows = append(rows, row)
	}

	if len(times) == len(rows) && len(times) > 0 {
		idx := make([]int, len(rows))
		for i := range idx {
			idx[i] = i
		}
		sort.SliceStable(idx, func(a, b int) bool { return times[idx[a]].Before(times[idx[b]]) })
		sorted := make([]Row, len(rows))
		for i, j := range idx {
			sorted[i] = rows[j]
		}
		rows = sorted
	}

	return &DataFrame{Rows: rows}, nil
}

// parseTimestamp parses a timestamp according to the configured format.
func (h *HTTPAdapter) parseTimestamp(value gjson.Result) (time.Time, error) {
	switch h.TimestampFormat {
	case "", "rfc3339":
		return time.Parse(time.RFC3339, value.String())
	case "unix":
		return time.Unix(int64(value.Float()), 0).UTC(), nil
	case "unix_milli":
		return time.UnixMilli(int64(value.Float())).UTC(), nil
	default:
		return time.Time{}, fmt.Errorf("unsupported timestamp format: %s", h.TimestampFormat)
	}
}

// renderTemplate renders a text template with the given data.
func renderTemplate(tmplStr string, data map[string]any) (string, error) {
	if !strings.Contains(tmplStr, "{{") {
		return tmplStr, nil
	}

	tmpl, err := template.New("").Parse(tmplStr)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}

	return buf.String(), nil
}

// ValidateConfig checks if the adapter configuration is valid.
func (h *HTTPAdapter) ValidateConfig() error {
	if h.URL == "" {
		return errors.New("url is required")
	}
	if len(h.Columns) == 0 {
		return errors.New("at least one column path is required")
	}
	switch h.TimestampFormat {
	case "", "rfc3339", "unix", "unix_milli":
	default:
		return fmt.Errorf("invalid timestampFormat: %s (must be rfc3339, unix, or unix_milli)", h.TimestampFormat)
	}
	return nil
}
