package adapters

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// New creates an adapter based on kind and generic configuration map.
//
// Supported kinds:
//   - "csv": requires "path"
//   - "prometheus" / "victoriametrics": requires "queries" (JSON object column → PromQL)
//   - "http": requires "url" and "columns" (JSON object column → gjson path)
//
// Returns error if kind is unknown or required fields are missing.
func New(kind string, config map[string]string, stepSeconds int) (Adapter, error) {
	switch kind {
	case "csv":
		return newCSV(config)
	case "prometheus":
		return newPrometheus(config, stepSeconds, "http://localhost:9090")
	case "victoriametrics":
		return newPrometheus(config, stepSeconds, "http://localhost:8428")
	case "http":
		return newHTTP(config, stepSeconds)
	default:
		return nil, fmt.Errorf("unknown adapter kind: %s (must be csv, prometheus, victoriametrics, or http)", kind)
	}
}

// SetHTTPClient installs client on adapters that make HTTP requests. Other
// adapters are left unchanged.
func SetHTTPClient(a Adapter, client *http.Client) {
	switch v := a.(type) {
	case *HTTPAdapter:
		v.HTTPClient = client
	case *PrometheusAdapter:
		v.HTTPClient = client
	}
}

func newCSV(config map[string]string) (Adapter, error) {
	path := config["path"]
	if path == "" {
		return nil, fmt.Errorf("csv adapter requires 'path' config")
	}
	return &CSVAdapter{Path: path}, nil
}

func newPrometheus(config map[string]string, stepSeconds int, defaultURL string) (Adapter, error) {
	queries, err := jsonMap(config, "queries")
	if err != nil {
		return nil, err
	}
	if len(queries) == 0 {
		return nil, fmt.Errorf("prometheus adapter requires 'queries' config")
	}

	url := config["url"]
	if url == "" {
		url = defaultURL
	}

	return &PrometheusAdapter{
		ServerURL:   url,
		Queries:     queries,
		StepSeconds: stepSeconds,
	}, nil
}

func newHTTP(config map[string]string, stepSeconds int) (Adapter, error) {
	url := config["url"]
	if url == "" {
		return nil, fmt.Errorf("http adapter requires 'url' config")
	}

	columns, err := jsonMap(config, "columns")
	if err != nil {
		return nil, err
	}
	if len(columns) == 0 {
		return nil, fmt.Errorf("http adapter requires 'columns' config")
	}

	headers, err := jsonMap(config, "headers")
	if err != nil {
		return nil, err
	}
	templateVars, err := jsonMap(config, "templateVars")
	if err != nil {
		return nil, err
	}

	method := config["method"]
	if method == "" {
		method = "GET"
	}

	adapter := &HTTPAdapter{
		URL:             url,
		Method:          method,
		Headers:         headers,
		Body:            config["body"],
		Columns:         columns,
		TimestampPath:   config["timestampPath"],
		TimestampFormat: config["timestampFormat"],
		StepSeconds:     stepSeconds,
		TemplateVars:    templateVars,
	}
	if err := adapter.ValidateConfig(); err != nil {
		return nil, err
	}
	return adapter, nil
}

func jsonMap(config map[string]string, key string) (map[string]string, error) {
	raw := config[key]
	if raw == "" {
		return nil, nil
	}
	var m map[string]string
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, fmt.Errorf("invalid '%s' JSON: %w", key, err)
	}
	return m, nil
}
