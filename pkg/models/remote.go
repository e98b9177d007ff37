package models

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/tidwall/gjson"
)

// RemoteRegressorName identifies RemoteRegressor.
const RemoteRegressorName = "remote"

// RemoteRegressor delegates training and inference to an external HTTP model
// service, so any framework can back the pipeline as long as it implements:
//
//	POST {endpoint}/fit      {"params": {...}, "features": [[...]], "targets": [...]} -> {"model_id": "..."}
//	POST {endpoint}/predict  {"model_id": "...", "features": [[...]]} -> {"predictions": [...]}
//
// The response path for predictions is configurable through ValuesPath
// (gjson syntax). ModelID is optional; services that keep a single model may
// omit it.
type RemoteRegressor struct {
	Endpoint   string `json:"endpoint"`
	ValuesPath string `json:"values_path,omitempty"`
	ModelID    string `json:"model_id,omitempty"`

	// Params are forwarded with every fit request so the service can honour
	// the candidate being searched.
	Params Params `json:"params"`

	once   sync.Once
	client *http.Client
}

type remoteFitRequest struct {
	Now      string      `json:"now"`
	Params   Params      `json:"params"`
	Features [][]float64 `json:"features"`
	Targets  []float64   `json:"targets"`
}

type remotePredictRequest struct {
	ModelID  string      `json:"model_id,omitempty"`
	Features [][]float64 `json:"features"`
}

// NewRemoteRegressor creates a regressor backed by the service at endpoint.
func NewRemoteRegressor(endpoint string) *RemoteRegressor {
	return &RemoteRegressor{
		Endpoint:   strings.TrimRight(endpoint, "/"),
		ValuesPath: "predictions",
	}
}

// WithHTTPClient replaces the default client, e.g. with one carrying TLS
// settings. It must be called before the first Fit or Predict.
func (m *RemoteRegressor) WithHTTPClient(c *http.Client) *RemoteRegressor {
	m.client = c
	return m
}

// Name returns the model identifier.
func (m *RemoteRegressor) Name() string { return RemoteRegressorName }

// Fit uploads the training set and records the model id returned by the service.
func (m *RemoteRegressor) Fit(ctx context.Context, X [][]float64, y []float64) error {
	if _, err := checkShape(X, y); err != nil {
		return fmt.Errorf("remote: %w", err)
	}

	body, err := m.post(ctx, "/fit", remoteFitRequest{
		Now:      time.Now().UTC().Format(time.RFC3339),
		Params:   m.Params,
		Features: X,
		Targets:  y,
	})
	if err != nil {
		return err
	}

	if id := gjson.GetBytes(body, "model_id"); id.Exists() {
		m.ModelID = id.String()
	}
	return nil
}

// Predict asks the service for one prediction per row.
func (m *RemoteRegressor) Predict(ctx context.Context, X [][]float64) ([]float64, error) {
	if len(X) == 0 {
		return nil, fmt.Errorf("remote: features cannot be empty")
	}

	body, err := m.post(ctx, "/predict", remotePredictRequest{ModelID: m.ModelID, Features: X})
	if err != nil {
		return nil, err
	}

	path := m.ValuesPath
	if path == "" {
		path = "predictions"
	}
	res := gjson.GetBytes(body, path)
	if !res.IsArray() {
		return nil, fmt.Errorf("remote: path %q is not an array in response", path)
	}
	arr := res.Array()
	if len(arr) != len(X) {
		return nil, fmt.Errorf("remote: expected %d predictions, got %d", len(X), len(arr))
	}

	out := make([]float64, len(arr))
	for i, v := range arr {
		if v.Type != gjson.Number {
			return nil, fmt.Errorf("remote: prediction %d is not a number: %s", i, v.Raw)
		}
		out[i] = v.Float()
	}
	return out, nil
}

func (m *RemoteRegressor) post(ctx context.Context, path string, payload any) ([]byte, error) {
	if m.Endpoint == "" {
		return nil, fmt.Errorf("remote: endpoint is required")
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("remote: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.Endpoint+path, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("remote: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.httpClient().Do(req)
	if err != nil {
		return nil, fmt.Errorf("remote: http request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("remote: http %d: %s", resp.StatusCode, string(msg))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("remote: read response: %w", err)
	}
	if len(body) > 0 && !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("remote: malformed JSON response")
	}
	return body, nil
}

func (m *RemoteRegressor) httpClient() *http.Client {
	m.once.Do(func() {
		if m.client != nil {
			return
		}
		m.client = &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				IdleConnTimeout:     90 * time.Second,
				MaxIdleConnsPerHost: 2,
			},
		}
	})
	return m.client
}
