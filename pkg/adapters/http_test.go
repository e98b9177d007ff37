package adapters

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHTTPAdapter_BasicGET(t *testing.T) {
	body := `{
        "hours": [
            {"ts": "2025-01-01T02:00:00Z", "load": 70.5, "ret": 44.0, "sup": 30.5},
            {"ts": "2025-01-01T00:00:00Z", "load": 60.5, "ret": 42.0, "sup": 30.0},
            {"ts": "2025-01-01T01:00:00Z", "load": 65.0, "ret": 43.0, "sup": 30.25}
        ]
    }`

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("expected GET, got %s", r.Method)
		}
		if r.Header.Get("Accept") != "application/json" {
			t.Errorf("expected Accept: application/json header")
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, body)
	}))
	defer server.Close()

	adapter := &HTTPAdapter{
		URL: server.URL,
		Columns: map[string]string{
			"workload": "hours.#.load",
			"outlet":   "hours.#.ret",
			"inlet":    "hours.#.sup",
		},
		TimestampPath: "hours.#.ts",
	}

	df, err := adapter.Collect(context.Background(), 3*3600)
	if err != nil {
		t.Fatalf("Collect error: %v", err)
	}
	if len(df.Rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(df.Rows))
	}

	wantLoad := []float64{60.5, 65.0, 70.5}
	for i, row := range df.Rows {
		if v, ok := row["workload"].(float64); !ok || v != wantLoad[i] {
			t.Errorf("row %d: workload = %v, want %v", i, row["workload"], wantLoad[i])
		}
		if _, ok := row["ts"].(string); !ok {
			t.Errorf("row %d: timestamp not a string", i)
		}
	}
	if df.Rows[0]["inlet"].(float64) != 30.0 {
		t.Errorf("rows not sorted by timestamp: %v", df.Rows[0])
	}
}

func TestHTTPAdapter_POST_WithTemplates(t *testing.T) {
	var receivedBody, receivedAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		b, _ := io.ReadAll(r.Body)
		receivedBody = string(b)
		receivedAuth = r.Header.Get("Authorization")
		fmt.Fprint(w, `{"workload": [1, 2], "outlet": [3, 4]}`)
	}))
	defer server.Close()

	adapter := &HTTPAdapter{
		URL:          server.URL,
		Method:       http.MethodPost,
		Body:         `{"window": "{{.WindowSeconds}}s", "step": {{.Step}}}`,
		Headers:      map[string]string{"Authorization": "Bearer {{.Token}}"},
		Columns:      map[string]string{"workload": "workload", "outlet": "outlet"},
		TemplateVars: map[string]string{"Token": "secret"},
	}

	df, err := adapter.Collect(context.Background(), 7200)
	if err != nil {
		t.Fatalf("Collect error: %v", err)
	}
	if receivedBody != `{"window": "7200s", "step": 3600}` {
		t.Errorf("body = %q", receivedBody)
	}
	if receivedAuth != "Bearer secret" {
		t.Errorf("Authorization = %q", receivedAuth)
	}
	if len(df.Rows) != 2 || df.Rows[1]["outlet"].(float64) != 4 {
		t.Errorf("rows = %v", df.Rows)
	}
	if _, ok := df.Rows[0]["ts"]; ok {
		t.Error("ts should be absent without TimestampPath")
	}
}

func TestHTTPAdapter_Errors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		columns map[string]string
		wantErr string
	}{
		{
			name:    "non-200 status",
			status:  http.StatusBadGateway,
			body:    "upstream down",
			columns: map[string]string{"workload": "w"},
			wantErr: "http status 502",
		},
		{
			name:    "missing path",
			status:  http.StatusOK,
			body:    `{"w": [1]}`,
			columns: map[string]string{"workload": "nope"},
			wantErr: "not found",
		},
		{
			name:    "length mismatch",
			status:  http.StatusOK,
			body:    `{"a": [1, 2], "b": [1]}`,
			columns: map[string]string{"outlet": "a", "workload": "b"},
			wantErr: "has 1 values, expected 2",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			}))
			defer server.Close()

			adapter := &HTTPAdapter{URL: server.URL, Columns: tt.columns}
			_, err := adapter.Collect(context.Background(), 3600)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestHTTPAdapter_ValidateConfig(t *testing.T) {
	if err := (&HTTPAdapter{Columns: map[string]string{"a": "b"}}).ValidateConfig(); err == nil {
		t.Error("expected error for missing URL")
	}
	if err := (&HTTPAdapter{URL: "http://x"}).ValidateConfig(); err == nil {
		t.Error("expected error for missing columns")
	}
	bad := &HTTPAdapter{URL: "http://x", Columns: map[string]string{"a": "b"}, TimestampFormat: "julian"}
	if err := bad.ValidateConfig(); err == nil {
		t.Error("expected error for invalid timestamp format")
	}
}
