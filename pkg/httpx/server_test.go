package httpx

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	heatcasttls "github.com/HatiCode/heatcast/pkg/tls"
)

func discardLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestWriteErrorMessage(t *testing.T) {
	w := httptest.NewRecorder()
	WriteErrorMessage(w, http.StatusUnprocessableEntity, "index out of range")

	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	var resp ErrorResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Error != "index out of range" {
		t.Errorf("error = %q", resp.Error)
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	panicky := http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") })
	h := RecoveryMiddleware(discardLogger())(panicky)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/forecast/sample", nil))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
}

func TestCORSMiddleware(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

	t.Run("simple request", func(t *testing.T) {
		w := httptest.NewRecorder()
		CORSMiddleware("*")(ok).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
			t.Errorf("Allow-Origin = %q", got)
		}
		if w.Code != http.StatusOK {
			t.Errorf("status = %d", w.Code)
		}
	})

	t.Run("preflight", func(t *testing.T) {
		w := httptest.NewRecorder()
		CORSMiddleware("https://dash.example.com")(ok).ServeHTTP(w, httptest.NewRequest(http.MethodOptions, "/", nil))
		if w.Code != http.StatusNoContent {
			t.Errorf("status = %d, want 204", w.Code)
		}
		if got := w.Header().Get("Vary"); got != "Origin" {
			t.Errorf("Vary = %q", got)
		}
	})

	t.Run("disabled", func(t *testing.T) {
		w := httptest.NewRecorder()
		CORSMiddleware("")(ok).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
			t.Errorf("Allow-Origin = %q, want none", got)
		}
	})
}

func TestChain_Order(t *testing.T) {
	var order []string
	mark := func(name string) func(http.Handler) http.Handler {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}
	h := Chain(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { order = append(order, "handler") }),
		mark("outer"), mark("inner"))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	want := []string{"outer", "inner", "handler"}
	if len(order) != len(want) {
		t.Fatalf("order = %v", order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("order = %v, want %v", order, want)
		}
	}
}

func TestHealthHandler(t *testing.T) {
	w := httptest.NewRecorder()
	HealthHandler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/livez", nil))
	if w.Code != http.StatusOK || w.Body.String() != "OK" {
		t.Errorf("got %d %q", w.Code, w.Body.String())
	}
}

func TestNewClient(t *testing.T) {
	c, err := NewClient(heatcasttls.Config{}, 5*time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if c.Timeout != 5*time.Second {
		t.Errorf("Timeout = %v", c.Timeout)
	}

	_, err = NewClient(heatcasttls.Config{Enabled: true, CAFile: "/nonexistent/ca.pem"}, time.Second)
	if err == nil {
		t.Error("expected error for missing CA file")
	}
}

func TestLoggingMiddleware(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		wantLevel string
	}{
		{name: "ok", status: http.StatusOK, body: `{"sampled_index":72}`, wantLevel: "INFO"},
		{name: "client error", status: http.StatusBadRequest, body: `{"error":"bad window"}`, wantLevel: "INFO"},
		{name: "server error", status: http.StatusServiceUnavailable, body: "down", wantLevel: "WARN"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := slog.New(slog.NewJSONHandler(&buf, nil))
			h := LoggingMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))

			h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/forecast/sample?window=2", nil))

			var rec struct {
				Level  string `json:"level"`
				Path   string `json:"path"`
				Query  string `json:"query"`
				Status int    `json:"status"`
				Bytes  int    `json:"bytes"`
			}
			if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
				t.Fatalf("decode log record %q: %v", buf.String(), err)
			}
			if rec.Level != tt.wantLevel || rec.Status != tt.status {
				t.Errorf("level/status = %s/%d, want %s/%d", rec.Level, rec.Status, tt.wantLevel, tt.status)
			}
			if rec.Path != "/forecast/sample" || rec.Query != "window=2" || rec.Bytes != len(tt.body) {
				t.Errorf("record = %+v", rec)
			}
		})
	}
}
