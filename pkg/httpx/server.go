// Package httpx holds the HTTP plumbing shared by the trainer and server:
// the listener, JSON replies, middleware and the outbound client.
package httpx

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	heatcasttls "github.com/HatiCode/heatcast/pkg/tls"
)

// Server is the HTTP listener behind the sampling API and the trainer's
// metrics endpoint. Stop drains in-flight requests before returning.
type Server struct {
	server *http.Server
	logger *slog.Logger
}

// NewServer binds handler to addr. A nil logger uses slog.Default().
func NewServer(addr string, handler http.Handler, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	return &Server{
		server: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		logger: logger,
	}
}

// SetTLSConfig installs config for StartTLS. Call it before serving.
func (s *Server) SetTLSConfig(config *tls.Config) {
	s.server.TLSConfig = config
}

// Start serves plain HTTP until Stop. A clean shutdown returns nil.
func (s *Server) Start() error {
	s.logger.Info("http listening", "addr", s.server.Addr, "tls", false)
	return s.serve(s.server.ListenAndServe())
}

// StartTLS serves HTTPS until Stop. Empty file names use the certificates
// already present in the TLS config.
func (s *Server) StartTLS(certFile, keyFile string) error {
	s.logger.Info("http listening", "addr", s.server.Addr, "tls", true)
	return s.serve(s.server.ListenAndServeTLS(certFile, keyFile))
}

func (s *Server) serve(err error) error {
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server on %s: %w", s.server.Addr, err)
	}
	return nil
}

// Stop refuses new connections and waits up to timeout for open requests.
func (s *Server) Stop(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	start := time.Now()
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("http shutdown on %s: %w", s.server.Addr, err)
	}
	s.logger.Info("http stopped", "addr", s.server.Addr, "drain_ms", time.Since(start).Milliseconds())
	return nil
}

// ErrorResponse is the body of every non-2xx JSON reply: {"error":"<msg>"}.
type ErrorResponse struct {
	Error string `json:"error"`
}

// WriteJSON sends v as JSON with status. The header is already written when
// encoding fails, so the error is only logged and returned.
func WriteJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "status", status, "error", err)
		return fmt.Errorf("encode response: %w", err)
	}
	return nil
}

// WriteError sends err's message as an ErrorResponse.
func WriteError(w http.ResponseWriter, status int, err error) {
	WriteErrorMessage(w, status, err.Error())
}

// WriteErrorMessage sends message as an ErrorResponse.
func WriteErrorMessage(w http.ResponseWriter, status int, message string) {
	_ = WriteJSON(w, status, ErrorResponse{Error: message})
}

// HealthHandler answers every request with 200 "OK". It backs /livez, which
// only proves the process is up; readiness lives in the service's /healthz.
func HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	}
}

// LoggingMiddleware emits one record per request. Server errors log at
// warn so a failing model shows up without debug logging.
func LoggingMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(rec, r)

			level := slog.LevelInfo
			if rec.status >= http.StatusInternalServerError {
				level = slog.LevelWarn
			}
			logger.Log(r.Context(), level, "request",
				"method", r.Method,
				"path", r.URL.Path,
				"query", r.URL.RawQuery,
				"status", rec.status,
				"bytes", rec.bytes,
				"duration_ms", time.Since(start).Milliseconds(),
			)
		})
	}
}

// statusRecorder captures the status code and body size of a response.
type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	n, err := r.ResponseWriter.Write(b)
	r.bytes += n
	return n, err
}

// RecoveryMiddleware turns a handler panic into a 500 JSON error and logs
// the panic value with the request that caused it.
func RecoveryMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if v := recover(); v != nil {
					logger.Error("handler panic",
						"panic", fmt.Sprint(v),
						"method", r.Method,
						"path", r.URL.Path,
						"query", r.URL.RawQuery,
					)
					WriteErrorMessage(w, http.StatusInternalServerError, "internal server error")
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}

// CORSMiddleware returns middleware that allows cross-origin GET requests
// from origin ("*" for any). Preflight OPTIONS requests are answered with 204.
// An empty origin disables the headers.
func CORSMiddleware(origin string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if origin == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Methods", "GET, OPTIONS")
			h.Set("Access-Control-Allow-Headers", "Content-Type")
			if origin != "*" {
				h.Add("Vary", "Origin")
			}
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Chain wraps h with middleware so that the first one listed runs outermost.
func Chain(h http.Handler, middleware ...func(http.Handler) http.Handler) http.Handler {
	for i := len(middleware) - 1; i >= 0; i-- {
		h = middleware[i](h)
	}
	return h
}

// NewClient creates the outbound client used for telemetry sources and remote
// models. With tlsCfg.Enabled the client verifies servers against tlsCfg.CAFile
// and presents its own certificate when one is configured.
func NewClient(tlsCfg heatcasttls.Config, timeout time.Duration) (*http.Client, error) {
	var cryptoTLSConfig *tls.Config
	var err error

	if tlsCfg.Enabled {
		cryptoTLSConfig, err = heatcasttls.NewClientTLSConfig(tlsCfg)
		if err != nil {
			return nil, fmt.Errorf("create TLS config: %w", err)
		}
	}

	transport := &http.Transport{
		MaxIdleConns:        10,
		IdleConnTimeout:     30 * time.Second,
		DisableKeepAlives:   false,
		TLSHandshakeTimeout: 5 * time.Second,
		TLSClientConfig:     cryptoTLSConfig,
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}, nil
}
