// Package router configures the forecast server's HTTP API.
//
// Routes configured:
//   - GET /forecast/sample?window=<int>&index=<int> - past 6-hour heat aggregates plus one forecast
//   - GET /healthz - readiness, loaded model and horizon
//   - GET /livez - liveness (always 200 OK)
//   - GET /metrics - Prometheus metrics endpoint
//
// Both query parameters are optional. window defaults to the server's
// configured value; without index a valid one is drawn at random. Malformed
// parameters return 400, an index or window the table cannot satisfy returns
// 422 so the caller can retry with other values.
package router

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/HatiCode/heatcast/cmd/server/metrics"
	"github.com/HatiCode/heatcast/cmd/server/service"
	"github.com/HatiCode/heatcast/pkg/forecast"
	"github.com/HatiCode/heatcast/pkg/httpx"
)

// maxWindow bounds the number of aggregates a single request may ask for.
const maxWindow = 10000

// Sampler is the serving state the handlers read from.
type Sampler interface {
	Sample(ctx context.Context, window int, index *int) (forecast.Payload, error)
	Health() service.Health
}

// SetupRoutes configures HTTP endpoints for the server.
func SetupRoutes(svc Sampler, m *metrics.Metrics, timeout time.Duration, logger *slog.Logger) *http.ServeMux {
	if logger == nil {
		logger = slog.Default()
	}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /forecast/sample", handleSample(svc, m, timeout, logger))
	mux.HandleFunc("GET /healthz", handleHealth(svc, logger))
	mux.Handle("GET /livez", httpx.HealthHandler())
	mux.Handle("GET /metrics", promhttp.Handler())

	return mux
}

// Handler wraps mux with recovery, request logging and CORS.
func Handler(mux http.Handler, corsOrigin string, logger *slog.Logger) http.Handler {
	return httpx.Chain(mux,
		httpx.RecoveryMiddleware(logger),
		httpx.LoggingMiddleware(logger),
		httpx.CORSMiddleware(corsOrigin),
	)
}

// handleSample returns a handler for GET /forecast/sample.
func handleSample(svc Sampler, m *metrics.Metrics, timeout time.Duration, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		q := r.URL.Query()

		window := 0
		if raw := q.Get("window"); raw != "" {
			v, err := strconv.Atoi(raw)
			if err != nil || v < 1 || v > maxWindow {
				recordError(m, "bad_request")
				httpx.WriteErrorMessage(w, http.StatusBadRequest, "window must be an integer between 1 and 10000")
				return
			}
			window = v
		}

		var index *int
		if raw := q.Get("index"); raw != "" {
			v, err := strconv.Atoi(raw)
			if err != nil || v < 0 {
				recordError(m, "bad_request")
				httpx.WriteErrorMessage(w, http.StatusBadRequest, "index must be a non-negative integer")
				return
			}
			index = &v
		}

		ctx := r.Context()
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}

		payload, err := svc.Sample(ctx, window, index)
		if err != nil {
			switch {
			case errors.Is(err, forecast.ErrOutOfRange):
				recordError(m, "out_of_range")
				httpx.WriteError(w, http.StatusUnprocessableEntity, err)
			case errors.Is(err, forecast.ErrInvalidWindow):
				recordError(m, "bad_request")
				httpx.WriteError(w, http.StatusBadRequest, err)
			default:
				recordError(m, "predict_failed")
				logger.Error("sample failed", "window", window, "error", err)
				httpx.WriteErrorMessage(w, http.StatusInternalServerError, "internal server error")
			}
			return
		}

		if m != nil {
			m.RecordSample(time.Since(start).Seconds())
			m.SetPredictedValue(payload.PredictedValue)
		}

		if err := httpx.WriteJSON(w, http.StatusOK, payload); err != nil {
			logger.Error("failed to write JSON response", "error", err)
		}
	}
}

// handleHealth returns a handler for GET /healthz.
func handleHealth(svc Sampler, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := httpx.WriteJSON(w, http.StatusOK, svc.Health()); err != nil {
			logger.Error("failed to write JSON response", "error", err)
		}
	}
}

func recordError(m *metrics.Metrics, reason string) {
	if m != nil {
		m.RecordError(reason)
	}
}
