// Command server serves waste-heat forecast samples for dashboards.
//
// At startup it loads the trained artifact, rebuilds the feature table from
// the configured telemetry source with the artifact's lags and horizon, and
// refuses to start if the artifact is missing or no longer matches the
// table's feature set. The loaded state is then shared read-only by every
// request.
//
// HTTP API (port 8082, configurable):
//   - GET /forecast/sample?window=<int>&index=<int> - past 6-hour heat aggregates plus forecast
//   - GET /healthz - readiness, model identifier, horizon
//   - GET /livez - liveness
//   - GET /metrics - Prometheus metrics
//
// gRPC (port 50052, configurable) exposes grpc.health.v1.Health, reporting
// NOT_SERVING while the model loads and SERVING once requests can be
// answered.
//
// Usage:
//
//	server -input=data/cooling.csv -artifact-dir=artifacts -scale=1
//
// Environment variables:
//
//	LISTEN         - HTTP listen address (default: :8082)
//	GRPC_LISTEN    - gRPC health listen address (default: :50052)
//	INPUT          - CSV telemetry file
//	STORAGE        - Artifact storage: file, redis, memory (default: file)
//	ARTIFACT       - Artifact name (default: heat_model)
//	SCALE          - Multiplier applied to returned heat values (default: 1)
//	DEFAULT_WINDOW - Past aggregates when the request names none (default: 12)
//	CORS_ORIGIN    - Allowed origin (default: *)
//	LOG_LEVEL      - Logging level: debug, info, warn, error (default: info)
//	LOG_FORMAT     - Logging format: text, json (default: text)
package main

import (
	"context"
	"io"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/HatiCode/heatcast/cmd/server/config"
	"github.com/HatiCode/heatcast/cmd/server/logger"
	"github.com/HatiCode/heatcast/cmd/server/metrics"
	"github.com/HatiCode/heatcast/cmd/server/router"
	"github.com/HatiCode/heatcast/cmd/server/service"
	"github.com/HatiCode/heatcast/pkg/adapters"
	"github.com/HatiCode/heatcast/pkg/httpx"
	"github.com/HatiCode/heatcast/pkg/storage"
	heatcasttls "github.com/HatiCode/heatcast/pkg/tls"
)

// version is set via ldflags at build time
var version = "dev"

func main() {
	cfg := config.ParseFlags()

	log := logger.New(cfg)
	slog.SetDefault(log)

	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	log.Info("starting heatcast server",
		"version", version,
		"listen", cfg.Listen,
		"grpc_listen", cfg.GRPCListen,
		"adapter", cfg.Adapter,
		"artifact", cfg.Artifact,
		"storage", cfg.Storage,
		"scale", cfg.Scale,
		"tls_enabled", cfg.TLS.Enabled,
	)

	var serverTLS *heatcasttls.Config
	if cfg.TLS.Enabled {
		serverTLS = &cfg.TLS
	}

	grpcServer, healthServer, err := newGRPCServer(serverTLS)
	if err != nil {
		log.Error("failed to create grpc server", "error", err)
		os.Exit(1)
	}
	if cfg.GRPCListen != "" {
		lis, err := net.Listen("tcp", cfg.GRPCListen)
		if err != nil {
			log.Error("failed to listen", "address", cfg.GRPCListen, "error", err)
			os.Exit(1)
		}
		go func() {
			log.Info("grpc server listening", "address", cfg.GRPCListen)
			if err := grpcServer.Serve(lis); err != nil {
				log.Error("grpc server failed", "error", err)
			}
		}()
	}

	svc, err := load(cfg, log)
	if err != nil {
		log.Error("model unavailable, refusing to serve", "error", err)
		grpcServer.Stop()
		os.Exit(1)
	}

	m := metrics.New(prometheus.DefaultRegisterer)
	h := svc.Health()
	m.SetModel(h.Model, h.Kind, svc.Horizon(), h.Rows)

	mux := router.SetupRoutes(svc, m, cfg.RequestTimeout, log)
	httpServer := httpx.NewServer(cfg.Listen, router.Handler(mux, cfg.CORSOrigin, log), log)

	serverErr := make(chan error, 1)
	if cfg.TLS.Enabled {
		tlsConfig, err := heatcasttls.NewServerTLSConfig(cfg.TLS)
		if err != nil {
			log.Error("failed to create TLS config", "error", err)
			os.Exit(1)
		}
		httpServer.SetTLSConfig(tlsConfig)
		go func() {
			serverErr <- httpServer.StartTLS("", "")
		}()
	} else {
		go func() {
			serverErr <- httpServer.Start()
		}()
	}

	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	log.Info("serving forecasts", "model_id", h.Model, "horizon", h.Horizon, "rows", h.Rows)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		log.Info("received shutdown signal", "signal", sig)
	case err := <-serverErr:
		if err != nil {
			log.Error("server failed", "error", err)
		}
	}

	log.Info("shutting down")
	healthServer.Shutdown()
	grpcServer.GracefulStop()

	if err := httpServer.Stop(10 * time.Second); err != nil {
		log.Error("server shutdown failed", "error", err)
		os.Exit(1)
	}

	log.Info("shutdown complete")
}

// newGRPCServer creates a gRPC server exposing the standard health service,
// initially NOT_SERVING. tlsCfg nil serves plaintext.
func newGRPCServer(tlsCfg *heatcasttls.Config) (*grpc.Server, *health.Server, error) {
	var opts []grpc.ServerOption
	if tlsCfg != nil {
		tc, err := heatcasttls.NewServerTLSConfig(*tlsCfg)
		if err != nil {
			return nil, nil, err
		}
		opts = append(opts, grpc.Creds(credentials.NewTLS(tc)))
	}

	grpcServer := grpc.NewServer(opts...)

	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_NOT_SERVING)

	reflection.Register(grpcServer)

	return grpcServer, healthServer, nil
}

// load builds the serving context. Every failure here is fatal.
func load(cfg *config.Config, log *slog.Logger) (*service.Context, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	store, err := storage.Open(cfg.StorageOptions())
	if err != nil {
		return nil, err
	}
	if closer, ok := store.(io.Closer); ok {
		defer func() {
			if err := closer.Close(); err != nil {
				log.Error("failed to close store", "error", err)
			}
		}()
	}

	// Outbound calls present the server certificate and trust the same CA.
	client, err := httpx.NewClient(cfg.TLS, 30*time.Second)
	if err != nil {
		return nil, err
	}

	adapter, err := adapters.New(cfg.Adapter, cfg.AdapterConfig, int(cfg.Step.Seconds()))
	if err != nil {
		return nil, err
	}
	adapters.SetHTTPClient(adapter, client)

	return service.Load(ctx, store, cfg.Artifact, adapter, cfg.History, service.Options{
		Scale:         cfg.Scale,
		DefaultWindow: cfg.DefaultWindow,
		Seed:          cfg.Seed,
		HTTPClient:    client,
	}, log)
}
