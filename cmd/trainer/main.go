// Command trainer builds the waste-heat forecasting model.
//
// It runs a single batch pass:
//  1. Collects hourly cooling telemetry (CSV export, HTTP API, or Prometheus)
//  2. Synthesizes lag, rolling, cyclical and heat-flux features plus the
//     forward K-hour heat target
//  3. Splits the table into expanding-window chronological folds
//  4. Runs a seeded random search over boosted-tree hyperparameters
//  5. Refits the best candidate on every row and persists it as an artifact
//
// Usage:
//
//	trainer -input=data/cooling.csv -horizon=1 -trials=30 -artifact-dir=artifacts
//
// Environment variables:
//
//	ADAPTER        - Telemetry source: csv, http, prometheus, victoriametrics (default: csv)
//	ADAPTER_*      - Adapter settings, e.g. ADAPTER_URL, ADAPTER_QUERIES, ADAPTER_COLUMNS
//	INPUT          - CSV telemetry file
//	LAGS           - Lag offsets in hours (default: 1,2,3,6,12,24)
//	HORIZON        - Forecast horizon K in hours (default: 1)
//	FOLDS          - Cross-validation folds (default: 5)
//	TRIALS         - Search candidates (default: 30)
//	SEED           - Sampling and fitting seed (default: 42)
//	STORAGE        - Artifact storage: file, redis, memory (default: file)
//	ARTIFACT       - Artifact name (default: heat_model)
//	LOG_LEVEL      - Logging level: debug, info, warn, error (default: info)
//	LOG_FORMAT     - Logging format: text, json (default: text)
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/HatiCode/heatcast/cmd/trainer/config"
	"github.com/HatiCode/heatcast/cmd/trainer/logger"
	"github.com/HatiCode/heatcast/cmd/trainer/metrics"
	"github.com/HatiCode/heatcast/pkg/adapters"
	"github.com/HatiCode/heatcast/pkg/features"
	"github.com/HatiCode/heatcast/pkg/httpx"
	"github.com/HatiCode/heatcast/pkg/models"
	"github.com/HatiCode/heatcast/pkg/search"
	"github.com/HatiCode/heatcast/pkg/storage"
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

	log.Info("starting heatcast trainer",
		"version", version,
		"adapter", cfg.Adapter,
		"model", cfg.Model,
		"lags", cfg.Lags,
		"horizon", cfg.Horizon,
		"folds", cfg.Folds,
		"trials", cfg.Trials,
		"seed", cfg.Seed,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("training failed", "error", err)
		stop()
		os.Exit(1)
	}
}

// run wires the pipeline from cfg and trains once.
func run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	client, err := httpx.NewClient(cfg.TLS, 60*time.Second)
	if err != nil {
		return fmt.Errorf("create HTTP client: %w", err)
	}

	adapter, err := adapters.New(cfg.Adapter, cfg.AdapterConfig, int(cfg.Step.Seconds()))
	if err != nil {
		return fmt.Errorf("create adapter: %w", err)
	}
	adapters.SetHTTPClient(adapter, client)

	opts, err := cfg.Options()
	if err != nil {
		return err
	}
	builder, err := features.NewBuilder(opts)
	if err != nil {
		return fmt.Errorf("feature options: %w", err)
	}

	space := search.DefaultSpace()
	if cfg.SearchSpace != "" {
		space, err = search.LoadSpace(cfg.SearchSpace)
		if err != nil {
			return fmt.Errorf("load search space %s: %w", cfg.SearchSpace, err)
		}
	}

	store, err := storage.Open(cfg.StorageOptions())
	if err != nil {
		return fmt.Errorf("open %s storage: %w", cfg.Storage, err)
	}
	if closer, ok := store.(io.Closer); ok {
		defer func() {
			if err := closer.Close(); err != nil {
				log.Error("failed to close store", "error", err)
			}
		}()
	}

	m := metrics.New(prometheus.DefaultRegisterer, cfg.Adapter, cfg.Model)

	if cfg.MetricsListen != "" {
		mux := http.NewServeMux()
		mux.Handle("/healthz", httpx.HealthHandler())
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer := httpx.NewServer(cfg.MetricsListen, mux, log)
		go func() {
			if err := metricsServer.Start(); err != nil {
				log.Error("metrics server failed", "error", err)
			}
		}()
		defer func() {
			if err := metricsServer.Stop(10 * time.Second); err != nil {
				log.Error("metrics server shutdown failed", "error", err)
			}
		}()
	}

	trainer := NewTrainer(
		adapter,
		builder,
		search.Config{
			Space:       space,
			Trials:      cfg.Trials,
			Seed:        cfg.Seed,
			Parallelism: cfg.Parallelism,
			Factory:     regressorFactory(cfg, client),
		},
		cfg.Folds,
		store,
		cfg.Artifact,
		cfg.History,
		os.Stdout,
		log,
		m,
	)

	_, err = trainer.Run(ctx)
	return err
}

// regressorFactory returns the search factory for cfg.Model.
func regressorFactory(cfg *config.Config, client *http.Client) search.Factory {
	if cfg.Model != "remote" {
		return search.GradientBoostingFactory
	}
	return func(p models.Params, seed uint64) models.Regressor {
		r := models.NewRemoteRegressor(cfg.RemoteURL).WithHTTPClient(client)
		r.Params = p
		return r
	}
}
