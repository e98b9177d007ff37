// Package config provides configuration parsing for the trainer.
//
// Flags take precedence over environment variables, which take precedence
// over defaults. Adapter-specific settings are read from ADAPTER_* variables
// and converted to lowerCamelCase keys (ADAPTER_TIMESTAMP_PATH becomes
// timestampPath).
//
// Example usage:
//
//	cfg := config.ParseFlags()
//	if err := cfg.Validate(); err != nil {
//	    // report and exit
//	}
package config

import (
	"flag"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/HatiCode/heatcast/pkg/artifact"
	"github.com/HatiCode/heatcast/pkg/features"
	"github.com/HatiCode/heatcast/pkg/folds"
	"github.com/HatiCode/heatcast/pkg/search"
	"github.com/HatiCode/heatcast/pkg/storage"
	"github.com/HatiCode/heatcast/pkg/tls"
)

// Config holds all trainer configuration.
type Config struct {
	LogFormat string
	LogLevel  string

	Adapter       string
	AdapterConfig map[string]string
	Input         string
	History       time.Duration
	Step          time.Duration

	Lags    string
	Horizon int

	Folds       int
	Trials      int
	Seed        uint64
	Parallelism int
	SearchSpace string
	Model       string
	RemoteURL   string

	Storage       string
	Artifact      string
	ArtifactDir   string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisTTL      time.Duration

	MetricsListen string
	TLS           tls.Config
}

// ParseFlags parses command-line flags and environment variables into a Config.
func ParseFlags() *Config {
	cfg := &Config{}

	flag.StringVar(&cfg.LogFormat, "log-format", getEnv("LOG_FORMAT", "text"), "Log format: text or json")
	flag.StringVar(&cfg.LogLevel, "log-level", getEnv("LOG_LEVEL", "info"), "Log level: debug, info, warn, error")

	flag.StringVar(&cfg.Adapter, "adapter", getEnv("ADAPTER", "csv"), "Telemetry source: csv, http, prometheus, or victoriametrics")
	flag.StringVar(&cfg.Input, "input", getEnv("INPUT", ""), "CSV telemetry file (csv adapter)")
	flag.DurationVar(&cfg.History, "history", getEnvDuration("HISTORY", 0), "History to request from the source (0 reads everything; required for remote sources)")
	flag.DurationVar(&cfg.Step, "step", getEnvDuration("STEP", time.Hour), "Telemetry resolution requested from remote sources")

	flag.StringVar(&cfg.Lags, "lags", getEnv("LAGS", "1,2,3,6,12,24"), "Comma-separated lag offsets in hours")
	flag.IntVar(&cfg.Horizon, "horizon", getEnvInt("HORIZON", 1), "Forecast horizon K in hours")

	flag.IntVar(&cfg.Folds, "folds", getEnvInt("FOLDS", folds.DefaultFolds), "Chronological cross-validation folds")
	flag.IntVar(&cfg.Trials, "trials", getEnvInt("TRIALS", search.DefaultTrials), "Hyperparameter candidates to evaluate")
	flag.Uint64Var(&cfg.Seed, "seed", getEnvUint64("SEED", search.DefaultSeed), "Seed for candidate sampling and model fitting")
	flag.IntVar(&cfg.Parallelism, "parallelism", getEnvInt("PARALLELISM", runtime.GOMAXPROCS(0)), "Concurrent fit/score units")
	flag.StringVar(&cfg.SearchSpace, "search-space", getEnv("SEARCH_SPACE", ""), "YAML file overriding the default search space")
	flag.StringVar(&cfg.Model, "model", getEnv("MODEL", "gbm"), "Regressor: gbm or remote")
	flag.StringVar(&cfg.RemoteURL, "remote-url", getEnv("REMOTE_URL", ""), "Model service URL (required when model=remote)")

	flag.StringVar(&cfg.Storage, "storage", getEnv("STORAGE", "file"), "Artifact storage: file, redis, or memory")
	flag.StringVar(&cfg.Artifact, "artifact", getEnv("ARTIFACT", artifact.DefaultName), "Artifact name")
	flag.StringVar(&cfg.ArtifactDir, "artifact-dir", getEnv("ARTIFACT_DIR", "artifacts"), "Artifact directory (file storage)")
	flag.StringVar(&cfg.RedisAddr, "redis-addr", getEnv("REDIS_ADDR", "localhost:6379"), "Redis server address")
	flag.StringVar(&cfg.RedisPassword, "redis-password", getEnv("REDIS_PASSWORD", ""), "Redis password")
	flag.IntVar(&cfg.RedisDB, "redis-db", getEnvInt("REDIS_DB", 0), "Redis database number")
	flag.DurationVar(&cfg.RedisTTL, "redis-ttl", getEnvDuration("REDIS_TTL", 0), "Artifact TTL in Redis (0 keeps it until overwritten)")

	flag.StringVar(&cfg.MetricsListen, "metrics-listen", getEnv("METRICS_LISTEN", ""), "Serve /metrics on this address while training")

	flag.BoolVar(&cfg.TLS.Enabled, "tls-enabled", getEnvBool("TLS_ENABLED", false), "Use TLS for outbound telemetry and model requests")
	flag.StringVar(&cfg.TLS.CertFile, "tls-cert-file", getEnv("TLS_CERT_FILE", ""), "Client certificate file")
	flag.StringVar(&cfg.TLS.KeyFile, "tls-key-file", getEnv("TLS_KEY_FILE", ""), "Client private key file")
	flag.StringVar(&cfg.TLS.CAFile, "tls-ca-file", getEnv("TLS_CA_FILE", ""), "CA certificate file for server verification (system roots when empty)")

	flag.Parse()

	cfg.AdapterConfig = parseAdapterConfig()
	if cfg.Adapter == "csv" && cfg.Input != "" {
		cfg.AdapterConfig["path"] = cfg.Input
	}

	return cfg
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	if _, err := c.Options(); err != nil {
		return err
	}
	if c.Folds < 1 {
		return fmt.Errorf("folds must be >= 1, got %d", c.Folds)
	}
	if c.Trials < 1 {
		return fmt.Errorf("trials must be >= 1, got %d", c.Trials)
	}
	if c.Parallelism < 1 {
		return fmt.Errorf("parallelism must be >= 1, got %d", c.Parallelism)
	}
	if c.Step < time.Second {
		return fmt.Errorf("step must be >= 1s, got %v", c.Step)
	}

	switch c.Adapter {
	case "csv":
		if c.AdapterConfig["path"] == "" {
			return fmt.Errorf("csv adapter requires -input or ADAPTER_PATH")
		}
	case "http", "prometheus", "victoriametrics":
		if c.History <= 0 {
			return fmt.Errorf("%s adapter requires -history > 0", c.Adapter)
		}
	default:
		return fmt.Errorf("invalid adapter %q (must be csv, http, prometheus, or victoriametrics)", c.Adapter)
	}

	switch c.Model {
	case "gbm":
	case "remote":
		if c.RemoteURL == "" {
			return fmt.Errorf("remote-url is required when model=remote")
		}
	default:
		return fmt.Errorf("invalid model %q (must be gbm or remote)", c.Model)
	}

	switch c.Storage {
	case "memory", "redis":
	case "file":
		if c.ArtifactDir == "" {
			return fmt.Errorf("artifact-dir is required for file storage")
		}
	default:
		return fmt.Errorf("invalid storage %q (must be file, redis, or memory)", c.Storage)
	}
	if err := storage.ValidateName(c.Artifact); err != nil {
		return err
	}

	if c.TLS.Enabled && (c.TLS.CertFile == "") != (c.TLS.KeyFile == "") {
		return fmt.Errorf("tls-cert-file and tls-key-file must be set together")
	}
	return nil
}

// Options returns the feature synthesis options.
func (c *Config) Options() (features.Options, error) {
	lags, err := ParseLags(c.Lags)
	if err != nil {
		return features.Options{}, err
	}
	if c.Horizon < 1 {
		return features.Options{}, fmt.Errorf("horizon must be >= 1, got %d", c.Horizon)
	}
	return features.Options{Lags: lags, Horizon: c.Horizon}, nil
}

// StorageOptions returns the artifact store settings.
func (c *Config) StorageOptions() storage.Options {
	return storage.Options{
		Backend:       c.Storage,
		Dir:           c.ArtifactDir,
		RedisAddr:     c.RedisAddr,
		RedisPassword: c.RedisPassword,
		RedisDB:       c.RedisDB,
		RedisTTL:      c.RedisTTL,
	}
}

// ParseLags parses a comma-separated list of positive hour offsets.
func ParseLags(s string) ([]int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("lags cannot be empty")
	}
	parts := strings.Split(s, ",")
	lags := make([]int, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("invalid lag %q: %w", p, err)
		}
		if v <= 0 {
			return nil, fmt.Errorf("lag %d must be positive", v)
		}
		lags = append(lags, v)
	}
	return lags, nil
}

// parseAdapterConfig parses ADAPTER_* environment variables into a generic configuration map.
// For example: ADAPTER_URL, ADAPTER_QUERIES, ADAPTER_TIMESTAMP_PATH.
func parseAdapterConfig() map[string]string {
	config := make(map[string]string)

	for _, env := range os.Environ() {
		key, value, ok := strings.Cut(env, "=")
		if !ok || !strings.HasPrefix(key, "ADAPTER_") || len(key) == len("ADAPTER_") {
			continue
		}
		config[toLowerCamelCase(key[len("ADAPTER_"):])] = value
	}

	return config
}

func toLowerCamelCase(s string) string {
	var b strings.Builder
	nextUpper := false
	for i, r := range s {
		switch {
		case r == '_':
			nextUpper = i > 0
		case nextUpper:
			b.WriteRune(r)
			nextUpper = false
		default:
			b.WriteString(strings.ToLower(string(r)))
		}
	}
	return b.String()
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvUint64(key string, defaultValue uint64) uint64 {
	if value := os.Getenv(key); value != "" {
		if u, err := strconv.ParseUint(value, 10, 64); err == nil {
			return u
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1"
	}
	return defaultValue
}
