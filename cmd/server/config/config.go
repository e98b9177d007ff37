// Package config provides configuration parsing for the forecast server.
//
// Flags take precedence over environment variables, which take precedence
// over defaults. The server reads the same telemetry source the model was
// trained on, so adapter settings mirror the trainer's (ADAPTER_* variables,
// -input for CSV).
package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/HatiCode/heatcast/pkg/artifact"
	"github.com/HatiCode/heatcast/pkg/forecast"
	"github.com/HatiCode/heatcast/pkg/storage"
	"github.com/HatiCode/heatcast/pkg/tls"
)

// Config holds all server configuration.
type Config struct {
	Listen     string
	GRPCListen string
	LogFormat  string
	LogLevel   string

	Adapter       string
	AdapterConfig map[string]string
	Input         string
	History       time.Duration
	Step          time.Duration

	Storage       string
	Artifact      string
	ArtifactDir   string
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	Scale          float64
	DefaultWindow  int
	Seed           uint64
	CORSOrigin     string
	RequestTimeout time.Duration

	TLS tls.Config
}

// ParseFlags parses command-line flags and environment variables into a Config.
func ParseFlags() *Config {
	cfg := &Config{}

	flag.StringVar(&cfg.Listen, "listen", getEnv("LISTEN", ":8082"), "HTTP listen address")
	flag.StringVar(&cfg.GRPCListen, "grpc-listen", getEnv("GRPC_LISTEN", ":50052"), "gRPC health listen address (empty disables)")
	flag.StringVar(&cfg.LogFormat, "log-format", getEnv("LOG_FORMAT", "text"), "Log format: text or json")
	flag.StringVar(&cfg.LogLevel, "log-level", getEnv("LOG_LEVEL", "info"), "Log level: debug, info, warn, error")

	flag.StringVar(&cfg.Adapter, "adapter", getEnv("ADAPTER", "csv"), "Telemetry source: csv, http, prometheus, or victoriametrics")
	flag.StringVar(&cfg.Input, "input", getEnv("INPUT", ""), "CSV telemetry file (csv adapter)")
	flag.DurationVar(&cfg.History, "history", getEnvDuration("HISTORY", 0), "History to request from the source (0 reads everything; required for remote sources)")
	flag.DurationVar(&cfg.Step, "step", getEnvDuration("STEP", time.Hour), "Telemetry resolution requested from remote sources")

	flag.StringVar(&cfg.Storage, "storage", getEnv("STORAGE", "file"), "Artifact storage: file, redis, or memory")
	flag.StringVar(&cfg.Artifact, "artifact", getEnv("ARTIFACT", artifact.DefaultName), "Artifact name")
	flag.StringVar(&cfg.ArtifactDir, "artifact-dir", getEnv("ARTIFACT_DIR", "artifacts"), "Artifact directory (file storage)")
	flag.StringVar(&cfg.RedisAddr, "redis-addr", getEnv("REDIS_ADDR", "localhost:6379"), "Redis server address")
	flag.StringVar(&cfg.RedisPassword, "redis-password", getEnv("REDIS_PASSWORD", ""), "Redis password")
	flag.IntVar(&cfg.RedisDB, "redis-db", getEnvInt("REDIS_DB", 0), "Redis database number")

	flag.Float64Var(&cfg.Scale, "scale", getEnvFloat("SCALE", 1), "Multiplier applied to every returned heat value")
	flag.IntVar(&cfg.DefaultWindow, "default-window", getEnvInt("DEFAULT_WINDOW", forecast.DefaultWindow), "Past 6-hour aggregates returned when the request has no window")
	flag.Uint64Var(&cfg.Seed, "seed", getEnvUint64("SEED", 0), "Seed for random sample indices (0 picks one at startup)")
	flag.StringVar(&cfg.CORSOrigin, "cors-origin", getEnv("CORS_ORIGIN", "*"), "Access-Control-Allow-Origin value (empty disables CORS)")
	flag.DurationVar(&cfg.RequestTimeout, "request-timeout", getEnvDuration("REQUEST_TIMEOUT", 5*time.Second), "Per-request sampling timeout")

	flag.BoolVar(&cfg.TLS.Enabled, "tls-enabled", getEnvBool("TLS_ENABLED", false), "Serve HTTP and gRPC over TLS")
	flag.StringVar(&cfg.TLS.CertFile, "tls-cert-file", getEnv("TLS_CERT_FILE", ""), "TLS certificate file")
	flag.StringVar(&cfg.TLS.KeyFile, "tls-key-file", getEnv("TLS_KEY_FILE", ""), "TLS private key file")
	flag.StringVar(&cfg.TLS.CAFile, "tls-ca-file", getEnv("TLS_CA_FILE", ""), "CA file used to verify client certificates and outbound telemetry and model servers")
	flag.BoolVar(&cfg.TLS.RequireClientCert, "tls-require-client-cert", getEnvBool("TLS_REQUIRE_CLIENT_CERT", false), "Reject clients without a certificate signed by the CA")

	flag.Parse()

	cfg.AdapterConfig = parseAdapterConfig()
	if cfg.Adapter == "csv" && cfg.Input != "" {
		cfg.AdapterConfig["path"] = cfg.Input
	}

	return cfg
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	if c.Listen == "" {
		return fmt.Errorf("listen address cannot be empty")
	}
	if c.Scale <= 0 {
		return fmt.Errorf("scale must be > 0, got %g", c.Scale)
	}
	if c.DefaultWindow < 1 {
		return fmt.Errorf("default-window must be >= 1, got %d", c.DefaultWindow)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request-timeout must be > 0")
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

	return c.TLS.Validate()
}

// StorageOptions returns the artifact store settings. The server never
// writes, so no TTL is configured.
func (c *Config) StorageOptions() storage.Options {
	return storage.Options{
		Backend:       c.Storage,
		Dir:           c.ArtifactDir,
		RedisAddr:     c.RedisAddr,
		RedisPassword: c.RedisPassword,
		RedisDB:       c.RedisDB,
	}
}

// parseAdapterConfig parses ADAPTER_* environment variables into a generic configuration map.
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

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
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
