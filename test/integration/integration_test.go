//go:build integration

package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/testcontainers/testcontainers-go"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"

	"github.com/HatiCode/heatcast/cmd/server/metrics"
	"github.com/HatiCode/heatcast/cmd/server/router"
	"github.com/HatiCode/heatcast/cmd/server/service"
	"github.com/HatiCode/heatcast/pkg/adapters"
	"github.com/HatiCode/heatcast/pkg/artifact"
	"github.com/HatiCode/heatcast/pkg/features"
	"github.com/HatiCode/heatcast/pkg/folds"
	"github.com/HatiCode/heatcast/pkg/forecast"
	"github.com/HatiCode/heatcast/pkg/search"
	"github.com/HatiCode/heatcast/pkg/storage"
)

const hours = 400

// signalValue is the synthetic telemetry for signal key at hour i.
func signalValue(key string, i int) float64 {
	phase := 2 * math.Pi * float64(i%24) / 24
	load := 60 + 20*math.Sin(phase)
	switch key {
	case "workload":
		return load
	case "inlet":
		return 30 + 0.5*math.Cos(phase)
	case "outlet":
		return 38 + 0.5*math.Cos(phase) + 0.05*load
	case "cooling_power":
		return 40 + 0.3*load
	case "chiller_usage":
		return 50 + 0.2*load
	case "ahu_usage":
		return 45 + 0.1*load
	default:
		return 20 + 5*math.Sin(phase)
	}
}

// mockPrometheus answers query_range with one series per query, where the
// query string is the signal key.
func mockPrometheus(t *testing.T) *httptest.Server {
	t.Helper()
	end := time.Now().UTC().Truncate(time.Hour).Unix()

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/query_range" {
			http.NotFound(w, r)
			return
		}
		key := r.URL.Query().Get("query")
		var b strings.Builder
		for i := 0; i < hours; i++ {
			if i > 0 {
				b.WriteByte(',')
			}
			ts := end - int64(hours-1-i)*3600
			fmt.Fprintf(&b, `[%d,"%.4f"]`, ts, signalValue(key, i))
		}
		fmt.Fprintf(w, `{"status":"success","data":{"resultType":"matrix","result":[{"metric":{},"values":[%s]}]}}`, b.String())
	}))
}

func setupRedis(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	container, err := tcredis.Run(ctx, "redis:7-alpine")
	if err != nil {
		t.Fatalf("failed to start redis container: %v", err)
	}
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	endpoint, err := container.ConnectionString(ctx)
	if err != nil {
		t.Fatalf("failed to get redis endpoint: %v", err)
	}
	return strings.TrimPrefix(endpoint, "redis://")
}

// TestTrainAndServeE2E trains from a Prometheus-compatible source, stores the
// artifact in Redis, and serves samples from a second store connection.
func TestTrainAndServeE2E(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	prom := mockPrometheus(t)
	defer prom.Close()

	queries := make(map[string]string, len(features.Signals))
	for _, s := range features.Signals {
		queries[s.Key] = s.Key
	}
	newAdapter := func() adapters.Adapter {
		return &adapters.PrometheusAdapter{ServerURL: prom.URL, Queries: queries, StepSeconds: 3600}
	}
	history := hours * time.Hour

	addr := setupRedis(t)

	// Train.
	builder, err := features.NewBuilder(features.Options{Lags: features.DefaultLags, Horizon: 1})
	if err != nil {
		t.Fatal(err)
	}
	df, err := newAdapter().Collect(ctx, int(history.Seconds()))
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	frame, err := builder.BuildFeatures(*df)
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	plan, err := folds.Split(frame.Len(), folds.DefaultFolds)
	if err != nil {
		t.Fatal(err)
	}
	res, err := search.New(search.Config{
		Space: search.Space{
			NEstimators:     []int{10, 20},
			MaxDepth:        []int{2, 3},
			LearningRate:    []float64{0.1},
			Subsample:       []float64{1.0},
			ColsampleByTree: []float64{1.0},
		},
		Trials: 3,
		Seed:   search.DefaultSeed,
		Logger: logger,
	}).Run(ctx, frame.Matrix(0, frame.Len()), frame.Targets(0, frame.Len()), plan)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	a, err := artifact.New(res, frame, search.DefaultSeed, time.Now())
	if err != nil {
		t.Fatal(err)
	}

	trainStore, err := storage.NewRedisStore(addr, "", 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if err := artifact.Save(ctx, trainStore, artifact.DefaultName, a); err != nil {
		t.Fatalf("save: %v", err)
	}
	trainStore.Close()

	// Serve.
	serveStore, err := storage.NewRedisStore(addr, "", 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	defer serveStore.Close()

	svc, err := service.Load(ctx, serveStore, artifact.DefaultName, newAdapter(), history,
		service.Options{Scale: 2, Seed: 1}, logger)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	m := metrics.New(prometheus.NewRegistry())
	srv := httptest.NewServer(router.Handler(router.SetupRoutes(svc, m, 5*time.Second, logger), "*", logger))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	var health service.Health
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if health.Model != a.ID || health.Horizon != 1 || health.Rows != frame.Len() {
		t.Errorf("health = %+v", health)
	}

	lo := 4 * forecast.AggregateHours
	resp, err = http.Get(fmt.Sprintf("%s/forecast/sample?window=4&index=%d", srv.URL, lo))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("sample status = %d: %s", resp.StatusCode, body)
	}
	var p forecast.Payload
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		t.Fatal(err)
	}
	if p.SampledIndex != lo || len(p.PastValues) != 5 {
		t.Errorf("payload = %+v", p)
	}
	if p.PastValues[len(p.PastValues)-1] != p.LastActualValue || p.FutureValues[0] != p.LastActualValue {
		t.Errorf("continuity broken: %+v", p)
	}

	resp2, err := http.Get(fmt.Sprintf("%s/forecast/sample?window=4&index=%d", srv.URL, lo-1))
	if err != nil {
		t.Fatal(err)
	}
	resp2.Body.Close()
	if resp2.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("below lower bound status = %d, want 422", resp2.StatusCode)
	}
}

func TestServeRefusesMissingArtifact(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	store, err := storage.NewRedisStore(setupRedis(t), "", 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	_, err = service.Load(context.Background(), store, "absent_model",
		&adapters.CSVAdapter{Reader: strings.NewReader("")}, 0, service.Options{}, nil)
	if err == nil || !strings.Contains(err.Error(), artifact.ErrModelUnavailable.Error()) {
		t.Errorf("Load() error = %v, want model unavailable", err)
	}
}
