// Package service holds the serving state: the fitted model, the feature
// table it samples from, and the response settings. A Context is built once
// at startup, never mutated, and shared by every request handler.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/HatiCode/heatcast/pkg/adapters"
	"github.com/HatiCode/heatcast/pkg/artifact"
	"github.com/HatiCode/heatcast/pkg/features"
	"github.com/HatiCode/heatcast/pkg/forecast"
	"github.com/HatiCode/heatcast/pkg/models"
	"github.com/HatiCode/heatcast/pkg/storage"
)

// Options are the response settings.
type Options struct {
	// Scale multiplies every returned heat value. Zero means 1.
	Scale float64
	// DefaultWindow is used when a request names no window. Zero means
	// forecast.DefaultWindow.
	DefaultWindow int
	// Seed seeds random index selection. Zero picks a random seed.
	Seed uint64
	// HTTPClient is used by models that call out to a remote service.
	// Nil keeps the model's default client.
	HTTPClient *http.Client
}

// Health is the readiness report.
type Health struct {
	Status    string    `json:"status"`
	Model     string    `json:"model"`
	Kind      string    `json:"kind"`
	Horizon   int       `json:"horizon"`
	Rows      int       `json:"rows"`
	LoadedAt  time.Time `json:"loaded_at"`
	CVMeanMAE float64   `json:"cv_mean_mae"`
}

// Context is the immutable serving state.
type Context struct {
	sampler       *forecast.Sampler
	health        Health
	scale         float64
	defaultWindow int
	src           *lockedSource
}

// New checks that frame matches the artifact's schema and assembles a
// Context. Any mismatch wraps artifact.ErrModelUnavailable.
func New(a *artifact.Artifact, frame *features.Frame, opts Options) (*Context, error) {
	if err := a.CheckSchema(frame); err != nil {
		return nil, err
	}
	model, err := a.Regressor()
	if err != nil {
		return nil, err
	}
	if remote, ok := model.(*models.RemoteRegressor); ok && opts.HTTPClient != nil {
		remote.WithHTTPClient(opts.HTTPClient)
	}
	sampler, err := forecast.NewSampler(model, frame)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", artifact.ErrModelUnavailable, err)
	}

	scale := opts.Scale
	if scale == 0 {
		scale = 1
	}
	window := opts.DefaultWindow
	if window == 0 {
		window = forecast.DefaultWindow
	}
	seed := opts.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}

	return &Context{
		sampler: sampler,
		health: Health{
			Status:    "ready",
			Model:     a.ID,
			Kind:      a.ModelKind,
			Horizon:   a.Horizon,
			Rows:      frame.Len(),
			LoadedAt:  time.Now().UTC(),
			CVMeanMAE: a.CVMean,
		},
		scale:         scale,
		defaultWindow: window,
		src:           &lockedSource{r: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))},
	}, nil
}

// Load fetches the artifact called name, rebuilds the feature table from
// adapter with the artifact's lags and horizon, and assembles a Context.
func Load(
	ctx context.Context,
	store storage.Store,
	name string,
	adapter adapters.Adapter,
	history time.Duration,
	opts Options,
	logger *slog.Logger,
) (*Context, error) {
	if logger == nil {
		logger = slog.Default()
	}

	a, err := artifact.Load(ctx, store, name)
	if err != nil {
		return nil, err
	}
	logger.Info("loaded artifact",
		"name", name,
		"model_id", a.ID,
		"kind", a.ModelKind,
		"horizon", a.Horizon,
		"features", len(a.FeatureNames),
		"created_at", a.CreatedAt,
	)

	builder, err := features.NewBuilder(a.Options())
	if err != nil {
		return nil, fmt.Errorf("%w: artifact options: %v", artifact.ErrModelUnavailable, err)
	}

	df, err := adapter.Collect(ctx, int(history.Seconds()))
	if err != nil {
		return nil, fmt.Errorf("collect telemetry: %w", err)
	}
	frame, err := builder.BuildFeatures(*df)
	if err != nil {
		return nil, fmt.Errorf("synthesize features: %w", err)
	}
	logger.Info("built feature table", "adapter", adapter.Name(), "rows", frame.Len())

	return New(a, frame, opts)
}

// Sample returns a scaled payload. window <= 0 selects the default window;
// a nil index draws one at random.
func (c *Context) Sample(ctx context.Context, window int, index *int) (forecast.Payload, error) {
	if window <= 0 {
		window = c.defaultWindow
	}

	var (
		p   forecast.Payload
		err error
	)
	if index == nil {
		p, err = c.sampler.SampleRandom(ctx, window, c.src)
	} else {
		p, err = c.sampler.Sample(ctx, window, *index)
	}
	if err != nil {
		return forecast.Payload{}, err
	}
	return p.Scale(c.scale), nil
}

// Health reports readiness and the loaded model.
func (c *Context) Health() Health {
	return c.health
}

// Horizon returns K as a label value.
func (c *Context) Horizon() string {
	return strconv.Itoa(c.health.Horizon)
}

// lockedSource serializes draws from a *rand.Rand, which is not safe for
// concurrent use.
type lockedSource struct {
	mu sync.Mutex
	r  *rand.Rand
}

func (s *lockedSource) IntN(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.r.IntN(n)
}
