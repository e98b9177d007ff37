// Package search runs seeded random hyperparameter search over chronological
// cross-validation folds.
//
// Each sampled candidate is fitted once per fold on that fold's training rows
// and scored by mean absolute error on its validation rows. The n_trials ×
// n_folds fit/score units are independent and run on a bounded worker pool;
// results are stored by (trial, fold) position so aggregates do not depend on
// scheduling. A failed unit is logged and left out of its trial's aggregate.
// The winning candidate is refitted on every row.
package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"runtime"
	"sync"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/HatiCode/heatcast/pkg/folds"
	"github.com/HatiCode/heatcast/pkg/models"
)

// DefaultTrials is the number of candidates drawn when Config.Trials is zero.
const DefaultTrials = 30

// DefaultSeed seeds candidate sampling and model fitting.
const DefaultSeed = 42

// ErrAllTrialsFailed is returned when no candidate completed a single fold.
var ErrAllTrialsFailed = errors.New("all trials failed")

// Factory builds a fresh, unfitted regressor for a candidate.
type Factory func(p models.Params, seed uint64) models.Regressor

// GradientBoostingFactory is the default Factory.
func GradientBoostingFactory(p models.Params, seed uint64) models.Regressor {
	return models.NewGradientBoosting(p, seed)
}

// UnitObserver is notified after every fit/score unit.
type UnitObserver func(trial, fold int, elapsed time.Duration, err error)

// Config controls a search run.
type Config struct {
	Space       Space
	Trials      int
	Seed        uint64
	Parallelism int
	Factory     Factory
	Logger      *slog.Logger
	OnUnit      UnitObserver
}

// Trial is one candidate's cross-validation outcome.
type Trial struct {
	Index   int           `json:"index"`
	Params  models.Params `json:"params"`
	MeanMAE float64       `json:"mean_mae"`
	StdMAE  float64       `json:"std_mae"`
	FoldMAE []float64     `json:"fold_mae"`
	Failed  int           `json:"failed_folds"`
	Err     string        `json:"error,omitempty"`
}

// OK reports whether at least one fold was scored.
func (t Trial) OK() bool { return len(t.FoldMAE) > 0 }

// Result is the outcome of a search.
type Result struct {
	Best   Trial
	Model  models.Regressor
	Trials []Trial
}

// Searcher runs hyperparameter searches.
type Searcher struct {
	cfg    Config
	logger *slog.Logger
}

// New creates a Searcher, filling zero-valued settings with defaults.
func New(cfg Config) *Searcher {
	if cfg.Space.Size() == 0 {
		cfg.Space = DefaultSpace()
	}
	if cfg.Trials <= 0 {
		cfg.Trials = DefaultTrials
	}
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = runtime.GOMAXPROCS(0)
	}
	if cfg.Factory == nil {
		cfg.Factory = GradientBoostingFactory
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Searcher{cfg: cfg, logger: logger}
}

type unit struct {
	trial int
	fold  int
}

type unitResult struct {
	mae float64
	err error
}

// Run searches over plan using rows X and targets y, then refits the best
// candidate on all rows.
func (s *Searcher) Run(ctx context.Context, X [][]float64, y []float64, plan []folds.Fold) (*Result, error) {
	if len(X) != len(y) {
		return nil, fmt.Errorf("search: %d rows, %d targets", len(X), len(y))
	}
	if len(plan) == 0 {
		return nil, errors.New("search: empty fold plan")
	}
	for _, f := range plan {
		if f.ValEnd > len(X) || f.TrainEnd < 1 || f.ValEnd <= f.TrainEnd {
			return nil, fmt.Errorf("search: %v does not fit %d rows", f, len(X))
		}
	}

	rng := rand.New(rand.NewPCG(s.cfg.Seed, s.cfg.Seed))
	candidates := s.cfg.Space.Sample(rng, s.cfg.Trials)
	s.logger.Info("starting hyperparameter search",
		"candidates", len(candidates),
		"grid_size", s.cfg.Space.Size(),
		"folds", len(plan),
		"parallelism", s.cfg.Parallelism,
	)

	results := make([][]unitResult, len(candidates))
	for i := range results {
		results[i] = make([]unitResult, len(plan))
	}

	jobs := make(chan unit)
	var wg sync.WaitGroup
	for w := 0; w < min(s.cfg.Parallelism, len(candidates)*len(plan)); w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for u := range jobs {
				start := time.Now()
				mae, err := s.score(ctx, X, y, plan[u.fold], candidates[u.trial])
				results[u.trial][u.fold] = unitResult{mae: mae, err: err}
				if s.cfg.OnUnit != nil {
					s.cfg.OnUnit(u.trial, u.fold, time.Since(start), err)
				}
			}
		}()
	}

feed:
	for t := range candidates {
		for f := range plan {
			select {
			case jobs <- unit{trial: t, fold: f}:
			case <-ctx.Done():
				break feed
			}
		}
	}
	close(jobs)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	trials := make([]Trial, len(candidates))
	for t, p := range candidates {
		trials[t] = s.aggregate(t, p, results[t])
	}

	best, ok := selectBest(trials)
	if !ok {
		return nil, fmt.Errorf("search: %w (%d candidates)", ErrAllTrialsFailed, len(trials))
	}
	s.logger.Info("selected candidate",
		"trial", best.Index,
		"params", best.Params.String(),
		"mean_mae", best.MeanMAE,
		"std_mae", best.StdMAE,
	)

	final := s.cfg.Factory(best.Params, s.cfg.Seed)
	if err := final.Fit(ctx, X, y); err != nil {
		return nil, fmt.Errorf("search: refit best candidate: %w", err)
	}

	return &Result{Best: best, Model: final, Trials: trials}, nil
}

func (s *Searcher) score(ctx context.Context, X [][]float64, y []float64, f folds.Fold, p models.Params) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m := s.cfg.Factory(p, s.cfg.Seed)
	return scoreFold(ctx, m, X, y, f)
}

func scoreFold(ctx context.Context, m models.Regressor, X [][]float64, y []float64, f folds.Fold) (mae float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	trLo, trHi := f.TrainRange()
	vaLo, vaHi := f.ValRange()
	if err := m.Fit(ctx, X[trLo:trHi], y[trLo:trHi]); err != nil {
		return 0, fmt.Errorf("fit: %w", err)
	}
	pred, err := m.Predict(ctx, X[vaLo:vaHi])
	if err != nil {
		return 0, fmt.Errorf("predict: %w", err)
	}
	return models.MAE(pred, y[vaLo:vaHi])
}

func (s *Searcher) aggregate(idx int, p models.Params, units []unitResult) Trial {
	t := Trial{Index: idx, Params: p}
	for f, u := range units {
		if u.err != nil {
			t.Failed++
			t.Err = u.err.Error()
			s.logger.Warn("fit/score unit failed",
				"trial", idx,
				"fold", f,
				"params", p.String(),
				"error", u.err,
			)
			continue
		}
		t.FoldMAE = append(t.FoldMAE, u.mae)
	}
	if t.OK() {
		t.MeanMAE, t.StdMAE = stat.PopMeanStdDev(t.FoldMAE, nil)
	}
	return t
}

// selectBest picks the lowest mean MAE, then the lowest std, then the
// earliest draw.
func selectBest(trials []Trial) (Trial, bool) {
	var best Trial
	found := false
	for _, t := range trials {
		if !t.OK() {
			continue
		}
		if !found || better(t, best) {
			best = t
			found = true
		}
	}
	return best, found
}

func better(a, b Trial) bool {
	if a.MeanMAE != b.MeanMAE {
		return a.MeanMAE < b.MeanMAE
	}
	if a.StdMAE != b.StdMAE {
		return a.StdMAE < b.StdMAE
	}
	return a.Index < b.Index
}

// CrossValidate scores one regressor configuration on every fold sequentially
// and returns the per-fold MAE. newModel must return a fresh regressor per call.
func CrossValidate(ctx context.Context, X [][]float64, y []float64, plan []folds.Fold, newModel func() models.Regressor) ([]float64, error) {
	out := make([]float64, len(plan))
	for i, f := range plan {
		mae, err := scoreFold(ctx, newModel(), X, y, f)
		if err != nil {
			return nil, fmt.Errorf("fold %d: %w", i, err)
		}
		out[i] = mae
	}
	return out, nil
}
