// Package main implements the training pipeline.
//
// The Trainer runs one batch pass:
//
//	collect → synthesize → split → baseline → search → persist
//
// Each stage is timed and logged; failures are counted by stage and reason.
// The search itself fans out over a worker pool inside the search package;
// this file only wires its inputs and reports its outcome.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"text/tabwriter"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/HatiCode/heatcast/cmd/trainer/metrics"
	"github.com/HatiCode/heatcast/pkg/adapters"
	"github.com/HatiCode/heatcast/pkg/artifact"
	"github.com/HatiCode/heatcast/pkg/features"
	"github.com/HatiCode/heatcast/pkg/folds"
	"github.com/HatiCode/heatcast/pkg/models"
	"github.com/HatiCode/heatcast/pkg/search"
	"github.com/HatiCode/heatcast/pkg/storage"
)

// Trainer builds, selects and persists a model from one telemetry snapshot.
type Trainer struct {
	adapter      adapters.Adapter
	builder      *features.Builder
	searchCfg    search.Config
	folds        int
	store        storage.Store
	artifactName string
	history      time.Duration
	report       io.Writer
	logger       *slog.Logger
	metrics      *metrics.Metrics
	now          func() time.Time
}

// NewTrainer creates a Trainer. report receives the human-readable summary
// and may be nil.
func NewTrainer(
	adapter adapters.Adapter,
	builder *features.Builder,
	searchCfg search.Config,
	nFolds int,
	store storage.Store,
	artifactName string,
	history time.Duration,
	report io.Writer,
	logger *slog.Logger,
	m *metrics.Metrics,
) *Trainer {
	if logger == nil {
		logger = slog.Default()
	}
	if report == nil {
		report = io.Discard
	}
	searchCfg.Logger = logger
	if m != nil && searchCfg.OnUnit == nil {
		searchCfg.OnUnit = m.ObserveUnit
	}

	return &Trainer{
		adapter:      adapter,
		builder:      builder,
		searchCfg:    searchCfg,
		folds:        nFolds,
		store:        store,
		artifactName: artifactName,
		history:      history,
		report:       report,
		logger:       logger,
		metrics:      m,
		now:          time.Now,
	}
}

// Run performs one training pass and returns the persisted artifact.
func (t *Trainer) Run(ctx context.Context) (*artifact.Artifact, error) {
	start := time.Now()

	df, err := t.collect(ctx)
	if err != nil {
		t.recordError("adapter", collectReason(err))
		return nil, fmt.Errorf("collect: %w", err)
	}

	frame, err := t.synthesize(df)
	if err != nil {
		t.recordError("features", synthesisReason(err))
		return nil, fmt.Errorf("synthesize: %w", err)
	}

	plan, err := folds.Split(frame.Len(), t.folds)
	if err != nil {
		t.recordError("folds", "insufficient_rows")
		return nil, fmt.Errorf("split: %w", err)
	}

	X := frame.Matrix(0, frame.Len())
	y := frame.Targets(0, frame.Len())

	baseline, err := search.CrossValidate(ctx, X, y, plan, func() models.Regressor { return &models.MeanRegressor{} })
	if err != nil {
		t.recordError("baseline", "cv_failed")
		return nil, fmt.Errorf("baseline: %w", err)
	}
	baselineMAE := stat.Mean(baseline, nil)
	t.logger.Info("baseline cross-validated", "model", models.MeanRegressorName, "mean_mae", baselineMAE)

	res, err := search.New(t.searchCfg).Run(ctx, X, y, plan)
	if err != nil {
		t.recordError("search", searchReason(err))
		return nil, fmt.Errorf("search: %w", err)
	}

	seed := t.searchCfg.Seed
	a, err := artifact.New(res, frame, seed, t.now())
	if err != nil {
		t.recordError("artifact", "encode_failed")
		return nil, fmt.Errorf("package artifact: %w", err)
	}
	a.Baseline = baselineMAE

	if err := artifact.Save(ctx, t.store, t.artifactName, a); err != nil {
		t.recordError("store", "put_failed")
		return nil, fmt.Errorf("persist: %w", err)
	}

	if t.metrics != nil {
		t.metrics.SetBestMAE(res.Best.MeanMAE)
		t.metrics.SetBaselineMAE(baselineMAE)
	}

	t.writeReport(a)

	t.logger.Info("training complete",
		"artifact", t.artifactName,
		"model_id", a.ID,
		"rows", a.TrainingRows,
		"features", len(a.FeatureNames),
		"mean_mae", a.CVMean,
		"std_mae", a.CVStd,
		"baseline_mae", baselineMAE,
		"total_ms", time.Since(start).Milliseconds(),
	)
	return a, nil
}

// collect retrieves telemetry from the adapter.
func (t *Trainer) collect(ctx context.Context) (*adapters.DataFrame, error) {
	start := time.Now()

	df, err := t.adapter.Collect(ctx, int(t.history.Seconds()))
	if err != nil {
		return nil, err
	}

	duration := time.Since(start)
	if t.metrics != nil {
		t.metrics.RecordCollect(duration.Seconds())
	}

	t.logger.Info("collected telemetry",
		"adapter", t.adapter.Name(),
		"rows", len(df.Rows),
		"duration_ms", duration.Milliseconds(),
	)
	return df, nil
}

// synthesize builds the training table and logs target statistics.
func (t *Trainer) synthesize(df *adapters.DataFrame) (*features.Frame, error) {
	start := time.Now()

	frame, err := t.builder.BuildFeatures(*df)
	if err != nil {
		return nil, err
	}

	duration := time.Since(start)
	if t.metrics != nil {
		t.metrics.RecordSynthesis(duration.Seconds())
		t.metrics.SetTrainingRows(frame.Len())
	}

	mean, std := stat.MeanStdDev(frame.Target, nil)
	t.logger.Info("synthesized features",
		"rows", frame.Len(),
		"features", len(frame.Names),
		"warmup", frame.Warmup,
		"horizon", frame.Horizon,
		"target_mean", mean,
		"target_std", std,
		"duration_ms", duration.Milliseconds(),
	)
	return frame, nil
}

// writeReport prints the trial table sorted by mean MAE and the selection.
func (t *Trainer) writeReport(a *artifact.Artifact) {
	trials := slices.Clone(a.Trials)
	slices.SortStableFunc(trials, func(x, y search.Trial) int {
		switch {
		case x.OK() != y.OK():
			if x.OK() {
				return -1
			}
			return 1
		case x.MeanMAE < y.MeanMAE:
			return -1
		case x.MeanMAE > y.MeanMAE:
			return 1
		}
		return 0
	})

	tw := tabwriter.NewWriter(t.report, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TRIAL\tN_ESTIMATORS\tMAX_DEPTH\tLEARNING_RATE\tSUBSAMPLE\tCOLSAMPLE\tMEAN_MAE\tSTD_MAE\tFAILED")
	for _, tr := range trials {
		p := tr.Params
		if !tr.OK() {
			fmt.Fprintf(tw, "%d\t%d\t%d\t%g\t%g\t%g\t-\t-\t%d\n",
				tr.Index, p.NEstimators, p.MaxDepth, p.LearningRate, p.Subsample, p.ColsampleByTree, tr.Failed)
			continue
		}
		fmt.Fprintf(tw, "%d\t%d\t%d\t%g\t%g\t%g\t%.4f\t%.4f\t%d\n",
			tr.Index, p.NEstimators, p.MaxDepth, p.LearningRate, p.Subsample, p.ColsampleByTree,
			tr.MeanMAE, tr.StdMAE, tr.Failed)
	}
	tw.Flush()

	fmt.Fprintf(t.report, "\nbest params: %s\n", a.Params)
	fmt.Fprintf(t.report, "cv mae: %.4f ± %.4f (baseline %.4f)\n", a.CVMean, a.CVStd, a.Baseline)
	fmt.Fprintf(t.report, "artifact: %s (%s, %d features, %d rows)\n", t.artifactName, a.ID, len(a.FeatureNames), a.TrainingRows)
}

func (t *Trainer) recordError(stage, reason string) {
	if t.metrics != nil {
		t.metrics.RecordError(stage, reason)
	}
}

func collectReason(err error) string {
	if errors.Is(err, adapters.ErrTelemetryGap) {
		return "telemetry_gap"
	}
	return "collect_failed"
}

func synthesisReason(err error) string {
	switch {
	case errors.Is(err, features.ErrMissingColumn):
		return "missing_column"
	case errors.Is(err, features.ErrInsufficientHistory):
		return "insufficient_history"
	default:
		return "build_failed"
	}
}

func searchReason(err error) string {
	switch {
	case errors.Is(err, search.ErrAllTrialsFailed):
		return "all_trials_failed"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "search_failed"
	}
}
