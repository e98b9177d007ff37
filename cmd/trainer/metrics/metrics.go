// Package metrics provides Prometheus instrumentation for the trainer.
//
// Metrics exposed:
//   - heatcast_trainer_collect_seconds: Histogram of telemetry collection duration
//   - heatcast_trainer_synthesis_seconds: Histogram of feature synthesis duration
//   - heatcast_trainer_unit_seconds: Histogram of fit/score unit duration
//   - heatcast_trainer_unit_failures_total: Counter of failed fit/score units
//   - heatcast_trainer_training_rows: Gauge of rows in the training table
//   - heatcast_trainer_best_mae: Gauge of the selected candidate's mean CV MAE
//   - heatcast_trainer_baseline_mae: Gauge of the mean-predictor CV MAE
//   - heatcast_trainer_errors_total: Counter of errors by stage and reason
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the trainer.
type Metrics struct {
	CollectSeconds   prometheus.Histogram
	SynthesisSeconds prometheus.Histogram
	UnitSeconds      prometheus.Histogram
	UnitFailures     prometheus.Counter
	TrainingRows     prometheus.Gauge
	BestMAE          prometheus.Gauge
	BaselineMAE      prometheus.Gauge
	ErrorsTotal      *prometheus.CounterVec
}

// New creates the trainer metrics and registers them with reg.
func New(reg prometheus.Registerer, adapter, model string) *Metrics {
	factory := promauto.With(reg)
	labels := prometheus.Labels{"adapter": adapter, "model": model}

	return &Metrics{
		CollectSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Name:        "heatcast_trainer_collect_seconds",
			Help:        "Time spent collecting telemetry from the adapter",
			ConstLabels: labels,
			Buckets:     prometheus.DefBuckets,
		}),

		SynthesisSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Name:        "heatcast_trainer_synthesis_seconds",
			Help:        "Time spent synthesizing the feature table",
			ConstLabels: labels,
			Buckets:     prometheus.DefBuckets,
		}),

		UnitSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Name:        "heatcast_trainer_unit_seconds",
			Help:        "Time spent fitting and scoring one candidate on one fold",
			ConstLabels: labels,
			Buckets:     prometheus.ExponentialBuckets(0.01, 2, 14),
		}),

		UnitFailures: factory.NewCounter(prometheus.CounterOpts{
			Name:        "heatcast_trainer_unit_failures_total",
			Help:        "Fit/score units that failed and were excluded from aggregation",
			ConstLabels: labels,
		}),

		TrainingRows: factory.NewGauge(prometheus.GaugeOpts{
			Name:        "heatcast_trainer_training_rows",
			Help:        "Rows in the training table after warm-up and horizon trimming",
			ConstLabels: labels,
		}),

		BestMAE: factory.NewGauge(prometheus.GaugeOpts{
			Name:        "heatcast_trainer_best_mae",
			Help:        "Mean cross-validation MAE of the selected candidate",
			ConstLabels: labels,
		}),

		BaselineMAE: factory.NewGauge(prometheus.GaugeOpts{
			Name:        "heatcast_trainer_baseline_mae",
			Help:        "Mean cross-validation MAE of the training-mean predictor",
			ConstLabels: labels,
		}),

		ErrorsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name:        "heatcast_trainer_errors_total",
			Help:        "Total number of errors by stage and reason",
			ConstLabels: labels,
		}, []string{"stage", "reason"}),
	}
}

// RecordCollect records the time spent collecting telemetry.
func (m *Metrics) RecordCollect(seconds float64) {
	m.CollectSeconds.Observe(seconds)
}

// RecordSynthesis records the time spent building the feature table.
func (m *Metrics) RecordSynthesis(seconds float64) {
	m.SynthesisSeconds.Observe(seconds)
}

// ObserveUnit matches search.UnitObserver.
func (m *Metrics) ObserveUnit(trial, fold int, elapsed time.Duration, err error) {
	m.UnitSeconds.Observe(elapsed.Seconds())
	if err != nil {
		m.UnitFailures.Inc()
	}
}

// SetTrainingRows sets the training table size.
func (m *Metrics) SetTrainingRows(rows int) {
	m.TrainingRows.Set(float64(rows))
}

// SetBestMAE sets the selected candidate's CV error.
func (m *Metrics) SetBestMAE(mae float64) {
	m.BestMAE.Set(mae)
}

// SetBaselineMAE sets the baseline CV error.
func (m *Metrics) SetBaselineMAE(mae float64) {
	m.BaselineMAE.Set(mae)
}

// RecordError increments the error counter.
func (m *Metrics) RecordError(stage, reason string) {
	m.ErrorsTotal.WithLabelValues(stage, reason).Inc()
}
