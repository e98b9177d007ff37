// Package metrics provides Prometheus instrumentation for the forecast server.
//
// Metrics exposed:
//   - heatcast_sample_seconds: Histogram of sample request duration
//   - heatcast_predicted_value: Gauge of the last predicted (scaled) heat value
//   - heatcast_model_info: Gauge set to 1, labelled with the loaded model
//   - heatcast_table_rows: Gauge of rows in the served feature table
//   - heatcast_errors_total: Counter of sample errors by reason
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the server.
type Metrics struct {
	SampleSeconds  prometheus.Histogram
	PredictedValue prometheus.Gauge
	ModelInfo      *prometheus.GaugeVec
	TableRows      prometheus.Gauge
	ErrorsTotal    *prometheus.CounterVec
}

// New creates the server metrics and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		SampleSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "heatcast_sample_seconds",
			Help:    "Time spent serving a forecast sample",
			Buckets: prometheus.DefBuckets,
		}),

		PredictedValue: factory.NewGauge(prometheus.GaugeOpts{
			Name: "heatcast_predicted_value",
			Help: "Last predicted heat value returned to a client",
		}),

		ModelInfo: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "heatcast_model_info",
			Help: "Loaded model, always 1",
		}, []string{"model_id", "kind", "horizon"}),

		TableRows: factory.NewGauge(prometheus.GaugeOpts{
			Name: "heatcast_table_rows",
			Help: "Rows in the feature table the sampler draws from",
		}),

		ErrorsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "heatcast_errors_total",
			Help: "Total number of sample errors by reason",
		}, []string{"reason"}),
	}
}

// RecordSample records the time spent serving one sample.
func (m *Metrics) RecordSample(seconds float64) {
	m.SampleSeconds.Observe(seconds)
}

// SetPredictedValue sets the last predicted value.
func (m *Metrics) SetPredictedValue(value float64) {
	m.PredictedValue.Set(value)
}

// SetModel publishes the loaded model identity and table size.
func (m *Metrics) SetModel(id, kind, horizon string, rows int) {
	m.ModelInfo.Reset()
	m.ModelInfo.WithLabelValues(id, kind, horizon).Set(1)
	m.TableRows.Set(float64(rows))
}

// RecordError increments the error counter.
func (m *Metrics) RecordError(reason string) {
	m.ErrorsTotal.WithLabelValues(reason).Inc()
}
