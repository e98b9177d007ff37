package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSetModel_ReplacesLabels(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.SetModel("gradient_boosting-a", "gradient_boosting", "1", 100)
	m.SetModel("gradient_boosting-b", "gradient_boosting", "1", 120)

	if got := testutil.CollectAndCount(m.ModelInfo); got != 1 {
		t.Errorf("model info series = %d, want 1", got)
	}
	if got := testutil.ToFloat64(m.ModelInfo.WithLabelValues("gradient_boosting-b", "gradient_boosting", "1")); got != 1 {
		t.Errorf("model info = %v", got)
	}
	if got := testutil.ToFloat64(m.TableRows); got != 120 {
		t.Errorf("table rows = %v", got)
	}
}

func TestRecordError(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.RecordError("out_of_range")
	m.RecordError("out_of_range")
	m.RecordError("bad_request")

	if got := testutil.ToFloat64(m.ErrorsTotal.WithLabelValues("out_of_range")); got != 2 {
		t.Errorf("out_of_range = %v", got)
	}
	if got := testutil.ToFloat64(m.ErrorsTotal.WithLabelValues("bad_request")); got != 1 {
		t.Errorf("bad_request = %v", got)
	}
}
