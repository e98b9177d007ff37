package forecast

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/HatiCode/heatcast/pkg/features"
)

// doubler predicts twice the first feature of each row.
type doubler struct{}

func (doubler) Name() string { return "doubler" }

func (doubler) Fit(context.Context, [][]float64, []float64) error { return nil }

func (doubler) Predict(_ context.Context, X [][]float64) ([]float64, error) {
	out := make([]float64, len(X))
	for i, row := range X {
		out[i] = 2 * row[0]
	}
	return out, nil
}

// testFrame has n rows with feature a = i and Q = q(i). QSum[i] sums q over
// the six hours ending at i, including hours before the first row.
func testFrame(n int, q func(i int) float64) *features.Frame {
	col := make([]float64, n)
	qs := make([]float64, n)
	sums := make([]float64, n)
	for i := 0; i < n; i++ {
		col[i] = float64(i)
		qs[i] = q(i)
		for j := i - AggregateHours + 1; j <= i; j++ {
			sums[i] += q(j)
		}
	}
	return &features.Frame{
		Names:   []string{"a"},
		Columns: [][]float64{col},
		Q:       qs,
		QSum:    sums,
		Target:  make([]float64, n),
		Horizon: 1,
	}
}

func newTestSampler(t *testing.T, n int, q func(i int) float64) *Sampler {
	t.Helper()
	s, err := NewSampler(doubler{}, testFrame(n, q))
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestSample_IndexBoundaries(t *testing.T) {
	s := newTestSampler(t, 30, func(int) float64 { return 1 })
	ctx := context.Background()

	tests := []struct {
		name    string
		window  int
		idx     int
		wantErr error
	}{
		{name: "inclusive lower bound", window: 2, idx: 12},
		{name: "below lower bound", window: 2, idx: 11, wantErr: ErrOutOfRange},
		{name: "inclusive upper bound", window: 2, idx: 24},
		{name: "above upper bound", window: 2, idx: 25, wantErr: ErrOutOfRange},
		{name: "window too large for frame", window: 5, idx: 30, wantErr: ErrOutOfRange},
		{name: "zero window", window: 0, idx: 10, wantErr: ErrInvalidWindow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Sample(ctx, tt.window, tt.idx)
			if tt.wantErr == nil && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestSample_PayloadShape(t *testing.T) {
	s := newTestSampler(t, 30, func(i int) float64 { return float64(i + 10) })

	p, err := s.Sample(context.Background(), 2, 12)
	if err != nil {
		t.Fatal(err)
	}

	// 6-hour sums of Q=i+10 ending at rows 0, 6 and 12.
	wantPast := []float64{45, 81, 117}
	wantAxis := []int{-2, -1, 0}
	for k := range wantPast {
		if p.PastValues[k] != wantPast[k] {
			t.Errorf("past_values[%d] = %v, want %v", k, p.PastValues[k], wantPast[k])
		}
		if p.PastAxis[k] != wantAxis[k] {
			t.Errorf("past_axis[%d] = %v, want %v", k, p.PastAxis[k], wantAxis[k])
		}
	}
	if p.SampledIndex != 12 {
		t.Errorf("sampled_index = %d", p.SampledIndex)
	}
	if p.PredictedValue != 24 {
		t.Errorf("predicted_value = %v, want 24", p.PredictedValue)
	}
	if p.FutureAxis[0] != 0 || p.FutureAxis[1] != 1 {
		t.Errorf("future_axis = %v", p.FutureAxis)
	}
	if p.FutureValues[1] != p.PredictedValue {
		t.Errorf("future_values[1] = %v, want predicted value", p.FutureValues[1])
	}
}

func TestSample_Continuity(t *testing.T) {
	s := newTestSampler(t, 200, func(i int) float64 { return float64(i%13) * 0.7 })
	rng := rand.New(rand.NewPCG(42, 42))

	for i := 0; i < 50; i++ {
		window := 1 + i%12
		p, err := s.SampleRandom(context.Background(), window, rng)
		if err != nil {
			t.Fatalf("SampleRandom(%d): %v", window, err)
		}
		if len(p.PastValues) != window+1 {
			t.Fatalf("past_values has %d entries, want %d", len(p.PastValues), window+1)
		}
		if p.PastValues[window] != p.LastActualValue {
			t.Errorf("past_values[-1] = %v, last_actual_value = %v", p.PastValues[window], p.LastActualValue)
		}
		if p.FutureValues[0] != p.LastActualValue {
			t.Errorf("future_values[0] = %v, last_actual_value = %v", p.FutureValues[0], p.LastActualValue)
		}
		if p.SampledIndex < window*AggregateHours || p.SampledIndex >= s.Len()-AggregateHours {
			t.Errorf("random index %d outside [%d, %d)", p.SampledIndex, window*AggregateHours, s.Len()-AggregateHours)
		}
	}
}

type fixedSource int

func (f fixedSource) IntN(n int) int { return min(int(f), n-1) }

func TestSampleRandom_SingleValidIndex(t *testing.T) {
	// lo == hi == 12: the half-open draw range is empty, the index is still valid.
	s := newTestSampler(t, 18, func(int) float64 { return 1 })
	p, err := s.SampleRandom(context.Background(), 2, fixedSource(99))
	if err != nil {
		t.Fatal(err)
	}
	if p.SampledIndex != 12 {
		t.Errorf("sampled_index = %d, want 12", p.SampledIndex)
	}
}

func TestPayload_ScaleLinearity(t *testing.T) {
	s := newTestSampler(t, 60, func(i int) float64 { return float64(i) + 0.25 })
	p, err := s.Sample(context.Background(), 3, 30)
	if err != nil {
		t.Fatal(err)
	}

	const c = 2.5
	q := p.Scale(c)

	if q.PredictedValue != p.PredictedValue*c || q.LastActualValue != p.LastActualValue*c {
		t.Errorf("scalar fields not scaled: %+v", q)
	}
	for i := range p.PastValues {
		if q.PastValues[i] != p.PastValues[i]*c {
			t.Errorf("past_values[%d] = %v, want %v", i, q.PastValues[i], p.PastValues[i]*c)
		}
		if q.PastAxis[i] != p.PastAxis[i] {
			t.Errorf("past_axis[%d] changed", i)
		}
	}
	for i := range p.FutureValues {
		if q.FutureValues[i] != p.FutureValues[i]*c {
			t.Errorf("future_values[%d] = %v, want %v", i, q.FutureValues[i], p.FutureValues[i]*c)
		}
	}
	if q.SampledIndex != p.SampledIndex || q.FutureAxis[1] != 1 {
		t.Error("index fields changed by Scale")
	}

	q.PastValues[0] = -1
	if p.PastValues[0] == -1 {
		t.Error("Scale aliased the original slice")
	}
}

func TestNewSampler_Errors(t *testing.T) {
	if _, err := NewSampler(nil, testFrame(10, func(int) float64 { return 0 })); err == nil {
		t.Error("expected error for nil model")
	}
	if _, err := NewSampler(doubler{}, &features.Frame{}); err == nil {
		t.Error("expected error for empty frame")
	}
	noSums := testFrame(10, func(int) float64 { return 1 })
	noSums.QSum = nil
	if _, err := NewSampler(doubler{}, noSums); err == nil {
		t.Error("expected error for frame without Q aggregates")
	}
}

func telemetry(n int, outlet func(i int) float64) []features.TelemetryRow {
	rows := make([]features.TelemetryRow, n)
	for i := range rows {
		rows[i] = features.TelemetryRow{
			Workload:     50,
			Outlet:       outlet(i),
			Inlet:        30,
			CoolingPower: 100,
			ChillerUsage: 25,
			AHUUsage:     12.5,
			Ambient:      20,
		}
	}
	return rows
}

func TestSample_FullAggregatesAtLowerBound(t *testing.T) {
	frame, err := features.Synthesize(telemetry(400, func(int) float64 { return 40 }), features.Options{Horizon: 1})
	if err != nil {
		t.Fatal(err)
	}
	s, err := NewSampler(doubler{}, frame)
	if err != nil {
		t.Fatal(err)
	}

	const window = 12
	want := AggregateHours * frame.Q[0]
	for _, idx := range []int{window * AggregateHours, window*AggregateHours + 3} {
		p, err := s.Sample(context.Background(), window, idx)
		if err != nil {
			t.Fatalf("Sample(%d): %v", idx, err)
		}
		for k, v := range p.PastValues {
			if math.Abs(v-want) > 1e-9 {
				t.Errorf("idx %d: past_values[%d] = %v, want %v", idx, k, v, want)
			}
		}
	}
}

func TestSample_AggregatesMatchRawTelemetry(t *testing.T) {
	rows := telemetry(300, func(i int) float64 { return 35 + float64(i%17) })
	frame, err := features.Synthesize(rows, features.Options{Horizon: 2})
	if err != nil {
		t.Fatal(err)
	}
	s, err := NewSampler(doubler{}, frame)
	if err != nil {
		t.Fatal(err)
	}

	const window = 3
	idx := window * AggregateHours
	p, err := s.Sample(context.Background(), window, idx)
	if err != nil {
		t.Fatal(err)
	}

	for k := 0; k <= window; k++ {
		end := frame.Timestamps[idx-(window-k)*AggregateHours] - 1
		var want float64
		for j := end - AggregateHours + 1; j <= end; j++ {
			want += features.MassFlow * features.SpecificHeat * (rows[j].Outlet - rows[j].Inlet)
		}
		if math.Abs(p.PastValues[k]-want) > 1e-6 {
			t.Errorf("past_values[%d] = %v, want %v", k, p.PastValues[k], want)
		}
	}
}
