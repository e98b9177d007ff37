// Package forecast builds the "past trend vs. next prediction" view served to
// dashboards.
//
// For a row idx of a synthesized frame, the sampler reads the trailing 6-hour
// sum of the heat flux Q at idx, idx-6, ..., idx-window·6 (window+1
// non-overlapping aggregates, most recent last) and appends a single model
// prediction made from the feature row at idx. The last historical aggregate
// anchors the forecast segment so the two series join.
package forecast

import (
	"context"
	"errors"
	"fmt"

	"github.com/HatiCode/heatcast/pkg/features"
	"github.com/HatiCode/heatcast/pkg/models"
)

const (
	// AggregateHours is the width of one historical aggregate and the stride
	// between consecutive aggregates.
	AggregateHours = features.QSumHours

	// DefaultWindow is the number of past aggregates returned when the caller
	// does not ask for a specific window.
	DefaultWindow = 12
)

var (
	// ErrOutOfRange is returned when the index (or every index) lacks the
	// history or trailing rows the window needs.
	ErrOutOfRange = errors.New("sample index out of range")

	// ErrInvalidWindow is returned for a window below 1.
	ErrInvalidWindow = errors.New("window must be >= 1")
)

// IndexSource draws an integer uniformly from [0, n). *rand.Rand satisfies it.
type IndexSource interface {
	IntN(n int) int
}

// Payload is the presentation contract of a sample.
type Payload struct {
	SampledIndex    int       `json:"sampled_index"`
	PredictedValue  float64   `json:"predicted_value"`
	LastActualValue float64   `json:"last_actual_value"`
	PastAxis        []int     `json:"past_axis"`
	PastValues      []float64 `json:"past_values"`
	FutureAxis      []int     `json:"future_axis"`
	FutureValues    []float64 `json:"future_values"`
}

// Scale returns a copy with every value field multiplied by c. Index and
// axis fields are unchanged.
func (p Payload) Scale(c float64) Payload {
	out := p
	out.PredictedValue = p.PredictedValue * c
	out.LastActualValue = p.LastActualValue * c
	out.PastAxis = append([]int(nil), p.PastAxis...)
	out.FutureAxis = append([]int(nil), p.FutureAxis...)
	out.PastValues = scaled(p.PastValues, c)
	out.FutureValues = scaled(p.FutureValues, c)
	return out
}

func scaled(v []float64, c float64) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = x * c
	}
	return out
}

// Sampler produces payloads from a fitted model and the frame it was trained
// on. It is immutable after construction and safe for concurrent use as long
// as the model's Predict is.
type Sampler struct {
	model   models.Regressor
	frame   *features.Frame
	rolling []float64
}

// NewSampler reads the aggregates from frame.QSum, which must cover every row.
func NewSampler(model models.Regressor, frame *features.Frame) (*Sampler, error) {
	if model == nil {
		return nil, errors.New("forecast: model is required")
	}
	if frame == nil || frame.Len() == 0 {
		return nil, errors.New("forecast: frame is empty")
	}
	if len(frame.QSum) != frame.Len() {
		return nil, fmt.Errorf("forecast: frame has %d Q aggregates for %d rows", len(frame.QSum), frame.Len())
	}
	return &Sampler{
		model:   model,
		frame:   frame,
		rolling: frame.QSum,
	}, nil
}

// Len returns the number of frame rows.
func (s *Sampler) Len() int { return s.frame.Len() }

// Bounds returns the inclusive range of indices valid for window.
func (s *Sampler) Bounds(window int) (lo, hi int, err error) {
	if window < 1 {
		return 0, 0, fmt.Errorf("%w: got %d", ErrInvalidWindow, window)
	}
	lo = window * AggregateHours
	hi = s.frame.Len() - AggregateHours
	if lo > hi {
		return 0, 0, fmt.Errorf("%w: window %d needs at least %d rows, frame has %d",
			ErrOutOfRange, window, lo+AggregateHours, s.frame.Len())
	}
	return lo, hi, nil
}

// SampleRandom draws idx uniformly from [window·6, len−6) and samples it. When
// that range is empty but window·6 == len−6, that single index is used.
func (s *Sampler) SampleRandom(ctx context.Context, window int, src IndexSource) (Payload, error) {
	lo, hi, err := s.Bounds(window)
	if err != nil {
		return Payload{}, err
	}
	idx := lo
	if hi > lo {
		idx = lo + src.IntN(hi-lo)
	}
	return s.Sample(ctx, window, idx)
}

// Sample builds the payload for an explicit index.
func (s *Sampler) Sample(ctx context.Context, window, idx int) (Payload, error) {
	lo, hi, err := s.Bounds(window)
	if err != nil {
		return Payload{}, err
	}
	if idx < lo || idx > hi {
		return Payload{}, fmt.Errorf("%w: index %d outside [%d, %d] for window %d",
			ErrOutOfRange, idx, lo, hi, window)
	}

	past := make([]float64, window+1)
	axis := make([]int, window+1)
	for k := 0; k <= window; k++ {
		past[k] = s.rolling[idx-(window-k)*AggregateHours]
		axis[k] = k - window
	}
	last := s.rolling[idx]

	pred, err := s.model.Predict(ctx, [][]float64{s.frame.Row(idx)})
	if err != nil {
		return Payload{}, fmt.Errorf("forecast: predict: %w", err)
	}
	if len(pred) != 1 {
		return Payload{}, fmt.Errorf("forecast: model returned %d predictions for one row", len(pred))
	}

	return Payload{
		SampledIndex:    idx,
		PredictedValue:  pred[0],
		LastActualValue: last,
		PastAxis:        axis,
		PastValues:      past,
		FutureAxis:      []int{0, 1},
		FutureValues:    []float64{last, pred[0]},
	}, nil
}
