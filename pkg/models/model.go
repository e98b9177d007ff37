// Package models provides the regression capability used by the training and
// serving paths.
//
// A Regressor is fitted on a row-major feature matrix and a target vector and
// predicts one value per input row. Implementations:
//   - GradientBoosting: histogram-based gradient-boosted regression trees
//   - MeanRegressor: predicts the training mean (reference baseline)
//   - RemoteRegressor: delegates fit and predict to an external HTTP service
//
// Fitted models serialize to JSON and are restored with Unmarshal.
package models

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"gonum.org/v1/gonum/floats"
)

// Regressor is the opaque fit/predict capability.
type Regressor interface {
	// Name returns the model kind, used as the serialization discriminator.
	Name() string

	// Fit trains the model on X (rows × features) and y.
	Fit(ctx context.Context, X [][]float64, y []float64) error

	// Predict returns one prediction per row of X.
	Predict(ctx context.Context, X [][]float64) ([]float64, error)
}

var (
	// ErrNotFitted is returned by Predict before a successful Fit.
	ErrNotFitted = errors.New("model not fitted")

	// ErrShape is returned when X and y disagree on row count or rows differ in width.
	ErrShape = errors.New("inconsistent input shape")
)

// Params are the tunable hyperparameters of a tree ensemble.
type Params struct {
	NEstimators     int     `json:"n_estimators" yaml:"n_estimators"`
	MaxDepth        int     `json:"max_depth" yaml:"max_depth"`
	LearningRate    float64 `json:"learning_rate" yaml:"learning_rate"`
	Subsample       float64 `json:"subsample" yaml:"subsample"`
	ColsampleByTree float64 `json:"colsample_bytree" yaml:"colsample_bytree"`
}

// DefaultParams mirrors a conventional boosted-tree starting point.
func DefaultParams() Params {
	return Params{
		NEstimators:     300,
		MaxDepth:        5,
		LearningRate:    0.05,
		Subsample:       0.8,
		ColsampleByTree: 0.8,
	}
}

// Validate checks that every hyperparameter is inside its legal range.
func (p Params) Validate() error {
	if p.NEstimators < 1 {
		return fmt.Errorf("n_estimators must be >= 1, got %d", p.NEstimators)
	}
	if p.MaxDepth < 1 {
		return fmt.Errorf("max_depth must be >= 1, got %d", p.MaxDepth)
	}
	if p.LearningRate <= 0 || p.LearningRate > 1 {
		return fmt.Errorf("learning_rate must be in (0, 1], got %g", p.LearningRate)
	}
	if p.Subsample <= 0 || p.Subsample > 1 {
		return fmt.Errorf("subsample must be in (0, 1], got %g", p.Subsample)
	}
	if p.ColsampleByTree <= 0 || p.ColsampleByTree > 1 {
		return fmt.Errorf("colsample_bytree must be in (0, 1], got %g", p.ColsampleByTree)
	}
	return nil
}

func (p Params) String() string {
	return fmt.Sprintf("n_estimators=%d max_depth=%d learning_rate=%g subsample=%g colsample_bytree=%g",
		p.NEstimators, p.MaxDepth, p.LearningRate, p.Subsample, p.ColsampleByTree)
}

// MAE returns the mean absolute error between predictions and targets.
func MAE(pred, y []float64) (float64, error) {
	if len(pred) != len(y) {
		return 0, fmt.Errorf("%w: %d predictions, %d targets", ErrShape, len(pred), len(y))
	}
	if len(y) == 0 {
		return 0, errors.New("mae of empty slice")
	}
	return floats.Distance(pred, y, 1) / float64(len(y)), nil
}

// Marshal serializes a fitted regressor. The kind is Name() of the model.
func Marshal(r Regressor) (kind string, data []byte, err error) {
	data, err = json.Marshal(r)
	if err != nil {
		return "", nil, fmt.Errorf("marshal %s model: %w", r.Name(), err)
	}
	return r.Name(), data, nil
}

// Unmarshal restores a regressor previously produced by Marshal.
func Unmarshal(kind string, data []byte) (Regressor, error) {
	var r Regressor
	switch kind {
	case GradientBoostingName:
		r = &GradientBoosting{}
	case MeanRegressorName:
		r = &MeanRegressor{}
	case RemoteRegressorName:
		r = &RemoteRegressor{}
	default:
		return nil, fmt.Errorf("unknown model kind %q", kind)
	}
	if err := json.Unmarshal(data, r); err != nil {
		return nil, fmt.Errorf("unmarshal %s model: %w", kind, err)
	}
	return r, nil
}

func checkShape(X [][]float64, y []float64) (int, error) {
	if len(X) == 0 {
		return 0, fmt.Errorf("%w: no rows", ErrShape)
	}
	if y != nil && len(X) != len(y) {
		return 0, fmt.Errorf("%w: %d rows, %d targets", ErrShape, len(X), len(y))
	}
	width := len(X[0])
	for i, row := range X {
		if len(row) != width {
			return 0, fmt.Errorf("%w: row %d has %d features, expected %d", ErrShape, i, len(row), width)
		}
	}
	return width, nil
}
