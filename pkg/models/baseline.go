package models

import (
	"context"
	"fmt"

	"gonum.org/v1/gonum/stat"
)

// MeanRegressorName identifies MeanRegressor.
const MeanRegressorName = "mean"

// MeanRegressor predicts the mean training target for every row. The trainer
// reports its out-of-fold error next to the tuned model so a search that fails
// to beat a constant is visible in the logs.
type MeanRegressor struct {
	Mean   float64 `json:"mean"`
	Fitted bool    `json:"fitted"`
}

// Name returns the model identifier.
func (m *MeanRegressor) Name() string { return MeanRegressorName }

// Fit records the target mean.
func (m *MeanRegressor) Fit(ctx context.Context, X [][]float64, y []float64) error {
	if _, err := checkShape(X, y); err != nil {
		return fmt.Errorf("mean: %w", err)
	}
	m.Mean = stat.Mean(y, nil)
	m.Fitted = true
	return nil
}

// Predict returns the fitted mean for every row.
func (m *MeanRegressor) Predict(ctx context.Context, X [][]float64) ([]float64, error) {
	if !m.Fitted {
		return nil, ErrNotFitted
	}
	out := make([]float64, len(X))
	for i := range out {
		out[i] = m.Mean
	}
	return out, nil
}
