// Package folds produces expanding-window chronological splits for
// cross-validation. Every validation range lies strictly after its
// training range, so no fold trains on the future it is scored against.
package folds

import (
	"errors"
	"fmt"
)

// DefaultFolds is the fold count used by the trainer.
const DefaultFolds = 5

// ErrInsufficientRows is returned when there are too few rows for the
// requested fold count.
var ErrInsufficientRows = errors.New("insufficient rows for fold count")

// Fold is one train/validation pair of half-open row ranges.
// Train is [0, TrainEnd) and validation is [TrainEnd, ValEnd).
type Fold struct {
	Index    int
	TrainEnd int
	ValEnd   int
}

// TrainRange returns the half-open training range.
func (f Fold) TrainRange() (lo, hi int) { return 0, f.TrainEnd }

// ValRange returns the half-open validation range.
func (f Fold) ValRange() (lo, hi int) { return f.TrainEnd, f.ValEnd }

func (f Fold) String() string {
	return fmt.Sprintf("fold %d: train [0,%d) val [%d,%d)", f.Index, f.TrainEnd, f.TrainEnd, f.ValEnd)
}

// Split divides n chronologically ordered rows into k expanding-window folds.
//
// Each validation block has n/(k+1) rows. The first training range holds the
// remainder so the last validation block always ends at row n. Training
// ranges grow monotonically and consecutive validation blocks are disjoint.
func Split(n, k int) ([]Fold, error) {
	if k < 1 {
		return nil, fmt.Errorf("fold count must be >= 1, got %d", k)
	}
	testSize := n / (k + 1)
	if testSize < 1 {
		return nil, fmt.Errorf("%w: %d rows, %d folds", ErrInsufficientRows, n, k)
	}

	first := n - k*testSize
	out := make([]Fold, k)
	for i := range out {
		end := first + i*testSize
		out[i] = Fold{Index: i, TrainEnd: end, ValEnd: end + testSize}
	}
	return out, nil
}
