package features

import (
	"errors"
	"fmt"
)

var (
	// ErrInsufficientHistory is returned when no row survives warm-up and
	// horizon truncation.
	ErrInsufficientHistory = errors.New("insufficient history")

	// ErrMissingColumn is returned when a required base signal is absent.
	ErrMissingColumn = errors.New("missing column")
)

// MissingColumnError names the absent base signal.
type MissingColumnError struct {
	Column string
	Row    int
}

func (e *MissingColumnError) Error() string {
	return fmt.Sprintf("missing column %q (row %d)", e.Column, e.Row)
}

func (e *MissingColumnError) Is(target error) bool {
	return target == ErrMissingColumn
}
