package features

// QSumHours is the width of the trailing heat-flux sum carried in Frame.QSum.
const QSumHours = 6

// Frame is the synthesized training table.
//
// Columns holds the model inputs, column-major, in the order of Names. The
// remaining slices run parallel to the rows and are kept out of the model
// input because they are either the target itself or values that leak it.
type Frame struct {
	Names   []string
	Columns [][]float64

	// Timestamps are 1-based hour positions in the original telemetry.
	Timestamps []int
	Q          []float64
	// QSum is the sum of Q over the QSumHours hours ending at each row,
	// taken from the full telemetry so early rows are never partial.
	QSum       []float64
	DeltaT     []float64
	Hour       []float64
	Dow        []float64
	Target     []float64

	Lags    []int
	Horizon int
	Warmup  int
}

// Len returns the number of rows.
func (f *Frame) Len() int {
	return len(f.Target)
}

// Row returns the model input vector at row i.
func (f *Frame) Row(i int) []float64 {
	row := make([]float64, len(f.Columns))
	for j, col := range f.Columns {
		row[j] = col[i]
	}
	return row
}

// Matrix returns rows [lo, hi) of the model input as a row-major matrix.
func (f *Frame) Matrix(lo, hi int) [][]float64 {
	out := make([][]float64, 0, hi-lo)
	for i := lo; i < hi; i++ {
		out = append(out, f.Row(i))
	}
	return out
}

// Targets returns the target values of rows [lo, hi).
func (f *Frame) Targets(lo, hi int) []float64 {
	out := make([]float64, hi-lo)
	copy(out, f.Target[lo:hi])
	return out
}

// Column looks up a model input column by name.
func (f *Frame) Column(name string) ([]float64, bool) {
	for j, n := range f.Names {
		if n == name {
			return f.Columns[j], true
		}
	}
	return nil, false
}
