package features

import (
	"fmt"
	"math"
	"slices"

	"github.com/HatiCode/heatcast/pkg/adapters"
)

const (
	// WeeklyLag is always added for workload and outlet temperature on top
	// of the configured lag set.
	WeeklyLag = 168

	// SpecificHeat is the coolant heat capacity in kJ/kg·K.
	SpecificHeat = 4.18

	// MassFlow is the coolant mass flow in kg/s.
	MassFlow = 1.0
)

var (
	// DefaultLags are the hour offsets applied to every base signal.
	DefaultLags = []int{1, 2, 3, 6, 12, 24}

	rollingWindows = []int{6, 24}
	fluxLags       = []int{1, 6, 24}
)

// Options controls synthesis.
type Options struct {
	// Lags are positive hour offsets. Nil means DefaultLags.
	Lags []int
	// Horizon is K, the number of future hours summed into the target.
	Horizon int
}

func (o Options) normalize() (Options, error) {
	lags := o.Lags
	if lags == nil {
		lags = DefaultLags
	}
	out := make([]int, 0, len(lags))
	for _, l := range lags {
		if l <= 0 {
			return o, fmt.Errorf("lag %d must be positive", l)
		}
		if !slices.Contains(out, l) {
			out = append(out, l)
		}
	}
	slices.Sort(out)
	if o.Horizon < 1 {
		return o, fmt.Errorf("horizon %d must be >= 1", o.Horizon)
	}
	return Options{Lags: out, Horizon: o.Horizon}, nil
}

// Warmup returns the number of leading rows that lack full history for the
// given lag set.
func Warmup(lags []int) int {
	w := WeeklyLag
	for _, l := range lags {
		w = max(w, l)
	}
	for _, win := range rollingWindows {
		w = max(w, win-1)
	}
	return w
}

// Builder synthesizes frames with a fixed set of options.
type Builder struct {
	opts Options
}

// NewBuilder creates a builder. It fails if the options are invalid.
func NewBuilder(opts Options) (*Builder, error) {
	norm, err := opts.normalize()
	if err != nil {
		return nil, err
	}
	return &Builder{opts: norm}, nil
}

// Options returns the normalized options.
func (b *Builder) Options() Options {
	return b.opts
}

// BuildFeatures converts adapter output and synthesizes a frame from it.
func (b *Builder) BuildFeatures(df adapters.DataFrame) (*Frame, error) {
	rows, err := FromDataFrame(df)
	if err != nil {
		return nil, err
	}
	return Synthesize(rows, b.opts)
}

// Synthesize builds the feature frame and target from telemetry rows.
// The result is fully determined by rows and opts.
func Synthesize(rows []TelemetryRow, opts Options) (*Frame, error) {
	opts, err := opts.normalize()
	if err != nil {
		return nil, err
	}

	n := len(rows)
	warmup := Warmup(opts.Lags)
	if n <= warmup+opts.Horizon {
		return nil, fmt.Errorf("%w: %d rows, need more than %d (warmup %d + horizon %d)",
			ErrInsufficientHistory, n, warmup+opts.Horizon, warmup, opts.Horizon)
	}

	base := make([][]float64, len(Signals))
	for s := range base {
		base[s] = make([]float64, n)
	}
	for i, r := range rows {
		for s, v := range r.values() {
			base[s][i] = v
		}
	}

	var names []string
	var cols [][]float64
	add := func(name string, col []float64) {
		names = append(names, name)
		cols = append(cols, col)
	}

	for s, sig := range Signals {
		add(sig.Key, base[s])
	}

	for _, l := range opts.Lags {
		for s, sig := range Signals {
			add(fmt.Sprintf("%s_t-%d", sig.Key, l), lag(base[s], l))
		}
	}

	for s, sig := range Signals {
		for _, w := range rollingWindows {
			mean, std := rollingMeanStd(base[s], w)
			add(fmt.Sprintf("%s_roll_mean_%d", sig.Key, w), mean)
			add(fmt.Sprintf("%s_roll_std_%d", sig.Key, w), std)
		}
	}

	hour := make([]float64, n)
	dow := make([]float64, n)
	hourSin, hourCos := make([]float64, n), make([]float64, n)
	dowSin, dowCos := make([]float64, n), make([]float64, n)
	for i := range n {
		ts := i + 1
		hour[i] = float64((ts - 1) % 24)
		dow[i] = float64(((ts - 1) / 24) % 7)
		hourSin[i] = math.Sin(2 * math.Pi * hour[i] / 24)
		hourCos[i] = math.Cos(2 * math.Pi * hour[i] / 24)
		dowSin[i] = math.Sin(2 * math.Pi * dow[i] / 7)
		dowCos[i] = math.Cos(2 * math.Pi * dow[i] / 7)
	}
	add("hour_sin", hourSin)
	add("hour_cos", hourCos)
	add("dow_sin", dowSin)
	add("dow_cos", dowCos)

	if !slices.Contains(opts.Lags, WeeklyLag) {
		add(fmt.Sprintf("workload_t-%d", WeeklyLag), lag(base[0], WeeklyLag))
		add(fmt.Sprintf("outlet_t-%d", WeeklyLag), lag(base[1], WeeklyLag))
	}

	deltaT := make([]float64, n)
	q := make([]float64, n)
	for i := range n {
		deltaT[i] = base[1][i] - base[2][i]
		q[i] = MassFlow * SpecificHeat * deltaT[i]
	}
	for _, w := range rollingWindows {
		mean, _ := rollingMeanStd(q, w)
		add(fmt.Sprintf("Q_roll_mean_%d", w), mean)
	}
	for _, l := range fluxLags {
		add(fmt.Sprintf("Q_t-%d", l), lag(q, l))
	}

	target := forwardSum(q, opts.Horizon)
	qSum := trailingSum(q, QSumHours)

	keep := make([]int, 0, n-warmup-opts.Horizon)
	for i := 0; i < n-opts.Horizon; i++ {
		if defined(i, cols, q, qSum, target) {
			keep = append(keep, i)
		}
	}
	if len(keep) == 0 {
		return nil, fmt.Errorf("%w: no complete rows in %d", ErrInsufficientHistory, n)
	}

	f := &Frame{
		Names:      names,
		Columns:    make([][]float64, len(cols)),
		Timestamps: make([]int, len(keep)),
		Q:          pick(q, keep),
		QSum:       pick(qSum, keep),
		DeltaT:     pick(deltaT, keep),
		Hour:       pick(hour, keep),
		Dow:        pick(dow, keep),
		Target:     pick(target, keep),
		Lags:       opts.Lags,
		Horizon:    opts.Horizon,
		Warmup:     warmup,
	}
	for j, col := range cols {
		f.Columns[j] = pick(col, keep)
	}
	for k, i := range keep {
		f.Timestamps[k] = i + 1
	}
	return f, nil
}

func defined(i int, cols [][]float64, q, qSum, target []float64) bool {
	if math.IsNaN(q[i]) || math.IsNaN(qSum[i]) || math.IsNaN(target[i]) {
		return false
	}
	for _, col := range cols {
		if math.IsNaN(col[i]) {
			return false
		}
	}
	return true
}

func pick(x []float64, idx []int) []float64 {
	out := make([]float64, len(idx))
	for k, i := range idx {
		out[k] = x[i]
	}
	return out
}
