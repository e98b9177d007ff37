package models

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// GradientBoostingName identifies GradientBoosting.
const GradientBoostingName = "gradient_boosting"

const (
	defaultMaxBins = 64
	defaultLambda  = 1.0
	minSplitGain   = 1e-12
)

// GradientBoosting is a histogram-based gradient-boosted regression tree
// ensemble with squared-error loss.
//
// Algorithm:
//  1. Each feature is bucketed into at most MaxBins quantile bins once per fit.
//  2. The ensemble starts from the target mean.
//  3. Every round draws a row subsample (Subsample) and a column subsample
//     (ColsampleByTree), fits one tree of depth <= MaxDepth to the current
//     residuals, and adds LearningRate times its leaf weights.
//  4. Splits maximise the L2-regularised gain
//     GL²/(HL+λ) + GR²/(HR+λ) − G²/(H+λ), leaf weight G/(H+λ).
//
// Fitting is deterministic for a given Seed. Trees are stored as flat node
// arrays so a fitted model round-trips through JSON unchanged.
type GradientBoosting struct {
	Params  Params  `json:"params"`
	Seed    uint64  `json:"seed"`
	Lambda  float64 `json:"lambda"`
	MaxBins int     `json:"max_bins"`

	NumFeatures int     `json:"num_features"`
	BaseScore   float64 `json:"base_score"`
	Trees       []Tree  `json:"trees"`
}

// NewGradientBoosting creates an unfitted ensemble.
func NewGradientBoosting(p Params, seed uint64) *GradientBoosting {
	return &GradientBoosting{
		Params:  p,
		Seed:    seed,
		Lambda:  defaultLambda,
		MaxBins: defaultMaxBins,
	}
}

// Tree is one regression tree; node 0 is the root.
type Tree struct {
	Nodes []Node `json:"nodes"`
}

// Node is an internal split (x[Feature] <= Threshold goes Left) or a leaf.
type Node struct {
	Feature   int     `json:"f,omitempty"`
	Threshold float64 `json:"t,omitempty"`
	Left      int     `json:"l,omitempty"`
	Right     int     `json:"r,omitempty"`
	Leaf      bool    `json:"leaf,omitempty"`
	Value     float64 `json:"v,omitempty"`
}

func (t *Tree) predict(x []float64) float64 {
	i := 0
	for {
		n := &t.Nodes[i]
		if n.Leaf {
			return n.Value
		}
		if x[n.Feature] > n.Threshold {
			i = n.Right
		} else {
			i = n.Left
		}
	}
}

// Name returns the model identifier.
func (g *GradientBoosting) Name() string { return GradientBoostingName }

// Fit trains the ensemble. Non-finite inputs are rejected.
func (g *GradientBoosting) Fit(ctx context.Context, X [][]float64, y []float64) error {
	width, err := checkShape(X, y)
	if err != nil {
		return fmt.Errorf("gradient boosting: %w", err)
	}
	if err := g.Params.Validate(); err != nil {
		return fmt.Errorf("gradient boosting: %w", err)
	}
	if g.Lambda < 0 {
		return fmt.Errorf("gradient boosting: lambda must be >= 0, got %g", g.Lambda)
	}
	maxBins := g.MaxBins
	if maxBins < 2 || maxBins > 256 {
		maxBins = defaultMaxBins
	}
	for i, v := range y {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("gradient boosting: target %d is not finite", i)
		}
	}

	n := len(X)
	cuts := make([][]float64, width)
	binned := make([][]uint8, width)
	col := make([]float64, n)
	for j := 0; j < width; j++ {
		for i := range X {
			v := X[i][j]
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("gradient boosting: feature %d of row %d is not finite", j, i)
			}
			col[i] = v
		}
		cuts[j] = binEdges(col, maxBins)
		b := make([]uint8, n)
		for i, v := range col {
			b[i] = uint8(sort.SearchFloat64s(cuts[j], v))
		}
		binned[j] = b
	}

	g.NumFeatures = width
	g.BaseScore = stat.Mean(y, nil)
	g.Trees = make([]Tree, 0, g.Params.NEstimators)

	rng := rand.New(rand.NewPCG(g.Seed, g.Seed^0x9e3779b97f4a7c15))
	nRows := max(1, int(math.Round(g.Params.Subsample*float64(n))))
	nCols := max(1, int(math.Round(g.Params.ColsampleByTree*float64(width))))

	pred := make([]float64, n)
	for i := range pred {
		pred[i] = g.BaseScore
	}
	resid := make([]float64, n)
	builder := &treeBuilder{
		binned:   binned,
		cuts:     cuts,
		resid:    resid,
		lambda:   g.Lambda,
		maxDepth: g.Params.MaxDepth,
		eta:      g.Params.LearningRate,
		sum:      make([]float64, maxBins),
		cnt:      make([]float64, maxBins),
	}

	for round := 0; round < g.Params.NEstimators; round++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		for i := range resid {
			resid[i] = y[i] - pred[i]
		}
		rows := sampleIndices(rng, n, nRows)
		builder.cols = sampleIndices(rng, width, nCols)
		tree := builder.build(rows)
		for i := range X {
			pred[i] += tree.predict(X[i])
		}
		g.Trees = append(g.Trees, tree)
	}
	return nil
}

// Predict evaluates the ensemble on each row of X.
func (g *GradientBoosting) Predict(ctx context.Context, X [][]float64) ([]float64, error) {
	if g.NumFeatures == 0 {
		return nil, ErrNotFitted
	}
	out := make([]float64, len(X))
	for i, row := range X {
		if len(row) != g.NumFeatures {
			return nil, fmt.Errorf("gradient boosting: %w: row %d has %d features, model expects %d",
				ErrShape, i, len(row), g.NumFeatures)
		}
		v := g.BaseScore
		for t := range g.Trees {
			v += g.Trees[t].predict(row)
		}
		out[i] = v
	}
	return out, nil
}

// binEdges returns sorted split thresholds for one feature. A value v falls in
// bin SearchFloat64s(edges, v), so v <= edges[b] exactly when its bin is <= b.
func binEdges(col []float64, maxBins int) []float64 {
	sorted := append([]float64(nil), col...)
	sort.Float64s(sorted)

	uniq := make([]float64, 0, min(len(sorted), maxBins+1))
	for i, v := range sorted {
		if i == 0 || v != sorted[i-1] {
			uniq = append(uniq, v)
			if len(uniq) > maxBins {
				break
			}
		}
	}
	if len(uniq) <= maxBins {
		return uniq[:len(uniq)-1]
	}

	edges := make([]float64, 0, maxBins-1)
	for k := 1; k < maxBins; k++ {
		q := stat.Quantile(float64(k)/float64(maxBins), stat.Empirical, sorted, nil)
		if len(edges) == 0 || q > edges[len(edges)-1] {
			edges = append(edges, q)
		}
	}
	if len(edges) > 0 && edges[len(edges)-1] >= sorted[len(sorted)-1] {
		edges = edges[:len(edges)-1]
	}
	return edges
}

func sampleIndices(rng *rand.Rand, n, k int) []int {
	if k >= n {
		out := make([]int, n)
		for i := range out {
			out[i] = i
		}
		return out
	}
	out := rng.Perm(n)[:k]
	sort.Ints(out)
	return out
}

type treeBuilder struct {
	binned   [][]uint8
	cuts     [][]float64
	resid    []float64
	lambda   float64
	maxDepth int
	eta      float64
	cols     []int

	nodes []Node
	sum   []float64
	cnt   []float64
}

type split struct {
	feature int
	bin     int
	gain    float64
}

var errNoSplit = errors.New("no split improves the objective")

func (b *treeBuilder) build(rows []int) Tree {
	b.nodes = make([]Node, 0, 1<<min(b.maxDepth+1, 12))
	b.grow(rows, 0)
	return Tree{Nodes: b.nodes}
}

func (b *treeBuilder) grow(rows []int, depth int) int {
	idx := len(b.nodes)
	b.nodes = append(b.nodes, Node{})

	var g float64
	for _, i := range rows {
		g += b.resid[i]
	}
	h := float64(len(rows))

	if depth < b.maxDepth && len(rows) >= 2 {
		if s, err := b.bestSplit(rows, g, h); err == nil {
			left, right := partition(rows, b.binned[s.feature], s.bin)
			l := b.grow(left, depth+1)
			r := b.grow(right, depth+1)
			b.nodes[idx] = Node{
				Feature:   s.feature,
				Threshold: b.cuts[s.feature][s.bin],
				Left:      l,
				Right:     r,
			}
			return idx
		}
	}

	b.nodes[idx] = Node{Leaf: true, Value: b.eta * g / (h + b.lambda)}
	return idx
}

func (b *treeBuilder) bestSplit(rows []int, g, h float64) (split, error) {
	parent := g * g / (h + b.lambda)
	best := split{gain: minSplitGain}
	found := false

	for _, j := range b.cols {
		edges := len(b.cuts[j])
		if edges == 0 {
			continue
		}
		sum := b.sum[:edges+1]
		cnt := b.cnt[:edges+1]
		clear(sum)
		clear(cnt)

		col := b.binned[j]
		for _, i := range rows {
			sum[col[i]] += b.resid[i]
			cnt[col[i]]++
		}

		var gl, hl float64
		for k := 0; k < edges; k++ {
			gl += sum[k]
			hl += cnt[k]
			hr := h - hl
			if hl == 0 {
				continue
			}
			if hr == 0 {
				break
			}
			gr := g - gl
			gain := gl*gl/(hl+b.lambda) + gr*gr/(hr+b.lambda) - parent
			if gain > best.gain {
				best = split{feature: j, bin: k, gain: gain}
				found = true
			}
		}
	}

	if !found {
		return split{}, errNoSplit
	}
	return best, nil
}

func partition(rows []int, col []uint8, bin int) (left, right []int) {
	left = make([]int, 0, len(rows))
	right = make([]int, 0, len(rows))
	for _, i := range rows {
		if int(col[i]) <= bin {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	return left, right
}
