package search

import (
	"fmt"
	"math/rand/v2"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/HatiCode/heatcast/pkg/models"
)

// Space is a discrete hyperparameter grid. Candidates are the cartesian
// product of the value lists.
//
// YAML form:
//
//	n_estimators: [300, 500, 1000]
//	max_depth: [3, 5, 7]
//	learning_rate: [0.01, 0.05, 0.1]
//	subsample: [0.7, 0.8, 1.0]
//	colsample_bytree: [0.7, 0.8, 1.0]
type Space struct {
	NEstimators     []int     `yaml:"n_estimators" json:"n_estimators"`
	MaxDepth        []int     `yaml:"max_depth" json:"max_depth"`
	LearningRate    []float64 `yaml:"learning_rate" json:"learning_rate"`
	Subsample       []float64 `yaml:"subsample" json:"subsample"`
	ColsampleByTree []float64 `yaml:"colsample_bytree" json:"colsample_bytree"`
}

// DefaultSpace returns the standard 243-candidate grid.
func DefaultSpace() Space {
	return Space{
		NEstimators:     []int{300, 500, 1000},
		MaxDepth:        []int{3, 5, 7},
		LearningRate:    []float64{0.01, 0.05, 0.1},
		Subsample:       []float64{0.7, 0.8, 1.0},
		ColsampleByTree: []float64{0.7, 0.8, 1.0},
	}
}

// LoadSpace reads a YAML grid. Dimensions left out of the file keep their
// default values.
func LoadSpace(path string) (Space, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Space{}, fmt.Errorf("read search space: %w", err)
	}
	return ParseSpace(data)
}

// ParseSpace decodes a YAML grid; see LoadSpace.
func ParseSpace(data []byte) (Space, error) {
	var s Space
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Space{}, fmt.Errorf("parse search space: %w", err)
	}

	def := DefaultSpace()
	if len(s.NEstimators) == 0 {
		s.NEstimators = def.NEstimators
	}
	if len(s.MaxDepth) == 0 {
		s.MaxDepth = def.MaxDepth
	}
	if len(s.LearningRate) == 0 {
		s.LearningRate = def.LearningRate
	}
	if len(s.Subsample) == 0 {
		s.Subsample = def.Subsample
	}
	if len(s.ColsampleByTree) == 0 {
		s.ColsampleByTree = def.ColsampleByTree
	}

	if err := s.Validate(); err != nil {
		return Space{}, err
	}
	return s, nil
}

// Size is the number of candidates in the grid.
func (s Space) Size() int {
	return len(s.NEstimators) * len(s.MaxDepth) * len(s.LearningRate) *
		len(s.Subsample) * len(s.ColsampleByTree)
}

// At decodes candidate i in [0, Size()) in mixed-radix order, last dimension
// varying fastest.
func (s Space) At(i int) models.Params {
	var p models.Params
	p.ColsampleByTree = s.ColsampleByTree[i%len(s.ColsampleByTree)]
	i /= len(s.ColsampleByTree)
	p.Subsample = s.Subsample[i%len(s.Subsample)]
	i /= len(s.Subsample)
	p.LearningRate = s.LearningRate[i%len(s.LearningRate)]
	i /= len(s.LearningRate)
	p.MaxDepth = s.MaxDepth[i%len(s.MaxDepth)]
	i /= len(s.MaxDepth)
	p.NEstimators = s.NEstimators[i%len(s.NEstimators)]
	return p
}

// Validate checks that the grid is non-empty and every candidate is legal.
func (s Space) Validate() error {
	if s.Size() == 0 {
		return fmt.Errorf("search space has an empty dimension")
	}
	for i := 0; i < s.Size(); i++ {
		if err := s.At(i).Validate(); err != nil {
			return fmt.Errorf("search space candidate %d: %w", i, err)
		}
	}
	return nil
}

// Sample draws n distinct candidates in draw order. If n exceeds the grid
// size the whole grid is returned in a shuffled order.
func (s Space) Sample(rng *rand.Rand, n int) []models.Params {
	size := s.Size()
	if n > size {
		n = size
	}
	perm := rng.Perm(size)[:n]
	out := make([]models.Params, n)
	for i, idx := range perm {
		out[i] = s.At(idx)
	}
	return out
}
