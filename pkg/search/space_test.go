package search

import (
	"math/rand/v2"
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultSpace(t *testing.T) {
	s := DefaultSpace()
	if s.Size() != 243 {
		t.Fatalf("Size = %d, want 243", s.Size())
	}

	first := s.At(0)
	if first.NEstimators != 300 || first.MaxDepth != 3 || first.LearningRate != 0.01 ||
		first.Subsample != 0.7 || first.ColsampleByTree != 0.7 {
		t.Errorf("At(0) = %+v", first)
	}
	last := s.At(242)
	if last.NEstimators != 1000 || last.MaxDepth != 7 || last.LearningRate != 0.1 ||
		last.Subsample != 1.0 || last.ColsampleByTree != 1.0 {
		t.Errorf("At(242) = %+v", last)
	}
	if err := s.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestSpace_SampleDistinctAndSeeded(t *testing.T) {
	s := DefaultSpace()

	a := s.Sample(rand.New(rand.NewPCG(42, 42)), 30)
	b := s.Sample(rand.New(rand.NewPCG(42, 42)), 30)
	if len(a) != 30 {
		t.Fatalf("len = %d, want 30", len(a))
	}

	seen := make(map[string]bool)
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("draw %d differs for the same seed", i)
		}
		key := a[i].String()
		if seen[key] {
			t.Errorf("candidate %s drawn twice", key)
		}
		seen[key] = true
	}

	if all := s.Sample(rand.New(rand.NewPCG(1, 1)), 1000); len(all) != 243 {
		t.Errorf("oversized sample = %d, want whole grid", len(all))
	}
}

func TestParseSpace(t *testing.T) {
	s, err := ParseSpace([]byte("max_depth: [2, 4]\nlearning_rate: [0.2]\n"))
	if err != nil {
		t.Fatalf("ParseSpace: %v", err)
	}
	if s.Size() != 3*2*1*3*3 {
		t.Errorf("Size = %d", s.Size())
	}
	if s.NEstimators[0] != 300 {
		t.Errorf("missing dimension not defaulted: %v", s.NEstimators)
	}

	if _, err := ParseSpace([]byte("learning_rate: [2.0]\n")); err == nil {
		t.Error("expected error for learning_rate out of range")
	}
	if _, err := ParseSpace([]byte("max_depth: [a")); err == nil {
		t.Error("expected error for malformed YAML")
	}
}

func TestLoadSpace(t *testing.T) {
	path := filepath.Join(t.TempDir(), "space.yaml")
	if err := os.WriteFile(path, []byte("n_estimators: [50]\nsubsample: [1.0]\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	s, err := LoadSpace(path)
	if err != nil {
		t.Fatal(err)
	}
	if s.Size() != 27 {
		t.Errorf("Size = %d, want 27", s.Size())
	}
	if _, err := LoadSpace(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}
