package match

import (
	"errors"
	"math"
	"testing"
)

func TestScore_IdenticalDescriptors(t *testing.T) {
	e := NewEngine()
	desc := []float64{0.3, -0.5, 0.8, 0.1}

	s, err := e.Score(desc, desc, 0.9)
	if err != nil {
		t.Fatalf("score failed: %v", err)
	}
	if math.Abs(s.Confidence-1.0) > 1e-9 {
		t.Errorf("identical descriptors should score confidence 1, got %g", s.Confidence)
	}
	if s.Liveness != 0.9 {
		t.Errorf("liveness should pass through, got %g", s.Liveness)
	}
}

func TestScore_OppositeDescriptors(t *testing.T) {
	e := NewEngine()
	a := []float64{1, 0, 0}
	b := []float64{-1, 0, 0}

	s, err := e.Score(a, b, 0.5)
	if err != nil {
		t.Fatalf("score failed: %v", err)
	}
	if math.Abs(s.Confidence) > 1e-9 {
		t.Errorf("opposite descriptors should score confidence 0, got %g", s.Confidence)
	}
}

func TestScore_Orthogonal(t *testing.T) {
	e := NewEngine()
	a := []float64{1, 0}
	b := []float64{0, 1}

	s, err := e.Score(a, b, 0.5)
	if err != nil {
		t.Fatalf("score failed: %v", err)
	}
	if math.Abs(s.Confidence-0.5) > 1e-9 {
		t.Errorf("orthogonal descriptors should score confidence 0.5, got %g", s.Confidence)
	}
}

func TestScore_Bounded(t *testing.T) {
	e := NewEngine()
	a := []float64{1000, -2000, 3000}
	b := []float64{-17, 42, 0.001}

	s, err := e.Score(a, b, 1.7)
	if err != nil {
		t.Fatalf("score failed: %v", err)
	}
	if s.Confidence < 0 || s.Confidence > 1 {
		t.Errorf("confidence out of [0,1]: %g", s.Confidence)
	}
	if s.Liveness != 1 {
		t.Errorf("liveness above 1 should clamp to 1, got %g", s.Liveness)
	}
}

func TestScore_Deterministic(t *testing.T) {
	e := NewEngine()
	a := []float64{0.11, 0.22, 0.33}
	b := []float64{0.12, 0.21, 0.35}

	first, err := e.Score(a, b, 0.6)
	if err != nil {
		t.Fatalf("score failed: %v", err)
	}
	for i := 0; i < 10; i++ {
		again, err := e.Score(a, b, 0.6)
		if err != nil {
			t.Fatalf("score failed: %v", err)
		}
		if again != first {
			t.Fatalf("score not deterministic: %+v != %+v", again, first)
		}
	}
}

func TestScore_MonotonicInSimilarity(t *testing.T) {
	e := NewEngine()
	template := []float64{1, 0}

	close, _ := e.Score([]float64{0.9, 0.1}, template, 0.5)
	far, _ := e.Score([]float64{0.1, 0.9}, template, 0.5)
	if close.Confidence <= far.Confidence {
		t.Errorf("closer descriptor should score higher: %g <= %g", close.Confidence, far.Confidence)
	}
}

func TestScore_DimensionMismatch(t *testing.T) {
	e := NewEngine()
	if _, err := e.Score([]float64{1, 2}, []float64{1, 2, 3}, 0.5); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch, got %v", err)
	}
	if _, err := e.Score(nil, []float64{1}, 0.5); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch for nil live descriptor, got %v", err)
	}
}

func TestScore_ZeroVector(t *testing.T) {
	e := NewEngine()
	if _, err := e.Score([]float64{0, 0}, []float64{1, 1}, 0.5); err == nil {
		t.Error("expected error for zero-magnitude descriptor")
	}
}
