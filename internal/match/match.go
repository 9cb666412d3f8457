package match

import (
	"errors"
	"math"
)

// Score is the outcome of comparing a live descriptor against a template.
type Score struct {
	Confidence float64
	Liveness   float64
}

// ErrDimensionMismatch means the descriptors have different lengths and
// cannot be compared.
var ErrDimensionMismatch = errors.New("descriptor dimension mismatch")

// Engine compares live descriptors against stored templates. Confidence is a
// monotonic transform of cosine similarity, bounded to [0,1]. The liveness
// score comes from the extractor and passes through untouched.
type Engine struct{}

// NewEngine creates a match engine.
func NewEngine() *Engine {
	return &Engine{}
}

// Score compares a live descriptor with a stored template. Deterministic:
// the same inputs always produce the same confidence.
func (e *Engine) Score(live, template []float64, liveness float64) (Score, error) {
	if len(live) == 0 || len(template) == 0 || len(live) != len(template) {
		return Score{}, ErrDimensionMismatch
	}
	sim, err := cosineSimilarity(live, template)
	if err != nil {
		return Score{}, err
	}
	// Map [-1,1] similarity onto [0,1] confidence.
	conf := (sim + 1) / 2
	return Score{Confidence: clamp01(conf), Liveness: clamp01(liveness)}, nil
}

func cosineSimilarity(a, b []float64) (float64, error) {
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0, errors.New("zero-magnitude descriptor")
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB)), nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
