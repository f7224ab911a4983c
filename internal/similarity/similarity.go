// Package similarity scores face embeddings against each other and applies
// the match threshold. A score is cosine similarity in [-1, 1]; 1 means the
// vectors point the same way, 0 means unrelated.
package similarity

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/floats"
)

// ErrDimensionMismatch is returned when two embeddings cannot be compared.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// Score computes the cosine similarity between two embeddings.
// Returns ErrDimensionMismatch when lengths differ or are zero.
func Score(a, b []float32) (float64, error) {
	if len(a) != len(b) || len(a) == 0 {
		return 0, ErrDimensionMismatch
	}

	fa := make([]float64, len(a))
	fb := make([]float64, len(b))
	for i := range a {
		fa[i] = float64(a[i])
		fb[i] = float64(b[i])
	}

	normA := math.Sqrt(floats.Dot(fa, fa))
	normB := math.Sqrt(floats.Dot(fb, fb))
	if normA == 0 || normB == 0 {
		// A zero vector carries no identity information; it matches nothing.
		return 0, nil
	}

	score := floats.Dot(fa, fb) / (normA * normB)

	// Clamp to [-1, 1] to absorb floating point error.
	if score > 1 {
		score = 1
	}
	if score < -1 {
		score = -1
	}
	return score, nil
}

// Matches reports whether two embeddings belong to the same identity under
// the given threshold. Higher thresholds mean stricter matching: fewer false
// accepts, more false rejects.
func Matches(a, b []float32, threshold float64) (bool, error) {
	score, err := Score(a, b)
	if err != nil {
		return false, err
	}
	return score >= threshold, nil
}
