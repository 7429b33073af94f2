// Package embedding converts text into vectors and compares them.
package embedding

import (
	"context"
	"math"
)

// Embedder produces one vector per input text, order-preserving, with fixed
// dimensionality per model.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float64, error)
	Model() string
}

// Cosine returns the cosine similarity of a and b. When either vector has
// zero norm the result is 0; that is a degenerate-case policy, not an error.
func Cosine(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		dot += a[i] * b[i]
	}
	for _, v := range a {
		na += v * v
	}
	for _, v := range b {
		nb += v * v
	}
	if na == 0 || nb == 0 {
		return 0.0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
