// Package embedding holds helpers shared by the embedder implementations in
// its subpackages.
package embedding

import (
	"context"
	"math"

	"groundedrag/internal/domain"
)

// Func adapts an Embedder to the plain function shape used by index builds.
type Func func(ctx context.Context, text string) ([]float64, error)

// FuncOf returns e.Embed as a Func.
func FuncOf(e domain.Embedder) Func {
	return e.Embed
}

// Normalize scales v to unit length in place. Zero vectors are left untouched.
func Normalize(v []float64) []float64 {
	norm := 0.0
	for _, x := range v {
		norm += x * x
	}
	if norm == 0 {
		return v
	}
	inv := 1 / math.Sqrt(norm)
	for i := range v {
		v[i] *= inv
	}
	return v
}

// FromFloat32 widens a float32 vector returned by a provider.
func FromFloat32(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}
