package explain

import (
	"fmt"
	"math"
)

// dotp computes the dot-product between two vectors. It assumes that a and b
// are equal length.
func dotp(a, b []float32) float64 {
	var sum float64
	for i := range len(a) {
		sum += float64(a[i]) * float64(b[i])
	}

	return sum
}

// normalize scales v to unit length in place. Vectors with a vanishing norm
// are left untouched.
func normalize(v []float32) {
	norm := math.Sqrt(dotp(v, v))
	if norm < 1e-12 {
		return
	}
	inv := 1 / norm
	for i := range v {
		v[i] = float32(float64(v[i]) * inv)
	}
}

// redundancyScores computes, for each unit vector, the mean cosine similarity
// to every other vector: the full NxN similarity matrix with the diagonal
// zeroed, row-summed and divided by N-1. A single vector scores 0, there is
// no other description to compare against.
func redundancyScores(vecs [][]float32) ([]float64, error) {
	n := len(vecs)
	if n == 0 {
		return nil, nil
	}

	scores := make([]float64, n)
	if n == 1 {
		return scores, nil
	}

	for i := range vecs {
		if len(vecs[i]) != len(vecs[0]) {
			return nil, fmt.Errorf("embedding %d has length %d, want %d", i, len(vecs[i]), len(vecs[0]))
		}
	}

	for i := range n {
		var sum float64
		for j := range n {
			if i == j {
				continue
			}
			sum += dotp(vecs[i], vecs[j])
		}
		scores[i] = sum / float64(n-1)
	}

	return scores, nil
}
