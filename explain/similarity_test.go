package explain

import (
	"math"
	"testing"
)

func TestNormalize(t *testing.T) {
	v := []float32{3, 4}
	normalize(v)
	if norm := math.Sqrt(dotp(v, v)); math.Abs(norm-1) > 1e-6 {
		t.Errorf("Expected unit norm, got %f", norm)
	}

	// A vanishing vector is left untouched
	z := []float32{0, 0}
	normalize(z)
	if z[0] != 0 || z[1] != 0 {
		t.Errorf("Expected zero vector to be unchanged, got %v", z)
	}
}

func TestRedundancyScores(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		scores, err := redundancyScores(nil)
		if err != nil {
			t.Fatal(err)
		}
		if scores != nil {
			t.Errorf("Expected nil scores, got %v", scores)
		}
	})

	t.Run("single vector scores zero", func(t *testing.T) {
		scores, err := redundancyScores([][]float32{{1, 0}})
		if err != nil {
			t.Fatal(err)
		}
		if expected, actual := 1, len(scores); expected != actual {
			t.Fatalf("Expected %d scores, got %d", expected, actual)
		}
		if scores[0] != 0 {
			t.Errorf("Expected score 0 for a lone vector, got %f", scores[0])
		}
	})

	t.Run("diagonal excluded", func(t *testing.T) {
		// a and c are identical, b is orthogonal to both:
		// score(a) = (0+1)/2, score(b) = 0, score(c) = (1+0)/2
		vecs := [][]float32{{1, 0}, {0, 1}, {1, 0}}
		scores, err := redundancyScores(vecs)
		if err != nil {
			t.Fatal(err)
		}

		expected := []float64{0.5, 0, 0.5}
		for i := range expected {
			if math.Abs(scores[i]-expected[i]) > 1e-6 {
				t.Errorf("Score %d: expected %f, got %f", i, expected[i], scores[i])
			}
		}
	})

	t.Run("identical vectors all score 1", func(t *testing.T) {
		v := []float32{0.6, 0.8}
		scores, err := redundancyScores([][]float32{v, v, v, v})
		if err != nil {
			t.Fatal(err)
		}
		for i, s := range scores {
			if math.Abs(s-1) > 1e-6 {
				t.Errorf("Score %d: expected 1.0, got %f", i, s)
			}
		}
	})

	t.Run("length mismatch", func(t *testing.T) {
		if _, err := redundancyScores([][]float32{{1, 0}, {1, 0, 0}}); err == nil {
			t.Error("Expected an error for mismatched vector lengths")
		}
	})
}
