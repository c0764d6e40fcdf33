package explain

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"testing"

	"github.com/atelier-tools/goya/interp"
	"github.com/atelier-tools/goya/prompt"
)

// stubDescriber returns a description derived from the prompt and records
// every prompt it saw.
type stubDescriber struct {
	prompts []string
	err     error
}

func (s *stubDescriber) Name() string  { return "stub" }
func (s *stubDescriber) Model() string { return "stub-model" }
func (s *stubDescriber) IsHealthy() bool {
	return true
}

func (s *stubDescriber) DescribeImage(ctx context.Context, image []byte, promptText string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.prompts = append(s.prompts, promptText)
	return fmt.Sprintf("description %d", len(s.prompts)), nil
}

// stubEmbedder produces a deterministic embedding from the text hash, so the
// same text always gets the same vector.
type stubEmbedder struct {
	dims int
	err  error
}

func (s *stubEmbedder) Name() string    { return "stub" }
func (s *stubEmbedder) Model() string   { return "stub-embed" }
func (s *stubEmbedder) IsHealthy() bool { return true }

func (s *stubEmbedder) Embeddings(ctx context.Context, text string) ([]float32, error) {
	if s.err != nil {
		return nil, s.err
	}
	h := fnv.New32a()
	h.Write([]byte(text))
	seed := h.Sum32()

	emb := make([]float32, s.dims)
	for i := range emb {
		emb[i] = float32(math.Sin(float64(seed)*float64(i+1))*0.1 + 0.01)
	}
	return emb, nil
}

func testInterps(n int) []interp.Interpretation {
	interps := make([]interp.Interpretation, n)
	for i := range interps {
		interps[i] = interp.Interpretation{
			{Terms: []interp.Term{{Label: "portrait", Weight: 0.8}, {Label: "landscape", Weight: 0.3}}},
			{Terms: []interp.Term{{Label: "war", Weight: 0.6}, {Label: "myth", Weight: 0.5}}},
			{Terms: []interp.Term{{Label: "gold", Weight: 0.9}, {Label: "ochre", Weight: 0.2}}},
			{Terms: []interp.Term{{Label: "oil", Weight: 0.7}, {Label: "canvas", Weight: 0.2}}},
			{Terms: []interp.Term{{Label: "baroque", Weight: 0.4}, {Label: "rococo", Weight: 0.3}}},
		}
	}
	return interps
}

func TestRunInputMismatch(t *testing.T) {
	gen := &stubDescriber{}
	e := New(gen, &stubEmbedder{dims: 16}, prompt.NewBuilder(nil))

	paths := []string{"a.png", "b.png", "c.png"}
	_, err := e.Run(t.Context(), paths, testInterps(4), false)
	if !errors.Is(err, ErrInputMismatch) {
		t.Fatalf("Expected ErrInputMismatch, got %v", err)
	}
	if len(gen.prompts) != 0 {
		t.Error("No model should be invoked on mismatched inputs")
	}
}

func TestRunImageLoadError(t *testing.T) {
	e := New(&stubDescriber{}, &stubEmbedder{dims: 16}, prompt.NewBuilder(nil))

	_, err := e.Run(t.Context(), []string{"/does/not/exist.png"}, testInterps(1), false)
	var ile *ImageLoadError
	if !errors.As(err, &ile) {
		t.Fatalf("Expected an ImageLoadError, got %v", err)
	}
	if !strings.Contains(err.Error(), "cluster 0") {
		t.Errorf("Expected the failing cluster index in the error, got %q", err)
	}
}

func TestRunGenerationFailure(t *testing.T) {
	paths := []string{writeTestPNG(t, "cluster0.png")}
	e := New(&stubDescriber{err: errors.New("boom")}, &stubEmbedder{dims: 16}, prompt.NewBuilder(nil))

	if _, err := e.Run(t.Context(), paths, testInterps(1), false); err == nil {
		t.Fatal("Expected the generation error to abort the run")
	}
}

func TestRunEndToEnd(t *testing.T) {
	paths := []string{
		writeTestPNG(t, "cluster0.png"),
		writeTestPNG(t, "cluster1.png"),
	}
	gen := &stubDescriber{}
	var progressCalls int
	e := New(gen, &stubEmbedder{dims: 16}, prompt.NewBuilder(nil),
		WithProgress(func(done, total int) { progressCalls++ }))

	result, err := e.Run(t.Context(), paths, testInterps(2), true)
	if err != nil {
		t.Fatal(err)
	}

	if expected, actual := 2, len(result.Descriptions); expected != actual {
		t.Fatalf("Expected %d descriptions, got %d", expected, actual)
	}
	if expected, actual := 2, len(result.Similarity); expected != actual {
		t.Fatalf("Expected %d similarity scores, got %d", expected, actual)
	}
	for i, desc := range result.Descriptions {
		if desc == "" {
			t.Errorf("Description %d is empty", i)
		}
	}

	// Descriptions follow input order
	if result.Descriptions[0] != "description 1" || result.Descriptions[1] != "description 2" {
		t.Errorf("Descriptions out of order: %v", result.Descriptions)
	}

	// With N=2 each score is the single pairwise similarity
	if math.Abs(result.Similarity[0]-result.Similarity[1]) > 1e-9 {
		t.Errorf("Expected equal scores for N=2, got %v", result.Similarity)
	}

	// Comprehensive mode injects the interpretation terms
	for _, p := range gen.prompts {
		if !strings.Contains(p, "GENRE: portrait, landscape;") {
			t.Errorf("Expected interpretation terms in the prompt:\n%s", p)
		}
	}

	if expected, actual := 2, progressCalls; expected != actual {
		t.Errorf("Expected %d progress callbacks, got %d", expected, actual)
	}
}

func TestScore(t *testing.T) {
	e := New(&stubDescriber{}, &stubEmbedder{dims: 16}, prompt.NewBuilder(nil))

	t.Run("identical descriptions score 1", func(t *testing.T) {
		scores, err := e.Score(t.Context(), []string{"same", "same", "same"})
		if err != nil {
			t.Fatal(err)
		}
		for i, s := range scores {
			if math.Abs(s-1) > 1e-6 {
				t.Errorf("Score %d: expected 1.0, got %f", i, s)
			}
		}
	})

	t.Run("single description scores 0", func(t *testing.T) {
		scores, err := e.Score(t.Context(), []string{"only one"})
		if err != nil {
			t.Fatal(err)
		}
		if expected, actual := 1, len(scores); expected != actual {
			t.Fatalf("Expected %d scores, got %d", expected, actual)
		}
		if scores[0] != 0 {
			t.Errorf("Expected 0 for a lone description, got %f", scores[0])
		}
	})

	t.Run("embedding failure aborts", func(t *testing.T) {
		bad := New(&stubDescriber{}, &stubEmbedder{dims: 16, err: errors.New("encoder down")}, prompt.NewBuilder(nil))
		if _, err := bad.Score(t.Context(), []string{"a", "b"}); err == nil {
			t.Error("Expected the embedding error to surface")
		}
	})
}

func TestRunCancelled(t *testing.T) {
	paths := []string{writeTestPNG(t, "cluster0.png")}
	e := New(&stubDescriber{}, &stubEmbedder{dims: 16}, prompt.NewBuilder(nil))

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	if _, err := e.Run(ctx, paths, testInterps(1), false); !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}
}
