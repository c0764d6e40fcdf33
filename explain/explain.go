// Package explain sequences the cluster description pipeline: prompt
// construction, multimodal generation per cluster and redundancy scoring of
// the resulting description set.
package explain

import (
	"context"
	"errors"
	"fmt"

	"github.com/atelier-tools/goya/describer"
	"github.com/atelier-tools/goya/interp"
	"github.com/atelier-tools/goya/prompt"
	"go.uber.org/zap"
)

// ErrInputMismatch is returned when the image path and interpretation counts
// differ. No model is invoked in that case.
var ErrInputMismatch = errors.New("image path and interpretation counts differ")

// RunResult is the output of one pipeline run. Descriptions and Similarity
// are the persisted artifact; both are index-aligned with the run's inputs.
// Embeddings holds the unit-length description embeddings so callers can
// store them without re-invoking the encoder.
type RunResult struct {
	Descriptions []string  `json:"descriptions"`
	Similarity   []float64 `json:"similarity"`

	Embeddings [][]float32 `json:"-"`
}

// Explainer runs the description pipeline. The generation model and the text
// encoder are constructed once by the caller and held for the run's duration;
// all model calls are sequential, the models are not replicated.
type Explainer struct {
	gen     describer.Describer
	emb     describer.Embedder
	prompts *prompt.Builder
	logger  *zap.Logger

	progress func(done, total int)
}

// Option configures an Explainer.
type Option func(*Explainer)

// WithLogger sets the logger, default is a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Explainer) { e.logger = l }
}

// WithProgress sets a callback invoked after each cluster is described.
func WithProgress(fn func(done, total int)) Option {
	return func(e *Explainer) { e.progress = fn }
}

// New returns an Explainer using the given generation backend, embedding
// backend and prompt builder.
func New(gen describer.Describer, emb describer.Embedder, prompts *prompt.Builder, opts ...Option) *Explainer {
	e := &Explainer{
		gen:     gen,
		emb:     emb,
		prompts: prompts,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Describe generates a description for one cluster from its sample image and
// prompt. The image is loaded, flattened to 3-channel color and sent to the
// generation backend together with the prompt in a single stateless turn.
func (e *Explainer) Describe(ctx context.Context, imagePath, promptText string) (string, error) {
	imgdata, err := loadSampleImage(imagePath)
	if err != nil {
		return "", err
	}

	return e.gen.DescribeImage(ctx, imgdata, promptText)
}

// Score embeds every description and returns one redundancy score per
// description, same length and order as the input: the mean cosine similarity
// of each description's embedding to every other description's embedding,
// self-similarity excluded. A single description scores 0.
func (e *Explainer) Score(ctx context.Context, descriptions []string) ([]float64, error) {
	scores, _, err := e.score(ctx, descriptions)
	return scores, err
}

func (e *Explainer) score(ctx context.Context, descriptions []string) ([]float64, [][]float32, error) {
	if len(descriptions) == 0 {
		return nil, nil, nil
	}

	vecs := make([][]float32, len(descriptions))
	for i, desc := range descriptions {
		vec, err := e.emb.Embeddings(ctx, desc)
		if err != nil {
			return nil, nil, fmt.Errorf("embed description %d: %w", i, err)
		}
		normalize(vec)
		vecs[i] = vec
	}

	scores, err := redundancyScores(vecs)
	if err != nil {
		return nil, nil, err
	}
	return scores, vecs, nil
}

// Run executes the full pipeline over all clusters in input order: build the
// prompt for cluster i, describe its sample image, and once every description
// exists score the full set. Input order defines cluster identity; the
// returned slices are index-aligned with imagePaths. Any failure aborts the
// run, there is no retry and no partial result.
func (e *Explainer) Run(ctx context.Context, imagePaths []string, interps []interp.Interpretation, comprehensive bool) (*RunResult, error) {
	if len(imagePaths) != len(interps) {
		return nil, fmt.Errorf("%w: %d image paths, %d interpretations",
			ErrInputMismatch, len(imagePaths), len(interps))
	}

	descriptions := make([]string, 0, len(imagePaths))
	for i, path := range imagePaths {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		promptText := e.prompts.Build(interps[i], comprehensive)
		e.logger.Debug("describing cluster",
			zap.Int("cluster", i),
			zap.String("image", path))

		desc, err := e.Describe(ctx, path, promptText)
		if err != nil {
			return nil, fmt.Errorf("describe cluster %d: %w", i, err)
		}
		descriptions = append(descriptions, desc)

		if e.progress != nil {
			e.progress(i+1, len(imagePaths))
		}
	}

	scores, vecs, err := e.score(ctx, descriptions)
	if err != nil {
		return nil, fmt.Errorf("score descriptions: %w", err)
	}
	if scores == nil {
		scores = make([]float64, 0)
	}

	return &RunResult{
		Descriptions: descriptions,
		Similarity:   scores,
		Embeddings:   vecs,
	}, nil
}
