// Package openai implements the embedding backend against the OpenAI API.
package openai

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/atelier-tools/goya/describer"

	oagc "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const (
	model = "text-embedding-3-small"

	defaultRequestsPerMinute = 20
)

type openai struct {
	oac   *oagc.Client
	model string
	rl    *limiter
}

var (
	_ describer.Embedder = &openai{}

	// Embedding models and the vector size requested from each
	modelDimensions = map[string]int{
		"text-embedding-3-small": 512,
	}
)

// Init returns an embedding backend against the hosted OpenAI API, limited
// to requestsPerMinute API calls (<= 0 selects the default of 20).
func Init(requestsPerMinute int, httpClient *http.Client) *openai {
	if _, ok := modelDimensions[model]; !ok {
		panic("Unrecognized model")
	}
	if requestsPerMinute <= 0 {
		requestsPerMinute = defaultRequestsPerMinute
	}

	return &openai{
		oac: oagc.NewClient(
			option.WithHTTPClient(httpClient),
		),
		model: model,
		rl:    newLimiter(requestsPerMinute, time.Minute),
	}
}

func (o *openai) Name() string { return "openai" }

func (o *openai) Model() string { return model }

func (o *openai) IsHealthy() bool {
	// The hosted API has no health endpoint worth probing
	return true
}

func (o *openai) Embeddings(ctx context.Context, description string) ([]float32, error) {
	// Rate limit use of the OpenAI API
	if err := o.rl.Wait(ctx); err != nil {
		return nil, err
	}

	enp := oagc.EmbeddingNewParams{
		Input:      oagc.F(oagc.EmbeddingNewParamsInputUnion(oagc.EmbeddingNewParamsInputArrayOfStrings{description})),
		Model:      oagc.F(oagc.EmbeddingModel(o.model)),
		Dimensions: oagc.Int(int64(modelDimensions[o.model])),
	}
	resp, err := o.oac.Embeddings.New(ctx, enp)
	if err != nil {
		return nil, err
	}
	if resp.Data[0].Object != oagc.EmbeddingObjectEmbedding {
		return nil, fmt.Errorf("unexpected object type %q", resp.Data[0].Object)
	}

	// Convert the float64 embedding vector to float32
	embs := make([]float32, len(resp.Data[0].Embedding))
	for i, em := range resp.Data[0].Embedding {
		embs[i] = float32(em)
	}

	return embs, nil
}
