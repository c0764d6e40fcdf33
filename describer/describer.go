package describer

import (
	"context"
	"strings"
)

// Describer generates a text description of an image using a multimodal LLM.
type Describer interface {
	// Name returns the name of the backing LLM server, e.g. "llama" or
	// "ollama"
	Name() string

	// Model returns the name of the generation model, e.g. "llava"
	Model() string

	// DescribeImage returns a description of the provided image, guided by
	// the given prompt text. The image data should be the full contents of a
	// JPEG file including the header. The provided ctx is used as a parent
	// context for the request to the LLM server. Each call is independent,
	// no conversation state is carried between calls.
	DescribeImage(ctx context.Context, image []byte, prompt string) (string, error)

	// IsHealthy returns whether the LLM server is healthy.
	IsHealthy() bool
}

// Embedder converts text into a fixed-length embedding vector.
type Embedder interface {
	// Name returns the name of the backing service, e.g. "openai" or
	// "ollama"
	Name() string

	// Model returns the name of the embedding model.
	Model() string

	// Embeddings returns the embedding vector for the given text.
	Embeddings(ctx context.Context, text string) ([]float32, error)

	// IsHealthy returns whether the embedding server is healthy.
	IsHealthy() bool
}

// CleanResponse strips everything up to and including the last occurrence of
// marker from raw and trims surrounding whitespace. Chat-templated models can
// echo the instruction text ahead of the answer; the marker is the template's
// instruction-closing token (e.g. "ASSISTANT:"). If the marker is absent, or
// empty, the whole trimmed text is returned rather than failing.
func CleanResponse(raw, marker string) string {
	if marker != "" {
		if idx := strings.LastIndex(raw, marker); idx >= 0 {
			raw = raw[idx+len(marker):]
		}
	}
	return strings.TrimSpace(raw)
}
