// Package goya describes visual clusters of artworks with a multimodal LLM
// and scores how redundant the descriptions are against each other.
package goya

import (
	"fmt"
	"net/http"

	"github.com/atelier-tools/goya/describer"
	"github.com/atelier-tools/goya/internal/llama"
	"github.com/atelier-tools/goya/internal/ollama"
	"github.com/atelier-tools/goya/internal/openai"
)

const (
	defaultOllamaModel      = "llava"
	defaultOllamaEmbedModel = "nomic-embed-text"
)

type InitOptions struct {
	LlamaServer string
	LlamaSeed   int

	OllamaServer     string
	OllamaModel      string // defaults to "llava"
	OllamaEmbedModel string // defaults to "nomic-embed-text"

	OpenAI          bool // use OpenAI for embeddings
	OpenAIRateLimit int  // requests per minute, <= 0 selects the default

	HttpClient *http.Client // if nil uses http.DefaultClient
}

// Goya owns the two model resources of a run: the multimodal generation
// backend and the text embedding backend. Both are constructed once and held
// for the run's duration. An ollama backend can serve both roles.
type Goya struct {
	Generator describer.Describer
	Embedder  describer.Embedder
}

func Init(gio InitOptions) (*Goya, error) {
	g := &Goya{}

	httpClient := gio.HttpClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	var n int
	if gio.LlamaServer != "" {
		n++
	}
	if gio.OllamaServer != "" {
		n++
	}
	switch n {
	case 0:
		// Embedding-only (e.g. query mode against OpenAI) is allowed
		if !gio.OpenAI {
			return nil, fmt.Errorf("no backend selected")
		}
	case 1:
		// no-op
	default:
		return nil, fmt.Errorf("multiple generation backends selected, only one allowed")
	}

	if gio.LlamaServer != "" {
		g.Generator = llama.Init(gio.LlamaServer, gio.LlamaSeed, httpClient)
	} else if gio.OllamaServer != "" {
		model := gio.OllamaModel
		if model == "" {
			model = defaultOllamaModel
		}
		embedModel := gio.OllamaEmbedModel
		if embedModel == "" {
			embedModel = defaultOllamaEmbedModel
		}
		o := ollama.Init(model, embedModel, gio.OllamaServer, gio.LlamaSeed, httpClient)
		g.Generator = o
		g.Embedder = o.Embedder()
	}

	if gio.OpenAI {
		g.Embedder = openai.Init(gio.OpenAIRateLimit, httpClient)
	}
	if g.Embedder == nil {
		return nil, fmt.Errorf("no embedding backend available, use -openai or an ollama server")
	}

	return g, nil
}
