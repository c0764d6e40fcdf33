// Package ollama implements generation and embeddings against a running
// ollama server.
package ollama

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/atelier-tools/goya/describer"
)

const (
	// Generation budget for one cluster description.
	maxNewTokens = 100

	// Instruction-closing token of the llava chat template, see
	// describer.CleanResponse.
	closeMarker = "ASSISTANT:"
)

type ollama struct {
	model      string
	embedModel string
	srvAddr    string
	seed       int

	client *http.Client
}

// embedder is the client in its embedding role. It shares the server
// connection with the generation role but reports the embedding model
// from Model.
type embedder struct {
	*ollama
}

var (
	_ describer.Describer = &ollama{}
	_ describer.Embedder  = embedder{}
)

func Init(model, embedModel, srvAddr string, seed int, httpClient *http.Client) *ollama {
	return &ollama{
		model:      model,
		embedModel: embedModel,
		srvAddr:    srvAddr,
		seed:       seed,
		client:     httpClient,
	}
}

func (o *ollama) Name() string { return "ollama" }

func (o *ollama) Model() string { return o.model }

// Embedder returns the client in its embedding role.
func (o *ollama) Embedder() describer.Embedder { return embedder{o} }

func (e embedder) Model() string { return e.embedModel }

func (o *ollama) IsHealthy() bool {
	resp, err := http.Get(o.srvAddr)
	if err != nil {
		return false
	}

	return resp.StatusCode == http.StatusOK
}

// DescribeImage sends one self-contained generation request holding the
// prompt text and the image. The server applies the model's chat template
// and returns the completion when generation finishes, there is no
// streaming.
func (o *ollama) DescribeImage(ctx context.Context, image []byte, prompt string) (string, error) {
	body := struct {
		Model  string         `json:"model"`
		Prompt string         `json:"prompt"`
		Images []string       `json:"images"`
		Stream bool           `json:"stream"`
		Opts   map[string]any `json:"options"`
	}{
		Model:  o.model,
		Prompt: prompt,
		Images: []string{base64.StdEncoding.EncodeToString(image)},
		Stream: false,
		Opts: map[string]any{
			"num_predict": maxNewTokens,
			"seed":        o.seed,
		},
	}

	respbody := struct {
		Response string `json:"response"`
	}{}
	if err := o.post(ctx, "/api/generate", body, &respbody); err != nil {
		return "", err
	}

	return describer.CleanResponse(respbody.Response, closeMarker), nil
}

func (e embedder) Embeddings(ctx context.Context, text string) ([]float32, error) {
	body := struct {
		Model  string `json:"model"`
		Prompt string `json:"prompt"`
	}{
		Model:  e.embedModel,
		Prompt: text,
	}

	respbody := struct {
		Embedding []float64 `json:"embedding"`
	}{}
	if err := e.post(ctx, "/api/embeddings", body, &respbody); err != nil {
		return nil, err
	}
	if len(respbody.Embedding) == 0 {
		return nil, fmt.Errorf("empty embedding from model %q", e.embedModel)
	}

	embs := make([]float32, len(respbody.Embedding))
	for i, em := range respbody.Embedding {
		embs[i] = float32(em)
	}

	return embs, nil
}

func (o *ollama) post(ctx context.Context, path string, body, out any) error {
	buf := &bytes.Buffer{}
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(body); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.srvAddr+path, buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ollama server returned %s", resp.Status)
	}

	return json.NewDecoder(resp.Body).Decode(out)
}
