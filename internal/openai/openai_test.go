package openai

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// stubTransport serves every request from the handler without a network hop.
type stubTransport struct {
	h http.Handler
}

func (t *stubTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	rec := httptest.NewRecorder()
	t.h.ServeHTTP(rec, req)
	return rec.Result(), nil
}

func stubClient(h http.HandlerFunc) *http.Client {
	return &http.Client{Transport: &stubTransport{h}}
}

func TestEmbeddings(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "test-key")

	var gotBody map[string]any
	client := stubClient(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/embeddings") {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("Bad request body: %s", err)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"data": []map[string]any{
				{"object": "embedding", "index": 0, "embedding": []float64{0.25, -0.5, 1}},
			},
			"model": "text-embedding-3-small",
			"usage": map[string]any{"prompt_tokens": 4, "total_tokens": 4},
		})
	})

	o := Init(0, client)
	vec, err := o.Embeddings(t.Context(), "a description")
	if err != nil {
		t.Fatal(err)
	}

	if expected, actual := "text-embedding-3-small", gotBody["model"]; expected != actual {
		t.Errorf("Expected model %v, got %v", expected, actual)
	}
	if expected, actual := float64(modelDimensions[model]), gotBody["dimensions"]; expected != actual {
		t.Errorf("Expected dimensions %v, got %v", expected, actual)
	}
	if inputs, _ := gotBody["input"].([]any); len(inputs) != 1 || inputs[0] != "a description" {
		t.Errorf("Unexpected input %v", gotBody["input"])
	}

	if expected, actual := 3, len(vec); expected != actual {
		t.Fatalf("Expected %d dims, got %d", expected, actual)
	}
	if vec[0] != 0.25 || vec[1] != -0.5 || vec[2] != 1 {
		t.Errorf("Vector does not round-trip: %v", vec)
	}
}

func TestEmbeddingsBadObject(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "test-key")

	client := stubClient(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"data": []map[string]any{
				{"object": "not-an-embedding", "index": 0, "embedding": []float64{1}},
			},
			"model": "text-embedding-3-small",
			"usage": map[string]any{"prompt_tokens": 1, "total_tokens": 1},
		})
	})

	o := Init(0, client)
	if _, err := o.Embeddings(t.Context(), "text"); err == nil {
		t.Error("Expected an error for an unexpected object type")
	}
}
