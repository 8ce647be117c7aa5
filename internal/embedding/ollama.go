package embedding

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/ollama/ollama/api"

	"github.com/recallmem/recall/internal/model"
	"github.com/recallmem/recall/internal/vector"
)

// OllamaEmbedder uses a local Ollama instance for embeddings.
type OllamaEmbedder struct {
	api   *api.Client
	model string
	dims  int
}

// NewOllamaEmbedder creates an embedder backed by Ollama. An empty baseURL
// resolves from the environment (OLLAMA_HOST, default localhost:11434).
// Known models: nomic-embed-text (768 dims), all-minilm (384 dims).
func NewOllamaEmbedder(baseURL, mdl string) (*OllamaEmbedder, error) {
	if mdl == "" {
		mdl = "nomic-embed-text"
	}
	dims := 768
	if mdl == "all-minilm" {
		dims = 384
	}

	var (
		client *api.Client
		err    error
	)
	if baseURL == "" {
		client, err = api.ClientFromEnvironment()
		if err != nil {
			return nil, fmt.Errorf("ollama client: %w", err)
		}
	} else {
		u, err := url.Parse(baseURL)
		if err != nil {
			return nil, fmt.Errorf("ollama base url: %w", err)
		}
		client = api.NewClient(u, http.DefaultClient)
	}

	return &OllamaEmbedder{api: client, model: mdl, dims: dims}, nil
}

func (e *OllamaEmbedder) Embed(ctx context.Context, text string) (Vector, error) {
	resp, err := e.api.Embed(ctx, &api.EmbedRequest{
		Model: e.model,
		Input: text,
	})
	if err != nil {
		return nil, wrapErr("ollama", err)
	}
	if len(resp.Embeddings) == 0 {
		return nil, &model.EmbeddingError{Provider: "ollama", Err: fmt.Errorf("no embedding returned")}
	}
	v := resp.Embeddings[0]
	if err := vector.CheckDims(e.dims, v); err != nil {
		return nil, err
	}
	return v, nil
}

func (e *OllamaEmbedder) Dims() int { return e.dims }

func (e *OllamaEmbedder) Model() string { return e.model }

// MaxInputLen is zero: Ollama trims or rejects per model, and the limits
// vary too much across models to hard-code one here.
func (e *OllamaEmbedder) MaxInputLen() int { return 0 }
