package embedding

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/recallmem/recall/internal/model"
	"github.com/recallmem/recall/internal/vector"
)

// openaiMaxInput is a conservative byte bound under the 8192-token window of
// the text-embedding-3 family.
const openaiMaxInput = 32768

// OpenAIEmbedder produces embeddings through the OpenAI API or any
// API-compatible endpoint.
type OpenAIEmbedder struct {
	api   openai.Client
	model string
	dims  int
}

// NewOpenAIEmbedder creates an embedder for an OpenAI-compatible API.
// Defaults: model text-embedding-3-small, 1536 dimensions.
func NewOpenAIEmbedder(baseURL, apiKey, mdl string, dims int) *OpenAIEmbedder {
	if mdl == "" {
		mdl = "text-embedding-3-small"
	}
	if dims == 0 {
		dims = 1536
	}
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &OpenAIEmbedder{
		api:   openai.NewClient(opts...),
		model: mdl,
		dims:  dims,
	}
}

func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) (Vector, error) {
	resp, err := e.api.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(e.model),
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: []string{text}},
	})
	if err != nil {
		return nil, wrapErr("openai", err)
	}
	if len(resp.Data) == 0 {
		return nil, &model.EmbeddingError{Provider: "openai", Err: fmt.Errorf("no embedding returned")}
	}
	v := toFloat32(resp.Data[0].Embedding)
	if err := vector.CheckDims(e.dims, v); err != nil {
		return nil, err
	}
	return v, nil
}

func (e *OpenAIEmbedder) Dims() int { return e.dims }

func (e *OpenAIEmbedder) Model() string { return e.model }

func (e *OpenAIEmbedder) MaxInputLen() int { return openaiMaxInput }
