// Package embedding provides a pluggable interface for text embedding
// providers plus a memoizing cache.
package embedding

import (
	"context"
	"errors"
	"fmt"

	"github.com/recallmem/recall/internal/model"
)

// Vector is a float32 embedding vector.
type Vector = []float32

// Embedder generates embedding vectors from text. For a fixed model version
// the output is deterministic and always Dims() long.
type Embedder interface {
	Embed(ctx context.Context, text string) (Vector, error)
	Dims() int
	// Model identifies the provider model. The store pins it at first write
	// so a later model swap fails closed instead of degrading ranking.
	Model() string
	// MaxInputLen is the longest accepted text in bytes. Zero means the
	// provider enforces its own limit.
	MaxInputLen() int
}

// Options selects and tunes a provider.
type Options struct {
	Provider  string // "openai", "ollama", "deterministic"
	Model     string
	Dims      int
	BaseURL   string
	APIKey    string
	CacheSize int64 // cache budget in bytes; 0 disables the cache
}

// New builds an embedder from options, wrapping it in a cache when a cache
// budget is given. The deterministic provider is the default: it needs no
// network and keeps the tool usable out of the box, but carries no semantic
// signal, so configure openai or ollama for real recall.
func New(opts Options) (Embedder, error) {
	var (
		e   Embedder
		err error
	)
	switch opts.Provider {
	case "openai":
		e = NewOpenAIEmbedder(opts.BaseURL, opts.APIKey, opts.Model, opts.Dims)
	case "ollama":
		e, err = NewOllamaEmbedder(opts.BaseURL, opts.Model)
		if err != nil {
			return nil, err
		}
	case "deterministic", "":
		e = NewDeterministicEmbedder(opts.Dims)
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", opts.Provider)
	}
	if opts.CacheSize > 0 {
		return NewCachingEmbedder(e, opts.CacheSize)
	}
	return e, nil
}

// wrapErr classifies a provider failure: deadline and cancellation surface
// as TimeoutError so callers can retry with a bigger budget, everything else
// as EmbeddingError.
func wrapErr(provider string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return &model.TimeoutError{Op: "embed", Err: err}
	}
	return &model.EmbeddingError{Provider: provider, Err: err}
}

func toFloat32(in []float64) Vector {
	out := make(Vector, len(in))
	for i, f := range in {
		out[i] = float32(f)
	}
	return out
}
