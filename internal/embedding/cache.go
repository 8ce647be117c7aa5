package embedding

import (
	"context"
	"fmt"

	"github.com/dgraph-io/ristretto"
)

// CachingEmbedder memoizes embeddings by (model, text). Providers are
// deterministic for a fixed model version, so the text itself is the key and
// a hit can never serve a vector computed from different text. Hits return a
// copy, keeping the cached vector immutable.
type CachingEmbedder struct {
	inner Embedder
	cache *ristretto.Cache
}

// NewCachingEmbedder wraps inner with a cache bounded to roughly maxBytes.
func NewCachingEmbedder(inner Embedder, maxBytes int64) (*CachingEmbedder, error) {
	if maxBytes <= 0 {
		maxBytes = 64 << 20
	}
	// One entry costs ~4*dims bytes; counters sized for ~10x the entries
	// that fit.
	perEntry := int64(4*inner.Dims() + 64)
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 10 * (maxBytes / perEntry),
		MaxCost:     maxBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("embedding cache: %w", err)
	}
	return &CachingEmbedder{inner: inner, cache: cache}, nil
}

func (c *CachingEmbedder) Embed(ctx context.Context, text string) (Vector, error) {
	key := c.inner.Model() + "\x00" + text
	if hit, ok := c.cache.Get(key); ok {
		cached := hit.(Vector)
		out := make(Vector, len(cached))
		copy(out, cached)
		return out, nil
	}

	v, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	stored := make(Vector, len(v))
	copy(stored, v)
	c.cache.Set(key, stored, int64(4*len(stored)+len(key)))
	return v, nil
}

func (c *CachingEmbedder) Dims() int { return c.inner.Dims() }

func (c *CachingEmbedder) Model() string { return c.inner.Model() }

func (c *CachingEmbedder) MaxInputLen() int { return c.inner.MaxInputLen() }
