package embedding

import (
	"context"
	"hash/fnv"
	"math"
)

// DeterministicEmbedder derives a unit vector from a hash of the text. It
// needs no network and the same text always embeds to the same vector, which
// makes it the test double and the offline default. It carries no semantic
// signal: unrelated texts are roughly orthogonal, identical texts identical.
type DeterministicEmbedder struct {
	dims int
}

// NewDeterministicEmbedder returns a hash-based embedder. A non-positive
// dims selects 384, matching the all-minilm family.
func NewDeterministicEmbedder(dims int) *DeterministicEmbedder {
	if dims <= 0 {
		dims = 384
	}
	return &DeterministicEmbedder{dims: dims}
}

func (d *DeterministicEmbedder) Embed(ctx context.Context, text string) (Vector, error) {
	if err := ctx.Err(); err != nil {
		return nil, wrapErr("deterministic", err)
	}

	h := fnv.New64a()
	h.Write([]byte(text))
	seed := h.Sum64()

	v := make(Vector, d.dims)
	var norm float64
	for i := range v {
		seed = seed*6364136223846793005 + 1442695040888963407
		f := float32(int64(seed)) / float32(math.MaxInt64)
		v[i] = f
		norm += float64(f) * float64(f)
	}
	if norm > 0 {
		inv := float32(1 / math.Sqrt(norm))
		for i := range v {
			v[i] *= inv
		}
	}
	return v, nil
}

func (d *DeterministicEmbedder) Dims() int { return d.dims }

func (d *DeterministicEmbedder) Model() string { return "deterministic" }

func (d *DeterministicEmbedder) MaxInputLen() int { return 0 }
