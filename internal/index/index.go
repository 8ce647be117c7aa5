// Package index provides the similarity index: given stored embeddings,
// return the k closest to a query vector under a metric, optionally
// restricted to an allowed candidate set before ranking.
package index

import (
	"sort"
	"time"

	"github.com/recallmem/recall/internal/model"
)

// Entry is one indexed vector. CreatedAt participates in ordering: equal
// distances rank newer entries first, then higher ids, so the same index
// state always returns the same ordering.
type Entry struct {
	ID        string
	Vector    []float32
	CreatedAt time.Time
}

// Candidate is an id with its distance to the query, ordered closest first.
type Candidate struct {
	ID       string
	Distance float64
}

// Allowed restricts a search to the candidate set resolved from predicates.
// A nil set admits every entry.
type Allowed map[string]struct{}

// Index ranks stored vectors by distance to a query vector. Implementations
// apply the Allowed set before ranking, never by trimming an unfiltered
// top-k, so results are the true k best among eligible entries.
type Index interface {
	Add(e Entry) error
	Remove(id string)
	Len() int
	Search(q []float32, k int, metric model.Metric, allow Allowed) ([]Candidate, error)
}

var (
	_ Index = (*Flat)(nil)
	_ Index = (*HNSW)(nil)
	_ Index = (*Auto)(nil)
)

type scoredEntry struct {
	entry Entry
	dist  float64
}

// top orders scored entries closest first, breaking exact distance ties by
// newest CreatedAt then highest id, and returns at most k candidates.
func top(scored []scoredEntry, k int) []Candidate {
	sort.Slice(scored, func(i, j int) bool {
		a, b := scored[i], scored[j]
		if a.dist != b.dist {
			return a.dist < b.dist
		}
		if !a.entry.CreatedAt.Equal(b.entry.CreatedAt) {
			return a.entry.CreatedAt.After(b.entry.CreatedAt)
		}
		return a.entry.ID > b.entry.ID
	})
	if len(scored) > k {
		scored = scored[:k]
	}
	out := make([]Candidate, len(scored))
	for i, s := range scored {
		out[i] = Candidate{ID: s.entry.ID, Distance: s.dist}
	}
	return out
}
