package index

import (
	"sync"

	"github.com/recallmem/recall/internal/model"
	"github.com/recallmem/recall/internal/vector"
)

// Flat is the exact-scan index: every search computes the distance to each
// eligible entry. O(n·d) per query and exact, which is the right trade below
// a few thousand records.
type Flat struct {
	mu      sync.RWMutex
	dims    int
	entries map[string]Entry
}

// NewFlat returns an empty exact-scan index for vectors of dimension dims.
func NewFlat(dims int) *Flat {
	return &Flat{dims: dims, entries: make(map[string]Entry)}
}

func (f *Flat) Add(e Entry) error {
	if err := vector.CheckDims(f.dims, e.Vector); err != nil {
		return err
	}
	f.mu.Lock()
	f.entries[e.ID] = e
	f.mu.Unlock()
	return nil
}

func (f *Flat) Remove(id string) {
	f.mu.Lock()
	delete(f.entries, id)
	f.mu.Unlock()
}

func (f *Flat) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.entries)
}

// Entries snapshots the indexed entries. Used when promoting to a graph
// index.
func (f *Flat) Entries() []Entry {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]Entry, 0, len(f.entries))
	for _, e := range f.entries {
		out = append(out, e)
	}
	return out
}

func (f *Flat) Search(q []float32, k int, metric model.Metric, allow Allowed) ([]Candidate, error) {
	if err := vector.CheckDims(f.dims, q); err != nil {
		return nil, err
	}
	if k <= 0 {
		return nil, nil
	}

	f.mu.RLock()
	scored := make([]scoredEntry, 0, len(f.entries))
	for id, e := range f.entries {
		if allow != nil {
			if _, ok := allow[id]; !ok {
				continue
			}
		}
		d, err := vector.Distance(metric, q, e.Vector)
		if err != nil {
			f.mu.RUnlock()
			return nil, err
		}
		scored = append(scored, scoredEntry{entry: e, dist: d})
	}
	f.mu.RUnlock()

	return top(scored, k), nil
}
