package index

import (
	"sync"

	"github.com/recallmem/recall/internal/model"
)

// DefaultThreshold is the entry count at which Auto promotes the exact scan
// to a graph index.
const DefaultThreshold = 4096

// Auto selects the index strategy by scale: an exact scan while the store is
// small, promoted to an HNSW graph once the entry count crosses the
// threshold. Promotion rebuilds the graph from the scan's entries and is
// one-way.
type Auto struct {
	mu        sync.RWMutex
	threshold int
	dims      int
	metric    model.Metric
	params    HNSWParams

	flat *Flat
	hnsw *HNSW
}

// NewAuto returns an auto-switching index for vectors of dimension dims.
// A non-positive threshold selects DefaultThreshold.
func NewAuto(dims int, metric model.Metric, threshold int, params HNSWParams) *Auto {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Auto{
		threshold: threshold,
		dims:      dims,
		metric:    metric,
		params:    params,
		flat:      NewFlat(dims),
	}
}

func (a *Auto) Add(e Entry) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.hnsw != nil {
		return a.hnsw.Add(e)
	}
	if err := a.flat.Add(e); err != nil {
		return err
	}
	if a.flat.Len() >= a.threshold {
		return a.promote()
	}
	return nil
}

func (a *Auto) promote() error {
	h := NewHNSW(a.dims, a.metric, a.params)
	for _, e := range a.flat.Entries() {
		if err := h.Add(e); err != nil {
			return err
		}
	}
	a.hnsw = h
	a.flat = nil
	return nil
}

// active returns the current strategy. Callers must hold a.mu, read or
// write, so the whole operation lands on the same index a concurrent
// promotion would otherwise swap out from under it.
func (a *Auto) active() Index {
	if a.hnsw != nil {
		return a.hnsw
	}
	return a.flat
}

func (a *Auto) Remove(id string) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	a.active().Remove(id)
}

func (a *Auto) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.active().Len()
}

func (a *Auto) Search(q []float32, k int, metric model.Metric, allow Allowed) ([]Candidate, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.active().Search(q, k, metric, allow)
}

// Kind reports the active strategy, for stats output.
func (a *Auto) Kind() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.hnsw != nil {
		return "hnsw"
	}
	return "flat"
}
