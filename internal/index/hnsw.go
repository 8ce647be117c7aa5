package index

import (
	"container/heap"
	"fmt"
	"math"
	"math/rand"
	"sync"

	"github.com/recallmem/recall/internal/model"
	"github.com/recallmem/recall/internal/vector"
)

// HNSWParams tunes the approximate graph index. Zero values pick the
// defaults below.
type HNSWParams struct {
	// M is the number of links created per node and layer.
	M int
	// EfConstruction is the beam width used while inserting.
	EfConstruction int
	// TargetAccuracy is the desired recall in (0, 1). It maps to the search
	// beam width: higher accuracy widens the beam and costs more per query.
	TargetAccuracy float64
	// Seed fixes the level generator so identical insert sequences build
	// identical graphs.
	Seed int64
}

const (
	defaultM              = 16
	defaultEfConstruction = 200
	defaultTargetAccuracy = 0.95
	minEfSearch           = 32
	maxLevelCap           = 32

	// scanFactor bounds how far a filtered beam search is widened before an
	// exact scan over the allowed set becomes the cheaper correct choice.
	scanFactor = 4
)

func (p HNSWParams) withDefaults() HNSWParams {
	if p.M <= 0 {
		p.M = defaultM
	}
	if p.EfConstruction <= 0 {
		p.EfConstruction = defaultEfConstruction
	}
	if p.TargetAccuracy <= 0 {
		p.TargetAccuracy = defaultTargetAccuracy
	}
	if p.TargetAccuracy >= 1 {
		p.TargetAccuracy = 0.999
	}
	return p
}

type hnswNode struct {
	entry   Entry
	level   int
	links   [][]string // neighbor ids per layer, 0..level
	deleted bool
}

// HNSW is a hierarchical navigable small world graph. Query cost is
// sublinear in the entry count at a recall governed by TargetAccuracy.
// Deletes tombstone the node: it stays navigable but is never returned.
//
// The graph geometry is built for a single metric. Searches under any other
// metric, and searches whose allowed set is small, fall back to an exact
// scan so they stay correct.
type HNSW struct {
	mu     sync.RWMutex
	dims   int
	metric model.Metric
	params HNSWParams

	nodes      map[string]*hnswNode
	entryPoint string
	maxLevel   int
	live       int
	rng        *rand.Rand
	levelMult  float64
}

// NewHNSW returns an empty graph index for vectors of dimension dims, built
// for the given metric.
func NewHNSW(dims int, metric model.Metric, params HNSWParams) *HNSW {
	if metric == "" {
		metric = model.MetricCosine
	}
	params = params.withDefaults()
	return &HNSW{
		dims:      dims,
		metric:    metric,
		params:    params,
		nodes:     make(map[string]*hnswNode),
		rng:       rand.New(rand.NewSource(params.Seed)),
		levelMult: 1 / math.Log(float64(params.M)),
	}
}

func (h *HNSW) Add(e Entry) error {
	if err := vector.CheckDims(h.dims, e.Vector); err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	// Ids are never reused upstream; a re-add of a tombstoned id would leave
	// stale links pointing at the new vector, so refuse it outright.
	if _, ok := h.nodes[e.ID]; ok {
		return fmt.Errorf("index: duplicate id %s", e.ID)
	}

	level := h.randomLevel()
	node := &hnswNode{entry: e, level: level, links: make([][]string, level+1)}
	h.nodes[e.ID] = node
	h.live++

	if h.entryPoint == "" {
		h.entryPoint = e.ID
		h.maxLevel = level
		return nil
	}

	cur := h.entryPoint
	for l := h.maxLevel; l > level; l-- {
		cur = h.greedyClosest(e.Vector, cur, l)
	}

	for l := min(level, h.maxLevel); l >= 0; l-- {
		found := h.searchLayer(e.Vector, cur, h.params.EfConstruction, l)
		neighbors := h.selectNeighbors(found, e.ID)
		node.links[l] = neighbors
		for _, nid := range neighbors {
			h.link(nid, e.ID, l)
		}
		if len(found) > 0 {
			cur = found[0].entry.ID
		}
	}

	if level > h.maxLevel {
		h.maxLevel = level
		h.entryPoint = e.ID
	}
	return nil
}

func (h *HNSW) Remove(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if n, ok := h.nodes[id]; ok && !n.deleted {
		n.deleted = true
		h.live--
	}
}

func (h *HNSW) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.live
}

func (h *HNSW) Search(q []float32, k int, metric model.Metric, allow Allowed) ([]Candidate, error) {
	if err := vector.CheckDims(h.dims, q); err != nil {
		return nil, err
	}
	if k <= 0 {
		return nil, nil
	}
	if metric == "" {
		metric = model.MetricCosine
	}
	if !model.ValidMetrics[metric] {
		return nil, &model.ValidationError{Field: "metric", Reason: fmt.Sprintf("unknown metric %q", metric)}
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.entryPoint == "" {
		return nil, nil
	}

	ef := h.efSearch(k)
	if metric != h.metric || (allow != nil && len(allow) <= ef*scanFactor) {
		return h.scan(q, k, metric, allow)
	}

	cur := h.entryPoint
	for l := h.maxLevel; l > 0; l-- {
		cur = h.greedyClosest(q, cur, l)
	}
	if allow != nil {
		// Widen the beam so enough allowed nodes survive collection.
		ratio := float64(h.live) / float64(len(allow))
		ef = int(math.Min(float64(ef)*ratio, float64(ef*scanFactor)))
	}

	found := h.searchLayer(q, cur, ef, 0)
	scored := make([]scoredEntry, 0, len(found))
	for _, s := range found {
		if h.nodes[s.entry.ID].deleted {
			continue
		}
		if allow != nil {
			if _, ok := allow[s.entry.ID]; !ok {
				continue
			}
		}
		scored = append(scored, s)
	}
	if allow != nil && len(scored) < k {
		// The capped beam came up short against the filter; finish exactly
		// over the allowed set.
		return h.scan(q, k, metric, allow)
	}
	return top(scored, k), nil
}

// scan is the exact path: distance against every live entry, or every
// allowed one.
func (h *HNSW) scan(q []float32, k int, metric model.Metric, allow Allowed) ([]Candidate, error) {
	var scored []scoredEntry
	consider := func(n *hnswNode) error {
		if n.deleted {
			return nil
		}
		d, err := vector.Distance(metric, q, n.entry.Vector)
		if err != nil {
			return err
		}
		scored = append(scored, scoredEntry{entry: n.entry, dist: d})
		return nil
	}

	if allow != nil {
		scored = make([]scoredEntry, 0, len(allow))
		for id := range allow {
			if n, ok := h.nodes[id]; ok {
				if err := consider(n); err != nil {
					return nil, err
				}
			}
		}
	} else {
		scored = make([]scoredEntry, 0, h.live)
		for _, n := range h.nodes {
			if err := consider(n); err != nil {
				return nil, err
			}
		}
	}
	return top(scored, k), nil
}

// efSearch maps TargetAccuracy to the beam width. Recall approaches 1 as
// the beam widens, so the width scales with k/(1-accuracy): 0.9 widens to
// 10k, 0.95 to 20k, 0.99 to 100k, floored at minEfSearch.
func (h *HNSW) efSearch(k int) int {
	ef := int(float64(k) / (1 - h.params.TargetAccuracy))
	if ef < minEfSearch {
		ef = minEfSearch
	}
	return ef
}

func (h *HNSW) randomLevel() int {
	u := 1 - h.rng.Float64() // (0, 1], keeps the log finite
	lvl := int(math.Floor(-math.Log(u) * h.levelMult))
	if lvl > maxLevelCap {
		lvl = maxLevelCap
	}
	return lvl
}

func (h *HNSW) dist(a, b []float32) float64 {
	d, _ := vector.Distance(h.metric, a, b)
	return d
}

func (h *HNSW) linksAt(id string, layer int) []string {
	n, ok := h.nodes[id]
	if !ok || layer > n.level {
		return nil
	}
	return n.links[layer]
}

// greedyClosest hill-climbs toward the node closest to q on one layer.
func (h *HNSW) greedyClosest(q []float32, start string, layer int) string {
	cur := start
	curDist := h.dist(q, h.nodes[cur].entry.Vector)
	for {
		improved := false
		for _, nid := range h.linksAt(cur, layer) {
			n, ok := h.nodes[nid]
			if !ok {
				continue
			}
			if d := h.dist(q, n.entry.Vector); d < curDist {
				cur, curDist = nid, d
				improved = true
			}
		}
		if !improved {
			return cur
		}
	}
}

// searchLayer runs a best-first beam search of width ef on one layer and
// returns the collected nodes closest first. Tombstoned nodes are collected
// too; callers filter them, traversal must still pass through them.
func (h *HNSW) searchLayer(q []float32, start string, ef, layer int) []scoredEntry {
	startDist := h.dist(q, h.nodes[start].entry.Vector)
	visited := map[string]bool{start: true}

	candidates := &minDistHeap{{id: start, dist: startDist}}
	results := &maxDistHeap{{id: start, dist: startDist}}
	heap.Init(candidates)
	heap.Init(results)

	for candidates.Len() > 0 {
		c := heap.Pop(candidates).(heapItem)
		if results.Len() >= ef && c.dist > (*results)[0].dist {
			break
		}
		for _, nid := range h.linksAt(c.id, layer) {
			if visited[nid] {
				continue
			}
			visited[nid] = true
			n, ok := h.nodes[nid]
			if !ok {
				continue
			}
			d := h.dist(q, n.entry.Vector)
			if results.Len() < ef || d < (*results)[0].dist {
				heap.Push(candidates, heapItem{id: nid, dist: d})
				heap.Push(results, heapItem{id: nid, dist: d})
				if results.Len() > ef {
					heap.Pop(results)
				}
			}
		}
	}

	out := make([]scoredEntry, results.Len())
	for i := results.Len() - 1; i >= 0; i-- {
		it := heap.Pop(results).(heapItem)
		out[i] = scoredEntry{entry: h.nodes[it.id].entry, dist: it.dist}
	}
	return out
}

// selectNeighbors picks the closest M found nodes as link targets for a new
// node, skipping the node itself.
func (h *HNSW) selectNeighbors(found []scoredEntry, self string) []string {
	out := make([]string, 0, h.params.M)
	for _, s := range found {
		if s.entry.ID == self {
			continue
		}
		out = append(out, s.entry.ID)
		if len(out) == h.params.M {
			break
		}
	}
	return out
}

// link adds a reverse edge from -> to on layer, pruning to the layer's
// degree cap by keeping the closest neighbors.
func (h *HNSW) link(from, to string, layer int) {
	n, ok := h.nodes[from]
	if !ok || layer > n.level {
		return
	}
	for _, existing := range n.links[layer] {
		if existing == to {
			return
		}
	}
	n.links[layer] = append(n.links[layer], to)

	maxLinks := h.params.M
	if layer == 0 {
		maxLinks = h.params.M * 2
	}
	if len(n.links[layer]) <= maxLinks {
		return
	}

	scored := make([]scoredEntry, 0, len(n.links[layer]))
	for _, nid := range n.links[layer] {
		nb, ok := h.nodes[nid]
		if !ok {
			continue
		}
		scored = append(scored, scoredEntry{entry: nb.entry, dist: h.dist(n.entry.Vector, nb.entry.Vector)})
	}
	kept := top(scored, maxLinks)
	n.links[layer] = n.links[layer][:0]
	for _, c := range kept {
		n.links[layer] = append(n.links[layer], c.ID)
	}
}

type heapItem struct {
	id   string
	dist float64
}

type minDistHeap []heapItem

func (h minDistHeap) Len() int            { return len(h) }
func (h minDistHeap) Less(i, j int) bool  { return h[i].dist < h[j].dist }
func (h minDistHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *minDistHeap) Push(x interface{}) { *h = append(*h, x.(heapItem)) }
func (h *minDistHeap) Pop() interface{} {
	old := *h
	n := len(old)
	it := old[n-1]
	*h = old[:n-1]
	return it
}

type maxDistHeap []heapItem

func (h maxDistHeap) Len() int            { return len(h) }
func (h maxDistHeap) Less(i, j int) bool  { return h[i].dist > h[j].dist }
func (h maxDistHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *maxDistHeap) Push(x interface{}) { *h = append(*h, x.(heapItem)) }
func (h *maxDistHeap) Pop() interface{} {
	old := *h
	n := len(old)
	it := old[n-1]
	*h = old[:n-1]
	return it
}
