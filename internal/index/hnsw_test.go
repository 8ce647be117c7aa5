package index

import (
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recallmem/recall/internal/model"
)

func randVecs(n, dims int, seed int64) [][]float32 {
	rng := rand.New(rand.NewSource(seed))
	out := make([][]float32, n)
	for i := range out {
		v := make([]float32, dims)
		for j := range v {
			v[j] = float32(rng.NormFloat64())
		}
		out[i] = v
	}
	return out
}

// fill loads the same entries into both indexes.
func fill(t *testing.T, vecs [][]float32, idxs ...Index) {
	t.Helper()
	for i, v := range vecs {
		e := Entry{
			ID:        fmt.Sprintf("%04d", i),
			Vector:    v,
			CreatedAt: t0.Add(time.Duration(i) * time.Second),
		}
		for _, idx := range idxs {
			require.NoError(t, idx.Add(e))
		}
	}
}

// At small entry counts the beam covers the whole graph and no link pruning
// can occur, so the graph search must agree exactly with the scan.
func TestHNSWMatchesExactScanAtSmallScale(t *testing.T) {
	vecs := randVecs(20, 8, 1)
	h := NewHNSW(8, model.MetricCosine, HNSWParams{Seed: 42})
	f := NewFlat(8)
	fill(t, vecs, h, f)

	for _, q := range randVecs(5, 8, 2) {
		want, err := f.Search(q, 5, model.MetricCosine, nil)
		require.NoError(t, err)
		got, err := h.Search(q, 5, model.MetricCosine, nil)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestHNSWSelfMatchFirst(t *testing.T) {
	vecs := randVecs(20, 8, 3)
	h := NewHNSW(8, model.MetricCosine, HNSWParams{Seed: 42})
	fill(t, vecs, h)

	got, err := h.Search(vecs[7], 3, model.MetricCosine, nil)
	require.NoError(t, err)
	require.NotEmpty(t, got)
	assert.Equal(t, "0007", got[0].ID)
	assert.InDelta(t, 0, got[0].Distance, 1e-6)
}

func TestHNSWRecallAtScale(t *testing.T) {
	vecs := randVecs(300, 16, 4)
	h := NewHNSW(16, model.MetricCosine, HNSWParams{Seed: 42})
	f := NewFlat(16)
	fill(t, vecs, h, f)

	queries := randVecs(10, 16, 5)
	overlap := 0
	for _, q := range queries {
		want, err := f.Search(q, 5, model.MetricCosine, nil)
		require.NoError(t, err)
		got, err := h.Search(q, 5, model.MetricCosine, nil)
		require.NoError(t, err)
		require.Len(t, got, 5)

		wantIDs := map[string]struct{}{}
		for _, c := range want {
			wantIDs[c.ID] = struct{}{}
		}
		for _, c := range got {
			if _, ok := wantIDs[c.ID]; ok {
				overlap++
			}
		}
	}
	// 50 possible hits across 10 queries; the default target accuracy is
	// 0.95, so a healthy graph comfortably clears 0.7.
	assert.GreaterOrEqual(t, overlap, 35, "recall collapsed: %d/50", overlap)
}

func TestHNSWSelectiveAllowIsExact(t *testing.T) {
	vecs := randVecs(300, 8, 6)
	h := NewHNSW(8, model.MetricCosine, HNSWParams{Seed: 42})
	f := NewFlat(8)
	fill(t, vecs, h, f)

	allow := Allowed{}
	for i := 0; i < 10; i++ {
		allow[fmt.Sprintf("%04d", i*17)] = struct{}{}
	}

	q := randVecs(1, 8, 7)[0]
	want, err := f.Search(q, 5, model.MetricCosine, allow)
	require.NoError(t, err)
	got, err := h.Search(q, 5, model.MetricCosine, allow)
	require.NoError(t, err)
	assert.Equal(t, want, got, "a selective allow set takes the exact path")
}

func TestHNSWWideAllowStaysWithinSet(t *testing.T) {
	vecs := randVecs(1000, 8, 8)
	h := NewHNSW(8, model.MetricCosine, HNSWParams{Seed: 42})
	fill(t, vecs, h)

	allow := Allowed{}
	for i := 0; i < 600; i++ {
		allow[fmt.Sprintf("%04d", i)] = struct{}{}
	}

	got, err := h.Search(randVecs(1, 8, 9)[0], 5, model.MetricCosine, allow)
	require.NoError(t, err)
	require.NotEmpty(t, got)
	for _, c := range got {
		_, ok := allow[c.ID]
		assert.True(t, ok, "result %s escaped the allow set", c.ID)
	}
	for i := 1; i < len(got); i++ {
		assert.LessOrEqual(t, got[i-1].Distance, got[i].Distance)
	}
}

// A mid-selectivity filter is too wide for the exact crossover yet thins the
// beam collection badly. The search must still fill k whenever the allowed
// set holds k live entries.
func TestHNSWMidSelectivityAllowFillsK(t *testing.T) {
	vecs := randVecs(3000, 8, 13)
	h := NewHNSW(8, model.MetricCosine, HNSWParams{EfConstruction: 64, TargetAccuracy: 0.5, Seed: 42})
	fill(t, vecs, h)

	allow := Allowed{}
	for i := 0; i < 150; i++ {
		allow[fmt.Sprintf("%04d", i*20)] = struct{}{}
	}

	for _, q := range randVecs(10, 8, 14) {
		got, err := h.Search(q, 16, model.MetricCosine, allow)
		require.NoError(t, err)
		require.Len(t, got, 16, "filtered search returned short of k")
		for _, c := range got {
			_, ok := allow[c.ID]
			assert.True(t, ok, "result %s escaped the allow set", c.ID)
		}
		for i := 1; i < len(got); i++ {
			assert.LessOrEqual(t, got[i-1].Distance, got[i].Distance)
		}
	}
}

func TestHNSWRemoveTombstones(t *testing.T) {
	vecs := randVecs(20, 8, 10)
	h := NewHNSW(8, model.MetricCosine, HNSWParams{Seed: 42})
	fill(t, vecs, h)

	before, err := h.Search(vecs[3], 2, model.MetricCosine, nil)
	require.NoError(t, err)
	require.Equal(t, "0003", before[0].ID)
	runnerUp := before[1].ID

	h.Remove("0003")
	assert.Equal(t, 19, h.Len())

	after, err := h.Search(vecs[3], 5, model.MetricCosine, nil)
	require.NoError(t, err)
	require.Len(t, after, 5)
	assert.Equal(t, runnerUp, after[0].ID, "the runner-up moves up once the best is removed")
	for _, c := range after {
		assert.NotEqual(t, "0003", c.ID)
	}
}

func TestHNSWOtherMetricFallsBackToScan(t *testing.T) {
	vecs := randVecs(50, 8, 11)
	h := NewHNSW(8, model.MetricCosine, HNSWParams{Seed: 42})
	f := NewFlat(8)
	fill(t, vecs, h, f)

	q := randVecs(1, 8, 12)[0]
	want, err := f.Search(q, 5, model.MetricEuclidean, nil)
	require.NoError(t, err)
	got, err := h.Search(q, 5, model.MetricEuclidean, nil)
	require.NoError(t, err)
	assert.Equal(t, want, got, "a metric the graph was not built for is ranked exactly")
}

func TestHNSWDuplicateIDRejected(t *testing.T) {
	h := NewHNSW(2, model.MetricCosine, HNSWParams{Seed: 42})
	require.NoError(t, h.Add(entry("a", t0, 1, 0)))
	require.Error(t, h.Add(entry("a", t0, 0, 1)))
}

func TestHNSWDimensionMismatch(t *testing.T) {
	h := NewHNSW(3, model.MetricCosine, HNSWParams{Seed: 42})

	var dm *model.DimensionMismatchError
	require.ErrorAs(t, h.Add(entry("a", t0, 1, 0)), &dm)

	require.NoError(t, h.Add(entry("b", t0, 1, 0, 0)))
	_, err := h.Search([]float32{1, 0}, 1, model.MetricCosine, nil)
	require.ErrorAs(t, err, &dm)
}

func TestHNSWEmpty(t *testing.T) {
	h := NewHNSW(2, model.MetricCosine, HNSWParams{})
	got, err := h.Search([]float32{1, 0}, 5, model.MetricCosine, nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}
