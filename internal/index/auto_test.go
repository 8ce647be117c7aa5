package index

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recallmem/recall/internal/model"
)

func TestAutoPromotesAtThreshold(t *testing.T) {
	vecs := randVecs(10, 4, 20)
	a := NewAuto(4, model.MetricCosine, 10, HNSWParams{Seed: 42})

	for i := 0; i < 9; i++ {
		require.NoError(t, a.Add(Entry{ID: fmt.Sprintf("%04d", i), Vector: vecs[i], CreatedAt: t0}))
	}
	assert.Equal(t, "flat", a.Kind())

	require.NoError(t, a.Add(Entry{ID: "0009", Vector: vecs[9], CreatedAt: t0}))
	assert.Equal(t, "hnsw", a.Kind())
	assert.Equal(t, 10, a.Len())

	// Entries survive the promotion: searching for a stored vector still
	// finds it first.
	got, err := a.Search(vecs[4], 1, model.MetricCosine, nil)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "0004", got[0].ID)
}

func TestAutoDelegatesRemove(t *testing.T) {
	vecs := randVecs(3, 4, 21)
	a := NewAuto(4, model.MetricCosine, 100, HNSWParams{})
	for i, v := range vecs {
		require.NoError(t, a.Add(Entry{ID: fmt.Sprintf("%04d", i), Vector: v, CreatedAt: t0}))
	}

	a.Remove("0001")
	assert.Equal(t, 2, a.Len())
	assert.Equal(t, "flat", a.Kind())

	got, err := a.Search(vecs[1], 5, model.MetricCosine, nil)
	require.NoError(t, err)
	for _, c := range got {
		assert.NotEqual(t, "0001", c.ID)
	}
}

func TestAutoDefaultThreshold(t *testing.T) {
	a := NewAuto(4, model.MetricCosine, 0, HNSWParams{})
	assert.Equal(t, DefaultThreshold, a.threshold)
}

// A remove racing the threshold-crossing add must land on whichever index
// survives, never on the scan the promotion replaced. Either interleaving
// leaves seven entries and no trace of the removed id.
func TestAutoRemoveDuringPromotion(t *testing.T) {
	for round := 0; round < 50; round++ {
		vecs := randVecs(8, 4, int64(100+round))
		a := NewAuto(4, model.MetricCosine, 8, HNSWParams{Seed: 1})
		for i := 0; i < 7; i++ {
			require.NoError(t, a.Add(Entry{ID: fmt.Sprintf("%04d", i), Vector: vecs[i], CreatedAt: t0}))
		}

		var wg sync.WaitGroup
		var addErr error
		wg.Add(2)
		go func() {
			defer wg.Done()
			addErr = a.Add(Entry{ID: "0007", Vector: vecs[7], CreatedAt: t0})
		}()
		go func() {
			defer wg.Done()
			a.Remove("0003")
		}()
		wg.Wait()
		require.NoError(t, addErr)

		assert.Equal(t, 7, a.Len(), "round %d (%s)", round, a.Kind())
		got, err := a.Search(vecs[3], 8, model.MetricCosine, nil)
		require.NoError(t, err)
		for _, c := range got {
			assert.NotEqual(t, "0003", c.ID, "round %d (%s): removed id still served", round, a.Kind())
		}
	}
}
