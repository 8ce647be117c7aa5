package index

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recallmem/recall/internal/model"
)

var t0 = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func entry(id string, at time.Time, v ...float32) Entry {
	return Entry{ID: id, Vector: v, CreatedAt: at}
}

func TestFlatSearchOrdersByDistance(t *testing.T) {
	f := NewFlat(2)
	require.NoError(t, f.Add(entry("exact", t0, 1, 0)))
	require.NoError(t, f.Add(entry("close", t0, 1, 0.2)))
	require.NoError(t, f.Add(entry("far", t0, 0, 1)))

	got, err := f.Search([]float32{1, 0}, 2, model.MetricCosine, nil)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "exact", got[0].ID)
	assert.Equal(t, "close", got[1].ID)
	assert.InDelta(t, 0, got[0].Distance, 1e-9)
	assert.Less(t, got[0].Distance, got[1].Distance)
}

func TestFlatTieBreakNewestThenHighestID(t *testing.T) {
	f := NewFlat(2)
	older := t0
	newer := t0.Add(time.Hour)

	// Identical vectors, so identical distances to any query.
	require.NoError(t, f.Add(entry("a-old", older, 1, 0)))
	require.NoError(t, f.Add(entry("b-new", newer, 1, 0)))
	require.NoError(t, f.Add(entry("c-new", newer, 1, 0)))

	got, err := f.Search([]float32{1, 0}, 3, model.MetricCosine, nil)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "c-new", got[0].ID, "newest wins the tie, highest id within the same instant")
	assert.Equal(t, "b-new", got[1].ID)
	assert.Equal(t, "a-old", got[2].ID)
}

func TestFlatAllowedRestrictsBeforeRanking(t *testing.T) {
	f := NewFlat(2)
	require.NoError(t, f.Add(entry("best", t0, 1, 0)))
	require.NoError(t, f.Add(entry("second", t0, 1, 0.1)))
	require.NoError(t, f.Add(entry("eligible", t0, 0, 1)))

	// Even though "best" and "second" are closer, only the allowed entry may
	// appear: filtering happens before ranking, not after.
	got, err := f.Search([]float32{1, 0}, 2, model.MetricCosine, Allowed{"eligible": {}})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "eligible", got[0].ID)
}

func TestFlatKBound(t *testing.T) {
	f := NewFlat(2)
	require.NoError(t, f.Add(entry("a", t0, 1, 0)))
	require.NoError(t, f.Add(entry("b", t0, 0, 1)))

	got, err := f.Search([]float32{1, 0}, 10, model.MetricCosine, nil)
	require.NoError(t, err)
	assert.Len(t, got, 2, "never more than the entry count")

	got, err = f.Search([]float32{1, 0}, 1, model.MetricCosine, nil)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestFlatRemove(t *testing.T) {
	f := NewFlat(2)
	require.NoError(t, f.Add(entry("a", t0, 1, 0)))
	require.NoError(t, f.Add(entry("b", t0, 0, 1)))

	f.Remove("a")
	assert.Equal(t, 1, f.Len())

	got, err := f.Search([]float32{1, 0}, 5, model.MetricCosine, nil)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "b", got[0].ID)
}

func TestFlatDimensionMismatch(t *testing.T) {
	f := NewFlat(3)

	var dm *model.DimensionMismatchError
	err := f.Add(entry("a", t0, 1, 0))
	require.ErrorAs(t, err, &dm)

	require.NoError(t, f.Add(entry("b", t0, 1, 0, 0)))
	_, err = f.Search([]float32{1, 0}, 1, model.MetricCosine, nil)
	require.ErrorAs(t, err, &dm)
}
