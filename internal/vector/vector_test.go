package vector

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recallmem/recall/internal/model"
)

func TestCosineDistance(t *testing.T) {
	a := []float32{1, 0, 0}
	b := []float32{0, 1, 0}

	assert.InDelta(t, 0, CosineDistance(a, a), 1e-9, "identical vectors")
	assert.InDelta(t, 1, CosineDistance(a, b), 1e-9, "orthogonal vectors")
	assert.InDelta(t, 2, CosineDistance(a, []float32{-1, 0, 0}), 1e-9, "opposite vectors")
}

func TestCosineZeroVectorSentinel(t *testing.T) {
	zero := []float32{0, 0, 0}
	a := []float32{1, 2, 3}

	// No panic, no NaN: zero vectors report distance 1 / similarity 0.
	d := CosineDistance(zero, a)
	assert.Equal(t, 1.0, d)
	assert.False(t, math.IsNaN(d))
	assert.Equal(t, 0.0, Similarity(model.MetricCosine, d))
}

func TestEuclideanDistance(t *testing.T) {
	a := []float32{0, 0}
	b := []float32{3, 4}
	assert.InDelta(t, 5, EuclideanDistance(a, b), 1e-9)
	assert.InDelta(t, 1.0/6.0, Similarity(model.MetricEuclidean, 5), 1e-9)
}

func TestDotDistanceOrdersLikeOtherMetrics(t *testing.T) {
	q := []float32{1, 1}
	near := []float32{2, 2}
	far := []float32{0.1, 0.1}

	dNear, err := Distance(model.MetricDot, q, near)
	require.NoError(t, err)
	dFar, err := Distance(model.MetricDot, q, far)
	require.NoError(t, err)

	assert.Less(t, dNear, dFar, "higher dot product must mean smaller distance")
	assert.InDelta(t, 4, Similarity(model.MetricDot, dNear), 1e-9)
}

func TestDistanceDimensionMismatch(t *testing.T) {
	_, err := Distance(model.MetricCosine, []float32{1, 2}, []float32{1, 2, 3})
	require.Error(t, err)

	var dm *model.DimensionMismatchError
	require.ErrorAs(t, err, &dm)
	assert.Equal(t, 2, dm.Want)
	assert.Equal(t, 3, dm.Got)
}

func TestDistanceUnknownMetric(t *testing.T) {
	_, err := Distance(model.Metric("manhattan"), []float32{1}, []float32{1})
	require.Error(t, err)
	assert.True(t, model.IsValidation(err))
}

func TestDistanceEmptyMetricDefaultsToCosine(t *testing.T) {
	a := []float32{1, 0}
	d, err := Distance("", a, a)
	require.NoError(t, err)
	assert.InDelta(t, 0, d, 1e-9)
}

func TestSimilarityClamped(t *testing.T) {
	// Cosine distance on arbitrary vectors ranges up to 2; reported
	// similarity still stays within [0, 1].
	assert.Equal(t, 0.0, Similarity(model.MetricCosine, 2))
	assert.Equal(t, 1.0, Similarity(model.MetricCosine, -0.001))
}

func TestCheckDims(t *testing.T) {
	require.NoError(t, CheckDims(3, []float32{1, 2, 3}))

	err := CheckDims(3, []float32{1, 2})
	var dm *model.DimensionMismatchError
	require.ErrorAs(t, err, &dm)
}

func TestBlobRoundTrip(t *testing.T) {
	v := []float32{0, 1, -1, 0.5, math.MaxFloat32, math.SmallestNonzeroFloat32, 3.14159}

	got, err := DecodeBlob(EncodeBlob(v))
	require.NoError(t, err)
	require.Len(t, got, len(v))
	for i := range v {
		assert.Equal(t, math.Float32bits(v[i]), math.Float32bits(got[i]), "component %d must be bit-identical", i)
	}
}

func TestDecodeBlobBadLength(t *testing.T) {
	_, err := DecodeBlob([]byte{1, 2, 3})
	require.Error(t, err)
}
