// Package vector implements the distance metrics used to rank matches and
// the binary encoding used to persist embeddings.
package vector

import (
	"fmt"
	"math"

	"github.com/recallmem/recall/internal/model"
)

// CheckDims verifies v against the expected dimension.
func CheckDims(want int, v []float32) error {
	if len(v) != want {
		return &model.DimensionMismatchError{Want: want, Got: len(v)}
	}
	return nil
}

// Distance computes the distance between a and b under metric. Smaller is
// closer for every metric; the dot product is negated so it sorts the same
// way as the others. An empty metric means cosine.
func Distance(metric model.Metric, a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, &model.DimensionMismatchError{Want: len(a), Got: len(b)}
	}
	switch metric {
	case model.MetricCosine, "":
		return CosineDistance(a, b), nil
	case model.MetricEuclidean:
		return EuclideanDistance(a, b), nil
	case model.MetricDot:
		return -Dot(a, b), nil
	}
	return 0, &model.ValidationError{Field: "metric", Reason: fmt.Sprintf("unknown metric %q", metric)}
}

// Similarity converts a metric distance into the similarity reported on a
// match. Cosine maps to 1-distance clamped to [0,1]. Euclidean maps to
// 1/(1+d). Dot product reports the raw (un-negated) product, which is
// unbounded.
func Similarity(metric model.Metric, distance float64) float64 {
	switch metric {
	case model.MetricEuclidean:
		return 1 / (1 + distance)
	case model.MetricDot:
		return -distance
	default:
		s := 1 - distance
		if s < 0 {
			return 0
		}
		if s > 1 {
			return 1
		}
		return s
	}
}

// Dot returns the inner product of a and b. Dimensions must already match.
func Dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

// CosineDistance returns 1 - cos(a, b). A zero vector has no direction, so
// the distance degrades to 1 (similarity 0) instead of dividing by zero.
func CosineDistance(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
}

// EuclideanDistance returns the L2 distance between a and b.
func EuclideanDistance(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}
