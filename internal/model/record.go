// Package model defines the core memory record types and the error taxonomy
// shared by the store, index, and retrieval engine.
package model

import "time"

// MemoryRecord is a single remembered fact. Records are append-only: text and
// embedding are fixed when the record is written and never mutated afterward.
// A correction is a new record plus a delete of the old one.
type MemoryRecord struct {
	ID         string         `json:"id"`
	Text       string         `json:"text"`
	Embedding  []float32      `json:"embedding,omitempty"`
	MemoryType string         `json:"memory_type"`
	CreatedAt  time.Time      `json:"created_at"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// Metric selects the distance function used to rank matches.
type Metric string

const (
	MetricCosine    Metric = "cosine"
	MetricEuclidean Metric = "euclidean"
	MetricDot       Metric = "dot"
)

// ValidMetrics are the supported distance metrics.
var ValidMetrics = map[Metric]bool{
	MetricCosine:    true,
	MetricEuclidean: true,
	MetricDot:       true,
}

// Op is a predicate comparison operator.
type Op string

const (
	OpEq  Op = "eq"
	OpNe  Op = "ne"
	OpGt  Op = "gt"
	OpGte Op = "gte"
	OpLt  Op = "lt"
	OpLte Op = "lte"
)

// ValidOps are the supported predicate operators.
var ValidOps = map[Op]bool{
	OpEq:  true,
	OpNe:  true,
	OpGt:  true,
	OpGte: true,
	OpLt:  true,
	OpLte: true,
}

// Predicate restricts a search to records whose structured fields match.
// Field is "memory_type", "created_at", or an attribute key. Predicates are
// applied before ranking, so the k best matches are drawn only from records
// that satisfy every predicate.
type Predicate struct {
	Field string `json:"field"`
	Op    Op     `json:"op"`
	Value any    `json:"value"`
}

// SearchOptions controls a similarity search. Zero values pick the engine
// defaults: K=5, cosine metric, no distance cutoff.
type SearchOptions struct {
	Predicates  []Predicate
	K           int
	Metric      Metric
	MaxDistance *float64
}

// MatchResult pairs a record with its similarity to the query. Results are
// ordered most similar first; equal similarities fall back to newest
// created_at, then highest id, so a given store state always ranks the same
// way.
type MatchResult struct {
	Record     MemoryRecord `json:"record"`
	Similarity float64      `json:"similarity"`
	Distance   float64      `json:"distance"`
}

// ScalarAttribute reports whether v is a scalar allowed as an attribute
// value. Attributes exist to serve predicates, so nested structures are
// rejected at the door.
func ScalarAttribute(v any) bool {
	switch v.(type) {
	case string, bool, int, int64, float64:
		return true
	}
	return false
}
