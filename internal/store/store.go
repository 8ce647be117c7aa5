// Package store provides durable persistence and vector ranking for memory
// records, with an embedded SQLite backend and a Postgres/pgvector backend.
package store

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/recallmem/recall/internal/index"
	"github.com/recallmem/recall/internal/model"
)

// InsertParams carries a fully embedded record. Validation of the text
// itself happens in the engine; the store checks the vector and attributes.
type InsertParams struct {
	Text       string
	Embedding  []float32
	MemoryType string
	Attributes map[string]any
}

// SearchParams is a pre-filtered vector query. Predicates restrict the
// candidate set before ranking; K bounds the result count; MaxDistance, when
// set, drops matches farther than the cutoff.
type SearchParams struct {
	Vector      []float32
	Predicates  []model.Predicate
	K           int
	Metric      model.Metric
	MaxDistance *float64
}

// TypeCount is one memory_type with its record count.
type TypeCount struct {
	Type  string `json:"type"`
	Count int    `json:"count"`
}

// Store persists memory records and ranks them by vector distance. Records
// are append-only: there is no update, a correction is an Insert plus a
// Delete.
type Store interface {
	// Insert persists a new record and returns it with id and created_at
	// assigned. Once Insert returns, the record is visible to any later
	// Search.
	Insert(ctx context.Context, p InsertParams) (*model.MemoryRecord, error)

	// Get returns the record with the given id, or NotFoundError.
	Get(ctx context.Context, id string) (*model.MemoryRecord, error)

	// Delete removes a record, or returns NotFoundError for an unknown id.
	Delete(ctx context.Context, id string) error

	// Search returns the k best matches among records satisfying every
	// predicate, ordered most similar first.
	Search(ctx context.Context, p SearchParams) ([]model.MatchResult, error)

	// Types lists distinct memory_type values with counts.
	Types(ctx context.Context) ([]TypeCount, error)

	// Stats reports store size and index shape.
	Stats(ctx context.Context) (*Stats, error)

	// ExportAll streams every record, embeddings included.
	ExportAll(ctx context.Context) ([]model.MemoryRecord, error)

	// Import restores a record from an export, keeping its id and
	// created_at. The embedding must match the store dimension.
	Import(ctx context.Context, rec model.MemoryRecord) error

	// Dims is the pinned embedding dimension.
	Dims() int

	Close() error
}

// Options configure a store at open time. EmbedderModel and Dims are pinned
// into the store on first open; reopening with different values fails closed
// rather than mixing vector spaces.
type Options struct {
	EmbedderModel string
	Dims          int
	Index         IndexOptions
}

// IndexOptions select and tune the in-process similarity index. The
// Postgres backend ranks in the database instead and only uses Metric,
// TargetAccuracy, M and EfConstruction.
type IndexOptions struct {
	Kind           string // "auto" (default), "flat", "hnsw"
	Threshold      int
	Metric         model.Metric
	TargetAccuracy float64
	M              int
	EfConstruction int
}

func (o IndexOptions) build(dims int) (index.Index, error) {
	params := index.HNSWParams{
		M:              o.M,
		EfConstruction: o.EfConstruction,
		TargetAccuracy: o.TargetAccuracy,
	}
	switch o.Kind {
	case "", "auto":
		return index.NewAuto(dims, o.Metric, o.Threshold, params), nil
	case "flat":
		return index.NewFlat(dims), nil
	case "hnsw":
		return index.NewHNSW(dims, o.Metric, params), nil
	}
	return nil, fmt.Errorf("unknown index kind %q", o.Kind)
}

// idGen hands out lexicographically increasing ULIDs, so ids sort the same
// way as insertion time and the created_at tie-break can fall back to them.
type idGen struct {
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

func newIDGen() *idGen {
	return &idGen{entropy: ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0)}
}

func (g *idGen) next(t time.Time) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(t), g.entropy).String()
}

// timeLayout is RFC 3339 at fixed nanosecond width. Fixed width keeps
// lexicographic order equal to chronological order, which the SQLite range
// predicates on created_at rely on.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}
