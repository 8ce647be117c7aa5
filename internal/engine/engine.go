// Package engine coordinates the embedder and the record store behind the
// operations the CLI and any prompting layer call. It owns text validation,
// query embedding, and the correction flow; ranking itself lives in the
// store and its similarity index.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/recallmem/recall/internal/embedding"
	"github.com/recallmem/recall/internal/model"
	"github.com/recallmem/recall/internal/store"
)

// DefaultK is how many matches a search returns when the caller does not ask
// for a specific count.
const DefaultK = 5

// Options tune an Engine.
type Options struct {
	DefaultK int           // matches returned when SearchOptions.K is zero
	Timeout  time.Duration // per-operation bound; zero leaves deadlines to the caller
}

// Engine binds an Embedder to a Store.
type Engine struct {
	store    store.Store
	embedder embedding.Embedder
	defaultK int
	timeout  time.Duration
}

func New(st store.Store, emb embedding.Embedder, opts Options) *Engine {
	k := opts.DefaultK
	if k <= 0 {
		k = DefaultK
	}
	return &Engine{store: st, embedder: emb, defaultK: k, timeout: opts.Timeout}
}

// InsertParams holds the caller-supplied fields of a new record.
type InsertParams struct {
	Text       string
	MemoryType string
	Attributes map[string]any
}

// Insert embeds text and persists it as a new record. The record is visible
// to every search that starts after Insert returns.
func (e *Engine) Insert(ctx context.Context, p InsertParams) (*model.MemoryRecord, error) {
	ctx, cancel := e.bound(ctx)
	defer cancel()

	if err := e.validateText(p.Text); err != nil {
		return nil, err
	}
	vec, err := e.embedder.Embed(ctx, p.Text)
	if err != nil {
		return nil, classify("insert", err)
	}
	rec, err := e.store.Insert(ctx, store.InsertParams{
		Text:       p.Text,
		Embedding:  vec,
		MemoryType: p.MemoryType,
		Attributes: p.Attributes,
	})
	if err != nil {
		return nil, classify("insert", err)
	}
	log.Debug("record inserted", "id", rec.ID, "type", rec.MemoryType)
	return rec, nil
}

// Search embeds queryText and returns the k best matches among records
// satisfying every predicate, ordered by similarity. A max-distance cut may
// leave fewer than k matches; an empty result is not an error.
func (e *Engine) Search(ctx context.Context, queryText string, opts model.SearchOptions) ([]model.MatchResult, error) {
	ctx, cancel := e.bound(ctx)
	defer cancel()

	if err := e.validateText(queryText); err != nil {
		return nil, err
	}
	if opts.K == 0 {
		opts.K = e.defaultK
	}
	if opts.K < 0 {
		return nil, &model.ValidationError{Field: "k", Reason: "must be positive"}
	}

	vec, err := e.embedder.Embed(ctx, queryText)
	if err != nil {
		return nil, classify("search", err)
	}
	results, err := e.store.Search(ctx, store.SearchParams{
		Vector:      vec,
		Predicates:  opts.Predicates,
		K:           opts.K,
		Metric:      opts.Metric,
		MaxDistance: opts.MaxDistance,
	})
	if err != nil {
		return nil, classify("search", err)
	}
	log.Debug("search complete", "k", opts.K, "matches", len(results))
	return results, nil
}

func (e *Engine) Get(ctx context.Context, id string) (*model.MemoryRecord, error) {
	ctx, cancel := e.bound(ctx)
	defer cancel()

	rec, err := e.store.Get(ctx, id)
	if err != nil {
		return nil, classify("get", err)
	}
	return rec, nil
}

func (e *Engine) Delete(ctx context.Context, id string) error {
	ctx, cancel := e.bound(ctx)
	defer cancel()

	if err := e.store.Delete(ctx, id); err != nil {
		return classify("delete", err)
	}
	log.Debug("record deleted", "id", id)
	return nil
}

// Replace corrects a record: it inserts the replacement, then deletes the
// original. The two steps are not atomic. If the delete fails the new record
// stays, both error and new record are returned, and the caller may retry
// the delete. Empty MemoryType or nil Attributes inherit the original's
// values.
func (e *Engine) Replace(ctx context.Context, id string, p InsertParams) (*model.MemoryRecord, error) {
	ctx, cancel := e.bound(ctx)
	defer cancel()

	old, err := e.store.Get(ctx, id)
	if err != nil {
		return nil, classify("replace", err)
	}
	if p.MemoryType == "" {
		p.MemoryType = old.MemoryType
	}
	if p.Attributes == nil {
		p.Attributes = old.Attributes
	}
	if err := e.validateText(p.Text); err != nil {
		return nil, err
	}

	vec, err := e.embedder.Embed(ctx, p.Text)
	if err != nil {
		return nil, classify("replace", err)
	}
	rec, err := e.store.Insert(ctx, store.InsertParams{
		Text:       p.Text,
		Embedding:  vec,
		MemoryType: p.MemoryType,
		Attributes: p.Attributes,
	})
	if err != nil {
		return nil, classify("replace", err)
	}

	if err := e.store.Delete(ctx, id); err != nil && !model.IsNotFound(err) {
		return rec, fmt.Errorf("replacement %s stored but delete of %s failed: %w", rec.ID, id, classify("replace", err))
	}
	log.Debug("record replaced", "old", id, "new", rec.ID)
	return rec, nil
}

func (e *Engine) Types(ctx context.Context) ([]store.TypeCount, error) {
	ctx, cancel := e.bound(ctx)
	defer cancel()
	return e.store.Types(ctx)
}

func (e *Engine) Stats(ctx context.Context) (*store.Stats, error) {
	ctx, cancel := e.bound(ctx)
	defer cancel()
	return e.store.Stats(ctx)
}

func (e *Engine) ExportAll(ctx context.Context) ([]model.MemoryRecord, error) {
	ctx, cancel := e.bound(ctx)
	defer cancel()
	return e.store.ExportAll(ctx)
}

// Import restores one exported record. Records without an embedding are
// re-embedded from their text; records carrying one must match the
// configured dimension.
func (e *Engine) Import(ctx context.Context, rec model.MemoryRecord) error {
	ctx, cancel := e.bound(ctx)
	defer cancel()

	if len(rec.Embedding) == 0 {
		if err := e.validateText(rec.Text); err != nil {
			return err
		}
		vec, err := e.embedder.Embed(ctx, rec.Text)
		if err != nil {
			return classify("import", err)
		}
		rec.Embedding = vec
	}
	if err := e.store.Import(ctx, rec); err != nil {
		return classify("import", err)
	}
	return nil
}

// Embedder exposes the engine's embedder for callers that need its model
// name or input limit.
func (e *Engine) Embedder() embedding.Embedder { return e.embedder }

func (e *Engine) validateText(text string) error {
	if strings.TrimSpace(text) == "" {
		return &model.ValidationError{Field: "text", Reason: "empty"}
	}
	if max := e.embedder.MaxInputLen(); max > 0 && len(text) > max {
		return &model.ValidationError{
			Field:  "text",
			Reason: fmt.Sprintf("length %d exceeds embedder input limit %d", len(text), max),
		}
	}
	return nil
}

func (e *Engine) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, e.timeout)
}

// classify maps context expiry to TimeoutError and leaves typed errors
// untouched so errors.As keeps working on them.
func classify(op string, err error) error {
	var te *model.TimeoutError
	if errors.As(err, &te) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return &model.TimeoutError{Op: op, Err: err}
	}
	return err
}
