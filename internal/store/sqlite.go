package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	_ "modernc.org/sqlite"

	"github.com/recallmem/recall/internal/index"
	"github.com/recallmem/recall/internal/model"
	"github.com/recallmem/recall/internal/vector"
)

// SQLiteStore implements Store on an embedded SQLite database. Embeddings
// are little-endian float32 BLOBs; ranking runs on an in-process similarity
// index rebuilt from the rows at open time.
type SQLiteStore struct {
	db     *sql.DB
	path   string
	ids    *idGen
	idx    index.Index
	dims   int
	embMdl string
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens or creates a SQLite database at the given path, pins
// the embedder model and dimension, and loads the similarity index.
func NewSQLiteStore(dbPath string, opts Options) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=foreign_keys(on)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	idx, err := opts.Index.build(opts.Dims)
	if err != nil {
		db.Close()
		return nil, err
	}

	s := &SQLiteStore{
		db:     db,
		path:   dbPath,
		ids:    newIDGen(),
		idx:    idx,
		dims:   opts.Dims,
		embMdl: opts.EmbedderModel,
	}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	if err := s.pinEmbedder(); err != nil {
		db.Close()
		return nil, err
	}
	if err := s.loadIndex(); err != nil {
		db.Close()
		return nil, fmt.Errorf("load index: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS records (
		id          TEXT PRIMARY KEY,
		text        TEXT NOT NULL,
		embedding   BLOB NOT NULL,
		memory_type TEXT NOT NULL DEFAULT 'fact',
		created_at  TEXT NOT NULL,
		attributes  TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_records_type ON records(memory_type);
	CREATE INDEX IF NOT EXISTS idx_records_created ON records(created_at DESC);

	CREATE TABLE IF NOT EXISTS store_meta (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// pinEmbedder records the embedder model and dimension on first open and
// refuses to reopen under a different one. Vectors from different models
// share no geometry; mixing them silently would corrupt every ranking.
func (s *SQLiteStore) pinEmbedder() error {
	var storedModel, storedDims string
	err := s.db.QueryRow(`SELECT value FROM store_meta WHERE key = 'embedder_model'`).Scan(&storedModel)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		_, err = s.db.Exec(`INSERT INTO store_meta (key, value) VALUES ('embedder_model', ?), ('embedder_dims', ?)`,
			s.embMdl, strconv.Itoa(s.dims))
		if err != nil {
			return fmt.Errorf("pin embedder: %w", err)
		}
		return nil
	case err != nil:
		return fmt.Errorf("read embedder pin: %w", err)
	}

	if err := s.db.QueryRow(`SELECT value FROM store_meta WHERE key = 'embedder_dims'`).Scan(&storedDims); err != nil {
		return fmt.Errorf("read embedder pin: %w", err)
	}
	dims, err := strconv.Atoi(storedDims)
	if err != nil {
		return fmt.Errorf("read embedder pin: %w", err)
	}
	if dims != s.dims {
		return &model.DimensionMismatchError{Want: dims, Got: s.dims}
	}
	if storedModel != s.embMdl {
		return fmt.Errorf("embedder model skew: store pinned %q, configured %q", storedModel, s.embMdl)
	}
	return nil
}

func (s *SQLiteStore) loadIndex() error {
	rows, err := s.db.Query(`SELECT id, embedding, created_at FROM records`)
	if err != nil {
		return err
	}
	defer rows.Close()

	n := 0
	for rows.Next() {
		var id, createdAt string
		var blob []byte
		if err := rows.Scan(&id, &blob, &createdAt); err != nil {
			return err
		}
		vec, err := vector.DecodeBlob(blob)
		if err != nil {
			return fmt.Errorf("record %s: %w", id, err)
		}
		at, err := parseTime(createdAt)
		if err != nil {
			return fmt.Errorf("record %s: %w", id, err)
		}
		if err := s.idx.Add(index.Entry{ID: id, Vector: vec, CreatedAt: at}); err != nil {
			return fmt.Errorf("record %s: %w", id, err)
		}
		n++
	}
	if err := rows.Err(); err != nil {
		return err
	}
	log.Debug("similarity index loaded", "records", n, "dims", s.dims)
	return nil
}

func (s *SQLiteStore) Insert(ctx context.Context, p InsertParams) (*model.MemoryRecord, error) {
	if err := vector.CheckDims(s.dims, p.Embedding); err != nil {
		return nil, err
	}
	attrsJSON, err := marshalAttributes(p.Attributes)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	id := s.ids.next(now)
	memoryType := p.MemoryType
	if memoryType == "" {
		memoryType = "fact"
	}
	emb := make([]float32, len(p.Embedding))
	copy(emb, p.Embedding)

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO records (id, text, embedding, memory_type, created_at, attributes)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		id, p.Text, vector.EncodeBlob(emb), memoryType, formatTime(now), attrsJSON)
	if err != nil {
		return nil, fmt.Errorf("insert record %s: %w", id, err)
	}

	if err := s.idx.Add(index.Entry{ID: id, Vector: emb, CreatedAt: now}); err != nil {
		// Keep row and index in step: an unindexed record would be durable
		// but unfindable by similarity.
		s.db.ExecContext(ctx, `DELETE FROM records WHERE id = ?`, id)
		return nil, fmt.Errorf("index record %s: %w", id, err)
	}

	return &model.MemoryRecord{
		ID:         id,
		Text:       p.Text,
		Embedding:  emb,
		MemoryType: memoryType,
		CreatedAt:  now,
		Attributes: p.Attributes,
	}, nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (*model.MemoryRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, text, embedding, memory_type, created_at, attributes FROM records WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &model.NotFoundError{ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("get record %s: %w", id, err)
	}
	return &rec, nil
}

func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM records WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete record %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete record %s: %w", id, err)
	}
	if n == 0 {
		return &model.NotFoundError{ID: id}
	}
	s.idx.Remove(id)
	return nil
}

func (s *SQLiteStore) Search(ctx context.Context, p SearchParams) ([]model.MatchResult, error) {
	if p.K <= 0 {
		return nil, &model.ValidationError{Field: "k", Reason: "must be positive"}
	}
	if err := vector.CheckDims(s.dims, p.Vector); err != nil {
		return nil, err
	}

	var allow index.Allowed
	if len(p.Predicates) > 0 {
		ids, err := s.candidateIDs(ctx, p.Predicates)
		if err != nil {
			return nil, fmt.Errorf("resolve predicates: %w", err)
		}
		if len(ids) == 0 {
			return []model.MatchResult{}, nil
		}
		allow = ids
		log.Debug("predicates resolved", "candidates", len(ids))
	}

	cands, err := s.idx.Search(p.Vector, p.K, p.Metric, allow)
	if err != nil {
		return nil, fmt.Errorf("rank candidates: %w", err)
	}
	cands = cutoff(cands, p.MaxDistance)
	if len(cands) == 0 {
		return []model.MatchResult{}, nil
	}
	return s.hydrate(ctx, cands, p.Metric)
}

// candidateIDs resolves the predicate set to eligible record ids, which the
// index then restricts ranking to.
func (s *SQLiteStore) candidateIDs(ctx context.Context, preds []model.Predicate) (index.Allowed, error) {
	where, args, err := compileSQLite(preds)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM records WHERE `+where, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := index.Allowed{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids[id] = struct{}{}
	}
	return ids, rows.Err()
}

// cutoff drops candidates farther than the optional distance bound. Fewer
// than k results, or none at all, is a valid outcome.
func cutoff(cands []index.Candidate, maxDistance *float64) []index.Candidate {
	if maxDistance == nil {
		return cands
	}
	kept := cands[:0]
	for _, c := range cands {
		if c.Distance <= *maxDistance {
			kept = append(kept, c)
		}
	}
	return kept
}

// hydrate loads full records for ranked candidates, preserving rank order.
func (s *SQLiteStore) hydrate(ctx context.Context, cands []index.Candidate, metric model.Metric) ([]model.MatchResult, error) {
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(cands)), ",")
	args := make([]any, len(cands))
	for i, c := range cands {
		args[i] = c.ID
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, text, embedding, memory_type, created_at, attributes FROM records WHERE id IN (`+placeholders+`)`,
		args...)
	if err != nil {
		return nil, fmt.Errorf("load matches: %w", err)
	}
	defer rows.Close()

	byID := make(map[string]model.MemoryRecord, len(cands))
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("load matches: %w", err)
		}
		byID[rec.ID] = rec
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load matches: %w", err)
	}

	results := make([]model.MatchResult, 0, len(cands))
	for _, c := range cands {
		rec, ok := byID[c.ID]
		if !ok {
			// Deleted between ranking and load; snapshot semantics allow
			// returning fewer.
			continue
		}
		results = append(results, model.MatchResult{
			Record:     rec,
			Similarity: vector.Similarity(metric, c.Distance),
			Distance:   c.Distance,
		})
	}
	return results, nil
}

func (s *SQLiteStore) Dims() int { return s.dims }

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row scanner) (model.MemoryRecord, error) {
	var rec model.MemoryRecord
	var blob []byte
	var createdAt string
	var attrs sql.NullString

	if err := row.Scan(&rec.ID, &rec.Text, &blob, &rec.MemoryType, &createdAt, &attrs); err != nil {
		return rec, err
	}

	vec, err := vector.DecodeBlob(blob)
	if err != nil {
		return rec, err
	}
	rec.Embedding = vec

	rec.CreatedAt, err = parseTime(createdAt)
	if err != nil {
		return rec, err
	}
	if attrs.Valid {
		if err := json.Unmarshal([]byte(attrs.String), &rec.Attributes); err != nil {
			return rec, err
		}
	}
	return rec, nil
}

// marshalAttributes validates scalars and serializes to JSON, nil for empty.
func marshalAttributes(attrs map[string]any) (*string, error) {
	if len(attrs) == 0 {
		return nil, nil
	}
	for k, v := range attrs {
		if !attrKeyRe.MatchString(k) {
			return nil, &model.ValidationError{Field: "attributes", Reason: fmt.Sprintf("bad key %q", k)}
		}
		if !model.ScalarAttribute(v) {
			return nil, &model.ValidationError{Field: "attributes", Reason: fmt.Sprintf("%s: value must be a scalar", k)}
		}
	}
	b, err := json.Marshal(attrs)
	if err != nil {
		return nil, fmt.Errorf("marshal attributes: %w", err)
	}
	js := string(b)
	return &js, nil
}
