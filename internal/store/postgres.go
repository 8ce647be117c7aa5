package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/recallmem/recall/internal/model"
	"github.com/recallmem/recall/internal/vector"
)

// PostgresStore implements Store on PostgreSQL with the pgvector extension.
// Predicates and ranking are pushed into the database: the WHERE clause
// restricts candidates before the vector operator orders them, and the
// database's own HNSW index carries large stores. Vectors are bound as typed
// parameters, never rendered to strings.
type PostgresStore struct {
	pool   *pgxpool.Pool
	ids    *idGen
	dims   int
	embMdl string
	iopts  IndexOptions
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore connects to dsn, ensures the schema and the vector index,
// and pins the embedder model and dimension.
func NewPostgresStore(ctx context.Context, dsn string, opts Options) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	s := &PostgresStore{
		pool:   pool,
		ids:    newIDGen(),
		dims:   opts.Dims,
		embMdl: opts.EmbedderModel,
		iopts:  opts.Index,
	}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	if err := s.pinEmbedder(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	log.Debug("postgres store ready", "dims", s.dims, "metric", s.iopts.Metric)
	return s, nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `CREATE EXTENSION IF NOT EXISTS vector`); err != nil {
		return fmt.Errorf("enable vector extension: %w", err)
	}

	schema := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS records (
		id          TEXT PRIMARY KEY,
		text        TEXT NOT NULL,
		embedding   vector(%d) NOT NULL,
		memory_type TEXT NOT NULL DEFAULT 'fact',
		created_at  TIMESTAMPTZ NOT NULL,
		attributes  JSONB
	);
	CREATE TABLE IF NOT EXISTS store_meta (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_records_type ON records(memory_type);
	CREATE INDEX IF NOT EXISTS idx_records_created ON records(created_at DESC);
	`, s.dims)
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return err
	}

	m := s.iopts.M
	if m <= 0 {
		m = 16
	}
	efc := s.iopts.EfConstruction
	if efc <= 0 {
		efc = 64
	}
	ddl := fmt.Sprintf(
		`CREATE INDEX IF NOT EXISTS idx_records_embedding ON records USING hnsw (embedding %s) WITH (m = %d, ef_construction = %d)`,
		opClass(s.iopts.Metric), m, efc)
	_, err := s.pool.Exec(ctx, ddl)
	return err
}

func (s *PostgresStore) pinEmbedder(ctx context.Context) error {
	var storedModel string
	err := s.pool.QueryRow(ctx, `SELECT value FROM store_meta WHERE key = 'embedder_model'`).Scan(&storedModel)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		_, err = s.pool.Exec(ctx,
			`INSERT INTO store_meta (key, value) VALUES ('embedder_model', $1), ('embedder_dims', $2)`,
			s.embMdl, strconv.Itoa(s.dims))
		if err != nil {
			return fmt.Errorf("pin embedder: %w", err)
		}
		return nil
	case err != nil:
		return fmt.Errorf("read embedder pin: %w", err)
	}

	var storedDims string
	if err := s.pool.QueryRow(ctx, `SELECT value FROM store_meta WHERE key = 'embedder_dims'`).Scan(&storedDims); err != nil {
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

func (s *PostgresStore) Insert(ctx context.Context, p InsertParams) (*model.MemoryRecord, error) {
	if err := vector.CheckDims(s.dims, p.Embedding); err != nil {
		return nil, err
	}
	attrs, err := attributesJSON(p.Attributes)
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

	_, err = s.pool.Exec(ctx,
		`INSERT INTO records (id, text, embedding, memory_type, created_at, attributes)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		id, p.Text, pgvector.NewVector(emb), memoryType, now, attrs)
	if err != nil {
		return nil, fmt.Errorf("insert record %s: %w", id, err)
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

func (s *PostgresStore) Get(ctx context.Context, id string) (*model.MemoryRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, text, embedding, memory_type, created_at, attributes FROM records WHERE id = $1`, id)
	rec, err := scanPGRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &model.NotFoundError{ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("get record %s: %w", id, err)
	}
	return &rec, nil
}

func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM records WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete record %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return &model.NotFoundError{ID: id}
	}
	return nil
}

func (s *PostgresStore) Search(ctx context.Context, p SearchParams) ([]model.MatchResult, error) {
	if p.K <= 0 {
		return nil, &model.ValidationError{Field: "k", Reason: "must be positive"}
	}
	if err := vector.CheckDims(s.dims, p.Vector); err != nil {
		return nil, err
	}
	metric := p.Metric
	if metric == "" {
		metric = model.MetricCosine
	}
	if !model.ValidMetrics[metric] {
		return nil, &model.ValidationError{Field: "metric", Reason: fmt.Sprintf("unknown metric %q", metric)}
	}

	args := []any{pgvector.NewVector(p.Vector)}
	where, preArgs, err := compilePostgres(p.Predicates, 2)
	if err != nil {
		return nil, err
	}
	args = append(args, preArgs...)

	op := distanceOp(metric)
	q := fmt.Sprintf(
		`SELECT id, text, embedding, memory_type, created_at, attributes, embedding %s $1 AS distance FROM records`, op)
	if where != "" {
		q += " WHERE " + where
	}
	q += fmt.Sprintf(" ORDER BY embedding %s $1 LIMIT $%d", op, len(args)+1)
	args = append(args, p.K)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL hnsw.ef_search = %d", pgEfSearch(p.K, s.iopts.TargetAccuracy))); err != nil {
		return nil, fmt.Errorf("set search beam: %w", err)
	}

	rows, err := tx.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("rank candidates: %w", err)
	}
	defer rows.Close()

	var results []model.MatchResult
	for rows.Next() {
		var rec model.MemoryRecord
		var emb pgvector.Vector
		var attrsRaw []byte
		var createdAt time.Time
		var distance float64
		if err := rows.Scan(&rec.ID, &rec.Text, &emb, &rec.MemoryType, &createdAt, &attrsRaw, &distance); err != nil {
			return nil, fmt.Errorf("scan match: %w", err)
		}
		rec.Embedding = emb.Slice()
		rec.CreatedAt = createdAt.UTC()
		if len(attrsRaw) > 0 {
			if err := json.Unmarshal(attrsRaw, &rec.Attributes); err != nil {
				return nil, fmt.Errorf("scan match: %w", err)
			}
		}
		results = append(results, model.MatchResult{
			Record:     rec,
			Similarity: vector.Similarity(metric, distance),
			Distance:   distance,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rank candidates: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	// The database orders by distance alone; make ties deterministic the
	// same way the in-process index does.
	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.Distance != b.Distance {
			return a.Distance < b.Distance
		}
		if !a.Record.CreatedAt.Equal(b.Record.CreatedAt) {
			return a.Record.CreatedAt.After(b.Record.CreatedAt)
		}
		return a.Record.ID > b.Record.ID
	})

	if p.MaxDistance != nil {
		kept := results[:0]
		for _, r := range results {
			if r.Distance <= *p.MaxDistance {
				kept = append(kept, r)
			}
		}
		results = kept
	}
	if results == nil {
		results = []model.MatchResult{}
	}
	return results, nil
}

func (s *PostgresStore) Types(ctx context.Context) ([]TypeCount, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT memory_type, COUNT(*) AS cnt
		FROM records
		GROUP BY memory_type ORDER BY cnt DESC, memory_type`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TypeCount
	for rows.Next() {
		var tc TypeCount
		if err := rows.Scan(&tc.Type, &tc.Count); err != nil {
			return nil, err
		}
		out = append(out, tc)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Stats(ctx context.Context) (*Stats, error) {
	st := &Stats{
		IndexKind:     "pgvector hnsw",
		EmbedderModel: s.embMdl,
		Dims:          s.dims,
	}
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM records`).Scan(&st.Records); err != nil {
		return nil, err
	}
	st.IndexEntries = st.Records
	s.pool.QueryRow(ctx, `SELECT pg_total_relation_size('records')`).Scan(&st.DBSizeBytes)

	types, err := s.Types(ctx)
	if err != nil {
		return nil, err
	}
	st.Types = types
	return st, nil
}

func (s *PostgresStore) ExportAll(ctx context.Context) ([]model.MemoryRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, text, embedding, memory_type, created_at, attributes FROM records ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []model.MemoryRecord
	for rows.Next() {
		rec, err := scanPGRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (s *PostgresStore) Import(ctx context.Context, rec model.MemoryRecord) error {
	if rec.ID == "" {
		return &model.ValidationError{Field: "id", Reason: "missing"}
	}
	if err := vector.CheckDims(s.dims, rec.Embedding); err != nil {
		return err
	}
	attrs, err := attributesJSON(rec.Attributes)
	if err != nil {
		return err
	}

	memoryType := rec.MemoryType
	if memoryType == "" {
		memoryType = "fact"
	}
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO records (id, text, embedding, memory_type, created_at, attributes)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		rec.ID, rec.Text, pgvector.NewVector(rec.Embedding), memoryType, createdAt.UTC(), attrs)
	if err != nil {
		return fmt.Errorf("import record %s: %w", rec.ID, err)
	}
	return nil
}

func (s *PostgresStore) Dims() int { return s.dims }

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

type pgScanner interface {
	Scan(dest ...any) error
}

func scanPGRecord(row pgScanner) (model.MemoryRecord, error) {
	var rec model.MemoryRecord
	var emb pgvector.Vector
	var attrs []byte
	var createdAt time.Time

	if err := row.Scan(&rec.ID, &rec.Text, &emb, &rec.MemoryType, &createdAt, &attrs); err != nil {
		return rec, err
	}
	rec.Embedding = emb.Slice()
	rec.CreatedAt = createdAt.UTC()
	if len(attrs) > 0 {
		if err := json.Unmarshal(attrs, &rec.Attributes); err != nil {
			return rec, err
		}
	}
	return rec, nil
}

// compilePostgres renders predicates as a WHERE clause with $n placeholders
// starting at startArg. Attribute comparisons are guarded by jsonb_typeof so
// a record carrying a different value type is excluded instead of failing
// the whole query on a cast.
func compilePostgres(preds []model.Predicate, startArg int) (string, []any, error) {
	where := make([]string, 0, len(preds))
	args := make([]any, 0, len(preds))
	n := startArg

	for _, p := range preds {
		if err := validatePredicate(p); err != nil {
			return "", nil, err
		}
		op := sqlOps[p.Op]
		switch p.Field {
		case "memory_type":
			where = append(where, fmt.Sprintf("memory_type %s $%d", op, n))
			args = append(args, p.Value)
			n++
		case "created_at":
			t, _ := predicateTime(p.Value)
			where = append(where, fmt.Sprintf("created_at %s $%d", op, n))
			args = append(args, t.UTC())
			n++
		default:
			switch v := p.Value.(type) {
			case string:
				where = append(where, fmt.Sprintf(
					"(CASE WHEN jsonb_typeof(attributes->$%d) = 'string' THEN attributes->>$%d END) %s $%d", n, n, op, n+1))
				args = append(args, p.Field, v)
				n += 2
			case bool:
				where = append(where, fmt.Sprintf(
					"(CASE WHEN jsonb_typeof(attributes->$%d) = 'boolean' THEN (attributes->>$%d)::boolean END) %s $%d", n, n, op, n+1))
				args = append(args, p.Field, v)
				n += 2
			default:
				where = append(where, fmt.Sprintf(
					"(CASE WHEN jsonb_typeof(attributes->$%d) = 'number' THEN (attributes->>$%d)::numeric END) %s $%d", n, n, op, n+1))
				args = append(args, p.Field, toFloat(v))
				n += 2
			}
		}
	}
	return strings.Join(where, " AND "), args, nil
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case float64:
		return n
	}
	return 0
}

func attributesJSON(attrs map[string]any) ([]byte, error) {
	js, err := marshalAttributes(attrs)
	if err != nil || js == nil {
		return nil, err
	}
	return []byte(*js), nil
}

func opClass(m model.Metric) string {
	switch m {
	case model.MetricEuclidean:
		return "vector_l2_ops"
	case model.MetricDot:
		return "vector_ip_ops"
	default:
		return "vector_cosine_ops"
	}
}

func distanceOp(m model.Metric) string {
	switch m {
	case model.MetricEuclidean:
		return "<->"
	case model.MetricDot:
		return "<#>"
	default:
		return "<=>"
	}
}

// pgEfSearch maps the target accuracy knob to pgvector's beam width, the
// same way the in-process graph index does. pgvector caps hnsw.ef_search at
// 1000.
func pgEfSearch(k int, accuracy float64) int {
	if accuracy <= 0 {
		accuracy = 0.95
	}
	if accuracy >= 1 {
		accuracy = 0.999
	}
	ef := int(float64(k) / (1 - accuracy))
	if ef < 32 {
		ef = 32
	}
	if ef > 1000 {
		ef = 1000
	}
	return ef
}
