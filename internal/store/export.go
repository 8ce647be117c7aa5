package store

import (
	"context"
	"fmt"
	"time"

	"github.com/recallmem/recall/internal/index"
	"github.com/recallmem/recall/internal/model"
	"github.com/recallmem/recall/internal/vector"
)

// ExportAll returns every record ordered by id, embeddings included, so a
// dump can be re-imported without re-embedding.
func (s *SQLiteStore) ExportAll(ctx context.Context) ([]model.MemoryRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, text, embedding, memory_type, created_at, attributes FROM records ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []model.MemoryRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Import restores one exported record, keeping its id and created_at. The
// embedding must match the pinned dimension; importing a dump produced under
// a different embedder fails rather than mixing vector spaces.
func (s *SQLiteStore) Import(ctx context.Context, rec model.MemoryRecord) error {
	if rec.ID == "" {
		return &model.ValidationError{Field: "id", Reason: "missing"}
	}
	if err := vector.CheckDims(s.dims, rec.Embedding); err != nil {
		return err
	}
	attrsJSON, err := marshalAttributes(rec.Attributes)
	if err != nil {
		return err
	}

	memoryType := rec.MemoryType
	if memoryType == "" {
		memoryType = "fact"
	}
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO records (id, text, embedding, memory_type, created_at, attributes)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Text, vector.EncodeBlob(rec.Embedding), memoryType, formatTime(createdAt), attrsJSON)
	if err != nil {
		return fmt.Errorf("import record %s: %w", rec.ID, err)
	}

	if err := s.idx.Add(index.Entry{ID: rec.ID, Vector: rec.Embedding, CreatedAt: createdAt.UTC()}); err != nil {
		s.db.ExecContext(ctx, `DELETE FROM records WHERE id = ?`, rec.ID)
		return fmt.Errorf("index record %s: %w", rec.ID, err)
	}
	return nil
}
