package store

import (
	"context"
	"os"

	"github.com/recallmem/recall/internal/index"
)

// Stats holds store statistics.
type Stats struct {
	DBPath        string      `json:"db_path,omitempty"`
	DBSizeBytes   int64       `json:"db_size_bytes,omitempty"`
	Records       int         `json:"records"`
	Types         []TypeCount `json:"types,omitempty"`
	IndexKind     string      `json:"index_kind"`
	IndexEntries  int         `json:"index_entries"`
	EmbedderModel string      `json:"embedder_model"`
	Dims          int         `json:"dims"`
}

// Stats returns store statistics.
func (s *SQLiteStore) Stats(ctx context.Context) (*Stats, error) {
	st := &Stats{
		DBPath:        s.path,
		IndexKind:     indexKind(s.idx),
		IndexEntries:  s.idx.Len(),
		EmbedderModel: s.embMdl,
		Dims:          s.dims,
	}

	if info, err := os.Stat(s.path); err == nil {
		st.DBSizeBytes = info.Size()
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM records`).Scan(&st.Records); err != nil {
		return nil, err
	}

	types, err := s.Types(ctx)
	if err != nil {
		return nil, err
	}
	st.Types = types
	return st, nil
}

// Types lists distinct memory_type values with counts, most common first.
func (s *SQLiteStore) Types(ctx context.Context) ([]TypeCount, error) {
	rows, err := s.db.QueryContext(ctx, `
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

func indexKind(idx index.Index) string {
	switch i := idx.(type) {
	case *index.Auto:
		return "auto (" + i.Kind() + ")"
	case *index.Flat:
		return "flat"
	case *index.HNSW:
		return "hnsw"
	}
	return "unknown"
}
