package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/recallmem/recall/internal/model"
)

// coerceAttrs turns --attr key=value pairs into typed scalars.
func coerceAttrs(raw map[string]string) map[string]any {
	if len(raw) == 0 {
		return nil
	}
	attrs := make(map[string]any, len(raw))
	for k, v := range raw {
		attrs[k] = coerceScalar(v)
	}
	return attrs
}

// coerceScalar tries integer, then float, then bool, then falls back to the
// raw string. Integer before bool so "1" stays a number.
func coerceScalar(v string) any {
	if n, err := strconv.ParseInt(v, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return f
	}
	if b, err := strconv.ParseBool(v); err == nil {
		return b
	}
	return v
}

// parsePredicates parses --where clauses of the form field:op:value, e.g.
// "project:eq:api" or "created_at:gt:2026-03-01T00:00:00Z". The value keeps
// any further colons, so timestamps pass through intact.
func parsePredicates(clauses []string) ([]model.Predicate, error) {
	if len(clauses) == 0 {
		return nil, nil
	}
	preds := make([]model.Predicate, 0, len(clauses))
	for _, c := range clauses {
		parts := strings.SplitN(c, ":", 3)
		if len(parts) != 3 || parts[0] == "" || parts[1] == "" {
			return nil, fmt.Errorf("bad --where clause %q (want field:op:value)", c)
		}
		field, op, raw := parts[0], parts[1], parts[2]

		var value any = raw
		if field != "memory_type" && field != "created_at" {
			value = coerceScalar(raw)
		}
		preds = append(preds, model.Predicate{Field: field, Op: model.Op(op), Value: value})
	}
	return preds, nil
}
