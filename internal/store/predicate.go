package store

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/recallmem/recall/internal/model"
)

var sqlOps = map[model.Op]string{
	model.OpEq:  "=",
	model.OpNe:  "!=",
	model.OpGt:  ">",
	model.OpGte: ">=",
	model.OpLt:  "<",
	model.OpLte: "<=",
}

var attrKeyRe = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// validatePredicate rejects malformed predicates before they reach SQL.
func validatePredicate(p model.Predicate) error {
	if p.Field == "" {
		return &model.ValidationError{Field: "predicates", Reason: "empty field"}
	}
	if _, ok := sqlOps[p.Op]; !ok {
		return &model.ValidationError{Field: "predicates", Reason: fmt.Sprintf("unknown operator %q", p.Op)}
	}
	switch p.Field {
	case "memory_type":
		if _, ok := p.Value.(string); !ok {
			return &model.ValidationError{Field: "predicates", Reason: "memory_type wants a string value"}
		}
		if p.Op != model.OpEq && p.Op != model.OpNe {
			return &model.ValidationError{Field: "predicates", Reason: "memory_type supports eq and ne only"}
		}
	case "created_at":
		if _, err := predicateTime(p.Value); err != nil {
			return err
		}
	default:
		if !attrKeyRe.MatchString(p.Field) {
			return &model.ValidationError{Field: "predicates", Reason: fmt.Sprintf("bad attribute key %q", p.Field)}
		}
		if !model.ScalarAttribute(p.Value) {
			return &model.ValidationError{Field: "predicates", Reason: fmt.Sprintf("%s: value must be a scalar", p.Field)}
		}
	}
	return nil
}

// predicateTime accepts a time.Time or an RFC 3339 string.
func predicateTime(v any) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t, nil
	case string:
		parsed, err := time.Parse(time.RFC3339Nano, t)
		if err != nil {
			return time.Time{}, &model.ValidationError{Field: "predicates", Reason: fmt.Sprintf("created_at: %v", err)}
		}
		return parsed, nil
	}
	return time.Time{}, &model.ValidationError{Field: "predicates", Reason: "created_at wants a timestamp"}
}

// compileSQLite turns predicates into a WHERE clause over the records table.
// memory_type and created_at map to columns; any other field reads from the
// attributes JSON. A predicate on an attribute a record does not carry, or
// carries with a different value type, excludes that record. The json_type
// guard matters because SQLite otherwise orders values by storage class, so
// an ungated numeric comparison would match every text-valued attribute.
func compileSQLite(preds []model.Predicate) (string, []any, error) {
	where := make([]string, 0, len(preds))
	args := make([]any, 0, len(preds))
	for _, p := range preds {
		if err := validatePredicate(p); err != nil {
			return "", nil, err
		}
		op := sqlOps[p.Op]
		switch p.Field {
		case "memory_type":
			where = append(where, "memory_type "+op+" ?")
			args = append(args, p.Value)
		case "created_at":
			t, _ := predicateTime(p.Value)
			where = append(where, "created_at "+op+" ?")
			args = append(args, formatTime(t))
		default:
			path := "$." + p.Field
			where = append(where,
				"(json_type(attributes, ?) IN "+jsonTypes(p.Value)+" AND json_extract(attributes, ?) "+op+" ?)")
			args = append(args, path, path, normalizeScalar(p.Value))
		}
	}
	return strings.Join(where, " AND "), args, nil
}

// jsonTypes lists the json_type() names compatible with the predicate value.
// SQLite reports booleans as 'true'/'false'.
func jsonTypes(v any) string {
	switch v.(type) {
	case string:
		return "('text')"
	case bool:
		return "('true','false')"
	}
	return "('integer','real')"
}

// normalizeScalar maps Go values onto what json_extract yields: booleans
// become 0/1 and ints widen to int64.
func normalizeScalar(v any) any {
	switch b := v.(type) {
	case bool:
		if b {
			return int64(1)
		}
		return int64(0)
	case int:
		return int64(b)
	}
	return v
}
