package store

import (
	"strings"
	"testing"
	"time"

	"github.com/recallmem/recall/internal/model"
)

func TestCompileSQLiteColumns(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	where, args, err := compileSQLite([]model.Predicate{
		{Field: "memory_type", Op: model.OpEq, Value: "fact"},
		{Field: "created_at", Op: model.OpGte, Value: at},
	})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if want := "memory_type = ? AND created_at >= ?"; where != want {
		t.Errorf("expected %q, got %q", want, where)
	}
	if len(args) != 2 {
		t.Fatalf("expected 2 args, got %d", len(args))
	}
	if args[1] != formatTime(at) {
		t.Errorf("created_at arg not normalized: %v", args[1])
	}
}

func TestCompileSQLiteAttributeTypeGuards(t *testing.T) {
	cases := []struct {
		name  string
		value any
		guard string
		arg   any
	}{
		{"string", "api", "('text')", "api"},
		{"bool", true, "('true','false')", int64(1)},
		{"int", 7, "('integer','real')", int64(7)},
		{"float", 2.5, "('integer','real')", 2.5},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			where, args, err := compileSQLite([]model.Predicate{
				{Field: "field", Op: model.OpEq, Value: tc.value},
			})
			if err != nil {
				t.Fatalf("compile: %v", err)
			}
			if !strings.Contains(where, tc.guard) {
				t.Errorf("expected type guard %s in %q", tc.guard, where)
			}
			if !strings.Contains(where, "json_extract(attributes, ?)") {
				t.Errorf("expected json_extract in %q", where)
			}
			// Two path args plus the value.
			if len(args) != 3 {
				t.Fatalf("expected 3 args, got %d", len(args))
			}
			if args[0] != "$.field" || args[1] != "$.field" {
				t.Errorf("expected JSON path args, got %v", args[:2])
			}
			if args[2] != tc.arg {
				t.Errorf("expected value arg %v (%T), got %v (%T)", tc.arg, tc.arg, args[2], args[2])
			}
		})
	}
}

func TestValidatePredicateRejections(t *testing.T) {
	cases := []struct {
		name string
		pred model.Predicate
	}{
		{"empty field", model.Predicate{Op: model.OpEq, Value: "x"}},
		{"unknown op", model.Predicate{Field: "price", Op: "between", Value: 1}},
		{"type range op", model.Predicate{Field: "memory_type", Op: model.OpGt, Value: "fact"}},
		{"type non-string", model.Predicate{Field: "memory_type", Op: model.OpEq, Value: 3}},
		{"bad timestamp", model.Predicate{Field: "created_at", Op: model.OpGt, Value: "yesterday"}},
		{"bad attr key", model.Predicate{Field: "no spaces", Op: model.OpEq, Value: "x"}},
		{"non-scalar value", model.Predicate{Field: "tags", Op: model.OpEq, Value: map[string]any{}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := validatePredicate(tc.pred); !model.IsValidation(err) {
				t.Errorf("expected ValidationError, got %v", err)
			}
		})
	}
}

func TestPredicateTimeForms(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	got, err := predicateTime(at)
	if err != nil || !got.Equal(at) {
		t.Errorf("time.Time form: %v, %v", got, err)
	}

	got, err = predicateTime("2026-03-01T12:00:00Z")
	if err != nil || !got.Equal(at) {
		t.Errorf("string form: %v, %v", got, err)
	}

	if _, err := predicateTime(12345); err == nil {
		t.Error("expected error for numeric timestamp")
	}
}
