package model

import (
	"errors"
	"fmt"
)

// ValidationError reports malformed caller input: empty or oversized text, a
// non-positive k, an unknown metric or operator. The request is never
// retried; the caller has to fix it.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Reason
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Reason)
}

// EmbeddingError wraps a failure from the embedding provider. The text was
// acceptable; the provider call did not succeed. Retryable.
type EmbeddingError struct {
	Provider string
	Err      error
}

func (e *EmbeddingError) Error() string {
	return fmt.Sprintf("embedding (%s): %v", e.Provider, e.Err)
}

func (e *EmbeddingError) Unwrap() error { return e.Err }

// DimensionMismatchError reports a vector whose dimension disagrees with the
// store's. This is configuration or version skew; the operation fails closed
// and no padding or truncation is ever attempted.
type DimensionMismatchError struct {
	Want int
	Got  int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("dimension mismatch: store expects %d, got %d", e.Want, e.Got)
}

// NotFoundError reports a lookup of an id that is absent or already deleted.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("record not found: %s", e.ID)
}

// TimeoutError reports a deadline or cancellation hit while embedding or
// talking to the store. Distinct from EmbeddingError so callers can retry
// with a longer budget instead of treating the provider as broken.
type TimeoutError struct {
	Op  string
	Err error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s: timed out: %v", e.Op, e.Err)
}

func (e *TimeoutError) Unwrap() error { return e.Err }

// IsNotFound reports whether err is (or wraps) a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
