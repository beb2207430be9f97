package metered

import (
	"errors"
	"fmt"
	"time"

	"github.com/xraph/metered/store"
)

// Sentinel errors for common failure scenarios. The store contract errors
// are re-exported so callers rarely need to import the store package.
var (
	// ErrNotFound is returned by lookups when no row or key exists.
	ErrNotFound = store.ErrNotFound
	// ErrAlreadyExists is returned by inserts violating a uniqueness
	// constraint. Ledger writes never surface it; they resolve it to a
	// deduped result.
	ErrAlreadyExists = store.ErrAlreadyExists
	// ErrStoreClosed is returned by operations on a closed store.
	ErrStoreClosed = store.ErrClosed

	// ErrNoScope is returned when an operation's context carries no scope
	// identifier. See WithScope.
	ErrNoScope = errors.New("metered: no scope in context")
	// ErrInvalidInput is the base error for all validation failures.
	ErrInvalidInput = errors.New("metered: invalid input")
)

// ValidationError represents a validation failure with details.
// It unwraps to ErrInvalidInput.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("metered: validation failed for %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrInvalidInput }

// RateLimitError is returned when the fixed-window call guard rejects an
// increment. It is retryable: RetryAfter is the remaining window.
type RateLimitError struct {
	ScopeID    string
	Feature    string
	Count      int64
	Limit      int64
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("metered: rate limit exceeded for %s/%s: %d calls (limit %d), retry after %s",
		e.ScopeID, e.Feature, e.Count, e.Limit, e.RetryAfter)
}

// IsValidation returns true for non-retryable input validation failures.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}

// IsRateLimited returns true if the error is a rate-limit rejection.
func IsRateLimited(err error) bool {
	var rle *RateLimitError
	return errors.As(err, &rle)
}

// IsNotFound returns true if the error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsRetryable returns true if the error is temporary and the operation can
// be retried. Store-layer failures bubble unmodified and are retryable at
// the caller's discretion; they are not classified here.
func IsRetryable(err error) bool {
	return IsRateLimited(err)
}
