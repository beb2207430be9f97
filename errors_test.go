package metered_test

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/xraph/metered"
)

func TestValidationErrorUnwrapsToInvalidInput(t *testing.T) {
	err := &metered.ValidationError{Field: "amount", Message: "must be a positive integer"}

	if !errors.Is(err, metered.ErrInvalidInput) {
		t.Error("ValidationError does not unwrap to ErrInvalidInput")
	}
	if !metered.IsValidation(err) {
		t.Error("IsValidation() = false")
	}
	if metered.IsValidation(fmt.Errorf("wrapped: %w", metered.ErrNotFound)) {
		t.Error("IsValidation() matched a not-found error")
	}
}

func TestErrorClassifiers(t *testing.T) {
	rle := &metered.RateLimitError{ScopeID: "acme", Feature: "ai.tokens", Count: 101, Limit: 100, RetryAfter: 30 * time.Second}

	tests := []struct {
		name        string
		err         error
		validation  bool
		rateLimited bool
		notFound    bool
		retryable   bool
	}{
		{"rate limit", rle, false, true, false, true},
		{"wrapped rate limit", fmt.Errorf("increment: %w", rle), false, true, false, true},
		{"validation", &metered.ValidationError{Field: "feature"}, true, false, false, false},
		{"not found", metered.ErrNotFound, false, false, true, false},
		{"no scope", metered.ErrNoScope, false, false, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := metered.IsValidation(tt.err); got != tt.validation {
				t.Errorf("IsValidation() = %v, want %v", got, tt.validation)
			}
			if got := metered.IsRateLimited(tt.err); got != tt.rateLimited {
				t.Errorf("IsRateLimited() = %v, want %v", got, tt.rateLimited)
			}
			if got := metered.IsNotFound(tt.err); got != tt.notFound {
				t.Errorf("IsNotFound() = %v, want %v", got, tt.notFound)
			}
			if got := metered.IsRetryable(tt.err); got != tt.retryable {
				t.Errorf("IsRetryable() = %v, want %v", got, tt.retryable)
			}
		})
	}
}

func TestRateLimitErrorMessage(t *testing.T) {
	rle := &metered.RateLimitError{ScopeID: "acme", Feature: "ai.tokens", Count: 101, Limit: 100, RetryAfter: 30 * time.Second}

	msg := rle.Error()
	for _, want := range []string{"acme", "ai.tokens", "101", "100", "30s"} {
		if !strings.Contains(msg, want) {
			t.Errorf("Error() = %q, missing %q", msg, want)
		}
	}
}
