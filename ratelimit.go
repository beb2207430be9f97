package metered

import (
	"context"
	"fmt"
)

// checkRateLimit enforces the fixed-window call guard for (scope, feature).
// The window is epoch-aligned, so the key carries the window start and the
// counter resets naturally when the window rolls over. Over-limit calls get
// a RateLimitError whose RetryAfter is the remaining window.
func (e *Engine) checkRateLimit(ctx context.Context, scopeID, feature string) error {
	window := e.cfg.RateLimitWindow
	now := e.now()
	windowStart := now.Truncate(window)

	key := fmt.Sprintf("ratelimit:%s:%s:%d", scopeID, feature, windowStart.Unix())
	count, err := e.counters.IncrementWithExpiry(ctx, key, 1, window)
	if err != nil {
		return err
	}

	if count <= e.cfg.RateLimitMax {
		return nil
	}

	retryAfter := windowStart.Add(window).Sub(now)
	e.plugins.EmitRateLimitExceeded(ctx, scopeID, feature, count, retryAfter)

	e.logger.Warn("rate limit exceeded",
		"scope_id", scopeID,
		"feature", feature,
		"count", count,
		"limit", e.cfg.RateLimitMax,
	)

	return &RateLimitError{
		ScopeID:    scopeID,
		Feature:    feature,
		Count:      count,
		Limit:      e.cfg.RateLimitMax,
		RetryAfter: retryAfter,
	}
}
