package metered

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/xraph/metered/types"
	"github.com/xraph/metered/usage"
)

type incrementOpts struct {
	occurredAt time.Time
	idemKey    string
}

// IncrementOption configures a single Increment call.
type IncrementOption func(*incrementOpts)

// WithOccurredAt counts the increment against the minute containing t
// instead of now. Late-arriving events land in their original bucket as long
// as that bucket has not expired.
func WithOccurredAt(t time.Time) IncrementOption {
	return func(o *incrementOpts) {
		o.occurredAt = t
	}
}

// WithIdempotencyKey makes the increment idempotent: repeated calls with the
// same key within the idempotency TTL perform the write once and replay the
// stored result.
func WithIdempotencyKey(key string) IncrementOption {
	return func(o *incrementOpts) {
		o.idemKey = key
	}
}

// Increment counts amount against the current minute bucket of
// (scope, feature) and returns the bucket's new total. The scope comes from
// the context; the rate-limit guard runs before any counter state is
// touched.
func (e *Engine) Increment(ctx context.Context, feature string, amount int64, opts ...IncrementOption) (usage.IncrementResult, error) {
	var o incrementOpts
	for _, opt := range opts {
		opt(&o)
	}

	scopeID, err := e.scope(ctx)
	if err != nil {
		return usage.IncrementResult{}, err
	}
	if feature == "" {
		return usage.IncrementResult{}, &ValidationError{Field: "feature", Message: "must not be empty"}
	}
	if amount <= 0 {
		return usage.IncrementResult{}, &ValidationError{Field: "amount", Message: "must be a positive integer"}
	}
	if amount > e.cfg.MaxIncrementAmount {
		return usage.IncrementResult{}, &ValidationError{
			Field:   "amount",
			Message: fmt.Sprintf("must not exceed %d", e.cfg.MaxIncrementAmount),
		}
	}

	// A replayed result short-circuits before the rate-limit guard: the
	// original call already consumed quota and a replay writes nothing.
	if o.idemKey != "" {
		if cached, ok, err := e.loadResult(ctx, idemResultKey(scopeID, o.idemKey)); err != nil {
			return usage.IncrementResult{}, err
		} else if ok {
			return cached, nil
		}
	}

	if err := e.checkRateLimit(ctx, scopeID, feature); err != nil {
		return usage.IncrementResult{}, err
	}

	occurredAt := o.occurredAt
	if occurredAt.IsZero() {
		occurredAt = e.now()
	}

	if o.idemKey == "" {
		return e.incrementMinute(ctx, scopeID, feature, amount, occurredAt)
	}

	return e.runIdempotent(ctx, scopeID, o.idemKey, func() (usage.IncrementResult, error) {
		return e.incrementMinute(ctx, scopeID, feature, amount, occurredAt)
	})
}

// incrementMinute performs the actual bucket write. The store's atomic
// increment-with-expiry is the only synchronization needed.
func (e *Engine) incrementMinute(ctx context.Context, scopeID, feature string, amount int64, occurredAt time.Time) (usage.IncrementResult, error) {
	bucket := types.WindowMinute.Truncate(occurredAt)

	// The bucket must stay readable until the hourly rollup has picked it
	// up, and that rollup fires a few minutes into the next hour. The expiry
	// therefore extends past the end of the bucket's hour by the configured
	// slack, which must exceed the rollup's scheduling delay.
	hourEnd := types.WindowHour.Truncate(bucket).Add(time.Hour)
	ttl := hourEnd.Sub(e.now()) + e.cfg.MinuteBucketSlack
	if ttl < e.cfg.MinuteBucketSlack {
		ttl = e.cfg.MinuteBucketSlack
	}

	total, err := e.counters.IncrementWithExpiry(ctx, types.MinuteKey(scopeID, feature, bucket), amount, ttl)
	if err != nil {
		return usage.IncrementResult{}, err
	}

	e.plugins.EmitUsageIncremented(ctx, scopeID, feature, amount, total)

	e.logger.Debug("usage incremented",
		"scope_id", scopeID,
		"feature", feature,
		"amount", amount,
		"total", total,
		"bucket", bucket,
	)

	return usage.IncrementResult{Total: total}, nil
}

// GetWindow returns the count for (scope, feature) in the window containing
// at (default now). Minute counts are read live from the counter store;
// hour and day counts come from the persisted samples. Absent or expired
// windows read as zero.
func (e *Engine) GetWindow(ctx context.Context, feature string, window types.Window, at time.Time) (int64, error) {
	scopeID, err := e.scope(ctx)
	if err != nil {
		return 0, err
	}
	if !window.Valid() {
		return 0, &ValidationError{Field: "window", Message: fmt.Sprintf("unknown window %q", window)}
	}
	if at.IsZero() {
		at = e.now()
	}

	if window == types.WindowMinute {
		value, ok, err := e.counters.Get(ctx, types.MinuteKey(scopeID, feature, window.Truncate(at)))
		if err != nil {
			return 0, err
		}
		if !ok {
			return 0, nil
		}

		count, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("metered: minute bucket holds non-integer value: %w", err)
		}
		return count, nil
	}

	sample, err := e.aggregates.FindSample(ctx, scopeID, feature, window, window.Truncate(at))
	if IsNotFound(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return sample.Count, nil
}
