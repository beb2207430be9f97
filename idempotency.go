package metered

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/xraph/metered/usage"
)

// Idempotency records and locks live in the counter store under these
// prefixes, scoped per tenant so keys cannot collide across scopes.
func idemResultKey(scopeID, key string) string {
	return fmt.Sprintf("idem:result:%s:%s", scopeID, key)
}

func idemLockKey(scopeID, key string) string {
	return fmt.Sprintf("idem:lock:%s:%s", scopeID, key)
}

func ledgerLockKey(tenantID, key string) string {
	return fmt.Sprintf("ledger:lock:%s:%s", tenantID, key)
}

// runIdempotent guarantees at-most-once execution of fn for a given
// (scope, idempotency key). The winning call stores its serialized result;
// repeated calls replay it with Deduped set. Concurrent duplicates that lose
// the lock race do not block: they re-check for a stored result and, if it
// is not yet visible, return a bare deduped outcome without having performed
// the side effect.
func (e *Engine) runIdempotent(ctx context.Context, scopeID, key string, fn func() (usage.IncrementResult, error)) (usage.IncrementResult, error) {
	resultKey := idemResultKey(scopeID, key)

	if cached, ok, err := e.loadResult(ctx, resultKey); err != nil {
		return usage.IncrementResult{}, err
	} else if ok {
		return cached, nil
	}

	lockKey := idemLockKey(scopeID, key)
	won, err := e.counters.SetIfAbsent(ctx, lockKey, "1", e.cfg.LockTTL)
	if err != nil {
		return usage.IncrementResult{}, err
	}
	if !won {
		// A concurrent duplicate holds the lock. Its result may already be
		// visible; otherwise report the dedupe without a side effect.
		if cached, ok, err := e.loadResult(ctx, resultKey); err != nil {
			return usage.IncrementResult{}, err
		} else if ok {
			return cached, nil
		}
		return usage.IncrementResult{Deduped: true}, nil
	}

	result, err := fn()
	if err != nil {
		// Release the lock so a retry with the same key can win.
		_ = e.counters.Delete(ctx, lockKey) //nolint:errcheck // the lock expires on its own
		return usage.IncrementResult{}, err
	}

	e.storeResult(ctx, resultKey, result)
	_ = e.counters.Delete(ctx, lockKey) //nolint:errcheck // the lock expires on its own

	return result, nil
}

func (e *Engine) loadResult(ctx context.Context, resultKey string) (usage.IncrementResult, bool, error) {
	raw, ok, err := e.counters.Get(ctx, resultKey)
	if err != nil || !ok {
		return usage.IncrementResult{}, false, err
	}

	var result usage.IncrementResult
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return usage.IncrementResult{}, false, fmt.Errorf("metered: corrupt idempotency record: %w", err)
	}
	result.Deduped = true
	return result, true, nil
}

// storeResult caches a result for replay. Failure to cache is logged, not
// surfaced: the side effect already happened and the caller gets its result.
func (e *Engine) storeResult(ctx context.Context, resultKey string, result usage.IncrementResult) {
	raw, err := json.Marshal(usage.IncrementResult{Total: result.Total})
	if err != nil {
		e.logger.Warn("failed to encode idempotency record", "key", resultKey, "error", err)
		return
	}
	if err := e.counters.Set(ctx, resultKey, string(raw), e.cfg.IdempotencyTTL); err != nil {
		e.logger.Warn("failed to store idempotency record", "key", resultKey, "error", err)
	}
}

// acquireLedgerLock takes the short-lived exclusive lock for a
// (tenant, idempotency key) ledger write. Lock-acquisition failures are not
// errors: the caller falls back to the dedupe path.
func (e *Engine) acquireLedgerLock(ctx context.Context, tenantID, idemKey string) bool {
	won, err := e.counters.SetIfAbsent(ctx, ledgerLockKey(tenantID, idemKey), "1", e.cfg.LockTTL)
	if err != nil {
		e.logger.Warn("ledger lock unavailable, treating as duplicate",
			"tenant_id", tenantID, "error", err)
		return false
	}
	return won
}

func (e *Engine) releaseLedgerLock(ctx context.Context, tenantID, idemKey string) {
	_ = e.counters.Delete(ctx, ledgerLockKey(tenantID, idemKey)) //nolint:errcheck // the lock expires on its own
}
