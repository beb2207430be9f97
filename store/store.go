// Package store defines the storage capabilities consumed by Metered.
//
// Two capabilities back the engine. CounterStore is a fast key-value store
// with atomic increments and expiry (Redis in production); it holds minute
// buckets, rate-limit counters, idempotency records and locks. AggregateStore
// is a durable document store (MongoDB in production); it holds hour/day
// usage samples, ledger entries and rollup completion markers.
//
// Timeouts and retries against the underlying engines are the responsibility
// of the implementations; the engine performs no internal retry loop.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/xraph/metered/credits"
	"github.com/xraph/metered/id"
	"github.com/xraph/metered/types"
	"github.com/xraph/metered/usage"
)

// Contract errors shared by all implementations.
var (
	// ErrNotFound is returned by lookups when no row or key exists.
	ErrNotFound = errors.New("store: not found")
	// ErrAlreadyExists is returned by inserts that violate a uniqueness
	// constraint, such as a duplicate (tenant, idem key) ledger entry.
	ErrAlreadyExists = errors.New("store: already exists")
	// ErrClosed is returned by operations on a closed store.
	ErrClosed = errors.New("store: closed")
)

// CounterStore is the fast counter capability. All operations are single
// round-trips; increments are linearizable per key.
type CounterStore interface {
	// IncrementWithExpiry atomically adds amount to the integer value at key
	// and sets the key's expiry to ttl. It returns the post-increment total.
	IncrementWithExpiry(ctx context.Context, key string, amount int64, ttl time.Duration) (int64, error)

	// Get returns the value at key. ok is false when the key is absent or
	// expired.
	Get(ctx context.Context, key string) (value string, ok bool, err error)

	// Set stores value at key with the given expiry.
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// SetIfAbsent stores value at key with the given expiry only if the key
	// does not exist. It reports whether the write happened.
	SetIfAbsent(ctx context.Context, key, value string, ttl time.Duration) (bool, error)

	// Delete removes a key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// Scan returns all keys matching a glob-style pattern.
	Scan(ctx context.Context, pattern string) ([]string, error)

	// MultiGet returns the values of the given keys. Absent keys are simply
	// missing from the result map.
	MultiGet(ctx context.Context, keys []string) (map[string]string, error)

	// Ping verifies connectivity.
	Ping(ctx context.Context) error

	// Close releases resources.
	Close() error
}

// AggregateStore is the durable aggregate capability.
type AggregateStore interface {
	// UpsertSampleIncrement adds delta to the sample identified by
	// (scopeID, feature, window, at), creating the sample if absent.
	UpsertSampleIncrement(ctx context.Context, scopeID, feature string, window types.Window, at time.Time, delta int64) error

	// FindSample returns the sample for the exact tuple, or ErrNotFound.
	FindSample(ctx context.Context, scopeID, feature string, window types.Window, at time.Time) (*usage.Sample, error)

	// RangeSamples returns every sample of the given window granularity,
	// across all scopes and features, whose At satisfies from <= At < to.
	RangeSamples(ctx context.Context, window types.Window, from, to time.Time) ([]*usage.Sample, error)

	// PurgeSamples removes samples of the given granularity older than
	// before and reports how many were removed.
	PurgeSamples(ctx context.Context, window types.Window, before time.Time) (int64, error)

	// InsertEntry appends a ledger entry. It returns ErrAlreadyExists when an
	// entry with the same (TenantID, IdemKey) already exists.
	InsertEntry(ctx context.Context, e *credits.Entry) error

	// FindEntryByIdemKey returns the entry for (tenantID, idemKey), or
	// ErrNotFound.
	FindEntryByIdemKey(ctx context.Context, tenantID, idemKey string) (*credits.Entry, error)

	// ListEntries returns a tenant's ledger entries, newest first.
	ListEntries(ctx context.Context, tenantID string, opts credits.ListOpts) ([]*credits.Entry, error)

	// MarkRollup records that runID rolled up the window starting at the
	// given instant. It reports true when this run claimed the window and
	// false when an earlier run already did.
	MarkRollup(ctx context.Context, window types.Window, at time.Time, runID id.RollupRunID) (bool, error)

	// Migrate creates collections, indexes and constraints.
	Migrate(ctx context.Context) error

	// Ping verifies connectivity.
	Ping(ctx context.Context) error

	// Close releases resources.
	Close() error
}
