// Package memory provides an in-memory implementation of both storage
// capabilities. It is intended for tests and demos; production deployments
// use the redis and mongo stores.
package memory

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/xraph/metered/credits"
	"github.com/xraph/metered/id"
	"github.com/xraph/metered/store"
	"github.com/xraph/metered/types"
	"github.com/xraph/metered/usage"
)

// Compile-time capability checks.
var (
	_ store.CounterStore   = (*Store)(nil)
	_ store.AggregateStore = (*Store)(nil)
)

type counterValue struct {
	value     string
	expiresAt time.Time
}

// Store implements store.CounterStore and store.AggregateStore with maps.
type Store struct {
	mu  sync.RWMutex
	now func() time.Time

	counters map[string]counterValue
	samples  map[string]*usage.Sample
	entries  []*credits.Entry
	idemKeys map[string]*credits.Entry
	rollups  map[string]id.RollupRunID
	closed   bool
}

// Option configures a Store.
type Option func(*Store)

// WithClock replaces the time source used for expiry checks. Tests use this
// to advance time without sleeping.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// New creates an empty in-memory store.
func New(opts ...Option) *Store {
	s := &Store{
		now:      time.Now,
		counters: make(map[string]counterValue),
		samples:  make(map[string]*usage.Sample),
		idemKeys: make(map[string]*credits.Entry),
		rollups:  make(map[string]id.RollupRunID),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func sampleKey(scopeID, feature string, window types.Window, at time.Time) string {
	return fmt.Sprintf("%s\x00%s\x00%s\x00%d", scopeID, feature, window, at.UTC().Unix())
}

func idemKey(tenantID, key string) string {
	return tenantID + "\x00" + key
}

func rollupKey(window types.Window, at time.Time) string {
	return fmt.Sprintf("%s\x00%d", window, at.UTC().Unix())
}

// expired reports whether a counter value is past its expiry. Callers hold
// at least the read lock.
func (s *Store) expired(v counterValue) bool {
	return !v.expiresAt.IsZero() && !s.now().Before(v.expiresAt)
}

// ──────────────────────────────────────────────────
// CounterStore
// ──────────────────────────────────────────────────

func (s *Store) IncrementWithExpiry(_ context.Context, key string, amount int64, ttl time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, store.ErrClosed
	}

	var current int64
	if v, ok := s.counters[key]; ok && !s.expired(v) {
		parsed, err := strconv.ParseInt(v.value, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("memory: %q holds non-integer value: %w", key, err)
		}
		current = parsed
	}

	current += amount
	s.counters[key] = counterValue{
		value:     strconv.FormatInt(current, 10),
		expiresAt: s.now().Add(ttl),
	}
	return current, nil
}

func (s *Store) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return "", false, store.ErrClosed
	}

	v, ok := s.counters[key]
	if !ok || s.expired(v) {
		return "", false, nil
	}
	return v.value, true, nil
}

func (s *Store) Set(_ context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return store.ErrClosed
	}

	s.counters[key] = counterValue{value: value, expiresAt: s.now().Add(ttl)}
	return nil
}

func (s *Store) SetIfAbsent(_ context.Context, key, value string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false, store.ErrClosed
	}

	if v, ok := s.counters[key]; ok && !s.expired(v) {
		return false, nil
	}
	s.counters[key] = counterValue{value: value, expiresAt: s.now().Add(ttl)}
	return true, nil
}

func (s *Store) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return store.ErrClosed
	}

	delete(s.counters, key)
	return nil
}

func (s *Store) Scan(_ context.Context, pattern string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, store.ErrClosed
	}

	keys := make([]string, 0)
	for key, v := range s.counters {
		if s.expired(v) {
			continue
		}
		matched, err := path.Match(pattern, key)
		if err != nil {
			return nil, fmt.Errorf("memory: bad scan pattern %q: %w", pattern, err)
		}
		if matched {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *Store) MultiGet(_ context.Context, keys []string) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, store.ErrClosed
	}

	result := make(map[string]string, len(keys))
	for _, key := range keys {
		if v, ok := s.counters[key]; ok && !s.expired(v) {
			result[key] = v.value
		}
	}
	return result, nil
}

// ──────────────────────────────────────────────────
// AggregateStore
// ──────────────────────────────────────────────────

func (s *Store) UpsertSampleIncrement(_ context.Context, scopeID, feature string, window types.Window, at time.Time, delta int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return store.ErrClosed
	}

	key := sampleKey(scopeID, feature, window, at)
	if existing, ok := s.samples[key]; ok {
		existing.Count += delta
		existing.Touch()
		return nil
	}

	s.samples[key] = &usage.Sample{
		Entity:  types.NewEntity(),
		ID:      id.NewUsageSampleID(),
		ScopeID: scopeID,
		Feature: feature,
		Window:  window,
		At:      at.UTC(),
		Count:   delta,
	}
	return nil
}

func (s *Store) FindSample(_ context.Context, scopeID, feature string, window types.Window, at time.Time) (*usage.Sample, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, store.ErrClosed
	}

	if sample, ok := s.samples[sampleKey(scopeID, feature, window, at)]; ok {
		cp := *sample
		return &cp, nil
	}
	return nil, store.ErrNotFound
}

func (s *Store) RangeSamples(_ context.Context, window types.Window, from, to time.Time) ([]*usage.Sample, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, store.ErrClosed
	}

	result := make([]*usage.Sample, 0)
	for _, sample := range s.samples {
		if sample.Window != window {
			continue
		}
		if sample.At.Before(from) || !sample.At.Before(to) {
			continue
		}
		cp := *sample
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].At.Before(result[j].At) })
	return result, nil
}

func (s *Store) PurgeSamples(_ context.Context, window types.Window, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, store.ErrClosed
	}

	var purged int64
	for key, sample := range s.samples {
		if sample.Window == window && sample.At.Before(before) {
			delete(s.samples, key)
			purged++
		}
	}
	return purged, nil
}

func (s *Store) InsertEntry(_ context.Context, e *credits.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return store.ErrClosed
	}

	key := idemKey(e.TenantID, e.IdemKey)
	if _, exists := s.idemKeys[key]; exists {
		return store.ErrAlreadyExists
	}

	cp := *e
	s.entries = append(s.entries, &cp)
	s.idemKeys[key] = &cp
	return nil
}

func (s *Store) FindEntryByIdemKey(_ context.Context, tenantID, key string) (*credits.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, store.ErrClosed
	}

	if e, ok := s.idemKeys[idemKey(tenantID, key)]; ok {
		cp := *e
		return &cp, nil
	}
	return nil, store.ErrNotFound
}

func (s *Store) ListEntries(_ context.Context, tenantID string, opts credits.ListOpts) ([]*credits.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, store.ErrClosed
	}

	result := make([]*credits.Entry, 0)
	for i := len(s.entries) - 1; i >= 0; i-- { // newest first
		e := s.entries[i]
		if e.TenantID != tenantID {
			continue
		}
		if opts.Type != "" && e.Type != opts.Type {
			continue
		}
		cp := *e
		result = append(result, &cp)
	}

	start := opts.Offset
	if start > len(result) {
		start = len(result)
	}
	end := start + opts.Limit
	if opts.Limit == 0 || end > len(result) {
		end = len(result)
	}
	return result[start:end], nil
}

func (s *Store) MarkRollup(_ context.Context, window types.Window, at time.Time, runID id.RollupRunID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false, store.ErrClosed
	}

	key := rollupKey(window, at)
	if _, done := s.rollups[key]; done {
		return false, nil
	}
	s.rollups[key] = runID
	return true, nil
}

// ──────────────────────────────────────────────────
// Lifecycle
// ──────────────────────────────────────────────────

func (s *Store) Migrate(_ context.Context) error { return nil }

func (s *Store) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return store.ErrClosed
	}
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	return nil
}
