package metered_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/xraph/metered"
	"github.com/xraph/metered/credits"
	"github.com/xraph/metered/usage"
)

func TestScopeRoundTrip(t *testing.T) {
	ctx := metered.WithScope(context.Background(), "acme")

	got, ok := metered.ScopeFromContext(ctx)
	if !ok || got != "acme" {
		t.Errorf("ScopeFromContext() = %q, %v; want acme, true", got, ok)
	}

	if _, ok := metered.ScopeFromContext(context.Background()); ok {
		t.Error("ScopeFromContext() found a scope in an empty context")
	}
	if _, ok := metered.ScopeFromContext(metered.WithScope(context.Background(), "")); ok {
		t.Error("ScopeFromContext() accepted an empty scope")
	}
}

// recorderPlugin captures engine hook dispatches for assertions.
type recorderPlugin struct {
	mu          sync.Mutex
	incremented int
	rateLimited int
	rollups     []usage.RollupReport
	granted     []*credits.Entry
	burned      []*credits.Entry
}

func (p *recorderPlugin) Name() string { return "recorder" }

func (p *recorderPlugin) OnUsageIncremented(_ context.Context, _, _ string, _, _ int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.incremented++
	return nil
}

func (p *recorderPlugin) OnRateLimitExceeded(_ context.Context, _, _ string, _ int64, _ time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rateLimited++
	return nil
}

func (p *recorderPlugin) OnRollupCompleted(_ context.Context, report usage.RollupReport) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rollups = append(p.rollups, report)
	return nil
}

func (p *recorderPlugin) OnCreditsGranted(_ context.Context, entry *credits.Entry) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.granted = append(p.granted, entry)
	return nil
}

func (p *recorderPlugin) OnCreditsBurned(_ context.Context, entry *credits.Entry) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.burned = append(p.burned, entry)
	return nil
}

func TestEnginePluginDispatch(t *testing.T) {
	rec := &recorderPlugin{}
	cfg := metered.DefaultConfig()
	cfg.RateLimitMax = 1
	eng, _, clock := newTestEngine(t, metered.WithConfig(cfg), metered.WithPlugin(rec))
	ctx := scoped("acme")

	if _, err := eng.Increment(ctx, "ai.tokens", 5); err != nil {
		t.Fatalf("Increment() error = %v", err)
	}
	if _, err := eng.Increment(ctx, "ai.tokens", 5); !metered.IsRateLimited(err) {
		t.Fatalf("second Increment() error = %v, want rate limit", err)
	}
	if _, err := eng.RollupHour(ctx, clock.Now()); err != nil {
		t.Fatalf("RollupHour() error = %v", err)
	}
	if _, err := eng.Grant(ctx, 100, credits.ReasonTopup, "g1"); err != nil {
		t.Fatalf("Grant() error = %v", err)
	}
	if _, err := eng.Grant(ctx, 100, credits.ReasonTopup, "g1"); err != nil {
		t.Fatalf("repeat Grant() error = %v", err)
	}
	if _, err := eng.Burn(ctx, 40, "ai.tokens", "b1"); err != nil {
		t.Fatalf("Burn() error = %v", err)
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.incremented != 1 {
		t.Errorf("incremented hooks = %d, want 1", rec.incremented)
	}
	if rec.rateLimited != 1 {
		t.Errorf("rate limited hooks = %d, want 1", rec.rateLimited)
	}
	if len(rec.rollups) != 1 {
		t.Errorf("rollup hooks = %d, want 1", len(rec.rollups))
	}
	// The deduped grant must not refire the hook.
	if len(rec.granted) != 1 {
		t.Errorf("granted hooks = %d, want 1", len(rec.granted))
	}
	if len(rec.burned) != 1 {
		t.Errorf("burned hooks = %d, want 1", len(rec.burned))
	}
}
