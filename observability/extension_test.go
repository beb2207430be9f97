package observability

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/xraph/metered/credits"
	"github.com/xraph/metered/types"
	"github.com/xraph/metered/usage"
)

func TestMetricsExtensionUsage(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsExtension(reg)
	ctx := context.Background()

	if err := m.OnUsageIncremented(ctx, "acme", "ai.tokens", 120, 120); err != nil {
		t.Fatalf("OnUsageIncremented() error = %v", err)
	}
	if err := m.OnUsageIncremented(ctx, "globex", "ai.tokens", 30, 30); err != nil {
		t.Fatalf("OnUsageIncremented() error = %v", err)
	}
	if err := m.OnRateLimitExceeded(ctx, "acme", "ai.tokens", 101, time.Second); err != nil {
		t.Fatalf("OnRateLimitExceeded() error = %v", err)
	}

	if got := testutil.ToFloat64(m.UsageIncrements.WithLabelValues("ai.tokens")); got != 2 {
		t.Errorf("increments = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.UsageAmount.WithLabelValues("ai.tokens")); got != 150 {
		t.Errorf("amount = %v, want 150", got)
	}
	if got := testutil.ToFloat64(m.RateLimited.WithLabelValues("ai.tokens")); got != 1 {
		t.Errorf("rate limited = %v, want 1", got)
	}
}

func TestMetricsExtensionRollup(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsExtension(reg)
	ctx := context.Background()

	done := usage.RollupReport{Window: types.WindowHour, Groups: 3, Total: 400, Elapsed: 20 * time.Millisecond}
	skipped := usage.RollupReport{Window: types.WindowHour, Skipped: true}

	if err := m.OnRollupCompleted(ctx, done); err != nil {
		t.Fatalf("OnRollupCompleted() error = %v", err)
	}
	if err := m.OnRollupCompleted(ctx, skipped); err != nil {
		t.Fatalf("OnRollupCompleted() error = %v", err)
	}

	if got := testutil.ToFloat64(m.RollupRuns.WithLabelValues("hour")); got != 1 {
		t.Errorf("runs = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.RollupSkipped.WithLabelValues("hour")); got != 1 {
		t.Errorf("skipped = %v, want 1", got)
	}
}

func TestMetricsExtensionCredits(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsExtension(reg)
	ctx := context.Background()

	grant := &credits.Entry{Type: credits.TypeGrant, Amount: 1000}
	burn := &credits.Entry{Type: credits.TypeBurn, Amount: 250}

	if err := m.OnCreditsGranted(ctx, grant); err != nil {
		t.Fatalf("OnCreditsGranted() error = %v", err)
	}
	if err := m.OnCreditsBurned(ctx, burn); err != nil {
		t.Fatalf("OnCreditsBurned() error = %v", err)
	}

	if got := testutil.ToFloat64(m.CreditsGranted); got != 1000 {
		t.Errorf("granted = %v, want 1000", got)
	}
	if got := testutil.ToFloat64(m.CreditsBurned); got != 250 {
		t.Errorf("burned = %v, want 250", got)
	}
	if got := testutil.ToFloat64(m.LedgerEntries.WithLabelValues("grant")); got != 1 {
		t.Errorf("grant entries = %v, want 1", got)
	}
}
