package metered_test

import (
	"context"
	"testing"
	"time"

	"github.com/xraph/metered"
)

func TestRollupHourConservation(t *testing.T) {
	eng, _, clock := newTestEngine(t)
	hour := clock.Now().Truncate(time.Hour)

	// Spread increments across several minutes of the hour, for two scopes
	// and two features.
	writes := []struct {
		scope   string
		feature string
		minute  int
		amount  int64
	}{
		{"acme", "ai.tokens", 0, 100},
		{"acme", "ai.tokens", 5, 250},
		{"acme", "api.calls", 12, 7},
		{"globex", "ai.tokens", 30, 40},
		{"globex", "ai.tokens", 59, 3},
	}
	for _, w := range writes {
		ctx := scoped(w.scope)
		at := hour.Add(time.Duration(w.minute) * time.Minute)
		if _, err := eng.Increment(ctx, w.feature, w.amount, metered.WithOccurredAt(at)); err != nil {
			t.Fatalf("Increment() error = %v", err)
		}
	}

	report, err := eng.RollupHour(scoped("ops"), hour)
	if err != nil {
		t.Fatalf("RollupHour() error = %v", err)
	}
	if report.Skipped {
		t.Fatal("first rollup reported Skipped")
	}
	if report.Groups != 3 {
		t.Errorf("Groups = %d, want 3", report.Groups)
	}
	if report.Total != 400 {
		t.Errorf("Total = %d, want 400", report.Total)
	}
	if !report.At.Equal(hour) {
		t.Errorf("At = %s, want %s", report.At, hour)
	}

	// The hour samples carry the exact per-group sums.
	tests := []struct {
		scope   string
		feature string
		want    int64
	}{
		{"acme", "ai.tokens", 350},
		{"acme", "api.calls", 7},
		{"globex", "ai.tokens", 43},
	}
	for _, tt := range tests {
		got, err := eng.GetWindow(scoped(tt.scope), tt.feature, metered.WindowHour, hour)
		if err != nil {
			t.Fatalf("GetWindow() error = %v", err)
		}
		if got != tt.want {
			t.Errorf("hour count %s/%s = %d, want %d", tt.scope, tt.feature, got, tt.want)
		}
	}
}

func TestRollupHourAtScheduledTime(t *testing.T) {
	eng, _, clock := newTestEngine(t)
	ctx := scoped("acme")
	hour := clock.Now().Truncate(time.Hour)

	// Write mid-hour and at the hour's final minute, then advance to five
	// minutes past the next hour, where the default cron schedule fires.
	// The minute buckets must still be readable there.
	if _, err := eng.Increment(ctx, "ai.tokens", 100); err != nil {
		t.Fatalf("Increment() error = %v", err)
	}
	if _, err := eng.Increment(ctx, "ai.tokens", 40, metered.WithOccurredAt(hour.Add(59*time.Minute))); err != nil {
		t.Fatalf("Increment() error = %v", err)
	}

	fires := hour.Add(65 * time.Minute) // "5 * * * *" for the 10:00 hour
	clock.Advance(fires.Sub(clock.Now()))

	report, err := eng.RollupHour(scoped("ops"), clock.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("RollupHour() error = %v", err)
	}
	if report.Skipped {
		t.Fatal("rollup reported Skipped")
	}
	if report.Total != 140 {
		t.Errorf("Total = %d, want 140 (buckets must outlive their hour until the scheduled run)", report.Total)
	}

	got, err := eng.GetWindow(ctx, "ai.tokens", metered.WindowHour, hour)
	if err != nil {
		t.Fatalf("GetWindow() error = %v", err)
	}
	if got != 140 {
		t.Errorf("hour count = %d, want 140", got)
	}
}

func TestRollupHourRunsOnce(t *testing.T) {
	eng, _, clock := newTestEngine(t)
	hour := clock.Now().Truncate(time.Hour)

	if _, err := eng.Increment(scoped("acme"), "ai.tokens", 50); err != nil {
		t.Fatalf("Increment() error = %v", err)
	}

	first, err := eng.RollupHour(scoped("ops"), hour)
	if err != nil {
		t.Fatalf("RollupHour() error = %v", err)
	}
	if first.Skipped {
		t.Fatal("first rollup reported Skipped")
	}

	second, err := eng.RollupHour(scoped("ops"), hour)
	if err != nil {
		t.Fatalf("second RollupHour() error = %v", err)
	}
	if !second.Skipped {
		t.Fatal("second rollup did not report Skipped")
	}
	if second.Total != 0 || second.Groups != 0 {
		t.Errorf("skipped rollup wrote work: groups=%d total=%d", second.Groups, second.Total)
	}

	// The hour sample was not doubled.
	got, err := eng.GetWindow(scoped("acme"), "ai.tokens", metered.WindowHour, hour)
	if err != nil {
		t.Fatalf("GetWindow() error = %v", err)
	}
	if got != 50 {
		t.Errorf("hour count = %d, want 50", got)
	}
}

func TestRollupHourEmptyHour(t *testing.T) {
	eng, _, clock := newTestEngine(t)

	report, err := eng.RollupHour(scoped("ops"), clock.Now())
	if err != nil {
		t.Fatalf("RollupHour() error = %v", err)
	}
	if report.Skipped || report.Groups != 0 || report.Total != 0 {
		t.Errorf("empty hour report = %+v, want zero groups and total", report)
	}
}

func TestRollupDayConservation(t *testing.T) {
	eng, _, clock := newTestEngine(t)
	day := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)

	// Build three hours of the day through the hourly rollup, then fold
	// them into the day sample.
	hours := []struct {
		hour   int
		amount int64
	}{
		{2, 120},
		{10, 80},
		{23, 5},
	}
	for _, h := range hours {
		at := day.Add(time.Duration(h.hour) * time.Hour)
		if _, err := eng.Increment(scoped("acme"), "ai.tokens", h.amount, metered.WithOccurredAt(at)); err != nil {
			t.Fatalf("Increment() error = %v", err)
		}
		if _, err := eng.RollupHour(scoped("ops"), at); err != nil {
			t.Fatalf("RollupHour() error = %v", err)
		}
	}

	clock.Advance(24 * time.Hour)
	report, err := eng.RollupDay(scoped("ops"), day)
	if err != nil {
		t.Fatalf("RollupDay() error = %v", err)
	}
	if report.Skipped {
		t.Fatal("first day rollup reported Skipped")
	}
	if report.Groups != 1 {
		t.Errorf("Groups = %d, want 1", report.Groups)
	}
	if report.Total != 205 {
		t.Errorf("Total = %d, want 205", report.Total)
	}

	got, err := eng.GetWindow(scoped("acme"), "ai.tokens", metered.WindowDay, day)
	if err != nil {
		t.Fatalf("GetWindow() error = %v", err)
	}
	if got != 205 {
		t.Errorf("day count = %d, want 205 (sum of hour samples)", got)
	}
}

func TestRollupDayRunsOnce(t *testing.T) {
	eng, _, clock := newTestEngine(t)
	day := clock.Now()

	if _, err := eng.Increment(scoped("acme"), "ai.tokens", 9); err != nil {
		t.Fatalf("Increment() error = %v", err)
	}
	if _, err := eng.RollupHour(scoped("ops"), day); err != nil {
		t.Fatalf("RollupHour() error = %v", err)
	}

	if _, err := eng.RollupDay(scoped("ops"), day); err != nil {
		t.Fatalf("RollupDay() error = %v", err)
	}
	second, err := eng.RollupDay(scoped("ops"), day)
	if err != nil {
		t.Fatalf("second RollupDay() error = %v", err)
	}
	if !second.Skipped {
		t.Fatal("second day rollup did not report Skipped")
	}

	got, err := eng.GetWindow(scoped("acme"), "ai.tokens", metered.WindowDay, day)
	if err != nil {
		t.Fatalf("GetWindow() error = %v", err)
	}
	if got != 9 {
		t.Errorf("day count = %d, want 9", got)
	}
}

func TestPurgeSamples(t *testing.T) {
	eng, _, clock := newTestEngine(t)
	hour := clock.Now().Truncate(time.Hour)

	if _, err := eng.Increment(scoped("acme"), "ai.tokens", 5); err != nil {
		t.Fatalf("Increment() error = %v", err)
	}
	if _, err := eng.RollupHour(scoped("ops"), hour); err != nil {
		t.Fatalf("RollupHour() error = %v", err)
	}

	if _, err := eng.PurgeSamples(context.Background(), metered.WindowMinute, hour); err == nil {
		t.Error("PurgeSamples(minute) expected validation error")
	}

	removed, err := eng.PurgeSamples(scoped("ops"), metered.WindowHour, hour.Add(time.Hour))
	if err != nil {
		t.Fatalf("PurgeSamples() error = %v", err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}

	got, err := eng.GetWindow(scoped("acme"), "ai.tokens", metered.WindowHour, hour)
	if err != nil {
		t.Fatalf("GetWindow() error = %v", err)
	}
	if got != 0 {
		t.Errorf("hour count after purge = %d, want 0", got)
	}
}
