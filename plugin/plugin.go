// Package plugin provides an extensible plugin system for Metered.
// Plugins can hook into lifecycle events to extend functionality; event
// emission is fire-and-forget, so a failing plugin never fails the operation
// that triggered it.
package plugin

import (
	"context"
	"time"

	"github.com/xraph/metered/credits"
	"github.com/xraph/metered/usage"
)

// Plugin is the base interface that all plugins must implement.
type Plugin interface {
	Name() string
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called when the plugin is initialized.
type OnInit interface {
	Plugin
	OnInit(ctx context.Context, engine interface{}) error
}

// OnShutdown is called when the plugin is shutting down.
type OnShutdown interface {
	Plugin
	OnShutdown(ctx context.Context) error
}

// ──────────────────────────────────────────────────
// Usage hooks
// ──────────────────────────────────────────────────

// OnUsageIncremented is called after a minute bucket increment succeeds.
type OnUsageIncremented interface {
	Plugin
	OnUsageIncremented(ctx context.Context, scopeID, feature string, amount, total int64) error
}

// OnRateLimitExceeded is called when an increment is rejected by the rate
// limiter.
type OnRateLimitExceeded interface {
	Plugin
	OnRateLimitExceeded(ctx context.Context, scopeID, feature string, count int64, retryAfter time.Duration) error
}

// OnRollupCompleted is called after a rollup run finishes, including runs
// skipped because the window was already rolled up.
type OnRollupCompleted interface {
	Plugin
	OnRollupCompleted(ctx context.Context, report usage.RollupReport) error
}

// ──────────────────────────────────────────────────
// Credits hooks
// ──────────────────────────────────────────────────

// OnCreditsGranted is called after a new grant entry is written. Deduped
// grants do not fire the hook.
type OnCreditsGranted interface {
	Plugin
	OnCreditsGranted(ctx context.Context, entry *credits.Entry) error
}

// OnCreditsBurned is called after a new burn entry is written. Deduped burns
// do not fire the hook.
type OnCreditsBurned interface {
	Plugin
	OnCreditsBurned(ctx context.Context, entry *credits.Entry) error
}
