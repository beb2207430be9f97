// Package usage defines the windowed usage counting model.
//
// Usage is counted per (scope, feature) at three granularities. Minute counts
// are transient and live only in the fast counter store; hour and day counts
// are persisted as Samples by the rollup pipeline.
package usage

import (
	"time"

	"github.com/xraph/metered/id"
	"github.com/xraph/metered/types"
)

// Sample is one persisted usage aggregate for a (scope, feature, window, at)
// tuple. At is the UTC start of the window, truncated to the window
// granularity. The store de-duplicates samples via upsert, so for a fixed
// tuple there is exactly one logical row.
type Sample struct {
	types.Entity
	ID      id.UsageSampleID `json:"id" bson:"_id"`
	ScopeID string           `json:"scope_id" bson:"scope_id"`
	Feature string           `json:"feature" bson:"feature"`
	Window  types.Window     `json:"window" bson:"window"`
	At      time.Time        `json:"at" bson:"at"`
	Count   int64            `json:"count" bson:"count"`
}

// Key identifies a (scope, feature) pair inside a rollup group.
type Key struct {
	ScopeID string
	Feature string
}

// RollupReport summarizes one rollup run.
type RollupReport struct {
	RunID  id.RollupRunID `json:"run_id"`
	Window types.Window   `json:"window"`
	// At is the UTC start of the window that was rolled up.
	At time.Time `json:"at"`
	// Groups is the number of distinct (scope, feature) pairs aggregated.
	Groups int `json:"groups"`
	// Total is the sum of all counts folded into the target window.
	Total int64 `json:"total"`
	// Skipped is true when a completion marker showed the window was already
	// rolled up and the run wrote nothing.
	Skipped bool          `json:"skipped,omitempty"`
	Elapsed time.Duration `json:"elapsed"`
}

// IncrementResult is returned by a counter increment.
type IncrementResult struct {
	// Total is the running count of the minute bucket after the increment.
	Total int64 `json:"total"`
	// Deduped is true when an idempotency key short-circuited the write and
	// Total reflects the originally stored result.
	Deduped bool `json:"deduped,omitempty"`
}
