// Package audithook bridges Metered lifecycle events to an audit trail
// backend.
//
// It defines a local Recorder interface so the package does not depend on a
// concrete audit system. Callers inject a RecorderFunc adapter that bridges
// to their backend at wiring time.
package audithook

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/metered/credits"
	"github.com/xraph/metered/plugin"
	"github.com/xraph/metered/usage"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin              = (*Extension)(nil)
	_ plugin.OnUsageIncremented  = (*Extension)(nil)
	_ plugin.OnRateLimitExceeded = (*Extension)(nil)
	_ plugin.OnRollupCompleted   = (*Extension)(nil)
	_ plugin.OnCreditsGranted    = (*Extension)(nil)
	_ plugin.OnCreditsBurned     = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement. It is
// defined locally so the package carries no backend dependency; callers
// inject the concrete recorder at wiring time.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is a backend-neutral representation of an audit event.
type AuditEvent struct {
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	Category   string         `json:"category"`
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Extension bridges Metered lifecycle events to an audit trail backend.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements plugin.Plugin.
func (e *Extension) Name() string { return "audit-hook" }

// ──────────────────────────────────────────────────
// Usage hooks
// ──────────────────────────────────────────────────

// OnUsageIncremented implements plugin.OnUsageIncremented.
func (e *Extension) OnUsageIncremented(ctx context.Context, scopeID, feature string, amount, total int64) error {
	return e.record(ctx, ActionUsageIncremented, SeverityInfo, OutcomeSuccess,
		ResourceUsage, scopeID, CategoryMetering, nil,
		"feature", feature,
		"amount", amount,
		"total", total,
	)
}

// OnRateLimitExceeded implements plugin.OnRateLimitExceeded.
func (e *Extension) OnRateLimitExceeded(ctx context.Context, scopeID, feature string, count int64, retryAfter time.Duration) error {
	return e.record(ctx, ActionRateLimited, SeverityWarning, OutcomeDenied,
		ResourceUsage, scopeID, CategoryAccess, nil,
		"feature", feature,
		"count", count,
		"retry_after", retryAfter.String(),
	)
}

// ──────────────────────────────────────────────────
// Rollup hooks
// ──────────────────────────────────────────────────

// OnRollupCompleted implements plugin.OnRollupCompleted.
func (e *Extension) OnRollupCompleted(ctx context.Context, report usage.RollupReport) error {
	action := ActionRollupCompleted
	if report.Skipped {
		action = ActionRollupSkipped
	}

	return e.record(ctx, action, SeverityInfo, OutcomeSuccess,
		ResourceRollup, report.RunID.String(), CategoryMetering, nil,
		"window", string(report.Window),
		"at", report.At,
		"groups", report.Groups,
		"total", report.Total,
	)
}

// ──────────────────────────────────────────────────
// Credits hooks
// ──────────────────────────────────────────────────

// OnCreditsGranted implements plugin.OnCreditsGranted.
func (e *Extension) OnCreditsGranted(ctx context.Context, entry *credits.Entry) error {
	return e.record(ctx, ActionCreditsGranted, SeverityInfo, OutcomeSuccess,
		ResourceLedger, entry.ID.String(), CategoryBilling, nil,
		"tenant_id", entry.TenantID,
		"amount", entry.Amount,
		"reason", entry.Reason,
	)
}

// OnCreditsBurned implements plugin.OnCreditsBurned.
func (e *Extension) OnCreditsBurned(ctx context.Context, entry *credits.Entry) error {
	return e.record(ctx, ActionCreditsBurned, SeverityInfo, OutcomeSuccess,
		ResourceLedger, entry.ID.String(), CategoryBilling, nil,
		"tenant_id", entry.TenantID,
		"amount", entry.Amount,
		"feature", entry.Feature,
	)
}

// record builds and emits a single audit event. Recorder failures are
// logged, never propagated: auditing must not fail the operation it
// observes.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audithook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}
