// Package observability provides a metrics extension for Metered that
// records lifecycle event counts and latencies via Prometheus.
package observability

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/xraph/metered/credits"
	"github.com/xraph/metered/plugin"
	"github.com/xraph/metered/usage"
)

// Ensure MetricsExtension implements required interfaces.
var (
	_ plugin.Plugin              = (*MetricsExtension)(nil)
	_ plugin.OnInit              = (*MetricsExtension)(nil)
	_ plugin.OnUsageIncremented  = (*MetricsExtension)(nil)
	_ plugin.OnRateLimitExceeded = (*MetricsExtension)(nil)
	_ plugin.OnRollupCompleted   = (*MetricsExtension)(nil)
	_ plugin.OnCreditsGranted    = (*MetricsExtension)(nil)
	_ plugin.OnCreditsBurned     = (*MetricsExtension)(nil)
)

// MetricsExtension records system-wide lifecycle metrics.
// Register it as an engine plugin to automatically track metering activity.
//
// Labels stay low-cardinality on purpose: features label the usage series,
// but scope identifiers never do.
type MetricsExtension struct {
	// Usage metrics
	UsageIncrements *prometheus.CounterVec
	UsageAmount     *prometheus.CounterVec
	RateLimited     *prometheus.CounterVec

	// Rollup metrics
	RollupRuns    *prometheus.CounterVec
	RollupSkipped *prometheus.CounterVec
	RollupGroups  *prometheus.HistogramVec
	RollupLatency *prometheus.HistogramVec

	// Credits metrics
	CreditsGranted prometheus.Counter
	CreditsBurned  prometheus.Counter
	LedgerEntries  *prometheus.CounterVec
}

// NewMetricsExtension creates a MetricsExtension registering its collectors
// with the given registerer. Pass prometheus.DefaultRegisterer for the
// process-wide registry.
func NewMetricsExtension(reg prometheus.Registerer) *MetricsExtension {
	factory := promauto.With(reg)

	return &MetricsExtension{
		UsageIncrements: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "metered",
			Subsystem: "usage",
			Name:      "increments_total",
			Help:      "Accepted usage increments.",
		}, []string{"feature"}),
		UsageAmount: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "metered",
			Subsystem: "usage",
			Name:      "amount_total",
			Help:      "Sum of accepted usage amounts.",
		}, []string{"feature"}),
		RateLimited: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "metered",
			Subsystem: "usage",
			Name:      "rate_limited_total",
			Help:      "Increments rejected by the rate-limit guard.",
		}, []string{"feature"}),

		RollupRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "metered",
			Subsystem: "rollup",
			Name:      "runs_total",
			Help:      "Rollup runs that performed work.",
		}, []string{"window"}),
		RollupSkipped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "metered",
			Subsystem: "rollup",
			Name:      "skipped_total",
			Help:      "Rollup runs skipped because the window was already rolled up.",
		}, []string{"window"}),
		RollupGroups: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "metered",
			Subsystem: "rollup",
			Name:      "groups",
			Help:      "Distinct (scope, feature) groups aggregated per run.",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
		}, []string{"window"}),
		RollupLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "metered",
			Subsystem: "rollup",
			Name:      "duration_seconds",
			Help:      "Rollup run duration.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"window"}),

		CreditsGranted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "metered",
			Subsystem: "credits",
			Name:      "granted_total",
			Help:      "Sum of granted credit amounts.",
		}),
		CreditsBurned: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "metered",
			Subsystem: "credits",
			Name:      "burned_total",
			Help:      "Sum of burned credit amounts.",
		}),
		LedgerEntries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "metered",
			Subsystem: "credits",
			Name:      "entries_total",
			Help:      "Ledger entries written, by type.",
		}, []string{"type"}),
	}
}

// Name implements plugin.Plugin.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnInit implements plugin.OnInit.
func (m *MetricsExtension) OnInit(_ context.Context, _ interface{}) error {
	// No initialization needed
	return nil
}

// ──────────────────────────────────────────────────
// Usage hooks
// ──────────────────────────────────────────────────

// OnUsageIncremented implements plugin.OnUsageIncremented.
func (m *MetricsExtension) OnUsageIncremented(_ context.Context, _, feature string, amount, _ int64) error {
	m.UsageIncrements.WithLabelValues(feature).Inc()
	m.UsageAmount.WithLabelValues(feature).Add(float64(amount))
	return nil
}

// OnRateLimitExceeded implements plugin.OnRateLimitExceeded.
func (m *MetricsExtension) OnRateLimitExceeded(_ context.Context, _, feature string, _ int64, _ time.Duration) error {
	m.RateLimited.WithLabelValues(feature).Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Rollup hooks
// ──────────────────────────────────────────────────

// OnRollupCompleted implements plugin.OnRollupCompleted.
func (m *MetricsExtension) OnRollupCompleted(_ context.Context, report usage.RollupReport) error {
	window := string(report.Window)
	if report.Skipped {
		m.RollupSkipped.WithLabelValues(window).Inc()
		return nil
	}

	m.RollupRuns.WithLabelValues(window).Inc()
	m.RollupGroups.WithLabelValues(window).Observe(float64(report.Groups))
	m.RollupLatency.WithLabelValues(window).Observe(report.Elapsed.Seconds())
	return nil
}

// ──────────────────────────────────────────────────
// Credits hooks
// ──────────────────────────────────────────────────

// OnCreditsGranted implements plugin.OnCreditsGranted.
func (m *MetricsExtension) OnCreditsGranted(_ context.Context, entry *credits.Entry) error {
	m.CreditsGranted.Add(float64(entry.Amount))
	m.LedgerEntries.WithLabelValues(string(credits.TypeGrant)).Inc()
	return nil
}

// OnCreditsBurned implements plugin.OnCreditsBurned.
func (m *MetricsExtension) OnCreditsBurned(_ context.Context, entry *credits.Entry) error {
	m.CreditsBurned.Add(float64(entry.Amount))
	m.LedgerEntries.WithLabelValues(string(credits.TypeBurn)).Inc()
	return nil
}
