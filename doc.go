// Package metered provides a usage metering and credits engine for
// multi-tenant Go applications.
//
// Metered is designed as a library, not a service. Import it directly into
// your application and wire it to your own stores. It provides:
//
//   - Windowed usage counters at minute, hour and day granularity
//   - A fixed-window rate-limit guard on the increment path
//   - An idempotent rollup pipeline folding minutes into hours and days
//   - An append-only credits ledger with idempotent grants and burns
//   - Balance and per-reason breakdown derived purely from ledger entries
//   - Extension hooks for audit trails and metrics
//
// # Quick Start
//
// Create an engine over the two store capabilities. Production deployments
// pair the redis counter store with the mongo aggregate store; tests and
// demos use the in-memory store, which implements both:
//
//	import (
//	    "github.com/xraph/metered"
//	    "github.com/xraph/metered/store/memory"
//	)
//
//	st := memory.New()
//	eng := metered.New(st, st, metered.WithScheduledRollups())
//
//	if err := eng.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer eng.Stop()
//
// # Core Concepts
//
// Every operation runs under a scope (tenant) carried by the context. The
// engine never resolves tenancy itself:
//
//	ctx = metered.WithScope(ctx, "acme")
//
// Usage is counted per (scope, feature) into the current minute bucket:
//
//	res, err := eng.Increment(ctx, "ai.tokens", 120)
//
// and read back at any granularity:
//
//	count, err := eng.GetWindow(ctx, "ai.tokens", metered.WindowHour, at)
//
// Credits are granted and burned through the append-only ledger. Both
// operations take an idempotency key and write at most one entry per
// (tenant, key):
//
//	_, err := eng.Grant(ctx, 10_000, credits.ReasonSubscription, "invoice-42")
//	_, err = eng.Burn(ctx, 4_000, "ai.tokens", "req-9000")
//
//	totals, err := eng.Balance(ctx) // grants, burns, available
//
// # Rollups
//
// Minute buckets are transient; the rollup pipeline persists them as hour
// samples, and hour samples as day samples. With WithScheduledRollups the
// engine runs both on a cron schedule a few minutes into each window,
// targeting the previous one. Rollups are run-once per window via completion
// markers, so a crashed scheduler can be restarted safely.
//
// # TypeID
//
// All entities use TypeID for globally unique, type-safe identifiers:
//
//	lent_01h2xcejqtf2nbrexx3vqjhp41  // Ledger entry ID
//	samp_01h455vb4pex5vsknk084sn02q  // Usage sample ID
//	roll_01h455vb4pex5vsknk084sn02q  // Rollup run ID
//
// TypeIDs are K-sortable, giving entities a natural time ordering in
// database indexes.
package metered
