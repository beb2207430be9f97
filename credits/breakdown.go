package credits

import "time"

// ComputeTotals sums all non-expired grants and all burns for a set of
// entries belonging to one tenant. Available = grants - burns and may be
// negative: over-burning is allowed by design.
func ComputeTotals(entries []*Entry, now time.Time) Totals {
	var t Totals
	for _, e := range entries {
		switch e.Type {
		case TypeGrant:
			if !e.Expired(now) {
				t.Grants += e.Amount
			}
		case TypeBurn:
			t.Burns += e.Amount
		}
	}
	t.Available = t.Grants - t.Burns
	return t
}

// ComputeBreakdown partitions non-expired grants by reason into
// subscription, topup and a catch-all other bucket, then allocates total
// burns across the buckets in that fixed priority order. The amount drawn
// from each bucket is capped at the bucket's own grant total; leftover burns
// spill into the next bucket.
//
// The breakdown is presentation only. Its Total bucket is reconciled to the
// ledger totals, which remain the source of truth even when burns exceed the
// sum of all buckets.
func ComputeBreakdown(entries []*Entry, now time.Time) Breakdown {
	totals := ComputeTotals(entries, now)

	var b Breakdown
	for _, e := range entries {
		if e.Type != TypeGrant || e.Expired(now) {
			continue
		}
		switch e.Reason {
		case ReasonSubscription:
			b.Subscription.Grants += e.Amount
		case ReasonTopup:
			b.Topup.Grants += e.Amount
		default:
			b.Other.Grants += e.Amount
		}
	}

	remaining := totals.Burns
	for _, bucket := range []*Bucket{&b.Subscription, &b.Topup, &b.Other} {
		bucket.Burns = min(remaining, bucket.Grants)
		bucket.Available = bucket.Grants - bucket.Burns
		remaining -= bucket.Burns
	}

	b.Total = Bucket{
		Grants:    b.Subscription.Grants + b.Topup.Grants + b.Other.Grants,
		Burns:     b.Subscription.Burns + b.Topup.Burns + b.Other.Burns,
		Available: b.Subscription.Available + b.Topup.Available + b.Other.Available,
	}

	// The per-bucket caps absorb at most the sum of the bucket grants. When
	// burns exceed that, the ledger totals win.
	if b.Total.Available != totals.Available {
		b.Total = Bucket{
			Grants:    totals.Grants,
			Burns:     totals.Burns,
			Available: totals.Available,
		}
	}

	return b
}
