// Package credits defines the append-only grant/burn ledger model and the
// balance and breakdown algorithms derived from it.
//
// Balance is always computed from the entries, never stored as a running
// total. Burns are not bounded by available grants: a tenant can go into
// debt, and the breakdown merely caps presentation buckets.
package credits

import (
	"time"

	"github.com/xraph/metered/id"
	"github.com/xraph/metered/types"
)

// EntryType distinguishes credit additions from consumption.
type EntryType string

const (
	TypeGrant EntryType = "grant"
	TypeBurn  EntryType = "burn"
)

// Well-known grant reasons. Any other reason falls into the "other"
// breakdown bucket.
const (
	ReasonSubscription = "subscription"
	ReasonTopup        = "topup"
	ReasonUsage        = "usage"
)

// Entry is one immutable ledger row. Entries are created once via grant or
// burn and never mutated or deleted. At most one entry exists per
// (TenantID, IdemKey).
type Entry struct {
	types.Entity
	ID       id.LedgerEntryID `json:"id" bson:"_id"`
	TenantID string           `json:"tenant_id" bson:"tenant_id"`
	Type     EntryType        `json:"type" bson:"type"`
	// Amount is a positive integer in minor-unit credits.
	Amount  int64  `json:"amount" bson:"amount"`
	Reason  string `json:"reason,omitempty" bson:"reason,omitempty"`
	Feature string `json:"feature,omitempty" bson:"feature,omitempty"`
	IdemKey string `json:"idem_key" bson:"idem_key"`
	// ExpiresAt bounds the validity of a grant. Nil means the grant never
	// expires. Burns carry no expiry.
	ExpiresAt *time.Time `json:"expires_at,omitempty" bson:"expires_at,omitempty"`
}

// Expired reports whether a grant entry has expired at the given instant.
func (e *Entry) Expired(now time.Time) bool {
	return e.Type == TypeGrant && e.ExpiresAt != nil && !e.ExpiresAt.After(now)
}

// Totals is the aggregate credit position of a tenant.
type Totals struct {
	Grants    int64 `json:"grants"`
	Burns     int64 `json:"burns"`
	Available int64 `json:"available"`
}

// Bucket reports the position of one grant-reason partition.
type Bucket struct {
	Grants    int64 `json:"grants"`
	Burns     int64 `json:"burns"`
	Available int64 `json:"available"`
}

// Breakdown partitions a tenant's balance by grant reason. Burns are
// allocated across buckets in priority order; Total always reconciles with
// the ledger totals.
type Breakdown struct {
	Total        Bucket `json:"total"`
	Subscription Bucket `json:"subscription"`
	Topup        Bucket `json:"topup"`
	Other        Bucket `json:"other"`
}

// WriteResult is returned by grant and burn operations.
type WriteResult struct {
	ID id.LedgerEntryID `json:"id"`
	// Deduped is true when the idempotency key matched a prior entry and no
	// new row was written.
	Deduped bool `json:"deduped,omitempty"`
}

// ListOpts controls entry listing.
type ListOpts struct {
	// Type filters to grants or burns when set.
	Type EntryType
	// Limit bounds the result set; zero means no limit.
	Limit int
	// Offset skips the first entries.
	Offset int
}
