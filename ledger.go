package metered

import (
	"context"
	"errors"
	"time"

	"github.com/xraph/metered/credits"
	"github.com/xraph/metered/id"
	"github.com/xraph/metered/types"
)

type grantOpts struct {
	expiresAt *time.Time
}

// GrantOption configures a single Grant call.
type GrantOption func(*grantOpts)

// WithExpiresAt bounds the validity of the granted credits. Expired grants
// no longer count toward the balance.
func WithExpiresAt(t time.Time) GrantOption {
	return func(o *grantOpts) {
		utc := t.UTC()
		o.expiresAt = &utc
	}
}

type burnOpts struct {
	reason string
}

// BurnOption configures a single Burn call.
type BurnOption func(*burnOpts)

// WithBurnReason attaches a free-text category to the burn entry.
func WithBurnReason(reason string) BurnOption {
	return func(o *burnOpts) {
		o.reason = reason
	}
}

// Grant appends a credit grant to the tenant's ledger. Repeated calls with
// the same idemKey write at most one entry; duplicates resolve to a deduped
// result, never an error.
func (e *Engine) Grant(ctx context.Context, amount int64, reason, idemKey string, opts ...GrantOption) (credits.WriteResult, error) {
	var o grantOpts
	for _, opt := range opts {
		opt(&o)
	}

	tenantID, err := e.scope(ctx)
	if err != nil {
		return credits.WriteResult{}, err
	}
	if amount <= 0 {
		return credits.WriteResult{}, &ValidationError{Field: "amount", Message: "must be a positive integer"}
	}
	if reason == "" {
		return credits.WriteResult{}, &ValidationError{Field: "reason", Message: "must not be empty"}
	}
	if idemKey == "" {
		return credits.WriteResult{}, &ValidationError{Field: "idemKey", Message: "must not be empty"}
	}

	entry := &credits.Entry{
		Entity:    types.NewEntity(),
		ID:        id.NewLedgerEntryID(),
		TenantID:  tenantID,
		Type:      credits.TypeGrant,
		Amount:    amount,
		Reason:    reason,
		IdemKey:   idemKey,
		ExpiresAt: o.expiresAt,
	}

	return e.appendEntry(ctx, entry)
}

// Burn appends a credit burn to the tenant's ledger. Burns are not bounded
// by available grants; a tenant may go into debt. Idempotency semantics
// match Grant.
func (e *Engine) Burn(ctx context.Context, amount int64, feature, idemKey string, opts ...BurnOption) (credits.WriteResult, error) {
	var o burnOpts
	for _, opt := range opts {
		opt(&o)
	}

	tenantID, err := e.scope(ctx)
	if err != nil {
		return credits.WriteResult{}, err
	}
	if amount <= 0 {
		return credits.WriteResult{}, &ValidationError{Field: "amount", Message: "must be a positive integer"}
	}
	if feature == "" {
		return credits.WriteResult{}, &ValidationError{Field: "feature", Message: "must not be empty"}
	}
	if idemKey == "" {
		return credits.WriteResult{}, &ValidationError{Field: "idemKey", Message: "must not be empty"}
	}

	entry := &credits.Entry{
		Entity:   types.NewEntity(),
		ID:       id.NewLedgerEntryID(),
		TenantID: tenantID,
		Type:     credits.TypeBurn,
		Amount:   amount,
		Feature:  feature,
		Reason:   o.reason,
		IdemKey:  idemKey,
	}

	return e.appendEntry(ctx, entry)
}

// appendEntry writes a prepared ledger entry at most once per
// (tenant, idem key). The short-lived lock collapses concurrent duplicate
// bursts into one writer; the store's uniqueness constraint catches the
// remaining race between the existence check and the insert.
func (e *Engine) appendEntry(ctx context.Context, entry *credits.Entry) (credits.WriteResult, error) {
	if !e.acquireLedgerLock(ctx, entry.TenantID, entry.IdemKey) {
		return e.dedupedResult(ctx, entry.TenantID, entry.IdemKey)
	}
	defer e.releaseLedgerLock(ctx, entry.TenantID, entry.IdemKey)

	existing, err := e.aggregates.FindEntryByIdemKey(ctx, entry.TenantID, entry.IdemKey)
	if err == nil {
		return credits.WriteResult{ID: existing.ID, Deduped: true}, nil
	}
	if !IsNotFound(err) {
		return credits.WriteResult{}, err
	}

	err = e.aggregates.InsertEntry(ctx, entry)
	if errors.Is(err, ErrAlreadyExists) {
		return e.dedupedResult(ctx, entry.TenantID, entry.IdemKey)
	}
	if err != nil {
		return credits.WriteResult{}, err
	}

	switch entry.Type {
	case credits.TypeGrant:
		e.plugins.EmitCreditsGranted(ctx, entry)
	case credits.TypeBurn:
		e.plugins.EmitCreditsBurned(ctx, entry)
	}

	e.logger.Debug("ledger entry written",
		"tenant_id", entry.TenantID,
		"type", entry.Type,
		"amount", entry.Amount,
		"id", entry.ID,
	)

	return credits.WriteResult{ID: entry.ID}, nil
}

// dedupedResult resolves a duplicate write to the prior entry's ID. When the
// winning writer's entry is not yet visible, the result is deduped with a
// nil ID: the duplicate submitter performed no side effect and must not
// pretend otherwise.
func (e *Engine) dedupedResult(ctx context.Context, tenantID, idemKey string) (credits.WriteResult, error) {
	existing, err := e.aggregates.FindEntryByIdemKey(ctx, tenantID, idemKey)
	if err == nil {
		return credits.WriteResult{ID: existing.ID, Deduped: true}, nil
	}
	if IsNotFound(err) {
		return credits.WriteResult{Deduped: true}, nil
	}
	return credits.WriteResult{}, err
}

// Balance returns the tenant's aggregate credit position: non-expired
// grants, burns, and their difference. The balance is always derived from
// the entries, never read from a stored total.
func (e *Engine) Balance(ctx context.Context) (credits.Totals, error) {
	tenantID, err := e.scope(ctx)
	if err != nil {
		return credits.Totals{}, err
	}

	entries, err := e.aggregates.ListEntries(ctx, tenantID, credits.ListOpts{})
	if err != nil {
		return credits.Totals{}, err
	}
	return credits.ComputeTotals(entries, e.now()), nil
}

// Breakdown partitions the tenant's balance by grant reason with burns
// allocated in subscription, topup, other priority order. See
// credits.ComputeBreakdown.
func (e *Engine) Breakdown(ctx context.Context) (credits.Breakdown, error) {
	tenantID, err := e.scope(ctx)
	if err != nil {
		return credits.Breakdown{}, err
	}

	entries, err := e.aggregates.ListEntries(ctx, tenantID, credits.ListOpts{})
	if err != nil {
		return credits.Breakdown{}, err
	}
	return credits.ComputeBreakdown(entries, e.now()), nil
}

// Entries lists the tenant's ledger entries, newest first.
func (e *Engine) Entries(ctx context.Context, opts credits.ListOpts) ([]*credits.Entry, error) {
	tenantID, err := e.scope(ctx)
	if err != nil {
		return nil, err
	}
	return e.aggregates.ListEntries(ctx, tenantID, opts)
}
