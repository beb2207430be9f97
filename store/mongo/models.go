package mongo

import (
	"time"

	"github.com/xraph/metered/credits"
	"github.com/xraph/metered/id"
	"github.com/xraph/metered/types"
	"github.com/xraph/metered/usage"
)

// ==================== Usage sample models ====================

type sampleModel struct {
	ID        string    `bson:"_id"`
	ScopeID   string    `bson:"scope_id"`
	Feature   string    `bson:"feature"`
	Window    string    `bson:"window"`
	At        time.Time `bson:"at"`
	Count     int64     `bson:"count"`
	CreatedAt time.Time `bson:"created_at"`
	UpdatedAt time.Time `bson:"updated_at"`
}

func fromSampleModel(m *sampleModel) (*usage.Sample, error) {
	sampleID, err := id.ParseUsageSampleID(m.ID)
	if err != nil {
		return nil, err
	}

	return &usage.Sample{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:      sampleID,
		ScopeID: m.ScopeID,
		Feature: m.Feature,
		Window:  types.Window(m.Window),
		At:      m.At.UTC(),
		Count:   m.Count,
	}, nil
}

// ==================== Ledger entry models ====================

type ledgerEntryModel struct {
	ID        string     `bson:"_id"`
	TenantID  string     `bson:"tenant_id"`
	Type      string     `bson:"type"`
	Amount    int64      `bson:"amount"`
	Reason    string     `bson:"reason,omitempty"`
	Feature   string     `bson:"feature,omitempty"`
	IdemKey   string     `bson:"idem_key"`
	ExpiresAt *time.Time `bson:"expires_at,omitempty"`
	CreatedAt time.Time  `bson:"created_at"`
	UpdatedAt time.Time  `bson:"updated_at"`
}

func toLedgerEntryModel(e *credits.Entry) *ledgerEntryModel {
	return &ledgerEntryModel{
		ID:        e.ID.String(),
		TenantID:  e.TenantID,
		Type:      string(e.Type),
		Amount:    e.Amount,
		Reason:    e.Reason,
		Feature:   e.Feature,
		IdemKey:   e.IdemKey,
		ExpiresAt: e.ExpiresAt,
		CreatedAt: e.CreatedAt,
		UpdatedAt: e.UpdatedAt,
	}
}

func fromLedgerEntryModel(m *ledgerEntryModel) (*credits.Entry, error) {
	entryID, err := id.ParseLedgerEntryID(m.ID)
	if err != nil {
		return nil, err
	}

	var expiresAt *time.Time
	if m.ExpiresAt != nil {
		t := m.ExpiresAt.UTC()
		expiresAt = &t
	}

	return &credits.Entry{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:        entryID,
		TenantID:  m.TenantID,
		Type:      credits.EntryType(m.Type),
		Amount:    m.Amount,
		Reason:    m.Reason,
		Feature:   m.Feature,
		IdemKey:   m.IdemKey,
		ExpiresAt: expiresAt,
	}, nil
}

// ==================== Rollup run models ====================

type rollupRunModel struct {
	// ID is "{window}:{unix window start}" so the primary key doubles as the
	// uniqueness constraint for completion markers.
	ID        string    `bson:"_id"`
	Window    string    `bson:"window"`
	At        time.Time `bson:"at"`
	RunID     string    `bson:"run_id"`
	CreatedAt time.Time `bson:"created_at"`
}
