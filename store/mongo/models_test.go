package mongo

import (
	"testing"
	"time"

	"github.com/xraph/metered/credits"
	"github.com/xraph/metered/id"
	"github.com/xraph/metered/types"
)

func TestLedgerEntryModelRoundTrip(t *testing.T) {
	expires := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	entry := &credits.Entry{
		Entity:    types.NewEntity(),
		ID:        id.NewLedgerEntryID(),
		TenantID:  "acme",
		Type:      credits.TypeGrant,
		Amount:    1000,
		Reason:    credits.ReasonSubscription,
		IdemKey:   "invoice-42",
		ExpiresAt: &expires,
	}

	got, err := fromLedgerEntryModel(toLedgerEntryModel(entry))
	if err != nil {
		t.Fatalf("fromLedgerEntryModel() error = %v", err)
	}

	if got.ID != entry.ID {
		t.Errorf("ID = %s, want %s", got.ID, entry.ID)
	}
	if got.TenantID != entry.TenantID || got.Type != entry.Type || got.Amount != entry.Amount {
		t.Errorf("entry = %+v, want %+v", got, entry)
	}
	if got.ExpiresAt == nil || !got.ExpiresAt.Equal(expires) {
		t.Errorf("ExpiresAt = %v, want %v", got.ExpiresAt, expires)
	}
}

func TestLedgerEntryModelRejectsForeignID(t *testing.T) {
	m := toLedgerEntryModel(&credits.Entry{
		ID:       id.NewLedgerEntryID(),
		TenantID: "acme",
		Type:     credits.TypeBurn,
		Amount:   10,
		IdemKey:  "b1",
	})
	m.ID = id.NewUsageSampleID().String()

	if _, err := fromLedgerEntryModel(m); err == nil {
		t.Error("fromLedgerEntryModel() accepted a sample ID")
	}
}

func TestSampleModelConversion(t *testing.T) {
	at := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	m := &sampleModel{
		ID:        id.NewUsageSampleID().String(),
		ScopeID:   "acme",
		Feature:   "ai.tokens",
		Window:    string(types.WindowHour),
		At:        at.In(time.FixedZone("JST", 9*3600)),
		Count:     350,
		CreatedAt: at,
		UpdatedAt: at,
	}

	got, err := fromSampleModel(m)
	if err != nil {
		t.Fatalf("fromSampleModel() error = %v", err)
	}
	if got.Window != types.WindowHour || got.Count != 350 {
		t.Errorf("sample = %+v", got)
	}
	if !got.At.Equal(at) || got.At.Location() != time.UTC {
		t.Errorf("At = %v, want %v in UTC", got.At, at)
	}
}
