// Package mongo implements the durable aggregate capability on MongoDB.
//
// Upsert-with-increment maps to a $inc update with upsert, range queries to
// indexed finds on (window, at), and the ledger's idempotency constraint to a
// unique index on (tenant_id, idem_key).
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/metered/credits"
	"github.com/xraph/metered/id"
	"github.com/xraph/metered/store"
	"github.com/xraph/metered/types"
	"github.com/xraph/metered/usage"
)

// Collection name constants.
const (
	colSamples    = "metered_usage_samples"
	colEntries    = "metered_ledger_entries"
	colRollupRuns = "metered_rollup_runs"
)

var _ store.AggregateStore = (*Store)(nil)

// Store implements store.AggregateStore on a MongoDB database.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
}

// New wraps an existing MongoDB client. Close disconnects it.
func New(client *mongo.Client, database string) *Store {
	return &Store{
		client: client,
		db:     client.Database(database),
	}
}

// Connect dials MongoDB and returns a ready store.
func Connect(ctx context.Context, uri, database string) (*Store, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo: connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("mongo: ping: %w", err)
	}
	return New(client, database), nil
}

// ──────────────────────────────────────────────────
// Usage samples
// ──────────────────────────────────────────────────

func (s *Store) UpsertSampleIncrement(ctx context.Context, scopeID, feature string, window types.Window, at time.Time, delta int64) error {
	at = at.UTC()
	now := time.Now().UTC()

	filter := bson.M{
		"scope_id": scopeID,
		"feature":  feature,
		"window":   string(window),
		"at":       at,
	}
	update := bson.M{
		"$inc": bson.M{"count": delta},
		"$set": bson.M{"updated_at": now},
		"$setOnInsert": bson.M{
			"_id":        id.NewUsageSampleID().String(),
			"scope_id":   scopeID,
			"feature":    feature,
			"window":     string(window),
			"at":         at,
			"created_at": now,
		},
	}

	_, err := s.db.Collection(colSamples).UpdateOne(ctx, filter, update, options.UpdateOne().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("mongo: upsert sample %s/%s@%s: %w", scopeID, feature, at, err)
	}
	return nil
}

func (s *Store) FindSample(ctx context.Context, scopeID, feature string, window types.Window, at time.Time) (*usage.Sample, error) {
	filter := bson.M{
		"scope_id": scopeID,
		"feature":  feature,
		"window":   string(window),
		"at":       at.UTC(),
	}

	var m sampleModel
	err := s.db.Collection(colSamples).FindOne(ctx, filter).Decode(&m)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("mongo: find sample: %w", err)
	}
	return fromSampleModel(&m)
}

func (s *Store) RangeSamples(ctx context.Context, window types.Window, from, to time.Time) ([]*usage.Sample, error) {
	filter := bson.M{
		"window": string(window),
		"at":     bson.M{"$gte": from.UTC(), "$lt": to.UTC()},
	}

	cursor, err := s.db.Collection(colSamples).Find(ctx, filter,
		options.Find().SetSort(bson.D{{Key: "at", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("mongo: range samples: %w", err)
	}

	var models []sampleModel
	if err := cursor.All(ctx, &models); err != nil {
		return nil, fmt.Errorf("mongo: range samples decode: %w", err)
	}

	samples := make([]*usage.Sample, 0, len(models))
	for i := range models {
		sample, err := fromSampleModel(&models[i])
		if err != nil {
			return nil, err
		}
		samples = append(samples, sample)
	}
	return samples, nil
}

func (s *Store) PurgeSamples(ctx context.Context, window types.Window, before time.Time) (int64, error) {
	filter := bson.M{
		"window": string(window),
		"at":     bson.M{"$lt": before.UTC()},
	}

	result, err := s.db.Collection(colSamples).DeleteMany(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("mongo: purge samples: %w", err)
	}
	return result.DeletedCount, nil
}

// ──────────────────────────────────────────────────
// Ledger entries
// ──────────────────────────────────────────────────

func (s *Store) InsertEntry(ctx context.Context, e *credits.Entry) error {
	_, err := s.db.Collection(colEntries).InsertOne(ctx, toLedgerEntryModel(e))
	if mongo.IsDuplicateKeyError(err) {
		return store.ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("mongo: insert entry %s: %w", e.ID, err)
	}
	return nil
}

func (s *Store) FindEntryByIdemKey(ctx context.Context, tenantID, idemKey string) (*credits.Entry, error) {
	filter := bson.M{"tenant_id": tenantID, "idem_key": idemKey}

	var m ledgerEntryModel
	err := s.db.Collection(colEntries).FindOne(ctx, filter).Decode(&m)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("mongo: find entry by idem key: %w", err)
	}
	return fromLedgerEntryModel(&m)
}

func (s *Store) ListEntries(ctx context.Context, tenantID string, opts credits.ListOpts) ([]*credits.Entry, error) {
	filter := bson.M{"tenant_id": tenantID}
	if opts.Type != "" {
		filter["type"] = string(opts.Type)
	}

	findOpts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	if opts.Offset > 0 {
		findOpts.SetSkip(int64(opts.Offset))
	}
	if opts.Limit > 0 {
		findOpts.SetLimit(int64(opts.Limit))
	}

	cursor, err := s.db.Collection(colEntries).Find(ctx, filter, findOpts)
	if err != nil {
		return nil, fmt.Errorf("mongo: list entries: %w", err)
	}

	var models []ledgerEntryModel
	if err := cursor.All(ctx, &models); err != nil {
		return nil, fmt.Errorf("mongo: list entries decode: %w", err)
	}

	entries := make([]*credits.Entry, 0, len(models))
	for i := range models {
		entry, err := fromLedgerEntryModel(&models[i])
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// ──────────────────────────────────────────────────
// Rollup markers
// ──────────────────────────────────────────────────

func (s *Store) MarkRollup(ctx context.Context, window types.Window, at time.Time, runID id.RollupRunID) (bool, error) {
	at = at.UTC()
	marker := &rollupRunModel{
		ID:        fmt.Sprintf("%s:%d", window, at.Unix()),
		Window:    string(window),
		At:        at,
		RunID:     runID.String(),
		CreatedAt: time.Now().UTC(),
	}

	_, err := s.db.Collection(colRollupRuns).InsertOne(ctx, marker)
	if mongo.IsDuplicateKeyError(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("mongo: mark rollup %s@%s: %w", window, at, err)
	}
	return true, nil
}

// ──────────────────────────────────────────────────
// Lifecycle
// ──────────────────────────────────────────────────

// Migrate creates indexes for all collections.
func (s *Store) Migrate(ctx context.Context) error {
	for col, models := range migrationIndexes() {
		if _, err := s.db.Collection(col).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("mongo: create indexes for %s: %w", col, err)
		}
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx, nil); err != nil {
		return fmt.Errorf("mongo: ping: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.client.Disconnect(context.Background())
}

// migrationIndexes returns the index definitions for all collections.
func migrationIndexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		colSamples: {
			{
				Keys:    bson.D{{Key: "scope_id", Value: 1}, {Key: "feature", Value: 1}, {Key: "window", Value: 1}, {Key: "at", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "window", Value: 1}, {Key: "at", Value: 1}}},
		},
		colEntries: {
			{
				Keys:    bson.D{{Key: "tenant_id", Value: 1}, {Key: "idem_key", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "tenant_id", Value: 1}, {Key: "created_at", Value: -1}}},
			{Keys: bson.D{{Key: "tenant_id", Value: 1}, {Key: "type", Value: 1}}},
		},
		colRollupRuns: {
			{Keys: bson.D{{Key: "at", Value: 1}}},
		},
	}
}
