// internal/app/store/clientreg/store.go
package clientreg

// Terminology: Client Identifiers
//   - ClientID / clientID / client_id: The UUID issued to a registered page client
//   - The MongoDB ObjectID (_id) identifies the registry record itself

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/dalemusser/stashgate/internal/domain/models"
)

// Store manages registered page clients.
type Store struct {
	c *mongo.Collection
}

// New creates a new clientreg Store.
func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("page_clients")}
}

// EnsureIndexes creates necessary indexes for efficient querying.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "client_id", Value: 1}},
			Options: options.Index().SetName("idx_clients_id").SetUnique(true),
		},
		// Stale client sweep
		{
			Keys:    bson.D{{Key: "last_seen_at", Value: 1}},
			Options: options.Index().SetName("idx_clients_seen"),
		},
		// Click routing: find a client already showing a URL
		{
			Keys:    bson.D{{Key: "current_url", Value: 1}},
			Options: options.Index().SetName("idx_clients_url"),
		},
	}
	_, err := s.c.Indexes().CreateMany(ctx, indexes)
	return err
}

// Register upserts a client record. Re-registration (page reload) keeps
// the record and refreshes its context fields.
func (s *Store) Register(ctx context.Context, clientID, ip, userAgent, storeVersion string) (models.PageClient, error) {
	now := time.Now().UTC()

	_, err := s.c.UpdateOne(ctx,
		bson.M{"client_id": clientID},
		bson.M{
			"$set": bson.M{
				"ip":            ip,
				"user_agent":    userAgent,
				"store_version": storeVersion,
				"last_seen_at":  now,
			},
			"$setOnInsert": bson.M{
				"client_id":     clientID,
				"registered_at": now,
			},
		},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return models.PageClient{}, err
	}

	var pc models.PageClient
	if err := s.c.FindOne(ctx, bson.M{"client_id": clientID}).Decode(&pc); err != nil {
		return models.PageClient{}, err
	}
	return pc, nil
}

// Heartbeat refreshes a client's last-seen time and current URL.
// Unknown clients are ignored (the page re-registers on its next load).
func (s *Store) Heartbeat(ctx context.Context, clientID, currentURL string) error {
	_, err := s.c.UpdateOne(ctx,
		bson.M{"client_id": clientID},
		bson.M{"$set": bson.M{
			"current_url":  currentURL,
			"last_seen_at": time.Now().UTC(),
		}},
	)
	return err
}

// Unregister removes a client record (page unload).
func (s *Store) Unregister(ctx context.Context, clientID string) error {
	_, err := s.c.DeleteOne(ctx, bson.M{"client_id": clientID})
	return err
}

// FindShowing returns a client whose current URL equals target, most
// recently seen first. The second return is false when no client shows it.
func (s *Store) FindShowing(ctx context.Context, target string) (models.PageClient, bool, error) {
	var pc models.PageClient
	err := s.c.FindOne(ctx,
		bson.M{"current_url": target},
		options.FindOne().SetSort(bson.D{{Key: "last_seen_at", Value: -1}}),
	).Decode(&pc)
	if err == mongo.ErrNoDocuments {
		return models.PageClient{}, false, nil
	}
	if err != nil {
		return models.PageClient{}, false, err
	}
	return pc, true, nil
}

// ClaimAll stamps every registered client with the given store version.
// Activation calls this so the new policy applies to already-open pages
// without re-registration.
func (s *Store) ClaimAll(ctx context.Context, storeVersion string) (int64, error) {
	res, err := s.c.UpdateMany(ctx,
		bson.M{},
		bson.M{"$set": bson.M{"store_version": storeVersion}},
	)
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}

// SweepStale deletes clients not seen within the threshold.
func (s *Store) SweepStale(ctx context.Context, threshold time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-threshold)
	res, err := s.c.DeleteMany(ctx, bson.M{"last_seen_at": bson.M{"$lt": cutoff}})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

// Count returns the number of registered clients.
func (s *Store) Count(ctx context.Context) (int64, error) {
	return s.c.CountDocuments(ctx, bson.M{})
}
