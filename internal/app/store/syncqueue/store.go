// internal/app/store/syncqueue/store.go
package syncqueue

// Terminology: Client Identifiers
//   - ClientID / clientID / client_id: The UUID issued to a registered page client
//   - The MongoDB ObjectID (_id) identifies the queued action record itself

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/dalemusser/stashgate/internal/domain/models"
)

// Store manages the deferred action queue.
type Store struct {
	c *mongo.Collection
}

// New creates a new syncqueue Store.
func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("sync_actions")}
}

// EnsureIndexes creates necessary indexes for efficient querying.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		// Replay scan: pending actions that are due
		{
			Keys:    bson.D{{Key: "state", Value: 1}, {Key: "next_attempt_at", Value: 1}},
			Options: options.Index().SetName("idx_sync_due"),
		},
		// Per-client replay ordering
		{
			Keys:    bson.D{{Key: "client_id", Value: 1}, {Key: "enqueued_at", Value: 1}},
			Options: options.Index().SetName("idx_sync_client"),
		},
		// Enqueue deduplication
		{
			Keys:    bson.D{{Key: "idempotency_key", Value: 1}},
			Options: options.Index().SetName("idx_sync_idem").SetUnique(true),
		},
	}
	_, err := s.c.Indexes().CreateMany(ctx, indexes)
	return err
}

// Enqueue inserts a new pending action. If an action with the same
// idempotency key already exists, the existing record is returned and no
// duplicate is created; retried enqueues from flaky connections are
// expected and harmless.
func (s *Store) Enqueue(ctx context.Context, a models.SyncAction) (models.SyncAction, error) {
	now := time.Now().UTC()
	a.ID = primitive.NewObjectID()
	a.State = models.SyncPending
	a.Attempts = 0
	a.NextAttemptAt = now
	a.EnqueuedAt = now
	a.UpdatedAt = now

	_, err := s.c.InsertOne(ctx, a)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			var existing models.SyncAction
			findErr := s.c.FindOne(ctx, bson.M{"idempotency_key": a.IdempotencyKey}).Decode(&existing)
			if findErr != nil {
				return models.SyncAction{}, findErr
			}
			return existing, nil
		}
		return models.SyncAction{}, err
	}
	return a, nil
}

// Due returns up to limit pending actions whose next attempt time has
// passed, oldest enqueue first so per-client order is preserved.
func (s *Store) Due(ctx context.Context, now time.Time, limit int64) ([]models.SyncAction, error) {
	cursor, err := s.c.Find(ctx,
		bson.M{
			"state":           models.SyncPending,
			"next_attempt_at": bson.M{"$lte": now},
		},
		options.Find().
			SetSort(bson.D{{Key: "enqueued_at", Value: 1}}).
			SetLimit(limit),
	)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var actions []models.SyncAction
	if err := cursor.All(ctx, &actions); err != nil {
		return nil, err
	}
	return actions, nil
}

// MarkDone records a successful replay.
func (s *Store) MarkDone(ctx context.Context, id primitive.ObjectID, status int) error {
	return s.setState(ctx, id, models.SyncDone, status, "")
}

// MarkRejected records a permanent upstream rejection (4xx). The action
// will not be retried.
func (s *Store) MarkRejected(ctx context.Context, id primitive.ObjectID, status int, reason string) error {
	return s.setState(ctx, id, models.SyncRejected, status, reason)
}

// DeadLetter parks an action whose attempt budget is exhausted.
func (s *Store) DeadLetter(ctx context.Context, id primitive.ObjectID, lastErr string) error {
	return s.setState(ctx, id, models.SyncDead, 0, lastErr)
}

func (s *Store) setState(ctx context.Context, id primitive.ObjectID, state string, status int, lastErr string) error {
	set := bson.M{
		"state":      state,
		"updated_at": time.Now().UTC(),
	}
	if status != 0 {
		set["last_status"] = status
	}
	if lastErr != "" {
		set["last_error"] = lastErr
	}
	_, err := s.c.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": set})
	return err
}

// Reschedule bumps the attempt count and sets the next attempt time after
// a transient failure.
func (s *Store) Reschedule(ctx context.Context, id primitive.ObjectID, attempts int, nextAt time.Time, lastErr string) error {
	_, err := s.c.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{
			"attempts":        attempts,
			"next_attempt_at": nextAt,
			"last_error":      lastErr,
			"updated_at":      time.Now().UTC(),
		}},
	)
	return err
}

// Counts returns the number of actions per state.
func (s *Store) Counts(ctx context.Context) (map[string]int64, error) {
	cursor, err := s.c.Aggregate(ctx, mongo.Pipeline{
		{{Key: "$group", Value: bson.M{"_id": "$state", "count": bson.M{"$sum": 1}}}},
	})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	counts := make(map[string]int64)
	for cursor.Next(ctx) {
		var row struct {
			State string `bson:"_id"`
			Count int64  `bson:"count"`
		}
		if err := cursor.Decode(&row); err != nil {
			return nil, err
		}
		counts[row.State] = row.Count
	}
	return counts, cursor.Err()
}

// PendingBefore reports whether the client has an older pending action
// than the given enqueue time. Replay skips an action while an earlier one
// for the same client is still pending, preserving per-client order.
func (s *Store) PendingBefore(ctx context.Context, clientID string, enqueuedAt time.Time) (bool, error) {
	err := s.c.FindOne(ctx, bson.M{
		"client_id":   clientID,
		"state":       models.SyncPending,
		"enqueued_at": bson.M{"$lt": enqueuedAt},
	}).Err()
	if err == mongo.ErrNoDocuments {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
