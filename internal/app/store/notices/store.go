// internal/app/store/notices/store.go
package notices

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/dalemusser/stashgate/internal/domain/models"
)

// Store manages notification records.
type Store struct {
	c *mongo.Collection
}

// New creates a new notices Store.
func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("notices")}
}

// EnsureIndexes creates necessary indexes for efficient querying.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "notice_id", Value: 1}},
			Options: options.Index().SetName("idx_notices_id").SetUnique(true),
		},
		// Long-poll delivery and retention sweep both scan by creation time
		{
			Keys:    bson.D{{Key: "created_at", Value: 1}},
			Options: options.Index().SetName("idx_notices_created"),
		},
	}
	_, err := s.c.Indexes().CreateMany(ctx, indexes)
	return err
}

// Create inserts a notice, assigning it a notice ID if the caller did not.
func (s *Store) Create(ctx context.Context, n models.Notice) (models.Notice, error) {
	n.ID = primitive.NewObjectID()
	if n.NoticeID == "" {
		n.NoticeID = uuid.NewString()
	}
	n.CreatedAt = time.Now().UTC()
	if _, err := s.c.InsertOne(ctx, n); err != nil {
		return models.Notice{}, err
	}
	return n, nil
}

// Get returns the notice with the given notice ID.
// The second return is false when it does not exist.
func (s *Store) Get(ctx context.Context, noticeID string) (models.Notice, bool, error) {
	var n models.Notice
	err := s.c.FindOne(ctx, bson.M{"notice_id": noticeID}).Decode(&n)
	if err == mongo.ErrNoDocuments {
		return models.Notice{}, false, nil
	}
	if err != nil {
		return models.Notice{}, false, err
	}
	return n, true, nil
}

// Close stamps the notice closed (a click dismisses it). Closing twice is
// harmless; the first timestamp wins. The second return is false when the
// notice does not exist.
func (s *Store) Close(ctx context.Context, noticeID string) (models.Notice, bool, error) {
	now := time.Now().UTC()
	_, err := s.c.UpdateOne(ctx,
		bson.M{"notice_id": noticeID, "closed_at": nil},
		bson.M{"$set": bson.M{"closed_at": now}},
	)
	if err != nil {
		return models.Notice{}, false, err
	}

	var n models.Notice
	err = s.c.FindOne(ctx, bson.M{"notice_id": noticeID}).Decode(&n)
	if err == mongo.ErrNoDocuments {
		return models.Notice{}, false, nil
	}
	if err != nil {
		return models.Notice{}, false, err
	}
	return n, true, nil
}

// After returns open notices created after the given time, oldest first.
// This backs the long-poll delivery endpoint.
func (s *Store) After(ctx context.Context, since time.Time, limit int64) ([]models.Notice, error) {
	cursor, err := s.c.Find(ctx,
		bson.M{
			"created_at": bson.M{"$gt": since},
			"closed_at":  nil,
		},
		options.Find().
			SetSort(bson.D{{Key: "created_at", Value: 1}}).
			SetLimit(limit),
	)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var result []models.Notice
	if err := cursor.All(ctx, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// ExpireOld deletes notices older than the retention threshold.
func (s *Store) ExpireOld(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-retention)
	res, err := s.c.DeleteMany(ctx, bson.M{"created_at": bson.M{"$lt": cutoff}})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}
