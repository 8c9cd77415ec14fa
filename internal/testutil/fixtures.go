package testutil

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/dalemusser/stashgate/internal/domain/models"
)

// WithChiURLParam adds a chi URL parameter to the request context.
// Use this in handler tests that need to access chi.URLParam values.
func WithChiURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// Fixtures provides helper methods for creating test data.
type Fixtures struct {
	db *mongo.Database
	t  *testing.T
}

// NewFixtures creates a new Fixtures instance for the given test database.
func NewFixtures(t *testing.T, db *mongo.Database) *Fixtures {
	t.Helper()
	return &Fixtures{db: db, t: t}
}

// DB returns the underlying database for direct access in tests.
func (f *Fixtures) DB() *mongo.Database {
	return f.db
}

// CreatePageClient creates a registered page client showing the given URL.
func (f *Fixtures) CreatePageClient(ctx context.Context, currentURL string) models.PageClient {
	f.t.Helper()

	now := time.Now().UTC()
	pc := models.PageClient{
		ID:           primitive.NewObjectID(),
		ClientID:     uuid.NewString(),
		CurrentURL:   currentURL,
		StoreVersion: "stashgate-test",
		RegisteredAt: now,
		LastSeenAt:   now,
		IP:           "127.0.0.1",
		UserAgent:    "testutil",
	}

	if _, err := f.db.Collection("page_clients").InsertOne(ctx, pc); err != nil {
		f.t.Fatalf("failed to create test page client: %v", err)
	}
	return pc
}

// CreateSyncAction creates a pending queued action for the given client,
// due immediately.
func (f *Fixtures) CreateSyncAction(ctx context.Context, clientID, tag, method, path string, body []byte) models.SyncAction {
	f.t.Helper()

	now := time.Now().UTC()
	action := models.SyncAction{
		ID:             primitive.NewObjectID(),
		ClientID:       clientID,
		Tag:            tag,
		Method:         method,
		Path:           path,
		Body:           body,
		IdempotencyKey: uuid.NewString(),
		State:          models.SyncPending,
		NextAttemptAt:  now,
		EnqueuedAt:     now,
		UpdatedAt:      now,
	}

	if _, err := f.db.Collection("sync_actions").InsertOne(ctx, action); err != nil {
		f.t.Fatalf("failed to create test sync action: %v", err)
	}
	return action
}

// CreateNotice creates an open notice with the given title and target URL.
func (f *Fixtures) CreateNotice(ctx context.Context, title, targetURL string) models.Notice {
	f.t.Helper()

	n := models.Notice{
		ID:        primitive.NewObjectID(),
		NoticeID:  uuid.NewString(),
		Title:     title,
		TargetURL: targetURL,
		Icon:      "/static/icons/icon-192.png",
		Badge:     "/static/icons/badge-72.png",
		CreatedAt: time.Now().UTC(),
	}

	if _, err := f.db.Collection("notices").InsertOne(ctx, n); err != nil {
		f.t.Fatalf("failed to create test notice: %v", err)
	}
	return n
}
