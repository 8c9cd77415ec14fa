// internal/domain/models/syncaction.go
package models

// Terminology: Client Identifiers
//   - ClientID / clientID / client_id: The UUID issued to a registered page client
//     (one browser tab/window) via its signed identity cookie
//   - The MongoDB ObjectID (_id) identifies the record itself, never the client

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Sync action states.
const (
	SyncPending  = "pending"  // Waiting for (re)delivery to the API host
	SyncDone     = "done"     // Delivered, upstream accepted (2xx)
	SyncRejected = "rejected" // Upstream rejected permanently (4xx, no retry)
	SyncDead     = "dead"     // Attempt budget exhausted, parked for inspection
)

// SyncAction is a deferred HTTP mutation queued while the upstream API was
// unreachable. Actions are replayed in enqueue order per client.
type SyncAction struct {
	ID       primitive.ObjectID `bson:"_id,omitempty"`
	ClientID string             `bson:"client_id"`

	// What to replay
	Tag    string `bson:"tag"`    // e.g. "sync-workouts"
	Method string `bson:"method"` // POST, PUT, PATCH, DELETE
	Path   string `bson:"path"`   // API path, e.g. "/api/workouts"
	Body   []byte `bson:"body,omitempty"`

	// IdempotencyKey deduplicates retried enqueues from flaky clients.
	IdempotencyKey string `bson:"idempotency_key"`

	// Delivery bookkeeping
	State         string    `bson:"state"`
	Attempts      int       `bson:"attempts"`
	NextAttemptAt time.Time `bson:"next_attempt_at"`
	LastError     string    `bson:"last_error,omitempty"`
	LastStatus    int       `bson:"last_status,omitempty"`

	EnqueuedAt time.Time `bson:"enqueued_at"`
	UpdatedAt  time.Time `bson:"updated_at"`
}
