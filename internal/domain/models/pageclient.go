// internal/domain/models/pageclient.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// PageClient is one registered browser page (tab or window) the gateway is
// serving. Registration issues the client its identity cookie; heartbeats
// keep CurrentURL fresh so notice click routing can find a page already
// showing a target URL.
type PageClient struct {
	ID       primitive.ObjectID `bson:"_id,omitempty"`
	ClientID string             `bson:"client_id"`

	// CurrentURL is the page the client most recently reported showing.
	CurrentURL string `bson:"current_url,omitempty"`

	// StoreVersion is the snapshot store version this client was last
	// claimed under. Activation rewrites it for every registered client.
	StoreVersion string `bson:"store_version"`

	RegisteredAt time.Time `bson:"registered_at"`
	LastSeenAt   time.Time `bson:"last_seen_at"`

	// Context
	IP        string `bson:"ip"`
	UserAgent string `bson:"user_agent,omitempty"`
}
