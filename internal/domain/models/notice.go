// internal/domain/models/notice.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Notice is a notification produced from an accepted push payload and fanned
// out to registered page clients. Title and Body are stored already
// sanitized; TargetURL is carried in the notice data for click routing.
type Notice struct {
	ID       primitive.ObjectID `bson:"_id,omitempty"`
	NoticeID string             `bson:"notice_id"` // UUID, stable across delivery and click

	Title     string `bson:"title"`
	Body      string `bson:"body,omitempty"`
	TargetURL string `bson:"target_url,omitempty"`

	// Fixed presentation carried with every notice.
	Icon      string `bson:"icon"`
	Badge     string `bson:"badge"`
	Vibration []int  `bson:"vibration,omitempty"`

	CreatedAt time.Time  `bson:"created_at"`
	ClosedAt  *time.Time `bson:"closed_at,omitempty"`
}
