// internal/app/features/sync/handler.go
package sync

import (
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"github.com/dalemusser/stashgate/internal/app/store/syncqueue"
	"github.com/dalemusser/stashgate/internal/app/system/ratelimit"
)

// Handler owns the deferred-action queue endpoints.
type Handler struct {
	Queue   *syncqueue.Store
	Tags    map[string]struct{}
	Limiter *ratelimit.EnqueueLimiter
	Log     *zap.Logger
}

// NewHandler constructs a sync Handler. tags is the set of action tags
// pages are allowed to enqueue under; anything else is rejected at intake.
func NewHandler(db *mongo.Database, tags []string, limiter *ratelimit.EnqueueLimiter, logger *zap.Logger) *Handler {
	allowed := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		allowed[t] = struct{}{}
	}
	return &Handler{
		Queue:   syncqueue.New(db),
		Tags:    allowed,
		Limiter: limiter,
		Log:     logger,
	}
}
