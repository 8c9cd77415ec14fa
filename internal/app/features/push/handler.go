// internal/app/features/push/handler.go
package push

import (
	"github.com/microcosm-cc/bluemonday"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"github.com/dalemusser/stashgate/internal/app/store/clientreg"
	"github.com/dalemusser/stashgate/internal/app/store/notices"
)

// Handler owns push intake, notice delivery, and click routing.
type Handler struct {
	Notices *notices.Store
	Clients *clientreg.Store

	// Fixed presentation attached to every notice.
	Icon      string
	Badge     string
	Vibration []int

	Log       *zap.Logger
	sanitizer *bluemonday.Policy
}

// NewHandler constructs a push Handler. Notice title and body pass through
// a strict sanitizer before storage; payloads arrive from outside the
// trust boundary and notices end up rendered in pages.
func NewHandler(db *mongo.Database, icon, badge string, vibration []int, logger *zap.Logger) *Handler {
	return &Handler{
		Notices:   notices.New(db),
		Clients:   clientreg.New(db),
		Icon:      icon,
		Badge:     badge,
		Vibration: vibration,
		Log:       logger,
		sanitizer: bluemonday.StrictPolicy(),
	}
}
