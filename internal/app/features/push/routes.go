// internal/app/features/push/routes.go
package push

import (
	"github.com/go-chi/chi/v5"

	"github.com/dalemusser/stashgate/internal/app/system/clientauth"
)

// Routes returns the push intake subrouter. Mounted under /api/push.
// Intake is not gated on a client cookie: messages come from the push
// relay, not from pages.
func Routes(h *Handler) chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.ServePush)
	return r
}

// NoticeRoutes returns the page-facing notice subrouter. Mounted under
// /api/notices; only registered clients may wait on or click notices.
func NoticeRoutes(h *Handler, cm *clientauth.Manager) chi.Router {
	r := chi.NewRouter()
	r.Use(cm.RequireClient)
	r.Get("/wait", h.ServeWait)
	r.Post("/{id}/click", h.ServeClick)
	return r
}
