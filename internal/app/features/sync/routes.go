// internal/app/features/sync/routes.go
package sync

import (
	"github.com/go-chi/chi/v5"

	"github.com/dalemusser/stashgate/internal/app/system/clientauth"
)

// Routes returns the sync queue subrouter. Mounted under /api/sync; only
// registered clients may enqueue.
func Routes(h *Handler, cm *clientauth.Manager) chi.Router {
	r := chi.NewRouter()
	r.Get("/status", h.ServeStatus)
	r.Group(func(r chi.Router) {
		r.Use(cm.RequireClient)
		r.Post("/", h.ServeEnqueue)
	})
	return r
}
