// internal/app/features/gateway/routes.go
package gateway

import (
	"github.com/go-chi/chi/v5"
)

// Routes returns the catch-all router for the cache router. It is mounted
// last so every request not claimed by the control API falls through to
// fetch routing.
func Routes(h *Handler) chi.Router {
	r := chi.NewRouter()
	r.Handle("/*", h)
	return r
}
