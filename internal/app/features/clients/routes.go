// internal/app/features/clients/routes.go
package clients

import "github.com/go-chi/chi/v5"

// Routes returns the client registry subrouter. Mounted under /api/clients.
// Registration is open (it is how a page obtains its identity); heartbeat
// and unregister require the cookie.
func Routes(h *Handler) chi.Router {
	r := chi.NewRouter()
	r.Post("/register", h.ServeRegister)
	r.Group(func(r chi.Router) {
		r.Use(h.Auth.RequireClient)
		r.Post("/heartbeat", h.ServeHeartbeat)
		r.Post("/unregister", h.ServeUnregister)
	})
	return r
}
