// internal/app/features/clients/handler.go
package clients

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"github.com/dalemusser/stashgate/internal/app/store/clientreg"
	"github.com/dalemusser/stashgate/internal/app/system/clientauth"
	"github.com/dalemusser/stashgate/internal/app/system/ratelimit"
	"github.com/dalemusser/stashgate/internal/app/system/timeouts"
)

// Handler owns page client registration and presence.
type Handler struct {
	Registry *clientreg.Store
	Auth     *clientauth.Manager

	// StoreVersion is stamped on clients at registration so a page knows
	// which snapshot store generation is serving it.
	StoreVersion string

	Log *zap.Logger
}

// NewHandler constructs a clients Handler.
func NewHandler(db *mongo.Database, auth *clientauth.Manager, storeVersion string, logger *zap.Logger) *Handler {
	return &Handler{
		Registry:     clientreg.New(db),
		Auth:         auth,
		StoreVersion: storeVersion,
		Log:          logger,
	}
}

// registerResponse acknowledges a registration.
type registerResponse struct {
	ClientID     string    `json:"client_id"`
	StoreVersion string    `json:"store_version"`
	RegisteredAt time.Time `json:"registered_at"`
}

// heartbeatRequest carries the page's current location.
type heartbeatRequest struct {
	CurrentURL string `json:"current_url"`
}

// ServeRegister handles POST /api/clients/register.
//
// Called once per page load. Issues (or renews) the signed client cookie
// and upserts the registry record; re-registering is always safe.
func (h *Handler) ServeRegister(w http.ResponseWriter, r *http.Request) {
	clientID, err := h.Auth.Issue(w, r)
	if err != nil {
		h.Log.Error("clients: failed to issue client cookie", zap.Error(err))
		http.Error(w, "failed to register client", http.StatusInternalServerError)
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "client register")
	defer cancel()

	pc, err := h.Registry.Register(ctx, clientID, ratelimit.ClientIP(r), r.UserAgent(), h.StoreVersion)
	if err != nil {
		h.Log.Error("clients: registration failed", zap.Error(err), zap.String("client_id", clientID))
		http.Error(w, "failed to register client", http.StatusInternalServerError)
		return
	}

	h.Log.Info("clients: registered",
		zap.String("client_id", pc.ClientID),
		zap.String("store_version", pc.StoreVersion))

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(registerResponse{
		ClientID:     pc.ClientID,
		StoreVersion: pc.StoreVersion,
		RegisteredAt: pc.RegisteredAt,
	})
}

// ServeHeartbeat handles POST /api/clients/heartbeat.
//
// Pages post this periodically with their current URL; the record backs
// notice click routing and the stale-client sweep. Unknown clients are
// accepted silently since the page re-registers on its next load.
func (h *Handler) ServeHeartbeat(w http.ResponseWriter, r *http.Request) {
	clientID, _ := clientauth.CurrentClient(r)

	var req heartbeatRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4<<10)).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	req.CurrentURL = strings.TrimSpace(req.CurrentURL)
	if req.CurrentURL == "" {
		http.Error(w, "current_url is required", http.StatusBadRequest)
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "client heartbeat")
	defer cancel()

	if err := h.Registry.Heartbeat(ctx, clientID, req.CurrentURL); err != nil {
		h.Log.Error("clients: heartbeat failed", zap.Error(err), zap.String("client_id", clientID))
		http.Error(w, "heartbeat failed", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ServeUnregister handles POST /api/clients/unregister (page unload).
func (h *Handler) ServeUnregister(w http.ResponseWriter, r *http.Request) {
	clientID, _ := clientauth.CurrentClient(r)

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "client unregister")
	defer cancel()

	if err := h.Registry.Unregister(ctx, clientID); err != nil {
		h.Log.Error("clients: unregister failed", zap.Error(err), zap.String("client_id", clientID))
		http.Error(w, "unregister failed", http.StatusInternalServerError)
		return
	}
	if err := h.Auth.Clear(w, r); err != nil {
		h.Log.Warn("clients: failed to clear client cookie", zap.Error(err))
	}

	w.WriteHeader(http.StatusNoContent)
}
