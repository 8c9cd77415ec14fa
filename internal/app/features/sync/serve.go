// internal/app/features/sync/serve.go
package sync

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dalemusser/stashgate/internal/app/system/clientauth"
	"github.com/dalemusser/stashgate/internal/app/system/timeouts"
	"github.com/dalemusser/stashgate/internal/domain/models"
)

// maxEnqueueBody bounds the accepted enqueue payload (envelope plus the
// captured request body).
const maxEnqueueBody = 256 << 10

// enqueueRequest is the JSON contract for POST /api/sync.
type enqueueRequest struct {
	Tag            string          `json:"tag"`
	Method         string          `json:"method"`
	Path           string          `json:"path"`
	Body           json.RawMessage `json:"body,omitempty"`
	IdempotencyKey string          `json:"idempotency_key,omitempty"`
}

// enqueueResponse acknowledges a queued action.
type enqueueResponse struct {
	ID         string    `json:"id"`
	State      string    `json:"state"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

var replayableMethods = map[string]struct{}{
	http.MethodPost:   {},
	http.MethodPut:    {},
	http.MethodPatch:  {},
	http.MethodDelete: {},
}

// ServeEnqueue handles POST /api/sync.
//
// A page that failed to reach the backend hands the mutation here instead;
// the action is persisted and replayed later. Accepted actions answer 202.
// Enqueueing the same idempotency key twice returns the original record,
// so a page may safely retry the enqueue itself.
func (h *Handler) ServeEnqueue(w http.ResponseWriter, r *http.Request) {
	clientID, _ := clientauth.CurrentClient(r)

	if ok, reason := h.Limiter.Check(r, clientID); !ok {
		h.Log.Warn("sync: enqueue rate limited",
			zap.String("client_id", clientID),
			zap.String("reason", reason))
		http.Error(w, reason, http.StatusTooManyRequests)
		return
	}

	var req enqueueRequest
	body := http.MaxBytesReader(w, r.Body, maxEnqueueBody)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	req.Tag = strings.TrimSpace(req.Tag)
	req.Method = strings.ToUpper(strings.TrimSpace(req.Method))

	if _, ok := h.Tags[req.Tag]; !ok {
		http.Error(w, "unknown sync tag", http.StatusBadRequest)
		return
	}
	if _, ok := replayableMethods[req.Method]; !ok {
		http.Error(w, "method not replayable", http.StatusBadRequest)
		return
	}
	if !strings.HasPrefix(req.Path, "/") || strings.Contains(req.Path, "://") {
		http.Error(w, "path must be relative", http.StatusBadRequest)
		return
	}
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = uuid.NewString()
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "sync enqueue")
	defer cancel()

	action, err := h.Queue.Enqueue(ctx, models.SyncAction{
		ClientID:       clientID,
		Tag:            req.Tag,
		Method:         req.Method,
		Path:           req.Path,
		Body:           []byte(req.Body),
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		h.Log.Error("sync: enqueue failed", zap.Error(err), zap.String("client_id", clientID))
		http.Error(w, "failed to queue action", http.StatusInternalServerError)
		return
	}

	h.Log.Info("sync: action queued",
		zap.String("client_id", clientID),
		zap.String("tag", action.Tag),
		zap.String("method", action.Method),
		zap.String("path", action.Path))

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(enqueueResponse{
		ID:         action.ID.Hex(),
		State:      action.State,
		EnqueuedAt: action.EnqueuedAt,
	})
}

// ServeStatus handles GET /api/sync/status, reporting queue depth per state.
func (h *Handler) ServeStatus(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "sync status")
	defer cancel()

	counts, err := h.Queue.Counts(ctx)
	if err != nil {
		h.Log.Error("sync: status query failed", zap.Error(err))
		http.Error(w, "failed to read queue status", http.StatusInternalServerError)
		return
	}

	resp := map[string]int64{
		models.SyncPending:  counts[models.SyncPending],
		models.SyncDone:     counts[models.SyncDone],
		models.SyncRejected: counts[models.SyncRejected],
		models.SyncDead:     counts[models.SyncDead],
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}
