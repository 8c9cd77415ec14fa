// internal/app/features/push/serve.go
package push

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/dalemusser/stashgate/internal/app/system/timeouts"
	"github.com/dalemusser/stashgate/internal/domain/models"
)

const (
	// maxPushBody bounds the accepted push payload size.
	maxPushBody = 8 << 10

	// waitPollInterval is how often the long-poll checks for new notices.
	waitPollInterval = 1 * time.Second

	// waitMax is the longest a /notices/wait request is held open before
	// returning an empty batch. Kept under common proxy idle timeouts.
	waitMax = 25 * time.Second

	waitBatchLimit = 20
)

// ServePush handles POST /api/push.
//
// Push messages come from the backend's push relay and may be malformed or
// empty. A payload that cannot be parsed, or that carries no title, is
// swallowed with a 204 rather than rejected: a bad message must never bounce
// back into the relay's retry loop.
func (h *Handler) ServePush(w http.ResponseWriter, r *http.Request) {
	var payload pushPayload
	body := http.MaxBytesReader(w, r.Body, maxPushBody)
	if err := json.NewDecoder(body).Decode(&payload); err != nil {
		h.Log.Debug("push: unparseable payload ignored", zap.Error(err))
		w.WriteHeader(http.StatusNoContent)
		return
	}

	title := strings.TrimSpace(h.sanitizer.Sanitize(payload.Title))
	if title == "" {
		h.Log.Debug("push: payload without title ignored")
		w.WriteHeader(http.StatusNoContent)
		return
	}

	notice := models.Notice{
		Title:     title,
		Body:      strings.TrimSpace(h.sanitizer.Sanitize(payload.Body)),
		TargetURL: strings.TrimSpace(payload.URL),
		Icon:      h.Icon,
		Badge:     h.Badge,
		Vibration: h.Vibration,
	}

	created, err := h.Notices.Create(r.Context(), notice)
	if err != nil {
		h.Log.Error("push: failed to store notice", zap.Error(err))
		http.Error(w, "failed to store notice", http.StatusInternalServerError)
		return
	}

	h.Log.Info("push: notice created",
		zap.String("notice_id", created.NoticeID),
		zap.String("title", created.Title))

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(map[string]string{"id": created.NoticeID})
}

// ServeWait handles GET /api/notices/wait?since=<RFC3339>.
//
// Pages hold this request open; it returns as soon as a notice newer than
// `since` exists, or with an empty batch after waitMax. The `now` field in
// the response is the cursor for the next call.
func (h *Handler) ServeWait(w http.ResponseWriter, r *http.Request) {
	since := time.Now().UTC()
	if raw := r.URL.Query().Get("since"); raw != "" {
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			http.Error(w, "invalid since timestamp", http.StatusBadRequest)
			return
		}
		since = t
	}

	deadline := time.NewTimer(waitMax)
	defer deadline.Stop()
	tick := time.NewTicker(waitPollInterval)
	defer tick.Stop()

	for {
		found, err := h.Notices.After(r.Context(), since, waitBatchLimit)
		if err != nil {
			h.Log.Error("push: notice poll failed", zap.Error(err))
			http.Error(w, "notice lookup failed", http.StatusInternalServerError)
			return
		}
		if len(found) > 0 {
			h.writeWait(w, found)
			return
		}

		select {
		case <-r.Context().Done():
			// Client went away; nothing to write.
			return
		case <-deadline.C:
			h.writeWait(w, nil)
			return
		case <-tick.C:
		}
	}
}

func (h *Handler) writeWait(w http.ResponseWriter, found []models.Notice) {
	resp := waitResponse{
		Notices: make([]noticeVM, 0, len(found)),
		Now:     time.Now().UTC(),
	}
	for _, n := range found {
		resp.Notices = append(resp.Notices, toVM(n))
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

// ServeClick handles POST /api/notices/{id}/click.
//
// The notice is closed so other pages stop showing it, then the click is
// routed: if some registered client is already showing the notice's target
// URL the caller should focus it, otherwise the caller opens the URL itself.
func (h *Handler) ServeClick(w http.ResponseWriter, r *http.Request) {
	noticeID := chi.URLParam(r, "id")

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "notice click")
	defer cancel()

	notice, found, err := h.Notices.Close(ctx, noticeID)
	if err != nil {
		h.Log.Error("push: notice close failed", zap.Error(err), zap.String("notice_id", noticeID))
		http.Error(w, "notice lookup failed", http.StatusInternalServerError)
		return
	}
	if !found {
		http.Error(w, "notice not found", http.StatusNotFound)
		return
	}

	target := notice.TargetURL
	if target == "" {
		target = "/"
	}

	resp := clickResponse{Action: "open", URL: target}
	showing, found, err := h.Clients.FindShowing(ctx, target)
	if err != nil {
		h.Log.Warn("push: client lookup failed, defaulting to open", zap.Error(err))
	} else if found {
		resp = clickResponse{Action: "focus", ClientID: showing.ClientID, URL: target}
	}

	h.Log.Info("push: notice click routed",
		zap.String("notice_id", noticeID),
		zap.String("action", resp.Action))

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}
