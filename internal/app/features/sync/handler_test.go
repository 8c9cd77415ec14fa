package sync_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	syncfeature "github.com/dalemusser/stashgate/internal/app/features/sync"
	"github.com/dalemusser/stashgate/internal/app/system/clientauth"
	"github.com/dalemusser/stashgate/internal/app/system/ratelimit"
	"github.com/dalemusser/stashgate/internal/testutil"
)

func newTestHandler(t *testing.T) *syncfeature.Handler {
	t.Helper()
	db := testutil.SetupTestDB(t)
	limiter := ratelimit.NewEnqueueLimiter()
	return syncfeature.NewHandler(db, []string{"sync-workouts"}, limiter, zap.NewNop())
}

func enqueue(h *syncfeature.Handler, clientID, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest("POST", "/api/sync", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if clientID != "" {
		req = clientauth.WithTestClient(req, clientID)
	}
	rec := httptest.NewRecorder()
	h.ServeEnqueue(rec, req)
	return rec
}

func TestServeEnqueue_Accepts(t *testing.T) {
	h := newTestHandler(t)

	body := `{"tag":"sync-workouts","method":"post","path":"/api/workouts","body":{"reps":10},"idempotency_key":"k-1"}`
	rec := enqueue(h, "client-1", body)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status: got %d, want 202: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		ID    string `json:"id"`
		State string `json:"state"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.ID == "" {
		t.Error("expected an action ID")
	}
	if resp.State != "pending" {
		t.Errorf("state: got %q, want pending", resp.State)
	}
}

func TestServeEnqueue_DuplicateIdempotencyKey(t *testing.T) {
	h := newTestHandler(t)

	body := `{"tag":"sync-workouts","method":"POST","path":"/api/workouts","idempotency_key":"dup-1"}`

	first := enqueue(h, "client-1", body)
	second := enqueue(h, "client-1", body)

	if first.Code != http.StatusAccepted || second.Code != http.StatusAccepted {
		t.Fatalf("statuses: got %d and %d, want 202 both", first.Code, second.Code)
	}

	var a, b struct {
		ID string `json:"id"`
	}
	_ = json.NewDecoder(first.Body).Decode(&a)
	_ = json.NewDecoder(second.Body).Decode(&b)
	if a.ID != b.ID {
		t.Errorf("retried enqueue created a new action: %q vs %q", a.ID, b.ID)
	}
}

func TestServeEnqueue_Rejections(t *testing.T) {
	h := newTestHandler(t)

	tests := []struct {
		name string
		body string
	}{
		{"unknown tag", `{"tag":"sync-photos","method":"POST","path":"/api/photos"}`},
		{"non-replayable method", `{"tag":"sync-workouts","method":"GET","path":"/api/workouts"}`},
		{"absolute path", `{"tag":"sync-workouts","method":"POST","path":"https://evil.example/x"}`},
		{"relative path", `{"tag":"sync-workouts","method":"POST","path":"api/workouts"}`},
		{"not json", `enqueue please`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := enqueue(h, "client-1", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status: got %d, want 400", rec.Code)
			}
		})
	}
}

func TestServeEnqueue_RateLimited(t *testing.T) {
	db := testutil.SetupTestDB(t)
	limiter := ratelimit.NewEnqueueLimiterWithConfig(100, time.Minute, 1, time.Minute)
	h := syncfeature.NewHandler(db, []string{"sync-workouts"}, limiter, zap.NewNop())

	body := `{"tag":"sync-workouts","method":"POST","path":"/api/workouts"}`

	if rec := enqueue(h, "client-1", body); rec.Code != http.StatusAccepted {
		t.Fatalf("first enqueue: got %d, want 202", rec.Code)
	}
	if rec := enqueue(h, "client-1", body); rec.Code != http.StatusTooManyRequests {
		t.Errorf("second enqueue: got %d, want 429", rec.Code)
	}
}

func TestServeStatus(t *testing.T) {
	h := newTestHandler(t)

	body := `{"tag":"sync-workouts","method":"POST","path":"/api/workouts"}`
	if rec := enqueue(h, "client-1", body); rec.Code != http.StatusAccepted {
		t.Fatalf("enqueue: got %d, want 202", rec.Code)
	}

	req := httptest.NewRequest("GET", "/api/sync/status", nil)
	rec := httptest.NewRecorder()
	h.ServeStatus(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rec.Code)
	}

	var counts map[string]int64
	if err := json.NewDecoder(rec.Body).Decode(&counts); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if counts["pending"] != 1 {
		t.Errorf("pending: got %d, want 1 (%v)", counts["pending"], counts)
	}
	if _, ok := counts["dead"]; !ok {
		t.Error("status must always report the dead state")
	}
}
