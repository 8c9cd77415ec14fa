package sync_test

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"go.uber.org/zap"

	syncfeature "github.com/dalemusser/stashgate/internal/app/features/sync"
	"github.com/dalemusser/stashgate/internal/app/store/syncqueue"
	"github.com/dalemusser/stashgate/internal/domain/models"
	"github.com/dalemusser/stashgate/internal/testutil"
)

func TestReplayer_Backoff(t *testing.T) {
	rp := syncfeature.NewReplayer(nil, nil, nil, zap.NewNop())

	tests := []struct {
		attempts int
		want     time.Duration
	}{
		{1, 30 * time.Second},
		{2, 60 * time.Second},
		{3, 120 * time.Second},
		{11, 6 * time.Hour}, // 30s * 2^10 exceeds the cap
		{50, 6 * time.Hour},
	}
	for _, tt := range tests {
		if got := rp.Backoff(tt.attempts); got != tt.want {
			t.Errorf("Backoff(%d): got %v, want %v", tt.attempts, got, tt.want)
		}
	}
}

func newReplayTest(t *testing.T, upstream http.HandlerFunc) (*syncfeature.Replayer, *syncqueue.Store, *testutil.Fixtures) {
	t.Helper()

	db := testutil.SetupTestDB(t)
	queue := syncqueue.New(db)

	srv := httptest.NewServer(upstream)
	t.Cleanup(srv.Close)

	apiBase, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatalf("parsing test server URL: %v", err)
	}

	rp := syncfeature.NewReplayer(queue, apiBase, srv.Client(), zap.NewNop())
	return rp, queue, testutil.NewFixtures(t, db)
}

func TestReplayDue_SuccessMarksDone(t *testing.T) {
	var sawIdemKey string
	rp, queue, fx := newReplayTest(t, func(w http.ResponseWriter, r *http.Request) {
		sawIdemKey = r.Header.Get("Idempotency-Key")
		w.WriteHeader(http.StatusCreated)
	})
	ctx, cancel := testutil.TestContext()
	defer cancel()

	action := fx.CreateSyncAction(ctx, "client-1", "sync-workouts", "POST", "/api/workouts", []byte(`{"reps":10}`))

	if err := rp.ReplayDue(ctx); err != nil {
		t.Fatalf("ReplayDue failed: %v", err)
	}

	counts, err := queue.Counts(ctx)
	if err != nil {
		t.Fatalf("Counts failed: %v", err)
	}
	if counts[models.SyncDone] != 1 {
		t.Errorf("done count: got %d, want 1 (counts=%v)", counts[models.SyncDone], counts)
	}
	if sawIdemKey != action.IdempotencyKey {
		t.Errorf("Idempotency-Key: got %q, want %q", sawIdemKey, action.IdempotencyKey)
	}
}

func TestReplayDue_RejectionIsTerminal(t *testing.T) {
	calls := 0
	rp, queue, fx := newReplayTest(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusUnprocessableEntity)
	})
	ctx, cancel := testutil.TestContext()
	defer cancel()

	fx.CreateSyncAction(ctx, "client-1", "sync-workouts", "POST", "/api/workouts", nil)

	if err := rp.ReplayDue(ctx); err != nil {
		t.Fatalf("ReplayDue failed: %v", err)
	}

	counts, _ := queue.Counts(ctx)
	if counts[models.SyncRejected] != 1 {
		t.Errorf("rejected count: got %d, want 1 (counts=%v)", counts[models.SyncRejected], counts)
	}

	// A rejected action never comes back.
	if err := rp.ReplayDue(ctx); err != nil {
		t.Fatalf("second ReplayDue failed: %v", err)
	}
	if calls != 1 {
		t.Errorf("upstream calls: got %d, want 1", calls)
	}
}

func TestReplayDue_TransientFailureReschedules(t *testing.T) {
	rp, queue, fx := newReplayTest(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	ctx, cancel := testutil.TestContext()
	defer cancel()

	fx.CreateSyncAction(ctx, "client-1", "sync-workouts", "POST", "/api/workouts", nil)

	if err := rp.ReplayDue(ctx); err != nil {
		t.Fatalf("ReplayDue failed: %v", err)
	}

	counts, _ := queue.Counts(ctx)
	if counts[models.SyncPending] != 1 {
		t.Errorf("pending count: got %d, want 1 (counts=%v)", counts[models.SyncPending], counts)
	}

	// Rescheduled with backoff, so it is not due yet.
	due, err := queue.Due(ctx, time.Now().UTC(), 10)
	if err != nil {
		t.Fatalf("Due failed: %v", err)
	}
	if len(due) != 0 {
		t.Errorf("rescheduled action should not be due immediately, got %d", len(due))
	}
}

func TestReplayDue_PreservesPerClientOrder(t *testing.T) {
	var paths []string
	rp, queue, fx := newReplayTest(t, func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	ctx, cancel := testutil.TestContext()
	defer cancel()

	fx.CreateSyncAction(ctx, "client-1", "sync-workouts", "POST", "/api/workouts/1", nil)
	time.Sleep(10 * time.Millisecond) // distinct enqueue times
	fx.CreateSyncAction(ctx, "client-1", "sync-workouts", "POST", "/api/workouts/2", nil)

	if err := rp.ReplayDue(ctx); err != nil {
		t.Fatalf("ReplayDue failed: %v", err)
	}

	// The first action fails and stays pending, so the second must be
	// skipped this round rather than land out of order.
	if len(paths) != 1 || paths[0] != "/api/workouts/1" {
		t.Errorf("upstream saw %v, want only /api/workouts/1", paths)
	}

	counts, _ := queue.Counts(ctx)
	if counts[models.SyncPending] != 2 {
		t.Errorf("pending count: got %d, want 2", counts[models.SyncPending])
	}
}

func TestReplayDue_ExhaustedAttemptsDeadLetter(t *testing.T) {
	rp, queue, fx := newReplayTest(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	rp.MaxAttempts = 1
	ctx, cancel := testutil.TestContext()
	defer cancel()

	fx.CreateSyncAction(ctx, "client-1", "sync-workouts", "POST", "/api/workouts", nil)

	if err := rp.ReplayDue(ctx); err != nil {
		t.Fatalf("ReplayDue failed: %v", err)
	}

	counts, _ := queue.Counts(ctx)
	if counts[models.SyncDead] != 1 {
		t.Errorf("dead count: got %d, want 1 (counts=%v)", counts[models.SyncDead], counts)
	}
}
