// internal/app/features/sync/replay.go
package sync

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/dalemusser/stashgate/internal/app/store/syncqueue"
	"github.com/dalemusser/stashgate/internal/app/system/timeouts"
	"github.com/dalemusser/stashgate/internal/domain/models"
)

// Replay defaults. Backoff doubles per attempt from Base up to Max; an
// action that exhausts MaxAttempts is parked in the dead-letter state for
// operator inspection rather than dropped.
const (
	defaultBaseBackoff = 30 * time.Second
	defaultMaxBackoff  = 6 * time.Hour
	defaultMaxAttempts = 50
	defaultBatchSize   = 100
)

// Replayer drains the deferred-action queue against the backend API.
type Replayer struct {
	Queue       *syncqueue.Store
	APIBase     *url.URL
	Client      *http.Client
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
	MaxAttempts int
	BatchSize   int64
	Log         *zap.Logger
}

// NewReplayer constructs a Replayer with default backoff settings.
func NewReplayer(queue *syncqueue.Store, apiBase *url.URL, client *http.Client, logger *zap.Logger) *Replayer {
	if client == nil {
		client = http.DefaultClient
	}
	return &Replayer{
		Queue:       queue,
		APIBase:     apiBase,
		Client:      client,
		BaseBackoff: defaultBaseBackoff,
		MaxBackoff:  defaultMaxBackoff,
		MaxAttempts: defaultMaxAttempts,
		BatchSize:   defaultBatchSize,
		Log:         logger,
	}
}

// ReplayDue attempts every due pending action once. Actions for a client
// with an earlier still-pending action are skipped this round: mutations
// from one page must land in the order the page produced them.
func (rp *Replayer) ReplayDue(ctx context.Context) error {
	now := time.Now().UTC()

	due, err := rp.Queue.Due(ctx, now, rp.BatchSize)
	if err != nil {
		return fmt.Errorf("loading due actions: %w", err)
	}

	for _, action := range due {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		blocked, err := rp.Queue.PendingBefore(ctx, action.ClientID, action.EnqueuedAt)
		if err != nil {
			rp.Log.Error("replay: ordering check failed", zap.Error(err),
				zap.String("action_id", action.ID.Hex()))
			continue
		}
		if blocked {
			continue
		}

		rp.replayOne(ctx, action)
	}
	return nil
}

func (rp *Replayer) replayOne(ctx context.Context, action models.SyncAction) {
	status, err := rp.attempt(ctx, action)

	fields := []zap.Field{
		zap.String("action_id", action.ID.Hex()),
		zap.String("tag", action.Tag),
		zap.String("method", action.Method),
		zap.String("path", action.Path),
		zap.Int("attempt", action.Attempts+1),
	}

	switch {
	case err != nil:
		rp.Log.Warn("replay: attempt failed", append(fields, zap.Error(err))...)
		rp.reschedule(ctx, action, err.Error())

	case status >= 200 && status < 300:
		rp.Log.Info("replay: action delivered", append(fields, zap.Int("status", status))...)
		if err := rp.Queue.MarkDone(ctx, action.ID, status); err != nil {
			rp.Log.Error("replay: failed to mark done", append(fields, zap.Error(err))...)
		}

	case isTransientStatus(status):
		rp.Log.Warn("replay: transient upstream status", append(fields, zap.Int("status", status))...)
		rp.reschedule(ctx, action, fmt.Sprintf("upstream status %d", status))

	default:
		// Remaining 4xx: the backend has seen the action and refused it.
		// Retrying cannot change the answer.
		rp.Log.Warn("replay: action rejected by upstream", append(fields, zap.Int("status", status))...)
		if err := rp.Queue.MarkRejected(ctx, action.ID, status, fmt.Sprintf("upstream status %d", status)); err != nil {
			rp.Log.Error("replay: failed to mark rejected", append(fields, zap.Error(err))...)
		}
	}
}

// isTransientStatus reports whether an upstream status warrants a retry:
// request timeout, throttling, or any server-side failure.
func isTransientStatus(status int) bool {
	return status == http.StatusRequestTimeout ||
		status == http.StatusTooManyRequests ||
		status >= 500
}

func (rp *Replayer) reschedule(ctx context.Context, action models.SyncAction, lastErr string) {
	attempts := action.Attempts + 1
	if attempts >= rp.MaxAttempts {
		rp.Log.Error("replay: attempt budget exhausted, dead-lettering",
			zap.String("action_id", action.ID.Hex()),
			zap.String("tag", action.Tag),
			zap.Int("attempts", attempts))
		if err := rp.Queue.DeadLetter(ctx, action.ID, lastErr); err != nil {
			rp.Log.Error("replay: failed to dead-letter", zap.Error(err),
				zap.String("action_id", action.ID.Hex()))
		}
		return
	}

	nextAt := time.Now().UTC().Add(rp.Backoff(attempts))
	if err := rp.Queue.Reschedule(ctx, action.ID, attempts, nextAt, lastErr); err != nil {
		rp.Log.Error("replay: failed to reschedule", zap.Error(err),
			zap.String("action_id", action.ID.Hex()))
	}
}

// Backoff returns the wait before the given attempt number (1-based):
// base, 2×base, 4×base, … capped at MaxBackoff.
func (rp *Replayer) Backoff(attempts int) time.Duration {
	d := rp.BaseBackoff
	for i := 1; i < attempts; i++ {
		d *= 2
		if d >= rp.MaxBackoff {
			return rp.MaxBackoff
		}
	}
	if d > rp.MaxBackoff {
		return rp.MaxBackoff
	}
	return d
}

func (rp *Replayer) attempt(ctx context.Context, action models.SyncAction) (int, error) {
	rel, err := url.Parse(action.Path)
	if err != nil {
		return 0, fmt.Errorf("bad stored path %q: %w", action.Path, err)
	}
	target := rp.APIBase.ResolveReference(rel)

	ctx, cancel := context.WithTimeout(ctx, timeouts.Medium())
	defer cancel()

	var body io.Reader
	if len(action.Body) > 0 {
		body = bytes.NewReader(action.Body)
	}

	req, err := http.NewRequestWithContext(ctx, action.Method, target.String(), body)
	if err != nil {
		return 0, err
	}
	if len(action.Body) > 0 {
		req.Header.Set("Content-Type", "application/json")
	}
	// Dedupe hint for the backend: replays of the same action carry the
	// same key the page supplied at enqueue time.
	req.Header.Set("Idempotency-Key", action.IdempotencyKey)

	resp, err := rp.Client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))

	return resp.StatusCode, nil
}
