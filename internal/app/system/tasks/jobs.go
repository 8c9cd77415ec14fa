// internal/app/system/tasks/jobs.go
package tasks

import (
	"context"
	"time"

	"go.uber.org/zap"

	syncfeature "github.com/dalemusser/stashgate/internal/app/features/sync"
	"github.com/dalemusser/stashgate/internal/app/store/clientreg"
	"github.com/dalemusser/stashgate/internal/app/store/notices"
)

// SyncReplayJob creates a job that drains due deferred actions against the
// backend API. The replayer owns backoff and ordering; this just ticks it.
func SyncReplayJob(replayer *syncfeature.Replayer, interval time.Duration) Job {
	return Job{
		Name:     "sync-replay",
		Interval: interval,
		Run: func(ctx context.Context) error {
			return replayer.ReplayDue(ctx)
		},
	}
}

// ClientSweepJob creates a job that removes page clients that stopped
// heartbeating. A swept client re-registers on its next page load.
func ClientSweepJob(registry *clientreg.Store, logger *zap.Logger, staleAfter time.Duration) Job {
	return Job{
		Name:     "client-sweep",
		Interval: 5 * time.Minute,
		Run: func(ctx context.Context) error {
			count, err := registry.SweepStale(ctx, staleAfter)
			if err != nil {
				return err
			}
			if count > 0 {
				logger.Info("swept stale clients",
					zap.Int64("count", count),
					zap.Duration("stale_after", staleAfter))
			}
			return nil
		},
	}
}

// NoticeExpiryJob creates a job that deletes notices past retention.
func NoticeExpiryJob(noticeStore *notices.Store, logger *zap.Logger, retention time.Duration) Job {
	return Job{
		Name:     "notice-expiry",
		Interval: 1 * time.Hour,
		Run: func(ctx context.Context) error {
			count, err := noticeStore.ExpireOld(ctx, retention)
			if err != nil {
				return err
			}
			if count > 0 {
				logger.Debug("expired old notices", zap.Int64("count", count))
			}
			return nil
		},
	}
}
