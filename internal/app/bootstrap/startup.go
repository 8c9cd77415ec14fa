// internal/app/bootstrap/startup.go
package bootstrap

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/dalemusser/waffle/config"
	"go.uber.org/zap"

	gatewayfeature "github.com/dalemusser/stashgate/internal/app/features/gateway"
	syncfeature "github.com/dalemusser/stashgate/internal/app/features/sync"
	"github.com/dalemusser/stashgate/internal/app/store/clientreg"
	"github.com/dalemusser/stashgate/internal/app/store/notices"
	"github.com/dalemusser/stashgate/internal/app/store/snapshots"
	"github.com/dalemusser/stashgate/internal/app/store/syncqueue"
	"github.com/dalemusser/stashgate/internal/app/system/metrics"
	"github.com/dalemusser/stashgate/internal/app/system/tasks"
	"github.com/dalemusser/stashgate/internal/app/system/timeouts"
)

// Shared between Startup, BuildHandler, and Shutdown. WAFFLE calls the
// hooks in that order on a single goroutine, so plain package vars are fine.
var (
	gatewayMetrics *metrics.Collector
	jobRunner      *tasks.Runner
)

// latencySketchAccuracy is the relative accuracy of the latency quantile
// sketches (1% error on reported quantiles).
const latencySketchAccuracy = 0.01

// Startup runs one-time initialization after DB connections and schema
// setup are complete, but before the HTTP handler is built.
//
// For the gateway this is the install/activate sequence: populate the
// snapshot store from the precache manifest, retire snapshot stores from
// previous versions, stamp already-registered clients with the new store
// version, and start the background jobs.
func Startup(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	// Apply configured operation timeouts before anything that uses them.
	timeouts.Configure(timeouts.Config{
		Ping:   appCfg.TimeoutPing,
		Short:  appCfg.TimeoutShort,
		Medium: appCfg.TimeoutMedium,
		Long:   appCfg.TimeoutLong,
		Batch:  appCfg.TimeoutBatch,
	})

	gatewayMetrics = metrics.NewCollector(latencySketchAccuracy)

	originBase, err := url.Parse(appCfg.OriginBaseURL)
	if err != nil {
		return fmt.Errorf("parsing origin_base_url: %w", err)
	}
	apiBase, err := url.Parse(appCfg.APIBaseURL)
	if err != nil {
		return fmt.Errorf("parsing api_base_url: %w", err)
	}

	// Install: warm the store with the fixed precache set. Individual
	// fetch failures are logged and counted, not fatal; the gateway can
	// start degraded and heal on first traffic.
	manifest, err := gatewayfeature.LoadPrecacheManifest()
	if err != nil {
		return fmt.Errorf("loading precache manifest: %w", err)
	}
	precacheCtx, cancel := context.WithTimeout(ctx, timeouts.Batch())
	defer cancel()
	gatewayfeature.Precache(precacheCtx, deps.Snapshots, originBase, http.DefaultClient, gatewayMetrics, manifest, logger)

	// Activate: retire stores from previous cache versions.
	names, err := snapshots.Names(appCfg.CacheDir)
	if err != nil {
		return fmt.Errorf("listing snapshot stores: %w", err)
	}
	for _, name := range names {
		if name == appCfg.StoreName() {
			continue
		}
		if err := snapshots.Remove(appCfg.CacheDir, name); err != nil {
			logger.Warn("failed to remove stale snapshot store",
				zap.String("store", name), zap.Error(err))
			continue
		}
		logger.Info("removed stale snapshot store", zap.String("store", name))
	}

	// Activate: take over pages that are already open.
	registry := clientreg.New(deps.MongoDatabase)
	claimed, err := registry.ClaimAll(ctx, appCfg.StoreName())
	if err != nil {
		return fmt.Errorf("claiming registered clients: %w", err)
	}
	if claimed > 0 {
		logger.Info("claimed registered clients",
			zap.Int64("count", claimed),
			zap.String("store_version", appCfg.StoreName()))
	}

	replayer := syncfeature.NewReplayer(syncqueue.New(deps.MongoDatabase), apiBase, http.DefaultClient, logger)
	replayer.BaseBackoff = appCfg.SyncBaseBackoff
	replayer.MaxBackoff = appCfg.SyncMaxBackoff
	replayer.MaxAttempts = appCfg.SyncMaxAttempts

	jobRunner = tasks.NewRunner(logger,
		tasks.SyncReplayJob(replayer, appCfg.SyncReplayInterval),
		tasks.ClientSweepJob(registry, logger, appCfg.ClientStaleAfter),
		tasks.NoticeExpiryJob(notices.New(deps.MongoDatabase), logger, appCfg.NoticeRetention),
	)
	jobRunner.Start()

	return nil
}
