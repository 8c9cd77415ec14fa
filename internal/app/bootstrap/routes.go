// internal/app/bootstrap/routes.go
package bootstrap

import (
	"net/http"
	"net/url"
	"time"

	"github.com/dalemusser/waffle/config"
	"github.com/dalemusser/waffle/pantry/fileserver"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	clientsfeature "github.com/dalemusser/stashgate/internal/app/features/clients"
	gatewayfeature "github.com/dalemusser/stashgate/internal/app/features/gateway"
	healthfeature "github.com/dalemusser/stashgate/internal/app/features/health"
	pushfeature "github.com/dalemusser/stashgate/internal/app/features/push"
	syncfeature "github.com/dalemusser/stashgate/internal/app/features/sync"
	"github.com/dalemusser/stashgate/internal/app/system/clientauth"
	"github.com/dalemusser/stashgate/internal/app/system/policy"
	"github.com/dalemusser/stashgate/internal/app/system/ratelimit"
)

// BuildHandler constructs the root HTTP handler for this WAFFLE app.
//
// The control-plane routes (/health, /api/clients, /api/sync, /api/push,
// /api/notices) are mounted first; everything else falls through to the
// gateway catch-all, which applies the cache routing policy. chi matches
// the more specific patterns before the wildcard, so the gateway never
// shadows the control plane.
func BuildHandler(coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) (http.Handler, error) {
	secure := coreCfg.Env == "prod"
	clientMgr, err := clientauth.NewManager(appCfg.ClientCookieKey, appCfg.ClientCookieName, appCfg.ClientCookieDomain, secure, logger)
	if err != nil {
		logger.Error("client auth init failed", zap.Error(err))
		return nil, err
	}

	pol, err := policy.New(appCfg.OriginBaseURL, appCfg.APIBaseURL, appCfg.APIPathPrefix, appCfg.AllowedOrigins)
	if err != nil {
		logger.Error("routing policy init failed", zap.Error(err))
		return nil, err
	}

	// Validated in ValidateConfig; parse errors cannot reach this point.
	originBase, _ := url.Parse(appCfg.OriginBaseURL)
	apiBase, _ := url.Parse(appCfg.APIBaseURL)

	limiter := ratelimit.NewEnqueueLimiterWithConfig(
		appCfg.EnqueuePerIP, time.Minute,
		appCfg.EnqueuePerClient, time.Minute,
	)

	r := chi.NewRouter()

	// Global client middleware: loads the client ID into context when the
	// cookie is present, so handlers can attribute requests.
	r.Use(clientMgr.WithClient)

	// Health check endpoint for load balancers and orchestrators
	healthHandler := healthfeature.NewHandler(deps.MongoClient, deps.Snapshots, gatewayMetrics, logger)
	r.Mount("/health", healthfeature.Routes(healthHandler))

	// Static assets with pre-compressed file support (gzip/brotli)
	r.Handle("/static/*", fileserver.Handler("/static", "public"))

	// Page client registry
	clientsHandler := clientsfeature.NewHandler(deps.MongoDatabase, clientMgr, appCfg.StoreName(), logger)
	r.Mount("/api/clients", clientsfeature.Routes(clientsHandler))

	// Deferred action queue
	syncHandler := syncfeature.NewHandler(deps.MongoDatabase, appCfg.SyncTags, limiter, logger)
	r.Mount("/api/sync", syncfeature.Routes(syncHandler, clientMgr))

	// Push intake and notice delivery
	pushHandler := pushfeature.NewHandler(deps.MongoDatabase, appCfg.NoticeIcon, appCfg.NoticeBadge, appCfg.VibrationPattern, logger)
	r.Mount("/api/push", pushfeature.Routes(pushHandler))
	r.Mount("/api/notices", pushfeature.NoticeRoutes(pushHandler, clientMgr))

	// Cache router catch-all: every request not claimed above goes through
	// the snapshot/upstream routing policy.
	gatewayHandler := gatewayfeature.NewHandler(deps.Snapshots, pol, gatewayMetrics, nil, originBase, apiBase, appCfg.OfflinePath, logger)
	r.Mount("/", gatewayfeature.Routes(gatewayHandler))

	return r, nil
}
