// internal/app/bootstrap/config.go
package bootstrap

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dalemusser/waffle/config"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.uber.org/zap"

	"github.com/dalemusser/stashgate/internal/app/system/timeouts"
)

// appConfigKeys defines the configuration keys for StashGate.
// These are loaded via WAFFLE's config system with support for:
//   - Config files: mongo_uri, origin_base_url, etc.
//   - Environment variables: STASHGATE_MONGO_URI, STASHGATE_ORIGIN_BASE_URL, etc.
//   - Command-line flags: --mongo_uri, --origin_base_url, etc.
var appConfigKeys = []config.AppKey{
	{Name: "mongo_uri", Default: "mongodb://localhost:27017", Desc: "MongoDB connection URI"},
	{Name: "mongo_database", Default: "stashgate", Desc: "MongoDB database name"},
	{Name: "mongo_max_pool_size", Default: 100, Desc: "MongoDB max connection pool size (default: 100)"},
	{Name: "mongo_min_pool_size", Default: 10, Desc: "MongoDB min connection pool size (default: 10)"},

	// Snapshot store
	{Name: "cache_dir", Default: "./cache", Desc: "Root directory for snapshot stores"},
	{Name: "cache_prefix", Default: "stashgate", Desc: "Snapshot store name prefix"},
	{Name: "cache_version", Default: "v3", Desc: "Snapshot store version; bump to retire the previous store"},

	// Optional S3 mirror
	{Name: "storage_s3_region", Default: "", Desc: "AWS region for the S3 snapshot mirror"},
	{Name: "storage_s3_bucket", Default: "", Desc: "S3 bucket for the snapshot mirror (blank disables mirroring)"},
	{Name: "storage_s3_prefix", Default: "snapshots/", Desc: "S3 key prefix for mirrored snapshots"},

	// Routing
	{Name: "origin_base_url", Default: "http://localhost:3000", Desc: "Origin of the web app this gateway fronts"},
	{Name: "api_base_url", Default: "http://localhost:8081", Desc: "Origin of the backend API"},
	{Name: "api_path_prefix", Default: "/api/", Desc: "Paths under this prefix are routed network-first"},
	{Name: "allowed_origins", Default: "", Desc: "Comma-separated extra origins served cache-first ('*.cdn.example' allowed)"},
	{Name: "offline_path", Default: "/offline", Desc: "Precached page served when a navigation cannot be satisfied"},

	// Client identity cookie
	{Name: "client_cookie_key", Default: "dev-only-change-me-please-0123456789ABCDEF", Desc: "Client cookie signing key (must be strong in production)"},
	{Name: "client_cookie_name", Default: "stashgate-client", Desc: "Client cookie name"},
	{Name: "client_cookie_domain", Default: "", Desc: "Client cookie domain (blank means current host)"},

	// Notice presentation
	{Name: "notice_icon", Default: "/static/icons/icon-192.png", Desc: "Icon URL attached to notices"},
	{Name: "notice_badge", Default: "/static/icons/badge-72.png", Desc: "Badge URL attached to notices"},
	{Name: "vibration_pattern", Default: "100,50,100", Desc: "Vibration pattern attached to notices (comma-separated milliseconds)"},

	// Deferred action queue
	{Name: "sync_tags", Default: "sync-workouts", Desc: "Comma-separated action tags pages may enqueue under"},
	{Name: "sync_replay_interval", Default: "30s", Desc: "How often the replay job scans for due actions"},
	{Name: "sync_base_backoff", Default: "30s", Desc: "First retry delay for a failed replay"},
	{Name: "sync_max_backoff", Default: "6h", Desc: "Retry delay ceiling"},
	{Name: "sync_max_attempts", Default: 50, Desc: "Replay attempts before an action is dead-lettered"},
	{Name: "enqueue_per_ip", Default: 60, Desc: "Max enqueues per IP per minute"},
	{Name: "enqueue_per_client", Default: 30, Desc: "Max enqueues per client per minute"},

	// Housekeeping
	{Name: "client_stale_after", Default: "10m", Desc: "Page clients without a heartbeat for this long are swept"},
	{Name: "notice_retention", Default: "168h", Desc: "Notices older than this are deleted"},

	// Operation timeouts
	{Name: "timeout_ping", Default: "2s", Desc: "Timeout for health checks and connectivity pings"},
	{Name: "timeout_short", Default: "5s", Desc: "Timeout for single-document reads and snapshot lookups"},
	{Name: "timeout_medium", Default: "10s", Desc: "Timeout for upstream fetches and moderate writes"},
	{Name: "timeout_long", Default: "30s", Desc: "Timeout for replay batches and multi-collection work"},
	{Name: "timeout_batch", Default: "120s", Desc: "Timeout for install-time precache population"},
}

// LoadConfig loads WAFFLE core config and app-specific config.
//
// WAFFLE's config.LoadWithAppConfig handles:
//   - Loading from .env files
//   - Loading from config.yaml/json/toml files
//   - Reading environment variables (WAFFLE_* for core, STASHGATE_* for app)
//   - Parsing command-line flags
//   - Merging with precedence: flags > env > files > defaults
func LoadConfig(logger *zap.Logger) (*config.CoreConfig, AppConfig, error) {
	coreCfg, appValues, err := config.LoadWithAppConfig(logger, "STASHGATE", appConfigKeys)
	if err != nil {
		return nil, AppConfig{}, err
	}

	vibration, err := parseVibration(appValues.String("vibration_pattern"))
	if err != nil {
		return nil, AppConfig{}, fmt.Errorf("invalid vibration_pattern: %w", err)
	}

	appCfg := AppConfig{
		MongoURI:         appValues.String("mongo_uri"),
		MongoDatabase:    appValues.String("mongo_database"),
		MongoMaxPoolSize: uint64(appValues.Int("mongo_max_pool_size")),
		MongoMinPoolSize: uint64(appValues.Int("mongo_min_pool_size")),

		CacheDir:     appValues.String("cache_dir"),
		CachePrefix:  appValues.String("cache_prefix"),
		CacheVersion: appValues.String("cache_version"),

		StorageS3Region: appValues.String("storage_s3_region"),
		StorageS3Bucket: appValues.String("storage_s3_bucket"),
		StorageS3Prefix: appValues.String("storage_s3_prefix"),

		OriginBaseURL:  appValues.String("origin_base_url"),
		APIBaseURL:     appValues.String("api_base_url"),
		APIPathPrefix:  appValues.String("api_path_prefix"),
		AllowedOrigins: parseList(appValues.String("allowed_origins")),
		OfflinePath:    appValues.String("offline_path"),

		ClientCookieKey:    appValues.String("client_cookie_key"),
		ClientCookieName:   appValues.String("client_cookie_name"),
		ClientCookieDomain: appValues.String("client_cookie_domain"),

		NoticeIcon:       appValues.String("notice_icon"),
		NoticeBadge:      appValues.String("notice_badge"),
		VibrationPattern: vibration,

		SyncTags:           parseList(appValues.String("sync_tags")),
		SyncReplayInterval: appValues.Duration("sync_replay_interval", 30*time.Second),
		SyncBaseBackoff:    appValues.Duration("sync_base_backoff", 30*time.Second),
		SyncMaxBackoff:     appValues.Duration("sync_max_backoff", 6*time.Hour),
		SyncMaxAttempts:    appValues.Int("sync_max_attempts"),
		EnqueuePerIP:       appValues.Int("enqueue_per_ip"),
		EnqueuePerClient:   appValues.Int("enqueue_per_client"),

		ClientStaleAfter: appValues.Duration("client_stale_after", 10*time.Minute),
		NoticeRetention:  appValues.Duration("notice_retention", 7*24*time.Hour),

		TimeoutPing:   appValues.Duration("timeout_ping", timeouts.DefaultPing),
		TimeoutShort:  appValues.Duration("timeout_short", timeouts.DefaultShort),
		TimeoutMedium: appValues.Duration("timeout_medium", timeouts.DefaultMedium),
		TimeoutLong:   appValues.Duration("timeout_long", timeouts.DefaultLong),
		TimeoutBatch:  appValues.Duration("timeout_batch", timeouts.DefaultBatch),
	}

	return coreCfg, appCfg, nil
}

// ValidateConfig performs app-specific config validation.
//
// Return nil to accept the loaded config, or an error to abort startup.
// StashGate validates the MongoDB URI and both routing origins here so a
// misconfigured deployment fails before it starts proxying.
func ValidateConfig(coreCfg *config.CoreConfig, appCfg AppConfig, logger *zap.Logger) error {
	if err := wafflemongo.ValidateURI(appCfg.MongoURI); err != nil {
		logger.Error("invalid MongoDB URI", zap.Error(err))
		return fmt.Errorf("invalid MongoDB URI: %w", err)
	}

	for name, raw := range map[string]string{
		"origin_base_url": appCfg.OriginBaseURL,
		"api_base_url":    appCfg.APIBaseURL,
	} {
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("%s must be an absolute URL, got %q", name, raw)
		}
	}

	if !strings.HasPrefix(appCfg.APIPathPrefix, "/") {
		return fmt.Errorf("api_path_prefix must start with '/', got %q", appCfg.APIPathPrefix)
	}
	if appCfg.CacheVersion == "" {
		return fmt.Errorf("cache_version must not be empty")
	}
	if appCfg.SyncMaxAttempts < 1 {
		return fmt.Errorf("sync_max_attempts must be at least 1, got %d", appCfg.SyncMaxAttempts)
	}
	if len(appCfg.SyncTags) == 0 {
		return fmt.Errorf("sync_tags must name at least one tag")
	}

	return nil
}

func parseList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if s := strings.TrimSpace(part); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func parseVibration(raw string) ([]int, error) {
	var out []int
	for _, part := range parseList(raw) {
		n, err := strconv.Atoi(part)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("pattern element %q is not a non-negative integer", part)
		}
		out = append(out, n)
	}
	return out, nil
}
