// internal/app/bootstrap/appconfig.go
package bootstrap

import "time"

// AppConfig holds service-specific configuration for this WAFFLE app.
//
// WAFFLE's CoreConfig handles framework-level settings (ports, TLS, log
// level, body limits). AppConfig is everything specific to the gateway:
// where snapshots live, which origins it fronts, and how the deferred
// action queue behaves.
type AppConfig struct {
	// MongoDB connection configuration
	MongoURI         string
	MongoDatabase    string
	MongoMaxPoolSize uint64
	MongoMinPoolSize uint64

	// Snapshot store configuration. The active store is named
	// <CachePrefix>-<CacheVersion>; bumping the version retires the old
	// store at the next activation sweep.
	CacheDir     string
	CachePrefix  string
	CacheVersion string

	// Optional S3 mirror for the snapshot store. Disabled when the
	// bucket is blank.
	StorageS3Region string
	StorageS3Bucket string
	StorageS3Prefix string

	// Routing configuration
	OriginBaseURL  string   // the web app origin this gateway fronts
	APIBaseURL     string   // the backend API origin
	APIPathPrefix  string   // paths under this prefix route network-first
	AllowedOrigins []string // extra origins served cache-first ("*.cdn.example" allowed)
	OfflinePath    string   // precached page served when a navigation cannot be satisfied

	// Client identity cookie
	ClientCookieKey    string
	ClientCookieName   string
	ClientCookieDomain string

	// Notice presentation defaults
	NoticeIcon       string
	NoticeBadge      string
	VibrationPattern []int

	// Deferred action queue
	SyncTags           []string
	SyncReplayInterval time.Duration
	SyncBaseBackoff    time.Duration
	SyncMaxBackoff     time.Duration
	SyncMaxAttempts    int
	EnqueuePerIP       int
	EnqueuePerClient   int

	// Housekeeping
	ClientStaleAfter time.Duration
	NoticeRetention  time.Duration

	// Operation timeouts, applied to system/timeouts at startup. Zero
	// values keep that package's defaults.
	TimeoutPing   time.Duration
	TimeoutShort  time.Duration
	TimeoutMedium time.Duration
	TimeoutLong   time.Duration
	TimeoutBatch  time.Duration
}

// StoreName returns the versioned snapshot store name.
func (c AppConfig) StoreName() string {
	return c.CachePrefix + "-" + c.CacheVersion
}
