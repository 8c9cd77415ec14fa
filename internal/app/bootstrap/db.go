// internal/app/bootstrap/db.go
package bootstrap

import (
	"context"
	"fmt"

	"github.com/dalemusser/waffle/config"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"

	"github.com/dalemusser/stashgate/internal/app/store/clientreg"
	"github.com/dalemusser/stashgate/internal/app/store/notices"
	"github.com/dalemusser/stashgate/internal/app/store/snapshots"
	"github.com/dalemusser/stashgate/internal/app/store/syncqueue"
)

// ConnectDB opens the MongoDB connection, takes the snapshot root lock,
// and opens the active snapshot store (plus its S3 mirror if configured).
func ConnectDB(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, logger *zap.Logger) (DBDeps, error) {
	clientOpts := options.Client().
		ApplyURI(appCfg.MongoURI).
		SetMaxPoolSize(appCfg.MongoMaxPoolSize).
		SetMinPoolSize(appCfg.MongoMinPoolSize)

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return DBDeps{}, fmt.Errorf("connecting to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return DBDeps{}, fmt.Errorf("pinging MongoDB: %w", err)
	}
	logger.Info("connected to MongoDB", zap.String("database", appCfg.MongoDatabase))

	lock, err := snapshots.LockRoot(appCfg.CacheDir)
	if err != nil {
		_ = client.Disconnect(ctx)
		return DBDeps{}, fmt.Errorf("locking snapshot root: %w", err)
	}

	store, err := snapshots.Open(appCfg.CacheDir, appCfg.StoreName(), logger)
	if err != nil {
		_ = lock.Unlock()
		_ = client.Disconnect(ctx)
		return DBDeps{}, fmt.Errorf("opening snapshot store: %w", err)
	}
	logger.Info("snapshot store opened",
		zap.String("root", appCfg.CacheDir),
		zap.String("store", store.Name()))

	if appCfg.StorageS3Bucket != "" {
		mirror, err := snapshots.NewMirror(ctx, appCfg.StorageS3Region, appCfg.StorageS3Bucket, appCfg.StorageS3Prefix, logger)
		if err != nil {
			_ = lock.Unlock()
			_ = client.Disconnect(ctx)
			return DBDeps{}, fmt.Errorf("opening S3 mirror: %w", err)
		}
		store.SetMirror(mirror)
		logger.Info("S3 snapshot mirror enabled",
			zap.String("bucket", appCfg.StorageS3Bucket),
			zap.String("prefix", appCfg.StorageS3Prefix))
	}

	return DBDeps{
		MongoClient:   client,
		MongoDatabase: client.Database(appCfg.MongoDatabase),
		Snapshots:     store,
		CacheLock:     lock,
	}, nil
}

// EnsureSchema creates indexes for all collections.
func EnsureSchema(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	db := deps.MongoDatabase

	for name, ensure := range map[string]func(context.Context) error{
		"sync_actions": syncqueue.New(db).EnsureIndexes,
		"page_clients": clientreg.New(db).EnsureIndexes,
		"notices":      notices.New(db).EnsureIndexes,
	} {
		if err := ensure(ctx); err != nil {
			return fmt.Errorf("ensuring indexes for %s: %w", name, err)
		}
	}

	logger.Info("indexes ensured")
	return nil
}
