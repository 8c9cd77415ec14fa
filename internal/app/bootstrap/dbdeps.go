// internal/app/bootstrap/dbdeps.go
package bootstrap

import (
	"github.com/gofrs/flock"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/dalemusser/stashgate/internal/app/store/snapshots"
)

// DBDeps holds database/back-end dependencies for the app.
type DBDeps struct {
	MongoClient   *mongo.Client
	MongoDatabase *mongo.Database

	// Snapshots is the active versioned snapshot store.
	Snapshots *snapshots.Store

	// CacheLock guards the snapshot root against a second gateway process
	// writing into the same directory.
	CacheLock *flock.Flock
}
