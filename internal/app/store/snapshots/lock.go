// internal/app/store/snapshots/lock.go
package snapshots

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// LockRoot takes an exclusive advisory lock on the snapshot root. Store
// garbage collection deletes whole directories, so two gateway processes
// must never manage the same root; the second one fails fast here instead
// of sweeping stores out from under the first.
//
// The caller holds the returned lock for the life of the process and
// Unlocks it at shutdown.
func LockRoot(root string) (*flock.Flock, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create snapshot root: %w", err)
	}

	fl := flock.New(filepath.Join(root, ".lock"))
	locked, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to lock snapshot root: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("snapshot root %s is already locked by another process", root)
	}
	return fl, nil
}
