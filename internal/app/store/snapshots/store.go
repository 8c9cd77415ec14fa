// internal/app/store/snapshots/store.go

// Package snapshots is the versioned on-disk response snapshot store.
//
// One Store holds the cached responses for a single version string, laid
// out as <root>/<name>/<shard>/<key> with a sidecar <key>.meta file. Keys
// are hex digests (see system/cachekey); the shard is the first key byte,
// which keeps directories small the same way Go's build cache does.
// Superseded stores under the same root are enumerable with Names and
// deletable with Remove.
package snapshots

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Snapshot is one stored response: status, selected headers, body, and the
// time it was stored. Bodies are held whole; the gateway fronts app shells
// and API payloads, not large media.
type Snapshot struct {
	Status   int
	Header   http.Header
	Body     []byte
	StoredAt time.Time
}

// metaFile is the sidecar metadata layout on disk.
type metaFile struct {
	Status   int         `json:"status"`
	Header   http.Header `json:"header"`
	StoredAt int64       `json:"stored_at"`
}

// Store is a single named snapshot store. Concurrent writers to one key
// race benignly: writes are atomic and last-write-wins, and payloads for a
// given key are expected to be equivalent.
type Store struct {
	root   string // absolute path holding all versioned stores
	name   string // this store's name, e.g. "stashgate-v3"
	dir    string // root/name
	log    *zap.Logger
	mirror *Mirror // optional S3 tier, nil when not configured
}

// Open creates or opens the named store under root.
func Open(root, name string, logger *zap.Logger) (*Store, error) {
	if err := validName(name); err != nil {
		return nil, err
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve snapshot root: %w", err)
	}

	dir := filepath.Join(absRoot, name)

	// Precreate all 256 shard subdirectories (00-ff) so writes never need
	// a mkdir syscall.
	for i := 0; i < 256; i++ {
		shard := filepath.Join(dir, fmt.Sprintf("%02x", i))
		if err := os.MkdirAll(shard, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create shard %02x: %w", i, err)
		}
	}

	return &Store{
		root: absRoot,
		name: name,
		dir:  dir,
		log:  logger,
	}, nil
}

// SetMirror attaches an S3 mirror tier. Puts are uploaded asynchronously;
// Lookup consults the mirror on a local miss.
func (s *Store) SetMirror(m *Mirror) { s.mirror = m }

// Name returns the store's name (the versioned directory name).
func (s *Store) Name() string { return s.name }

// Put stores a snapshot under key. The body file is written first, then
// the metadata sidecar; both via temp-then-rename, so a partially written
// entry is never observable (a body without metadata reads as a miss).
func (s *Store) Put(key string, snap *Snapshot) error {
	if err := s.putLocal(key, snap); err != nil {
		return err
	}

	if s.mirror != nil {
		data := encodeSnapshot(snap)
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := s.mirror.Put(ctx, s.name, key, data); err != nil {
				s.log.Warn("snapshot mirror upload failed",
					zap.String("key", key),
					zap.Error(err))
			}
		}()
	}
	return nil
}

func (s *Store) putLocal(key string, snap *Snapshot) error {
	bodyPath, err := s.keyToPath(key)
	if err != nil {
		return err
	}

	if err := writeFileAtomic(bodyPath, snap.Body); err != nil {
		return fmt.Errorf("failed to write snapshot body: %w", err)
	}

	meta := metaFile{
		Status:   snap.Status,
		Header:   snap.Header,
		StoredAt: snap.StoredAt.Unix(),
	}
	data, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot metadata: %w", err)
	}
	if err := writeFileAtomic(bodyPath+".meta", data); err != nil {
		return fmt.Errorf("failed to write snapshot metadata: %w", err)
	}
	return nil
}

// Get retrieves the local snapshot for key. The second return is false on
// a miss. A body file without readable metadata counts as a miss and is
// logged, matching how partially written entries are defined away.
func (s *Store) Get(key string) (*Snapshot, bool, error) {
	bodyPath, err := s.keyToPath(key)
	if err != nil {
		return nil, false, err
	}

	metaData, err := os.ReadFile(bodyPath + ".meta")
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to read snapshot metadata: %w", err)
	}

	var meta metaFile
	if err := json.Unmarshal(metaData, &meta); err != nil {
		s.log.Warn("corrupt snapshot metadata, treating as miss",
			zap.String("key", key),
			zap.Error(err))
		return nil, false, nil
	}

	body, err := os.ReadFile(bodyPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.log.Warn("snapshot metadata exists but body is missing",
				zap.String("key", key))
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to read snapshot body: %w", err)
	}

	return &Snapshot{
		Status:   meta.Status,
		Header:   meta.Header,
		Body:     body,
		StoredAt: time.Unix(meta.StoredAt, 0),
	}, true, nil
}

// Lookup retrieves a snapshot, consulting the mirror on a local miss and
// backfilling the local store on a mirror hit. Errors degrade to a miss;
// the fetch path treats the store as best-effort.
func (s *Store) Lookup(ctx context.Context, key string) (*Snapshot, bool) {
	snap, ok, err := s.Get(key)
	if err != nil {
		s.log.Warn("snapshot read failed", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	if ok {
		return snap, true
	}

	if s.mirror == nil {
		return nil, false
	}

	data, ok, err := s.mirror.Get(ctx, s.name, key)
	if err != nil {
		s.log.Warn("snapshot mirror read failed", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	if !ok {
		return nil, false
	}

	snap, err = decodeSnapshot(data)
	if err != nil {
		s.log.Warn("corrupt mirrored snapshot", zap.String("key", key), zap.Error(err))
		return nil, false
	}

	if err := s.putLocal(key, snap); err != nil {
		s.log.Warn("failed to backfill snapshot from mirror",
			zap.String("key", key), zap.Error(err))
	}
	return snap, true
}

// Delete removes the snapshot for key. Missing entries are not an error.
func (s *Store) Delete(key string) error {
	bodyPath, err := s.keyToPath(key)
	if err != nil {
		return err
	}
	// Metadata first so a concurrent Get never sees metadata without body.
	if err := os.Remove(bodyPath + ".meta"); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	if err := os.Remove(bodyPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// Count returns the number of entries in the store. It walks every shard,
// so it is for the health endpoint and tests, not the fetch path.
func (s *Store) Count() (int, error) {
	count := 0
	for i := 0; i < 256; i++ {
		shard := filepath.Join(s.dir, fmt.Sprintf("%02x", i))
		entries, err := os.ReadDir(shard)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return 0, err
		}
		for _, e := range entries {
			if !e.IsDir() && strings.HasSuffix(e.Name(), ".meta") {
				count++
			}
		}
	}
	return count, nil
}

// Names enumerates the store names present under root, current and
// superseded alike. Dotfiles (the root lock) are skipped.
func Names(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read snapshot root: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

// Remove deletes the named store and everything in it.
func Remove(root, name string) error {
	if err := validName(name); err != nil {
		return err
	}
	return os.RemoveAll(filepath.Join(root, name))
}

func validName(name string) error {
	if name == "" || strings.ContainsAny(name, `/\`) || strings.HasPrefix(name, ".") {
		return fmt.Errorf("invalid store name %q", name)
	}
	return nil
}

// keyToPath maps a hex key to its body file path under the shard named by
// the first key byte.
func (s *Store) keyToPath(key string) (string, error) {
	if len(key) < 2 {
		return "", fmt.Errorf("invalid snapshot key %q", key)
	}
	return filepath.Join(s.dir, key[:2], key), nil
}

// writeFileAtomic writes data to a temp file and renames it into place so
// readers never observe a partial file. The temp name is unique per call
// so concurrent writers to one key each rename a complete file.
func writeFileAtomic(path string, data []byte) error {
	dir, base := filepath.Split(path)
	tmpFile, err := os.CreateTemp(dir, base+"-*")
	if err != nil {
		return err
	}
	tmpPath := tmpFile.Name()
	defer os.Remove(tmpPath)

	_, err = tmpFile.Write(data)
	closeErr := tmpFile.Close()
	if err != nil {
		return err
	}
	if closeErr != nil {
		return closeErr
	}

	return os.Rename(tmpPath, path)
}
