// internal/app/features/gateway/precache.go
package gateway

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/dalemusser/stashgate/internal/app/store/snapshots"
	"github.com/dalemusser/stashgate/internal/app/system/cachekey"
	"github.com/dalemusser/stashgate/internal/app/system/metrics"
)

//go:embed precache_manifest.json
var manifestFS embed.FS

// PrecacheManifest is the fixed list of shell URLs populated into the
// store at install time. It is embedded at build time and never mutated
// at runtime.
type PrecacheManifest struct {
	URLs []string `json:"urls"`
}

// LoadPrecacheManifest reads the embedded precache manifest.
func LoadPrecacheManifest() (PrecacheManifest, error) {
	data, err := manifestFS.ReadFile("precache_manifest.json")
	if err != nil {
		return PrecacheManifest{}, fmt.Errorf("failed to read precache manifest: %w", err)
	}
	var m PrecacheManifest
	if err := json.Unmarshal(data, &m); err != nil {
		return PrecacheManifest{}, fmt.Errorf("failed to parse precache manifest: %w", err)
	}
	return m, nil
}

// Precache bulk-inserts the manifest URLs into the store. Individual
// fetch failures are logged and tolerated; installation proceeds with
// whatever succeeded. Relative URLs resolve against the origin base.
func Precache(ctx context.Context, store *snapshots.Store, originBase *url.URL, client *http.Client, collector *metrics.Collector, manifest PrecacheManifest, logger *zap.Logger) {
	if client == nil {
		client = http.DefaultClient
	}

	for _, raw := range manifest.URLs {
		ref, err := url.Parse(raw)
		if err != nil {
			collector.Count("precache_failed")
			logger.Warn("skipping unparseable precache URL", zap.String("url", raw))
			continue
		}
		target := originBase.ResolveReference(ref)

		if err := precacheOne(ctx, store, client, target); err != nil {
			collector.Count("precache_failed")
			logger.Warn("precache fetch failed",
				zap.String("url", target.String()),
				zap.Error(err))
			continue
		}
		collector.Count("precache_ok")
	}
}

func precacheOne(ctx context.Context, store *snapshots.Store, client *http.Client, target *url.URL) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return err
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	return store.Put(cachekey.KeyForURL(target.String()), &snapshots.Snapshot{
		Status:   resp.StatusCode,
		Header:   storableHeader(resp.Header),
		Body:     body,
		StoredAt: time.Now().UTC(),
	})
}
