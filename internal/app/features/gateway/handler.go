// internal/app/features/gateway/handler.go
package gateway

import (
	"net/http"
	"net/url"

	"go.uber.org/zap"

	"github.com/dalemusser/stashgate/internal/app/store/snapshots"
	"github.com/dalemusser/stashgate/internal/app/system/metrics"
	"github.com/dalemusser/stashgate/internal/app/system/policy"
)

// Handler is the cache router: it decides, per request, whether to serve a
// stored snapshot, fetch upstream, populate the store, or fall back to the
// offline page.
type Handler struct {
	Store   *snapshots.Store
	Policy  *policy.Policy
	Metrics *metrics.Collector
	Client  *http.Client

	OriginBase  *url.URL
	APIBase     *url.URL
	OfflinePath string

	Log *zap.Logger
}

// NewHandler constructs a gateway Handler. client may be nil, in which
// case http.DefaultClient is used (tests pass their own).
func NewHandler(store *snapshots.Store, pol *policy.Policy, collector *metrics.Collector, client *http.Client, originBase, apiBase *url.URL, offlinePath string, logger *zap.Logger) *Handler {
	if client == nil {
		client = http.DefaultClient
	}
	return &Handler{
		Store:       store,
		Policy:      pol,
		Metrics:     collector,
		Client:      client,
		OriginBase:  originBase,
		APIBase:     apiBase,
		OfflinePath: offlinePath,
		Log:         logger,
	}
}
