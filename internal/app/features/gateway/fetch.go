// internal/app/features/gateway/fetch.go
package gateway

import (
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/dalemusser/stashgate/internal/app/store/snapshots"
	"github.com/dalemusser/stashgate/internal/app/system/cachekey"
	"github.com/dalemusser/stashgate/internal/app/system/policy"
	"github.com/dalemusser/stashgate/internal/app/system/timeouts"
)

// maxSnapshotBody caps what the store will hold for one entry. Larger
// responses are still served, just never snapshotted.
const maxSnapshotBody = 32 << 20 // 32 MB

// ServeHTTP routes one request through the fetch policy.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	branch := h.Policy.Decide(r)
	start := time.Now()

	switch branch {
	case policy.NetworkFirst:
		h.networkFirst(w, r)
	case policy.CacheFirst:
		h.cacheFirst(w, r)
	default:
		h.passthrough(w, r)
	}

	h.Metrics.Record(branch.String(), time.Since(start))
}

// passthrough proxies the request unmodified: no snapshot read, no
// snapshot write. Upstream failure here is an honest 502; the offline
// machinery only backs intercepted requests.
func (h *Handler) passthrough(w http.ResponseWriter, r *http.Request) {
	h.Metrics.Count("passthrough")

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Medium(), h.Log, "upstream passthrough")
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, r.Method, h.targetURL(r).String(), r.Body)
	if err != nil {
		http.Error(w, "bad gateway", http.StatusBadGateway)
		return
	}
	copyHeader(req.Header, r.Header)

	resp, err := h.Client.Do(req)
	if err != nil {
		http.Error(w, "bad gateway", http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()

	copyHeader(w.Header(), resp.Header)
	w.WriteHeader(resp.StatusCode)
	_, _ = io.Copy(w, resp.Body)
}

// networkFirst serves API requests: try the upstream, snapshot whatever it
// returns (best-effort), and fall back to the store only when the network
// itself fails. A miss on both sides is a 504; the client sees the same
// thing it would from a dead upstream.
func (h *Handler) networkFirst(w http.ResponseWriter, r *http.Request) {
	target := h.targetURL(r)
	key := cachekey.Key(r.Method, target.String())

	resp, body, err := h.fetchUpstream(r, target)
	if err == nil {
		snap := &snapshots.Snapshot{
			Status:   resp.StatusCode,
			Header:   storableHeader(resp.Header),
			Body:     body,
			StoredAt: time.Now().UTC(),
		}
		if len(body) <= maxSnapshotBody {
			if err := h.Store.Put(key, snap); err != nil {
				h.Metrics.Count("store_write_error")
				h.Log.Warn("failed to store API snapshot",
					zap.String("url", target.String()),
					zap.Error(err))
			} else {
				h.Metrics.Count("store_write")
			}
		}
		writeSnapshot(w, snap)
		return
	}

	h.Log.Debug("API fetch failed, trying snapshot",
		zap.String("url", target.String()),
		zap.Error(err))

	if snap, ok := h.Store.Lookup(r.Context(), key); ok {
		h.Metrics.Count("hit")
		writeSnapshot(w, snap)
		return
	}

	h.Metrics.Count("miss")
	http.Error(w, "upstream unreachable", http.StatusGatewayTimeout)
}

// cacheFirst serves static assets: a stored snapshot wins outright, the
// upstream is only asked on a miss, and the result is stored only when it
// is a 200 from the gateway's own origin. When both the store and the
// upstream fail, navigations get the precached offline page and
// subresources get an empty 408.
func (h *Handler) cacheFirst(w http.ResponseWriter, r *http.Request) {
	target := h.targetURL(r)
	key := cachekey.Key(r.Method, target.String())

	if snap, ok, err := h.Store.Get(key); err == nil && ok {
		h.Metrics.Count("hit")
		writeSnapshot(w, snap)
		return
	}
	h.Metrics.Count("miss")

	resp, body, err := h.fetchUpstream(r, target)
	if err == nil {
		if resp.StatusCode == http.StatusOK && h.ownOrigin(resp) && len(body) <= maxSnapshotBody {
			snap := &snapshots.Snapshot{
				Status:   resp.StatusCode,
				Header:   storableHeader(resp.Header),
				Body:     body,
				StoredAt: time.Now().UTC(),
			}
			if err := h.Store.Put(key, snap); err != nil {
				h.Metrics.Count("store_write_error")
				h.Log.Warn("failed to store asset snapshot",
					zap.String("url", target.String()),
					zap.Error(err))
			} else {
				h.Metrics.Count("store_write")
			}
		}
		copyHeader(w.Header(), resp.Header)
		w.WriteHeader(resp.StatusCode)
		_, _ = w.Write(body)
		return
	}

	h.Log.Debug("asset fetch failed with no snapshot",
		zap.String("url", target.String()),
		zap.Error(err))

	if policy.IsNavigation(r) {
		offlineURL := h.resolveOrigin(h.OfflinePath)
		if snap, ok, err := h.Store.Get(cachekey.KeyForURL(offlineURL)); err == nil && ok {
			h.Metrics.Count("offline_fallback")
			writeSnapshot(w, snap)
			return
		}
	}

	h.Metrics.Count("timeout_synthesized")
	w.WriteHeader(http.StatusRequestTimeout)
}

// fetchUpstream performs the GET and reads the whole body, since a
// snapshot needs the bytes anyway. The incoming request's headers ride
// along so content negotiation survives the hop.
func (h *Handler) fetchUpstream(r *http.Request, target *url.URL) (*http.Response, []byte, error) {
	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Medium(), h.Log, "upstream fetch")
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, nil, err
	}
	copyHeader(req.Header, r.Header)

	resp, err := h.Client.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, err
	}
	return resp, body, nil
}

// targetURL maps an incoming request to its upstream URL. Requests for the
// gateway's own host go to the origin base, API-host requests to the API
// base, and other allow-listed hosts are addressed directly over https.
func (h *Handler) targetURL(r *http.Request) *url.URL {
	if r.URL.IsAbs() {
		u := *r.URL
		return &u
	}

	host := r.Host
	var base *url.URL
	switch {
	case host == "" || strings.EqualFold(host, h.OriginBase.Host):
		base = h.OriginBase
	case strings.EqualFold(host, h.APIBase.Host):
		base = h.APIBase
	default:
		return &url.URL{
			Scheme:   "https",
			Host:     host,
			Path:     r.URL.Path,
			RawQuery: r.URL.RawQuery,
		}
	}

	u := *base
	u.Path = r.URL.Path
	u.RawQuery = r.URL.RawQuery
	return &u
}

// resolveOrigin resolves a path against the origin base URL.
func (h *Handler) resolveOrigin(path string) string {
	u := *h.OriginBase
	u.Path = path
	return u.String()
}

// ownOrigin reports whether the response ultimately came from the
// gateway's own origin (no redirect off it). This is the storability
// check for the cache-first branch.
func (h *Handler) ownOrigin(resp *http.Response) bool {
	return resp.Request != nil &&
		strings.EqualFold(resp.Request.URL.Host, h.OriginBase.Host)
}

// writeSnapshot writes a stored (or just-fetched) snapshot to the client.
func writeSnapshot(w http.ResponseWriter, snap *snapshots.Snapshot) {
	copyHeader(w.Header(), snap.Header)
	w.WriteHeader(snap.Status)
	_, _ = w.Write(snap.Body)
}

// hopByHop lists headers that never cross the proxy hop. Set-Cookie is
// included on the storable side only; it still passes through live
// responses.
var hopByHop = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Proxy-Connection",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// copyHeader copies headers except hop-by-hop ones.
func copyHeader(dst, src http.Header) {
	for name, values := range src {
		if isHopByHop(name) {
			continue
		}
		for _, v := range values {
			dst.Add(name, v)
		}
	}
}

// storableHeader clones a response header for the store, dropping
// hop-by-hop headers and cookies. A snapshot served later must never
// replay someone's Set-Cookie.
func storableHeader(src http.Header) http.Header {
	dst := make(http.Header, len(src))
	for name, values := range src {
		if isHopByHop(name) || http.CanonicalHeaderKey(name) == "Set-Cookie" {
			continue
		}
		for _, v := range values {
			dst.Add(name, v)
		}
	}
	return dst
}

func isHopByHop(name string) bool {
	canonical := http.CanonicalHeaderKey(name)
	for _, hh := range hopByHop {
		if canonical == hh {
			return true
		}
	}
	return false
}
