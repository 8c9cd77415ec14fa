// internal/app/system/policy/policy.go

// Package policy decides, per request, which branch of the fetch routing
// the gateway takes: pass-through, network-first, or cache-first.
package policy

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// Branch is the routing decision for one request.
type Branch int

const (
	// Passthrough requests are proxied unmodified: non-GET methods and
	// hosts outside the allow-list.
	Passthrough Branch = iota
	// NetworkFirst requests (API paths) try the upstream before the store.
	NetworkFirst
	// CacheFirst requests (everything else matched) try the store first.
	CacheFirst
)

func (b Branch) String() string {
	switch b {
	case NetworkFirst:
		return "network-first"
	case CacheFirst:
		return "cache-first"
	default:
		return "passthrough"
	}
}

// Policy holds the allow-list and path rules. It is immutable after New.
type Policy struct {
	ownHost       string
	apiHost       string
	apiPathPrefix string
	allowed       map[string]struct{} // exact hosts
	allowedSuffix []string            // wildcard entries, stored as ".example.com"
}

// New builds a Policy.
//
// originBaseURL and apiBaseURL contribute their hosts to the allow-list
// automatically. extraOrigins lists additional allow-listed hosts (mapping
// and tile servers, geolocation services); an entry starting with "*."
// matches any subdomain. apiPathPrefix marks network-first paths and must
// begin with "/".
func New(originBaseURL, apiBaseURL, apiPathPrefix string, extraOrigins []string) (*Policy, error) {
	origin, err := url.Parse(originBaseURL)
	if err != nil || origin.Host == "" {
		return nil, fmt.Errorf("invalid origin base URL %q", originBaseURL)
	}
	api, err := url.Parse(apiBaseURL)
	if err != nil || api.Host == "" {
		return nil, fmt.Errorf("invalid API base URL %q", apiBaseURL)
	}
	if !strings.HasPrefix(apiPathPrefix, "/") {
		return nil, fmt.Errorf("API path prefix %q must start with /", apiPathPrefix)
	}

	p := &Policy{
		ownHost:       strings.ToLower(origin.Host),
		apiHost:       strings.ToLower(api.Host),
		apiPathPrefix: apiPathPrefix,
		allowed:       make(map[string]struct{}),
	}
	p.allowed[p.ownHost] = struct{}{}
	p.allowed[p.apiHost] = struct{}{}

	for _, entry := range extraOrigins {
		entry = strings.ToLower(strings.TrimSpace(entry))
		if entry == "" {
			continue
		}
		if host := strings.TrimPrefix(entry, "*."); host != entry {
			p.allowedSuffix = append(p.allowedSuffix, "."+host)
			continue
		}
		p.allowed[entry] = struct{}{}
	}
	return p, nil
}

// OwnHost returns the gateway's own origin host.
func (p *Policy) OwnHost() string { return p.ownHost }

// Allowed reports whether the host is on the allow-list.
func (p *Policy) Allowed(host string) bool {
	host = strings.ToLower(host)
	if _, ok := p.allowed[host]; ok {
		return true
	}
	for _, suffix := range p.allowedSuffix {
		if strings.HasSuffix(host, suffix) {
			return true
		}
	}
	return false
}

// IsAPIPath reports whether the path falls under the network-first prefix.
func (p *Policy) IsAPIPath(path string) bool {
	return strings.HasPrefix(path, p.apiPathPrefix)
}

// Decide returns the routing branch for a request.
//
// Non-GET methods and hosts off the allow-list are never intercepted.
// Allow-listed GETs split on the API path prefix: network-first for API
// calls, cache-first for everything else.
func (p *Policy) Decide(r *http.Request) Branch {
	if r.Method != http.MethodGet {
		return Passthrough
	}
	if !p.Allowed(requestHost(r)) {
		return Passthrough
	}
	if p.IsAPIPath(r.URL.Path) {
		return NetworkFirst
	}
	return CacheFirst
}

// IsNavigation reports whether the request is loading a full page document
// rather than a subresource. Fetch metadata is authoritative when present;
// otherwise an Accept header leading with text/html is taken as navigation.
func IsNavigation(r *http.Request) bool {
	if mode := r.Header.Get("Sec-Fetch-Mode"); mode != "" {
		return mode == "navigate"
	}
	accept := r.Header.Get("Accept")
	return strings.HasPrefix(accept, "text/html") ||
		strings.HasPrefix(accept, "application/xhtml+xml")
}

// requestHost is the host the request targeted: the URL host for
// absolute-form requests, else the Host header.
func requestHost(r *http.Request) string {
	if r.URL.IsAbs() {
		return r.URL.Host
	}
	return r.Host
}
