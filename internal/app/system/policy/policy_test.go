package policy_test

import (
	"net/http/httptest"
	"testing"

	"github.com/dalemusser/stashgate/internal/app/system/policy"
)

func newTestPolicy(t *testing.T) *policy.Policy {
	t.Helper()
	p, err := policy.New(
		"https://fit.example.com",
		"https://api.fit.example.com",
		"/api/",
		[]string{"tiles.osm.example", "*.cdn.example"},
	)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return p
}

func TestNew_RejectsBadInputs(t *testing.T) {
	if _, err := policy.New("not a url", "https://api.example.com", "/api/", nil); err == nil {
		t.Error("expected error for invalid origin URL")
	}
	if _, err := policy.New("https://example.com", "https://api.example.com", "api/", nil); err == nil {
		t.Error("expected error for prefix without leading slash")
	}
}

func TestAllowed(t *testing.T) {
	p := newTestPolicy(t)

	tests := []struct {
		host string
		want bool
	}{
		{"fit.example.com", true},
		{"FIT.EXAMPLE.COM", true},
		{"api.fit.example.com", true},
		{"tiles.osm.example", true},
		{"assets.cdn.example", true},
		{"deep.assets.cdn.example", true},
		{"cdn.example", false}, // wildcard matches subdomains only
		{"evil.example.com", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := p.Allowed(tt.host); got != tt.want {
			t.Errorf("Allowed(%q): got %v, want %v", tt.host, got, tt.want)
		}
	}
}

func TestDecide(t *testing.T) {
	p := newTestPolicy(t)

	tests := []struct {
		name   string
		method string
		target string
		host   string
		want   policy.Branch
	}{
		{"post is passthrough", "POST", "/api/workouts", "fit.example.com", policy.Passthrough},
		{"put is passthrough", "PUT", "/style.css", "fit.example.com", policy.Passthrough},
		{"unknown host is passthrough", "GET", "/app.js", "other.example.net", policy.Passthrough},
		{"api path is network-first", "GET", "/api/workouts", "fit.example.com", policy.NetworkFirst},
		{"api host api path is network-first", "GET", "/api/v2/stats", "api.fit.example.com", policy.NetworkFirst},
		{"page is cache-first", "GET", "/workouts", "fit.example.com", policy.CacheFirst},
		{"asset is cache-first", "GET", "/static/css/app.css", "fit.example.com", policy.CacheFirst},
		{"cdn asset is cache-first", "GET", "/sprite.png", "assets.cdn.example", policy.CacheFirst},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(tt.method, tt.target, nil)
			r.Host = tt.host
			if got := p.Decide(r); got != tt.want {
				t.Errorf("Decide: got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsNavigation(t *testing.T) {
	nav := httptest.NewRequest("GET", "/workouts", nil)
	nav.Header.Set("Sec-Fetch-Mode", "navigate")
	if !policy.IsNavigation(nav) {
		t.Error("Sec-Fetch-Mode navigate should be a navigation")
	}

	sub := httptest.NewRequest("GET", "/static/js/app.js", nil)
	sub.Header.Set("Sec-Fetch-Mode", "no-cors")
	sub.Header.Set("Accept", "text/html") // fetch metadata wins over Accept
	if policy.IsNavigation(sub) {
		t.Error("Sec-Fetch-Mode no-cors should not be a navigation")
	}

	legacy := httptest.NewRequest("GET", "/workouts", nil)
	legacy.Header.Set("Accept", "text/html,application/xhtml+xml,*/*;q=0.8")
	if !policy.IsNavigation(legacy) {
		t.Error("Accept leading with text/html should be a navigation")
	}

	asset := httptest.NewRequest("GET", "/static/css/app.css", nil)
	asset.Header.Set("Accept", "text/css,*/*;q=0.1")
	if policy.IsNavigation(asset) {
		t.Error("Accept text/css should not be a navigation")
	}
}
