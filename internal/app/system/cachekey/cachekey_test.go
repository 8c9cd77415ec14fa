package cachekey_test

import (
	"testing"

	"github.com/dalemusser/stashgate/internal/app/system/cachekey"
)

func TestKey_MethodCaseInsensitive(t *testing.T) {
	a := cachekey.Key("get", "https://fit.example.com/workouts")
	b := cachekey.Key("GET", "https://fit.example.com/workouts")
	if a != b {
		t.Errorf("method case should not change the key: %s vs %s", a, b)
	}
}

func TestKey_FragmentIgnored(t *testing.T) {
	a := cachekey.KeyForURL("https://fit.example.com/workouts#week-3")
	b := cachekey.KeyForURL("https://fit.example.com/workouts")
	if a != b {
		t.Error("fragment should not change the key")
	}
}

func TestKey_HostCaseInsensitive(t *testing.T) {
	a := cachekey.KeyForURL("https://FIT.Example.COM/workouts")
	b := cachekey.KeyForURL("https://fit.example.com/workouts")
	if a != b {
		t.Error("host case should not change the key")
	}
}

func TestKey_EmptyPathIsRoot(t *testing.T) {
	a := cachekey.KeyForURL("https://fit.example.com")
	b := cachekey.KeyForURL("https://fit.example.com/")
	if a != b {
		t.Error("empty path and / should share a key")
	}
}

func TestKey_QueryDistinguishes(t *testing.T) {
	a := cachekey.KeyForURL("https://api.fit.example.com/api/workouts?week=1")
	b := cachekey.KeyForURL("https://api.fit.example.com/api/workouts?week=2")
	if a == b {
		t.Error("different queries must produce different keys")
	}
}

func TestKey_MethodDistinguishes(t *testing.T) {
	a := cachekey.Key("GET", "https://api.fit.example.com/api/workouts")
	b := cachekey.Key("HEAD", "https://api.fit.example.com/api/workouts")
	if a == b {
		t.Error("different methods must produce different keys")
	}
}

func TestKey_IsHex64(t *testing.T) {
	key := cachekey.KeyForURL("https://fit.example.com/")
	if len(key) != 64 {
		t.Errorf("key length: got %d, want 64", len(key))
	}
	for _, c := range key {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			t.Fatalf("key contains non-hex character %q", c)
		}
	}
}
