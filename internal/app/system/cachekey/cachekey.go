// internal/app/system/cachekey/cachekey.go

// Package cachekey derives snapshot store keys from request identity.
//
// A key is the hex BLAKE2b-256 digest of "METHOD\nURL" with the URL in
// canonical form (fragment stripped, query preserved, host lowercased).
// Hex keys let the store shard entries by their first byte the same way
// Go's build cache does.
package cachekey

import (
	"encoding/hex"
	"net/url"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// Key returns the store key for a method and URL.
// The method is uppercased so "get" and "GET" share an entry.
func Key(method, rawURL string) string {
	sum := blake2b.Sum256([]byte(strings.ToUpper(method) + "\n" + Canonical(rawURL)))
	return hex.EncodeToString(sum[:])
}

// KeyForURL returns the key for a GET of the given URL. Only GET requests
// participate in caching, so this covers precache and fallback lookups.
func KeyForURL(rawURL string) string {
	return Key("GET", rawURL)
}

// Canonical normalizes a URL for keying: scheme and host are lowercased,
// the fragment is dropped, and an empty path becomes "/". Query strings are
// preserved verbatim since API responses vary on them.
func Canonical(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		// Unparseable URLs key on their raw text; they will simply never
		// collide with a canonical entry.
		return rawURL
	}
	u.Fragment = ""
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	if u.Path == "" {
		u.Path = "/"
	}
	return u.String()
}
