// internal/app/system/ratelimit/ratelimit.go
package ratelimit

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
)

// Limiter provides rate limiting using a sliding window algorithm.
// It is safe for concurrent use.
type Limiter struct {
	mu       sync.Mutex
	windows  map[string]*window
	limit    int           // max requests per window
	duration time.Duration // window duration
	cleanup  time.Duration // how often to clean old entries
}

type window struct {
	count     int
	expiresAt time.Time
}

// New creates a new rate limiter.
// limit: maximum requests allowed per duration
// duration: the time window for counting requests
func New(limit int, duration time.Duration) *Limiter {
	l := &Limiter{
		windows:  make(map[string]*window),
		limit:    limit,
		duration: duration,
		cleanup:  duration * 2, // cleanup entries older than 2x duration
	}
	go l.cleanupLoop()
	return l
}

// Allow checks if a request from the given key should be allowed.
// Returns true if allowed, false if rate limited.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	w, exists := l.windows[key]

	// If no window exists or window expired, create new one
	if !exists || now.After(w.expiresAt) {
		l.windows[key] = &window{
			count:     1,
			expiresAt: now.Add(l.duration),
		}
		return true
	}

	// Window still active - check limit
	if w.count >= l.limit {
		return false
	}

	w.count++
	return true
}

// Remaining returns how many requests are left for this key in the current window.
func (l *Limiter) Remaining(key string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	w, exists := l.windows[key]

	if !exists || now.After(w.expiresAt) {
		return l.limit
	}

	remaining := l.limit - w.count
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Reset clears the rate limit for a specific key.
func (l *Limiter) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.windows, key)
}

// cleanupLoop periodically removes expired entries to prevent memory leaks.
func (l *Limiter) cleanupLoop() {
	ticker := time.NewTicker(l.cleanup)
	defer ticker.Stop()

	for range ticker.C {
		l.mu.Lock()
		now := time.Now()
		for key, w := range l.windows {
			if now.After(w.expiresAt) {
				delete(l.windows, key)
			}
		}
		l.mu.Unlock()
	}
}

// ClientIP extracts the client IP from an HTTP request.
// It checks X-Forwarded-For and X-Real-IP headers first (for proxied requests),
// then falls back to RemoteAddr.
func ClientIP(r *http.Request) string {
	// Check X-Forwarded-For header (comma-separated list, first is client)
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		if len(parts) > 0 {
			ip := strings.TrimSpace(parts[0])
			if ip != "" {
				return ip
			}
		}
	}

	// Check X-Real-IP header
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	// Fall back to RemoteAddr (strip port)
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		// RemoteAddr might not have a port
		return r.RemoteAddr
	}
	return ip
}

// EnqueueLimiter provides specialized rate limiting for sync enqueue and
// push intake. It tracks both IP-based and client-based limits to prevent:
// - A single misbehaving network flooding the queue
// - A stuck page script re-enqueuing the same action in a tight loop
type EnqueueLimiter struct {
	ipLimiter     *Limiter
	clientLimiter *Limiter
}

// NewEnqueueLimiter creates a limiter configured for queue protection.
// Defaults: 60 enqueues per IP per minute, 30 per client per minute.
func NewEnqueueLimiter() *EnqueueLimiter {
	return &EnqueueLimiter{
		ipLimiter:     New(60, time.Minute),
		clientLimiter: New(30, time.Minute),
	}
}

// NewEnqueueLimiterWithConfig creates an enqueue limiter with custom limits.
func NewEnqueueLimiterWithConfig(ipLimit int, ipDuration time.Duration, clientLimit int, clientDuration time.Duration) *EnqueueLimiter {
	return &EnqueueLimiter{
		ipLimiter:     New(ipLimit, ipDuration),
		clientLimiter: New(clientLimit, clientDuration),
	}
}

// Check verifies if an enqueue should be allowed.
// Returns (allowed, reason) where reason explains why it was blocked.
func (el *EnqueueLimiter) Check(r *http.Request, clientID string) (bool, string) {
	ip := ClientIP(r)

	if !el.ipLimiter.Allow(ip) {
		return false, "Too many queued actions from this address. Please wait a minute."
	}

	if clientID != "" {
		if !el.clientLimiter.Allow(clientID) {
			return false, "Too many queued actions for this page. Please wait a minute."
		}
	}

	return true, ""
}

// ResetClient clears the rate limit for a client after a successful replay
// drain, so a freshly reconnected page is not penalized for its backlog.
func (el *EnqueueLimiter) ResetClient(clientID string) {
	if clientID != "" {
		el.clientLimiter.Reset(clientID)
	}
}
