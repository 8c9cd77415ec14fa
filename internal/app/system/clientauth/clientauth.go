// internal/app/system/clientauth/clientauth.go

// Package clientauth issues and reads the signed client-identity cookie.
// A "client" is one open browser page; the cookie carries only its UUID.
// There is no user identity here: authentication is out of scope for the
// gateway, and the ID exists so sync actions and notice click routing can
// be tied back to the page that produced them.
package clientauth

import (
	"context"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/securecookie"
	"github.com/gorilla/sessions"
	"go.uber.org/zap"
)

const clientIDKey = "client_id"

type ctxKey string

const currentClientKey ctxKey = "currentClient"

// Manager wraps the cookie store for client identity.
type Manager struct {
	store *sessions.CookieStore
	name  string
	log   *zap.Logger
}

// NewManager builds a Manager.
//
// cookieKey signs the cookie and must be at least 32 bytes; if empty, a
// random key is generated and a warning logged (identities then reset on
// restart, acceptable only in dev). Secure cookies should be enabled in
// production.
func NewManager(cookieKey, cookieName, domain string, secure bool, logger *zap.Logger) (*Manager, error) {
	var key []byte
	switch {
	case cookieKey == "":
		key = securecookie.GenerateRandomKey(32)
		if key == nil {
			return nil, fmt.Errorf("failed to generate client cookie key")
		}
		logger.Warn("client_cookie_key not set; generated a random key, client identities will not survive restarts")
	case len(cookieKey) < 32:
		return nil, fmt.Errorf("client_cookie_key must be at least 32 bytes, got %d", len(cookieKey))
	default:
		key = []byte(cookieKey)
	}

	store := sessions.NewCookieStore(key)
	store.Options = &sessions.Options{
		Path:     "/",
		Domain:   domain,
		MaxAge:   60 * 60 * 24 * 30, // 30 days
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}

	return &Manager{store: store, name: cookieName, log: logger}, nil
}

// ClientID returns the client ID from the request cookie, if present.
func (m *Manager) ClientID(r *http.Request) (string, bool) {
	sess, err := m.store.Get(r, m.name)
	if err != nil {
		// Tampered or stale cookie: treat as absent.
		return "", false
	}
	id, ok := sess.Values[clientIDKey].(string)
	return id, ok && id != ""
}

// Issue returns the request's existing client ID or mints a new one,
// writing the cookie either way so the expiry slides forward.
func (m *Manager) Issue(w http.ResponseWriter, r *http.Request) (string, error) {
	sess, _ := m.store.Get(r, m.name)

	id, ok := sess.Values[clientIDKey].(string)
	if !ok || id == "" {
		id = uuid.NewString()
		sess.Values[clientIDKey] = id
	}

	if err := sess.Save(r, w); err != nil {
		return "", fmt.Errorf("failed to save client cookie: %w", err)
	}
	return id, nil
}

// Clear expires the client cookie.
func (m *Manager) Clear(w http.ResponseWriter, r *http.Request) error {
	sess, _ := m.store.Get(r, m.name)
	sess.Options.MaxAge = -1
	delete(sess.Values, clientIDKey)
	return sess.Save(r, w)
}

// WithClient injects the client ID into the request context when the
// cookie is present. Absence is not an error; handlers that require an
// identity use RequireClient.
func (m *Manager) WithClient(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id, ok := m.ClientID(r); ok {
			r = r.WithContext(context.WithValue(r.Context(), currentClientKey, id))
		}
		next.ServeHTTP(w, r)
	})
}

// RequireClient rejects requests without a client identity. These are API
// endpoints called by page script, so the answer is a plain 401, never a
// redirect.
func (m *Manager) RequireClient(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := CurrentClient(r); !ok {
			http.Error(w, "client not registered", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// CurrentClient returns the client ID set by WithClient.
func CurrentClient(r *http.Request) (string, bool) {
	id, ok := r.Context().Value(currentClientKey).(string)
	return id, ok && id != ""
}

// WithTestClient returns a request carrying the given client ID in context.
// Test helper for handlers behind RequireClient.
func WithTestClient(r *http.Request, clientID string) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), currentClientKey, clientID))
}
