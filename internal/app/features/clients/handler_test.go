package clients_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"

	clientsfeature "github.com/dalemusser/stashgate/internal/app/features/clients"
	"github.com/dalemusser/stashgate/internal/app/system/clientauth"
	"github.com/dalemusser/stashgate/internal/testutil"
)

const testCookieKey = "test-cookie-key-0123456789-0123456789ABCDEF"

func newTestHandler(t *testing.T) *clientsfeature.Handler {
	t.Helper()
	db := testutil.SetupTestDB(t)
	auth, err := clientauth.NewManager(testCookieKey, "stashgate-client", "", false, zap.NewNop())
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	return clientsfeature.NewHandler(db, auth, "stashgate-v3", zap.NewNop())
}

func TestServeRegister(t *testing.T) {
	h := newTestHandler(t)

	req := httptest.NewRequest("POST", "/api/clients/register", nil)
	req.RemoteAddr = "192.0.2.7:4444"
	req.Header.Set("User-Agent", "test-browser/1.0")
	rec := httptest.NewRecorder()

	h.ServeRegister(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if len(rec.Result().Cookies()) == 0 {
		t.Error("registration must set the client cookie")
	}

	var resp struct {
		ClientID     string `json:"client_id"`
		StoreVersion string `json:"store_version"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.ClientID == "" {
		t.Error("expected a client ID")
	}
	if resp.StoreVersion != "stashgate-v3" {
		t.Errorf("store_version: got %q, want stashgate-v3", resp.StoreVersion)
	}
}

func TestServeRegister_Idempotent(t *testing.T) {
	h := newTestHandler(t)

	first := httptest.NewRecorder()
	h.ServeRegister(first, httptest.NewRequest("POST", "/api/clients/register", nil))

	req := httptest.NewRequest("POST", "/api/clients/register", nil)
	for _, c := range first.Result().Cookies() {
		req.AddCookie(c)
	}
	second := httptest.NewRecorder()
	h.ServeRegister(second, req)

	var a, b struct {
		ClientID string `json:"client_id"`
	}
	_ = json.NewDecoder(first.Body).Decode(&a)
	_ = json.NewDecoder(second.Body).Decode(&b)
	if a.ClientID != b.ClientID {
		t.Errorf("re-registration minted a new client: %q vs %q", a.ClientID, b.ClientID)
	}

	n, err := h.Registry.Count(req.Context())
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if n != 1 {
		t.Errorf("registry count: got %d, want 1", n)
	}
}

func TestServeHeartbeat(t *testing.T) {
	h := newTestHandler(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	reg := httptest.NewRecorder()
	h.ServeRegister(reg, httptest.NewRequest("POST", "/api/clients/register", nil))
	var registered struct {
		ClientID string `json:"client_id"`
	}
	_ = json.NewDecoder(reg.Body).Decode(&registered)

	req := httptest.NewRequest("POST", "/api/clients/heartbeat", strings.NewReader(`{"current_url":"/workouts/today"}`))
	req = clientauth.WithTestClient(req, registered.ClientID)
	rec := httptest.NewRecorder()
	h.ServeHeartbeat(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status: got %d, want 204", rec.Code)
	}

	pc, found, err := h.Registry.FindShowing(ctx, "/workouts/today")
	if err != nil || !found {
		t.Fatalf("client not found by current URL: found=%v err=%v", found, err)
	}
	if pc.ClientID != registered.ClientID {
		t.Errorf("client_id: got %q, want %q", pc.ClientID, registered.ClientID)
	}
}

func TestServeHeartbeat_RequiresURL(t *testing.T) {
	h := newTestHandler(t)

	req := httptest.NewRequest("POST", "/api/clients/heartbeat", strings.NewReader(`{}`))
	req = clientauth.WithTestClient(req, "client-1")
	rec := httptest.NewRecorder()
	h.ServeHeartbeat(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status: got %d, want 400", rec.Code)
	}
}

func TestServeUnregister(t *testing.T) {
	h := newTestHandler(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	reg := httptest.NewRecorder()
	h.ServeRegister(reg, httptest.NewRequest("POST", "/api/clients/register", nil))
	var registered struct {
		ClientID string `json:"client_id"`
	}
	_ = json.NewDecoder(reg.Body).Decode(&registered)

	req := httptest.NewRequest("POST", "/api/clients/unregister", nil)
	req = clientauth.WithTestClient(req, registered.ClientID)
	rec := httptest.NewRecorder()
	h.ServeUnregister(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status: got %d, want 204", rec.Code)
	}

	n, err := h.Registry.Count(ctx)
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if n != 0 {
		t.Errorf("registry count after unregister: got %d, want 0", n)
	}
}
