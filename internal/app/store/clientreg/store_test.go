package clientreg_test

import (
	"testing"
	"time"

	"github.com/dalemusser/stashgate/internal/app/store/clientreg"
	"github.com/dalemusser/stashgate/internal/testutil"
	"go.mongodb.org/mongo-driver/bson"
)

func TestStore_Register(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := clientreg.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	pc, err := store.Register(ctx, "client-1", "192.0.2.5", "test-browser/1.0", "stashgate-v3")
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	if pc.ClientID != "client-1" {
		t.Errorf("ClientID: got %q, want client-1", pc.ClientID)
	}
	if pc.StoreVersion != "stashgate-v3" {
		t.Errorf("StoreVersion: got %q, want stashgate-v3", pc.StoreVersion)
	}
	if pc.RegisteredAt.IsZero() || pc.LastSeenAt.IsZero() {
		t.Error("expected registration timestamps to be set")
	}
}

func TestStore_Register_UpsertKeepsRecord(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := clientreg.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	first, err := store.Register(ctx, "client-1", "192.0.2.5", "ua", "stashgate-v2")
	if err != nil {
		t.Fatalf("first Register failed: %v", err)
	}
	second, err := store.Register(ctx, "client-1", "192.0.2.6", "ua", "stashgate-v3")
	if err != nil {
		t.Fatalf("second Register failed: %v", err)
	}

	if first.ID != second.ID {
		t.Error("re-registration must keep the same record")
	}
	if second.StoreVersion != "stashgate-v3" {
		t.Errorf("StoreVersion after re-register: got %q, want stashgate-v3", second.StoreVersion)
	}
	if !second.RegisteredAt.Equal(first.RegisteredAt) {
		t.Error("RegisteredAt must not change on re-registration")
	}

	n, _ := store.Count(ctx)
	if n != 1 {
		t.Errorf("Count: got %d, want 1", n)
	}
}

func TestStore_HeartbeatAndFindShowing(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := clientreg.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	if _, err := store.Register(ctx, "client-1", "ip", "ua", "v"); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if err := store.Heartbeat(ctx, "client-1", "/workouts/today"); err != nil {
		t.Fatalf("Heartbeat failed: %v", err)
	}

	pc, found, err := store.FindShowing(ctx, "/workouts/today")
	if err != nil {
		t.Fatalf("FindShowing failed: %v", err)
	}
	if !found {
		t.Fatal("expected to find the client by its current URL")
	}
	if pc.ClientID != "client-1" {
		t.Errorf("ClientID: got %q, want client-1", pc.ClientID)
	}

	_, found, err = store.FindShowing(ctx, "/somewhere-else")
	if err != nil {
		t.Fatalf("FindShowing failed: %v", err)
	}
	if found {
		t.Error("expected no client for an unseen URL")
	}
}

func TestStore_Heartbeat_UnknownClientIgnored(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := clientreg.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	if err := store.Heartbeat(ctx, "ghost", "/anywhere"); err != nil {
		t.Errorf("heartbeat from unknown client should be ignored, got %v", err)
	}
	n, _ := store.Count(ctx)
	if n != 0 {
		t.Errorf("Count: got %d, want 0", n)
	}
}

func TestStore_ClaimAll(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := clientreg.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	store.Register(ctx, "client-1", "ip", "ua", "stashgate-v2")
	store.Register(ctx, "client-2", "ip", "ua", "stashgate-v2")

	n, err := store.ClaimAll(ctx, "stashgate-v3")
	if err != nil {
		t.Fatalf("ClaimAll failed: %v", err)
	}
	if n != 2 {
		t.Errorf("claimed: got %d, want 2", n)
	}

	pc, err := store.Register(ctx, "client-1", "ip", "ua", "stashgate-v3")
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if pc.StoreVersion != "stashgate-v3" {
		t.Errorf("StoreVersion after claim: got %q, want stashgate-v3", pc.StoreVersion)
	}
}

func TestStore_SweepStale(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := clientreg.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()
	fx := testutil.NewFixtures(t, db)

	// A fresh client and one that stopped heartbeating.
	store.Register(ctx, "fresh", "ip", "ua", "v")
	stale := fx.CreatePageClient(ctx, "/old")
	_, err := db.Collection("page_clients").UpdateOne(ctx,
		bson.M{"client_id": stale.ClientID},
		bson.M{"$set": bson.M{"last_seen_at": time.Now().UTC().Add(-time.Hour)}},
	)
	if err != nil {
		t.Fatalf("backdating stale client failed: %v", err)
	}

	n, err := store.SweepStale(ctx, 10*time.Minute)
	if err != nil {
		t.Fatalf("SweepStale failed: %v", err)
	}
	if n != 1 {
		t.Errorf("swept: got %d, want 1", n)
	}

	total, _ := store.Count(ctx)
	if total != 1 {
		t.Errorf("Count after sweep: got %d, want 1", total)
	}
}

func TestStore_Unregister(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := clientreg.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	store.Register(ctx, "client-1", "ip", "ua", "v")
	if err := store.Unregister(ctx, "client-1"); err != nil {
		t.Fatalf("Unregister failed: %v", err)
	}

	n, _ := store.Count(ctx)
	if n != 0 {
		t.Errorf("Count after unregister: got %d, want 0", n)
	}
}
