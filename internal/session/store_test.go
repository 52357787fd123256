package session

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// newTestStore creates a Store connected to a local Redis instance. Tests
// that call this helper require a running Redis on localhost:6379 and are
// skipped otherwise.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("redis not available: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return NewStore(client)
}

func createTestSession(t *testing.T, store *Store) string {
	t.Helper()
	ctx := context.Background()
	id := "test_" + uuid.New().String()
	if err := store.Create(ctx, id, "requester-1"); err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	t.Cleanup(func() { store.Delete(ctx, id) })
	return id
}

func TestCreateAndGet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	id := createTestSession(t, store)

	sess, err := store.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if sess == nil {
		t.Fatal("expected session, got nil")
	}
	if sess.Status != StatusWaiting {
		t.Errorf("expected status %q, got %q", StatusWaiting, sess.Status)
	}
	if sess.RequesterID != "requester-1" {
		t.Errorf("expected requester %q, got %q", "requester-1", sess.RequesterID)
	}
	if sess.AdminID != "" {
		t.Errorf("expected empty admin_id, got %q", sess.AdminID)
	}
}

func TestGetNotFound(t *testing.T) {
	store := newTestStore(t)

	sess, err := store.Get(context.Background(), "test_does_not_exist")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if sess != nil {
		t.Errorf("expected nil for missing session, got %+v", sess)
	}
}

func TestJoinTransitionsToActive(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	id := createTestSession(t, store)

	result, err := store.Join(ctx, id, "admin-7")
	if err != nil {
		t.Fatalf("Join() error: %v", err)
	}
	if result != JoinOK {
		t.Fatalf("expected JoinOK, got %d", result)
	}

	sess, _ := store.Get(ctx, id)
	if sess.Status != StatusActive {
		t.Errorf("expected status %q, got %q", StatusActive, sess.Status)
	}
	if sess.AdminID != "admin-7" {
		t.Errorf("expected admin_id %q, got %q", "admin-7", sess.AdminID)
	}
}

func TestJoinRejectsSecondAdmin(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	id := createTestSession(t, store)

	if result, _ := store.Join(ctx, id, "admin-1"); result != JoinOK {
		t.Fatalf("first join: expected JoinOK, got %d", result)
	}
	result, err := store.Join(ctx, id, "admin-2")
	if err != nil {
		t.Fatalf("Join() error: %v", err)
	}
	if result != JoinWrongStatus {
		t.Errorf("expected JoinWrongStatus, got %d", result)
	}

	sess, _ := store.Get(ctx, id)
	if sess.AdminID != "admin-1" {
		t.Errorf("first admin should keep the session, got %q", sess.AdminID)
	}
}

func TestJoinNotFound(t *testing.T) {
	store := newTestStore(t)

	result, err := store.Join(context.Background(), "test_missing", "admin-1")
	if err != nil {
		t.Fatalf("Join() error: %v", err)
	}
	if result != JoinNotFound {
		t.Errorf("expected JoinNotFound, got %d", result)
	}
}

func TestCloseIsTerminal(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	id := createTestSession(t, store)

	closed, err := store.Close(ctx, id)
	if err != nil {
		t.Fatalf("Close() error: %v", err)
	}
	if !closed {
		t.Fatal("expected first close to transition")
	}

	// Second close is a no-op.
	closed, err = store.Close(ctx, id)
	if err != nil {
		t.Fatalf("second Close() error: %v", err)
	}
	if closed {
		t.Error("expected second close to be a no-op")
	}

	// No transition out of closed.
	result, _ := store.Join(ctx, id, "admin-1")
	if result != JoinWrongStatus {
		t.Errorf("expected join after close to be rejected, got %d", result)
	}

	sess, _ := store.Get(ctx, id)
	if !sess.IsClosed() {
		t.Errorf("expected closed session, got status %q", sess.Status)
	}
	if sess.ClosedAt == 0 {
		t.Error("expected closed_at to be set")
	}
}

func TestWaitingQueueOrdering(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first := createTestSession(t, store)
	second := createTestSession(t, store)

	entries, err := store.ListWaiting(ctx, 100)
	if err != nil {
		t.Fatalf("ListWaiting() error: %v", err)
	}

	// Only look at our own test sessions; other tests may run in parallel.
	var ours []string
	for _, e := range entries {
		if e.SessionID == first || e.SessionID == second {
			ours = append(ours, e.SessionID)
		}
	}
	if len(ours) != 2 {
		t.Fatalf("expected both test sessions waiting, got %v", ours)
	}
	if ours[0] != first {
		t.Errorf("expected oldest session first, got %v", ours)
	}

	// Join removes from the queue.
	if result, _ := store.Join(ctx, first, "admin-1"); result != JoinOK {
		t.Fatal("join failed")
	}
	entries, _ = store.ListWaiting(ctx, 100)
	for _, e := range entries {
		if e.SessionID == first {
			t.Error("joined session should leave the waiting queue")
		}
	}
}

func TestCloseRemovesFromWaitingQueue(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	id := createTestSession(t, store)

	if _, err := store.Close(ctx, id); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	entries, _ := store.ListWaiting(ctx, 100)
	for _, e := range entries {
		if e.SessionID == id {
			t.Error("closed session should leave the waiting queue")
		}
	}
}
