package statemanager_test

import (
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/johnnyb12331-lgtm/FreeTalkAPI-sub001/pkg/state"
	"github.com/johnnyb12331-lgtm/FreeTalkAPI-sub001/pkg/state/statemanager"
	"github.com/google/uuid"
)

// --- Test Suite Setup ---

func newTestLogger() *slog.Logger {
	// Discard logger output during tests by setting a high level
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError + 1})
	return slog.New(handler)
}

func newTestManager() *statemanager.InMemoryManager {
	return statemanager.NewInMemoryManager(newTestLogger())
}

// fakeSender satisfies transport.Sender without a real socket.
type fakeSender struct {
	id uuid.UUID
}

func newFakeSender() *fakeSender { return &fakeSender{id: uuid.New()} }
func (f *fakeSender) ID() uuid.UUID { return f.id }
func (f *fakeSender) Send(message []byte) {}
func (f *fakeSender) Close(err error) {}

// --- Connection and User Management Tests ---

func TestConnectionLifecycle(t *testing.T) {
	m := newTestManager()
	conn := newFakeSender()

	// 1. Register
	stateConn, err := m.RegisterConnection(conn, "127.0.0.1", "user-1")
	if err != nil {
		t.Fatalf("RegisterConnection failed: %v", err)
	}
	if stateConn.ID != conn.ID() {
		t.Errorf("Registered connection ID mismatch")
	}
	if stateConn.Subject != "user-1" {
		t.Errorf("Expected subject user-1, got %s", stateConn.Subject)
	}

	// 2. Registering the same connection twice must fail
	if _, err := m.RegisterConnection(conn, "127.0.0.1", "user-1"); err == nil {
		t.Error("Expected error on duplicate registration")
	}

	// 3. Get
	retrievedConn, found := m.GetConnection(conn.ID())
	if !found {
		t.Fatal("GetConnection failed to find registered connection")
	}
	if retrievedConn.ID != conn.ID() {
		t.Errorf("Retrieved connection ID mismatch")
	}

	// 4. Deregister
	if _, err := m.DeregisterConnection(conn.ID()); err != nil {
		t.Fatalf("DeregisterConnection failed: %v", err)
	}
	_, found = m.GetConnection(conn.ID())
	if found {
		t.Error("Found connection after it should have been deregistered")
	}
}

func TestBindAndConnectionCount(t *testing.T) {
	m := newTestManager()
	userID := "user-1"
	conn1 := newFakeSender()
	conn2 := newFakeSender()

	m.RegisterConnection(conn1, "1.1.1.1", userID)
	m.RegisterConnection(conn2, "2.2.2.2", userID)

	// Bind first connection: the user comes online.
	binding, err := m.Bind(conn1.ID(), userID)
	if err != nil {
		t.Fatalf("Bind (1) failed: %v", err)
	}
	if binding.User.ID != userID {
		t.Errorf("Expected user ID %s, got %s", userID, binding.User.ID)
	}
	if !binding.WentOnline {
		t.Error("Expected first binding to report WentOnline")
	}

	count, _ := m.GetUserConnectionCount(userID)
	if count != 1 {
		t.Errorf("Expected connection count 1, got %d", count)
	}

	// Bind second connection to the same user: no presence transition.
	binding, err = m.Bind(conn2.ID(), userID)
	if err != nil {
		t.Fatalf("Bind (2) failed: %v", err)
	}
	if binding.WentOnline {
		t.Error("Second device must not report WentOnline")
	}

	count, _ = m.GetUserConnectionCount(userID)
	if count != 2 {
		t.Errorf("Expected connection count 2, got %d", count)
	}
	if !m.IsOnline(userID) {
		t.Error("Expected user to be online")
	}

	// Deregister one connection: still online.
	dep, _ := m.DeregisterConnection(conn1.ID())
	if dep.WentOffline {
		t.Error("User must not go offline while a device remains")
	}
	if !m.IsOnline(userID) {
		t.Error("Expected user to remain online")
	}

	// Deregister the last connection: offline.
	dep, _ = m.DeregisterConnection(conn2.ID())
	if !dep.WentOffline {
		t.Error("Expected offline transition on last disconnect")
	}
	if dep.UserID != userID {
		t.Errorf("Expected departure user %s, got %s", userID, dep.UserID)
	}
	if m.IsOnline(userID) {
		t.Error("Expected user to be offline")
	}
}

func TestBindIdempotencyAndRebind(t *testing.T) {
	m := newTestManager()
	conn := newFakeSender()
	m.RegisterConnection(conn, "1.1.1.1", "user-1")

	if _, err := m.Bind(conn.ID(), "user-1"); err != nil {
		t.Fatalf("Bind failed: %v", err)
	}

	// Same user again: idempotent.
	binding, err := m.Bind(conn.ID(), "user-1")
	if err != nil {
		t.Fatalf("Repeated Bind failed: %v", err)
	}
	if binding.WentOnline {
		t.Error("Repeated Bind must not report WentOnline")
	}

	// Different user on the same connection: forbidden.
	if _, err := m.Bind(conn.ID(), "user-2"); err != statemanager.ErrRebindForbidden {
		t.Errorf("Expected ErrRebindForbidden, got %v", err)
	}

	count, _ := m.GetUserConnectionCount("user-2")
	if count != 0 {
		t.Errorf("Rebind attempt must not create a binding, got count %d", count)
	}
}

func TestFindOldestUserConnection(t *testing.T) {
	m := newTestManager()
	userID := "user-cycle"
	conn1 := newFakeSender()
	conn2 := newFakeSender()

	m.RegisterConnection(conn1, "1.1.1.1", userID)
	time.Sleep(5 * time.Millisecond) // Ensure timestamps are different
	m.RegisterConnection(conn2, "2.2.2.2", userID)

	m.Bind(conn1.ID(), userID)
	m.Bind(conn2.ID(), userID)

	oldest, found := m.FindOldestUserConnection(userID)
	if !found {
		t.Fatal("FindOldestUserConnection found nothing")
	}
	if oldest.ID != conn1.ID() {
		t.Errorf("Expected oldest connection %s, got %s", conn1.ID(), oldest.ID)
	}
}

// --- Room Membership Tests ---

func TestRoomJoinLeave(t *testing.T) {
	m := newTestManager()
	conn := newFakeSender()
	m.RegisterConnection(conn, "1.1.1.1", "user-1")
	m.Bind(conn.ID(), "user-1")

	room := state.ClubRoom("club-9")
	if err := m.Join(conn.ID(), room); err != nil {
		t.Fatalf("Join failed: %v", err)
	}
	if !m.InRoom(conn.ID(), room) {
		t.Error("Expected connection to be in room after join")
	}
	if got := len(m.RoomConnections(room)); got != 1 {
		t.Errorf("Expected 1 room connection, got %d", got)
	}

	// Joining again is a no-op.
	if err := m.Join(conn.ID(), room); err != nil {
		t.Fatalf("Repeated Join failed: %v", err)
	}
	if got := len(m.RoomConnections(room)); got != 1 {
		t.Errorf("Expected 1 room connection after repeat join, got %d", got)
	}

	if err := m.Leave(conn.ID(), room); err != nil {
		t.Fatalf("Leave failed: %v", err)
	}
	if m.InRoom(conn.ID(), room) {
		t.Error("Expected connection to be out of room after leave")
	}
	// Empty room is discarded; publishing to it reaches nobody.
	if got := len(m.RoomConnections(room)); got != 0 {
		t.Errorf("Expected 0 room connections, got %d", got)
	}
}

func TestRoomMembershipIsPerConnection(t *testing.T) {
	m := newTestManager()
	conn1 := newFakeSender()
	conn2 := newFakeSender()
	m.RegisterConnection(conn1, "1.1.1.1", "user-1")
	m.RegisterConnection(conn2, "2.2.2.2", "user-1")
	m.Bind(conn1.ID(), "user-1")
	m.Bind(conn2.ID(), "user-1")

	room := state.EventRoom("ev-1")
	m.Join(conn1.ID(), room)

	if m.InRoom(conn2.ID(), room) {
		t.Error("A sibling device must not inherit room membership")
	}
}

func TestDeregisterRemovesFromAllRooms(t *testing.T) {
	m := newTestManager()
	conn := newFakeSender()
	other := newFakeSender()
	m.RegisterConnection(conn, "1.1.1.1", "user-1")
	m.RegisterConnection(other, "2.2.2.2", "user-2")
	m.Bind(conn.ID(), "user-1")
	m.Bind(other.ID(), "user-2")

	roomA := state.ClubRoom("club-1")
	roomB := state.CrisisRoom("crisis-1")
	m.Join(conn.ID(), roomA)
	m.Join(conn.ID(), roomB)
	m.Join(other.ID(), roomA)

	dep, err := m.DeregisterConnection(conn.ID())
	if err != nil {
		t.Fatalf("DeregisterConnection failed: %v", err)
	}
	if len(dep.Rooms) != 2 {
		t.Errorf("Expected departure from 2 rooms, got %d", len(dep.Rooms))
	}
	if m.InRoom(conn.ID(), roomA) || m.InRoom(conn.ID(), roomB) {
		t.Error("Deregistered connection still appears in a room")
	}
	// The other member is unaffected.
	if !m.InRoom(other.ID(), roomA) {
		t.Error("Unrelated member was removed from the room")
	}
}

// --- Presence Tests ---

func TestTouchCoalescing(t *testing.T) {
	m := newTestManager()
	conn := newFakeSender()
	m.RegisterConnection(conn, "1.1.1.1", "user-1")
	m.Bind(conn.ID(), "user-1")

	// First touch after binding flushes (LastFlushed is zero).
	_, flush := m.Touch("user-1", 30*time.Second)
	if !flush {
		t.Error("Expected first touch to flush")
	}

	// Immediately repeated touches stay inside the window.
	_, flush = m.Touch("user-1", 30*time.Second)
	if flush {
		t.Error("Expected coalesced touch not to flush")
	}

	// A zero window flushes every time.
	_, flush = m.Touch("user-1", 0)
	if !flush {
		t.Error("Expected zero-window touch to flush")
	}

	// Touching an unknown user does nothing.
	if _, flush = m.Touch("ghost", time.Second); flush {
		t.Error("Expected touch on unknown user not to flush")
	}
}
