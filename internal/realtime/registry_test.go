package realtime

import (
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
)

type stubConn struct {
	mu     sync.Mutex
	events []string
	fail   bool
}

func (c *stubConn) WriteEvent(event string, payload any) error {
	if c.fail {
		return errors.New("broken pipe")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
	return nil
}

func (c *stubConn) Close() error { return nil }

func (c *stubConn) received() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

func TestRooms_SendToUser(t *testing.T) {
	rooms := NewRooms()
	userID := uuid.New()
	other := uuid.New()

	conn1 := &stubConn{}
	conn2 := &stubConn{}
	stranger := &stubConn{}

	rooms.Join("c1", userID, conn1)
	rooms.Join("c2", userID, conn2)
	rooms.Join("c3", other, stranger)

	delivered := rooms.SendToUser(userID, EventNewNotification, "payload")
	if delivered != 2 {
		t.Errorf("expected 2 deliveries, got %d", delivered)
	}
	if conn1.received() != 1 || conn2.received() != 1 {
		t.Error("expected each connection to receive the event exactly once")
	}
	if stranger.received() != 0 {
		t.Error("event leaked into another user's room")
	}
}

func TestRooms_EmptyRoomDropsEvent(t *testing.T) {
	rooms := NewRooms()

	delivered := rooms.SendToUser(uuid.New(), EventNewNotification, "payload")
	if delivered != 0 {
		t.Errorf("expected 0 deliveries for empty room, got %d", delivered)
	}
}

func TestRooms_Leave(t *testing.T) {
	rooms := NewRooms()
	userID := uuid.New()

	conn1 := &stubConn{}
	conn2 := &stubConn{}
	rooms.Join("c1", userID, conn1)
	rooms.Join("c2", userID, conn2)

	rooms.Leave("c1")
	if got := rooms.ConnCount(userID); got != 1 {
		t.Fatalf("expected 1 connection after leave, got %d", got)
	}

	delivered := rooms.SendToUser(userID, EventNewNotification, nil)
	if delivered != 1 {
		t.Errorf("expected 1 delivery after leave, got %d", delivered)
	}
	if conn1.received() != 0 {
		t.Error("departed connection still received events")
	}

	// Leaving twice is harmless.
	rooms.Leave("c1")
	rooms.Leave("c2")
	if got := rooms.ConnCount(userID); got != 0 {
		t.Errorf("expected empty room, got %d connections", got)
	}
}

func TestRooms_FailedWriteDoesNotBlockOthers(t *testing.T) {
	rooms := NewRooms()
	userID := uuid.New()

	broken := &stubConn{fail: true}
	healthy := &stubConn{}
	rooms.Join("c1", userID, broken)
	rooms.Join("c2", userID, healthy)

	delivered := rooms.SendToUser(userID, EventNewNotification, nil)
	if delivered != 1 {
		t.Errorf("expected 1 successful delivery, got %d", delivered)
	}
	if healthy.received() != 1 {
		t.Error("healthy connection missed the event")
	}
}

func TestRooms_Broadcast(t *testing.T) {
	rooms := NewRooms()

	conns := make([]*stubConn, 3)
	for i := range conns {
		conns[i] = &stubConn{}
		rooms.Join(uuid.NewString(), uuid.New(), conns[i])
	}

	rooms.Broadcast(EventHeartbeat, nil)
	for i, c := range conns {
		if c.received() != 1 {
			t.Errorf("conn %d: expected 1 broadcast event, got %d", i, c.received())
		}
	}
}

func TestRooms_ConcurrentJoinSend(t *testing.T) {
	rooms := NewRooms()
	userID := uuid.New()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		connID := uuid.NewString()
		go func() {
			defer wg.Done()
			rooms.Join(connID, userID, &stubConn{})
		}()
		go func() {
			defer wg.Done()
			rooms.SendToUser(userID, EventNewNotification, nil)
		}()
	}
	wg.Wait()

	if got := rooms.ConnCount(userID); got != 50 {
		t.Errorf("expected 50 connections, got %d", got)
	}
}
