package realtime

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Event names pushed to clients.
const (
	EventNewNotification     = "newNotification"
	EventUpdateNotification  = "updateNotification"
	EventFollowerCountUpdate = "followerCountUpdate"
	EventHeartbeat           = "heartbeat"
)

// Conn is a single live transport connection able to receive events.
type Conn interface {
	WriteEvent(event string, payload any) error
	Close() error
}

// RoomRegistry maps a user identity to zero or more live connections. A user
// may hold several connections at once (multi-device); all of them share one
// logical delivery target keyed by user ID. Delivery is at-most-once and
// non-persistent: durability comes from the notification store, never from
// the transport.
type RoomRegistry interface {
	Join(connID string, userID uuid.UUID, conn Conn)
	Leave(connID string)
	// SendToUser emits to every connection currently in the user's room and
	// returns how many connections received the event. Zero is not an error.
	SendToUser(userID uuid.UUID, event string, payload any) int
}

// Rooms is the in-memory single-instance RoomRegistry. A multi-instance
// deployment wraps it with a shared backplane behind the same interface.
type Rooms struct {
	mu      sync.RWMutex
	rooms   map[uuid.UUID]map[string]Conn
	members map[string]uuid.UUID
}

// NewRooms creates an empty in-memory registry.
func NewRooms() *Rooms {
	return &Rooms{
		rooms:   make(map[uuid.UUID]map[string]Conn),
		members: make(map[string]uuid.UUID),
	}
}

func (r *Rooms) Join(connID string, userID uuid.UUID, conn Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[userID]
	if !ok {
		room = make(map[string]Conn)
		r.rooms[userID] = room
	}
	room[connID] = conn
	r.members[connID] = userID
}

func (r *Rooms) Leave(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	userID, ok := r.members[connID]
	if !ok {
		return
	}
	delete(r.members, connID)

	room := r.rooms[userID]
	delete(room, connID)
	if len(room) == 0 {
		delete(r.rooms, userID)
	}
}

func (r *Rooms) SendToUser(userID uuid.UUID, event string, payload any) int {
	r.mu.RLock()
	conns := make([]Conn, 0, len(r.rooms[userID]))
	for _, c := range r.rooms[userID] {
		conns = append(conns, c)
	}
	r.mu.RUnlock()

	delivered := 0
	for _, c := range conns {
		if err := c.WriteEvent(event, payload); err != nil {
			log.Debug().Err(err).Str("user_id", userID.String()).Msg("realtime write failed")
			continue
		}
		delivered++
	}
	return delivered
}

// Broadcast emits to every connection in every room.
func (r *Rooms) Broadcast(event string, payload any) {
	r.mu.RLock()
	conns := make([]Conn, 0, len(r.members))
	for _, room := range r.rooms {
		for _, c := range room {
			conns = append(conns, c)
		}
	}
	r.mu.RUnlock()

	for _, c := range conns {
		if err := c.WriteEvent(event, payload); err != nil {
			log.Debug().Err(err).Msg("realtime broadcast write failed")
		}
	}
}

// ConnCount returns the number of live connections for a user.
func (r *Rooms) ConnCount(userID uuid.UUID) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms[userID])
}

// StartHeartbeat periodically emits a liveness event to all connections until
// the context is cancelled. The event carries no business semantics.
func (r *Rooms) StartHeartbeat(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case t := <-ticker.C:
				r.Broadcast(EventHeartbeat, map[string]any{"ts": t.Unix()})
			}
		}
	}()
}
