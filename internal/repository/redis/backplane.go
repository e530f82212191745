package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dealstream/api/internal/realtime"
)

const backplaneChannel = "realtime:events"

type backplaneMessage struct {
	UserID  uuid.UUID       `json:"user_id"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// Backplane is a redis pub/sub implementation of realtime.RoomRegistry for
// multi-instance deployments. Join and Leave stay local; SendToUser publishes
// to a shared channel so every instance fans out to its own connections.
type Backplane struct {
	client *Client
	local  *realtime.Rooms
	cancel context.CancelFunc
}

// NewBackplane creates the backplane and starts its subscribe loop.
func NewBackplane(client *Client, local *realtime.Rooms) *Backplane {
	ctx, cancel := context.WithCancel(context.Background())
	b := &Backplane{client: client, local: local, cancel: cancel}
	go b.subscribe(ctx)
	return b
}

func (b *Backplane) Join(connID string, userID uuid.UUID, conn realtime.Conn) {
	b.local.Join(connID, userID, conn)
}

func (b *Backplane) Leave(connID string) {
	b.local.Leave(connID)
}

// SendToUser publishes the event to every instance. The returned count covers
// local delivery only; remote instances deliver asynchronously.
func (b *Backplane) SendToUser(userID uuid.UUID, event string, payload any) int {
	raw, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Msg("backplane: failed to marshal payload")
		return b.local.SendToUser(userID, event, payload)
	}

	msg, err := json.Marshal(backplaneMessage{UserID: userID, Event: event, Payload: raw})
	if err != nil {
		log.Error().Err(err).Msg("backplane: failed to marshal message")
		return b.local.SendToUser(userID, event, payload)
	}

	if err := b.client.rdb.Publish(context.Background(), backplaneChannel, msg).Err(); err != nil {
		log.Warn().Err(err).Msg("backplane: publish failed, delivering locally")
		return b.local.SendToUser(userID, event, payload)
	}
	return b.local.ConnCount(userID)
}

func (b *Backplane) subscribe(ctx context.Context) {
	sub := b.client.rdb.Subscribe(ctx, backplaneChannel)
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case m, ok := <-sub.Channel():
			if !ok {
				return
			}
			var msg backplaneMessage
			if err := json.Unmarshal([]byte(m.Payload), &msg); err != nil {
				log.Warn().Err(err).Msg("backplane: dropped malformed message")
				continue
			}
			b.local.SendToUser(msg.UserID, msg.Event, msg.Payload)
		}
	}
}

// Close stops the subscribe loop.
func (b *Backplane) Close() error {
	if b.cancel != nil {
		b.cancel()
	}
	return nil
}

var _ realtime.RoomRegistry = (*Backplane)(nil)

// String describes the backplane for startup logs.
func (b *Backplane) String() string {
	return fmt.Sprintf("redis backplane (%s)", backplaneChannel)
}
