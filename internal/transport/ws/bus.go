package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"roomchat/internal/model"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const publishTimeout = 5 * time.Second

// Bus carries room events between process instances over Redis Pub/Sub.
// Every instance runs one subscriber that hands events to its local hub,
// so a publish reaches members connected anywhere.
type Bus struct {
	client  redis.UniversalClient
	channel string
	hub     *Hub
	log     *zap.Logger

	sub  *redis.PubSub
	done chan struct{}
}

// NewBus creates a bus on channel delivering to hub
func NewBus(client redis.UniversalClient, channel string, hub *Hub, log *zap.Logger) *Bus {
	if log == nil {
		log = zap.NewNop()
	}
	return &Bus{
		client:  client,
		channel: channel,
		hub:     hub,
		log:     log,
		done:    make(chan struct{}),
	}
}

// Start subscribes and begins delivering. It returns once the subscription
// is confirmed by the server.
func (b *Bus) Start(ctx context.Context) error {
	sub := b.client.Subscribe(ctx, b.channel)
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return fmt.Errorf("subscribe %s: %w", b.channel, err)
	}
	b.sub = sub

	go b.run(sub.Channel())
	b.log.Info("event bus subscribed", zap.String("channel", b.channel))
	return nil
}

func (b *Bus) run(ch <-chan *redis.Message) {
	defer close(b.done)
	for msg := range ch {
		var ev model.RoomEvent
		if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
			b.log.Warn("malformed bus event", zap.Error(err))
			continue
		}
		b.hub.Deliver(&ev)
	}
}

// Close ends the subscription and waits for the subscriber to drain.
func (b *Bus) Close() error {
	if b.sub == nil {
		return nil
	}
	err := b.sub.Close()
	<-b.done
	return err
}

// Publish sends ev to every instance.
func (b *Bus) Publish(ctx context.Context, ev *model.RoomEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, b.channel, data).Err()
}

func (b *Bus) publish(roomID, sessionID, msgType string, payload interface{}) {
	ev, err := model.NewRoomEvent(roomID, sessionID, msgType, payload)
	if err != nil {
		b.log.Warn("encode bus event", zap.String("type", msgType), zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := b.Publish(ctx, ev); err != nil {
		b.log.Error("publish bus event",
			zap.String("type", msgType),
			zap.String("roomId", roomID),
			zap.Error(err))
	}
}

// BroadcastToRoom sends to all members of a room (implements service.Broadcaster)
func (b *Bus) BroadcastToRoom(roomID string, msgType string, payload interface{}) {
	b.publish(roomID, "", msgType, payload)
}

// BroadcastToSession sends to every connection of a session (implements service.Broadcaster)
func (b *Bus) BroadcastToSession(sessionID string, msgType string, payload interface{}) {
	b.publish("", sessionID, msgType, payload)
}

// BroadcastToAll sends to every connected client (implements service.Broadcaster)
func (b *Bus) BroadcastToAll(msgType string, payload interface{}) {
	b.publish("", "", msgType, payload)
}
