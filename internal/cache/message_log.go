package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"roomchat/internal/model"

	"github.com/redis/go-redis/v9"
)

// MessageLog is the bounded per-room message history.
type MessageLog interface {
	// Append pushes msg and trims the room to the most recent entries in one
	// transaction. When the log has a fan-out channel the newMessage event is
	// published inside the same transaction, so delivery order matches
	// append order.
	Append(ctx context.Context, roomID string, msg *model.Message) error
	// Read returns the retained messages oldest-first.
	Read(ctx context.Context, roomID string) ([]model.Message, error)
	// Clear deletes a room's log and announces it to the room.
	Clear(ctx context.Context, roomID string) error
	// Rooms lists rooms that currently have a log.
	Rooms(ctx context.Context) ([]string, error)
}

type messageLog struct {
	client  redis.UniversalClient
	limit   int64
	channel string
}

// NewMessageLog creates a message log capped at limit entries per room.
// channel may be empty, in which case nothing is published.
func NewMessageLog(client redis.UniversalClient, limit int64, channel string) MessageLog {
	if limit <= 0 {
		limit = 100
	}
	return &messageLog{
		client:  client,
		limit:   limit,
		channel: channel,
	}
}

func (l *messageLog) Append(ctx context.Context, roomID string, msg *model.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	var event []byte
	if l.channel != "" {
		ev, err := model.NewRoomEvent(roomID, "", model.EventNewMessage, msg.Payload())
		if err != nil {
			return err
		}
		if event, err = json.Marshal(ev); err != nil {
			return err
		}
	}

	key := messagesKey(roomID)
	_, err = l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, key, data)
		pipe.LTrim(ctx, key, -l.limit, -1)
		if event != nil {
			pipe.Publish(ctx, l.channel, event)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("append to %s: %w", key, err)
	}
	return nil
}

func (l *messageLog) Read(ctx context.Context, roomID string) ([]model.Message, error) {
	raw, err := l.client.LRange(ctx, messagesKey(roomID), 0, -1).Result()
	if err != nil {
		return nil, err
	}

	messages := make([]model.Message, 0, len(raw))
	for _, item := range raw {
		var m model.Message
		if err := json.Unmarshal([]byte(item), &m); err != nil {
			continue
		}
		messages = append(messages, m)
	}
	return messages, nil
}

func (l *messageLog) Clear(ctx context.Context, roomID string) error {
	var event []byte
	if l.channel != "" {
		ev, err := model.NewRoomEvent(roomID, "", model.EventClearMessages, nil)
		if err != nil {
			return err
		}
		if event, err = json.Marshal(ev); err != nil {
			return err
		}
	}

	_, err := l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, messagesKey(roomID))
		if event != nil {
			pipe.Publish(ctx, l.channel, event)
		}
		return nil
	})
	return err
}

func (l *messageLog) Rooms(ctx context.Context) ([]string, error) {
	keys, err := scanKeys(ctx, l.client, "messages:*")
	if err != nil {
		return nil, err
	}
	rooms := make([]string, 0, len(keys))
	for _, k := range keys {
		rooms = append(rooms, strings.TrimPrefix(k, "messages:"))
	}
	return rooms, nil
}

// scanKeys walks the keyspace with SCAN rather than KEYS so a large
// database is never blocked.
func scanKeys(ctx context.Context, client redis.UniversalClient, pattern string) ([]string, error) {
	var (
		keys   []string
		cursor uint64
	)
	for {
		batch, next, err := client.Scan(ctx, cursor, pattern, 500).Result()
		if err != nil {
			return nil, err
		}
		keys = append(keys, batch...)
		if next == 0 {
			return keys, nil
		}
		cursor = next
	}
}
