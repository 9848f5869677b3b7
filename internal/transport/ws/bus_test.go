package ws

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"roomchat/internal/cache"
	"roomchat/internal/model"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// receive waits for the next queued message on conn.
func receive(t *testing.T, conn *Connection) Message {
	t.Helper()
	select {
	case data := <-conn.Send:
		var msg Message
		require.NoError(t, json.Unmarshal(data, &msg))
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("no message delivered")
		return Message{}
	}
}

func TestBusFansOutAcrossInstances(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	newInstance := func() (*Hub, *Bus) {
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { client.Close() })
		hub := NewHub(nil)
		bus := NewBus(client, cache.EventChannel, hub, nil)
		require.NoError(t, bus.Start(ctx))
		t.Cleanup(func() { bus.Close() })
		return hub, bus
	}

	hub1, bus1 := newInstance()
	hub2, _ := newInstance()

	local := attach(hub1, "s1")
	remote := attach(hub2, "s2")
	_, err := hub1.Join("s1", "lobby")
	require.NoError(t, err)
	_, err = hub2.Join("s2", "lobby")
	require.NoError(t, err)
	drain(t, local)
	drain(t, remote)

	bus1.BroadcastToRoom("lobby", model.EventNewMessage, model.NewMessagePayload{Text: "hello"})
	assert.Equal(t, model.EventNewMessage, receive(t, local).Type)
	assert.Equal(t, model.EventNewMessage, receive(t, remote).Type)

	bus1.BroadcastToSession("s2", model.EventNotify, model.NotifyPayload{Message: "muted", Type: model.NotifyWarning})
	msg := receive(t, remote)
	assert.Equal(t, model.EventNotify, msg.Type)

	bus1.BroadcastToAll(model.EventClearMessages, nil)
	assert.Equal(t, model.EventClearMessages, receive(t, local).Type)
	assert.Equal(t, model.EventClearMessages, receive(t, remote).Type)
	assert.Empty(t, drain(t, local))
}

func TestBusDeliversLogAppendsInOrder(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	ctx := context.Background()

	hub := NewHub(nil)
	bus := NewBus(client, cache.EventChannel, hub, nil)
	require.NoError(t, bus.Start(ctx))
	t.Cleanup(func() { bus.Close() })

	conn := attach(hub, "s1")
	_, err := hub.Join("s1", "lobby")
	require.NoError(t, err)
	drain(t, conn)

	log := cache.NewMessageLog(client, 100, cache.EventChannel)
	texts := []string{"one", "two", "three", "four", "five"}
	for _, text := range texts {
		require.NoError(t, log.Append(ctx, "lobby", &model.Message{Username: "S1", Text: text, Time: time.Now().UTC()}))
	}

	for _, want := range texts {
		msg := receive(t, conn)
		require.Equal(t, model.EventNewMessage, msg.Type)
		var p model.NewMessagePayload
		require.NoError(t, json.Unmarshal(msg.Payload, &p))
		assert.Equal(t, want, p.Text)
	}

	// Events for other rooms do not reach this member.
	require.NoError(t, log.Append(ctx, "elsewhere", &model.Message{Username: "S2", Text: "x"}))
	require.NoError(t, log.Clear(ctx, "lobby"))
	assert.Equal(t, model.EventClearMessages, receive(t, conn).Type)
}

func TestBusIgnoresMalformedEvents(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	ctx := context.Background()

	hub := NewHub(nil)
	bus := NewBus(client, cache.EventChannel, hub, nil)
	require.NoError(t, bus.Start(ctx))
	t.Cleanup(func() { bus.Close() })
	conn := attach(hub, "s1")

	require.NoError(t, client.Publish(ctx, cache.EventChannel, "not json").Err())
	ev, err := model.NewRoomEvent("", "s1", model.EventNotify, model.NotifyPayload{Message: "ok"})
	require.NoError(t, err)
	require.NoError(t, bus.Publish(ctx, ev))

	assert.Equal(t, model.EventNotify, receive(t, conn).Type)
}
