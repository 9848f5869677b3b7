package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"roomchat/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testMessage(i int) *model.Message {
	return &model.Message{
		Username:  "user",
		Text:      fmt.Sprintf("msg-%d", i),
		Time:      time.Date(2026, 1, 1, 0, 0, i%60, 0, time.UTC),
		SessionID: "s1",
	}
}

func TestMessageLogKeepsMostRecentInOrder(t *testing.T) {
	_, client := newTestStore(t)
	ctx := context.Background()
	log := NewMessageLog(client, 100, "")

	for i := 0; i < 250; i++ {
		require.NoError(t, log.Append(ctx, "lobby", testMessage(i)))

		n, err := client.LLen(ctx, messagesKey("lobby")).Result()
		require.NoError(t, err)
		assert.LessOrEqual(t, n, int64(100))
	}

	msgs, err := log.Read(ctx, "lobby")
	require.NoError(t, err)
	require.Len(t, msgs, 100)
	for i, m := range msgs {
		assert.Equal(t, fmt.Sprintf("msg-%d", 150+i), m.Text)
	}
}

func TestMessageLogReadMissingRoomIsEmpty(t *testing.T) {
	_, client := newTestStore(t)
	log := NewMessageLog(client, 100, "")

	msgs, err := log.Read(context.Background(), "nobody-here")
	require.NoError(t, err)
	assert.NotNil(t, msgs)
	assert.Empty(t, msgs)
}

func TestMessageLogClearIsScopedToRoom(t *testing.T) {
	_, client := newTestStore(t)
	ctx := context.Background()
	log := NewMessageLog(client, 100, "")

	for i := 0; i < 3; i++ {
		require.NoError(t, log.Append(ctx, "x", testMessage(i)))
		require.NoError(t, log.Append(ctx, "y", testMessage(i)))
	}

	require.NoError(t, log.Clear(ctx, "x"))

	n, err := client.LLen(ctx, messagesKey("x")).Result()
	require.NoError(t, err)
	assert.Zero(t, n)

	msgs, err := log.Read(ctx, "y")
	require.NoError(t, err)
	assert.Len(t, msgs, 3)
}

func TestMessageLogRooms(t *testing.T) {
	_, client := newTestStore(t)
	ctx := context.Background()
	log := NewMessageLog(client, 10, "")

	require.NoError(t, log.Append(ctx, "a", testMessage(1)))
	require.NoError(t, log.Append(ctx, "b-2", testMessage(2)))
	require.NoError(t, client.Set(ctx, "token:s1", "t", 0).Err())

	rooms, err := log.Rooms(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b-2"}, rooms)
}

func TestMessageLogPublishesInAppendOrder(t *testing.T) {
	_, client := newTestStore(t)
	ctx := context.Background()
	log := NewMessageLog(client, 100, EventChannel)

	sub := client.Subscribe(ctx, EventChannel)
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)
	ch := sub.Channel()

	for i := 0; i < 5; i++ {
		require.NoError(t, log.Append(ctx, "lobby", testMessage(i)))
	}
	require.NoError(t, log.Clear(ctx, "lobby"))

	var got []model.RoomEvent
	timeout := time.After(2 * time.Second)
	for len(got) < 6 {
		select {
		case m := <-ch:
			var ev model.RoomEvent
			require.NoError(t, json.Unmarshal([]byte(m.Payload), &ev))
			got = append(got, ev)
		case <-timeout:
			t.Fatalf("received %d of 6 events", len(got))
		}
	}

	for i := 0; i < 5; i++ {
		assert.Equal(t, model.EventNewMessage, got[i].Type)
		assert.Equal(t, "lobby", got[i].RoomID)

		var p model.NewMessagePayload
		require.NoError(t, json.Unmarshal(got[i].Payload, &p))
		assert.Equal(t, fmt.Sprintf("msg-%d", i), p.Text)
	}
	assert.Equal(t, model.EventClearMessages, got[5].Type)
}
