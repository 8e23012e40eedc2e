package pubsub

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisPublisherDeliversToSubscribers(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	p, err := NewRedisPublisher(RedisConfig{Address: mr.Addr(), PoolSize: 2})
	require.NoError(t, err)
	defer p.Close()

	sub := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer sub.Close()

	channel := RoomEventsChannel("collab", "proj-42")
	ps := sub.Subscribe(ctx, channel)
	defer ps.Close()
	_, err = ps.Receive(ctx)
	require.NoError(t, err)

	ev, err := NewEvent(EventProjectMessage, "proj-42", MessagePayload{RoomID: "proj-42", SenderID: "u1", Message: "hi"})
	require.NoError(t, err)
	require.NoError(t, p.Publish(ctx, channel, ev))

	select {
	case msg := <-ps.Channel():
		assert.Equal(t, channel, msg.Channel)
		var got Event
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &got))
		assert.Equal(t, EventProjectMessage, got.Type)
		assert.Equal(t, "proj-42", got.RoomID)

		var payload MessagePayload
		require.NoError(t, got.UnmarshalPayload(&payload))
		assert.Equal(t, "hi", payload.Message)
	case <-time.After(time.Second):
		t.Fatal("event was not delivered")
	}
}

func TestNewRedisPublisherFailsWithoutServer(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := NewRedisPublisher(RedisConfig{Address: addr})
	assert.Error(t, err)
}
