package pubsub

import (
	"context"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChannelToTopicAndKey(t *testing.T) {
	topic, key, err := channelToTopicAndKey(RoomEventsChannel("collab", "proj-42"))
	require.NoError(t, err)
	assert.Equal(t, "collab-events", topic)
	assert.Equal(t, "proj-42", key)

	for _, bad := range []string{"", "collab:proj-42:events", "collab:lobby:proj-42:events", "collab:room::events"} {
		_, _, err := channelToTopicAndKey(bad)
		assert.Error(t, err, bad)
	}
}

func TestRoomEventsChannelDefaultsPrefix(t *testing.T) {
	assert.Equal(t, "collab:room:r1:events", RoomEventsChannel("", "r1"))
	assert.Equal(t, "team:room:r1:events", RoomEventsChannel("team", "r1"))
}

func TestNewEventRoundTripsPayload(t *testing.T) {
	ev, err := NewEvent(EventProjectMessage, "r1", MessagePayload{RoomID: "r1", SenderID: "u1", Message: "hi"})
	require.NoError(t, err)
	assert.Equal(t, EventProjectMessage, ev.Type)
	assert.False(t, ev.Timestamp.IsZero())

	var got MessagePayload
	require.NoError(t, ev.UnmarshalPayload(&got))
	assert.Equal(t, "hi", got.Message)
}

func TestNewPublisher(t *testing.T) {
	p, err := NewPublisher(Config{Driver: "none"})
	require.NoError(t, err)
	assert.NoError(t, p.Publish(context.Background(), "collab:room:r1:events", &Event{}))
	assert.NoError(t, p.Close())

	_, err = NewPublisher(Config{Driver: "nats"})
	assert.Error(t, err)
}

func TestSharedRedisClientSurvivesClose(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	p := NewRedisPublisherFromClient(client)

	assert.NoError(t, p.Close())
	assert.NoError(t, client.Close(), "the shared client is closed by its owner only")
}
