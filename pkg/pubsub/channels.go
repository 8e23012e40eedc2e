package pubsub

import "fmt"

// DefaultChannelPrefix is the channel namespace used when none is configured.
const DefaultChannelPrefix = "collab"

// ChannelRoomEvents is the per-room channel: {prefix}:room:{roomID}:events.
const ChannelRoomEvents = "%s:room:%s:events"

// Event types emitted by the collaboration gateway.
const (
	EventRoomOpened     = "room_opened"
	EventRoomClosed     = "room_closed"
	EventProjectMessage = "project_message"
	EventAIMessage      = "ai_message"
)

// RoomEventsChannel returns the channel name room events are published on.
func RoomEventsChannel(prefix, roomID string) string {
	if prefix == "" {
		prefix = DefaultChannelPrefix
	}
	return fmt.Sprintf(ChannelRoomEvents, prefix, roomID)
}

// RoomLifecyclePayload is sent with room_opened and room_closed.
type RoomLifecyclePayload struct {
	RoomID   string `json:"room_id"`
	NodeAddr string `json:"node_addr,omitempty"`
}

// MessagePayload is sent with project_message and ai_message.
type MessagePayload struct {
	RoomID      string `json:"room_id"`
	SenderID    string `json:"sender_id"`
	SenderLabel string `json:"sender_label"`
	Message     string `json:"message"`
}
