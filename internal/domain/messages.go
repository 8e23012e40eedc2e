package domain

import "encoding/json"

// Event names carried in the envelope.
const (
	EventProjectMessage = "project-message"
	EventPing           = "ping"
	EventPong           = "pong"
)

// AISenderID and AISenderLabel identify messages produced by the assistant.
const (
	AISenderID    = "ai"
	AISenderLabel = "AI"
)

// Envelope is the frame exchanged over the WebSocket in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Sender describes who sent a message.
type Sender struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// AISender is the reserved descriptor for assistant replies.
var AISender = Sender{ID: AISenderID, Label: AISenderLabel}

// ProjectMessageIn is the payload of an inbound project-message.
type ProjectMessageIn struct {
	Message string `json:"message"`
}

// ProjectMessageOut is the payload of an outbound project-message.
type ProjectMessageOut struct {
	Message string `json:"message"`
	Sender  Sender `json:"sender"`
}

// Message is a chat message on its way to a room. It is never stored.
type Message struct {
	RoomID string
	Sender Sender
	Body   string
}

// IsAI reports whether the message was produced by the assistant.
func (m Message) IsAI() bool {
	return m.Sender.ID == AISenderID
}

// Frame encodes the message as an outbound project-message envelope.
func (m Message) Frame() ([]byte, error) {
	return EncodeEnvelope(EventProjectMessage, ProjectMessageOut{Message: m.Body, Sender: m.Sender})
}

// EncodeEnvelope marshals data under the given event name. A nil data
// produces an envelope without a data field.
func EncodeEnvelope(event string, data interface{}) ([]byte, error) {
	env := Envelope{Event: event}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, err
		}
		env.Data = raw
	}
	return json.Marshal(env)
}
