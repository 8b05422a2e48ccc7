package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Errors
var (
	ErrMalformed   = errors.New("malformed message frame")
	ErrEmptyType   = errors.New("message type is empty")
	ErrEmptySender = errors.New("sender id is empty")
)

// Type is the routing tag of a message.
type Type string

// Control tags (closed set).
const (
	// TypePing is a liveness probe request.
	TypePing Type = "ping"

	// TypePong is the reply to a liveness probe, carrying the probe's timestamp.
	TypePong Type = "pong"

	// TypeConnectionAck is sent by the server after open and carries the
	// server-assigned connection id.
	TypeConnectionAck Type = "connection_ack"
)

// Application tags (open set: unknown tags are valid and routed by name).
const (
	TypeProgressUpdate   Type = "progress_update"
	TypeCollectionUpdate Type = "collection_update"
	TypeNotification     Type = "notification"
	TypePresenceUpdate   Type = "presence_update"
	TypeStatusUpdate     Type = "status_update"
)

// Message is the wire envelope. The payload is kept opaque; interpretation
// is deferred to the handler registered for the tag.
type Message struct {
	Type      Type            `json:"type"`
	SenderID  string          `json:"senderId"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// New constructs a Message with the current time. The payload is marshaled
// once at construction so the envelope stays immutable afterwards.
func New(t Type, senderID string, payload any) (Message, error) {
	if t == "" {
		return Message{}, ErrEmptyType
	}
	if senderID == "" {
		return Message{}, ErrEmptySender
	}

	var raw json.RawMessage
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return Message{}, fmt.Errorf("marshal payload: %w", err)
		}
		raw = data
	}

	return Message{
		Type:      t,
		SenderID:  senderID,
		Payload:   raw,
		Timestamp: time.Now().UnixMilli(),
	}, nil
}

// Pong builds the reply to a liveness probe. The probe's timestamp is echoed
// unchanged so the peer can measure round-trip latency.
func Pong(probe Message, senderID string) Message {
	return Message{
		Type:      TypePong,
		SenderID:  senderID,
		Timestamp: probe.Timestamp,
	}
}

// Encode serializes the message for the wire.
func (m Message) Encode() ([]byte, error) {
	return json.Marshal(m)
}

// Decode parses a wire frame into a Message. Frames that are not valid JSON
// or lack a type tag are rejected with ErrMalformed; the caller is expected
// to log and discard them rather than tear down the connection.
func Decode(data []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if m.Type == "" {
		return Message{}, fmt.Errorf("%w: missing type tag", ErrMalformed)
	}
	return m, nil
}

// AckPayload is the payload of a connection_ack message.
type AckPayload struct {
	ConnectionID string `json:"connectionId"`
}
