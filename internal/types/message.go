package types

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// BroadcastRecipient is the wildcard recipient delivered to every subscriber.
const BroadcastRecipient = "*"

// MessageType identifies the kind of a message. The set is closed: the
// protocol handler matches exhaustively over these five values.
type MessageType int

const (
	MessageRequest MessageType = iota
	MessageResponse
	MessageEvent
	MessageError
	MessageHeartbeat
)

var messageTypeNames = map[MessageType]string{
	MessageRequest:   "REQUEST",
	MessageResponse:  "RESPONSE",
	MessageEvent:     "EVENT",
	MessageError:     "ERROR",
	MessageHeartbeat: "HEARTBEAT",
}

// String returns the wire name of the message type.
func (t MessageType) String() string {
	if name, ok := messageTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("MessageType(%d)", int(t))
}

// MarshalJSON encodes the type by name.
func (t MessageType) MarshalJSON() ([]byte, error) {
	name, ok := messageTypeNames[t]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownMessageType, int(t))
	}
	return json.Marshal(name)
}

// UnmarshalJSON decodes the type from its wire name.
func (t *MessageType) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	for typ, n := range messageTypeNames {
		if n == name {
			*t = typ
			return nil
		}
	}
	return fmt.Errorf("%w: %q", ErrUnknownMessageType, name)
}

// Message is a single addressed, typed, timestamped unit of inter-agent
// communication. Messages are immutable after creation; a RESPONSE or ERROR
// links back to its originating REQUEST through CorrelationID.
type Message struct {
	ID            string                 `json:"id"`
	Type          MessageType            `json:"type"`
	Sender        string                 `json:"sender"`
	Recipient     string                 `json:"recipient"`
	Content       map[string]interface{} `json:"content"`
	Timestamp     float64                `json:"timestamp"`
	CorrelationID string                 `json:"correlation_id,omitempty"`
}

// NewMessage creates a message with a fresh id and the current timestamp.
func NewMessage(msgType MessageType, sender, recipient string, content map[string]interface{}, correlationID string) Message {
	return Message{
		ID:            uuid.New().String(),
		Type:          msgType,
		Sender:        sender,
		Recipient:     recipient,
		Content:       content,
		Timestamp:     Now(),
		CorrelationID: correlationID,
	}
}

// Encode serializes the message to its canonical JSON form.
func (m Message) Encode() ([]byte, error) {
	return json.Marshal(m)
}

// DecodeMessage parses a message from its canonical JSON form.
func DecodeMessage(data []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return Message{}, fmt.Errorf("failed to decode message: %w", err)
	}
	return m, nil
}

// Clone returns a copy of the message with its content deep-copied.
func (m Message) Clone() Message {
	out := m
	out.Content = Record(m.Content).Clone()
	return out
}
