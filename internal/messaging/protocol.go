package messaging

import (
	"log"

	"github.com/lunar-bby/AgoraAI/internal/types"
)

// ProtocolHandler produces the protocol-level reply for an incoming message.
// Dispatch is an exhaustive switch over the closed message-type set; every
// reply it produces carries the triggering message's id as correlation id.
type ProtocolHandler struct{}

// NewProtocolHandler creates a protocol handler.
func NewProtocolHandler() *ProtocolHandler {
	return &ProtocolHandler{}
}

// Handle returns the reply for msg, or nil when the type calls for none.
func (h *ProtocolHandler) Handle(msg types.Message) *types.Message {
	switch msg.Type {
	case types.MessageRequest:
		reply := types.NewMessage(types.MessageResponse, msg.Recipient, msg.Sender,
			map[string]interface{}{"status": "received"}, msg.ID)
		return &reply
	case types.MessageResponse, types.MessageEvent:
		return nil
	case types.MessageError:
		reply := types.NewMessage(types.MessageError, msg.Recipient, msg.Sender,
			map[string]interface{}{"error": "Error processed"}, msg.ID)
		return &reply
	case types.MessageHeartbeat:
		reply := types.NewMessage(types.MessageHeartbeat, msg.Recipient, msg.Sender,
			map[string]interface{}{"status": "alive"}, msg.ID)
		return &reply
	default:
		log.Printf("protocol: dropping message %s with unknown type %v", msg.ID, msg.Type)
		return nil
	}
}
