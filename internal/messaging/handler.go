package messaging

import (
	"sync"
	"time"

	"github.com/lunar-bby/AgoraAI/internal/types"
)

// Handler layers request/await semantics over the broker's fire-and-forget
// publish. Each outstanding request owns exactly one pending slot keyed by
// the request's own id; a fresh request always uses a fresh id, so slots can
// never collide.
type Handler struct {
	agentID string
	broker  *Broker

	mu      sync.Mutex
	pending map[string]chan types.Message
}

// NewHandler creates a correlating handler for the given agent. The caller
// routes the agent's inbound messages into HandleIncoming, typically via
// broker.Subscribe(agentID, handler.HandleIncoming).
func NewHandler(agentID string, broker *Broker) *Handler {
	return &Handler{
		agentID: agentID,
		broker:  broker,
		pending: make(map[string]chan types.Message),
	}
}

// AgentID returns the id the handler sends on behalf of.
func (h *Handler) AgentID() string {
	return h.agentID
}

// SendRequest publishes a REQUEST and waits up to timeout for a correlated
// reply. It returns nil on timeout; the pending slot is discarded either way.
func (h *Handler) SendRequest(recipient string, content map[string]interface{}, timeout time.Duration) *types.Message {
	msg := types.NewMessage(types.MessageRequest, h.agentID, recipient, content, "")

	slot := make(chan types.Message, 1)
	h.mu.Lock()
	h.pending[msg.ID] = slot
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.pending, msg.ID)
		h.mu.Unlock()
	}()

	h.broker.Publish(msg)

	select {
	case reply := <-slot:
		return &reply
	case <-time.After(timeout):
		return nil
	}
}

// HandleIncoming resolves a pending slot when the message correlates to an
// outstanding request; the first resolution wins and later ones are no-ops.
// An incoming REQUEST is additionally answered with a minimal RESPONSE.
func (h *Handler) HandleIncoming(msg types.Message) {
	if msg.CorrelationID != "" {
		h.mu.Lock()
		slot, ok := h.pending[msg.CorrelationID]
		h.mu.Unlock()
		if ok {
			select {
			case slot <- msg:
			default:
				// Already resolved.
			}
		}
	}

	if msg.Type == types.MessageRequest {
		reply := types.NewMessage(types.MessageResponse, h.agentID, msg.Sender,
			map[string]interface{}{"status": "processed"}, msg.ID)
		h.broker.Publish(reply)
	}
}

// PendingRequests returns the number of requests still awaiting a reply.
func (h *Handler) PendingRequests() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.pending)
}
