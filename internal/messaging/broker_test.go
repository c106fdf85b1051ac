package messaging

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lunar-bby/AgoraAI/internal/types"
)

// collector records delivered messages in arrival order.
type collector struct {
	mu   sync.Mutex
	msgs []types.Message
}

func (c *collector) callback(msg types.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, msg)
}

func (c *collector) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.msgs)
}

func (c *collector) ids() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]string, len(c.msgs))
	for i, m := range c.msgs {
		ids[i] = m.ID
	}
	return ids
}

func startBroker(t *testing.T) *Broker {
	t.Helper()
	b := NewBroker()
	require.NoError(t, b.Start())
	t.Cleanup(func() { _ = b.Stop() })
	return b
}

func TestPublishDeliversToRecipientSubscriber(t *testing.T) {
	b := startBroker(t)
	c := &collector{}
	b.Subscribe("a2", c.callback)

	msg := types.NewMessage(types.MessageEvent, "a1", "a2", map[string]interface{}{"k": "v"}, "")
	b.Publish(msg)

	assert.Eventually(t, func() bool { return c.len() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, msg.ID, c.ids()[0])
}

func TestWildcardSubscriberSeesEverything(t *testing.T) {
	b := startBroker(t)
	c := &collector{}
	b.Subscribe(types.BroadcastRecipient, c.callback)

	b.Publish(types.NewMessage(types.MessageEvent, "a1", "a2", nil, ""))
	b.Publish(types.NewMessage(types.MessageEvent, "a1", "a3", nil, ""))

	assert.Eventually(t, func() bool { return c.len() == 2 }, time.Second, 5*time.Millisecond)
}

func TestDispatchPreservesPublishOrder(t *testing.T) {
	b := startBroker(t)
	c := &collector{}
	b.Subscribe(types.BroadcastRecipient, c.callback)

	var published []string
	for i := 0; i < 10; i++ {
		msg := types.NewMessage(types.MessageEvent, "a1", "a2", nil, "")
		published = append(published, msg.ID)
		b.Publish(msg)
	}

	assert.Eventually(t, func() bool { return c.len() == 10 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, published, c.ids())
}

func TestSubscriberPanicIsIsolated(t *testing.T) {
	b := startBroker(t)
	c := &collector{}
	b.Subscribe("a2", func(types.Message) { panic("boom") })
	b.Subscribe("a2", c.callback)

	b.Publish(types.NewMessage(types.MessageEvent, "a1", "a2", nil, ""))
	b.Publish(types.NewMessage(types.MessageEvent, "a1", "a2", nil, ""))

	assert.Eventually(t, func() bool { return c.len() == 2 }, time.Second, 5*time.Millisecond)
}

func TestUnsubscribeRemovesTopicEntry(t *testing.T) {
	b := NewBroker()
	c := &collector{}
	sub1 := b.Subscribe("a2", c.callback)
	sub2 := b.Subscribe("a2", c.callback)

	b.Unsubscribe(sub1)
	assert.Equal(t, []string{"a2"}, b.SubscriberTopics())

	b.Unsubscribe(sub2)
	assert.Empty(t, b.SubscriberTopics())
}

func TestHistoryRecordedSynchronously(t *testing.T) {
	// No Start: history must be recorded at publish time regardless of
	// whether dispatch ever runs.
	b := NewBroker()

	msg := types.NewMessage(types.MessageEvent, "a1", "a2", nil, "")
	b.Publish(msg)

	history := b.GetMessageHistory("a1", -1, -1)
	require.Len(t, history, 1)
	assert.Equal(t, msg.ID, history[0].ID)
	assert.Empty(t, b.GetMessageHistory("a2", -1, -1))
}

func TestHistoryTimeBounds(t *testing.T) {
	b := NewBroker()
	for _, ts := range []float64{10, 20, 30} {
		b.Publish(types.Message{ID: "m", Type: types.MessageEvent, Sender: "a1", Recipient: "a2", Timestamp: ts})
	}

	assert.Len(t, b.GetMessageHistory("a1", -1, -1), 3)
	assert.Len(t, b.GetMessageHistory("a1", 15, -1), 2)
	assert.Len(t, b.GetMessageHistory("a1", -1, 15), 1)
	assert.Len(t, b.GetMessageHistory("a1", 10, 20), 2)
	assert.Len(t, b.GetMessageHistory("a1", 35, -1), 0)
}

func TestProtocolRepliesAreRepublished(t *testing.T) {
	b := startBroker(t)
	c := &collector{}
	b.Subscribe("a1", c.callback)

	req := types.NewMessage(types.MessageRequest, "a1", "a2", map[string]interface{}{"q": "ping"}, "")
	b.Publish(req)

	assert.Eventually(t, func() bool { return c.len() == 1 }, time.Second, 5*time.Millisecond)

	c.mu.Lock()
	reply := c.msgs[0]
	c.mu.Unlock()
	assert.Equal(t, types.MessageResponse, reply.Type)
	assert.Equal(t, req.ID, reply.CorrelationID)
	assert.Equal(t, "a2", reply.Sender)
	assert.Equal(t, "received", reply.Content["status"])
}

func TestBrokerLifecycle(t *testing.T) {
	b := NewBroker()
	assert.ErrorIs(t, b.Stop(), ErrBrokerNotRunning)

	require.NoError(t, b.Start())
	assert.ErrorIs(t, b.Start(), ErrBrokerAlreadyRunning)
	require.NoError(t, b.Stop())

	// Messages published after Stop queue up but are not dispatched.
	c := &collector{}
	b.Subscribe("a2", c.callback)
	b.Publish(types.NewMessage(types.MessageEvent, "a1", "a2", nil, ""))
	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, c.len())
}
