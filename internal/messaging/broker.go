package messaging

import (
	"errors"
	"log"
	"sync"

	"github.com/lunar-bby/AgoraAI/internal/types"
)

var (
	ErrBrokerAlreadyRunning = errors.New("message broker is already running")
	ErrBrokerNotRunning     = errors.New("message broker is not running")
)

// Callback receives a message delivered to a subscribed topic.
type Callback func(types.Message)

// Subscription identifies one callback registration. Go functions are not
// comparable, so unsubscribing goes through the handle returned by Subscribe.
type Subscription struct {
	topic    string
	callback Callback
}

// Topic returns the topic the subscription is registered on.
func (s *Subscription) Topic() string {
	return s.topic
}

// Broker is an asynchronous publish/subscribe hub. Published messages enter
// an unbounded FIFO queue and are dispatched one at a time by a single
// background goroutine; every message is additionally appended to its
// sender's history the moment it is published, whether or not dispatch later
// succeeds.
type Broker struct {
	mu   sync.Mutex
	cond *sync.Cond

	queue       []types.Message
	subscribers map[string][]*Subscription
	history     map[string][]types.Message

	handler *ProtocolHandler
	running bool
	wg      sync.WaitGroup
}

// NewBroker creates a broker. Dispatch does not begin until Start is called;
// messages published before that simply queue up.
func NewBroker() *Broker {
	b := &Broker{
		subscribers: make(map[string][]*Subscription),
		history:     make(map[string][]types.Message),
		handler:     NewProtocolHandler(),
	}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Start launches the dispatch loop.
func (b *Broker) Start() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.running {
		return ErrBrokerAlreadyRunning
	}
	b.running = true

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.dispatchLoop()
	}()
	return nil
}

// Stop halts the dispatch loop after the in-flight message, if any, has been
// fully delivered. Queued messages stay queued.
func (b *Broker) Stop() error {
	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		return ErrBrokerNotRunning
	}
	b.running = false
	b.cond.Broadcast()
	b.mu.Unlock()

	b.wg.Wait()
	return nil
}

// Publish enqueues the message for dispatch and records it in the sender's
// history. History recording is synchronous and unconditional.
func (b *Broker) Publish(msg types.Message) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.queue = append(b.queue, msg)
	b.history[msg.Sender] = append(b.history[msg.Sender], msg.Clone())
	b.cond.Signal()
}

// Subscribe registers a callback for a topic: a literal recipient id or the
// "*" wildcard. Callbacks are kept in subscription order with no
// deduplication.
func (b *Broker) Subscribe(topic string, callback Callback) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := &Subscription{topic: topic, callback: callback}
	b.subscribers[topic] = append(b.subscribers[topic], sub)
	return sub
}

// Unsubscribe removes a registration. Removing the last registration for a
// topic removes the topic entry entirely.
func (b *Broker) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subscribers[sub.topic]
	for i, s := range subs {
		if s == sub {
			subs = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	if len(subs) == 0 {
		delete(b.subscribers, sub.topic)
	} else {
		b.subscribers[sub.topic] = subs
	}
}

// SubscriberTopics returns the topics that currently have registrations.
func (b *Broker) SubscriberTopics() []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	topics := make([]string, 0, len(b.subscribers))
	for topic := range b.subscribers {
		topics = append(topics, topic)
	}
	return topics
}

// GetMessageHistory returns the messages ever published by senderID, in
// publish order. Negative bounds are ignored; otherwise a message is
// excluded only when strictly before start or strictly after end.
func (b *Broker) GetMessageHistory(senderID string, start, end float64) []types.Message {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []types.Message
	for _, msg := range b.history[senderID] {
		if start >= 0 && msg.Timestamp < start {
			continue
		}
		if end >= 0 && msg.Timestamp > end {
			continue
		}
		out = append(out, msg.Clone())
	}
	return out
}

// dispatchLoop dequeues messages strictly FIFO and fully delivers each one
// before moving to the next.
func (b *Broker) dispatchLoop() {
	for {
		b.mu.Lock()
		for len(b.queue) == 0 && b.running {
			b.cond.Wait()
		}
		if !b.running {
			b.mu.Unlock()
			return
		}
		msg := b.queue[0]
		b.queue = b.queue[1:]
		b.mu.Unlock()

		b.dispatch(msg)
	}
}

// dispatch runs the protocol handler (republishing any reply), then notifies
// every subscriber whose topic matches the recipient or the wildcard. The
// callbacks run concurrently and are all awaited before the next dequeue; a
// panicking callback is logged and isolated from its siblings.
func (b *Broker) dispatch(msg types.Message) {
	if reply := b.handler.Handle(msg); reply != nil {
		b.Publish(*reply)
	}

	b.mu.Lock()
	var matched []*Subscription
	for _, topic := range []string{msg.Recipient, types.BroadcastRecipient} {
		matched = append(matched, b.subscribers[topic]...)
		if msg.Recipient == types.BroadcastRecipient {
			break
		}
	}
	b.mu.Unlock()

	var wg sync.WaitGroup
	for _, sub := range matched {
		wg.Add(1)
		go func(sub *Subscription) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					log.Printf("broker: subscriber callback for topic %q panicked: %v", sub.topic, r)
				}
			}()
			sub.callback(msg.Clone())
		}(sub)
	}
	wg.Wait()
}
