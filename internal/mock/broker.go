package mock

import (
	"context"
	"errors"
	"sync"

	"github.com/routemq/routemq/core"
)

// ErrNoHandler is returned by Deliver when no Subscribe call registered a
// handler for the given topic.
var ErrNoHandler = errors.New("mock: no handler registered for topic")

// Broker is a test double for core.Broker.
type Broker struct {
	mu           sync.Mutex
	published    []PublishedMessage
	handlers     map[string]core.Handler
	SubscribeErr error
	PublishErr   error
	closed       bool
}

// PublishedMessage records a message sent through Publish.
type PublishedMessage struct {
	Topic   string
	Payload []byte
	QoS     byte
}

func NewBroker() *Broker {
	return &Broker{
		handlers: make(map[string]core.Handler),
	}
}

func (b *Broker) Publish(_ context.Context, topic string, payload []byte, qos byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.PublishErr != nil {
		return b.PublishErr
	}
	b.published = append(b.published, PublishedMessage{Topic: topic, Payload: payload, QoS: qos})
	return nil
}

func (b *Broker) Subscribe(ctx context.Context, topic string, qos byte, handler core.Handler) error {
	b.mu.Lock()
	if b.SubscribeErr != nil {
		err := b.SubscribeErr
		b.mu.Unlock()
		return err
	}
	b.handlers[topic] = handler
	b.mu.Unlock()
	return nil
}

func (b *Broker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

// Deliver simulates an incoming message to a registered handler, as a real
// broker adapter's callback goroutine would.
func (b *Broker) Deliver(ctx context.Context, topic string, msg core.Message) error {
	b.mu.Lock()
	h, ok := b.handlers[topic]
	b.mu.Unlock()
	if !ok {
		return ErrNoHandler
	}
	return h(ctx, msg)
}

// Published returns all messages sent via Publish.
func (b *Broker) Published() []PublishedMessage {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]PublishedMessage, len(b.published))
	copy(out, b.published)
	return out
}

// IsClosed reports whether Close was called.
func (b *Broker) IsClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}
