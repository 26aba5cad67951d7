package core

import "context"

// Message is the broker-agnostic unit of data delivered to the dispatcher.
// Broker adapters (plugins/mqtt being the one shipped here) construct one
// per inbound publish.
type Message interface {
	// Topic is the concrete topic the message was published to (never a
	// filter — wildcards are resolved before a Message exists).
	Topic() string

	// Payload is the raw message body.
	Payload() []byte

	// QoS is the delivery quality of service the message arrived with.
	QoS() byte

	// Retained reports whether the broker marked this as a retained message.
	Retained() bool
}

// Handler is the low-level callback a Broker invokes per inbound message.
// Routers and dispatchers build Context-based HandlerFunc on top of this.
type Handler func(ctx context.Context, msg Message) error

// Middleware wraps a low-level Handler. Most code should use MiddlewareFunc,
// which operates on the richer Context; Middleware exists for adapters that
// need to intercept before a Context is built.
type Middleware func(Handler) Handler
