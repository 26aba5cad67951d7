package core

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// RateLimitInfo is written onto a Context by the rate limiting middleware.
// See ratelimit.Middleware.
type RateLimitInfo struct {
	Remaining  int64
	RetryAfter int64 // seconds
	Exceeded   bool
}

// Context is the value threaded through the middleware pipeline for one
// inbound message (spec §3 "Context"). It is created at dispatch and
// discarded once the pipeline returns.
type Context interface {
	// Context returns the underlying context.Context, carrying deadlines
	// and cancellation from the dispatcher.
	Context() context.Context

	// SetContext replaces the underlying context.Context. Middleware that
	// enriches the context with values or deadlines should use this.
	SetContext(ctx context.Context)

	// Topic is the concrete topic this message arrived on.
	Topic() string

	// Payload returns the raw message body.
	Payload() []byte

	// QoS returns the delivery QoS the message arrived with.
	QoS() byte

	// Param returns the value bound to a named route parameter (the
	// "{name}" segments of the matched pattern), or "" if absent.
	Param(name string) string

	// Params returns a copy of all route parameters captured for this
	// match, keyed by parameter name. Being a map, it carries no order.
	Params() map[string]string

	// RequestID is a per-dispatch identifier, useful for log correlation.
	RequestID() string

	// Bind deserializes Payload into v using the router's configured Binder.
	Bind(v any) error

	// Publish sends a message to a different topic through the broker —
	// used for fan-out, DLQ routing, or saga-style chaining.
	Publish(topic string, payload []byte, qos byte) error

	// RateLimit returns the diagnostics the rate limiting middleware
	// attached, if any.
	RateLimit() (RateLimitInfo, bool)

	// SetRateLimit is called by the rate limiting middleware to record its
	// decision on this context.
	SetRateLimit(info RateLimitInfo)

	// Set stores a key-value pair in the per-request scratch area. Used by
	// middleware to pass data (authenticated principal, trace IDs, ...) to
	// downstream middleware and the handler.
	Set(key string, val any)

	// Get retrieves a value from the scratch area.
	Get(key string) (any, bool)
}

// HandlerFunc is the function signature for route handlers.
//
//	r.Register("devices/{id}/control", func(c core.Context) error {
//	    var cmd Command
//	    if err := c.Bind(&cmd); err != nil {
//	        return err
//	    }
//	    return nil
//	}, router.Options{QoS: 1})
type HandlerFunc func(c Context) error

// MiddlewareFunc wraps a HandlerFunc to add cross-cutting behavior. The
// first middleware registered on a route is outermost: it sees the request
// first and the response (or error) last.
type MiddlewareFunc func(HandlerFunc) HandlerFunc

type routeContext struct {
	ctx    context.Context
	msg    Message
	topic  string
	params map[string]string
	broker Broker
	binder Binder
	reqID  string

	mu        sync.RWMutex
	store     map[string]any
	rateLimit *RateLimitInfo
}

// NewContext creates a Context for one dispatched message. Called internally
// by the dispatcher for every matched route.
func NewContext(ctx context.Context, msg Message, topic string, params map[string]string, b Broker, binder Binder) Context {
	return &routeContext{
		ctx:    ctx,
		msg:    msg,
		topic:  topic,
		params: params,
		broker: b,
		binder: binder,
		reqID:  uuid.NewString(),
		store:  make(map[string]any),
	}
}

func (c *routeContext) Context() context.Context       { return c.ctx }
func (c *routeContext) SetContext(ctx context.Context) { c.ctx = ctx }
func (c *routeContext) Topic() string                  { return c.topic }
func (c *routeContext) Payload() []byte                { return c.msg.Payload() }
func (c *routeContext) QoS() byte                       { return c.msg.QoS() }
func (c *routeContext) RequestID() string              { return c.reqID }

func (c *routeContext) Param(name string) string {
	return c.params[name]
}

func (c *routeContext) Params() map[string]string {
	out := make(map[string]string, len(c.params))
	for k, v := range c.params {
		out[k] = v
	}
	return out
}

func (c *routeContext) Bind(v any) error {
	if c.binder == nil {
		return fmt.Errorf("routemq: no binder configured")
	}
	if err := c.binder.Bind(c.msg.Payload(), v); err != nil {
		return fmt.Errorf("routemq: bind: %w", err)
	}
	return nil
}

func (c *routeContext) Publish(topic string, payload []byte, qos byte) error {
	if c.broker == nil {
		return ErrNoBroker
	}
	if err := c.broker.Publish(c.ctx, topic, payload, qos); err != nil {
		return fmt.Errorf("routemq: publish to %q: %w", topic, err)
	}
	return nil
}

func (c *routeContext) RateLimit() (RateLimitInfo, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.rateLimit == nil {
		return RateLimitInfo{}, false
	}
	return *c.rateLimit, true
}

func (c *routeContext) SetRateLimit(info RateLimitInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rateLimit = &info
}

func (c *routeContext) Set(key string, val any) {
	c.mu.Lock()
	c.store[key] = val
	c.mu.Unlock()
}

func (c *routeContext) Get(key string) (any, bool) {
	c.mu.RLock()
	val, ok := c.store[key]
	c.mu.RUnlock()
	return val, ok
}

// Binder deserializes raw message bytes into a Go value. Implement this
// interface for custom serialization formats.
type Binder interface {
	Bind(data []byte, v any) error
}

// JSONBinder deserializes JSON message bodies. Per spec §3, a Context's
// payload is "structured if it decodes as a structured document, otherwise
// the raw byte sequence" — JSONBinder.Bind returning an error is exactly
// that signal; callers fall back to Context.Payload().
type JSONBinder struct{}

func (JSONBinder) Bind(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("json: %w", err)
	}
	return nil
}
