// Package router implements the topic routing engine (spec §4.1): a
// prefix trie over "/"-delimited MQTT topic segments that resolves an
// inbound topic to every matching route, in specificity order, with
// wildcard parameters bound.
package router

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/routemq/routemq/core"
)

// ErrInvalidPattern is returned by Register when a pattern violates the
// segment grammar (spec §4.1).
var ErrInvalidPattern = errors.New("router: invalid pattern")

// Options configures a registered route. WorkerCount is only meaningful
// when Shared is true; it defaults to 1.
type Options struct {
	QoS         byte
	Shared      bool
	Group       string
	WorkerCount int
	Middleware  []core.MiddlewareFunc
}

// Route is a registered (pattern, handler, options) triple.
type Route struct {
	Pattern string
	Handler core.HandlerFunc
	Options Options

	seq int
}

// Match is one resolved route together with the parameters captured from
// its pattern's named segments.
type Match struct {
	Route  *Route
	Params map[string]string
}

// SubscriptionEntry is one broker subscription derived by Plan.
type SubscriptionEntry struct {
	// Topic is the literal string to hand the broker: either the bare
	// pattern, or "$share/<group>/<pattern>" for a shared route.
	Topic string
	QoS   byte
}

type node struct {
	literal   map[string]*node
	param     *node
	paramName string
	wildcard  *node
	routes    []*Route
}

func newNode() *node {
	return &node{literal: make(map[string]*node)}
}

// Router is the trie-structured topic matcher. The zero value is not
// usable; construct with New.
type Router struct {
	mu     sync.RWMutex
	root   *node
	routes []*Route
	seq    int

	globalMiddleware []core.MiddlewareFunc
}

// New creates an empty Router.
func New() *Router {
	return &Router{root: newNode()}
}

// Use appends global middleware, applied to every route ahead of its own
// group/route-specific middleware (spec §4.3).
func (r *Router) Use(mw core.MiddlewareFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.globalMiddleware = append(r.globalMiddleware, mw)
}

// Register inserts a route under pattern. It fails if pattern is
// malformed; the route list and trie are otherwise append-only.
func (r *Router) Register(pattern string, handler core.HandlerFunc, opts Options) (*Route, error) {
	segments, err := splitPattern(pattern)
	if err != nil {
		return nil, err
	}
	if opts.Shared && opts.WorkerCount < 1 {
		opts.WorkerCount = 1
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	route := &Route{Pattern: pattern, Handler: handler, Options: opts, seq: r.seq}
	r.seq++

	n := r.root
	for _, seg := range segments {
		switch seg.kind {
		case segLiteral:
			child, ok := n.literal[seg.text]
			if !ok {
				child = newNode()
				n.literal[seg.text] = child
			}
			n = child
		case segParam, segPlus:
			if n.param == nil {
				n.param = newNode()
			}
			if seg.kind == segParam {
				n.param.paramName = seg.text
			}
			n = n.param
		case segHash:
			if n.wildcard == nil {
				n.wildcard = newNode()
			}
			n = n.wildcard
		}
	}
	n.routes = append(n.routes, route)
	r.routes = append(r.routes, route)

	return route, nil
}

// Resolve returns every route matching topic, ordered literal > +/{name} >
// #, then registration order within a tier (spec §4.1, §8 "Specificity
// ordering"). It never fails for "no match" — only for a structurally
// invalid topic.
func (r *Router) Resolve(topic string) ([]Match, error) {
	segments, err := splitTopic(topic)
	if err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Match
	resolveNode(r.root, segments, 0, nil, &out)
	return out, nil
}

func resolveNode(n *node, segments []string, depth int, params map[string]string, out *[]Match) {
	if n == nil {
		return
	}

	var wildcardMatches []Match
	if n.wildcard != nil {
		for _, rt := range sortedRoutes(n.wildcard.routes) {
			wildcardMatches = append(wildcardMatches, Match{Route: rt, Params: cloneParams(params)})
		}
	}

	if depth == len(segments) {
		for _, rt := range sortedRoutes(n.routes) {
			*out = append(*out, Match{Route: rt, Params: cloneParams(params)})
		}
		*out = append(*out, wildcardMatches...)
		return
	}

	seg := segments[depth]

	if child, ok := n.literal[seg]; ok {
		resolveNode(child, segments, depth+1, params, out)
	}

	if n.param != nil {
		next := params
		if n.param.paramName != "" {
			next = cloneParams(params)
			next[n.param.paramName] = seg
		}
		resolveNode(n.param, segments, depth+1, next, out)
	}

	*out = append(*out, wildcardMatches...)
}

func cloneParams(params map[string]string) map[string]string {
	out := make(map[string]string, len(params)+1)
	for k, v := range params {
		out[k] = v
	}
	return out
}

// sortedRoutes returns a copy of routes; they are already in registration
// order because Register only ever appends to a node's list.
func sortedRoutes(routes []*Route) []*Route {
	out := make([]*Route, len(routes))
	copy(out, routes)
	return out
}

// Routes returns every registered route, in registration order.
func (r *Router) Routes() []*Route {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Route, len(r.routes))
	copy(out, r.routes)
	return out
}

// Chain returns the full middleware chain for route: global middleware
// first, then the route's own (which a Group has already prefixed with
// its own middleware — spec §4.3 "global, group-outer → group-inner,
// route-specific").
func (r *Router) Chain(route *Route) []core.MiddlewareFunc {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]core.MiddlewareFunc, 0, len(r.globalMiddleware)+len(route.Options.Middleware))
	out = append(out, r.globalMiddleware...)
	out = append(out, route.Options.Middleware...)
	return out
}

// Plan derives the minimum set of broker subscriptions covering every
// registered route (spec §4.1 "plan"). Routes sharing a pattern collapse
// into one entry; shared routes use the "$share/<group>/<pattern>" form
// and the entry's QoS is the maximum across collapsed routes.
func (r *Router) Plan() []SubscriptionEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	type key struct {
		pattern string
		shared  bool
		group   string
	}
	order := make([]key, 0, len(r.routes))
	qos := make(map[key]byte, len(r.routes))

	for _, rt := range r.routes {
		k := key{pattern: rt.Pattern, shared: rt.Options.Shared, group: rt.Options.Group}
		if _, seen := qos[k]; !seen {
			order = append(order, k)
		}
		if rt.Options.QoS > qos[k] {
			qos[k] = rt.Options.QoS
		}
	}

	entries := make([]SubscriptionEntry, 0, len(order))
	for _, k := range order {
		topic := k.pattern
		if k.shared {
			group := k.group
			if group == "" {
				group = "routemq"
			}
			topic = fmt.Sprintf("$share/%s/%s", group, k.pattern)
		}
		entries = append(entries, SubscriptionEntry{Topic: topic, QoS: qos[k]})
	}
	return entries
}

// Group is a builder that prepends a topic prefix and prepends its own
// middleware to every route registered through it (spec §9 "explicit
// scope object"). Groups may be nested.
type Group struct {
	router     *Router
	prefix     string
	middleware []core.MiddlewareFunc
}

// Group returns a top-level Group rooted at the router.
func (r *Router) Group(prefix string, mw ...core.MiddlewareFunc) *Group {
	return &Group{router: r, prefix: strings.TrimSuffix(prefix, "/"), middleware: mw}
}

// Group returns a nested Group whose prefix and middleware extend g's.
func (g *Group) Group(prefix string, mw ...core.MiddlewareFunc) *Group {
	combined := make([]core.MiddlewareFunc, 0, len(g.middleware)+len(mw))
	combined = append(combined, g.middleware...)
	combined = append(combined, mw...)
	return &Group{
		router:     g.router,
		prefix:     joinPattern(g.prefix, prefix),
		middleware: combined,
	}
}

// Handle registers pattern under the group's prefix, with the group's
// middleware prepended to any route-specific middleware in opts.
func (g *Group) Handle(pattern string, handler core.HandlerFunc, opts Options) (*Route, error) {
	full := joinPattern(g.prefix, pattern)
	combined := make([]core.MiddlewareFunc, 0, len(g.middleware)+len(opts.Middleware))
	combined = append(combined, g.middleware...)
	combined = append(combined, opts.Middleware...)
	opts.Middleware = combined
	return g.router.Register(full, handler, opts)
}

func joinPattern(prefix, pattern string) string {
	prefix = strings.TrimSuffix(prefix, "/")
	pattern = strings.TrimPrefix(pattern, "/")
	if prefix == "" {
		return pattern
	}
	if pattern == "" {
		return prefix
	}
	return prefix + "/" + pattern
}
