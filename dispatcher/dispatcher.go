// Package dispatcher wires a router.Router to a core.Broker: it installs
// the subscription plan, resolves inbound messages back to routes, and
// drives each match through its middleware chain with the concurrency
// discipline spec §4.2 requires — inline for non-shared routes, fanned out
// over a bounded worker pool for shared ones.
package dispatcher

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/routemq/routemq/core"
	"github.com/routemq/routemq/internal/workerpool"
	"github.com/routemq/routemq/router"
)

// defaultGracePeriod bounds how long Stop waits for in-flight shared-route work
// to drain before it proceeds to close the broker (spec §4.2, §5).
const defaultGracePeriod = 10 * time.Second

// Dispatcher is the subscription planner and dispatch engine (spec §4.2).
type Dispatcher struct {
	router *router.Router
	broker core.Broker
	binder core.Binder
	log    *slog.Logger

	gracePeriod time.Duration

	mu      sync.Mutex
	started bool
	stopped atomic.Bool
	pools   map[*router.Route]*workerpool.Pool[dispatchWork]
}

type dispatchWork struct {
	ctx   context.Context
	msg   core.Message
	match router.Match
}

// Option configures a Dispatcher at construction.
type Option func(*Dispatcher)

// WithGracePeriod overrides the default drain timeout used by Stop.
func WithGracePeriod(d time.Duration) Option {
	return func(disp *Dispatcher) { disp.gracePeriod = d }
}

// WithLogger overrides the default slog logger.
func WithLogger(l *slog.Logger) Option {
	return func(disp *Dispatcher) { disp.log = l }
}

// New creates a Dispatcher bound to r and b. binder is used to build every
// dispatched core.Context; pass core.JSONBinder{} for the common case.
func New(r *router.Router, b core.Broker, binder core.Binder, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		router:      r,
		broker:      b,
		binder:      binder,
		log:         slog.Default(),
		gracePeriod: defaultGracePeriod,
		pools:       make(map[*router.Route]*workerpool.Pool[dispatchWork]),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Start computes the subscription plan, subscribes every entry, and starts
// a worker pool per shared route. It blocks until ctx is cancelled, then
// stops and returns.
func (d *Dispatcher) Start(ctx context.Context) error {
	d.mu.Lock()
	if d.broker == nil {
		d.mu.Unlock()
		return core.ErrNoBroker
	}
	if d.started {
		d.mu.Unlock()
		return core.ErrAlreadyStarted
	}
	d.started = true
	d.mu.Unlock()

	for _, route := range d.sharedRoutes() {
		pool := workerpool.New[dispatchWork](route.Options.WorkerCount, route.Options.WorkerCount*8, d.log)
		pool.Start(ctx, d.runWork)
		d.pools[route] = pool
	}

	plan := d.router.Plan()
	for _, entry := range plan {
		if err := d.broker.Subscribe(ctx, entry.Topic, entry.QoS, d.onMessage); err != nil {
			return fmt.Errorf("routemq: subscribe %q: %w", entry.Topic, err)
		}
	}

	<-ctx.Done()
	return d.Stop()
}

// sharedRoutes returns every registered route marked Shared, one pool per
// distinct route value — two shared routes at the same pattern still get
// independent pools, matching §4.2's "each shared route starts a bounded
// worker pool".
func (d *Dispatcher) sharedRoutes() []*router.Route {
	var out []*router.Route
	for _, rt := range d.router.Routes() {
		if rt.Options.Shared {
			out = append(out, rt)
		}
	}
	return out
}

// onMessage is the low-level core.Handler installed against every broker
// subscription. It resolves the concrete topic and dispatches each match.
func (d *Dispatcher) onMessage(ctx context.Context, msg core.Message) error {
	if d.stopped.Load() {
		return nil
	}

	matches, err := d.router.Resolve(msg.Topic())
	if err != nil {
		d.log.Warn("dropping message with invalid topic", "topic", msg.Topic(), "err", err)
		return nil
	}
	if len(matches) == 0 {
		d.log.Debug("no route matched", "topic", msg.Topic())
		return nil
	}

	for _, m := range matches {
		if m.Route.Options.Shared {
			pool := d.pools[m.Route]
			if pool == nil {
				d.log.Warn("shared route has no pool, running inline", "pattern", m.Route.Pattern)
				d.dispatch(ctx, msg, m)
				continue
			}
			pool.Push(dispatchWork{ctx: ctx, msg: msg, match: m})
			continue
		}
		d.dispatch(ctx, msg, m)
	}
	return nil
}

func (d *Dispatcher) runWork(ctx context.Context, w dispatchWork) {
	d.dispatch(w.ctx, w.msg, w.match)
}

// dispatch builds a Context for one match and runs it through the route's
// full middleware chain. Errors are logged at the dispatch site; the
// broker message is still considered delivered (spec §4.3, §7).
func (d *Dispatcher) dispatch(ctx context.Context, msg core.Message, m router.Match) {
	c := core.NewContext(ctx, msg, msg.Topic(), m.Params, d.broker, d.binder)

	h := m.Route.Handler
	chain := d.router.Chain(m.Route)
	for i := len(chain) - 1; i >= 0; i-- {
		h = chain[i](h)
	}

	if err := h(c); err != nil {
		d.log.Error("handler error", "pattern", m.Route.Pattern, "topic", c.Topic(), "req", c.RequestID(), "err", err)
	}
}

// Stop signals every shared-route pool to drain, waits up to the
// configured grace period, then closes the broker connection. Only the
// first call does this work: any later call returns nil at once and does
// not abort pipelines that are still in flight.
func (d *Dispatcher) Stop() error {
	if !d.stopped.CompareAndSwap(false, true) {
		return nil
	}

	var dones []workerpool.Done
	for _, pool := range d.pools {
		dones = append(dones, pool.Stop())
	}

	deadline := time.After(d.gracePeriod)
	for _, done := range dones {
		select {
		case <-done:
		case <-deadline:
			d.log.Warn("grace period elapsed with pools still draining, closing broker anyway")
			return d.broker.Close()
		}
	}
	return d.broker.Close()
}
