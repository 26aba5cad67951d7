package router_test

import (
	"testing"

	"github.com/routemq/routemq/core"
	"github.com/routemq/routemq/router"
)

func handle(core.Context) error { return nil }

func TestRegister_InvalidPattern(t *testing.T) {
	tests := []struct {
		name    string
		pattern string
	}{
		{"empty", ""},
		{"hash not final", "a/#/b"},
		{"hash combined with text", "a/{id}#"},
		{"duplicate param names", "a/{id}/b/{id}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := router.New()
			if _, err := r.Register(tt.pattern, handle, router.Options{}); err == nil {
				t.Fatalf("Register(%q) = nil error, want error", tt.pattern)
			}
		})
	}
}

func TestResolve_ExactAndWildcards(t *testing.T) {
	r := router.New()

	lit, err := r.Register("a/b/c", handle, router.Options{})
	if err != nil {
		t.Fatal(err)
	}
	plus, err := r.Register("a/+/c", handle, router.Options{})
	if err != nil {
		t.Fatal(err)
	}
	hash, err := r.Register("a/#", handle, router.Options{})
	if err != nil {
		t.Fatal(err)
	}

	matches, err := r.Resolve("a/b/c")
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 3 {
		t.Fatalf("expected 3 matches, got %d: %+v", len(matches), matches)
	}
	// literal before +/{name} before #
	if matches[0].Route != lit {
		t.Errorf("matches[0] = %v, want literal route", matches[0].Route.Pattern)
	}
	if matches[1].Route != plus {
		t.Errorf("matches[1] = %v, want + route", matches[1].Route.Pattern)
	}
	if matches[2].Route != hash {
		t.Errorf("matches[2] = %v, want # route", matches[2].Route.Pattern)
	}
}

func TestResolve_HashMatchesParentLevel(t *testing.T) {
	r := router.New()
	if _, err := r.Register("a/#", handle, router.Options{}); err != nil {
		t.Fatal(err)
	}

	matches, err := r.Resolve("a")
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 1 {
		t.Fatalf("expected 1 match for parent-level #, got %d", len(matches))
	}
}

func TestResolve_NamedParameters(t *testing.T) {
	r := router.New()
	if _, err := r.Register("devices/{id}/sensors/{kind}", handle, router.Options{}); err != nil {
		t.Fatal(err)
	}

	matches, err := r.Resolve("devices/abc/sensors/temp")
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 1 {
		t.Fatalf("expected 1 match, got %d", len(matches))
	}
	params := matches[0].Params
	if params["id"] != "abc" || params["kind"] != "temp" {
		t.Errorf("params = %+v, want {id: abc, kind: temp}", params)
	}
}

func TestResolve_NoMatch(t *testing.T) {
	r := router.New()
	if _, err := r.Register("a/b/c", handle, router.Options{}); err != nil {
		t.Fatal(err)
	}

	matches, err := r.Resolve("x/y/z")
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 0 {
		t.Errorf("expected no matches, got %d", len(matches))
	}
}

func TestResolve_InvalidTopic(t *testing.T) {
	r := router.New()
	for _, topic := range []string{"", "a//b"} {
		if _, err := r.Resolve(topic); err == nil {
			t.Errorf("Resolve(%q) = nil error, want error", topic)
		}
	}
}

func TestResolve_PlusDoesNotCrossLevels(t *testing.T) {
	r := router.New()
	if _, err := r.Register("orders/+", handle, router.Options{}); err != nil {
		t.Fatal(err)
	}

	matches, err := r.Resolve("orders/us/created")
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 0 {
		t.Errorf("expected + to not cross levels, got %d matches", len(matches))
	}
}

func TestPlan_CollapsesAndPicksMaxQoS(t *testing.T) {
	r := router.New()
	if _, err := r.Register("sensors/+/data", handle, router.Options{QoS: 0}); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Register("sensors/+/data", handle, router.Options{QoS: 1}); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Register("devices/{id}/control", handle, router.Options{QoS: 1, Shared: true, Group: "workers"}); err != nil {
		t.Fatal(err)
	}

	plan := r.Plan()
	if len(plan) != 2 {
		t.Fatalf("expected 2 collapsed subscription entries, got %d: %+v", len(plan), plan)
	}
	if plan[0].Topic != "sensors/+/data" || plan[0].QoS != 1 {
		t.Errorf("plan[0] = %+v, want {sensors/+/data 1}", plan[0])
	}
	if plan[1].Topic != "$share/workers/devices/{id}/control" {
		t.Errorf("plan[1].Topic = %q, want shared-subscription form", plan[1].Topic)
	}
}

func TestGroup_PrefixAndMiddleware(t *testing.T) {
	r := router.New()

	var order []string
	outer := func(name string) core.MiddlewareFunc {
		return func(next core.HandlerFunc) core.HandlerFunc {
			return func(c core.Context) error {
				order = append(order, name)
				return next(c)
			}
		}
	}

	g := r.Group("devices", outer("group"))
	route, err := g.Handle("{id}/control", handle, router.Options{Middleware: []core.MiddlewareFunc{outer("route")}})
	if err != nil {
		t.Fatal(err)
	}
	if route.Pattern != "devices/{id}/control" {
		t.Errorf("pattern = %q, want %q", route.Pattern, "devices/{id}/control")
	}

	chain := r.Chain(route)
	if len(chain) != 2 {
		t.Fatalf("expected 2 middleware in chain, got %d", len(chain))
	}

	h := chain[0](chain[1](handle))
	_ = h(nil)
	if len(order) != 2 || order[0] != "group" || order[1] != "route" {
		t.Errorf("order = %v, want [group route]", order)
	}
}

func TestChain_GlobalFirst(t *testing.T) {
	r := router.New()
	var order []string
	mw := func(name string) core.MiddlewareFunc {
		return func(next core.HandlerFunc) core.HandlerFunc {
			return func(c core.Context) error {
				order = append(order, name)
				return next(c)
			}
		}
	}
	r.Use(mw("global"))
	route, err := r.Register("a/b", handle, router.Options{Middleware: []core.MiddlewareFunc{mw("route")}})
	if err != nil {
		t.Fatal(err)
	}

	chain := r.Chain(route)
	h := chain[0](chain[1](handle))
	_ = h(nil)
	if len(order) != 2 || order[0] != "global" || order[1] != "route" {
		t.Errorf("order = %v, want [global route]", order)
	}
}
