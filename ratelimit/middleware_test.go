package ratelimit_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/routemq/routemq/core"
	"github.com/routemq/routemq/internal/mock"
	"github.com/routemq/routemq/ratelimit"
)

func newTestContext(topic string) core.Context {
	msg := &mock.Message{TopicName: topic, Body: []byte("{}")}
	return core.NewContext(context.Background(), msg, topic, nil, mock.NewBroker(), core.JSONBinder{})
}

func TestMiddleware_AllowsUnderLimitThenDenies(t *testing.T) {
	store := ratelimit.NewFallbackStore(context.Background(), time.Hour)
	defer store.Close()

	cfg := ratelimit.Config{MaxRequests: 2, Window: time.Minute, Algorithm: ratelimit.Sliding}
	mw := ratelimit.Middleware(store, cfg)

	var calls int
	handler := mw(func(c core.Context) error {
		calls++
		return nil
	})

	for i := 0; i < 2; i++ {
		if err := handler(newTestContext("orders.created")); err != nil {
			t.Fatalf("request %d: unexpected error: %v", i, err)
		}
	}

	err := handler(newTestContext("orders.created"))
	if err == nil {
		t.Fatal("third request should have been denied")
	}
	var limitErr *ratelimit.LimitExceededError
	if !errors.As(err, &limitErr) {
		t.Fatalf("error type = %T, want *ratelimit.LimitExceededError", err)
	}
	if calls != 2 {
		t.Errorf("handler called %d times, want 2", calls)
	}
}

func TestMiddleware_WhitelistBypassesLimit(t *testing.T) {
	store := ratelimit.NewFallbackStore(context.Background(), time.Hour)
	defer store.Close()

	cfg := ratelimit.Config{
		MaxRequests: 1,
		Window:      time.Minute,
		Algorithm:   ratelimit.Sliding,
		Whitelist:   []string{"health/+"},
	}
	mw := ratelimit.Middleware(store, cfg)

	var calls int
	handler := mw(func(c core.Context) error {
		calls++
		return nil
	})

	for i := 0; i < 5; i++ {
		if err := handler(newTestContext("health/check")); err != nil {
			t.Fatalf("whitelisted request %d should never be denied: %v", i, err)
		}
	}
	if calls != 5 {
		t.Errorf("handler called %d times, want 5", calls)
	}
}

func TestMiddleware_CustomErrorOverridesDefault(t *testing.T) {
	store := ratelimit.NewFallbackStore(context.Background(), time.Hour)
	defer store.Close()

	sentinel := errors.New("custom deny")
	cfg := ratelimit.Config{
		MaxRequests: 1,
		Window:      time.Minute,
		Algorithm:   ratelimit.Sliding,
		CustomError: func(c core.Context, info ratelimit.LimitedInfo) error {
			return sentinel
		},
	}
	mw := ratelimit.Middleware(store, cfg)
	handler := mw(func(c core.Context) error { return nil })

	if err := handler(newTestContext("orders.created")); err != nil {
		t.Fatalf("first request: unexpected error: %v", err)
	}
	if err := handler(newTestContext("orders.created")); !errors.Is(err, sentinel) {
		t.Fatalf("error = %v, want sentinel custom error", err)
	}
}

func TestMiddleware_SetsRateLimitInfoOnContext(t *testing.T) {
	store := ratelimit.NewFallbackStore(context.Background(), time.Hour)
	defer store.Close()

	cfg := ratelimit.Config{MaxRequests: 5, Window: time.Minute, Algorithm: ratelimit.Sliding}
	mw := ratelimit.Middleware(store, cfg)

	var gotInfo core.RateLimitInfo
	handler := mw(func(c core.Context) error {
		info, ok := c.RateLimit()
		if !ok {
			t.Fatal("rate limit info not set on context")
		}
		gotInfo = info
		return nil
	})

	c := newTestContext("orders.created")
	if err := handler(c); err != nil {
		t.Fatal(err)
	}
	if gotInfo.Exceeded {
		t.Error("Exceeded should be false for an allowed request")
	}
	if gotInfo.Remaining != 4 {
		t.Errorf("Remaining = %d, want 4", gotInfo.Remaining)
	}
}
