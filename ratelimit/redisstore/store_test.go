package redisstore_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/routemq/routemq/ratelimit/redisstore"
)

func newTestStore(t *testing.T) *redisstore.Store {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("starting miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return redisstore.New(client)
}

func TestStore_SlidingAllow_AllowsExactlyMax(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	const max = 4
	allowed, denied := 0, 0
	for i := 0; i < max+2; i++ {
		res, err := store.SlidingAllow(ctx, "k", max, time.Minute)
		if err != nil {
			t.Fatal(err)
		}
		if res.Allowed {
			allowed++
		} else {
			denied++
		}
	}
	if allowed != max {
		t.Errorf("allowed = %d, want %d", allowed, max)
	}
	if denied != 2 {
		t.Errorf("denied = %d, want 2", denied)
	}
}

func TestStore_FixedAllow_DeniesOverCapacity(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	const max = 3
	for i := 0; i < max; i++ {
		res, err := store.FixedAllow(ctx, "k", max, time.Minute)
		if err != nil {
			t.Fatal(err)
		}
		if !res.Allowed {
			t.Fatalf("request %d should be allowed", i)
		}
	}

	res, err := store.FixedAllow(ctx, "k", max, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if res.Allowed {
		t.Error("request beyond max should be denied")
	}
	if res.RetryAfter <= 0 {
		t.Error("denied response should report a positive retry-after")
	}
}

func TestStore_TokenBucketAllow_AllowsBurstThenRefills(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	const max, burst = 2, 2
	window := time.Second

	allowed := 0
	for i := 0; i < max+burst; i++ {
		res, err := store.TokenBucketAllow(ctx, "k", max, window, burst)
		if err != nil {
			t.Fatal(err)
		}
		if res.Allowed {
			allowed++
		}
	}
	if allowed != max+burst {
		t.Errorf("allowed = %d, want %d", allowed, max+burst)
	}

	res, err := store.TokenBucketAllow(ctx, "k", max, window, burst)
	if err != nil {
		t.Fatal(err)
	}
	if res.Allowed {
		t.Error("bucket should be empty immediately after the burst")
	}
}

func TestStore_SeparateKeysDoNotInterfere(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.FixedAllow(ctx, "a", 1, time.Minute); err != nil {
		t.Fatal(err)
	}
	res, err := store.FixedAllow(ctx, "a", 1, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if res.Allowed {
		t.Fatal("key a should already be exhausted")
	}

	res, err = store.FixedAllow(ctx, "b", 1, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Allowed {
		t.Error("key b should be unaffected by key a's state")
	}
}
