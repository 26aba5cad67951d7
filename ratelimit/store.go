// Package ratelimit implements the rate-limiting middleware (spec §4.4):
// three algorithms over a shared counter Store, with a process-local
// fallback when the store is unreachable.
package ratelimit

import (
	"context"
	"time"
)

// Result is what an algorithm reports back to the middleware.
type Result struct {
	Allowed bool

	// Remaining is the number of further requests allowed within the
	// current window, or -1 if the backing algorithm cannot compute it
	// precisely (the in-process token-bucket fallback, documented as
	// degraded per spec §9 Open Questions).
	Remaining int64

	// RetryAfter is how many seconds the caller should wait before
	// retrying, meaningful only when Allowed is false.
	RetryAfter int64
}

// Store is the shared counter backend contract (spec §4.4, §6 "Counter
// store"). Each method must execute its algorithm's read-modify-write
// atomically — a native compound command or a server-side script.
type Store interface {
	SlidingAllow(ctx context.Context, key string, max int64, window time.Duration) (Result, error)
	FixedAllow(ctx context.Context, key string, max int64, window time.Duration) (Result, error)
	TokenBucketAllow(ctx context.Context, key string, max int64, window time.Duration, burst int64) (Result, error)
}

// Algorithm selects which of Store's three methods the middleware calls.
type Algorithm int

const (
	Sliding Algorithm = iota
	Fixed
	TokenBucket
)
