package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/routemq/routemq/internal/workerpool"
)

// FallbackStore is the process-local implementation used when the shared
// counter store is unreachable (spec §4.4 "Fallback", §9 Open Questions:
// "a conservative implementation treats the fallback as per-process").
// Its state is not shared across processes and is swept periodically to
// bound memory growth.
type FallbackStore struct {
	mu      sync.Mutex
	sliding map[string][]time.Time
	fixed   map[string]*fixedCounter
	buckets map[string]*rate.Limiter

	sweep workerpool.Ticker
}

type fixedCounter struct {
	windowStart time.Time
	count       int64
}

// NewFallbackStore creates a FallbackStore and starts its background
// sweep, which evicts sliding- and fixed-window entries untouched for
// more than an hour. Token buckets are not evicted.
func NewFallbackStore(ctx context.Context, sweepInterval time.Duration) *FallbackStore {
	s := &FallbackStore{
		sliding: make(map[string][]time.Time),
		fixed:   make(map[string]*fixedCounter),
		buckets: make(map[string]*rate.Limiter),
	}
	if sweepInterval <= 0 {
		sweepInterval = time.Minute
	}
	s.sweep.Start(ctx, s.evictExpired, sweepInterval)
	return s
}

// Close stops the background sweep.
func (s *FallbackStore) Close() {
	<-s.sweep.Stop()
}

func (s *FallbackStore) evictExpired(ctx context.Context) {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, entries := range s.sliding {
		if len(entries) == 0 || now.Sub(entries[len(entries)-1]) > time.Hour {
			delete(s.sliding, k)
		}
	}
	for k, c := range s.fixed {
		if now.Sub(c.windowStart) > time.Hour {
			delete(s.fixed, k)
		}
	}
}

// SlidingAllow implements the sliding-window algorithm of spec §4.4
// against an in-process slice of request timestamps.
func (s *FallbackStore) SlidingAllow(_ context.Context, key string, max int64, window time.Duration) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-window)

	entries := s.sliding[key]
	kept := entries[:0]
	for _, t := range entries {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}

	if int64(len(kept)) >= max {
		s.sliding[key] = kept
		return Result{Allowed: false, Remaining: 0, RetryAfter: int64(window.Seconds())}, nil
	}

	kept = append(kept, now)
	s.sliding[key] = kept
	return Result{Allowed: true, Remaining: max - int64(len(kept))}, nil
}

// FixedAllow implements the fixed-window algorithm of spec §4.4.
func (s *FallbackStore) FixedAllow(_ context.Context, key string, max int64, window time.Duration) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	windowStart := now.Truncate(window)

	c, ok := s.fixed[key]
	if !ok || !c.windowStart.Equal(windowStart) {
		c = &fixedCounter{windowStart: windowStart}
		s.fixed[key] = c
	}
	c.count++

	if c.count > max {
		retryAfter := int64(windowStart.Add(window).Sub(now).Seconds())
		if retryAfter < 0 {
			retryAfter = 0
		}
		return Result{Allowed: false, Remaining: 0, RetryAfter: retryAfter}, nil
	}
	return Result{Allowed: true, Remaining: max - c.count}, nil
}

// TokenBucketAllow implements the token-bucket algorithm using
// golang.org/x/time/rate as the refill engine. Because rate.Limiter does
// not expose its current token count, Remaining is reported as -1
// (unknown) on allow — a documented degradation of the fallback path
// (spec §9).
func (s *FallbackStore) TokenBucketAllow(_ context.Context, key string, max int64, window time.Duration, burst int64) (Result, error) {
	s.mu.Lock()
	lim, ok := s.buckets[key]
	if !ok {
		limit := rate.Limit(float64(max) / window.Seconds())
		lim = rate.NewLimiter(limit, int(max+burst))
		s.buckets[key] = lim
	}
	s.mu.Unlock()

	now := time.Now()
	reservation := lim.ReserveN(now, 1)
	if !reservation.OK() {
		return Result{Allowed: false, Remaining: 0, RetryAfter: int64(window.Seconds())}, nil
	}
	if delay := reservation.DelayFrom(now); delay > 0 {
		reservation.Cancel()
		seconds := int64(delay.Seconds())
		if delay%time.Second != 0 {
			seconds++
		}
		return Result{Allowed: false, Remaining: 0, RetryAfter: seconds}, nil
	}
	return Result{Allowed: true, Remaining: -1}, nil
}
