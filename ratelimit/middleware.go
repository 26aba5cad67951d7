package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/routemq/routemq/core"
	"github.com/routemq/routemq/router"
)

// KeyGenerator derives the counter-store key for a request. The default
// is "topic:<topic>" (spec §4.4).
type KeyGenerator func(c core.Context) string

// ErrorFunc builds the payload error returned when a request is denied.
// The default produces the structured payload spec §4.4 describes.
type ErrorFunc func(c core.Context, limited LimitedInfo) error

// LimitedInfo carries the fields of the structured deny payload.
type LimitedInfo struct {
	MaxRequests   int64
	WindowSeconds int64
	Remaining     int64
	RetryAfter    int64
}

// Config configures the rate-limiting middleware (spec §4.4).
type Config struct {
	MaxRequests     int64
	Window          time.Duration
	Algorithm       Algorithm
	BurstAllowance  int64 // token bucket only
	KeyPrefix       string
	KeyGenerator    KeyGenerator
	Whitelist       []string
	FallbackEnabled bool
	Fallback        Store
	CustomError     ErrorFunc
	Log             *slog.Logger
}

// DefaultKeyGenerator returns "<prefix>:topic:<topic>".
func DefaultKeyGenerator(prefix string) KeyGenerator {
	return func(c core.Context) string {
		return fmt.Sprintf("%s:topic:%s", prefix, c.Topic())
	}
}

// LimitExceededError is returned by the pipeline when a message is denied.
// It carries the structured payload spec §4.4 describes.
type LimitExceededError struct {
	LimitedInfo
}

func (e *LimitExceededError) Error() string {
	return fmt.Sprintf("routemq: rate_limit_exceeded: remaining=%d retry_after=%ds", e.Remaining, e.RetryAfter)
}

// Middleware builds rate-limiting middleware backed by store, using
// cfg.Fallback when store is unreachable and cfg.FallbackEnabled is true
// (spec §4.4).
func Middleware(store Store, cfg Config) core.MiddlewareFunc {
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "routemq:ratelimit"
	}
	if cfg.KeyGenerator == nil {
		cfg.KeyGenerator = DefaultKeyGenerator(cfg.KeyPrefix)
	}
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}

	return func(next core.HandlerFunc) core.HandlerFunc {
		return func(c core.Context) error {
			key := cfg.KeyGenerator(c)

			for _, pattern := range cfg.Whitelist {
				if ok, _ := router.MatchPattern(pattern, c.Topic()); ok {
					return next(c)
				}
			}

			result, err := allow(c.Context(), store, cfg, key)
			if err != nil {
				if cfg.FallbackEnabled && cfg.Fallback != nil {
					cfg.Log.Warn("rate limit store unreachable, using fallback", "err", err)
					result, err = allow(c.Context(), cfg.Fallback, cfg, key)
				}
				if err != nil {
					cfg.Log.Warn("rate limit store unreachable, failing open", "err", err)
					return next(c)
				}
			}

			if result.Allowed {
				c.SetRateLimit(core.RateLimitInfo{Remaining: result.Remaining, RetryAfter: 0, Exceeded: false})
				return next(c)
			}

			c.SetRateLimit(core.RateLimitInfo{Remaining: result.Remaining, RetryAfter: result.RetryAfter, Exceeded: true})
			info := LimitedInfo{
				MaxRequests:   cfg.MaxRequests,
				WindowSeconds: int64(cfg.Window.Seconds()),
				Remaining:     result.Remaining,
				RetryAfter:    result.RetryAfter,
			}
			if cfg.CustomError != nil {
				return cfg.CustomError(c, info)
			}
			return &LimitExceededError{LimitedInfo: info}
		}
	}
}

func allow(ctx context.Context, store Store, cfg Config, key string) (Result, error) {
	switch cfg.Algorithm {
	case Fixed:
		return store.FixedAllow(ctx, key, cfg.MaxRequests, cfg.Window)
	case TokenBucket:
		return store.TokenBucketAllow(ctx, key, cfg.MaxRequests, cfg.Window, cfg.BurstAllowance)
	default:
		return store.SlidingAllow(ctx, key, cfg.MaxRequests, cfg.Window)
	}
}
