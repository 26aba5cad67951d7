// Package redisstore is the shared counter store backend for rate limiting
// (spec §4.4, §6 "Counter store"), backed by Redis. Each algorithm is
// implemented as a single Lua script so the read-modify-write sequence
// spec §4.4 describes executes atomically on the server.
package redisstore

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/routemq/routemq/ratelimit"
)

// Store implements ratelimit.Store against a Redis connection.
type Store struct {
	client redis.UniversalClient
}

// New wraps an existing Redis client. The caller owns the client's
// lifecycle (connection pooling, TLS, auth) the same way kashvi's cache
// layer takes a pre-built client rather than a DSN.
func New(client redis.UniversalClient) *Store {
	return &Store{client: client}
}

var _ ratelimit.Store = (*Store)(nil)

// slidingScript trims timestamps older than the window from a sorted set,
// counts what remains, and only if under max adds the current timestamp —
// all as one atomic step (spec §4.4 "Steps (1)-(3) must execute atomically").
var slidingScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window_ms = tonumber(ARGV[2])
local max = tonumber(ARGV[3])
local member = ARGV[4]

redis.call("ZREMRANGEBYSCORE", key, "-inf", now - window_ms)
local count = redis.call("ZCARD", key)

if count >= max then
  return {0, 0}
end

redis.call("ZADD", key, now, member)
redis.call("PEXPIRE", key, window_ms)
return {1, max - count - 1}
`)

func (s *Store) SlidingAllow(ctx context.Context, key string, max int64, window time.Duration) (ratelimit.Result, error) {
	now := time.Now().UnixMilli()
	member := fmt.Sprintf("%d-%d", now, time.Now().UnixNano())
	res, err := slidingScript.Run(ctx, s.client, []string{key}, now, window.Milliseconds(), max, member).Slice()
	if err != nil {
		return ratelimit.Result{}, fmt.Errorf("redisstore: sliding allow: %w", err)
	}
	allowed := res[0].(int64) == 1
	remaining := res[1].(int64)
	if allowed {
		return ratelimit.Result{Allowed: true, Remaining: remaining}, nil
	}
	return ratelimit.Result{Allowed: false, Remaining: 0, RetryAfter: int64(window.Seconds())}, nil
}

// fixedScript increments a counter keyed by the window's start, setting a
// TTL only on the first increment of that window so the key expires with
// the window rather than accumulating forever.
var fixedScript = redis.NewScript(`
local key = KEYS[1]
local max = tonumber(ARGV[1])
local window_seconds = tonumber(ARGV[2])

local count = redis.call("INCR", key)
if count == 1 then
  redis.call("EXPIRE", key, window_seconds)
end

if count > max then
  local ttl = redis.call("TTL", key)
  if ttl < 0 then
    ttl = window_seconds
  end
  return {0, 0, ttl}
end

return {1, max - count, 0}
`)

func (s *Store) FixedAllow(ctx context.Context, key string, max int64, window time.Duration) (ratelimit.Result, error) {
	windowKey := fmt.Sprintf("%s:%d", key, time.Now().Truncate(window).Unix())
	res, err := fixedScript.Run(ctx, s.client, []string{windowKey}, max, int64(window.Seconds())).Slice()
	if err != nil {
		return ratelimit.Result{}, fmt.Errorf("redisstore: fixed allow: %w", err)
	}
	allowed := res[0].(int64) == 1
	remaining := res[1].(int64)
	retryAfter := res[2].(int64)
	return ratelimit.Result{Allowed: allowed, Remaining: remaining, RetryAfter: retryAfter}, nil
}

// bucketScript implements a token bucket as a Redis hash {tokens,
// updated_at}, refilling lazily on each call rather than via a background
// process (spec §4.4 "Token bucket").
var bucketScript = redis.NewScript(`
local key = KEYS[1]
local max = tonumber(ARGV[1])
local refill_per_sec = tonumber(ARGV[2])
local burst = tonumber(ARGV[3])
local now = tonumber(ARGV[4])
local ttl_seconds = tonumber(ARGV[5])

local capacity = max + burst
local data = redis.call("HMGET", key, "tokens", "updated_at")
local tokens = tonumber(data[1])
local updated_at = tonumber(data[2])

if tokens == nil then
  tokens = capacity
  updated_at = now
end

local elapsed = now - updated_at
if elapsed > 0 then
  tokens = math.min(capacity, tokens + elapsed * refill_per_sec)
  updated_at = now
end

if tokens < 1 then
  local deficit = 1 - tokens
  local retry_after = math.ceil(deficit / refill_per_sec)
  redis.call("HMSET", key, "tokens", tokens, "updated_at", updated_at)
  redis.call("EXPIRE", key, ttl_seconds)
  return {0, 0, retry_after}
end

tokens = tokens - 1
redis.call("HMSET", key, "tokens", tokens, "updated_at", updated_at)
redis.call("EXPIRE", key, ttl_seconds)
return {1, math.floor(tokens), 0}
`)

func (s *Store) TokenBucketAllow(ctx context.Context, key string, max int64, window time.Duration, burst int64) (ratelimit.Result, error) {
	refillPerSec := float64(max) / window.Seconds()
	now := float64(time.Now().UnixNano()) / 1e9
	ttlSeconds := int64(window.Seconds()) * 2
	if ttlSeconds < 1 {
		ttlSeconds = 1
	}
	res, err := bucketScript.Run(ctx, s.client, []string{key}, max, refillPerSec, burst, now, ttlSeconds).Slice()
	if err != nil {
		return ratelimit.Result{}, fmt.Errorf("redisstore: token bucket allow: %w", err)
	}
	allowed := res[0].(int64) == 1
	remaining := res[1].(int64)
	retryAfter := res[2].(int64)
	return ratelimit.Result{Allowed: allowed, Remaining: remaining, RetryAfter: retryAfter}, nil
}
