// Package fastdriver is the volatile queue driver (spec §4.6), backed by
// Redis. It lays out each queue across four keys:
//
//	<prefix><queue>          claimable FIFO list
//	<prefix><queue>:delayed  sorted set of {envelope -> available_at_epoch}
//	<prefix><queue>:reserved hash of job_id -> reserved envelope
//	<prefix>failed:<queue>   list of failed envelopes
//
// Every operation that spans two structures executes as a single Lua
// script so the move is atomic, per spec §4.6's closing paragraph.
package fastdriver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/routemq/routemq/job"
	"github.com/routemq/routemq/queue"
)

// Driver implements queue.Driver and queue.BulkPusher against Redis.
type Driver struct {
	client redis.UniversalClient
	prefix string
	log    *slog.Logger
}

// Option configures a Driver.
type Option func(*Driver)

// WithPrefix overrides the default "routemq:queue:" key prefix.
func WithPrefix(prefix string) Option {
	return func(d *Driver) { d.prefix = prefix }
}

// WithLogger overrides the driver's logger.
func WithLogger(log *slog.Logger) Option {
	return func(d *Driver) { d.log = log }
}

// New wraps an existing Redis client.
func New(client redis.UniversalClient, opts ...Option) *Driver {
	d := &Driver{client: client, prefix: "routemq:queue:", log: slog.Default()}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

var (
	_ queue.Driver     = (*Driver)(nil)
	_ queue.BulkPusher = (*Driver)(nil)
	_ queue.Lister     = (*Driver)(nil)
)

func (d *Driver) claimableKey(queueName string) string { return d.prefix + queueName }
func (d *Driver) delayedKey(queueName string) string   { return d.prefix + queueName + ":delayed" }
func (d *Driver) reservedKey(queueName string) string  { return d.prefix + queueName + ":reserved" }
func (d *Driver) failedKey(queueName string) string    { return d.prefix + "failed:" + queueName }

func encodeEnvelope(env *job.Envelope) (string, error) {
	b, err := json.Marshal(env)
	if err != nil {
		return "", fmt.Errorf("fastdriver: encode envelope: %w", err)
	}
	return string(b), nil
}

func decodeEnvelope(raw string) (*job.Envelope, error) {
	var env job.Envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return nil, fmt.Errorf("fastdriver: decode envelope: %w", err)
	}
	return &env, nil
}

// Push implements spec §4.6 "push": claimable immediately if availableAt
// has passed, otherwise parked in the delayed sorted set.
func (d *Driver) Push(ctx context.Context, queueName string, env *job.Envelope, availableAt time.Time) error {
	raw, err := encodeEnvelope(env)
	if err != nil {
		return err
	}
	if !availableAt.After(time.Now()) {
		return d.client.RPush(ctx, d.claimableKey(queueName), raw).Err()
	}
	return d.client.ZAdd(ctx, d.delayedKey(queueName), redis.Z{
		Score:  float64(availableAt.UnixMilli()),
		Member: raw,
	}).Err()
}

// PushBulk pipelines N pushes into a single round trip (spec §4.5 "bulk"
// "uses a pipelined insert on the fast driver").
func (d *Driver) PushBulk(ctx context.Context, queueName string, envs []*job.Envelope, availableAt time.Time) error {
	pipe := d.client.Pipeline()
	now := time.Now()
	for _, env := range envs {
		raw, err := encodeEnvelope(env)
		if err != nil {
			return err
		}
		if !availableAt.After(now) {
			pipe.RPush(ctx, d.claimableKey(queueName), raw)
		} else {
			pipe.ZAdd(ctx, d.delayedKey(queueName), redis.Z{Score: float64(availableAt.UnixMilli()), Member: raw})
		}
	}
	_, err := pipe.Exec(ctx)
	return err
}

// popScript implements spec §4.6 "pop": migrate due delayed envelopes into
// the claimable list, then atomically move the head of the claimable list
// into the reserved hash, bumping attempts. Returns the envelope JSON, or
// an empty string if nothing was claimable.
var popScript = redis.NewScript(`
local claimable = KEYS[1]
local delayed = KEYS[2]
local reserved = KEYS[3]
local now = tonumber(ARGV[1])

local due = redis.call("ZRANGEBYSCORE", delayed, "-inf", now)
for _, raw in ipairs(due) do
  redis.call("RPUSH", claimable, raw)
  redis.call("ZREM", delayed, raw)
end

local raw = redis.call("LPOP", claimable)
if not raw then
  return nil
end

local env = cjson.decode(raw)
env.attempts = (env.attempts or 0) + 1
local bumped = cjson.encode(env)
redis.call("HSET", reserved, env.job_id, bumped)
return bumped
`)

func (d *Driver) Pop(ctx context.Context, queueName string) (*job.Envelope, error) {
	res, err := popScript.Run(ctx, d.client,
		[]string{d.claimableKey(queueName), d.delayedKey(queueName), d.reservedKey(queueName)},
		time.Now().UnixMilli(),
	).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fastdriver: pop: %w", err)
	}
	raw, ok := res.(string)
	if !ok {
		return nil, nil
	}
	return decodeEnvelope(raw)
}

func (d *Driver) Complete(ctx context.Context, queueName string, env *job.Envelope) error {
	return d.client.HDel(ctx, d.reservedKey(queueName), env.JobID).Err()
}

// releaseScript removes env from reserved and either re-queues it
// immediately or parks it in the delayed set (spec §4.6 "release").
var releaseScript = redis.NewScript(`
local claimable = KEYS[1]
local delayed = KEYS[2]
local reserved = KEYS[3]
local job_id = ARGV[1]
local raw = ARGV[2]
local available_at = tonumber(ARGV[3])
local now = tonumber(ARGV[4])

redis.call("HDEL", reserved, job_id)
if available_at > now then
  redis.call("ZADD", delayed, available_at, raw)
else
  redis.call("RPUSH", claimable, raw)
end
return 1
`)

func (d *Driver) Release(ctx context.Context, queueName string, env *job.Envelope, delay time.Duration) error {
	raw, err := encodeEnvelope(env)
	if err != nil {
		return err
	}
	now := time.Now()
	availableAt := now.Add(delay)
	_, err = releaseScript.Run(ctx, d.client,
		[]string{d.claimableKey(queueName), d.delayedKey(queueName), d.reservedKey(queueName)},
		env.JobID, raw, availableAt.UnixMilli(), now.UnixMilli(),
	).Result()
	if err != nil {
		return fmt.Errorf("fastdriver: release: %w", err)
	}
	return nil
}

// failScript removes env from reserved and appends it, with its
// exception text, to the failed list (spec §4.6 "fail").
var failScript = redis.NewScript(`
local reserved = KEYS[1]
local failedList = KEYS[2]
local job_id = ARGV[1]
local record = ARGV[2]

redis.call("HDEL", reserved, job_id)
redis.call("RPUSH", failedList, record)
return 1
`)

func (d *Driver) Fail(ctx context.Context, queueName string, env *job.Envelope, errText string) error {
	record, err := json.Marshal(queue.FailedRecord{
		Queue:         queueName,
		Envelope:      env,
		ExceptionText: errText,
		FailedAt:      time.Now(),
	})
	if err != nil {
		return fmt.Errorf("fastdriver: encode failed record: %w", err)
	}
	_, err = failScript.Run(ctx, d.client,
		[]string{d.reservedKey(queueName), d.failedKey(queueName)},
		env.JobID, string(record),
	).Result()
	if err != nil {
		return fmt.Errorf("fastdriver: fail: %w", err)
	}
	return nil
}

// Size reports the claimable count (spec §4.5 "size"), excluding
// reserved and not-yet-due delayed entries.
func (d *Driver) Size(ctx context.Context, queueName string) (int64, error) {
	ready, err := d.client.LLen(ctx, d.claimableKey(queueName)).Result()
	if err != nil {
		return 0, err
	}
	now := strconv.FormatInt(time.Now().UnixMilli(), 10)
	due, err := d.client.ZCount(ctx, d.delayedKey(queueName), "-inf", now).Result()
	if err != nil {
		return 0, err
	}
	return ready + due, nil
}

// ListFailed returns up to limit failed records, most recent first.
func (d *Driver) ListFailed(ctx context.Context, queueName string, limit int) ([]queue.FailedRecord, error) {
	raws, err := d.client.LRange(ctx, d.failedKey(queueName), -int64(limit), -1).Result()
	if err != nil {
		return nil, fmt.Errorf("fastdriver: list failed: %w", err)
	}
	records := make([]queue.FailedRecord, 0, len(raws))
	for i := len(raws) - 1; i >= 0; i-- {
		var rec queue.FailedRecord
		if err := json.Unmarshal([]byte(raws[i]), &rec); err != nil {
			d.log.Warn("fastdriver: skipping malformed failed record", "err", err)
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

// ReapStale releases every envelope currently in the reserved hash back
// onto the claimable list. The reserved hash does not record when an
// entry was reserved, so ReapStale takes no visibility timeout and does
// not tell stale reservations from jobs still in flight: both are
// released. RouteMQ does not call it automatically.
func (d *Driver) ReapStale(ctx context.Context, queueName string) error {
	raws, err := d.client.HGetAll(ctx, d.reservedKey(queueName)).Result()
	if err != nil {
		return fmt.Errorf("fastdriver: reap stale: %w", err)
	}
	for jobID, raw := range raws {
		env, err := decodeEnvelope(raw)
		if err != nil {
			d.log.Warn("fastdriver: skipping malformed reserved entry", "job_id", jobID, "err", err)
			continue
		}
		if err := d.Release(ctx, queueName, env, 0); err != nil {
			return err
		}
	}
	return nil
}
