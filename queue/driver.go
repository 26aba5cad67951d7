// Package queue provides the driver-agnostic queue manager and worker loop
// (spec §4.5, §4.8). Concrete backends live in queue/fastdriver (Redis,
// volatile) and queue/sqldriver (bun, durable/transactional).
package queue

import (
	"context"
	"time"

	"github.com/routemq/routemq/job"
)

// Driver is the backend contract every queue store must satisfy (spec
// §4.6, §4.7). All operations that span two structures (claimable list to
// reserved, reserved to failed, ...) must be atomic.
type Driver interface {
	// Push inserts env, claimable once availableAt has passed.
	Push(ctx context.Context, queueName string, env *job.Envelope, availableAt time.Time) error

	// Pop atomically claims and returns the oldest claimable envelope,
	// incrementing its Attempts, or returns (nil, nil) if the queue is
	// empty.
	Pop(ctx context.Context, queueName string) (*job.Envelope, error)

	// Complete removes env from reserved storage after a successful
	// handle.
	Complete(ctx context.Context, queueName string, env *job.Envelope) error

	// Release returns env to claimable storage, available again after
	// delay.
	Release(ctx context.Context, queueName string, env *job.Envelope, delay time.Duration) error

	// Fail moves env to failed storage, annotated with errText.
	Fail(ctx context.Context, queueName string, env *job.Envelope, errText string) error

	// Size reports the count of claimable jobs (spec §4.5 "count of
	// claimable (not reserved, available_at <= now) jobs").
	Size(ctx context.Context, queueName string) (int64, error)
}

// BulkPusher is an optional capability a Driver may implement for an
// atomic (durable driver) or pipelined (fast driver) multi-envelope
// insert (spec §4.5 "bulk").
type BulkPusher interface {
	PushBulk(ctx context.Context, queueName string, envs []*job.Envelope, availableAt time.Time) error
}

// FailedRecord mirrors the failed job record spec §3 describes.
type FailedRecord struct {
	Connection    string
	Queue         string
	Envelope      *job.Envelope
	ExceptionText string
	FailedAt      time.Time
}

// Lister is an optional capability exposing failed-job inspection for
// admin tooling.
type Lister interface {
	ListFailed(ctx context.Context, queueName string, limit int) ([]FailedRecord, error)
}
