// Package job defines the background job contract and the driver-agnostic
// envelope jobs are serialized into when handed to the queue (spec §3,
// §4.5-§4.8).
package job

import "context"

// Job is implemented by every background job type that can be pushed
// through the queue manager.
type Job interface {
	// Class returns the registry identifier this job's type was
	// registered under. Workers use it to find the factory that
	// reconstructs a popped envelope back into a concrete Go value.
	Class() string

	// Handle executes the job. ctx is bounded by the job's configured
	// timeout; a handler that does not return before it expires is
	// treated as a failed attempt (spec §4.8 step 4).
	Handle(ctx context.Context) error
}

// Defaults are the per-class execution defaults a job type may override.
type Defaults struct {
	Queue             string
	MaxTries          uint32
	TimeoutSeconds    int64
	RetryAfterSeconds int64
}

// Defaulter lets a job type override the queue manager's fallback
// Defaults. A job that does not implement Defaulter always gets the
// manager's configured fallback.
type Defaulter interface {
	Defaults() Defaults
}

// Failer is invoked by the worker loop once a job has exhausted its
// MaxTries and is about to move to failed storage (spec §4.8 step 6,
// "job.failed(exception)"). A panic raised from Failed is recovered and
// logged; it does not prevent the move to failed storage.
type Failer interface {
	Failed(err error)
}
