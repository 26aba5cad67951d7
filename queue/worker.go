package queue

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/routemq/routemq/job"
)

// WorkerConfig configures a Worker's poll loop (spec §4.8, §6
// "queue-work" flags).
type WorkerConfig struct {
	Queue   string
	Sleep   time.Duration
	MaxJobs int
	MaxTime time.Duration

	// DefaultMaxTries and DefaultTimeout back the queue-work --max-tries
	// and --timeout flags. Each is applied only to envelopes whose own
	// MaxTries or TimeoutSeconds field is zero; envelopes built by Manager
	// always carry both, from the class's Defaults or the manager's
	// fallback.
	DefaultMaxTries uint32
	DefaultTimeout  time.Duration
}

// Worker is the queue-work process loop: pop, reconstruct, execute under
// a timeout, then complete/release/fail (spec §4.8).
type Worker struct {
	driver   Driver
	registry *job.Registry
	cfg      WorkerConfig
	log      *slog.Logger

	processed int
	started   time.Time
}

// NewWorker creates a Worker over driver using registry to reconstruct
// popped envelopes.
func NewWorker(driver Driver, registry *job.Registry, cfg WorkerConfig, log *slog.Logger) *Worker {
	if cfg.Sleep <= 0 {
		cfg.Sleep = 3 * time.Second
	}
	if cfg.Queue == "" {
		cfg.Queue = "default"
	}
	return &Worker{driver: driver, registry: registry, cfg: cfg, log: log}
}

// Run executes the poll loop until ctx is cancelled or a configured limit
// (--max-jobs/--max-time) is reached, returning cleanly in either case
// (spec §4.8 step 7-8).
func (w *Worker) Run(ctx context.Context) error {
	w.started = time.Now()
	for {
		if ctx.Err() != nil {
			return nil
		}
		if w.cfg.MaxTime > 0 && time.Since(w.started) >= w.cfg.MaxTime {
			return nil
		}
		if w.cfg.MaxJobs > 0 && w.processed >= w.cfg.MaxJobs {
			return nil
		}

		env, err := w.driver.Pop(ctx, w.cfg.Queue)
		if err != nil {
			w.log.Error("pop failed", "queue", w.cfg.Queue, "err", err)
			if !sleepCtx(ctx, w.cfg.Sleep) {
				return nil
			}
			continue
		}
		if env == nil {
			if !sleepCtx(ctx, w.cfg.Sleep) {
				return nil
			}
			continue
		}

		w.handle(ctx, env)
		w.processed++
	}
}

func (w *Worker) handle(ctx context.Context, env *job.Envelope) {
	j, err := w.registry.Decode(env.Class, env.Fields)
	if err != nil {
		w.log.Error("cannot reconstruct job, failing poison envelope", "class", env.Class, "job_id", env.JobID, "err", err)
		if ferr := w.driver.Fail(ctx, w.cfg.Queue, env, err.Error()); ferr != nil {
			w.log.Error("cannot fail poison envelope", "job_id", env.JobID, "err", ferr)
		}
		return
	}

	timeout := time.Duration(env.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = w.cfg.DefaultTimeout
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	maxTries := env.MaxTries
	if maxTries == 0 {
		maxTries = w.cfg.DefaultMaxTries
	}
	hctx, cancel := context.WithTimeout(ctx, timeout)
	handleErr := j.Handle(hctx)
	if handleErr == nil && errors.Is(hctx.Err(), context.DeadlineExceeded) {
		handleErr = context.DeadlineExceeded
	}
	cancel()
	if errors.Is(handleErr, context.DeadlineExceeded) {
		handleErr = errors.New("job timed out")
	}

	if handleErr == nil {
		if err := w.driver.Complete(ctx, w.cfg.Queue, env); err != nil {
			w.log.Error("cannot complete job", "job_id", env.JobID, "err", err)
		}
		return
	}

	if env.Attempts < maxTries {
		delay := time.Duration(env.RetryAfterSeconds) * time.Second
		if err := w.driver.Release(ctx, w.cfg.Queue, env, delay); err != nil {
			w.log.Error("cannot release job", "job_id", env.JobID, "err", err)
		}
		return
	}

	if failer, ok := j.(job.Failer); ok {
		safeFailed(w.log, failer, handleErr)
	}
	if err := w.driver.Fail(ctx, w.cfg.Queue, env, handleErr.Error()); err != nil {
		w.log.Error("cannot move job to failed storage", "job_id", env.JobID, "err", err)
	}
}

func safeFailed(log *slog.Logger, failer job.Failer, handleErr error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("job.Failed panicked", "panic", r)
		}
	}()
	failer.Failed(handleErr)
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
