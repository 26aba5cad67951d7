package queue_test

import (
	"context"
	"sync"
	"time"

	"github.com/routemq/routemq/job"
	"github.com/routemq/routemq/queue"
)

// fakeDriver is an in-process queue.Driver double for testing the
// manager and worker without a real store.
type fakeDriver struct {
	mu        sync.Mutex
	claimable map[string][]*job.Envelope
	reserved  map[string][]*job.Envelope
	failed    map[string][]queue.FailedRecord
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{
		claimable: make(map[string][]*job.Envelope),
		reserved:  make(map[string][]*job.Envelope),
		failed:    make(map[string][]queue.FailedRecord),
	}
}

func (d *fakeDriver) Push(_ context.Context, queueName string, env *job.Envelope, availableAt time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if availableAt.After(time.Now()) {
		go func() {
			time.Sleep(time.Until(availableAt))
			d.mu.Lock()
			d.claimable[queueName] = append(d.claimable[queueName], env)
			d.mu.Unlock()
		}()
		return nil
	}
	d.claimable[queueName] = append(d.claimable[queueName], env)
	return nil
}

func (d *fakeDriver) Pop(_ context.Context, queueName string) (*job.Envelope, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	q := d.claimable[queueName]
	if len(q) == 0 {
		return nil, nil
	}
	env := q[0]
	d.claimable[queueName] = q[1:]
	env.Attempts++
	d.reserved[queueName] = append(d.reserved[queueName], env)
	return env, nil
}

func (d *fakeDriver) Complete(_ context.Context, queueName string, env *job.Envelope) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.removeReserved(queueName, env)
	return nil
}

func (d *fakeDriver) Release(_ context.Context, queueName string, env *job.Envelope, delay time.Duration) error {
	d.mu.Lock()
	d.removeReserved(queueName, env)
	d.mu.Unlock()
	return d.Push(context.Background(), queueName, env, time.Now().Add(delay))
}

func (d *fakeDriver) Fail(_ context.Context, queueName string, env *job.Envelope, errText string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.removeReserved(queueName, env)
	d.failed[queueName] = append(d.failed[queueName], queue.FailedRecord{
		Queue: queueName, Envelope: env, ExceptionText: errText, FailedAt: time.Now(),
	})
	return nil
}

func (d *fakeDriver) Size(_ context.Context, queueName string) (int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return int64(len(d.claimable[queueName])), nil
}

func (d *fakeDriver) removeReserved(queueName string, env *job.Envelope) {
	q := d.reserved[queueName]
	for i, e := range q {
		if e == env {
			d.reserved[queueName] = append(q[:i], q[i+1:]...)
			return
		}
	}
}
