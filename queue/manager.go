package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/routemq/routemq/job"
)

// Manager enqueues jobs via a selected driver, presenting a uniform API
// independent of the backing store (spec §4.5).
type Manager struct {
	drivers      map[string]Driver
	defaultConn  string
	defaultQueue string
	registry     *job.Registry
	defaults     job.Defaults
}

// ManagerOption configures a Manager at construction.
type ManagerOption func(*Manager)

// WithDefaultQueue overrides the queue name used when neither a job's
// Defaulter nor the caller names one.
func WithDefaultQueue(name string) ManagerOption {
	return func(m *Manager) { m.defaultQueue = name }
}

// WithDefaults overrides the manager's fallback job.Defaults.
func WithDefaults(d job.Defaults) ManagerOption {
	return func(m *Manager) { m.defaults = d }
}

// NewManager creates a Manager. drivers maps connection name to Driver;
// defaultConn selects which entry Push/Later/Bulk/Size use when the caller
// passes an empty connection name.
func NewManager(registry *job.Registry, defaultConn string, drivers map[string]Driver, opts ...ManagerOption) *Manager {
	m := &Manager{
		drivers:      drivers,
		defaultConn:  defaultConn,
		defaultQueue: "default",
		registry:     registry,
		defaults:     job.Defaults{MaxTries: 3, TimeoutSeconds: 60, RetryAfterSeconds: 10},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) driver(connection string) (Driver, error) {
	if connection == "" {
		connection = m.defaultConn
	}
	d, ok := m.drivers[connection]
	if !ok {
		return nil, fmt.Errorf("queue: unknown connection %q", connection)
	}
	return d, nil
}

func (m *Manager) buildEnvelope(j job.Job, queueName string) (*job.Envelope, string, error) {
	class, fields, err := m.registry.Encode(j)
	if err != nil {
		return nil, "", err
	}
	defaults := job.DefaultsFor(j, m.defaults)
	if queueName == "" {
		queueName = defaults.Queue
	}
	if queueName == "" {
		queueName = m.defaultQueue
	}
	env := &job.Envelope{
		JobID:             uuid.NewString(),
		Class:             class,
		Fields:            fields,
		MaxTries:          defaults.MaxTries,
		TimeoutSeconds:    defaults.TimeoutSeconds,
		RetryAfterSeconds: defaults.RetryAfterSeconds,
	}
	return env, queueName, nil
}

// Push enqueues j for immediate (once popped) execution.
func (m *Manager) Push(ctx context.Context, j job.Job, queueName, connection string) error {
	return m.Later(ctx, 0, j, queueName, connection)
}

// Later enqueues j, claimable only after delay has elapsed (spec §4.5).
func (m *Manager) Later(ctx context.Context, delay time.Duration, j job.Job, queueName, connection string) error {
	d, err := m.driver(connection)
	if err != nil {
		return err
	}
	env, qn, err := m.buildEnvelope(j, queueName)
	if err != nil {
		return err
	}
	return d.Push(ctx, qn, env, time.Now().Add(delay))
}

// Bulk enqueues every job in jobs via a single driver call where the
// driver supports BulkPusher, falling back to sequential Push otherwise
// (spec §4.5).
func (m *Manager) Bulk(ctx context.Context, jobs []job.Job, queueName, connection string) error {
	d, err := m.driver(connection)
	if err != nil {
		return err
	}
	if queueName == "" {
		queueName = m.defaultQueue
	}

	envs := make([]*job.Envelope, 0, len(jobs))
	for _, j := range jobs {
		env, qn, err := m.buildEnvelope(j, queueName)
		if err != nil {
			return err
		}
		envs = append(envs, env)
		_ = qn // per-job queue overrides aren't supported by a single bulk call
	}

	if bp, ok := d.(BulkPusher); ok {
		return bp.PushBulk(ctx, queueName, envs, time.Now())
	}
	for _, env := range envs {
		if err := d.Push(ctx, queueName, env, time.Now()); err != nil {
			return err
		}
	}
	return nil
}

// Size returns the count of claimable jobs on queueName (spec §4.5).
func (m *Manager) Size(ctx context.Context, queueName, connection string) (int64, error) {
	d, err := m.driver(connection)
	if err != nil {
		return 0, err
	}
	if queueName == "" {
		queueName = m.defaultQueue
	}
	return d.Size(ctx, queueName)
}
