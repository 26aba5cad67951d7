// Package sqldriver is the durable/transactional queue driver (spec
// §4.7), backed by github.com/uptrace/bun over a SQL database. It uses
// exactly two tables, queue_jobs and queue_failed_jobs, and claims work
// with a single UPDATE ... WHERE id IN (subquery) RETURNING statement so
// selection and reservation happen atomically without row-level locking
// hints the driver isn't guaranteed to get.
package sqldriver

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/routemq/routemq/job"
	"github.com/routemq/routemq/queue"
)

// Driver implements queue.Driver and queue.BulkPusher against bun.
type Driver struct {
	db         *bun.DB
	connection string
}

// New wraps a bun.DB whose schema has already been created via
// InitSchema. connection names the logical connection, recorded on
// failed records (spec §3 FailedRecord.Connection).
func New(db *bun.DB, connection string) *Driver {
	return &Driver{db: db, connection: connection}
}

var (
	_ queue.Driver     = (*Driver)(nil)
	_ queue.BulkPusher = (*Driver)(nil)
	_ queue.Lister     = (*Driver)(nil)
)

func encodePayload(env *job.Envelope) ([]byte, error) {
	b, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("sqldriver: encode envelope: %w", err)
	}
	return b, nil
}

func decodePayload(payload []byte) (*job.Envelope, error) {
	var env job.Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, fmt.Errorf("sqldriver: decode envelope: %w", err)
	}
	return &env, nil
}

// Push implements spec §4.7 "push": INSERT with reserved_at NULL.
func (d *Driver) Push(ctx context.Context, queueName string, env *job.Envelope, availableAt time.Time) error {
	payload, err := encodePayload(env)
	if err != nil {
		return err
	}
	row := &jobRow{
		ID:          env.JobID,
		Queue:       queueName,
		Payload:     payload,
		AvailableAt: availableAt,
	}
	_, err = d.db.NewInsert().Model(row).Exec(ctx)
	if err != nil {
		return fmt.Errorf("sqldriver: push: %w", err)
	}
	return nil
}

// PushBulk inserts all envelopes in a single statement (spec §4.5 "bulk"
// "atomically inserts all envelopes on the durable driver").
func (d *Driver) PushBulk(ctx context.Context, queueName string, envs []*job.Envelope, availableAt time.Time) error {
	if len(envs) == 0 {
		return nil
	}
	rows := make([]*jobRow, 0, len(envs))
	for _, env := range envs {
		payload, err := encodePayload(env)
		if err != nil {
			return err
		}
		rows = append(rows, &jobRow{
			ID:          env.JobID,
			Queue:       queueName,
			Payload:     payload,
			AvailableAt: availableAt,
		})
	}
	_, err := d.db.NewInsert().Model(&rows).Exec(ctx)
	if err != nil {
		return fmt.Errorf("sqldriver: push bulk: %w", err)
	}
	return nil
}

// Pop implements spec §4.7 "pop": a single UPDATE ... WHERE id IN
// (subquery) RETURNING, the same atomic-claim pattern gqs's SQL puller
// uses, so concurrent workers never claim the same row even without a
// dialect-specific "skip locked" hint.
func (d *Driver) Pop(ctx context.Context, queueName string) (*job.Envelope, error) {
	now := time.Now()

	subquery := d.db.NewSelect().
		Model((*jobRow)(nil)).
		Column("id").
		Where("queue = ?", queueName).
		Where("reserved_at IS NULL").
		Where("available_at <= ?", now).
		Order("id ASC").
		Limit(1)

	var rows []*jobRow
	err := d.db.NewUpdate().
		Model((*jobRow)(nil)).
		Set("reserved_at = ?", now).
		Set("attempts = attempts + 1").
		Where("id IN (?)", subquery).
		Returning("*").
		Scan(ctx, &rows)
	if err != nil {
		return nil, fmt.Errorf("sqldriver: pop: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	env, err := decodePayload(rows[0].Payload)
	if err != nil {
		return nil, err
	}
	env.Attempts = rows[0].Attempts
	return env, nil
}

// Complete implements spec §4.7 "complete": DELETE WHERE id = ?.
func (d *Driver) Complete(ctx context.Context, queueName string, env *job.Envelope) error {
	_, err := d.db.NewDelete().
		Model((*jobRow)(nil)).
		Where("id = ?", env.JobID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("sqldriver: complete: %w", err)
	}
	return nil
}

// Release implements spec §4.7 "release": reserved_at = NULL,
// available_at = now + delay, preserving the row's id across the retry.
func (d *Driver) Release(ctx context.Context, queueName string, env *job.Envelope, delay time.Duration) error {
	_, err := d.db.NewUpdate().
		Model((*jobRow)(nil)).
		Set("reserved_at = NULL").
		Set("available_at = ?", time.Now().Add(delay)).
		Where("id = ?", env.JobID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("sqldriver: release: %w", err)
	}
	return nil
}

// Fail implements spec §4.7 "fail": INSERT into queue_failed_jobs then
// DELETE from queue_jobs, in a single transaction.
func (d *Driver) Fail(ctx context.Context, queueName string, env *job.Envelope, errText string) error {
	payload, err := encodePayload(env)
	if err != nil {
		return err
	}

	return d.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		failed := &failedRow{
			ID:         uuid.NewString(),
			Connection: d.connection,
			Queue:      queueName,
			Payload:    payload,
			Exception:  errText,
		}
		if _, err := tx.NewInsert().Model(failed).Exec(ctx); err != nil {
			return fmt.Errorf("sqldriver: fail: insert failed row: %w", err)
		}
		if _, err := tx.NewDelete().Model((*jobRow)(nil)).Where("id = ?", env.JobID).Exec(ctx); err != nil {
			return fmt.Errorf("sqldriver: fail: delete job row: %w", err)
		}
		return nil
	})
}

// Size reports the claimable count (spec §4.5 "size").
func (d *Driver) Size(ctx context.Context, queueName string) (int64, error) {
	count, err := d.db.NewSelect().
		Model((*jobRow)(nil)).
		Where("queue = ?", queueName).
		Where("reserved_at IS NULL").
		Where("available_at <= ?", time.Now()).
		Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("sqldriver: size: %w", err)
	}
	return int64(count), nil
}

// ListFailed returns up to limit failed records for queueName, most
// recent first.
func (d *Driver) ListFailed(ctx context.Context, queueName string, limit int) ([]queue.FailedRecord, error) {
	var rows []*failedRow
	err := d.db.NewSelect().
		Model(&rows).
		Where("queue = ?", queueName).
		Order("failed_at DESC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("sqldriver: list failed: %w", err)
	}

	records := make([]queue.FailedRecord, 0, len(rows))
	for _, row := range rows {
		env, err := decodePayload(row.Payload)
		if err != nil {
			continue
		}
		records = append(records, queue.FailedRecord{
			Connection:    row.Connection,
			Queue:         row.Queue,
			Envelope:      env,
			ExceptionText: row.Exception,
			FailedAt:      row.FailedAt,
		})
	}
	return records, nil
}
