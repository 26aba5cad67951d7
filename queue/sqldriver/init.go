package sqldriver

import (
	"context"
	"errors"

	"github.com/uptrace/bun"
)

func createJobsTable(ctx context.Context, db bun.IDB) error {
	_, err := db.NewCreateTable().
		Model((*jobRow)(nil)).
		IfNotExists().
		Exec(ctx)
	return err
}

func createJobsIndex(ctx context.Context, db bun.IDB) error {
	_, err := db.NewCreateIndex().
		Model((*jobRow)(nil)).
		Index("idx_queue_jobs_claim").
		Column("queue", "reserved_at", "available_at", "id").
		IfNotExists().
		Exec(ctx)
	return err
}

func createFailedTable(ctx context.Context, db bun.IDB) error {
	_, err := db.NewCreateTable().
		Model((*failedRow)(nil)).
		IfNotExists().
		Exec(ctx)
	return err
}

func initSchema(ctx context.Context, db *bun.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := createJobsTable(ctx, tx); err != nil {
		return errors.Join(err, tx.Rollback())
	}
	if err := createJobsIndex(ctx, tx); err != nil {
		return errors.Join(err, tx.Rollback())
	}
	if err := createFailedTable(ctx, tx); err != nil {
		return errors.Join(err, tx.Rollback())
	}
	return tx.Commit()
}

// InitSchema creates the two queue tables and their index if absent
// (spec §6 "the framework creates them on first start if absent").
// It is idempotent and safe to call on every startup.
func InitSchema(ctx context.Context, db *bun.DB) error {
	return initSchema(ctx, db)
}
