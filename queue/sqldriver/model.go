package sqldriver

import (
	"time"

	"github.com/uptrace/bun"
)

// jobRow mirrors the queue_jobs table of spec §4.7: "queue_jobs(id PK,
// queue, payload, attempts, reserved_at NULL, available_at, created_at)".
type jobRow struct {
	bun.BaseModel `bun:"table:queue_jobs"`

	ID          string     `bun:"id,pk"`
	Queue       string     `bun:"queue,notnull"`
	Payload     []byte     `bun:"payload,notnull"`
	Attempts    uint32     `bun:"attempts,notnull,default:0"`
	ReservedAt  *time.Time `bun:"reserved_at,nullzero"`
	AvailableAt time.Time  `bun:"available_at,notnull"`
	CreatedAt   time.Time  `bun:"created_at,notnull,default:current_timestamp"`
}

// failedRow mirrors the queue_failed_jobs table of spec §4.7.
type failedRow struct {
	bun.BaseModel `bun:"table:queue_failed_jobs"`

	ID         string    `bun:"id,pk"`
	Connection string    `bun:"connection,notnull"`
	Queue      string    `bun:"queue,notnull"`
	Payload    []byte    `bun:"payload,notnull"`
	Exception  string    `bun:"exception,notnull"`
	FailedAt   time.Time `bun:"failed_at,notnull,default:current_timestamp"`
}
