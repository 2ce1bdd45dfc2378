package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// DBTransaction defines the methods shared by *sql.DB and *sql.Tx
// This allows us to pass either a connection pool or an active transaction to the repository methods.
type DBTransaction interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

type Tx interface {
	DBTransaction
	Commit() error
	Rollback() error
}

// JobStore handles the persistence of jobs and their items.
type JobStore interface {
	// CreateJob inserts a job together with its items in one transaction.
	CreateJob(ctx context.Context, job *Job, items []*JobItem) error

	// GetJobByID returns a job by its ID.
	GetJobByID(ctx context.Context, id uuid.UUID) (*Job, error)

	// ListItems returns all items of a job ordered by sequence.
	ListItems(ctx context.Context, jobID uuid.UUID) ([]*JobItem, error)

	// CountItems aggregates item states for a job.
	CountItems(ctx context.Context, jobID uuid.UUID) (ItemCounts, error)

	// CancelJob marks a non-terminal job cancelled and cancels its
	// pending items. Running items finish on their own; the final
	// rollup keeps the cancelled status.
	CancelJob(ctx context.Context, id uuid.UUID) (bool, error)

	// SetArchive records the packaged archive path and its expiry.
	SetArchive(ctx context.Context, id uuid.UUID, path string, expiresAt time.Time) error

	// ListExpired returns jobs whose archive retention has lapsed.
	ListExpired(ctx context.Context, before time.Time, limit int) ([]*Job, error)

	// ClearArchive removes the archive reference after the file is deleted.
	ClearArchive(ctx context.Context, id uuid.UUID) error
}
