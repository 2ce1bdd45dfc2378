// Package store contains the database layer for imageforge.
package store

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
)

// Queue defines the interface for job item queue operations.
// Implementations must use SELECT ... FOR UPDATE SKIP LOCKED semantics.
type Queue interface {
	// DequeueBatch claims up to 'limit' pending items atomically and marks
	// them running. Returns nil slice if the queue is empty.
	DequeueBatch(ctx context.Context, limit int) ([]QueueItem, error)

	// CompleteItem marks a running item done and records its output.
	// The update is a compare-and-set on the running status so a
	// cancellation that raced ahead is never overwritten.
	CompleteItem(ctx context.Context, tx DBTransaction, itemID uuid.UUID, outputPath string, outputSize int64) error

	// FailItem marks a running item failed with a stable failure reason.
	FailItem(ctx context.Context, tx DBTransaction, itemID uuid.UUID, reason, errMsg string) error

	// FinalizeJob rolls the job status up from its items once no item is
	// pending or running. It reports whether the job reached a terminal
	// state and which one.
	FinalizeJob(ctx context.Context, jobID uuid.UUID) (JobStatus, bool, error)

	// Stats returns queue depth grouped by item status.
	Stats(ctx context.Context) (QueueStats, error)
}

// QueueItem carries everything a worker needs to compile and run one item.
type QueueItem struct {
	ItemID       uuid.UUID
	JobID        uuid.UUID
	Seq          int
	InputPath    string
	Pipeline     json.RawMessage
	RawCommand   *string
	OutputFormat string
	Quality      int
}

// QueueStats reports item counts across all jobs.
type QueueStats struct {
	Pending int64
	Running int64
	Settled int64
}
