package postgres

import (
	"context"
	"fmt"

	"imageforge/internal/store"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// DefaultPerJobLimit bounds how many items of one job run at the same time
// so a large batch cannot starve small jobs out of the worker pool.
const DefaultPerJobLimit = 4

// SetPerJobLimit overrides the per-job concurrency bound. Zero or negative
// restores the default.
func (s *Store) SetPerJobLimit(n int) {
	if n <= 0 {
		n = DefaultPerJobLimit
	}
	s.perJobLimit = n
}

// DequeueBatch claims up to 'limit' pending items atomically using
// SELECT ... FOR UPDATE SKIP LOCKED. Items of cancelled jobs are never
// claimed, and no job exceeds the per-job concurrency bound. Returns nil
// slice if no items are available.
func (s *Store) DequeueBatch(ctx context.Context, limit int) ([]store.QueueItem, error) {
	if limit <= 0 {
		limit = 1
	}
	perJob := s.perJobLimit
	if perJob <= 0 {
		perJob = DefaultPerJobLimit
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	// candidates ranks pending items within their job; rn plus the job's
	// running count must stay within the per-job bound.
	selectQuery := `
		WITH candidates AS (
			SELECT i.id,
			       ROW_NUMBER() OVER (PARTITION BY i.job_id ORDER BY i.seq) AS rn,
			       (SELECT COUNT(*) FROM job_items r
			        WHERE r.job_id = i.job_id AND r.status = $4) AS running
			FROM job_items i
			JOIN jobs j ON i.job_id = j.id
			WHERE i.status = $1 AND j.status IN ($2, $3)
		)
		SELECT i.id, i.job_id, i.seq, i.input_path,
		       j.pipeline, j.raw_command, j.output_format, j.quality
		FROM job_items i
		JOIN jobs j ON i.job_id = j.id
		JOIN candidates c ON c.id = i.id
		WHERE c.rn + c.running <= $5
		ORDER BY i.created_at ASC, i.seq ASC
		FOR UPDATE OF i SKIP LOCKED
		LIMIT $6
	`

	rows, err := tx.QueryContext(ctx, selectQuery,
		store.ItemStatusPending, store.JobStatusPending, store.JobStatusRunning,
		store.ItemStatusRunning, perJob, limit)
	if err != nil {
		return nil, fmt.Errorf("batch dequeue query failed: %w", err)
	}
	defer rows.Close()

	var items []store.QueueItem
	var itemIDs []uuid.UUID
	var jobIDs []uuid.UUID

	for rows.Next() {
		var item store.QueueItem
		if err := rows.Scan(
			&item.ItemID, &item.JobID, &item.Seq, &item.InputPath,
			&item.Pipeline, &item.RawCommand, &item.OutputFormat, &item.Quality,
		); err != nil {
			return nil, fmt.Errorf("batch dequeue scan failed: %w", err)
		}
		items = append(items, item)
		itemIDs = append(itemIDs, item.ItemID)
		jobIDs = append(jobIDs, item.JobID)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("batch dequeue rows error: %w", err)
	}

	// Empty queue
	if len(items) == 0 {
		return nil, nil
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE job_items
		SET status = $1, started_at = NOW()
		WHERE id = ANY($2)
	`, store.ItemStatusRunning, pq.Array(itemIDs))
	if err != nil {
		return nil, fmt.Errorf("batch item claim failed: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE jobs
		SET status = $1, started_at = COALESCE(started_at, NOW())
		WHERE id = ANY($2) AND status = $3
	`, store.JobStatusRunning, pq.Array(jobIDs), store.JobStatusPending)
	if err != nil {
		return nil, fmt.Errorf("batch job status update failed: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return items, nil
}

// CompleteItem marks a running item done. The status guard makes the write a
// compare-and-set: a cancellation that already settled the item wins.
func (s *Store) CompleteItem(ctx context.Context, tx store.DBTransaction, itemID uuid.UUID, outputPath string, outputSize int64) error {
	executor := s.getExecutor(tx)

	_, err := executor.ExecContext(ctx, `
		UPDATE job_items
		SET status = $1, output_path = $2, output_size = $3, completed_at = NOW()
		WHERE id = $4 AND status = $5
	`, store.ItemStatusDone, outputPath, outputSize, itemID, store.ItemStatusRunning)
	return err
}

// FailItem marks a running item failed with a stable reason.
func (s *Store) FailItem(ctx context.Context, tx store.DBTransaction, itemID uuid.UUID, reason, errMsg string) error {
	executor := s.getExecutor(tx)

	_, err := executor.ExecContext(ctx, `
		UPDATE job_items
		SET status = $1, failure_reason = $2, error_message = $3, completed_at = NOW()
		WHERE id = $4 AND status = $5
	`, store.ItemStatusFailed, reason, errMsg, itemID, store.ItemStatusRunning)
	return err
}

// FinalizeJob rolls a job up from its items. A job completes when at least
// one item succeeded; it fails only when every item failed or was cancelled.
// An already cancelled job keeps its status.
func (s *Store) FinalizeJob(ctx context.Context, jobID uuid.UUID) (store.JobStatus, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", false, err
	}
	defer tx.Rollback()

	var status store.JobStatus
	err = tx.QueryRowContext(ctx,
		"SELECT status FROM jobs WHERE id = $1 FOR UPDATE", jobID).Scan(&status)
	if err != nil {
		return "", false, err
	}
	if status.Terminal() {
		return status, true, nil
	}

	var pending, running, done int
	err = tx.QueryRowContext(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE status = $2),
			COUNT(*) FILTER (WHERE status = $3),
			COUNT(*) FILTER (WHERE status = $4)
		FROM job_items WHERE job_id = $1
	`, jobID, store.ItemStatusPending, store.ItemStatusRunning, store.ItemStatusDone).
		Scan(&pending, &running, &done)
	if err != nil {
		return "", false, err
	}

	if pending > 0 || running > 0 {
		return status, false, nil
	}

	final := store.JobStatusFailed
	if done > 0 {
		final = store.JobStatusCompleted
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE jobs
		SET status = $1, completed_at = NOW()
		WHERE id = $2
	`, final, jobID)
	if err != nil {
		return "", false, err
	}

	return final, true, tx.Commit()
}

// Stats reports queue depth across all jobs.
func (s *Store) Stats(ctx context.Context) (store.QueueStats, error) {
	query := `
		SELECT
			COUNT(*) FILTER (WHERE status = $1),
			COUNT(*) FILTER (WHERE status = $2),
			COUNT(*) FILTER (WHERE status IN ($3, $4, $5))
		FROM job_items
	`

	var stats store.QueueStats
	err := s.db.QueryRowContext(ctx, query,
		store.ItemStatusPending, store.ItemStatusRunning,
		store.ItemStatusDone, store.ItemStatusFailed, store.ItemStatusCancelled).
		Scan(&stats.Pending, &stats.Running, &stats.Settled)
	if err != nil {
		return store.QueueStats{}, err
	}

	return stats, nil
}

func (s *Store) getExecutor(tx store.DBTransaction) store.DBTransaction {
	if tx != nil {
		return tx
	}
	return s.db
}
