package postgres

import (
	"context"
	"fmt"
	"time"

	"imageforge/internal/store"

	"github.com/google/uuid"
)

// CreateJob inserts the job row and all of its item rows in one transaction
// so a half-written batch can never be claimed by a worker.
func (s *Store) CreateJob(ctx context.Context, job *store.Job, items []*store.JobItem) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO jobs (id, owner, status, pipeline, raw_command, output_format, quality, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		job.ID,
		job.Owner,
		job.Status,
		job.Pipeline,
		job.RawCommand,
		job.OutputFormat,
		job.Quality,
		job.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert job %s: %w", job.ID, err)
	}

	for _, item := range items {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO job_items (id, job_id, seq, input_path, status, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)
		`,
			item.ID,
			item.JobID,
			item.Seq,
			item.InputPath,
			item.Status,
			item.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert item %d of job %s: %w", item.Seq, job.ID, err)
		}
	}

	return tx.Commit()
}

func (s *Store) GetJobByID(ctx context.Context, id uuid.UUID) (*store.Job, error) {
	query := `
		SELECT id, owner, status, pipeline, raw_command, output_format, quality,
		       archive_path, expires_at, created_at, started_at, completed_at
		FROM jobs WHERE id = $1
	`

	var job store.Job
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&job.ID, &job.Owner, &job.Status, &job.Pipeline, &job.RawCommand,
		&job.OutputFormat, &job.Quality, &job.ArchivePath, &job.ExpiresAt,
		&job.CreatedAt, &job.StartedAt, &job.CompletedAt,
	)
	if err != nil {
		return nil, err
	}

	return &job, nil
}

func (s *Store) ListItems(ctx context.Context, jobID uuid.UUID) ([]*store.JobItem, error) {
	query := `
		SELECT id, job_id, seq, input_path, status, output_path, output_size,
		       failure_reason, error_message, created_at, started_at, completed_at
		FROM job_items
		WHERE job_id = $1
		ORDER BY seq ASC
	`

	rows, err := s.db.QueryContext(ctx, query, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*store.JobItem
	for rows.Next() {
		var item store.JobItem
		if err := rows.Scan(
			&item.ID, &item.JobID, &item.Seq, &item.InputPath, &item.Status,
			&item.OutputPath, &item.OutputSize, &item.FailureReason,
			&item.ErrorMessage, &item.CreatedAt, &item.StartedAt, &item.CompletedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, &item)
	}

	return items, rows.Err()
}

func (s *Store) CountItems(ctx context.Context, jobID uuid.UUID) (store.ItemCounts, error) {
	query := `
		SELECT status, COUNT(*)
		FROM job_items
		WHERE job_id = $1
		GROUP BY status
	`

	rows, err := s.db.QueryContext(ctx, query, jobID)
	if err != nil {
		return store.ItemCounts{}, err
	}
	defer rows.Close()

	var counts store.ItemCounts
	for rows.Next() {
		var status store.ItemStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return store.ItemCounts{}, err
		}
		switch status {
		case store.ItemStatusPending:
			counts.Pending = n
		case store.ItemStatusRunning:
			counts.Running = n
		case store.ItemStatusDone:
			counts.Done = n
		case store.ItemStatusFailed:
			counts.Failed = n
		case store.ItemStatusCancelled:
			counts.Cancelled = n
		}
	}

	return counts, rows.Err()
}

// CancelJob cancels all pending items and the job itself. Items already
// running are left to finish; FinalizeJob keeps the cancelled status.
func (s *Store) CancelJob(ctx context.Context, id uuid.UUID) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE jobs
		SET status = $1, completed_at = NOW()
		WHERE id = $2 AND status IN ($3, $4)
	`, store.JobStatusCancelled, id, store.JobStatusPending, store.JobStatusRunning)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if affected == 0 {
		// Already terminal.
		return false, nil
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE job_items
		SET status = $1, completed_at = NOW()
		WHERE job_id = $2 AND status = $3
	`, store.ItemStatusCancelled, id, store.ItemStatusPending)
	if err != nil {
		return false, err
	}

	return true, tx.Commit()
}

func (s *Store) SetArchive(ctx context.Context, id uuid.UUID, path string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE jobs
		SET archive_path = $1, expires_at = $2
		WHERE id = $3
	`, path, expiresAt, id)
	return err
}

func (s *Store) ListExpired(ctx context.Context, before time.Time, limit int) ([]*store.Job, error) {
	query := `
		SELECT id, owner, status, pipeline, raw_command, output_format, quality,
		       archive_path, expires_at, created_at, started_at, completed_at
		FROM jobs
		WHERE archive_path IS NOT NULL AND expires_at < $1
		ORDER BY expires_at ASC
		LIMIT $2
	`

	rows, err := s.db.QueryContext(ctx, query, before, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []*store.Job
	for rows.Next() {
		var job store.Job
		if err := rows.Scan(
			&job.ID, &job.Owner, &job.Status, &job.Pipeline, &job.RawCommand,
			&job.OutputFormat, &job.Quality, &job.ArchivePath, &job.ExpiresAt,
			&job.CreatedAt, &job.StartedAt, &job.CompletedAt,
		); err != nil {
			return nil, err
		}
		jobs = append(jobs, &job)
	}

	return jobs, rows.Err()
}

func (s *Store) ClearArchive(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE jobs
		SET archive_path = NULL, expires_at = NULL
		WHERE id = $1
	`, id)
	return err
}
