// Package queue provides the durable, at-least-once work queue behind
// the event dispatch subsystem. Jobs live in postgres; workers claim
// batches with FOR UPDATE SKIP LOCKED so concurrent pools never see
// the same job twice, and retries reschedule via run_at.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/riverguard/parametric-api/internal/model"
)

// Queue is the producer/consumer contract shared by the API (enqueue
// only) and the worker binary.
type Queue interface {
	Enqueue(ctx context.Context, jobType string, payload interface{}) (*model.Job, error)
	EnqueueAt(ctx context.Context, jobType string, payload interface{}, runAt time.Time) (*model.Job, error)
	Dequeue(ctx context.Context, jobTypes []string, limit int) ([]*model.Job, error)
	Complete(ctx context.Context, id uuid.UUID) error
	Retry(ctx context.Context, job *model.Job, errMsg string, delay time.Duration) error
	Drop(ctx context.Context, job *model.Job, errMsg string) error
	DeadLetter(ctx context.Context, job *model.Job, errMsg string, logID *uuid.UUID) error
	PendingCount(ctx context.Context) (int64, error)
	PurgeDone(ctx context.Context, before time.Time) (int64, error)
}

type postgresQueue struct {
	db *sqlx.DB
}

func NewPostgres(db *sqlx.DB) Queue {
	return &postgresQueue{db: db}
}

func (q *postgresQueue) Enqueue(ctx context.Context, jobType string, payload interface{}) (*model.Job, error) {
	return q.EnqueueAt(ctx, jobType, payload, time.Now())
}

func (q *postgresQueue) EnqueueAt(ctx context.Context, jobType string, payload interface{}, runAt time.Time) (*model.Job, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal job payload: %w", err)
	}

	job := &model.Job{
		ID:        uuid.New(),
		JobType:   jobType,
		Payload:   raw,
		Status:    model.JobStatusPending,
		RunAt:     runAt,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}

	query := `
		INSERT INTO jobs (id, job_type, payload, status, retry_count, run_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err = q.db.ExecContext(ctx, query,
		job.ID, job.JobType, job.Payload, job.Status, job.RetryCount,
		job.RunAt, job.CreatedAt, job.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to enqueue %s job: %w", jobType, err)
	}
	return job, nil
}

// Dequeue claims up to limit due jobs of the given types, marking them
// processing. SKIP LOCKED keeps concurrent workers from double-claiming.
func (q *postgresQueue) Dequeue(ctx context.Context, jobTypes []string, limit int) ([]*model.Job, error) {
	query := `
		UPDATE jobs SET status = 'processing', updated_at = NOW()
		WHERE id IN (
			SELECT id FROM jobs
			WHERE status = 'pending'
			AND job_type = ANY($1)
			AND run_at <= NOW()
			ORDER BY run_at ASC
			FOR UPDATE SKIP LOCKED
			LIMIT $2
		)
		RETURNING id, job_type, payload, status, retry_count, last_error, run_at, created_at, updated_at
	`
	var jobs []*model.Job
	if err := q.db.SelectContext(ctx, &jobs, query, pq.Array(jobTypes), limit); err != nil {
		return nil, fmt.Errorf("failed to dequeue jobs: %w", err)
	}
	return jobs, nil
}

func (q *postgresQueue) Complete(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE jobs SET status = 'done', updated_at = NOW() WHERE id = $1`
	_, err := q.db.ExecContext(ctx, query, id)
	return err
}

// Retry returns the job to pending with an incremented retry count and
// a future run_at, making it invisible until the backoff elapses.
func (q *postgresQueue) Retry(ctx context.Context, job *model.Job, errMsg string, delay time.Duration) error {
	query := `
		UPDATE jobs
		SET status = 'pending', retry_count = retry_count + 1,
			last_error = $2, run_at = $3, updated_at = NOW()
		WHERE id = $1
	`
	runAt := time.Now().Add(delay)
	if _, err := q.db.ExecContext(ctx, query, job.ID, errMsg, runAt); err != nil {
		return fmt.Errorf("failed to reschedule job: %w", err)
	}
	job.RetryCount++
	job.RunAt = runAt
	return nil
}

// Drop terminates the job without a dead letter. Used for exhausted
// trigger jobs, where the rendered notification job carries the
// dead-letter context instead.
func (q *postgresQueue) Drop(ctx context.Context, job *model.Job, errMsg string) error {
	query := `UPDATE jobs SET status = 'done', last_error = $2, updated_at = NOW() WHERE id = $1`
	_, err := q.db.ExecContext(ctx, query, job.ID, errMsg)
	return err
}

// DeadLetter terminates the job and records it for manual remediation.
func (q *postgresQueue) DeadLetter(ctx context.Context, job *model.Job, errMsg string, logID *uuid.UUID) error {
	tx, err := q.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`UPDATE jobs SET status = 'dead', last_error = $2, updated_at = NOW() WHERE id = $1`,
		job.ID, errMsg,
	); err != nil {
		return fmt.Errorf("failed to mark job dead: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO dead_letters (id, notification_log_id, job_payload, error, resolved, created_at)
		VALUES ($1, $2, $3, $4, false, NOW())
	`, uuid.New(), logID, []byte(job.Payload), errMsg); err != nil {
		return fmt.Errorf("failed to insert dead letter: %w", err)
	}

	return tx.Commit()
}

func (q *postgresQueue) PendingCount(ctx context.Context) (int64, error) {
	var count int64
	err := q.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM jobs WHERE status = 'pending'`)
	return count, err
}

func (q *postgresQueue) PurgeDone(ctx context.Context, before time.Time) (int64, error) {
	result, err := q.db.ExecContext(ctx,
		`DELETE FROM jobs WHERE status = 'done' AND updated_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("failed to purge done jobs: %w", err)
	}
	return result.RowsAffected()
}
