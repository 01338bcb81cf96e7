package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/stocksense/stocksense/internal/database"
	"github.com/stocksense/stocksense/internal/models"
)

// JobRepository handles batch job data access. Every status change is a
// guarded UPDATE so that illegal transitions affect no rows.
type JobRepository struct {
	base
}

// NewJobRepository creates a new job repository.
func NewJobRepository(db *database.DB) *JobRepository {
	return &JobRepository{base{db: db}}
}

var jobColumns = []string{
	"id", "scope", "trigger_source", "status", "created_at", "started_at",
	"completed_at", "items_processed", "items_succeeded", "items_failed",
	"error_summary",
}

// Create inserts a new pending job.
func (r *JobRepository) Create(ctx context.Context, j *models.BatchJob) error {
	_, err := r.exec(ctx, nil, r.builder().
		Insert("batch_jobs").
		Columns(jobColumns...).
		Values(
			j.ID,
			j.Scope,
			string(j.Trigger),
			string(j.Status),
			formatTime(j.CreatedAt),
			nullableTime(j.StartedAt),
			nullableTime(j.CompletedAt),
			j.ItemsProcessed,
			j.ItemsSucceeded,
			j.ItemsFailed,
			nullableStringPtr(j.ErrorSummary),
		))
	if err != nil {
		return fmt.Errorf("inserting job: %w", err)
	}
	return nil
}

// GetByID retrieves a job by ID.
func (r *JobRepository) GetByID(ctx context.Context, id string) (*models.BatchJob, error) {
	row, err := r.queryRow(ctx, nil, r.builder().
		Select(jobColumns...).
		From("batch_jobs").
		Where(sq.Eq{"id": id}))
	if err != nil {
		return nil, err
	}

	j, err := scanJob(row)
	if err != nil {
		return nil, notFound(err, "batch job", id)
	}
	return j, nil
}

// List returns jobs matching filter, newest first.
func (r *JobRepository) List(ctx context.Context, filter models.JobFilter) ([]*models.BatchJob, error) {
	q := r.builder().
		Select(jobColumns...).
		From("batch_jobs").
		OrderBy("created_at DESC", "id DESC")

	if filter.Status != nil {
		q = q.Where(sq.Eq{"status": string(*filter.Status)})
	}
	if filter.Scope != "" {
		q = q.Where(sq.Eq{"scope": filter.Scope})
	}
	if filter.Limit > 0 {
		q = q.Limit(uint64(filter.Limit))
	}

	rows, err := r.query(ctx, nil, q)
	if err != nil {
		return nil, fmt.Errorf("querying jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*models.BatchJob
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning job: %w", err)
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

// RunningForScope returns the running job for scope, or nil.
func (r *JobRepository) RunningForScope(ctx context.Context, scope string) (*models.BatchJob, error) {
	row, err := r.queryRow(ctx, nil, r.builder().
		Select(jobColumns...).
		From("batch_jobs").
		Where(sq.Eq{"scope": scope, "status": string(models.JobStatusRunning)}).
		Limit(1))
	if err != nil {
		return nil, err
	}

	j, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return j, nil
}

// MarkRunning moves a pending job to running. It reports false when the
// job is not pending or another job of the same scope is already running.
func (r *JobRepository) MarkRunning(ctx context.Context, id, scope string, at time.Time) (bool, error) {
	running := r.builder().
		Select("1").
		From("batch_jobs").
		Where(sq.Eq{"scope": scope, "status": string(models.JobStatusRunning)})

	n, err := r.exec(ctx, nil, r.builder().
		Update("batch_jobs").
		Set("status", string(models.JobStatusRunning)).
		Set("started_at", formatTime(at)).
		Where(sq.Eq{"id": id, "status": string(models.JobStatusPending)}).
		Where(sq.Expr("NOT EXISTS (?)", running)))
	if err != nil {
		return false, fmt.Errorf("marking job running: %w", err)
	}
	return n == 1, nil
}

// Complete records the final tallies of a running job. It reports false
// when the job had already left the running state.
func (r *JobRepository) Complete(ctx context.Context, j *models.BatchJob) (bool, error) {
	n, err := r.exec(ctx, nil, r.builder().
		Update("batch_jobs").
		Set("status", string(j.Status)).
		Set("completed_at", nullableTime(j.CompletedAt)).
		Set("items_processed", j.ItemsProcessed).
		Set("items_succeeded", j.ItemsSucceeded).
		Set("items_failed", j.ItemsFailed).
		Set("error_summary", nullableStringPtr(j.ErrorSummary)).
		Where(sq.Eq{"id": j.ID, "status": string(models.JobStatusRunning)}))
	if err != nil {
		return false, fmt.Errorf("completing job: %w", err)
	}
	return n == 1, nil
}

// Fail moves a job in one of the from states to failed with summary.
func (r *JobRepository) Fail(ctx context.Context, id, summary string, at time.Time, from ...models.JobStatus) (bool, error) {
	statuses := make([]string, len(from))
	for i, s := range from {
		statuses[i] = string(s)
	}

	n, err := r.exec(ctx, nil, r.builder().
		Update("batch_jobs").
		Set("status", string(models.JobStatusFailed)).
		Set("completed_at", formatTime(at)).
		Set("error_summary", summary).
		Where(sq.Eq{"id": id, "status": statuses}))
	if err != nil {
		return false, fmt.Errorf("failing job: %w", err)
	}
	return n == 1, nil
}

// FailRunning fails every job still marked running and returns how many
// were changed. Used at startup to clear jobs orphaned by a restart.
func (r *JobRepository) FailRunning(ctx context.Context, summary string, at time.Time) (int64, error) {
	n, err := r.exec(ctx, nil, r.builder().
		Update("batch_jobs").
		Set("status", string(models.JobStatusFailed)).
		Set("completed_at", formatTime(at)).
		Set("error_summary", summary).
		Where(sq.Eq{"status": string(models.JobStatusRunning)}))
	if err != nil {
		return 0, fmt.Errorf("failing running jobs: %w", err)
	}
	return n, nil
}

func scanJob(s scanner) (*models.BatchJob, error) {
	var (
		j           models.BatchJob
		trigger     string
		status      string
		createdAt   string
		startedAt   sql.NullString
		completedAt sql.NullString
		summary     sql.NullString
	)

	err := s.Scan(
		&j.ID,
		&j.Scope,
		&trigger,
		&status,
		&createdAt,
		&startedAt,
		&completedAt,
		&j.ItemsProcessed,
		&j.ItemsSucceeded,
		&j.ItemsFailed,
		&summary,
	)
	if err != nil {
		return nil, err
	}

	j.Trigger = models.JobTrigger(trigger)
	j.Status = models.JobStatus(status)
	j.CreatedAt = parseTime(createdAt)
	j.StartedAt = timePtr(startedAt)
	j.CompletedAt = timePtr(completedAt)
	j.ErrorSummary = stringPtr(summary)
	return &j, nil
}
