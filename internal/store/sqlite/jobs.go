package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/nextlevelbuilder/goswarm/internal/store"
)

// SaveJob inserts or replaces a routine job.
func (d *DB) SaveJob(ctx context.Context, job store.RoutineJob) error {
	if job.ID == "" {
		job.ID = store.GenNewID()
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}
	schedule := marshalJSON(job.Schedule)
	payload := marshalJSON(job.Payload)
	if schedule == nil || payload == nil {
		return fmt.Errorf("save job: empty schedule or payload")
	}
	_, err := d.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO routine_jobs (id, name, schedule, payload, created_at, last_run_at, last_result, last_error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID, job.Name, *schedule, *payload, job.CreatedAt.UnixMilli(),
		unixPtr(job.LastRunAt), nullable(job.LastResult), nullable(job.LastError),
	)
	if err != nil {
		return fmt.Errorf("save job: %w", err)
	}
	return nil
}

// GetJob fetches one routine job by id.
func (d *DB) GetJob(ctx context.Context, id string) (store.RoutineJob, error) {
	row := d.db.QueryRowContext(ctx, jobSelect+` WHERE id = ?`, id)
	job, err := d.scanJob(row)
	if err == sql.ErrNoRows {
		return store.RoutineJob{}, store.ErrNotFound
	}
	if err != nil {
		return store.RoutineJob{}, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// ListJobs returns all routine jobs oldest first.
func (d *DB) ListJobs(ctx context.Context) ([]store.RoutineJob, error) {
	rows, err := d.db.QueryContext(ctx, jobSelect+` ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []store.RoutineJob
	for rows.Next() {
		job, err := d.scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// DeleteJob removes a routine job.
func (d *DB) DeleteJob(ctx context.Context, id string) error {
	_, err := d.db.ExecContext(ctx, `DELETE FROM routine_jobs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete job: %w", err)
	}
	return nil
}

const jobSelect = `SELECT id, name, schedule, payload, created_at, last_run_at, last_result, last_error FROM routine_jobs`

func (d *DB) scanJob(row rowScanner) (store.RoutineJob, error) {
	var job store.RoutineJob
	var schedule, payload string
	var createdAt int64
	var lastRunAt sql.NullInt64
	var lastResult, lastError sql.NullString
	if err := row.Scan(&job.ID, &job.Name, &schedule, &payload, &createdAt,
		&lastRunAt, &lastResult, &lastError); err != nil {
		return store.RoutineJob{}, err
	}
	job.CreatedAt = time.UnixMilli(createdAt)
	job.LastRunAt = timePtr(lastRunAt)
	if lastResult.Valid {
		job.LastResult = lastResult.String
	}
	if lastError.Valid {
		job.LastError = lastError.String
	}
	d.decodeJSON(sql.NullString{String: schedule, Valid: true}, &job.Schedule, "routine_jobs", job.ID)
	d.decodeJSON(sql.NullString{String: payload, Valid: true}, &job.Payload, "routine_jobs", job.ID)
	return job, nil
}
