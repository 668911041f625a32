package repository

import (
	"context"
	"time"

	"github.com/nikiramandika/alera-sub000/internal/database"
	"github.com/nikiramandika/alera-sub000/internal/models"
)

// JobRepository is the durable notification job store. Job identity is the
// deterministic job_id, so Upsert replaces rather than duplicates.
type JobRepository struct {
	db *database.DB
}

func NewJobRepository(db *database.DB) *JobRepository {
	return &JobRepository{db: db}
}

func (r *JobRepository) Upsert(ctx context.Context, job *models.NotificationJob) error {
	return r.db.Pool.QueryRow(ctx,
		`INSERT INTO notification_jobs (job_id, subject_id, kind, fire_time, title, body, last_fired_date, native_handle)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (job_id) DO UPDATE SET
		   subject_id = EXCLUDED.subject_id,
		   kind = EXCLUDED.kind,
		   fire_time = EXCLUDED.fire_time,
		   title = EXCLUDED.title,
		   body = EXCLUDED.body,
		   last_fired_date = EXCLUDED.last_fired_date,
		   native_handle = EXCLUDED.native_handle
		 RETURNING created_at`,
		job.JobID, job.SubjectID, job.Kind, job.Time, job.Title, job.Body,
		job.LastFiredDate, job.NativeHandle,
	).Scan(&job.CreatedAt)
}

func (r *JobRepository) List(ctx context.Context) ([]*models.NotificationJob, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT job_id, subject_id, kind, fire_time, title, body, last_fired_date, native_handle, created_at
		 FROM notification_jobs ORDER BY fire_time ASC, created_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []*models.NotificationJob
	for rows.Next() {
		job := &models.NotificationJob{}
		if err := rows.Scan(&job.JobID, &job.SubjectID, &job.Kind, &job.Time, &job.Title,
			&job.Body, &job.LastFiredDate, &job.NativeHandle, &job.CreatedAt); err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// RemoveBySubject deletes every job for one subject and returns the removed
// rows so the caller can release any armed native handles.
func (r *JobRepository) RemoveBySubject(ctx context.Context, subjectID string) ([]*models.NotificationJob, error) {
	rows, err := r.db.Pool.Query(ctx,
		`DELETE FROM notification_jobs WHERE subject_id = $1
		 RETURNING job_id, subject_id, kind, fire_time, title, body, last_fired_date, native_handle, created_at`,
		subjectID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []*models.NotificationJob
	for rows.Next() {
		job := &models.NotificationJob{}
		if err := rows.Scan(&job.JobID, &job.SubjectID, &job.Kind, &job.Time, &job.Title,
			&job.Body, &job.LastFiredDate, &job.NativeHandle, &job.CreatedAt); err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// MarkFired advances last_fired_date to day if and only if the job has not
// already fired that day. The conditional update is the atomic
// check-then-set that keeps native and sweep firing idempotent per day.
func (r *JobRepository) MarkFired(ctx context.Context, jobID string, day time.Time) (bool, error) {
	tag, err := r.db.Pool.Exec(ctx,
		`UPDATE notification_jobs SET last_fired_date = $2
		 WHERE job_id = $1 AND (last_fired_date IS NULL OR last_fired_date < $2)`,
		jobID, models.DayOf(day),
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// SetNativeHandle records (or clears, with nil) the armed alarm handle.
func (r *JobRepository) SetNativeHandle(ctx context.Context, jobID string, handle *string) error {
	_, err := r.db.Pool.Exec(ctx,
		`UPDATE notification_jobs SET native_handle = $2 WHERE job_id = $1`,
		jobID, handle,
	)
	return err
}
