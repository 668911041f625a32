package repository

import (
	"context"
	"time"

	"github.com/nikiramandika/alera-sub000/internal/database"
	"github.com/nikiramandika/alera-sub000/internal/models"
)

// CompletionRepository is the append-only completion history store.
type CompletionRepository struct {
	db *database.DB
}

func NewCompletionRepository(db *database.DB) *CompletionRepository {
	return &CompletionRepository{db: db}
}

func (r *CompletionRepository) Record(ctx context.Context, rec *models.CompletionRecord) error {
	return r.db.Pool.QueryRow(ctx,
		`INSERT INTO completions (subject_id, scheduled_date, scheduled_time, status)
		 VALUES ($1, $2, $3, $4)
		 RETURNING completion_id, recorded_at`,
		rec.SubjectID, rec.ScheduledDate, rec.ScheduledTime, rec.Status,
	).Scan(&rec.RecordID, &rec.RecordedAt)
}

// ListForDate returns every completion recorded against one calendar day.
func (r *CompletionRepository) ListForDate(ctx context.Context, date time.Time) ([]*models.CompletionRecord, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT completion_id, subject_id, scheduled_date, scheduled_time, status, recorded_at
		 FROM completions WHERE scheduled_date = $1
		 ORDER BY recorded_at ASC`,
		models.DayOf(date),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanCompletions(rows)
}

// ListBySubject returns a subject's completions inside an inclusive day range.
func (r *CompletionRepository) ListBySubject(ctx context.Context, subjectID string, from, to time.Time) ([]*models.CompletionRecord, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT completion_id, subject_id, scheduled_date, scheduled_time, status, recorded_at
		 FROM completions WHERE subject_id = $1 AND scheduled_date >= $2 AND scheduled_date <= $3
		 ORDER BY scheduled_date ASC, recorded_at ASC`,
		subjectID, models.DayOf(from), models.DayOf(to),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanCompletions(rows)
}

func scanCompletions(rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}) ([]*models.CompletionRecord, error) {
	var recs []*models.CompletionRecord
	for rows.Next() {
		rec := &models.CompletionRecord{}
		if err := rows.Scan(&rec.RecordID, &rec.SubjectID, &rec.ScheduledDate,
			&rec.ScheduledTime, &rec.Status, &rec.RecordedAt); err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}
