package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/nikiramandika/alera-sub000/internal/database"
	"github.com/nikiramandika/alera-sub000/internal/models"
	"github.com/nikiramandika/alera-sub000/internal/rrule"
)

// ReminderRepository persists reminder definitions. The frequency variant is
// stored as an RFC 5545 RRULE string; definitions are soft-deleted so
// completion history keeps a valid subject to point at.
type ReminderRepository struct {
	db *database.DB
}

func NewReminderRepository(db *database.DB) *ReminderRepository {
	return &ReminderRepository{db: db}
}

const reminderColumns = `reminder_id, kind, name, dose_label, recurrence_rule, times_of_day,
	 start_date, end_date, is_active, deleted_at, created_at, updated_at`

func (r *ReminderRepository) Create(ctx context.Context, def *models.ReminderDefinition) error {
	rule, err := rrule.FromFrequency(def.Frequency)
	if err != nil {
		return fmt.Errorf("serialize frequency: %w", err)
	}
	return r.db.Pool.QueryRow(ctx,
		`INSERT INTO reminders (reminder_id, kind, name, dose_label, recurrence_rule, times_of_day, start_date, end_date, is_active)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING created_at, updated_at`,
		def.ID, def.Kind, def.Name, def.DoseLabel, rule, def.TimesOfDay,
		def.StartDate, def.EndDate, def.IsActive,
	).Scan(&def.CreatedAt, &def.UpdatedAt)
}

func (r *ReminderRepository) Update(ctx context.Context, def *models.ReminderDefinition) error {
	rule, err := rrule.FromFrequency(def.Frequency)
	if err != nil {
		return fmt.Errorf("serialize frequency: %w", err)
	}
	_, err = r.db.Pool.Exec(ctx,
		`UPDATE reminders SET kind = $1, name = $2, dose_label = $3, recurrence_rule = $4, times_of_day = $5,
		 start_date = $6, end_date = $7, is_active = $8, updated_at = NOW()
		 WHERE reminder_id = $9 AND deleted_at IS NULL`,
		def.Kind, def.Name, def.DoseLabel, rule, def.TimesOfDay,
		def.StartDate, def.EndDate, def.IsActive, def.ID,
	)
	return err
}

// GetByID returns nil without error when no live definition matches.
func (r *ReminderRepository) GetByID(ctx context.Context, id string) (*models.ReminderDefinition, error) {
	row := r.db.Pool.QueryRow(ctx,
		`SELECT `+reminderColumns+` FROM reminders WHERE reminder_id = $1 AND deleted_at IS NULL`, id)
	def, err := scanReminder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return def, err
}

// List returns live definitions, optionally filtered by kind, in creation order.
func (r *ReminderRepository) List(ctx context.Context, kind *models.Kind) ([]*models.ReminderDefinition, error) {
	query := `SELECT ` + reminderColumns + ` FROM reminders WHERE deleted_at IS NULL`
	args := []any{}
	if kind != nil {
		query += ` AND kind = $1`
		args = append(args, *kind)
	}
	query += ` ORDER BY created_at ASC`

	rows, err := r.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var defs []*models.ReminderDefinition
	for rows.Next() {
		def, err := scanReminder(rows)
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	return defs, rows.Err()
}

func (r *ReminderRepository) SetActive(ctx context.Context, id string, active bool) error {
	_, err := r.db.Pool.Exec(ctx,
		`UPDATE reminders SET is_active = $1, updated_at = NOW() WHERE reminder_id = $2 AND deleted_at IS NULL`,
		active, id,
	)
	return err
}

// SoftDelete marks a definition deleted. Callers must cancel the subject's
// notification jobs first so no job ever references a deleted definition.
func (r *ReminderRepository) SoftDelete(ctx context.Context, id string) error {
	_, err := r.db.Pool.Exec(ctx,
		`UPDATE reminders SET deleted_at = NOW(), updated_at = NOW() WHERE reminder_id = $1 AND deleted_at IS NULL`,
		id,
	)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReminder(row rowScanner) (*models.ReminderDefinition, error) {
	def := &models.ReminderDefinition{}
	var rule string
	var endDate *time.Time
	if err := row.Scan(&def.ID, &def.Kind, &def.Name, &def.DoseLabel, &rule, &def.TimesOfDay,
		&def.StartDate, &endDate, &def.IsActive, &def.DeletedAt, &def.CreatedAt, &def.UpdatedAt); err != nil {
		return nil, err
	}
	def.EndDate = endDate
	freq, err := rrule.ToFrequency(rule)
	if err != nil {
		return nil, fmt.Errorf("reminder %s: %w", def.ID, err)
	}
	def.Frequency = freq
	return def, nil
}
