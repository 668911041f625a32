// Package schedule is the facade the presentation layer talks to: the
// classified day view, completion recording with the optimistic overlay,
// and definition lifecycle with job re-derivation ordered correctly.
package schedule

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/nikiramandika/alera-sub000/internal/models"
	"github.com/nikiramandika/alera-sub000/internal/occurrence"
	"github.com/nikiramandika/alera-sub000/internal/overlay"
)

// ReminderStore is the definition store consumed by the service.
type ReminderStore interface {
	Create(ctx context.Context, def *models.ReminderDefinition) error
	Update(ctx context.Context, def *models.ReminderDefinition) error
	GetByID(ctx context.Context, id string) (*models.ReminderDefinition, error)
	List(ctx context.Context, kind *models.Kind) ([]*models.ReminderDefinition, error)
	SetActive(ctx context.Context, id string, active bool) error
	SoftDelete(ctx context.Context, id string) error
}

// CompletionStore is the append-only completion history store.
type CompletionStore interface {
	Record(ctx context.Context, rec *models.CompletionRecord) error
	ListForDate(ctx context.Context, date time.Time) ([]*models.CompletionRecord, error)
	ListBySubject(ctx context.Context, subjectID string, from, to time.Time) ([]*models.CompletionRecord, error)
}

// JobSync is the dispatcher surface the service drives on definition changes.
type JobSync interface {
	SyncReminder(ctx context.Context, def *models.ReminderDefinition) error
	RemoveNotifications(ctx context.Context, subjectID string) error
	Notify()
}

// Event tells subscribers that the schedule view may have changed.
type Event struct {
	SubjectID string
	Date      time.Time
}

type Service struct {
	reminders   ReminderStore
	completions CompletionStore
	overlay     *overlay.Overlay
	jobs        JobSync
	now         func() time.Time
	events      chan Event
}

func NewService(reminders ReminderStore, completions CompletionStore, ov *overlay.Overlay, jobs JobSync) *Service {
	return &Service{
		reminders:   reminders,
		completions: completions,
		overlay:     ov,
		jobs:        jobs,
		now:         time.Now,
		events:      make(chan Event, 16),
	}
}

// OccurrencesForDate builds the classified, bucketed schedule for one day.
func (s *Service) OccurrencesForDate(ctx context.Context, date time.Time) (*models.DaySchedule, error) {
	defs, err := s.reminders.List(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("list reminders: %w", err)
	}
	completions, err := s.completions.ListForDate(ctx, date)
	if err != nil {
		return nil, fmt.Errorf("list completions: %w", err)
	}
	occs := occurrence.Generate(defs, date)
	return occurrence.BuildDaySchedule(date, occs, s.now(), completions, s.overlay), nil
}

// MarkCompletedOptimistically sets the short-lived local completion marker
// so the very next classification reports completed, ahead of the
// authoritative write.
func (s *Service) MarkCompletedOptimistically(key string) {
	s.overlay.Mark(key)
}

// CompleteOccurrence marks the overlay first, then writes the authoritative
// record. The overlay entry expires on its own if the write fails silently.
func (s *Service) CompleteOccurrence(ctx context.Context, subjectID string, date time.Time, clock string, status models.CompletionStatus) error {
	s.overlay.Mark(models.OverlayKey(subjectID, clock))
	rec := &models.CompletionRecord{
		SubjectID:     subjectID,
		ScheduledDate: models.DayOf(date),
		ScheduledTime: clock,
		Status:        status,
	}
	if err := s.completions.Record(ctx, rec); err != nil {
		return fmt.Errorf("record completion: %w", err)
	}
	s.publish(Event{SubjectID: subjectID, Date: models.DayOf(date)})
	return nil
}

// CreateDefinition validates, persists and arms a new definition.
func (s *Service) CreateDefinition(ctx context.Context, def *models.ReminderDefinition) error {
	if def.ID == "" {
		def.ID = uuid.NewString()
	}
	if def.StartDate.IsZero() {
		def.StartDate = models.DayOf(s.now())
	}
	if err := def.Validate(); err != nil {
		return err
	}
	if err := s.reminders.Create(ctx, def); err != nil {
		return fmt.Errorf("create reminder: %w", err)
	}
	if err := s.jobs.SyncReminder(ctx, def); err != nil {
		return fmt.Errorf("sync jobs: %w", err)
	}
	s.publish(Event{SubjectID: def.ID})
	return nil
}

// UpdateDefinition persists an edit and re-derives the job set
// (remove-then-recreate), so a changed time list never leaves a stale job.
func (s *Service) UpdateDefinition(ctx context.Context, def *models.ReminderDefinition) error {
	if err := def.Validate(); err != nil {
		return err
	}
	if err := s.reminders.Update(ctx, def); err != nil {
		return fmt.Errorf("update reminder: %w", err)
	}
	if err := s.jobs.SyncReminder(ctx, def); err != nil {
		return fmt.Errorf("sync jobs: %w", err)
	}
	s.publish(Event{SubjectID: def.ID})
	return nil
}

// SetActive pauses or resumes a definition. Pausing cancels its jobs;
// resuming re-derives them.
func (s *Service) SetActive(ctx context.Context, id string, active bool) error {
	if err := s.reminders.SetActive(ctx, id, active); err != nil {
		return fmt.Errorf("set active: %w", err)
	}
	def, err := s.reminders.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if def == nil {
		return nil
	}
	if err := s.jobs.SyncReminder(ctx, def); err != nil {
		return fmt.Errorf("sync jobs: %w", err)
	}
	s.publish(Event{SubjectID: id})
	return nil
}

// DeleteDefinition cancels the subject's jobs before soft-deleting, so jobs
// never reference a deleted definition.
func (s *Service) DeleteDefinition(ctx context.Context, id string) error {
	if err := s.jobs.RemoveNotifications(ctx, id); err != nil {
		return err
	}
	if err := s.reminders.SoftDelete(ctx, id); err != nil {
		return fmt.Errorf("delete reminder: %w", err)
	}
	s.publish(Event{SubjectID: id})
	return nil
}

// CompletionHistory returns a subject's completions inside an inclusive day
// range, oldest first.
func (s *Service) CompletionHistory(ctx context.Context, subjectID string, from, to time.Time) ([]*models.CompletionRecord, error) {
	return s.completions.ListBySubject(ctx, subjectID, from, to)
}

// GetDefinition returns one live definition, or nil.
func (s *Service) GetDefinition(ctx context.Context, id string) (*models.ReminderDefinition, error) {
	return s.reminders.GetByID(ctx, id)
}

// ListDefinitions returns live definitions, optionally filtered by kind.
func (s *Service) ListDefinitions(ctx context.Context, kind *models.Kind) ([]*models.ReminderDefinition, error) {
	return s.reminders.List(ctx, kind)
}

// ResyncJobs re-derives the job set for every live definition. Run at boot
// to catch definition changes that happened while the process was down.
func (s *Service) ResyncJobs(ctx context.Context) error {
	defs, err := s.reminders.List(ctx, nil)
	if err != nil {
		return fmt.Errorf("list reminders: %w", err)
	}
	for _, def := range defs {
		if err := s.jobs.SyncReminder(ctx, def); err != nil {
			// Isolated per definition; the sweep still covers its jobs.
			log.Printf("Failed to sync jobs for reminder %s: %v", def.ID, err)
		}
	}
	s.jobs.Notify()
	return nil
}

// Events is the change stream for presentation refresh. Slow consumers
// drop events rather than blocking writers.
func (s *Service) Events() <-chan Event {
	return s.events
}

func (s *Service) publish(ev Event) {
	select {
	case s.events <- ev:
	default:
	}
}
