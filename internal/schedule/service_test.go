package schedule

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nikiramandika/alera-sub000/internal/models"
	"github.com/nikiramandika/alera-sub000/internal/overlay"
)

type memReminderStore struct {
	mu   sync.Mutex
	defs map[string]models.ReminderDefinition
}

func newMemReminderStore() *memReminderStore {
	return &memReminderStore{defs: make(map[string]models.ReminderDefinition)}
}

func (s *memReminderStore) Create(_ context.Context, def *models.ReminderDefinition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.defs[def.ID] = *def
	return nil
}

func (s *memReminderStore) Update(_ context.Context, def *models.ReminderDefinition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.defs[def.ID]; !ok {
		return errors.New("reminder not found")
	}
	s.defs[def.ID] = *def
	return nil
}

func (s *memReminderStore) GetByID(_ context.Context, id string) (*models.ReminderDefinition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	def, ok := s.defs[id]
	if !ok || def.DeletedAt != nil {
		return nil, nil
	}
	d := def
	return &d, nil
}

func (s *memReminderStore) List(_ context.Context, kind *models.Kind) ([]*models.ReminderDefinition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.ReminderDefinition
	for _, def := range s.defs {
		if def.DeletedAt != nil {
			continue
		}
		if kind != nil && def.Kind != *kind {
			continue
		}
		d := def
		out = append(out, &d)
	}
	return out, nil
}

func (s *memReminderStore) SetActive(_ context.Context, id string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	def, ok := s.defs[id]
	if !ok {
		return errors.New("reminder not found")
	}
	def.IsActive = active
	s.defs[id] = def
	return nil
}

func (s *memReminderStore) SoftDelete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	def, ok := s.defs[id]
	if !ok {
		return errors.New("reminder not found")
	}
	now := time.Now()
	def.DeletedAt = &now
	s.defs[id] = def
	return nil
}

type memCompletionStore struct {
	mu   sync.Mutex
	recs []*models.CompletionRecord
	fail error
}

func (s *memCompletionStore) Record(_ context.Context, rec *models.CompletionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	s.recs = append(s.recs, rec)
	return nil
}

func (s *memCompletionStore) ListForDate(_ context.Context, date time.Time) ([]*models.CompletionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.CompletionRecord
	for _, rec := range s.recs {
		if models.SameDay(rec.ScheduledDate, date) {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (s *memCompletionStore) ListBySubject(_ context.Context, subjectID string, from, to time.Time) ([]*models.CompletionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.CompletionRecord
	for _, rec := range s.recs {
		if rec.SubjectID != subjectID {
			continue
		}
		if models.DateKey(rec.ScheduledDate) < models.DateKey(from) || models.DateKey(rec.ScheduledDate) > models.DateKey(to) {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

// recordingSync records the order of dispatcher calls so tests can assert
// the cancel-before-delete ordering.
type recordingSync struct {
	mu    sync.Mutex
	calls []string
}

func (r *recordingSync) SyncReminder(_ context.Context, def *models.ReminderDefinition) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, "sync:"+def.ID)
	return nil
}

func (r *recordingSync) RemoveNotifications(_ context.Context, subjectID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, "remove:"+subjectID)
	return nil
}

func (r *recordingSync) Notify() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, "notify")
}

func (r *recordingSync) log() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func newTestService() (*Service, *memReminderStore, *memCompletionStore, *recordingSync) {
	reminders := newMemReminderStore()
	completions := &memCompletionStore{}
	jobs := &recordingSync{}
	svc := NewService(reminders, completions, overlay.New(overlay.DefaultTTL), jobs)
	return svc, reminders, completions, jobs
}

func dailyDef(id string, times ...string) *models.ReminderDefinition {
	return &models.ReminderDefinition{
		ID:         id,
		Kind:       models.KindMedicine,
		Name:       "Aspirin",
		Frequency:  models.Frequency{Type: models.FrequencyDaily},
		TimesOfDay: times,
		StartDate:  time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		IsActive:   true,
	}
}

func TestCreateDefinitionValidatesAndSyncs(t *testing.T) {
	ctx := context.Background()
	svc, reminders, _, jobs := newTestService()

	def := dailyDef("", "08:00")
	def.StartDate = time.Time{}
	if err := svc.CreateDefinition(ctx, def); err != nil {
		t.Fatalf("create: %v", err)
	}
	if def.ID == "" {
		t.Fatal("create must assign an ID")
	}
	if def.StartDate.IsZero() {
		t.Fatal("create must default the start date")
	}
	if stored, _ := reminders.GetByID(ctx, def.ID); stored == nil {
		t.Fatal("definition not persisted")
	}
	if got := jobs.log(); len(got) == 0 || got[len(got)-1] != "sync:"+def.ID {
		t.Fatalf("create must sync jobs, calls: %v", got)
	}

	invalid := dailyDef("bad-1") // timed kind with no times
	if err := svc.CreateDefinition(ctx, invalid); !errors.Is(err, models.ErrDefinitionInvalid) {
		t.Fatalf("invalid definition: got %v, want ErrDefinitionInvalid", err)
	}
	if stored, _ := reminders.GetByID(ctx, "bad-1"); stored != nil {
		t.Fatal("invalid definition must not persist")
	}
}

func TestDeleteRemovesJobsBeforeSoftDelete(t *testing.T) {
	ctx := context.Background()
	svc, reminders, _, jobs := newTestService()

	def := dailyDef("med-1", "08:00")
	if err := svc.CreateDefinition(ctx, def); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := svc.DeleteDefinition(ctx, "med-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}

	calls := jobs.log()
	if len(calls) != 2 || calls[0] != "sync:med-1" || calls[1] != "remove:med-1" {
		t.Fatalf("unexpected call order: %v", calls)
	}
	if stored, _ := reminders.GetByID(ctx, "med-1"); stored != nil {
		t.Fatal("deleted definition must be hidden")
	}
}

func TestSetActiveResyncsJobs(t *testing.T) {
	ctx := context.Background()
	svc, reminders, _, jobs := newTestService()
	if err := svc.CreateDefinition(ctx, dailyDef("med-1", "08:00")); err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := svc.SetActive(ctx, "med-1", false); err != nil {
		t.Fatalf("pause: %v", err)
	}
	stored, _ := reminders.GetByID(ctx, "med-1")
	if stored == nil || stored.IsActive {
		t.Fatal("pause must persist")
	}
	calls := jobs.log()
	if calls[len(calls)-1] != "sync:med-1" {
		t.Fatalf("pause must re-derive jobs, calls: %v", calls)
	}
}

func TestCompleteOccurrenceIsImmediatelyVisible(t *testing.T) {
	ctx := context.Background()
	svc, _, completions, _ := newTestService()
	if err := svc.CreateDefinition(ctx, dailyDef("med-1", "08:00")); err != nil {
		t.Fatalf("create: %v", err)
	}

	date := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC) }

	sched, err := svc.OccurrencesForDate(ctx, date)
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if len(sched.Overdue) != 1 {
		t.Fatalf("before completion: %d overdue, want 1", len(sched.Overdue))
	}

	if err := svc.CompleteOccurrence(ctx, "med-1", date, "08:00", models.CompletionTaken); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if len(completions.recs) != 1 {
		t.Fatal("completion record not written")
	}

	sched, err = svc.OccurrencesForDate(ctx, date)
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if len(sched.Completed) != 1 || len(sched.Overdue) != 0 {
		t.Fatalf("after completion: completed=%d overdue=%d", len(sched.Completed), len(sched.Overdue))
	}
}

func TestCompleteOccurrenceOverlayCoversWriteLatency(t *testing.T) {
	ctx := context.Background()
	svc, _, completions, _ := newTestService()
	if err := svc.CreateDefinition(ctx, dailyDef("med-1", "08:00")); err != nil {
		t.Fatalf("create: %v", err)
	}
	completions.fail = errors.New("storage down")

	date := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC) }

	if err := svc.CompleteOccurrence(ctx, "med-1", date, "08:00", models.CompletionTaken); err == nil {
		t.Fatal("failed write must surface an error")
	}

	// The optimistic marker still shows completed for its TTL even though
	// the write failed.
	sched, err := svc.OccurrencesForDate(ctx, date)
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if len(sched.Completed) != 1 {
		t.Fatalf("overlay must carry the completion, completed=%d", len(sched.Completed))
	}
}

func TestResyncJobsCoversEveryLiveDefinition(t *testing.T) {
	ctx := context.Background()
	svc, _, _, jobs := newTestService()
	if err := svc.CreateDefinition(ctx, dailyDef("med-1", "08:00")); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := svc.CreateDefinition(ctx, dailyDef("med-2", "09:00")); err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := svc.ResyncJobs(ctx); err != nil {
		t.Fatalf("resync: %v", err)
	}

	calls := jobs.log()
	var synced1, synced2 bool
	for _, c := range calls[2:] { // skip the two create-time syncs
		switch c {
		case "sync:med-1":
			synced1 = true
		case "sync:med-2":
			synced2 = true
		}
	}
	if !synced1 || !synced2 {
		t.Fatalf("resync must cover every definition, calls: %v", calls)
	}
	if calls[len(calls)-1] != "notify" {
		t.Fatalf("resync must wake the dispatcher last, calls: %v", calls)
	}
}

func TestCompletionHistoryRange(t *testing.T) {
	ctx := context.Background()
	svc, _, _, _ := newTestService()
	if err := svc.CreateDefinition(ctx, dailyDef("med-1", "08:00")); err != nil {
		t.Fatalf("create: %v", err)
	}

	for _, day := range []int{1, 5, 9} {
		date := time.Date(2024, 3, day, 0, 0, 0, 0, time.UTC)
		if err := svc.CompleteOccurrence(ctx, "med-1", date, "08:00", models.CompletionTaken); err != nil {
			t.Fatalf("complete: %v", err)
		}
	}

	from := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	recs, err := svc.CompletionHistory(ctx, "med-1", from, to)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("history returned %d records, want 2 inside the range", len(recs))
	}
}

func TestEventsPublishedOnChange(t *testing.T) {
	ctx := context.Background()
	svc, _, _, _ := newTestService()
	if err := svc.CreateDefinition(ctx, dailyDef("med-1", "08:00")); err != nil {
		t.Fatalf("create: %v", err)
	}

	select {
	case ev := <-svc.Events():
		if ev.SubjectID != "med-1" {
			t.Fatalf("unexpected event %+v", ev)
		}
	default:
		t.Fatal("create must publish a change event")
	}
}
