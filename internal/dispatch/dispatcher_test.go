package dispatch

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/nikiramandika/alera-sub000/internal/models"
	"github.com/nikiramandika/alera-sub000/internal/notify"
)

// memJobStore keeps jobs in a mutex-guarded map. List hands out copies so
// the conditional MarkFired guard is exercised the same way the SQL store
// exercises it.
type memJobStore struct {
	mu   sync.Mutex
	jobs map[string]models.NotificationJob
}

func newMemJobStore() *memJobStore {
	return &memJobStore{jobs: make(map[string]models.NotificationJob)}
}

func (s *memJobStore) Upsert(_ context.Context, job *models.NotificationJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := *job
	if prev, ok := s.jobs[job.JobID]; ok {
		stored.LastFiredDate = prev.LastFiredDate
		stored.CreatedAt = prev.CreatedAt
	}
	s.jobs[job.JobID] = stored
	return nil
}

func (s *memJobStore) List(_ context.Context) ([]*models.NotificationJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.NotificationJob, 0, len(s.jobs))
	for _, job := range s.jobs {
		j := job
		out = append(out, &j)
	}
	return out, nil
}

func (s *memJobStore) RemoveBySubject(_ context.Context, subjectID string) ([]*models.NotificationJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var removed []*models.NotificationJob
	for id, job := range s.jobs {
		if job.SubjectID == subjectID {
			j := job
			removed = append(removed, &j)
			delete(s.jobs, id)
		}
	}
	return removed, nil
}

func (s *memJobStore) MarkFired(_ context.Context, jobID string, day time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return false, nil
	}
	if job.LastFiredDate != nil && models.DateKey(*job.LastFiredDate) >= models.DateKey(day) {
		return false, nil
	}
	d := models.DayOf(day)
	job.LastFiredDate = &d
	s.jobs[jobID] = job
	return true, nil
}

func (s *memJobStore) SetNativeHandle(_ context.Context, jobID string, handle *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return nil
	}
	job.NativeHandle = handle
	s.jobs[jobID] = job
	return nil
}

func (s *memJobStore) get(jobID string) (models.NotificationJob, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	return job, ok
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

// fakeAlarms records arm and cancel calls without starting timers.
type fakeAlarms struct {
	mu        sync.Mutex
	fail      bool
	seq       int
	armed     []string          // jobIDs in arming order
	cancelled []string          // handles in cancel order
	handles   map[string]string // handle -> jobID
}

func newFakeAlarms() *fakeAlarms {
	return &fakeAlarms{handles: make(map[string]string)}
}

func (a *fakeAlarms) ArmOneShot(_ time.Time, jobID string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.fail {
		return "", ErrAlarmUnavailable
	}
	a.seq++
	handle := "alarm-" + strconv.Itoa(a.seq)
	a.armed = append(a.armed, jobID)
	a.handles[handle] = jobID
	return handle, nil
}

func (a *fakeAlarms) Cancel(handle string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cancelled = append(a.cancelled, handle)
	delete(a.handles, handle)
	return nil
}

func (a *fakeAlarms) armCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.armed)
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []notify.Notification
}

func (n *fakeNotifier) Send(_ context.Context, notification notify.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, notification)
	return nil
}

func (n *fakeNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent)
}

func testDef(times ...string) *models.ReminderDefinition {
	return &models.ReminderDefinition{
		ID:         "med-1",
		Kind:       models.KindMedicine,
		Name:       "Aspirin",
		Frequency:  models.Frequency{Type: models.FrequencyDaily},
		TimesOfDay: times,
		StartDate:  time.Date(2024, 1, 1, 0, 0, 0, 0, time.Local),
		IsActive:   true,
	}
}

func newTestDispatcher(t *testing.T) (*Dispatcher, *memJobStore, *fakeAlarms, *fakeNotifier, *fakeClock) {
	t.Helper()
	store := newMemJobStore()
	alarms := newFakeAlarms()
	notifier := &fakeNotifier{}
	clock := &fakeClock{t: time.Date(2024, 3, 10, 7, 0, 0, 0, time.Local)}
	d := New(store, alarms, notifier, clock, DefaultConfig())
	return d, store, alarms, notifier, clock
}

func TestSweepFiresOnceTriggerTimePassed(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name     string
		now      time.Time
		wantFire bool
	}{
		{"before the trigger", time.Date(2024, 3, 10, 7, 59, 0, 0, time.Local), false},
		{"exactly at the trigger", time.Date(2024, 3, 10, 8, 0, 0, 0, time.Local), true},
		{"shortly after", time.Date(2024, 3, 10, 8, 1, 30, 0, time.Local), true},
		{"hours late still delivers", time.Date(2024, 3, 10, 14, 0, 0, 0, time.Local), true},
		{"end of day still delivers", time.Date(2024, 3, 10, 23, 59, 0, 0, time.Local), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, _, _, notifier, clock := newTestDispatcher(t)
			if err := d.SyncReminder(ctx, testDef("08:00")); err != nil {
				t.Fatalf("sync: %v", err)
			}
			clock.set(tt.now)
			d.sweep(ctx)
			if fired := notifier.count() > 0; fired != tt.wantFire {
				t.Fatalf("at %s fired=%v, want %v", tt.now.Format("15:04:05"), fired, tt.wantFire)
			}
		})
	}
}

func TestSweepFireRearmsForNextDay(t *testing.T) {
	ctx := context.Background()
	d, store, alarms, notifier, clock := newTestDispatcher(t)
	if err := d.SyncReminder(ctx, testDef("08:00")); err != nil {
		t.Fatalf("sync: %v", err)
	}
	before := alarms.armCount()

	// The armed native alarm never delivers; the sweep picks the job up.
	clock.set(time.Date(2024, 3, 10, 8, 1, 0, 0, time.Local))
	d.sweep(ctx)
	if notifier.count() != 1 {
		t.Fatal("sweep must deliver the dropped alarm's job")
	}
	if alarms.armCount() != before+1 {
		t.Fatal("a sweep fire must re-arm the job for the next day")
	}
	jobID := models.JobID(models.KindMedicine, "med-1", "08:00")
	job, ok := store.get(jobID)
	if !ok || job.NativeHandle == nil {
		t.Fatal("re-armed job must carry a fresh native handle")
	}

	// Only the fresh handle stays armed; the dropped one was released.
	alarms.mu.Lock()
	live := len(alarms.handles)
	alarms.mu.Unlock()
	if live != 1 {
		t.Fatalf("%d alarms armed after sweep fire, want 1", live)
	}
}

func TestSparseSweepsNeverLoseTheDay(t *testing.T) {
	ctx := context.Background()
	d, _, alarms, notifier, clock := newTestDispatcher(t)
	alarms.fail = true
	if err := d.SyncReminder(ctx, testDef("08:00")); err != nil {
		t.Fatalf("sync: %v", err)
	}

	// Backgrounded cadence: no sweep lands near 08:00 itself.
	for _, at := range []time.Time{
		time.Date(2024, 3, 10, 7, 58, 0, 0, time.Local),
		time.Date(2024, 3, 10, 8, 3, 0, 0, time.Local),
		time.Date(2024, 3, 10, 8, 8, 0, 0, time.Local),
		time.Date(2024, 3, 10, 23, 59, 0, 0, time.Local),
	} {
		clock.set(at)
		d.sweep(ctx)
	}
	if got := notifier.count(); got != 1 {
		t.Fatalf("sweep-only job sent %d notifications over the day, want exactly 1", got)
	}
}

func TestSweepFiresAtMostOncePerDay(t *testing.T) {
	ctx := context.Background()
	d, _, _, notifier, clock := newTestDispatcher(t)
	if err := d.SyncReminder(ctx, testDef("08:00")); err != nil {
		t.Fatalf("sync: %v", err)
	}

	clock.set(time.Date(2024, 3, 10, 8, 0, 30, 0, time.Local))
	d.sweep(ctx)
	d.sweep(ctx)
	clock.set(time.Date(2024, 3, 10, 8, 1, 30, 0, time.Local))
	d.sweep(ctx)
	if got := notifier.count(); got != 1 {
		t.Fatalf("repeated sweeps sent %d notifications, want 1", got)
	}

	// The guard resets with the calendar day.
	clock.set(time.Date(2024, 3, 11, 8, 0, 30, 0, time.Local))
	d.sweep(ctx)
	if got := notifier.count(); got != 2 {
		t.Fatalf("next-day sweep sent %d total, want 2", got)
	}
}

func TestNativeAndSweepNeverDoubleFire(t *testing.T) {
	ctx := context.Background()

	t.Run("alarm first", func(t *testing.T) {
		d, store, _, notifier, clock := newTestDispatcher(t)
		if err := d.SyncReminder(ctx, testDef("08:00")); err != nil {
			t.Fatalf("sync: %v", err)
		}
		jobID := models.JobID(models.KindMedicine, "med-1", "08:00")

		clock.set(time.Date(2024, 3, 10, 8, 0, 0, 0, time.Local))
		d.HandleAlarm(jobID)
		d.sweep(ctx)
		if got := notifier.count(); got != 1 {
			t.Fatalf("sent %d notifications, want 1", got)
		}
		job, ok := store.get(jobID)
		if !ok || job.LastFiredDate == nil || !models.SameDay(*job.LastFiredDate, clock.Now()) {
			t.Fatal("last fired day not persisted")
		}
	})

	t.Run("sweep first", func(t *testing.T) {
		d, _, _, notifier, clock := newTestDispatcher(t)
		if err := d.SyncReminder(ctx, testDef("08:00")); err != nil {
			t.Fatalf("sync: %v", err)
		}
		clock.set(time.Date(2024, 3, 10, 8, 0, 0, 0, time.Local))
		d.sweep(ctx)
		d.HandleAlarm(models.JobID(models.KindMedicine, "med-1", "08:00"))
		if got := notifier.count(); got != 1 {
			t.Fatalf("sent %d notifications, want 1", got)
		}
	})
}

func TestHandleAlarmRearmsForNextDay(t *testing.T) {
	ctx := context.Background()
	d, _, alarms, _, clock := newTestDispatcher(t)
	if err := d.SyncReminder(ctx, testDef("08:00")); err != nil {
		t.Fatalf("sync: %v", err)
	}
	before := alarms.armCount()

	clock.set(time.Date(2024, 3, 10, 8, 0, 0, 0, time.Local))
	d.HandleAlarm(models.JobID(models.KindMedicine, "med-1", "08:00"))
	if alarms.armCount() != before+1 {
		t.Fatal("alarm delivery must re-arm the job")
	}
}

func TestHandleAlarmDropsStaleDelivery(t *testing.T) {
	d, _, alarms, notifier, _ := newTestDispatcher(t)
	before := alarms.armCount()

	d.HandleAlarm("no-such-job")
	if notifier.count() != 0 {
		t.Fatal("stale alarm must not notify")
	}
	if alarms.armCount() != before {
		t.Fatal("stale alarm must not re-arm")
	}
}

func TestSyncReminderReplacesJobsOnEdit(t *testing.T) {
	ctx := context.Background()
	d, store, alarms, _, _ := newTestDispatcher(t)

	if err := d.SyncReminder(ctx, testDef("08:00")); err != nil {
		t.Fatalf("initial sync: %v", err)
	}
	if err := d.SyncReminder(ctx, testDef("09:00")); err != nil {
		t.Fatalf("edit sync: %v", err)
	}

	jobs, _ := store.List(ctx)
	if len(jobs) != 1 {
		t.Fatalf("store holds %d jobs, want 1", len(jobs))
	}
	if jobs[0].Time != "09:00" {
		t.Fatalf("surviving job fires at %s, want 09:00", jobs[0].Time)
	}
	alarms.mu.Lock()
	cancelled := len(alarms.cancelled)
	live := len(alarms.handles)
	alarms.mu.Unlock()
	if cancelled != 1 {
		t.Fatalf("edit cancelled %d alarms, want 1", cancelled)
	}
	if live != 1 {
		t.Fatalf("%d alarms still armed, want 1", live)
	}
}

func TestSyncReminderSkipsInertDefinitions(t *testing.T) {
	ctx := context.Background()

	paused := testDef("08:00")
	paused.IsActive = false

	deletedAt := time.Now()
	deleted := testDef("08:00")
	deleted.DeletedAt = &deletedAt

	asNeeded := testDef()
	asNeeded.Frequency = models.Frequency{Type: models.FrequencyAsNeeded}

	for _, def := range []*models.ReminderDefinition{paused, deleted, asNeeded} {
		d, store, _, _, _ := newTestDispatcher(t)
		if err := d.SyncReminder(ctx, def); err != nil {
			t.Fatalf("sync: %v", err)
		}
		if jobs, _ := store.List(ctx); len(jobs) != 0 {
			t.Fatalf("inert definition produced %d jobs, want 0", len(jobs))
		}
	}
}

func TestArmFailureDegradesToSweepOnly(t *testing.T) {
	ctx := context.Background()
	d, store, alarms, notifier, clock := newTestDispatcher(t)
	alarms.fail = true

	if err := d.SyncReminder(ctx, testDef("08:00")); err != nil {
		t.Fatalf("arming failure must not fail the sync: %v", err)
	}

	jobID := models.JobID(models.KindMedicine, "med-1", "08:00")
	job, ok := store.get(jobID)
	if !ok {
		t.Fatal("job must persist even when arming fails")
	}
	if job.NativeHandle != nil {
		t.Fatal("failed arming must leave no native handle")
	}

	clock.set(time.Date(2024, 3, 10, 8, 1, 0, 0, time.Local))
	d.sweep(ctx)
	if notifier.count() != 1 {
		t.Fatal("sweep must still deliver a sweep-only job")
	}
}

func TestRemoveNotificationsIsIdempotent(t *testing.T) {
	ctx := context.Background()
	d, store, _, _, _ := newTestDispatcher(t)
	if err := d.SyncReminder(ctx, testDef("08:00", "20:00")); err != nil {
		t.Fatalf("sync: %v", err)
	}

	if err := d.RemoveNotifications(ctx, "med-1"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if jobs, _ := store.List(ctx); len(jobs) != 0 {
		t.Fatal("remove must delete all of the subject's jobs")
	}
	if err := d.RemoveNotifications(ctx, "med-1"); err != nil {
		t.Fatalf("second remove must be error-free: %v", err)
	}
}

func TestFireEventsPublished(t *testing.T) {
	ctx := context.Background()
	d, _, _, _, clock := newTestDispatcher(t)
	if err := d.SyncReminder(ctx, testDef("08:00")); err != nil {
		t.Fatalf("sync: %v", err)
	}

	clock.set(time.Date(2024, 3, 10, 8, 0, 0, 0, time.Local))
	d.sweep(ctx)

	select {
	case ev := <-d.Events():
		if ev.SubjectID != "med-1" || ev.Time != "08:00" {
			t.Fatalf("unexpected event %+v", ev)
		}
		if !models.SameDay(ev.Day, clock.Now()) {
			t.Fatalf("event day %v does not match fire day", ev.Day)
		}
	default:
		t.Fatal("sweep fire must publish an event")
	}
}

func TestTimerAlarmsCancelUnknownHandle(t *testing.T) {
	a := NewTimerAlarms()
	if err := a.Cancel("never-armed"); err != nil {
		t.Fatalf("cancelling an unknown handle must be a no-op, got %v", err)
	}
}

func TestTimerAlarmsRequireHandler(t *testing.T) {
	a := NewTimerAlarms()
	if _, err := a.ArmOneShot(time.Now().Add(time.Hour), "job-1"); err != ErrAlarmUnavailable {
		t.Fatalf("unbound scheduler must refuse to arm, got %v", err)
	}
	a.Bind(func(string) {})
	handle, err := a.ArmOneShot(time.Now().Add(time.Hour), "job-1")
	if err != nil {
		t.Fatalf("bound scheduler must arm: %v", err)
	}
	if err := a.Cancel(handle); err != nil {
		t.Fatalf("cancel: %v", err)
	}
}
