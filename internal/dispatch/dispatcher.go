// Package dispatch drives notification delivery for persisted jobs. Each
// job advances independently through Idle -> NativeArmed -> Fired and back
// to Idle for the next day. Two paths observe triggers: the native one-shot
// alarm and a periodic backup sweep; the persisted last-fired day is the
// single guard that keeps them idempotent per calendar day.
package dispatch

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/nikiramandika/alera-sub000/internal/models"
	"github.com/nikiramandika/alera-sub000/internal/notify"
	"github.com/nikiramandika/alera-sub000/internal/rrule"
)

// JobStore is the durable notification job store the dispatcher reconciles
// against wall-clock time.
type JobStore interface {
	Upsert(ctx context.Context, job *models.NotificationJob) error
	List(ctx context.Context) ([]*models.NotificationJob, error)
	RemoveBySubject(ctx context.Context, subjectID string) ([]*models.NotificationJob, error)
	MarkFired(ctx context.Context, jobID string, day time.Time) (bool, error)
	SetNativeHandle(ctx context.Context, jobID string, handle *string) error
}

// Config carries the sweep cadences.
type Config struct {
	ForegroundSweep time.Duration
	BackgroundSweep time.Duration
}

// DefaultConfig sweeps every 30s while the user is looking and every 5m
// while backgrounded.
func DefaultConfig() Config {
	return Config{
		ForegroundSweep: 30 * time.Second,
		BackgroundSweep: 5 * time.Minute,
	}
}

// FireEvent is published after a notification fires so the presentation
// layer can refresh without polling storage.
type FireEvent struct {
	JobID     string
	SubjectID string
	Kind      models.Kind
	Time      string
	Day       time.Time
}

type Dispatcher struct {
	jobs     JobStore
	alarms   AlarmScheduler
	notifier notify.Notifier
	clock    Clock
	cfg      Config

	// mu serializes firing between the sweep loop and native alarm
	// callbacks; the check-then-set on last_fired_date must be atomic with
	// respect to both paths.
	mu sync.Mutex

	intervalCh chan time.Duration
	notifyCh   chan struct{}
	events     chan FireEvent

	lifeMu sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func New(jobs JobStore, alarms AlarmScheduler, notifier notify.Notifier, clock Clock, cfg Config) *Dispatcher {
	if clock == nil {
		clock = SystemClock
	}
	if cfg.ForegroundSweep <= 0 || cfg.BackgroundSweep <= 0 {
		cfg = DefaultConfig()
	}
	return &Dispatcher{
		jobs:       jobs,
		alarms:     alarms,
		notifier:   notifier,
		clock:      clock,
		cfg:        cfg,
		intervalCh: make(chan time.Duration, 1),
		notifyCh:   make(chan struct{}, 1),
		events:     make(chan FireEvent, 16),
	}
}

// Start launches the sweep loop. Jobs persisted before a restart are
// re-armed first, since any previously armed native alarms died with the
// old process.
func (d *Dispatcher) Start(ctx context.Context) {
	d.lifeMu.Lock()
	defer d.lifeMu.Unlock()
	if d.cancel != nil {
		return
	}
	ctx, d.cancel = context.WithCancel(ctx)
	d.done = make(chan struct{})
	go d.run(ctx)
}

// Stop halts the sweep loop and releases every armed native handle.
func (d *Dispatcher) Stop() {
	d.lifeMu.Lock()
	defer d.lifeMu.Unlock()
	if d.cancel == nil {
		return
	}
	d.cancel()
	<-d.done
	d.cancel = nil

	ctx := context.Background()
	jobs, err := d.jobs.List(ctx)
	if err != nil {
		log.Printf("Failed to list jobs during shutdown: %v", err)
		return
	}
	for _, job := range jobs {
		d.releaseHandle(ctx, job)
	}
}

// Notify triggers an immediate sweep. Non-blocking if one is already pending.
func (d *Dispatcher) Notify() {
	select {
	case d.notifyCh <- struct{}{}:
	default:
	}
}

// SetForeground switches the sweep cadence. The change takes effect by
// resetting the sweep timer; an in-flight sweep is not interrupted.
func (d *Dispatcher) SetForeground(fg bool) {
	interval := d.cfg.BackgroundSweep
	if fg {
		interval = d.cfg.ForegroundSweep
	}
	select {
	case <-d.intervalCh:
	default:
	}
	d.intervalCh <- interval
}

// Events is the fire-event stream. Slow consumers drop events rather than
// blocking delivery.
func (d *Dispatcher) Events() <-chan FireEvent {
	return d.events
}

func (d *Dispatcher) run(ctx context.Context) {
	defer close(d.done)
	log.Println("Dispatcher started")

	d.rearmAll(ctx)

	ticker := time.NewTicker(d.cfg.ForegroundSweep)
	defer ticker.Stop()

	d.sweep(ctx)

	for {
		select {
		case <-ctx.Done():
			log.Println("Dispatcher stopped")
			return
		case <-ticker.C:
			d.sweep(ctx)
		case interval := <-d.intervalCh:
			ticker.Reset(interval)
			log.Printf("Sweep interval set to %s", interval)
		case <-d.notifyCh:
			d.sweep(ctx)
		}
	}
}

// SyncReminder re-derives a definition's job set: remove-then-recreate, so
// no stale time keeps firing after an edit. Paused, deleted and as-needed
// definitions end with zero jobs.
func (d *Dispatcher) SyncReminder(ctx context.Context, def *models.ReminderDefinition) error {
	if err := d.RemoveNotifications(ctx, def.ID); err != nil {
		return err
	}
	if def.DeletedAt != nil || !def.IsActive || def.IsAsNeeded() {
		return nil
	}

	title, body := renderNotification(def)
	for _, clock := range def.TimesOfDay {
		job := models.NewNotificationJob(def, clock, title, body)
		if err := d.jobs.Upsert(ctx, job); err != nil {
			return fmt.Errorf("upsert job %s: %w", job.JobID, err)
		}
		d.arm(ctx, job)
	}
	return nil
}

// RemoveNotifications cancels any armed alarms for the subject and deletes
// its jobs. Handles are released synchronously before returning, so a
// following upsert for the same job ID never races a lingering alarm.
func (d *Dispatcher) RemoveNotifications(ctx context.Context, subjectID string) error {
	removed, err := d.jobs.RemoveBySubject(ctx, subjectID)
	if err != nil {
		return fmt.Errorf("remove jobs for %s: %w", subjectID, err)
	}
	for _, job := range removed {
		d.releaseHandle(ctx, job)
	}
	return nil
}

// HandleAlarm is the native delivery callback. It fires the job (a no-op if
// the sweep beat it today) and immediately re-arms for the next day, which
// is what makes jobs recurring without external re-registration.
func (d *Dispatcher) HandleAlarm(jobID string) {
	ctx := context.Background()
	job, err := d.findJob(ctx, jobID)
	if err != nil {
		log.Printf("Failed to look up job %s on alarm: %v", jobID, err)
		return
	}
	if job == nil {
		// The job was removed after its alarm armed. Stale delivery, drop it.
		return
	}

	now := d.clock.Now()
	d.mu.Lock()
	d.fire(ctx, job, now)
	d.mu.Unlock()

	d.arm(ctx, job)
}

func (d *Dispatcher) rearmAll(ctx context.Context) {
	jobs, err := d.jobs.List(ctx)
	if err != nil {
		log.Printf("Failed to list jobs for re-arming: %v", err)
		return
	}
	for _, job := range jobs {
		d.arm(ctx, job)
	}
	if len(jobs) > 0 {
		log.Printf("Re-armed %d notification jobs", len(jobs))
	}
}

// arm requests a native one-shot for the job's next trigger instant. Arming
// failures degrade the job to sweep-only delivery; they never propagate and
// never block other jobs.
func (d *Dispatcher) arm(ctx context.Context, job *models.NotificationJob) {
	next, err := rrule.NextDaily(job.Time, d.clock.Now())
	if err != nil {
		log.Printf("Failed to compute next trigger for job %s: %v", job.JobID, err)
		return
	}

	handle, err := d.alarms.ArmOneShot(next, job.JobID)
	if err != nil {
		log.Printf("Native arming unavailable for job %s, sweep-only delivery: %v", job.JobID, err)
		if err := d.jobs.SetNativeHandle(ctx, job.JobID, nil); err != nil {
			log.Printf("Failed to clear native handle for job %s: %v", job.JobID, err)
		}
		return
	}
	if err := d.jobs.SetNativeHandle(ctx, job.JobID, &handle); err != nil {
		log.Printf("Failed to store native handle for job %s: %v", job.JobID, err)
	}
}

// sweep is the backup path: any job whose trigger time has passed today and
// that has not fired today is fired now, however late the sweep arrives. A
// dropped native alarm therefore delays delivery by at most one sweep
// interval, it never loses the day. After a sweep fire the job is re-armed
// so it returns to native delivery instead of staying sweep-only. Jobs are
// evaluated independently; one job's failure never blocks the rest of the
// pass.
func (d *Dispatcher) sweep(ctx context.Context) {
	jobs, err := d.jobs.List(ctx)
	if err != nil {
		log.Printf("Failed to list jobs for sweep: %v", err)
		return
	}

	now := d.clock.Now()
	for _, job := range jobs {
		if now.Before(models.ClockOn(now, job.Time)) {
			continue
		}
		if job.FiredOn(now) {
			continue
		}
		d.mu.Lock()
		fired := d.fire(ctx, job, now)
		d.mu.Unlock()
		if fired {
			// The native alarm for this trigger was dropped or lost the
			// race; release it before arming for the next day.
			d.releaseHandle(ctx, job)
			d.arm(ctx, job)
		}
	}
}

// fire delivers at most once per calendar day and reports whether this call
// was the one that fired. The caller must hold d.mu; the store's conditional
// last-fired update is the cross-restart guard, the mutex the in-process one.
func (d *Dispatcher) fire(ctx context.Context, job *models.NotificationJob, now time.Time) bool {
	fired, err := d.jobs.MarkFired(ctx, job.JobID, now)
	if err != nil {
		log.Printf("Failed to mark job %s fired: %v", job.JobID, err)
		return false
	}
	if !fired {
		// The other path already fired today.
		return false
	}
	day := models.DayOf(now)
	job.LastFiredDate = &day

	if err := d.notifier.Send(ctx, notify.Notification{
		JobID:     job.JobID,
		SubjectID: job.SubjectID,
		Time:      job.Time,
		Title:     job.Title,
		Body:      job.Body,
	}); err != nil {
		log.Printf("Failed to deliver notification for job %s: %v", job.JobID, err)
	}

	select {
	case d.events <- FireEvent{JobID: job.JobID, SubjectID: job.SubjectID, Kind: job.Kind, Time: job.Time, Day: day}:
	default:
	}
	log.Printf("Fired job %s (%s at %s)", job.JobID, job.Title, job.Time)
	return true
}

func (d *Dispatcher) releaseHandle(ctx context.Context, job *models.NotificationJob) {
	if job.NativeHandle == nil {
		return
	}
	if err := d.alarms.Cancel(*job.NativeHandle); err != nil {
		// Cancelling an already-gone handle is treated as success by the
		// scheduler; anything else is only worth a log line.
		log.Printf("Failed to cancel alarm for job %s: %v", job.JobID, err)
	}
}

func (d *Dispatcher) findJob(ctx context.Context, jobID string) (*models.NotificationJob, error) {
	jobs, err := d.jobs.List(ctx)
	if err != nil {
		return nil, err
	}
	for _, job := range jobs {
		if job.JobID == jobID {
			return job, nil
		}
	}
	return nil, nil
}

func renderNotification(def *models.ReminderDefinition) (title, body string) {
	switch def.Kind {
	case models.KindMedicine:
		title = "Medication reminder"
		body = "Take " + def.Name
	default:
		title = "Habit reminder"
		body = "Time for " + def.Name
	}
	if def.DoseLabel != "" {
		body += " (" + def.DoseLabel + ")"
	}
	return title, body
}
