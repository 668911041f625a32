package models

import (
	"time"

	"github.com/google/uuid"
)

// jobNamespace seeds deterministic job IDs. Never change it: a new namespace
// would orphan every persisted job across an upgrade.
var jobNamespace = uuid.MustParse("7d4cf4c6-3e5a-4b5f-9f0e-2a90d1c3b8a4")

// JobID derives the deterministic ID for a notification job from its
// identity triple. Re-adding the same (kind, subject, time) always maps to
// the same job, so an upsert replaces rather than duplicates.
func JobID(kind Kind, subjectID, clock string) string {
	return uuid.NewSHA1(jobNamespace, []byte(string(kind)+"|"+subjectID+"|"+clock)).String()
}

// NotificationJob is one persisted scheduling unit: subject X should be
// notified at HH:MM every active day. LastFiredDate is the at-most-once-per-
// day guard and is only ever advanced by the dispatcher.
type NotificationJob struct {
	JobID         string     `json:"job_id"`
	SubjectID     string     `json:"subject_id"`
	Kind          Kind       `json:"kind"`
	Time          string     `json:"time"` // HH:MM
	Title         string     `json:"title"`
	Body          string     `json:"body"`
	LastFiredDate *time.Time `json:"last_fired_date"` // day granularity
	NativeHandle  *string    `json:"native_handle"`   // opaque armed-alarm handle, nil when sweep-only
	CreatedAt     time.Time  `json:"created_at"`
}

// NewNotificationJob builds the job for one time slot of a definition.
func NewNotificationJob(def *ReminderDefinition, clock, title, body string) *NotificationJob {
	return &NotificationJob{
		JobID:     JobID(def.Kind, def.ID, clock),
		SubjectID: def.ID,
		Kind:      def.Kind,
		Time:      clock,
		Title:     title,
		Body:      body,
	}
}

// FiredOn reports whether the job already fired on the given calendar day.
func (j *NotificationJob) FiredOn(day time.Time) bool {
	return j.LastFiredDate != nil && SameDay(*j.LastFiredDate, day)
}
