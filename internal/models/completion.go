package models

import "time"

// CompletionStatus is the recorded outcome for one occurrence
type CompletionStatus string

const (
	CompletionTaken     CompletionStatus = "taken"     // medicines
	CompletionCompleted CompletionStatus = "completed" // habits
	CompletionMissed    CompletionStatus = "missed"
)

// CompletionRecord is an append-only fact that a subject's occurrence was
// acted on. At most one positive record per (subject, date, time) is
// expected; duplicates are tolerated and treated the same as one.
type CompletionRecord struct {
	RecordID      int              `json:"record_id"`
	SubjectID     string           `json:"subject_id"`
	ScheduledDate time.Time        `json:"scheduled_date"` // day granularity
	ScheduledTime string           `json:"scheduled_time"` // HH:MM, empty for as-needed doses
	Status        CompletionStatus `json:"status"`
	RecordedAt    time.Time        `json:"recorded_at"`
}

// IsPositive reports whether this record counts as "done" for
// classification purposes.
func (r *CompletionRecord) IsPositive() bool {
	return r.Status == CompletionTaken || r.Status == CompletionCompleted
}

// Matches reports whether this record belongs to the given occurrence slot.
func (r *CompletionRecord) Matches(subjectID string, date time.Time, clock string) bool {
	return r.SubjectID == subjectID && SameDay(r.ScheduledDate, date) && r.ScheduledTime == clock
}
