package models

import "time"

// DefaultTolerance is the grace period after an occurrence's nominal time
// during which it counts as due-soon rather than overdue.
const DefaultTolerance = 15 * time.Minute

// OccurrenceStatus is the live classification of one occurrence
type OccurrenceStatus string

const (
	StatusCompleted OccurrenceStatus = "completed"
	StatusOverdue   OccurrenceStatus = "overdue"
	StatusDueSoon   OccurrenceStatus = "due_soon"
	StatusScheduled OccurrenceStatus = "scheduled"
	StatusFuture    OccurrenceStatus = "future"
)

// Occurrence is one concrete (subject, date, time) instance derived from a
// recurring definition. Occurrences are produced fresh per query and never
// persisted or mutated.
type Occurrence struct {
	SubjectID string        `json:"subject_id"`
	Kind      Kind          `json:"kind"`
	Name      string        `json:"name"`
	DoseLabel string        `json:"dose_label"`
	Date      time.Time     `json:"date"` // day granularity
	Time      string        `json:"time"` // HH:MM
	Tolerance time.Duration `json:"tolerance"`
}

// At returns the occurrence's nominal instant on its calendar day.
func (o Occurrence) At() time.Time {
	return ClockOn(o.Date, o.Time)
}

// Deadline returns the end of the occurrence's tolerance window.
func (o Occurrence) Deadline() time.Time {
	return o.At().Add(o.Tolerance)
}

// OverlayKey is the optimistic-overlay key for this occurrence.
func (o Occurrence) OverlayKey() string {
	return OverlayKey(o.SubjectID, o.Time)
}

// OverlayKey builds the optimistic completion key for a subject, optionally
// scoped to one time of day. An empty clock keys the whole subject, which is
// how untimed as-needed doses are marked.
func OverlayKey(subjectID, clock string) string {
	if clock == "" {
		return subjectID
	}
	return subjectID + "@" + clock
}

// DaySchedule is the classified, bucketed view of one day handed to the
// presentation layer. Overdue is ordered by time descending (most recently
// missed first); DueSoon ascending; Scheduled is grouped by HH:MM with each
// group's insertion order preserved.
type DaySchedule struct {
	Date      time.Time               `json:"date"`
	Overdue   []Occurrence            `json:"overdue"`
	DueSoon   []Occurrence            `json:"due_soon"`
	Scheduled map[string][]Occurrence `json:"scheduled"`
	Completed []Occurrence            `json:"completed"`
}
