package occurrence

import (
	"sort"
	"time"

	"github.com/nikiramandika/alera-sub000/internal/models"
)

// CompletionOverlay is the read side of the optimistic completion overlay.
// A nil overlay is treated as empty.
type CompletionOverlay interface {
	Contains(key string) bool
}

// Classify assigns a live status to one occurrence. "Today" is derived from
// now's calendar day. Completion (from a positive record or the overlay) is
// terminal and overrides all timing logic; occurrences on future days are
// never evaluated against the clock; not-done occurrences on past days are
// overdue no matter the time.
func Classify(occ models.Occurrence, now time.Time, completions []*models.CompletionRecord, overlay CompletionOverlay) models.OccurrenceStatus {
	today := models.DayOf(now)
	// Day-label comparison sidesteps location differences between stored
	// dates and the caller's clock.
	if models.DateKey(occ.Date) > models.DateKey(today) {
		return models.StatusFuture
	}
	if isDone(occ, completions, overlay) {
		return models.StatusCompleted
	}
	if !models.SameDay(occ.Date, today) {
		// Strictly before today and not done: the deadline has long passed.
		return models.StatusOverdue
	}
	nominal := occ.At()
	switch {
	case now.After(occ.Deadline()):
		return models.StatusOverdue
	case !now.Before(nominal):
		return models.StatusDueSoon
	default:
		return models.StatusScheduled
	}
}

func isDone(occ models.Occurrence, completions []*models.CompletionRecord, overlay CompletionOverlay) bool {
	if overlay != nil {
		if overlay.Contains(occ.OverlayKey()) || overlay.Contains(occ.SubjectID) {
			return true
		}
	}
	for _, rec := range completions {
		if rec.IsPositive() && rec.Matches(occ.SubjectID, occ.Date, occ.Time) {
			return true
		}
	}
	return false
}

// BuildDaySchedule classifies every occurrence and buckets the results for
// presentation: overdue sorted by time descending (most recently missed
// first), due-soon and completed ascending, scheduled grouped by HH:MM.
func BuildDaySchedule(date time.Time, occs []models.Occurrence, now time.Time, completions []*models.CompletionRecord, overlay CompletionOverlay) *models.DaySchedule {
	sched := &models.DaySchedule{
		Date:      models.DayOf(date),
		Scheduled: make(map[string][]models.Occurrence),
	}
	for _, occ := range occs {
		switch Classify(occ, now, completions, overlay) {
		case models.StatusOverdue:
			sched.Overdue = append(sched.Overdue, occ)
		case models.StatusDueSoon:
			sched.DueSoon = append(sched.DueSoon, occ)
		case models.StatusCompleted:
			sched.Completed = append(sched.Completed, occ)
		default:
			// Scheduled and future occurrences both land in the timed grid.
			sched.Scheduled[occ.Time] = append(sched.Scheduled[occ.Time], occ)
		}
	}
	sort.SliceStable(sched.Overdue, func(i, j int) bool {
		return sched.Overdue[i].Time > sched.Overdue[j].Time
	})
	sort.SliceStable(sched.DueSoon, func(i, j int) bool {
		return sched.DueSoon[i].Time < sched.DueSoon[j].Time
	})
	sort.SliceStable(sched.Completed, func(i, j int) bool {
		return sched.Completed[i].Time < sched.Completed[j].Time
	})
	return sched
}
