// Package occurrence expands reminder definitions into concrete day
// occurrences and classifies their live status. Everything here is pure:
// the caller supplies the reference time and the completion facts.
package occurrence

import (
	"time"

	"github.com/nikiramandika/alera-sub000/internal/models"
)

// Generate expands the given definitions into zero or more occurrences for
// one calendar day. Paused definitions, dates outside the active window
// (inclusive on both ends, day granularity) and inactive weekdays produce
// nothing. As-needed definitions never produce timed occurrences.
func Generate(defs []*models.ReminderDefinition, date time.Time) []models.Occurrence {
	var occs []models.Occurrence
	for _, def := range defs {
		if !def.IsActive || def.DeletedAt != nil {
			continue
		}
		if !def.InWindow(date) {
			continue
		}
		if !def.Frequency.ActiveOn(date) {
			continue
		}
		for _, clock := range def.TimesOfDay {
			occs = append(occs, models.Occurrence{
				SubjectID: def.ID,
				Kind:      def.Kind,
				Name:      def.Name,
				DoseLabel: def.DoseLabel,
				Date:      models.DayOf(date),
				Time:      clock,
				Tolerance: models.DefaultTolerance,
			})
		}
	}
	return occs
}
