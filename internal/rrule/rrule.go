package rrule

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/teambition/rrule-go"

	"github.com/nikiramandika/alera-sub000/internal/models"
)

var weekdayToRRule = map[time.Weekday]rrule.Weekday{
	time.Monday:    rrule.MO,
	time.Tuesday:   rrule.TU,
	time.Wednesday: rrule.WE,
	time.Thursday:  rrule.TH,
	time.Friday:    rrule.FR,
	time.Saturday:  rrule.SA,
	time.Sunday:    rrule.SU,
}

var rruleToWeekday = map[int]time.Weekday{
	0: time.Monday,
	1: time.Tuesday,
	2: time.Wednesday,
	3: time.Thursday,
	4: time.Friday,
	5: time.Saturday,
	6: time.Sunday,
}

// FromFrequency serializes a frequency variant to its RFC 5545 RRULE form
// for storage. As-needed definitions have no recurrence and map to "".
func FromFrequency(f models.Frequency) (string, error) {
	switch f.Type {
	case models.FrequencyDaily:
		return "FREQ=DAILY", nil
	case models.FrequencyInterval:
		if len(f.DaysOfWeek) == 0 {
			return "", fmt.Errorf("interval frequency without weekdays")
		}
		days := make([]string, 0, len(f.DaysOfWeek))
		for _, wd := range sortedWeekdays(f.DaysOfWeek) {
			days = append(days, weekdayToRRule[wd].String())
		}
		return "FREQ=WEEKLY;BYDAY=" + strings.Join(days, ","), nil
	case models.FrequencyAsNeeded:
		return "", nil
	default:
		return "", fmt.Errorf("unknown frequency type %q", f.Type)
	}
}

// ToFrequency parses a stored RRULE string back into the typed frequency
// variant. An empty rule means as-needed.
func ToFrequency(ruleStr string) (models.Frequency, error) {
	if ruleStr == "" {
		return models.Frequency{Type: models.FrequencyAsNeeded}, nil
	}
	opt, err := rrule.StrToROption(strings.TrimPrefix(ruleStr, "RRULE:"))
	if err != nil {
		return models.Frequency{}, fmt.Errorf("parse rrule %q: %w", ruleStr, err)
	}
	switch opt.Freq {
	case rrule.DAILY:
		return models.Frequency{Type: models.FrequencyDaily}, nil
	case rrule.WEEKLY:
		var days []time.Weekday
		for _, wd := range opt.Byweekday {
			if d, ok := rruleToWeekday[wd.Day()]; ok {
				days = append(days, d)
			}
		}
		if len(days) == 0 {
			return models.Frequency{}, fmt.Errorf("weekly rule %q has no BYDAY", ruleStr)
		}
		return models.Frequency{Type: models.FrequencyInterval, DaysOfWeek: days}, nil
	default:
		return models.Frequency{}, fmt.Errorf("unsupported rrule frequency in %q", ruleStr)
	}
}

// NextDaily returns the next instant at the given HH:MM wall-clock time
// strictly after `after`, in `after`'s location. This is the arming rule for
// notification jobs: today if the time is still ahead, otherwise tomorrow.
func NextDaily(clock string, after time.Time) (time.Time, error) {
	hour, min, err := models.ParseClock(clock)
	if err != nil {
		return time.Time{}, err
	}
	// Dtstart is anchored a day back so the rule already covers "today".
	rule, err := rrule.NewRRule(rrule.ROption{
		Freq:     rrule.DAILY,
		Byhour:   []int{hour},
		Byminute: []int{min},
		Dtstart:  models.DayOf(after).AddDate(0, 0, -1),
	})
	if err != nil {
		return time.Time{}, fmt.Errorf("build daily rule for %s: %w", clock, err)
	}
	next := rule.After(after, false)
	if next.IsZero() {
		return time.Time{}, fmt.Errorf("no next occurrence for %s after %s", clock, after)
	}
	return next, nil
}

// Describe renders a frequency for chat display.
func Describe(f models.Frequency) string {
	switch f.Type {
	case models.FrequencyDaily:
		return "every day"
	case models.FrequencyInterval:
		names := make([]string, 0, len(f.DaysOfWeek))
		for _, wd := range sortedWeekdays(f.DaysOfWeek) {
			names = append(names, wd.String())
		}
		return "every " + strings.Join(names, ", ")
	case models.FrequencyAsNeeded:
		return "as needed"
	default:
		return string(f.Type)
	}
}

// sortedWeekdays returns a Monday-first copy so serialized rules and
// descriptions are stable regardless of input order.
func sortedWeekdays(days []time.Weekday) []time.Weekday {
	out := append([]time.Weekday(nil), days...)
	sort.Slice(out, func(i, j int) bool {
		return mondayFirst(out[i]) < mondayFirst(out[j])
	})
	return out
}

func mondayFirst(wd time.Weekday) int {
	if wd == time.Sunday {
		return 7
	}
	return int(wd)
}
