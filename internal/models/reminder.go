package models

import (
	"errors"
	"fmt"
	"time"
)

// Kind distinguishes the two reminder subject types
type Kind string

const (
	KindMedicine Kind = "medicine"
	KindHabit    Kind = "habit"
)

// FrequencyType is the recurrence variant of a reminder definition
type FrequencyType string

const (
	FrequencyDaily    FrequencyType = "daily"
	FrequencyInterval FrequencyType = "interval"
	FrequencyAsNeeded FrequencyType = "as_needed"
)

// Frequency describes when a reminder recurs. DaysOfWeek is only
// meaningful for FrequencyInterval.
type Frequency struct {
	Type       FrequencyType  `json:"type"`
	DaysOfWeek []time.Weekday `json:"days_of_week,omitempty"`
}

// ActiveOn reports whether date is an active day for this frequency.
// AsNeeded never produces timed occurrences.
func (f Frequency) ActiveOn(date time.Time) bool {
	switch f.Type {
	case FrequencyDaily:
		return true
	case FrequencyInterval:
		for _, wd := range f.DaysOfWeek {
			if date.Weekday() == wd {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// ErrDefinitionInvalid is returned when a reminder definition fails
// boundary validation. Invalid definitions never reach the occurrence
// generator or the dispatcher.
var ErrDefinitionInvalid = errors.New("invalid reminder definition")

// ReminderDefinition is one medicine or habit with its recurrence settings.
type ReminderDefinition struct {
	ID         string     `json:"id"`
	Kind       Kind       `json:"kind"`
	Name       string     `json:"name"`
	DoseLabel  string     `json:"dose_label"` // display only, e.g. "2 pills" or "30 min"
	Frequency  Frequency  `json:"frequency"`
	TimesOfDay []string   `json:"times_of_day"` // HH:MM, insertion order preserved
	StartDate  time.Time  `json:"start_date"`   // inclusive, day granularity
	EndDate    *time.Time `json:"end_date"`     // inclusive, nil means open-ended
	IsActive   bool       `json:"is_active"`    // manual pause, independent of the window
	DeletedAt  *time.Time `json:"deleted_at"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// Validate checks the invariants a definition must hold before it is saved.
func (d *ReminderDefinition) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("%w: name is required", ErrDefinitionInvalid)
	}
	if d.Kind != KindMedicine && d.Kind != KindHabit {
		return fmt.Errorf("%w: unknown kind %q", ErrDefinitionInvalid, d.Kind)
	}
	switch d.Frequency.Type {
	case FrequencyDaily:
	case FrequencyInterval:
		if len(d.Frequency.DaysOfWeek) == 0 {
			return fmt.Errorf("%w: interval frequency requires at least one weekday", ErrDefinitionInvalid)
		}
	case FrequencyAsNeeded:
		if d.Kind != KindMedicine {
			return fmt.Errorf("%w: as-needed frequency is only valid for medicines", ErrDefinitionInvalid)
		}
	default:
		return fmt.Errorf("%w: unknown frequency type %q", ErrDefinitionInvalid, d.Frequency.Type)
	}
	if d.Frequency.Type != FrequencyAsNeeded && len(d.TimesOfDay) == 0 {
		return fmt.Errorf("%w: times of day must not be empty unless as-needed", ErrDefinitionInvalid)
	}
	for _, clock := range d.TimesOfDay {
		if _, _, err := ParseClock(clock); err != nil {
			return fmt.Errorf("%w: bad time of day %q", ErrDefinitionInvalid, clock)
		}
	}
	if d.StartDate.IsZero() {
		return fmt.Errorf("%w: start date is required", ErrDefinitionInvalid)
	}
	if d.EndDate != nil && DayOf(*d.EndDate).Before(DayOf(d.StartDate)) {
		return fmt.Errorf("%w: end date before start date", ErrDefinitionInvalid)
	}
	return nil
}

// InWindow reports whether date falls inside the definition's active
// window, comparing at day granularity with inclusive bounds.
func (d *ReminderDefinition) InWindow(date time.Time) bool {
	day := DayOf(date)
	if day.Before(DayOf(d.StartDate)) {
		return false
	}
	if d.EndDate != nil && day.After(DayOf(*d.EndDate)) {
		return false
	}
	return true
}

// IsAsNeeded reports whether this definition is an untimed, on-demand medicine.
func (d *ReminderDefinition) IsAsNeeded() bool {
	return d.Frequency.Type == FrequencyAsNeeded
}
