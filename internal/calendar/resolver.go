package calendar

import (
	"errors"
	"fmt"
	"time"

	"hostbook/internal/models"
)

// ErrMalformedAvailability means stored rules or overrides skipped write-time validation.
var ErrMalformedAvailability = errors.New("malformed availability data")

// HostCalendar is the per-day open-interval view keyed by "YYYY-MM-DD" in the host time zone.
type HostCalendar map[string][]TimeRange

// Resolve builds the open intervals for every date in [startDate, endDate] (inclusive, host-local dates):
// weekday rules, plus available overrides, minus blocked overrides.
func Resolve(
	rules []models.RecurringRule,
	overrides []models.Override,
	loc *time.Location,
	startDate, endDate time.Time,
) (HostCalendar, error) {
	if loc == nil {
		loc = time.UTC
	}

	byWeekday := make(map[int][]models.RecurringRule)
	for _, r := range rules {
		if err := r.Validate(); err != nil {
			return nil, fmt.Errorf("%w: rule %s: %v", ErrMalformedAvailability, r.ID, err)
		}
		byWeekday[r.DayOfWeek] = append(byWeekday[r.DayOfWeek], r)
	}

	available := make(map[string][]models.Override)
	blocked := make(map[string][]models.Override)
	for _, o := range overrides {
		if err := o.Validate(); err != nil {
			return nil, fmt.Errorf("%w: override %s: %v", ErrMalformedAvailability, o.ID, err)
		}
		key := models.DateKey(o.Date)
		if o.Kind == models.OverrideBlocked {
			blocked[key] = append(blocked[key], o)
		} else {
			available[key] = append(available[key], o)
		}
	}

	first := localDate(startDate, loc)
	last := localDate(endDate, loc)

	view := make(HostCalendar)
	for day := first; !day.After(last); day = day.AddDate(0, 0, 1) {
		key := models.DateKey(day)

		var open []TimeRange
		for _, r := range byWeekday[models.WeekdayIndex(day)] {
			open = append(open, window(day, loc, r.StartTime, r.EndTime))
		}
		for _, o := range available[key] {
			start, end := o.Window()
			open = append(open, window(day, loc, start, end))
		}

		var cut []TimeRange
		for _, o := range blocked[key] {
			start, end := o.Window()
			cut = append(cut, window(day, loc, start, end))
		}

		view[key] = Subtract(Merge(open), cut)
	}

	return view, nil
}

// Dates returns the keys of the view in calendar order.
func (c HostCalendar) Dates(startDate, endDate time.Time, loc *time.Location) []string {
	var keys []string
	for day := localDate(startDate, loc); !day.After(localDate(endDate, loc)); day = day.AddDate(0, 0, 1) {
		keys = append(keys, models.DateKey(day))
	}
	return keys
}

func window(day time.Time, loc *time.Location, start, end models.ClockTime) TimeRange {
	return TimeRange{Start: start.On(day, loc), End: end.On(day, loc)}
}

// localDate interprets the calendar date of t (as written) in loc.
func localDate(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}
