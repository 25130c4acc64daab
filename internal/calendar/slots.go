package calendar

import (
	"time"

	"hostbook/internal/models"
)

// SlotStep is the candidate start-time granularity.
const SlotStep = models.SlotGranularityMinutes * time.Minute

// Compute nets occupying ranges out of open and enumerates start times for the given duration.
// Starts sit on the 30-minute wall-clock grid of loc and never precede now+lead.
func Compute(
	open, occupying []TimeRange,
	duration time.Duration,
	now time.Time,
	lead time.Duration,
	loc *time.Location,
) []time.Time {
	if duration <= 0 {
		return nil
	}
	if loc == nil {
		loc = time.UTC
	}

	earliest := now.Add(lead)
	free := Subtract(open, occupying)

	starts := make([]time.Time, 0)
	for _, interval := range free {
		for start := alignUp(interval.Start, loc); !start.Add(duration).After(interval.End); start = start.Add(SlotStep) {
			if start.Before(earliest) {
				continue
			}
			starts = append(starts, start)
		}
	}
	return starts
}

// Slots is Compute returned as ranges of the requested duration.
func Slots(
	open, occupying []TimeRange,
	duration time.Duration,
	now time.Time,
	lead time.Duration,
	loc *time.Location,
) []TimeRange {
	starts := Compute(open, occupying, duration, now, lead, loc)
	out := make([]TimeRange, 0, len(starts))
	for _, s := range starts {
		out = append(out, TimeRange{Start: s, End: s.Add(duration)})
	}
	return out
}

// IsBookable reports whether start is one of the computed slot starts.
func IsBookable(
	start time.Time,
	open, occupying []TimeRange,
	duration time.Duration,
	now time.Time,
	lead time.Duration,
	loc *time.Location,
) bool {
	for _, s := range Compute(open, occupying, duration, now, lead, loc) {
		if s.Equal(start) {
			return true
		}
	}
	return false
}

// alignUp rounds t up to the next grid line of the local wall clock.
func alignUp(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	y, m, d := local.Date()
	minutes := local.Hour()*60 + local.Minute()
	if local.Second() != 0 || local.Nanosecond() != 0 {
		minutes++
	}
	if rem := minutes % models.SlotGranularityMinutes; rem != 0 {
		minutes += models.SlotGranularityMinutes - rem
	}
	return time.Date(y, m, d, 0, minutes, 0, 0, loc)
}
