package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

type Host struct {
	ID              string    `yaml:"id" json:"id"`
	Name            string    `yaml:"name" json:"name"`
	HourlyRateCents int64     `yaml:"hourly_rate_cents" json:"hourly_rate_cents"`
	TimeZone        string    `yaml:"time_zone" json:"time_zone"`
	CreatedAt       time.Time `yaml:"-" json:"created_at"`
	UpdatedAt       time.Time `yaml:"-" json:"updated_at"`
}

// Location resolves the host time zone, falling back to UTC for an empty value.
func (h *Host) Location() (*time.Location, error) {
	if h.TimeZone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(h.TimeZone)
}

// ClockTime is a wall-clock time of day in minutes after midnight; 1440 stands for "24:00".
type ClockTime int

func ParseClockTime(s string) (ClockTime, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 || len(parts[0]) != 2 || len(parts[1]) != 2 {
		return 0, fmt.Errorf("invalid time %q, expected HH:MM", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("invalid minute in %q", s)
	}
	if h == 24 && m == 0 {
		return MinutesPerDay, nil
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("time %q out of range", s)
	}
	return ClockTime(h*60 + m), nil
}

func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

// On returns the instant at this wall-clock time on the given date in loc.
func (c ClockTime) On(date time.Time, loc *time.Location) time.Time {
	y, m, d := date.Date()
	return time.Date(y, m, d, 0, int(c), 0, 0, loc)
}

// RecurringRule is a weekly window. DayOfWeek: 0=Monday..6=Sunday.
type RecurringRule struct {
	ID        string    `json:"id"`
	HostID    string    `json:"host_id"`
	DayOfWeek int       `json:"day_of_week"`
	StartTime ClockTime `json:"-"`
	EndTime   ClockTime `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

func (r *RecurringRule) Validate() error {
	if r.DayOfWeek < 0 || r.DayOfWeek > 6 {
		return fmt.Errorf("day_of_week must be within 0..6, got %d", r.DayOfWeek)
	}
	return validateWindow(r.StartTime, r.EndTime)
}

type Override struct {
	ID        string       `json:"id"`
	HostID    string       `json:"host_id"`
	Date      time.Time    `json:"-"`
	Kind      OverrideKind `json:"kind"`
	StartTime *ClockTime   `json:"-"`
	EndTime   *ClockTime   `json:"-"`
	Reason    string       `json:"reason,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
}

// AllDay reports whether the override covers [00:00, 24:00).
func (o *Override) AllDay() bool {
	return o.StartTime == nil && o.EndTime == nil
}

// Window returns the covered wall-clock span.
func (o *Override) Window() (ClockTime, ClockTime) {
	if o.AllDay() {
		return 0, MinutesPerDay
	}
	return *o.StartTime, *o.EndTime
}

func (o *Override) Validate() error {
	if o.Kind != OverrideAvailable && o.Kind != OverrideBlocked {
		return fmt.Errorf("kind must be %q or %q", OverrideAvailable, OverrideBlocked)
	}
	if o.Date.IsZero() {
		return fmt.Errorf("date is required")
	}
	if (o.StartTime == nil) != (o.EndTime == nil) {
		return fmt.Errorf("start_time and end_time must be given together")
	}
	start, end := o.Window()
	return validateWindow(start, end)
}

// DateKey is the canonical map key for a calendar date.
func DateKey(t time.Time) string {
	return t.Format("2006-01-02")
}

// WeekdayIndex maps time.Weekday onto 0=Monday..6=Sunday.
func WeekdayIndex(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}

func validateWindow(start, end ClockTime) error {
	if start < 0 || end > MinutesPerDay {
		return fmt.Errorf("time window %s-%s out of range", start, end)
	}
	if start >= end {
		return fmt.Errorf("start_time %s must be before end_time %s", start, end)
	}
	return nil
}
