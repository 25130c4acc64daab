// Package calendar holds the pure availability algebra: half-open time ranges, the resolver that
// turns rules and overrides into open intervals, and the slot computer. Nothing here performs I/O.
package calendar

import (
	"errors"
	"sort"
	"time"
)

var ErrInvalidTimeRange = errors.New("invalid time range")

// TimeRange is the half-open interval [Start, End).
type TimeRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func NewTimeRange(start, end time.Time) (TimeRange, error) {
	if start.IsZero() || end.IsZero() || !end.After(start) {
		return TimeRange{}, ErrInvalidTimeRange
	}
	return TimeRange{Start: start, End: end}, nil
}

func (tr TimeRange) Duration() time.Duration {
	return tr.End.Sub(tr.Start)
}

func (tr TimeRange) Empty() bool {
	return !tr.End.After(tr.Start)
}

// Overlaps uses half-open semantics: touching ends do not overlap.
func (tr TimeRange) Overlaps(other TimeRange) bool {
	return tr.Start.Before(other.End) && other.Start.Before(tr.End)
}

// Contains reports whether other lies fully inside tr.
func (tr TimeRange) Contains(other TimeRange) bool {
	return !other.Start.Before(tr.Start) && !other.End.After(tr.End)
}

// Merge sorts ranges and coalesces overlapping or adjacent ones. Empty ranges are dropped.
func Merge(ranges []TimeRange) []TimeRange {
	sorted := make([]TimeRange, 0, len(ranges))
	for _, r := range ranges {
		if !r.Empty() {
			sorted = append(sorted, r)
		}
	}
	if len(sorted) == 0 {
		return []TimeRange{}
	}
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Start.Before(sorted[j].Start)
	})

	out := []TimeRange{sorted[0]}
	for _, r := range sorted[1:] {
		last := &out[len(out)-1]
		if !r.Start.After(last.End) {
			if r.End.After(last.End) {
				last.End = r.End
			}
			continue
		}
		out = append(out, r)
	}
	return out
}

// Union merges two sets of ranges.
func Union(a, b []TimeRange) []TimeRange {
	all := make([]TimeRange, 0, len(a)+len(b))
	all = append(all, a...)
	all = append(all, b...)
	return Merge(all)
}

// Subtract removes every range in cut from base. A cut may truncate, split or remove a base range.
func Subtract(base, cut []TimeRange) []TimeRange {
	result := Merge(base)
	for _, c := range Merge(cut) {
		next := make([]TimeRange, 0, len(result)+1)
		for _, r := range result {
			if !r.Overlaps(c) {
				next = append(next, r)
				continue
			}
			if r.Start.Before(c.Start) {
				next = append(next, TimeRange{Start: r.Start, End: c.Start})
			}
			if c.End.Before(r.End) {
				next = append(next, TimeRange{Start: c.End, End: r.End})
			}
		}
		result = next
	}
	return result
}

// HasOverlap returns the ranges in existing that intersect newRange.
func HasOverlap(newRange TimeRange, existing []TimeRange) (bool, []TimeRange) {
	var conflicts []TimeRange
	for _, tr := range existing {
		if newRange.Overlaps(tr) {
			conflicts = append(conflicts, tr)
		}
	}
	return len(conflicts) > 0, conflicts
}

// DateOnly truncates t to midnight in its own location.
func DateOnly(t time.Time) time.Time {
	year, month, day := t.Date()
	return time.Date(year, month, day, 0, 0, 0, 0, t.Location())
}
