package app

import (
	"fmt"
	"iter"
	"strconv"
	"strings"
	"time"
)

// slotStep is the spacing of candidate start times, independent of the
// event duration.
const slotStep = 30

// parseHHMM parses "H:MM" or "HH:MM" (24h) into minutes since midnight.
func parseHHMM(s string) (int, error) {
	h, m, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok || len(h) == 0 || len(h) > 2 || len(m) != 2 {
		return 0, fmt.Errorf("invalid time string: %q", s)
	}
	hour, err := strconv.Atoi(h)
	if err != nil || hour < 0 || hour > 23 {
		return 0, fmt.Errorf("invalid time string: %q", s)
	}
	minute, err := strconv.Atoi(m)
	if err != nil || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("invalid time string: %q", s)
	}
	return hour*60 + minute, nil
}

func formatHHMM(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// normalizeHHMM zero-pads a valid clock string ("9:00" -> "09:00").
func normalizeHHMM(s string) (string, error) {
	m, err := parseHHMM(s)
	if err != nil {
		return "", err
	}
	return formatHHMM(m), nil
}

// Candidates yields the start times of a weekday window, every 30 minutes
// from the window start, such that start+duration still ends within the
// window. A nil or disabled template yields nothing. The sequence can be
// ranged over any number of times.
func Candidates(tmpl *AvailabilityTemplate, duration int) iter.Seq[string] {
	return func(yield func(string) bool) {
		if tmpl == nil || !tmpl.IsEnabled || duration <= 0 {
			return
		}
		start, err := parseHHMM(tmpl.StartTime)
		if err != nil {
			return
		}
		end, err := parseHHMM(tmpl.EndTime)
		if err != nil {
			return
		}
		for t := start; t+duration <= end; t += slotStep {
			if !yield(formatHHMM(t)) {
				return
			}
		}
	}
}

// templateFor returns the enabled template entry of the weekday, or nil.
func templateFor(tmpls []AvailabilityTemplate, day time.Weekday) *AvailabilityTemplate {
	for i := range tmpls {
		if tmpls[i].DayOfWeek == int(day) && tmpls[i].IsEnabled {
			return &tmpls[i]
		}
	}
	return nil
}

// Interval is a half-open [Start, End) span of time.
type Interval struct {
	Start time.Time
	End   time.Time
}

// Overlaps reports whether slot and other share any instant. Intervals that
// only touch (one ends exactly where the other starts) do not overlap.
func (slot Interval) Overlaps(other Interval) bool {
	startsInside := !slot.Start.Before(other.Start) && slot.Start.Before(other.End)
	endsInside := slot.End.After(other.Start) && !slot.End.After(other.End)
	contains := !slot.Start.After(other.Start) && !slot.End.Before(other.End)
	if contains {
		// an empty conflict at the slot's edge is not inside it
		contains = other.Start.Before(slot.End) && other.End.After(slot.Start)
	}
	return startsInside || endsInside || contains
}

// dayBounds returns midnight of date and of the following day in loc.
func dayBounds(date time.Time, loc *time.Location) (time.Time, time.Time) {
	y, m, d := date.Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 0, 1)
}

// slotTime is the instant of clock on date in loc.
func slotTime(date time.Time, clock string, loc *time.Location) (time.Time, error) {
	minutes, err := parseHHMM(clock)
	if err != nil {
		return time.Time{}, err
	}
	y, m, d := date.Date()
	return time.Date(y, m, d, minutes/60, minutes%60, 0, 0, loc), nil
}
