package app

import (
	"slices"
	"testing"
	"time"
)

func TestCandidatesFullDay(t *testing.T) {
	tmpl := &AvailabilityTemplate{DayOfWeek: 1, StartTime: "09:00", EndTime: "17:00", IsEnabled: true}
	got := slices.Collect(Candidates(tmpl, 30))
	if len(got) != 16 {
		t.Fatalf("got %d candidates, want 16: %v", len(got), got)
	}
	if got[0] != "09:00" || got[1] != "09:30" || got[15] != "16:30" {
		t.Fatalf("unexpected candidates %v", got)
	}
}

func TestCandidates(t *testing.T) {
	window := func(start, end string, enabled bool) *AvailabilityTemplate {
		return &AvailabilityTemplate{StartTime: start, EndTime: end, IsEnabled: enabled}
	}
	cases := []struct {
		name     string
		tmpl     *AvailabilityTemplate
		duration int
		want     []string
	}{
		{"no template", nil, 30, nil},
		{"disabled", window("09:00", "17:00", false), 30, nil},
		{"duration longer than window", window("09:00", "10:00", true), 90, nil},
		{"duration equals window", window("09:00", "10:00", true), 60, []string{"09:00"}},
		{"hour event", window("09:00", "10:30", true), 60, []string{"09:00", "09:30"}},
		{"short event keeps 30 minute step", window("09:00", "10:00", true), 15, []string{"09:00", "09:30"}},
		{"unpadded start", window("8:30", "09:30", true), 30, []string{"08:30", "09:00"}},
		{"odd start", window("09:15", "10:15", true), 30, []string{"09:15", "09:45"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := slices.Collect(Candidates(tc.tmpl, tc.duration))
			if !slices.Equal(got, tc.want) {
				t.Fatalf("got %v, want %v", got, tc.want)
			}
		})
	}
}

func TestCandidatesRestartable(t *testing.T) {
	seq := Candidates(&AvailabilityTemplate{StartTime: "09:00", EndTime: "11:00", IsEnabled: true}, 30)
	first := slices.Collect(seq)
	second := slices.Collect(seq)
	if !slices.Equal(first, second) || len(first) != 4 {
		t.Fatalf("sequence not restartable: %v then %v", first, second)
	}
	for c := range seq {
		if c != "09:00" {
			t.Fatalf("first yielded %q", c)
		}
		break
	}
}

func TestCandidatesStayInsideWindow(t *testing.T) {
	for _, d := range []int{5, 15, 30, 45, 60, 90, 480} {
		tmpl := &AvailabilityTemplate{StartTime: "07:10", EndTime: "18:20", IsEnabled: true}
		end, _ := parseHHMM(tmpl.EndTime)
		for c := range Candidates(tmpl, d) {
			start, err := parseHHMM(c)
			if err != nil {
				t.Fatal(err)
			}
			if start+d > end {
				t.Fatalf("duration %d: candidate %s ends after window", d, c)
			}
		}
	}
}

func TestParseHHMM(t *testing.T) {
	cases := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{"00:00", 0, false},
		{"9:05", 545, false},
		{"23:59", 1439, false},
		{"24:00", 0, true},
		{"12:60", 0, true},
		{"12:5", 0, true},
		{"noon", 0, true},
		{"", 0, true},
	}
	for _, tc := range cases {
		got, err := parseHHMM(tc.in)
		if (err != nil) != tc.wantErr {
			t.Fatalf("parseHHMM(%q) err = %v", tc.in, err)
		}
		if !tc.wantErr && got != tc.want {
			t.Fatalf("parseHHMM(%q) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestIntervalOverlaps(t *testing.T) {
	base := time.Date(2026, time.October, 19, 0, 0, 0, 0, time.UTC)
	span := func(h1, m1, h2, m2 int) Interval {
		return Interval{
			Start: base.Add(time.Duration(h1)*time.Hour + time.Duration(m1)*time.Minute),
			End:   base.Add(time.Duration(h2)*time.Hour + time.Duration(m2)*time.Minute),
		}
	}
	slot := span(10, 0, 10, 30)
	cases := []struct {
		name     string
		conflict Interval
		want     bool
	}{
		{"touching after", span(10, 30, 11, 0), false},
		{"touching before", span(9, 30, 10, 0), false},
		{"partial overlap at end", span(10, 15, 10, 45), true},
		{"partial overlap at start", span(9, 45, 10, 15), true},
		{"slot contains conflict", span(10, 10, 10, 20), true},
		{"conflict contains slot", span(9, 0, 12, 0), true},
		{"identical", span(10, 0, 10, 30), true},
		{"far away", span(14, 0, 15, 0), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := slot.Overlaps(tc.conflict); got != tc.want {
				t.Fatalf("Overlaps = %v, want %v", got, tc.want)
			}
			if got := tc.conflict.Overlaps(slot); got != tc.want {
				t.Fatalf("reverse Overlaps = %v, want %v", got, tc.want)
			}
		})
	}
}
