package calendar

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/teambition/rrule-go"
	"go.uber.org/zap"
)

const (
	maxFeedBytes          = 5 << 20
	maxOccurrencesPerFeed = 5000
)

// FeedLocator resolves the ICS busy feed URL a host configured, or "" when
// the host has none.
type FeedLocator interface {
	BusyFeedURL(ctx context.Context, hostID string) (string, error)
}

// ICSFeed reads busy intervals from a host's published iCalendar feed. It is
// read-only: bookings are never mirrored into it.
type ICSFeed struct {
	Feeds  FeedLocator
	Client *http.Client
	Log    *zap.Logger
}

func NewICSFeed(feeds FeedLocator, timeout time.Duration, log *zap.Logger) *ICSFeed {
	return &ICSFeed{
		Feeds:  feeds,
		Client: &http.Client{Timeout: timeout},
		Log:    log,
	}
}

func (f *ICSFeed) ListBusyIntervals(ctx context.Context, hostID string, start, end time.Time) ([]BusyInterval, error) {
	url, err := f.Feeds.BusyFeedURL(ctx, hostID)
	if err != nil {
		return nil, fmt.Errorf("resolve busy feed: %w", err)
	}
	if url == "" {
		return nil, nil
	}

	body, err := f.fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	busy, err := ParseBusyICS(body, start, end)
	if err != nil {
		return nil, err
	}
	if f.Log != nil {
		f.Log.Debug("ics busy feed read", zap.String("host_id", hostID), zap.Int("intervals", len(busy)))
	}
	return busy, nil
}

func (f *ICSFeed) CreateEvent(context.Context, string, EventRequest) (string, error) {
	return "", ErrReadOnly
}

func (f *ICSFeed) DeleteEvent(context.Context, string, string) error {
	return ErrReadOnly
}

func (f *ICSFeed) fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/calendar")

	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch busy feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch busy feed: unexpected status %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxFeedBytes))
}

// ParseBusyICS returns the busy intervals of an iCalendar payload that
// overlap [start, end). Recurring events are expanded with their EXDATEs
// removed and RECURRENCE-ID overrides applied; cancelled and transparent
// events are ignored. All-day events are anchored to midnight in start's
// location.
func ParseBusyICS(body []byte, start, end time.Time) ([]BusyInterval, error) {
	if len(body) == 0 {
		return nil, errors.New("empty ICS body")
	}
	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse ICS: %w", err)
	}

	loc := start.Location()
	var series []*ical.VEvent
	moved := map[overrideKey]bool{}
	var out []BusyInterval
	for _, ve := range cal.Events() {
		rid := ve.GetProperty("RECURRENCE-ID")
		if rid == nil {
			series = append(series, ve)
			continue
		}
		at, err := parseICSTime(strings.TrimSpace(rid.Value), propLocation(rid, loc))
		if err != nil {
			continue
		}
		// The override replaces the original occurrence, wherever it moved to.
		moved[overrideKey{uid: propValue(ve, ical.ComponentPropertyUniqueId), at: at.Unix()}] = true
		if !busyEvent(ve) {
			continue
		}
		if b, ok := baseInterval(ve, loc); ok && overlaps(b, start, end) {
			out = append(out, b)
		}
	}

	for _, ve := range series {
		if !busyEvent(ve) {
			continue
		}
		base, ok := baseInterval(ve, loc)
		if !ok {
			continue
		}
		uid := propValue(ve, ical.ComponentPropertyUniqueId)
		replaced := func(b BusyInterval) bool {
			return moved[overrideKey{uid: uid, at: b.Start.Unix()}]
		}

		raw := propValue(ve, ical.ComponentPropertyRrule)
		if raw == "" {
			if overlaps(base, start, end) && !replaced(base) {
				out = append(out, base)
			}
			continue
		}
		for _, b := range expand(ve, base, raw, start, end) {
			if !replaced(b) {
				out = append(out, b)
			}
		}
	}
	return out, nil
}

// overrideKey identifies one occurrence of a series by UID and original
// start.
type overrideKey struct {
	uid string
	at  int64
}

func busyEvent(ve *ical.VEvent) bool {
	return propValue(ve, "STATUS") != "CANCELLED" &&
		propValue(ve, "TRANSP") != "TRANSPARENT"
}

// propLocation is the TZID location of a date-time property, fallback when
// it has none or the zone is unknown.
func propLocation(p *ical.IANAProperty, fallback *time.Location) *time.Location {
	if tz, ok := p.ICalParameters["TZID"]; ok && len(tz) > 0 {
		if loc, err := time.LoadLocation(tz[0]); err == nil {
			return loc
		}
	}
	return fallback
}

func baseInterval(ve *ical.VEvent, loc *time.Location) (BusyInterval, bool) {
	dtStart := ve.GetProperty(ical.ComponentPropertyDtStart)
	if dtStart == nil {
		return BusyInterval{}, false
	}

	if isDateValue(dtStart) {
		s, err := time.ParseInLocation("20060102", dtStart.Value[:8], loc)
		if err != nil {
			return BusyInterval{}, false
		}
		e := s.AddDate(0, 0, 1)
		if dtEnd := ve.GetProperty(ical.ComponentPropertyDtEnd); dtEnd != nil && len(dtEnd.Value) >= 8 {
			if parsed, err := time.ParseInLocation("20060102", dtEnd.Value[:8], loc); err == nil && parsed.After(s) {
				e = parsed
			}
		}
		return BusyInterval{Start: s, End: e, AllDay: true}, true
	}

	s, err := ve.GetStartAt()
	if err != nil {
		return BusyInterval{}, false
	}
	e, err := ve.GetEndAt()
	if err != nil || !e.After(s) {
		return BusyInterval{}, false
	}
	return BusyInterval{Start: s, End: e}, true
}

func expand(ve *ical.VEvent, base BusyInterval, raw string, start, end time.Time) []BusyInterval {
	r, err := rrule.StrToRRule(raw)
	if err != nil {
		return nil
	}
	r.DTStart(base.Start)

	var set rrule.Set
	set.RRule(r)
	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		for _, part := range strings.Split(p.Value, ",") {
			if t, err := parseICSTime(strings.TrimSpace(part), propLocation(p, base.Start.Location())); err == nil {
				set.ExDate(t)
			}
		}
	}

	dur := base.End.Sub(base.Start)
	// Occurrences that started before the window may still run into it.
	occ := set.Between(start.Add(-dur), end, true)
	if len(occ) > maxOccurrencesPerFeed {
		occ = occ[:maxOccurrencesPerFeed]
	}

	out := make([]BusyInterval, 0, len(occ))
	for _, s := range occ {
		b := BusyInterval{Start: s, End: s.Add(dur), AllDay: base.AllDay}
		if overlaps(b, start, end) {
			out = append(out, b)
		}
	}
	return out
}

func isDateValue(p *ical.IANAProperty) bool {
	if vs, ok := p.ICalParameters["VALUE"]; ok && len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
		return len(p.Value) >= 8
	}
	return len(p.Value) == 8 && !strings.Contains(p.Value, "T")
}

func parseICSTime(v string, loc *time.Location) (time.Time, error) {
	switch {
	case v == "":
		return time.Time{}, errors.New("empty time value")
	case strings.HasSuffix(v, "Z"):
		return time.Parse("20060102T150405Z", v)
	case strings.Contains(v, "T"):
		return time.ParseInLocation("20060102T150405", v, loc)
	default:
		return time.ParseInLocation("20060102", v, loc)
	}
}

func propValue(ve *ical.VEvent, name ical.ComponentProperty) string {
	if p := ve.GetProperty(name); p != nil {
		return strings.ToUpper(strings.TrimSpace(p.Value))
	}
	return ""
}

func overlaps(b BusyInterval, start, end time.Time) bool {
	return b.Start.Before(end) && b.End.After(start)
}
