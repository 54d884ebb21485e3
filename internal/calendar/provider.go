package calendar

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotConnected is returned when the host has no usable credentials
	// for the provider.
	ErrNotConnected = errors.New("calendar not connected")
	// ErrReadOnly is returned by providers that cannot write events.
	ErrReadOnly = errors.New("calendar is read-only")
)

// BusyInterval is a span during which the host is busy in an external
// calendar. All-day intervals start and end at midnight in the location of
// the range they were fetched for.
type BusyInterval struct {
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`
	AllDay bool      `json:"all_day"`
}

// CoversDate reports whether an all-day interval blocks the calendar day
// starting at day (midnight in the host's location). Intervals whose end is
// not after their start are treated as single-day.
func (b BusyInterval) CoversDate(day time.Time) bool {
	if !b.AllDay {
		return false
	}
	y, m, d := day.Date()
	loc := day.Location()
	target := time.Date(y, m, d, 0, 0, 0, 0, loc)

	sy, sm, sd := b.Start.In(loc).Date()
	first := time.Date(sy, sm, sd, 0, 0, 0, 0, loc)
	last := first
	if b.End.After(b.Start) {
		ey, em, ed := b.End.In(loc).Date()
		last = time.Date(ey, em, ed, 0, 0, 0, 0, loc).AddDate(0, 0, -1)
		if last.Before(first) {
			last = first
		}
	}
	return !target.Before(first) && !target.After(last)
}

// EventRequest describes the mirror of a booking in the host's calendar.
type EventRequest struct {
	Title         string
	Description   string
	Start         time.Time
	End           time.Time
	AttendeeEmail string
	AttendeeName  string
	Timezone      string
}

// BusyReader lists busy intervals for a host in [start, end).
type BusyReader interface {
	ListBusyIntervals(ctx context.Context, hostID string, start, end time.Time) ([]BusyInterval, error)
}

// Provider is an external calendar the host's bookings are checked against
// and mirrored into.
type Provider interface {
	BusyReader
	// CreateEvent returns the provider's id for the created event.
	CreateEvent(ctx context.Context, hostID string, ev EventRequest) (string, error)
	DeleteEvent(ctx context.Context, hostID, externalID string) error
}

// Disabled is the provider used when no calendar integration is configured.
type Disabled struct{}

func (Disabled) ListBusyIntervals(context.Context, string, time.Time, time.Time) ([]BusyInterval, error) {
	return nil, nil
}

func (Disabled) CreateEvent(context.Context, string, EventRequest) (string, error) {
	return "", ErrNotConnected
}

func (Disabled) DeleteEvent(context.Context, string, string) error {
	return ErrNotConnected
}

// Composite mirrors through Mirror and merges busy intervals from Mirror and
// every extra reader. A failing source does not hide the others: the
// intervals that were fetched are returned together with the joined error.
type Composite struct {
	Mirror Provider
	Extra  []BusyReader
}

func (c Composite) ListBusyIntervals(ctx context.Context, hostID string, start, end time.Time) ([]BusyInterval, error) {
	var (
		out  []BusyInterval
		errs []error
	)
	for _, r := range c.readers() {
		busy, err := r.ListBusyIntervals(ctx, hostID, start, end)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out = append(out, busy...)
	}
	return out, errors.Join(errs...)
}

func (c Composite) CreateEvent(ctx context.Context, hostID string, ev EventRequest) (string, error) {
	if c.Mirror == nil {
		return "", ErrNotConnected
	}
	return c.Mirror.CreateEvent(ctx, hostID, ev)
}

func (c Composite) DeleteEvent(ctx context.Context, hostID, externalID string) error {
	if c.Mirror == nil {
		return ErrNotConnected
	}
	return c.Mirror.DeleteEvent(ctx, hostID, externalID)
}

func (c Composite) readers() []BusyReader {
	rs := make([]BusyReader, 0, len(c.Extra)+1)
	if c.Mirror != nil {
		rs = append(rs, c.Mirror)
	}
	return append(rs, c.Extra...)
}
