package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"booking-service/internal/calendar"
)

const dateLayout = "2006-01-02"

// ResolveSlots lists every candidate start of the event type on date with
// whether it can still be booked. An unknown host or an unknown or inactive
// event type is ErrNotFound; a weekday without enabled availability is an
// empty list.
func (a *App) ResolveSlots(ctx context.Context, hostSlug, eventSlug, date string) ([]Slot, error) {
	day, err := time.Parse(dateLayout, date)
	if err != nil {
		return nil, invalid("date", "date must be YYYY-MM-DD")
	}
	host, err := a.Store.GetHostBySlug(ctx, hostSlug)
	if err != nil {
		return nil, err
	}
	et, err := a.Store.GetEventTypeBySlug(ctx, host.ID, eventSlug)
	if err != nil {
		return nil, err
	}
	if !et.IsActive {
		return nil, notFound("event type", eventSlug)
	}
	tmpls, err := a.Store.ListAvailability(ctx, host.ID)
	if err != nil {
		return nil, fmt.Errorf("list availability: %w", err)
	}

	loc := host.Location()
	dayStart, dayEnd := dayBounds(day, loc)
	slots := []Slot{}
	tmpl := templateFor(tmpls, dayStart.Weekday())
	if tmpl == nil {
		return slots, nil
	}

	var (
		bookings []Booking
		busy     []calendar.BusyInterval
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		bookings, err = a.Store.ListActiveBookings(gctx, host.ID, dayStart, dayEnd)
		if err != nil {
			return fmt.Errorf("list bookings: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		busy = a.fetchBusy(gctx, a.busyReader(), host.ID, dayStart, dayEnd)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	duration := time.Duration(et.Duration) * time.Minute
	if blockedAllDay(busy, dayStart) {
		for clock := range Candidates(tmpl, et.Duration) {
			slots = append(slots, Slot{Time: clock, Available: false})
		}
		return slots, nil
	}

	conflicts := make([]Interval, 0, len(bookings)+len(busy))
	for _, b := range bookings {
		conflicts = append(conflicts, Interval{Start: b.StartTime, End: b.EndTime})
	}
	conflicts = append(conflicts, timedBusy(busy)...)

	now := a.now()
	for clock := range Candidates(tmpl, et.Duration) {
		start, err := slotTime(dayStart, clock, loc)
		if err != nil {
			return nil, err
		}
		slot := Interval{Start: start, End: start.Add(duration)}
		available := start.After(now) && !overlapsAny(slot, conflicts)
		slots = append(slots, Slot{Time: clock, Available: available})
	}
	return slots, nil
}

// fetchBusy asks r for the host's busy intervals under the calendar timeout.
// A failing source is logged and contributes nothing; intervals from the
// sources that answered are kept.
func (a *App) fetchBusy(ctx context.Context, r calendar.BusyReader, hostID string, from, to time.Time) []calendar.BusyInterval {
	cctx, cancel := a.calendarCtx(ctx)
	defer cancel()
	busy, err := r.ListBusyIntervals(cctx, hostID, from, to)
	if err != nil {
		a.logger().Warn("external calendar unavailable, using internal bookings only",
			zap.String("host_id", hostID), zap.Error(err))
	}
	return busy
}

func blockedAllDay(busy []calendar.BusyInterval, day time.Time) bool {
	for _, b := range busy {
		if b.CoversDate(day) {
			return true
		}
	}
	return false
}

func timedBusy(busy []calendar.BusyInterval) []Interval {
	var out []Interval
	for _, b := range busy {
		if b.AllDay {
			continue
		}
		out = append(out, Interval{Start: b.Start, End: b.End})
	}
	return out
}

func overlapsAny(slot Interval, conflicts []Interval) bool {
	for _, c := range conflicts {
		if slot.Overlaps(c) {
			return true
		}
	}
	return false
}

// GetAvailability returns the host's weekly template ordered by weekday.
func (a *App) GetAvailability(ctx context.Context, hostID string) ([]AvailabilityTemplate, error) {
	tmpls, err := a.Store.ListAvailability(ctx, hostID)
	if err != nil {
		return nil, err
	}
	if tmpls == nil {
		tmpls = []AvailabilityTemplate{}
	}
	return tmpls, nil
}

// SaveAvailability validates the weekly template and replaces the host's
// stored one with it in a single step.
func (a *App) SaveAvailability(ctx context.Context, hostID string, entries []AvailabilityInput) ([]AvailabilityTemplate, error) {
	if _, err := a.Store.GetHostByID(ctx, hostID); err != nil {
		return nil, err
	}
	if len(entries) > 7 {
		return nil, invalid("availability", "at most one entry per weekday")
	}

	seen := map[int]bool{}
	tmpls := make([]AvailabilityTemplate, 0, len(entries))
	for _, in := range entries {
		if err := check(in, availabilityMessages); err != nil {
			return nil, err
		}
		day := time.Weekday(in.DayOfWeek)
		if seen[in.DayOfWeek] {
			return nil, invalid("day_of_week", "%s appears more than once", day)
		}
		seen[in.DayOfWeek] = true

		start, _ := normalizeHHMM(in.StartTime)
		end, _ := normalizeHHMM(in.EndTime)
		// zero-padded HH:MM orders lexicographically
		if in.IsEnabled && start >= end {
			return nil, invalid("end_time", "%s: end time must be after start time", day)
		}
		tmpls = append(tmpls, AvailabilityTemplate{
			HostID:    hostID,
			DayOfWeek: in.DayOfWeek,
			StartTime: start,
			EndTime:   end,
			IsEnabled: in.IsEnabled,
		})
	}

	if err := a.Store.ReplaceAvailability(ctx, hostID, tmpls); err != nil {
		return nil, fmt.Errorf("replace availability: %w", err)
	}
	a.logger().Info("availability saved", zap.String("host_id", hostID), zap.Int("entries", len(tmpls)))
	return a.GetAvailability(ctx, hostID)
}
