package app

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"booking-service/internal/calendar"
	"booking-service/internal/notify"
)

// externalSkew widens the external re-check window around a new booking.
const externalSkew = time.Minute

// CommitBooking re-validates the requested slot against internal bookings
// and the host's external calendar and stores it as a confirmed booking.
// A slot that is gone, in the past or not offered by the host's template
// fails with ErrSlotUnavailable. Mirroring and notification failures are
// logged and do not fail the commit.
func (a *App) CommitBooking(ctx context.Context, in BookingInput) (*Booking, error) {
	in.GuestName = strings.TrimSpace(in.GuestName)
	in.GuestEmail = strings.TrimSpace(in.GuestEmail)
	if err := check(in, bookingMessages); err != nil {
		return nil, err
	}

	et, err := a.Store.GetEventType(ctx, in.EventTypeID)
	if err != nil {
		return nil, err
	}
	if !et.IsActive {
		return nil, notFound("event type", in.EventTypeID)
	}
	host, err := a.Store.GetHostByID(ctx, et.HostID)
	if err != nil {
		return nil, err
	}

	// the slot is anchored to the host's wall clock
	loc := host.Location()
	day, err := time.ParseInLocation(dateLayout, in.Date, loc)
	if err != nil {
		return nil, invalid("date", "date must be YYYY-MM-DD")
	}
	start, err := slotTime(day, in.Time, loc)
	if err != nil {
		return nil, invalid("time", "time must be HH:MM (24h)")
	}
	end := start.Add(time.Duration(et.Duration) * time.Minute)

	if !start.After(a.now()) {
		return nil, ErrSlotUnavailable
	}
	offered, err := a.offers(ctx, host.ID, day.Weekday(), et.Duration, in.Time)
	if err != nil {
		return nil, err
	}
	if !offered {
		return nil, ErrSlotUnavailable
	}

	b := &Booking{
		ID:            uuid.NewString(),
		EventTypeID:   et.ID,
		HostID:        host.ID,
		GuestName:     in.GuestName,
		GuestEmail:    in.GuestEmail,
		GuestTimezone: in.GuestTimezone,
		GuestNotes:    strings.TrimSpace(in.GuestNotes),
		StartTime:     start,
		EndTime:       end,
		Status:        StatusConfirmed,
	}
	log := a.logger().With(zap.String("host_id", host.ID), zap.String("booking_id", b.ID))

	// The external re-check and the mirror run under the host lock, each
	// bounded by CalendarTimeout, so a losing commit never mirrors.
	err = a.Store.WithHostLock(ctx, host.ID, func(tx BookingTx) error {
		existing, err := tx.FindOverlapping(ctx, host.ID, start, end)
		if err != nil {
			return fmt.Errorf("check conflicts: %w", err)
		}
		if existing != nil {
			return ErrSlotUnavailable
		}
		if a.externallyBusy(ctx, host.ID, start, end) {
			return ErrSlotUnavailable
		}
		b.ExternalEventID = a.mirror(ctx, host, et, b)
		return tx.InsertBooking(ctx, b)
	})
	if err != nil {
		if b.ExternalEventID != "" {
			a.deleteMirror(ctx, host.ID, b.ExternalEventID, log)
			b.ExternalEventID = ""
		}
		if errors.Is(err, ErrSlotUnavailable) {
			log.Info("booking rejected, slot taken", zap.Time("start", start))
			return nil, err
		}
		return nil, fmt.Errorf("persist booking: %w", err)
	}
	log.Info("booking confirmed", zap.Time("start", start), zap.String("event_type_id", et.ID))

	conf := notify.Confirmation{
		BookingID:     b.ID,
		GuestName:     b.GuestName,
		GuestEmail:    b.GuestEmail,
		GuestTimezone: b.GuestTimezone,
		GuestNotes:    b.GuestNotes,
		HostName:      host.Name,
		HostEmail:     host.Email,
		HostTimezone:  host.Timezone,
		EventTitle:    et.Title,
		Duration:      et.Duration,
		Start:         b.StartTime,
	}
	if err := a.notifier().SendBookingConfirmation(context.WithoutCancel(ctx), conf); err != nil {
		log.Warn("booking confirmation not sent", zap.Error(err))
	}
	return b, nil
}

// offers reports whether clock is one of the weekday's candidate starts.
func (a *App) offers(ctx context.Context, hostID string, day time.Weekday, duration int, clock string) (bool, error) {
	tmpls, err := a.Store.ListAvailability(ctx, hostID)
	if err != nil {
		return false, fmt.Errorf("list availability: %w", err)
	}
	want, err := normalizeHHMM(clock)
	if err != nil {
		return false, nil
	}
	return slices.Contains(slices.Collect(Candidates(templateFor(tmpls, day), duration)), want), nil
}

// externallyBusy re-reads the host's external calendar around [start, end),
// bypassing the cache. An unreachable calendar counts as free.
func (a *App) externallyBusy(ctx context.Context, hostID string, start, end time.Time) bool {
	busy := a.fetchBusy(ctx, a.calendarProvider(), hostID, start.Add(-externalSkew), end.Add(externalSkew))
	if blockedAllDay(busy, start) {
		return true
	}
	return overlapsAny(Interval{Start: start, End: end}, timedBusy(busy))
}

func (a *App) mirror(ctx context.Context, host *Host, et *EventType, b *Booking) string {
	cctx, cancel := a.calendarCtx(ctx)
	defer cancel()

	desc := fmt.Sprintf("Booked by %s (%s)", b.GuestName, b.GuestEmail)
	if b.GuestNotes != "" {
		desc += "\n\nNotes: " + b.GuestNotes
	}
	id, err := a.calendarProvider().CreateEvent(cctx, host.ID, calendar.EventRequest{
		Title:         fmt.Sprintf("%s with %s", et.Title, b.GuestName),
		Description:   desc,
		Start:         b.StartTime,
		End:           b.EndTime,
		AttendeeEmail: b.GuestEmail,
		AttendeeName:  b.GuestName,
		Timezone:      host.Timezone,
	})
	if err != nil {
		if !errors.Is(err, calendar.ErrNotConnected) {
			a.logger().Warn("calendar mirror not created",
				zap.String("host_id", host.ID), zap.String("booking_id", b.ID), zap.Error(err))
		}
		return ""
	}
	return id
}

func (a *App) deleteMirror(ctx context.Context, hostID, externalID string, log *zap.Logger) {
	cctx, cancel := a.calendarCtx(context.WithoutCancel(ctx))
	defer cancel()
	if err := a.calendarProvider().DeleteEvent(cctx, hostID, externalID); err != nil {
		log.Warn("calendar mirror not deleted", zap.String("external_event_id", externalID), zap.Error(err))
	}
}

// CancelBooking cancels one of hostID's bookings. The mirrored calendar
// event is removed first on a best-effort basis; the booking row is kept.
func (a *App) CancelBooking(ctx context.Context, hostID, bookingID, reason string) error {
	reason = strings.TrimSpace(reason)
	if len(reason) > 500 {
		return invalid("reason", "reason must be at most 500 characters")
	}
	b, err := a.Store.GetBooking(ctx, bookingID)
	if err != nil {
		return err
	}
	if b.HostID != hostID {
		return notFound("booking", bookingID)
	}
	if b.Status == StatusCancelled {
		return ErrAlreadyCancelled
	}

	log := a.logger().With(zap.String("host_id", hostID), zap.String("booking_id", bookingID))
	if b.ExternalEventID != "" {
		a.deleteMirror(ctx, hostID, b.ExternalEventID, log)
	}
	if err := a.Store.CancelBooking(ctx, bookingID, reason); err != nil {
		return err
	}
	log.Info("booking cancelled")
	return nil
}

// ListBookings lists the host's bookings; an empty filter means upcoming.
func (a *App) ListBookings(ctx context.Context, hostID, filter string) ([]BookingSummary, error) {
	f := BookingFilter(filter)
	switch f {
	case "":
		f = FilterUpcoming
	case FilterUpcoming, FilterPast, FilterAll:
	default:
		return nil, invalid("filter", "filter must be one of upcoming, past, all")
	}
	out, err := a.Store.ListBookings(ctx, hostID, f, a.now())
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []BookingSummary{}
	}
	return out, nil
}

// GetBookingDetails is the public view of a booking.
func (a *App) GetBookingDetails(ctx context.Context, id string) (*BookingDetails, error) {
	b, err := a.Store.GetBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	et, err := a.Store.GetEventType(ctx, b.EventTypeID)
	if err != nil {
		return nil, err
	}
	host, err := a.Store.GetHostByID(ctx, b.HostID)
	if err != nil {
		return nil, err
	}
	return &BookingDetails{Booking: *b, EventType: *et, HostName: host.Name, HostTZ: host.Timezone}, nil
}
