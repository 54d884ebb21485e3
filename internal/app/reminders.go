package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"booking-service/internal/notify"
)

const (
	reminderLead   = 24 * time.Hour
	reminderWindow = time.Hour
)

// SendReminders emails guests whose confirmed booking starts in
// [now+24h, now+25h). Run hourly, every booking gets one reminder. A failed
// reminder is counted and the sweep goes on.
func (a *App) SendReminders(ctx context.Context) (sent, failed int, err error) {
	from := a.now().Add(reminderLead)
	due, err := a.Store.ListConfirmedStarting(ctx, from, from.Add(reminderWindow))
	if err != nil {
		return 0, 0, fmt.Errorf("list due bookings: %w", err)
	}

	hosts := map[string]*Host{}
	events := map[string]*EventType{}
	for _, b := range due {
		log := a.logger().With(zap.String("booking_id", b.ID))

		host, ok := hosts[b.HostID]
		if !ok {
			if host, err = a.Store.GetHostByID(ctx, b.HostID); err != nil {
				log.Warn("reminder skipped, host lookup failed", zap.Error(err))
				failed++
				continue
			}
			hosts[b.HostID] = host
		}
		et, ok := events[b.EventTypeID]
		if !ok {
			if et, err = a.Store.GetEventType(ctx, b.EventTypeID); err != nil {
				log.Warn("reminder skipped, event type lookup failed", zap.Error(err))
				failed++
				continue
			}
			events[b.EventTypeID] = et
		}

		err := a.notifier().SendBookingReminder(ctx, notify.Reminder{
			BookingID:    b.ID,
			GuestName:    b.GuestName,
			GuestEmail:   b.GuestEmail,
			HostName:     host.Name,
			HostTimezone: host.Timezone,
			EventTitle:   et.Title,
			Duration:     et.Duration,
			Start:        b.StartTime,
		})
		if err != nil {
			log.Warn("reminder not sent", zap.Error(err))
			failed++
			continue
		}
		sent++
	}
	return sent, failed, nil
}
