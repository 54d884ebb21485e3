package notify

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Confirmation carries what the guest confirmation and host notification
// emails need about a freshly committed booking.
type Confirmation struct {
	BookingID     string    `json:"booking_id"`
	GuestName     string    `json:"guest_name"`
	GuestEmail    string    `json:"guest_email"`
	GuestTimezone string    `json:"guest_timezone"`
	GuestNotes    string    `json:"guest_notes,omitempty"`
	HostName      string    `json:"host_name"`
	HostEmail     string    `json:"host_email,omitempty"`
	HostTimezone  string    `json:"host_timezone"`
	EventTitle    string    `json:"event_title"`
	Duration      int       `json:"duration_minutes"`
	Start         time.Time `json:"start"`
}

// Reminder is sent to the guest ahead of a booking.
type Reminder struct {
	BookingID    string    `json:"booking_id"`
	GuestName    string    `json:"guest_name"`
	GuestEmail   string    `json:"guest_email"`
	HostName     string    `json:"host_name"`
	HostTimezone string    `json:"host_timezone"`
	EventTitle   string    `json:"event_title"`
	Duration     int       `json:"duration_minutes"`
	Start        time.Time `json:"start"`
}

// Dispatcher delivers booking emails. Callers log failures; a failed
// delivery never affects the booking itself.
type Dispatcher interface {
	SendBookingConfirmation(ctx context.Context, c Confirmation) error
	SendBookingReminder(ctx context.Context, r Reminder) error
}

// Disabled only logs what would have been sent.
type Disabled struct {
	Log *zap.Logger
}

func (d Disabled) SendBookingConfirmation(_ context.Context, c Confirmation) error {
	if d.Log != nil {
		d.Log.Info("email disabled, skipping booking confirmation",
			zap.String("booking_id", c.BookingID), zap.String("guest_email", c.GuestEmail))
	}
	return nil
}

func (d Disabled) SendBookingReminder(_ context.Context, r Reminder) error {
	if d.Log != nil {
		d.Log.Info("email disabled, skipping booking reminder",
			zap.String("booking_id", r.BookingID), zap.String("guest_email", r.GuestEmail))
	}
	return nil
}
