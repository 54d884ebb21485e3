package app

import (
	"context"
	"time"

	"golang.org/x/oauth2"
)

// Store is the transactional persistence the core runs on. Lookups that find
// nothing return an error matching ErrNotFound.
type Store interface {
	GetHostByID(ctx context.Context, id string) (*Host, error)
	GetHostBySlug(ctx context.Context, slug string) (*Host, error)
	// SaveHost inserts or updates the host; a slug used by another host
	// yields ErrSlugTaken.
	SaveHost(ctx context.Context, h *Host) error

	ListEventTypes(ctx context.Context, hostID string) ([]EventType, error)
	GetEventType(ctx context.Context, id string) (*EventType, error)
	GetEventTypeBySlug(ctx context.Context, hostID, slug string) (*EventType, error)
	// CreateEventType and UpdateEventType yield ErrSlugTaken when the host
	// already has another event type with the slug.
	CreateEventType(ctx context.Context, et *EventType) error
	UpdateEventType(ctx context.Context, et *EventType) error
	// DeleteEventType removes the event type and its bookings.
	DeleteEventType(ctx context.Context, id string) error

	ListAvailability(ctx context.Context, hostID string) ([]AvailabilityTemplate, error)
	// ReplaceAvailability atomically swaps the host's whole weekly template.
	ReplaceAvailability(ctx context.Context, hostID string, tmpl []AvailabilityTemplate) error

	// ListActiveBookings returns non-cancelled bookings of the host whose
	// start lies in [from, to).
	ListActiveBookings(ctx context.Context, hostID string, from, to time.Time) ([]Booking, error)
	ListBookings(ctx context.Context, hostID string, filter BookingFilter, now time.Time) ([]BookingSummary, error)
	GetBooking(ctx context.Context, id string) (*Booking, error)
	// ListConfirmedStarting returns confirmed bookings of every host whose
	// start lies in [from, to).
	ListConfirmedStarting(ctx context.Context, from, to time.Time) ([]Booking, error)
	// CancelBooking flips a confirmed booking to cancelled; a booking that is
	// already cancelled yields ErrAlreadyCancelled.
	CancelBooking(ctx context.Context, id, reason string) error

	// WithHostLock runs fn with the host's bookings serialised against every
	// other WithHostLock call for the same host. Inserts made through tx are
	// persisted only if fn returns nil.
	WithHostLock(ctx context.Context, hostID string, fn func(tx BookingTx) error) error

	LoadToken(ctx context.Context, hostID string) (*oauth2.Token, error)
	SaveToken(ctx context.Context, hostID string, tok *oauth2.Token) error
	BusyFeedURL(ctx context.Context, hostID string) (string, error)

	Ping(ctx context.Context) error
}

// BookingTx is the conflict check and insert of a booking commit.
type BookingTx interface {
	// FindOverlapping returns a non-cancelled booking of the host overlapping
	// [start, end), or nil.
	FindOverlapping(ctx context.Context, hostID string, start, end time.Time) (*Booking, error)
	InsertBooking(ctx context.Context, b *Booking) error
}
