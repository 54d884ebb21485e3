package app

import "time"

type BookingStatus string

const (
	StatusConfirmed BookingStatus = "CONFIRMED"
	StatusCancelled BookingStatus = "CANCELLED"
)

type Host struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Email       string    `json:"email,omitempty"`
	Slug        string    `json:"slug"`
	Timezone    string    `json:"timezone"`
	Bio         string    `json:"bio,omitempty"`
	BusyFeedURL string    `json:"busy_feed_url,omitempty"`
	CreatedAt   time.Time `json:"created_at,omitempty"`
	UpdatedAt   time.Time `json:"updated_at,omitempty"`
}

// Location returns the host's timezone, UTC when it is unset or unknown.
func (h *Host) Location() *time.Location {
	if h.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(h.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

type EventType struct {
	ID          string `json:"id"`
	HostID      string `json:"host_id"`
	Title       string `json:"title"`
	Slug        string `json:"slug"`
	Description string `json:"description,omitempty"`
	// Duration in minutes.
	Duration int `json:"duration"`
	// Stored but not applied to slot generation or conflict checks.
	BufferBefore int       `json:"buffer_before"`
	BufferAfter  int       `json:"buffer_after"`
	IsActive     bool      `json:"is_active"`
	Color        string    `json:"color"`
	CreatedAt    time.Time `json:"created_at,omitempty"`
	UpdatedAt    time.Time `json:"updated_at,omitempty"`
}

// AvailabilityTemplate is the recurring window of one weekday.
type AvailabilityTemplate struct {
	HostID    string `json:"host_id,omitempty"`
	DayOfWeek int    `json:"day_of_week"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	IsEnabled bool   `json:"is_enabled"`
}

type Booking struct {
	ID              string        `json:"id"`
	EventTypeID     string        `json:"event_type_id"`
	HostID          string        `json:"host_id"`
	GuestName       string        `json:"guest_name"`
	GuestEmail      string        `json:"guest_email"`
	GuestTimezone   string        `json:"guest_timezone"`
	GuestNotes      string        `json:"guest_notes,omitempty"`
	StartTime       time.Time     `json:"start_time"`
	EndTime         time.Time     `json:"end_time"`
	Status          BookingStatus `json:"status"`
	CancelReason    string        `json:"cancel_reason,omitempty"`
	ExternalEventID string        `json:"external_event_id,omitempty"`
	CreatedAt       time.Time     `json:"created_at,omitempty"`
}

// BookingSummary is a booking listed together with its event type.
type BookingSummary struct {
	Booking
	EventTitle    string `json:"event_title"`
	EventDuration int    `json:"event_duration"`
	EventColor    string `json:"event_color"`
}

// BookingDetails is the public view of a booking shown after commit.
type BookingDetails struct {
	Booking
	EventType EventType `json:"event_type"`
	HostName  string    `json:"host_name"`
	HostTZ    string    `json:"host_timezone"`
}

// Slot is a candidate start time on the requested day.
type Slot struct {
	Time      string `json:"time"`
	Available bool   `json:"available"`
}

// BookingFilter selects which of a host's bookings are listed.
type BookingFilter string

const (
	FilterUpcoming BookingFilter = "upcoming"
	FilterPast     BookingFilter = "past"
	FilterAll      BookingFilter = "all"
)
