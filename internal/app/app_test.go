package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"booking-service/internal/calendar"
	"booking-service/internal/notify"
)

const (
	testHostID  = "host-1"
	testEventID = "evt-30"
	// Monday in the host's timezone.
	testMonday = "2026-10-19"
)

type fakeCalendar struct {
	mu        sync.Mutex
	busy      []calendar.BusyInterval
	busyErr   error
	createErr error
	deleteErr error
	created   []calendar.EventRequest
	deleted   []string
	busyCalls int
}

func (f *fakeCalendar) ListBusyIntervals(_ context.Context, _ string, start, end time.Time) ([]calendar.BusyInterval, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.busyCalls++
	if f.busyErr != nil {
		return nil, f.busyErr
	}
	var out []calendar.BusyInterval
	for _, b := range f.busy {
		if b.Start.Before(end) && b.End.After(start) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (f *fakeCalendar) CreateEvent(_ context.Context, _ string, ev calendar.EventRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return "", f.createErr
	}
	f.created = append(f.created, ev)
	return "gcal-" + ev.Start.UTC().Format("150405"), nil
}

func (f *fakeCalendar) DeleteEvent(_ context.Context, _ string, externalID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, externalID)
	return nil
}

type fakeNotifier struct {
	mu            sync.Mutex
	err           error
	confirmations []notify.Confirmation
	reminders     []notify.Reminder
}

func (f *fakeNotifier) SendBookingConfirmation(_ context.Context, c notify.Confirmation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.confirmations = append(f.confirmations, c)
	return nil
}

func (f *fakeNotifier) SendBookingReminder(_ context.Context, r notify.Reminder) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.reminders = append(f.reminders, r)
	return nil
}

type fixture struct {
	app      *App
	store    *MemStore
	cal      *fakeCalendar
	notifier *fakeNotifier
	loc      *time.Location
}

func bogota(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("America/Bogota")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	return loc
}

// newFixture seeds a Bogota host with Monday 09:00-17:00 availability and an
// active 30 minute event type into a fresh MemStore. The clock is Saturday
// 2026-10-17 12:00.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := NewMemStore()
	f := newFixtureOn(t, store)
	f.store = store
	return f
}

// newFixtureOn seeds store like newFixture; f.store stays nil.
func newFixtureOn(t *testing.T, store Store) *fixture {
	t.Helper()
	ctx := context.Background()
	loc := bogota(t)

	must := func(err error) {
		t.Helper()
		if err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	must(store.SaveHost(ctx, &Host{
		ID: testHostID, Name: "Ana Host", Email: "ana@example.com", Slug: "ana", Timezone: "America/Bogota",
	}))
	must(store.CreateEventType(ctx, &EventType{
		ID: testEventID, HostID: testHostID, Title: "Intro Call", Slug: "intro", Duration: 30, IsActive: true, Color: "#3b82f6",
	}))
	must(store.ReplaceAvailability(ctx, testHostID, []AvailabilityTemplate{
		{DayOfWeek: int(time.Monday), StartTime: "09:00", EndTime: "17:00", IsEnabled: true},
		{DayOfWeek: int(time.Tuesday), StartTime: "09:00", EndTime: "12:00", IsEnabled: false},
	}))

	f := &fixture{cal: &fakeCalendar{}, notifier: &fakeNotifier{}, loc: loc}
	f.app = &App{
		Store:           store,
		Calendar:        f.cal,
		Notifier:        f.notifier,
		CalendarTimeout: time.Second,
	}
	f.setNow(time.Date(2026, time.October, 17, 12, 0, 0, 0, loc))
	return f
}

func (f *fixture) setNow(now time.Time) {
	f.app.Now = func() time.Time { return now }
}

// at is 2026-10-19 hh:mm in Bogota.
func (f *fixture) at(hh, mm int) time.Time {
	return time.Date(2026, time.October, 19, hh, mm, 0, 0, f.loc)
}

// seedBooking stores a confirmed booking of the host directly.
func (f *fixture) seedBooking(t *testing.T, id string, start, end time.Time) {
	t.Helper()
	err := f.app.Store.WithHostLock(context.Background(), testHostID, func(tx BookingTx) error {
		return tx.InsertBooking(context.Background(), &Booking{
			ID: id, EventTypeID: testEventID, HostID: testHostID,
			GuestName: "Seed", GuestEmail: "seed@example.com", GuestTimezone: "UTC",
			StartTime: start, EndTime: end, Status: StatusConfirmed,
		})
	})
	if err != nil {
		t.Fatalf("seed booking: %v", err)
	}
}

func validInput(clock string) BookingInput {
	return BookingInput{
		EventTypeID:   testEventID,
		GuestName:     "Guest Person",
		GuestEmail:    "guest@example.com",
		GuestTimezone: "Europe/Madrid",
		Date:          testMonday,
		Time:          clock,
	}
}

func unavailableTimes(slots []Slot) []string {
	var out []string
	for _, s := range slots {
		if !s.Available {
			out = append(out, s.Time)
		}
	}
	return out
}

var errBoom = errors.New("boom")
