package app

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"
)

// newPGFixture seeds the fixture into the database named by
// TEST_DATABASE_URL, after migrating and emptying it.
func newPGFixture(t *testing.T) (*fixture, *PGStore) {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	pg, err := NewPGStore(ctx, url)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(pg.Close)

	// twice, the schema must be re-runnable
	for i := 0; i < 2; i++ {
		if err := pg.Migrate(ctx); err != nil {
			t.Fatalf("migrate: %v", err)
		}
	}
	if _, err := pg.DB.Exec(ctx,
		`TRUNCATE hosts, event_types, availability_templates, bookings, calendar_credentials CASCADE`); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	return newFixtureOn(t, pg), pg
}

func insertRaw(pg *PGStore, id string, start, end time.Time) error {
	return pg.WithHostLock(context.Background(), testHostID, func(tx BookingTx) error {
		return tx.InsertBooking(context.Background(), &Booking{
			ID: id, EventTypeID: testEventID, HostID: testHostID,
			GuestName: "Raw", GuestEmail: "raw@example.com", GuestTimezone: "UTC",
			StartTime: start, EndTime: end, Status: StatusConfirmed,
		})
	})
}

func TestPGStoreConcurrentCommitsExactlyOneWins(t *testing.T) {
	f, _ := newPGFixture(t)
	assertOneCommitWins(t, f)
}

func TestPGStoreExclusionConstraint(t *testing.T) {
	f, pg := newPGFixture(t)
	ctx := context.Background()

	if err := insertRaw(pg, "b1", f.at(10, 0), f.at(10, 30)); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	// skips FindOverlapping, so only the constraint can refuse it
	if err := insertRaw(pg, "b2", f.at(10, 15), f.at(10, 45)); !errors.Is(err, ErrSlotUnavailable) {
		t.Fatalf("overlapping insert err = %v, want ErrSlotUnavailable", err)
	}
	if _, err := pg.GetBooking(ctx, "b2"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("rolled back booking visible: %v", err)
	}
	if err := insertRaw(pg, "b3", f.at(10, 30), f.at(11, 0)); err != nil {
		t.Fatalf("touching insert: %v", err)
	}

	if err := pg.CancelBooking(ctx, "b1", "moved"); err != nil {
		t.Fatal(err)
	}
	if err := insertRaw(pg, "b4", f.at(10, 0), f.at(10, 30)); err != nil {
		t.Fatalf("insert over a cancelled booking: %v", err)
	}
}

func TestPGStoreFindOverlapping(t *testing.T) {
	f, pg := newPGFixture(t)
	if err := insertRaw(pg, "b1", f.at(10, 0), f.at(11, 0)); err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		name       string
		start, end time.Time
		want       bool
	}{
		{"identical", f.at(10, 0), f.at(11, 0), true},
		{"starts inside", f.at(10, 30), f.at(11, 30), true},
		{"ends inside", f.at(9, 30), f.at(10, 30), true},
		{"contains", f.at(9, 0), f.at(12, 0), true},
		{"inside", f.at(10, 15), f.at(10, 45), true},
		{"touching before", f.at(9, 30), f.at(10, 0), false},
		{"touching after", f.at(11, 0), f.at(11, 30), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var got *Booking
			err := pg.WithHostLock(context.Background(), testHostID, func(tx BookingTx) error {
				var err error
				got, err = tx.FindOverlapping(context.Background(), testHostID, tc.start, tc.end)
				return err
			})
			if err != nil {
				t.Fatal(err)
			}
			if (got != nil) != tc.want {
				t.Fatalf("overlapping = %+v, want %v", got, tc.want)
			}
			if got != nil && got.ID != "b1" {
				t.Fatalf("found %s", got.ID)
			}
		})
	}
}

func TestPGStoreCancelBooking(t *testing.T) {
	f, pg := newPGFixture(t)
	ctx := context.Background()
	if err := insertRaw(pg, "b1", f.at(10, 0), f.at(10, 30)); err != nil {
		t.Fatal(err)
	}

	if err := pg.CancelBooking(ctx, "b1", "first"); err != nil {
		t.Fatal(err)
	}
	if err := pg.CancelBooking(ctx, "b1", "second"); !errors.Is(err, ErrAlreadyCancelled) {
		t.Fatalf("second cancel err = %v", err)
	}
	b, err := pg.GetBooking(ctx, "b1")
	if err != nil || b.Status != StatusCancelled || b.CancelReason != "first" {
		t.Fatalf("booking = %+v, %v", b, err)
	}
	if err := pg.CancelBooking(ctx, "missing", ""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing booking err = %v", err)
	}
}

func TestPGStoreCommitAndList(t *testing.T) {
	f, pg := newPGFixture(t)
	ctx := context.Background()

	b, err := f.app.CommitBooking(ctx, validInput("10:00"))
	if err != nil {
		t.Fatalf("CommitBooking: %v", err)
	}
	if _, err := f.app.CommitBooking(ctx, validInput("10:00")); !errors.Is(err, ErrSlotUnavailable) {
		t.Fatalf("second commit err = %v", err)
	}
	list, err := f.app.ListBookings(ctx, testHostID, "upcoming")
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].ID != b.ID || list[0].EventTitle != "Intro Call" {
		t.Fatalf("list = %+v", list)
	}

	err = pg.SaveHost(ctx, &Host{ID: "host-2", Name: "Ben", Slug: "ana", Timezone: "UTC"})
	if !errors.Is(err, ErrSlugTaken) {
		t.Fatalf("taken slug err = %v", err)
	}
}
