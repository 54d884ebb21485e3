package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"booking-service/internal/notify"
)

type recordingMailer struct {
	err           error
	confirmations []notify.Confirmation
	reminders     []notify.Reminder
}

func (m *recordingMailer) SendBookingConfirmation(_ context.Context, c notify.Confirmation) error {
	m.confirmations = append(m.confirmations, c)
	return m.err
}

func (m *recordingMailer) SendBookingReminder(_ context.Context, r notify.Reminder) error {
	m.reminders = append(m.reminders, r)
	return m.err
}

func TestEmailMuxDeliversTasks(t *testing.T) {
	mailer := &recordingMailer{}
	mux := NewEmailMux(mailer, zap.NewNop())
	start := time.Date(2026, time.October, 19, 15, 0, 0, 0, time.UTC)

	conf, err := notify.NewConfirmationTask(notify.Confirmation{BookingID: "b1", GuestEmail: "g@example.com", Start: start})
	if err != nil {
		t.Fatal(err)
	}
	if err := mux.ProcessTask(context.Background(), conf); err != nil {
		t.Fatalf("confirmation: %v", err)
	}
	rem, err := notify.NewReminderTask(notify.Reminder{BookingID: "b2", Start: start})
	if err != nil {
		t.Fatal(err)
	}
	if err := mux.ProcessTask(context.Background(), rem); err != nil {
		t.Fatalf("reminder: %v", err)
	}

	if len(mailer.confirmations) != 1 || mailer.confirmations[0].BookingID != "b1" || !mailer.confirmations[0].Start.Equal(start) {
		t.Fatalf("confirmations = %+v", mailer.confirmations)
	}
	if len(mailer.reminders) != 1 || mailer.reminders[0].BookingID != "b2" {
		t.Fatalf("reminders = %+v", mailer.reminders)
	}
}

func TestEmailMuxErrors(t *testing.T) {
	mailer := &recordingMailer{}
	mux := NewEmailMux(mailer, zap.NewNop())

	bad := asynq.NewTask(notify.TypeBookingConfirmation, []byte("{"))
	if err := mux.ProcessTask(context.Background(), bad); !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("bad payload err = %v, want SkipRetry", err)
	}
	if len(mailer.confirmations) != 0 {
		t.Fatal("mailer called for a bad payload")
	}

	boom := errors.New("smtp down")
	mailer.err = boom
	task, _ := notify.NewReminderTask(notify.Reminder{BookingID: "b3"})
	err := mux.ProcessTask(context.Background(), task)
	if !errors.Is(err, boom) || errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("delivery failure err = %v, want retryable", err)
	}
}

type countingSweeper struct {
	calls int
	err   error
}

func (s *countingSweeper) SendReminders(ctx context.Context) (int, int, error) {
	s.calls++
	if _, ok := ctx.Deadline(); !ok {
		return 0, 0, errors.New("sweep without deadline")
	}
	return 3, 1, s.err
}

func TestReminderScheduler(t *testing.T) {
	sweeper := &countingSweeper{}
	rs, err := NewReminderScheduler("0 * * * *", sweeper, zap.NewNop())
	if err != nil {
		t.Fatalf("NewReminderScheduler: %v", err)
	}
	rs.RunOnce(context.Background())
	sweeper.err = errors.New("db down")
	rs.RunOnce(context.Background())
	if sweeper.calls != 2 {
		t.Fatalf("calls = %d", sweeper.calls)
	}

	rs.Start()
	rs.Stop()

	if _, err := NewReminderScheduler("every hour", sweeper, zap.NewNop()); err == nil {
		t.Fatal("invalid schedule accepted")
	}
}
