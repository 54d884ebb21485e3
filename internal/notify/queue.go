package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

const (
	TypeBookingConfirmation = "email:booking_confirmation"
	TypeBookingReminder     = "email:booking_reminder"

	emailQueue      = "email"
	emailMaxRetry   = 5
	emailTaskExpiry = 24 * time.Hour
)

// Enqueuer is the part of *asynq.Client the queue dispatcher needs.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Queue hands emails to asynq so delivery is retried by the worker instead
// of running inside the booking request.
type Queue struct {
	Client Enqueuer
}

func NewConfirmationTask(c Confirmation) (*asynq.Task, error) {
	b, err := json.Marshal(c)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeBookingConfirmation, b), nil
}

func NewReminderTask(r Reminder) (*asynq.Task, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeBookingReminder, b), nil
}

func (q *Queue) SendBookingConfirmation(ctx context.Context, c Confirmation) error {
	task, err := NewConfirmationTask(c)
	if err != nil {
		return err
	}
	return q.enqueue(ctx, task, "confirmation:"+c.BookingID)
}

func (q *Queue) SendBookingReminder(ctx context.Context, r Reminder) error {
	task, err := NewReminderTask(r)
	if err != nil {
		return err
	}
	return q.enqueue(ctx, task, "reminder:"+r.BookingID)
}

func (q *Queue) enqueue(ctx context.Context, task *asynq.Task, id string) error {
	_, err := q.Client.EnqueueContext(ctx, task,
		asynq.Queue(emailQueue),
		asynq.MaxRetry(emailMaxRetry),
		asynq.TaskID(id),
		asynq.Retention(emailTaskExpiry),
	)
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", task.Type(), err)
	}
	return nil
}

// EmailQueues is the asynq queue configuration the worker must serve.
func EmailQueues() map[string]int {
	return map[string]int{emailQueue: 1}
}
