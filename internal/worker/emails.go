package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"booking-service/internal/notify"
)

const emailConcurrency = 5

// EmailWorker delivers the emails queued by notify.Queue.
type EmailWorker struct {
	srv *asynq.Server
	mux *asynq.ServeMux
	log *zap.Logger
}

func NewEmailWorker(redis asynq.RedisClientOpt, mailer notify.Dispatcher, log *zap.Logger) *EmailWorker {
	srv := asynq.NewServer(redis, asynq.Config{
		Concurrency: emailConcurrency,
		Queues:      notify.EmailQueues(),
		Logger:      log.Sugar(),
	})
	return &EmailWorker{srv: srv, mux: NewEmailMux(mailer, log), log: log}
}

// NewEmailMux routes email task types to mailer.
func NewEmailMux(mailer notify.Dispatcher, log *zap.Logger) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(notify.TypeBookingConfirmation, handleConfirmation(mailer, log))
	mux.HandleFunc(notify.TypeBookingReminder, handleReminder(mailer, log))
	return mux
}

// Start runs the worker in the background.
func (w *EmailWorker) Start() error {
	w.log.Info("starting email worker")
	return w.srv.Start(w.mux)
}

func (w *EmailWorker) Shutdown() {
	w.srv.Shutdown()
	w.log.Info("email worker stopped")
}

func handleConfirmation(mailer notify.Dispatcher, log *zap.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, task *asynq.Task) error {
		var c notify.Confirmation
		if err := json.Unmarshal(task.Payload(), &c); err != nil {
			log.Error("invalid confirmation payload", zap.Error(err))
			return fmt.Errorf("decode payload: %v: %w", err, asynq.SkipRetry)
		}
		if err := mailer.SendBookingConfirmation(ctx, c); err != nil {
			log.Warn("confirmation delivery failed", zap.String("booking_id", c.BookingID), zap.Error(err))
			return err
		}
		return nil
	}
}

func handleReminder(mailer notify.Dispatcher, log *zap.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, task *asynq.Task) error {
		var r notify.Reminder
		if err := json.Unmarshal(task.Payload(), &r); err != nil {
			log.Error("invalid reminder payload", zap.Error(err))
			return fmt.Errorf("decode payload: %v: %w", err, asynq.SkipRetry)
		}
		if err := mailer.SendBookingReminder(ctx, r); err != nil {
			log.Warn("reminder delivery failed", zap.String("booking_id", r.BookingID), zap.Error(err))
			return err
		}
		return nil
	}
}
