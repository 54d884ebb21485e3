package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const sweepTimeout = 5 * time.Minute

// Sweeper sends the reminders that are due now.
type Sweeper interface {
	SendReminders(ctx context.Context) (sent, failed int, err error)
}

// ReminderScheduler runs the reminder sweep on a cron schedule.
type ReminderScheduler struct {
	cron    *cron.Cron
	sweeper Sweeper
	log     *zap.Logger
}

// NewReminderScheduler parses a standard five-field cron spec.
func NewReminderScheduler(spec string, sweeper Sweeper, log *zap.Logger) (*ReminderScheduler, error) {
	rs := &ReminderScheduler{
		cron:    cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		sweeper: sweeper,
		log:     log,
	}
	if _, err := rs.cron.AddFunc(spec, func() { rs.RunOnce(context.Background()) }); err != nil {
		return nil, fmt.Errorf("reminder schedule %q: %w", spec, err)
	}
	return rs, nil
}

// RunOnce performs a single sweep.
func (rs *ReminderScheduler) RunOnce(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, sweepTimeout)
	defer cancel()

	start := time.Now()
	sent, failed, err := rs.sweeper.SendReminders(ctx)
	if err != nil {
		rs.log.Error("reminder sweep failed", zap.Error(err))
		return
	}
	rs.log.Info("reminder sweep done",
		zap.Int("sent", sent), zap.Int("failed", failed), zap.Duration("took", time.Since(start)))
}

func (rs *ReminderScheduler) Start() {
	rs.cron.Start()
	rs.log.Info("reminder scheduler started")
}

// Stop waits for a running sweep to finish.
func (rs *ReminderScheduler) Stop() {
	<-rs.cron.Stop().Done()
	rs.log.Info("reminder scheduler stopped")
}
