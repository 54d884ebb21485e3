package app

import (
	"context"
	"time"
	_ "time/tzdata"

	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"booking-service/internal/calendar"
	"booking-service/internal/notify"
)

const defaultCalendarTimeout = 5 * time.Second

// App holds the collaborators every operation and handler runs against.
type App struct {
	Store    Store
	Calendar calendar.Provider
	// BusyCache, when set, serves busy intervals on the read path. Commits
	// always go to Calendar.
	BusyCache calendar.BusyReader
	Notifier  notify.Dispatcher
	Log       *zap.Logger

	// OAuth is the Google client configuration, nil when not configured.
	OAuth     *oauth2.Config
	JWTSecret []byte
	BaseURL   string

	CalendarTimeout time.Duration
	Now             func() time.Time
}

func (a *App) now() time.Time {
	if a.Now != nil {
		return a.Now()
	}
	return time.Now()
}

func (a *App) calendarCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	d := a.CalendarTimeout
	if d <= 0 {
		d = defaultCalendarTimeout
	}
	return context.WithTimeout(ctx, d)
}

func (a *App) logger() *zap.Logger {
	if a.Log != nil {
		return a.Log
	}
	return zap.NewNop()
}

func (a *App) calendarProvider() calendar.Provider {
	if a.Calendar != nil {
		return a.Calendar
	}
	return calendar.Disabled{}
}

func (a *App) busyReader() calendar.BusyReader {
	if a.BusyCache != nil {
		return a.BusyCache
	}
	return a.calendarProvider()
}

func (a *App) notifier() notify.Dispatcher {
	if a.Notifier != nil {
		return a.Notifier
	}
	return notify.Disabled{Log: a.Log}
}
