package calendar

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const primaryCalendar = "primary"

// TokenStore persists the OAuth token of each host's connected Google account.
// LoadToken returns (nil, nil) when the host never connected.
type TokenStore interface {
	LoadToken(ctx context.Context, hostID string) (*oauth2.Token, error)
	SaveToken(ctx context.Context, hostID string, tok *oauth2.Token) error
}

// NewGoogleOAuthConfig returns the OAuth2 client configuration for Google
// Calendar, or nil when any of the credentials is missing.
func NewGoogleOAuthConfig(clientID, clientSecret, redirectURL string) *oauth2.Config {
	if clientID == "" || clientSecret == "" || redirectURL == "" {
		return nil
	}
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Scopes: []string{
			gcal.CalendarEventsScope,
		},
		Endpoint: google.Endpoint,
	}
}

// Google reads busy times from, and mirrors bookings into, the host's
// primary Google calendar.
type Google struct {
	OAuth  *oauth2.Config
	Tokens TokenStore
	Log    *zap.Logger
}

func (g *Google) service(ctx context.Context, hostID string) (*gcal.Service, error) {
	if g.OAuth == nil {
		return nil, ErrNotConnected
	}
	tok, err := g.Tokens.LoadToken(ctx, hostID)
	if err != nil {
		return nil, fmt.Errorf("load google token: %w", err)
	}
	if tok == nil || (tok.AccessToken == "" && tok.RefreshToken == "") {
		return nil, ErrNotConnected
	}

	src := &savingTokenSource{
		base:   g.OAuth.TokenSource(context.WithoutCancel(ctx), tok),
		last:   tok.AccessToken,
		hostID: hostID,
		store:  g.Tokens,
		log:    g.Log,
	}
	client := oauth2.NewClient(ctx, oauth2.ReuseTokenSource(tok, src))

	srv, err := gcal.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("create calendar service: %w", err)
	}
	return srv, nil
}

// ListBusyIntervals returns the host's busy events overlapping [start, end).
// Cancelled events and events the host declined are skipped. A host without
// a connected account has no busy intervals.
func (g *Google) ListBusyIntervals(ctx context.Context, hostID string, start, end time.Time) ([]BusyInterval, error) {
	srv, err := g.service(ctx, hostID)
	if errors.Is(err, ErrNotConnected) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	loc := start.Location()
	var out []BusyInterval
	pageToken := ""
	for {
		call := srv.Events.List(primaryCalendar).
			TimeMin(start.Format(time.RFC3339)).
			TimeMax(end.Format(time.RFC3339)).
			SingleEvents(true).
			OrderBy("startTime").
			MaxResults(250).
			Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		events, err := call.Do()
		if err != nil {
			return nil, fmt.Errorf("list google events: %w", err)
		}
		for _, item := range events.Items {
			if b, ok := busyFromEvent(item, loc); ok {
				out = append(out, b)
			}
		}
		if events.NextPageToken == "" {
			break
		}
		pageToken = events.NextPageToken
	}
	return out, nil
}

func busyFromEvent(item *gcal.Event, loc *time.Location) (BusyInterval, bool) {
	if item == nil || item.Status == "cancelled" {
		return BusyInterval{}, false
	}
	for _, a := range item.Attendees {
		if a.Self && a.ResponseStatus == "declined" {
			return BusyInterval{}, false
		}
	}
	if item.Start == nil || item.End == nil {
		return BusyInterval{}, false
	}

	// All-day events carry a date, timed events a date-time.
	if item.Start.DateTime == "" {
		if item.Start.Date == "" || item.End.Date == "" {
			return BusyInterval{}, false
		}
		s, err := time.ParseInLocation("2006-01-02", item.Start.Date, loc)
		if err != nil {
			return BusyInterval{}, false
		}
		e, err := time.ParseInLocation("2006-01-02", item.End.Date, loc)
		if err != nil {
			return BusyInterval{}, false
		}
		return BusyInterval{Start: s, End: e, AllDay: true}, true
	}

	s, err := time.Parse(time.RFC3339, item.Start.DateTime)
	if err != nil {
		return BusyInterval{}, false
	}
	e, err := time.Parse(time.RFC3339, item.End.DateTime)
	if err != nil {
		return BusyInterval{}, false
	}
	return BusyInterval{Start: s, End: e}, true
}

// CreateEvent inserts the mirror event with the guest as attendee and
// email/popup reminders.
func (g *Google) CreateEvent(ctx context.Context, hostID string, ev EventRequest) (string, error) {
	srv, err := g.service(ctx, hostID)
	if err != nil {
		return "", err
	}

	desc := ev.Description
	if desc == "" {
		desc = "Meeting with " + ev.AttendeeName
	}
	event := &gcal.Event{
		Summary:     ev.Title,
		Description: desc,
		Start: &gcal.EventDateTime{
			DateTime: ev.Start.Format(time.RFC3339),
			TimeZone: ev.Timezone,
		},
		End: &gcal.EventDateTime{
			DateTime: ev.End.Format(time.RFC3339),
			TimeZone: ev.Timezone,
		},
		Attendees: []*gcal.EventAttendee{
			{Email: ev.AttendeeEmail, DisplayName: ev.AttendeeName},
		},
		Reminders: &gcal.EventReminders{
			UseDefault: false,
			Overrides: []*gcal.EventReminder{
				{Method: "email", Minutes: 60},
				{Method: "popup", Minutes: 30},
			},
			ForceSendFields: []string{"UseDefault"},
		},
	}

	created, err := srv.Events.Insert(primaryCalendar, event).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("insert google event: %w", err)
	}
	return created.Id, nil
}

// DeleteEvent removes a mirror event. An event that is already gone counts
// as deleted.
func (g *Google) DeleteEvent(ctx context.Context, hostID, externalID string) error {
	srv, err := g.service(ctx, hostID)
	if err != nil {
		return err
	}
	err = srv.Events.Delete(primaryCalendar, externalID).Context(ctx).Do()
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && (apiErr.Code == http.StatusGone || apiErr.Code == http.StatusNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("delete google event: %w", err)
	}
	return nil
}

// savingTokenSource persists refreshed tokens so the next request starts
// from the new access token.
type savingTokenSource struct {
	base   oauth2.TokenSource
	last   string
	hostID string
	store  TokenStore
	log    *zap.Logger
}

func (s *savingTokenSource) Token() (*oauth2.Token, error) {
	tok, err := s.base.Token()
	if err != nil {
		return nil, err
	}
	if tok.AccessToken != s.last {
		s.last = tok.AccessToken
		if err := s.store.SaveToken(context.Background(), s.hostID, tok); err != nil && s.log != nil {
			s.log.Warn("persist refreshed google token failed", zap.String("host_id", s.hostID), zap.Error(err))
		}
	}
	return tok, nil
}
