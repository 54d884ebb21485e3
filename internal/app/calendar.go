package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"booking-service/internal/calendar"
)

// GoogleConnectURL returns the consent URL that links hostID's Google
// calendar. The state parameter is signed and expires.
func (a *App) GoogleConnectURL(ctx context.Context, au *Authenticator, hostID string) (string, error) {
	if _, err := a.Store.GetHostByID(ctx, hostID); err != nil {
		return "", err
	}
	state, err := au.signState(hostID)
	if err != nil {
		return "", err
	}
	return a.OAuth.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce), nil
}

// CompleteGoogleConnect exchanges the authorization code and stores the
// token for the host named in state.
func (a *App) CompleteGoogleConnect(ctx context.Context, au *Authenticator, code, state string) (string, error) {
	hostID, err := au.verifyState(state)
	if err != nil {
		return "", err
	}
	tok, err := a.OAuth.Exchange(ctx, code)
	if err != nil {
		return "", invalid("code", "failed to exchange code for token")
	}
	if err := a.Store.SaveToken(ctx, hostID, tok); err != nil {
		return "", err
	}
	a.logger().Info("google calendar connected", zap.String("host_id", hostID))
	return hostID, nil
}

// GoogleAuthHandler starts the OAuth2 flow for the authenticated host.
// GET /api/me/calendar/google/connect
func (a *App) GoogleAuthHandler(au *Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		if a.OAuth == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Google Calendar not configured"})
			return
		}
		url, err := a.GoogleConnectURL(c.Request.Context(), au, HostID(c))
		if err != nil {
			a.respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"auth_url": url})
	}
}

// GoogleOAuth2CallbackHandler finishes the flow started by GoogleAuthHandler.
// GET /oauth2callback
func (a *App) GoogleOAuth2CallbackHandler(au *Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		if a.OAuth == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Google Calendar not configured"})
			return
		}
		if e := c.Query("error"); e != "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "authorization denied: " + e})
			return
		}
		code := c.Query("code")
		if code == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "authorization code required"})
			return
		}
		if _, err := a.CompleteGoogleConnect(c.Request.Context(), au, code, c.Query("state")); err != nil {
			a.respondError(c, err)
			return
		}
		if a.BaseURL != "" {
			c.Redirect(http.StatusFound, a.BaseURL+"/dashboard/settings?calendar=connected")
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Google Calendar connected"})
	}
}

// GET /api/me/calendar/status
func (a *App) CalendarStatusHandler(c *gin.Context) {
	ctx := c.Request.Context()
	hostID := HostID(c)
	tok, err := a.Store.LoadToken(ctx, hostID)
	if err != nil {
		a.respondError(c, err)
		return
	}
	feed, err := a.Store.BusyFeedURL(ctx, hostID)
	if err != nil {
		a.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"google_configured": a.OAuth != nil,
		"google_connected":  tok != nil && tok.RefreshToken != "",
		"busy_feed":         feed != "",
	})
}

// HostBusyIntervals lists the external busy intervals of the host's day,
// bypassing the cache.
func (a *App) HostBusyIntervals(ctx context.Context, hostID, date string) ([]calendar.BusyInterval, error) {
	day, err := time.Parse(dateLayout, date)
	if err != nil {
		return nil, invalid("date", "date must be YYYY-MM-DD")
	}
	host, err := a.Store.GetHostByID(ctx, hostID)
	if err != nil {
		return nil, err
	}
	from, to := dayBounds(day, host.Location())
	cctx, cancel := a.calendarCtx(ctx)
	defer cancel()
	busy, err := a.calendarProvider().ListBusyIntervals(cctx, hostID, from, to)
	if err != nil {
		return nil, err
	}
	if busy == nil {
		busy = []calendar.BusyInterval{}
	}
	return busy, nil
}

// GET /api/me/calendar/busy?date=YYYY-MM-DD
func (a *App) CalendarBusyHandler(c *gin.Context) {
	busy, err := a.HostBusyIntervals(c.Request.Context(), HostID(c), c.Query("date"))
	if err != nil {
		var verr *ValidationError
		if !errors.As(err, &verr) && !errors.Is(err, ErrNotFound) {
			a.logger().Warn("busy lookup failed", zap.String("host_id", HostID(c)), zap.Error(err))
			c.JSON(http.StatusBadGateway, gin.H{"error": "calendar unavailable"})
			return
		}
		a.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"busy": busy, "count": len(busy)})
}
