package app

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// respondError maps the error taxonomy onto HTTP statuses.
func (a *App) respondError(c *gin.Context, err error) {
	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{"error": verr.Message, "field": verr.Field})
	case errors.Is(err, ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, ErrSlotUnavailable), errors.Is(err, ErrAlreadyCancelled), errors.Is(err, ErrSlugTaken):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, ErrUnauthenticated):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
	default:
		a.logger().Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func badJSON(c *gin.Context) {
	c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
}

// GET /api/public/hosts/:slug
func (a *App) HostPageHandler(c *gin.Context) {
	page, err := a.GetHostPage(c.Request.Context(), c.Param("slug"))
	if err != nil {
		a.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// GET /api/public/hosts/:slug/event-types/:event
func (a *App) PublicEventTypeHandler(c *gin.Context) {
	et, host, err := a.PublicEventType(c.Request.Context(), c.Param("slug"), c.Param("event"))
	if err != nil {
		a.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"event_type": et, "host": host})
}

// GET /api/public/hosts/:slug/event-types/:event/slots?date=YYYY-MM-DD
func (a *App) GetSlotsHandler(c *gin.Context) {
	date := c.Query("date")
	if date == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "date required (YYYY-MM-DD)", "field": "date"})
		return
	}
	slots, err := a.ResolveSlots(c.Request.Context(), c.Param("slug"), c.Param("event"), date)
	if err != nil {
		a.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"date": date, "slots": slots})
}

// POST /api/public/bookings
func (a *App) CreateBookingHandler(c *gin.Context) {
	var req BookingInput
	if err := c.ShouldBindJSON(&req); err != nil {
		badJSON(c)
		return
	}
	b, err := a.CommitBooking(c.Request.Context(), req)
	if err != nil {
		a.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"booking_id": b.ID, "booking": b})
}

// GET /api/public/bookings/:id
func (a *App) BookingDetailsHandler(c *gin.Context) {
	d, err := a.GetBookingDetails(c.Request.Context(), c.Param("id"))
	if err != nil {
		a.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

// GET /api/me/profile
func (a *App) GetProfileHandler(c *gin.Context) {
	h, err := a.GetProfile(c.Request.Context(), HostID(c))
	if err != nil {
		a.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, h)
}

// PUT /api/me/profile
func (a *App) UpdateProfileHandler(c *gin.Context) {
	var req ProfileInput
	if err := c.ShouldBindJSON(&req); err != nil {
		badJSON(c)
		return
	}
	h, err := a.SaveProfile(c.Request.Context(), HostID(c), req)
	if err != nil {
		a.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, h)
}

// GET /api/me/event-types
func (a *App) ListEventTypesHandler(c *gin.Context) {
	out, err := a.ListEventTypes(c.Request.Context(), HostID(c))
	if err != nil {
		a.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// GET /api/me/event-types/:id
func (a *App) GetEventTypeHandler(c *gin.Context) {
	et, err := a.GetEventType(c.Request.Context(), HostID(c), c.Param("id"))
	if err != nil {
		a.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, et)
}

// POST /api/me/event-types
func (a *App) CreateEventTypeHandler(c *gin.Context) {
	var req EventTypeInput
	if err := c.ShouldBindJSON(&req); err != nil {
		badJSON(c)
		return
	}
	et, err := a.CreateEventType(c.Request.Context(), HostID(c), req)
	if err != nil {
		a.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, et)
}

// PUT /api/me/event-types/:id
func (a *App) UpdateEventTypeHandler(c *gin.Context) {
	var req EventTypeInput
	if err := c.ShouldBindJSON(&req); err != nil {
		badJSON(c)
		return
	}
	et, err := a.UpdateEventType(c.Request.Context(), HostID(c), c.Param("id"), req)
	if err != nil {
		a.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, et)
}

// POST /api/me/event-types/:id/toggle
func (a *App) ToggleEventTypeHandler(c *gin.Context) {
	et, err := a.ToggleEventType(c.Request.Context(), HostID(c), c.Param("id"))
	if err != nil {
		a.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, et)
}

// DELETE /api/me/event-types/:id
func (a *App) DeleteEventTypeHandler(c *gin.Context) {
	if err := a.DeleteEventType(c.Request.Context(), HostID(c), c.Param("id")); err != nil {
		a.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// GET /api/me/availability
func (a *App) ListAvailabilityHandler(c *gin.Context) {
	tmpls, err := a.GetAvailability(c.Request.Context(), HostID(c))
	if err != nil {
		a.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, tmpls)
}

// PUT /api/me/availability
// Replaces the whole weekly template.
func (a *App) SetAvailabilityHandler(c *gin.Context) {
	var payload []AvailabilityInput
	if err := c.ShouldBindJSON(&payload); err != nil {
		badJSON(c)
		return
	}
	saved, err := a.SaveAvailability(c.Request.Context(), HostID(c), payload)
	if err != nil {
		a.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, saved)
}

// GET /api/me/bookings?filter=upcoming|past|all
func (a *App) ListBookingsHandler(c *gin.Context) {
	out, err := a.ListBookings(c.Request.Context(), HostID(c), c.Query("filter"))
	if err != nil {
		a.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

type cancelBookingReq struct {
	Reason string `json:"reason"`
}

// POST /api/me/bookings/:id/cancel
func (a *App) CancelBookingHandler(c *gin.Context) {
	var req cancelBookingReq
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badJSON(c)
			return
		}
	}
	if err := a.CancelBooking(c.Request.Context(), HostID(c), c.Param("id"), req.Reason); err != nil {
		a.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// GET /healthz
func (a *App) HealthHandler(c *gin.Context) {
	if err := a.Store.Ping(c.Request.Context()); err != nil {
		a.logger().Warn("health check failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
