package app

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RouterOptions configures the HTTP surface around the App.
type RouterOptions struct {
	Auth            *Authenticator
	RateLimitPerMin int
	AllowedOrigins  []string
	// TrustedProxies may set X-Forwarded-For. Empty trusts none.
	TrustedProxies  []string
}

func NewRouter(a *App, opts RouterOptions) *gin.Engine {
	log := a.logger()

	router := gin.New()
	if err := router.SetTrustedProxies(opts.TrustedProxies); err != nil {
		log.Error("invalid trusted proxies, forwarding headers ignored", zap.Error(err))
		_ = router.SetTrustedProxies(nil)
	}
	router.Use(Recover(log))
	router.Use(AccessLog(log))

	corsCfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Authorization", "Content-Type"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	if len(opts.AllowedOrigins) == 0 || (len(opts.AllowedOrigins) == 1 && opts.AllowedOrigins[0] == "*") {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = opts.AllowedOrigins
		corsCfg.AllowCredentials = true
	}
	router.Use(cors.New(corsCfg))

	router.GET("/healthz", a.HealthHandler)
	// OAuth2 callback (must be outside auth middleware)
	router.GET("/oauth2callback", a.GoogleOAuth2CallbackHandler(opts.Auth))

	api := router.Group("/api")

	public := api.Group("/public")
	public.Use(NewRateLimiter(opts.RateLimitPerMin).Middleware(log))
	{
		public.GET("/hosts/:slug", a.HostPageHandler)
		public.GET("/hosts/:slug/event-types/:event", a.PublicEventTypeHandler)
		public.GET("/hosts/:slug/event-types/:event/slots", a.GetSlotsHandler)
		public.POST("/bookings", a.CreateBookingHandler)
		public.GET("/bookings/:id", a.BookingDetailsHandler)
	}

	me := api.Group("/me")
	me.Use(opts.Auth.Middleware())
	{
		me.GET("/profile", a.GetProfileHandler)
		me.PUT("/profile", a.UpdateProfileHandler)

		me.GET("/event-types", a.ListEventTypesHandler)
		me.POST("/event-types", a.CreateEventTypeHandler)
		me.GET("/event-types/:id", a.GetEventTypeHandler)
		me.PUT("/event-types/:id", a.UpdateEventTypeHandler)
		me.POST("/event-types/:id/toggle", a.ToggleEventTypeHandler)
		me.DELETE("/event-types/:id", a.DeleteEventTypeHandler)

		me.GET("/availability", a.ListAvailabilityHandler)
		me.PUT("/availability", a.SetAvailabilityHandler)

		me.GET("/bookings", a.ListBookingsHandler)
		me.POST("/bookings/:id/cancel", a.CancelBookingHandler)
		me.DELETE("/bookings/:id", a.CancelBookingHandler)

		me.GET("/calendar/status", a.CalendarStatusHandler)
		me.GET("/calendar/busy", a.CalendarBusyHandler)
		me.GET("/calendar/google/connect", a.GoogleAuthHandler(opts.Auth))
	}

	return router
}
