package ginserver

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	gin "github.com/gin-gonic/gin"

	"activityhub/internal/infra/obs"
)

type CatalogHTTP interface {
	RegisterVendor(c *gin.Context)
	ReviewVendor(c *gin.Context)
	CreateResource(c *gin.Context)
	GetResource(c *gin.Context)
	ListResources(c *gin.Context)
	SetResourceStatus(c *gin.Context)
	ReviewResource(c *gin.Context)
	ResourceStats(c *gin.Context)
}

type AvailabilityHTTP interface {
	CreateWindow(c *gin.Context)
	QueryWindows(c *gin.Context)
	GetWindow(c *gin.Context)
	Flagged(c *gin.Context)
	CloseWindow(c *gin.Context)
	Reconcile(c *gin.Context)
	Reserve(c *gin.Context)
	CommitReservation(c *gin.Context)
	ReleaseReservation(c *gin.Context)
	Calendar(c *gin.Context)
}

type BookingHTTP interface {
	Create(c *gin.Context)
	Get(c *gin.Context)
	History(c *gin.Context)
	Confirm(c *gin.Context)
	Cancel(c *gin.Context)
	Complete(c *gin.Context)
	RedeemTicket(c *gin.Context)
	RevokeTicket(c *gin.Context)
}

type Handlers struct {
	Catalog      CatalogHTTP
	Availability AvailabilityHTTP
	Booking      BookingHTTP
	// Limiter throttles the endpoints that consume capacity.
	Limiter *ClientLimiter
	Metrics http.Handler
}

type Options struct {
	Env  string
	Addr string
}

func NewServer(opts Options, obsMW obs.Middleware, health obs.HealthHandlers, h Handlers) *http.Server {
	return &http.Server{
		Addr:              opts.Addr,
		Handler:           NewRouter(opts.Env, obsMW, health, h),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func NewRouter(env string, obsMW obs.Middleware, health obs.HealthHandlers, h Handlers) *gin.Engine {
	mode := configureGinMode(env)
	if obsMW.Logger != nil {
		obsMW.Logger.Info("gin initialized", slog.String("mode", mode))
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(obsMW.RequestID())
	router.Use(obsMW.AccessLog())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization", idempotencyHeader, obs.RequestIDHeader},
		ExposeHeaders: []string{
			"Content-Length",
			"Content-Type",
			"Retry-After",
			obs.RequestIDHeader,
		},
		MaxAge: 12 * time.Hour,
	}))

	router.GET("/livez", health.Livez)
	router.GET("/readyz", health.Readyz)
	if h.Metrics != nil {
		router.GET("/metrics", gin.WrapH(h.Metrics))
	}

	throttle := func(c *gin.Context) { c.Next() }
	if h.Limiter != nil {
		throttle = h.Limiter.Middleware()
	}

	api := router.Group("/api/v1")
	if h.Catalog != nil {
		api.POST("/vendors", h.Catalog.RegisterVendor)
		api.POST("/vendors/:id/review", h.Catalog.ReviewVendor)
		api.POST("/resources", h.Catalog.CreateResource)
		api.GET("/resources", h.Catalog.ListResources)
		api.GET("/resources/:id", h.Catalog.GetResource)
		api.PATCH("/resources/:id/status", h.Catalog.SetResourceStatus)
		api.POST("/resources/:id/review", h.Catalog.ReviewResource)
		api.GET("/resources/:id/stats", h.Catalog.ResourceStats)
	}
	if h.Availability != nil {
		api.POST("/windows", h.Availability.CreateWindow)
		api.GET("/windows", h.Availability.QueryWindows)
		api.GET("/windows/flagged", h.Availability.Flagged)
		api.GET("/windows/:id", h.Availability.GetWindow)
		api.POST("/windows/:id/close", h.Availability.CloseWindow)
		api.POST("/windows/:id/reconcile", h.Availability.Reconcile)
		api.POST("/reservations", throttle, h.Availability.Reserve)
		api.POST("/reservations/:token/commit", throttle, h.Availability.CommitReservation)
		api.POST("/reservations/:token/release", h.Availability.ReleaseReservation)
		api.GET("/calendar", h.Availability.Calendar)
	}
	if h.Booking != nil {
		api.POST("/bookings", throttle, h.Booking.Create)
		api.GET("/bookings/:id", h.Booking.Get)
		api.GET("/bookings/:id/history", h.Booking.History)
		api.POST("/bookings/:id/confirm", h.Booking.Confirm)
		api.POST("/bookings/:id/cancel", h.Booking.Cancel)
		api.POST("/bookings/:id/complete", h.Booking.Complete)
		api.POST("/tickets/:id/redeem", h.Booking.RedeemTicket)
		api.POST("/tickets/:id/revoke", h.Booking.RevokeTicket)
	}
	return router
}

func configureGinMode(env string) string {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "debug":
		gin.SetMode(gin.DebugMode)
		return gin.DebugMode
	case "test", "testing":
		gin.SetMode(gin.TestMode)
		return gin.TestMode
	default:
		gin.SetMode(gin.ReleaseMode)
		return gin.ReleaseMode
	}
}
