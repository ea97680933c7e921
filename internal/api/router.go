package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"visitor-parking-backend/config"
	"visitor-parking-backend/internal/mw"
)

// NewRouter creates and configures a new Gin router.
func NewRouter(cfg *config.ServerConfig, h *Handler) *gin.Engine {
	r := gin.Default()

	rateLimiter := mw.RateLimiter(rate.Limit(cfg.RateLimitPerSec), cfg.RateLimitBurst)

	// Availability answers change every sensor cycle, so the cache TTL is
	// short. A negative TTL disables caching, which the test suite relies
	// on.
	caching := func(c *gin.Context) { c.Next() }
	if cfg.CacheTTLSeconds > 0 {
		ttl := time.Duration(cfg.CacheTTLSeconds) * time.Second
		cacheStore := cache.New(ttl, 2*ttl)
		caching = mw.Cache(cacheStore, ttl)
	}

	r.Use(rateLimiter)

	r.POST("/auth/login", h.Login)
	r.GET("/disponibilidad", caching, h.GetAvailability)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	authed := r.Group("/", h.auth.Middleware())
	{
		authed.GET("/dashboard/estados", caching, h.GetSlotStates)
		authed.POST("/dashboard/refrescar", h.RefreshOccupancy)

		authed.POST("/reservas", h.CreateReservation)
		authed.GET("/reservas", h.ListMyReservations)
		authed.GET("/reservas/pendientes", h.ListPendingReservations)
		authed.GET("/reservas/asignadas", h.ListAssignedReservations)
		authed.POST("/reservas/:id/asignar", h.AssignReservation)
		authed.POST("/reservas/:id/desasignar", h.UnassignReservation)
		authed.DELETE("/reservas/:id", h.CancelReservation)

		authed.POST("/vehiculos/visitante", h.RegisterVehicle)
		authed.GET("/historial", h.GetHistory)

		authed.GET("/subscriptions", h.GetSubscription)
		authed.PUT("/subscriptions", h.PutSubscription)
		authed.DELETE("/subscriptions", h.DeleteSubscription)
		authed.GET("/vapid_public_key", h.GetVAPIDPublicKey)
	}

	return r
}
