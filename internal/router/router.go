// Package router assembles the Echo route table.  All /api/v1 routes
// require a verified bearer token; mutating case routes additionally
// carry the idempotency envelope, and claiming is restricted to rescuer
// roles before the handler ever runs.
package router

import (
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/strayaid/rescue-dispatch/internal/config"
	"github.com/strayaid/rescue-dispatch/internal/handler"
	"github.com/strayaid/rescue-dispatch/internal/middleware"
	"github.com/strayaid/rescue-dispatch/internal/model"
)

// Deps bundles everything the route table needs.
type Deps struct {
	JWTSecret string
	RateLimit config.RateLimitConfig
	FeedCache config.CacheConfig
	Redis     *redis.Client

	Health   *handler.HealthHandler
	Cases    *handler.CaseHandler
	Media    *handler.MediaHandler
	Profiles *handler.ProfileHandler

	Idempotency middleware.ReplayStore
}

// New builds the Echo instance with all routes and middleware attached.
func New(d Deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Recover())

	e.GET("/healthz", d.Health.Check)

	api := e.Group("/api/v1",
		middleware.JWTAuth(d.JWTSecret),
		middleware.RateLimit(d.RateLimit, d.Redis),
	)

	idem := middleware.Idempotency(d.Idempotency)

	api.POST("/cases", d.Cases.Create, idem)
	api.GET("/cases", d.Cases.ListNearby, middleware.FeedCache(d.FeedCache, d.Redis))
	api.GET("/cases/:id", d.Cases.Get)
	api.POST("/cases/:id/claim", d.Cases.Claim, middleware.RequireRole(model.RescuerRoles...), idem)
	api.POST("/cases/:id/transition", d.Cases.Transition, idem)
	api.POST("/cases/:id/media", d.Media.Attach, idem)
	api.GET("/cases/:id/media/:kind", d.Media.DownloadURL)
	api.GET("/media/upload-url", d.Media.UploadURL)

	api.GET("/me", d.Profiles.Me)
	api.PUT("/profile/area", d.Profiles.UpdateArea)
	api.PUT("/profile/location", d.Profiles.UpdateLocation)
	api.PUT("/profile/fcm-token", d.Profiles.UpdateToken)

	return e
}
