package router // route registration for the gate service API

import (
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/tempora/schedgate/internal/config"
	"github.com/tempora/schedgate/internal/handler"
	"github.com/tempora/schedgate/internal/middleware"
)

// RegisterRoutes registers routes that do not require authentication.
// Currently that is only the health check, used by load balancers to
// verify the service is up.
func RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", handler.Health)
}

// RegisterAuth registers the credential-exchange endpoint.  It is the
// only unauthenticated POST: callers trade their client id and secret
// for the bearer token every other endpoint requires.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler) {
	e.POST("/v1/auth/token", a.Token)
}

// RegisterGates registers the gate endpoints behind bearer auth, the
// rate limiter and, for the status read, the Redis response cache.
// The status route is a plain read; confirm and cancel are terminal
// transitions and are never cached.  Gate issuance is restricted to
// callers holding the scheduler role.
func RegisterGates(e *echo.Echo, g *handler.GateHandler, jwtSecret string, rdb *redis.Client) {
	auth := e.Group("/v1")
	auth.Use(middleware.BearerAuth(jwtSecret))
	auth.Use(middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb))

	statusCache := middleware.NewRedisCache(config.LoadCacheConfig(), rdb)
	auth.GET("/gates/:token/status", g.GetStatus, statusCache)

	auth.POST("/gates/:token/confirm", g.Confirm)
	auth.POST("/gates/:token/cancel", g.Cancel)

	auth.POST("/gates", g.Create, middleware.RequireRole("scheduler"))
}

// RegisterOps registers the operational surface: interval-job control
// and API client provisioning, both limited to the scheduler role.
func RegisterOps(e *echo.Echo, o *handler.OpsHandler, a *handler.AuthHandler, jwtSecret string) {
	ops := e.Group("/v1/ops")
	ops.Use(middleware.BearerAuth(jwtSecret))
	ops.Use(middleware.RequireRole("scheduler"))
	ops.GET("/jobs/:name", o.JobStatus)
	ops.POST("/jobs/:name/run", o.RunJob)
	ops.POST("/jobs/:name/start", o.StartJob)
	ops.POST("/jobs/:name/stop", o.StopJob)
	ops.POST("/clients", a.RegisterClient)
}
