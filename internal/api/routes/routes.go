package routes

import (
	"net/http"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"

	"scrapinghorse/internal/api/handlers"
	"scrapinghorse/internal/api/middleware"
	"scrapinghorse/internal/config"
	"scrapinghorse/internal/scraper/workers"
	"scrapinghorse/internal/usage"
)

// SetupRoutes configures all API routes
func SetupRoutes(e *echo.Echo, cfg *config.Config, poolManager *workers.PoolManager, tracker *usage.Tracker, rateLimiter *middleware.RateLimiter) {
	// Global middleware
	e.Use(echomiddleware.Logger())
	e.Use(echomiddleware.Recover())
	e.Use(middleware.CORSConfig())
	e.Use(middleware.RequestValidation())
	// Searches poll the page up to the hard timeout, the HTTP layer must
	// outlive them
	e.Use(middleware.TimeoutConfig(cfg.Workers.HardTimeout + cfg.Server.ReadTimeout))

	// Health check routes, unauthenticated for probes
	health := e.Group("/health")
	{
		health.GET("", handlers.HealthHandler)
		health.GET("/ready", handlers.ReadinessHandler(poolManager, tracker))
		health.GET("/live", handlers.LivenessHandler)
	}

	// Search route, key-gated and rate limited
	e.GET("/search",
		handlers.SearchHandler(cfg, poolManager, tracker),
		middleware.APIKeyAuth(cfg),
		rateLimiter.Middleware(),
	)

	// Worker monitoring routes
	workerGroup := e.Group("/workers", middleware.APIKeyAuth(cfg))
	{
		workerGroup.GET("/stats", handlers.WorkerStatsHandler(poolManager))
	}

	// Per-key usage counters
	e.GET("/usage", handlers.UsageHandler(tracker), middleware.APIKeyAuth(cfg))

	// Root route
	e.GET("/", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"service": "scrapinghorse",
			"version": "1.0.0",
			"status":  "running",
		})
	})
}
