package handlers

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"scrapinghorse/internal/scraper/workers"
	"scrapinghorse/internal/usage"
	"scrapinghorse/pkg/models"
)

const serviceVersion = "1.0.0"

var startTime = time.Now()

// HealthHandler handles health check requests
func HealthHandler(c echo.Context) error {
	return c.JSON(http.StatusOK, models.HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now(),
		Version:   serviceVersion,
		Uptime:    time.Since(startTime),
		Checks: map[string]string{
			"api": "ok",
		},
	})
}

// ReadinessHandler reports whether the service can take traffic: at least
// one browser worker must be live.
func ReadinessHandler(poolManager *workers.PoolManager, tracker *usage.Tracker) echo.HandlerFunc {
	return func(c echo.Context) error {
		checks := map[string]string{
			"api": "ok",
		}
		status := "ready"
		code := http.StatusOK

		if poolManager.IsHealthy() {
			checks["workers"] = "ok"
		} else {
			checks["workers"] = "unavailable"
			status = "not_ready"
			code = http.StatusServiceUnavailable
		}

		if tracker != nil {
			if err := tracker.IsHealthy(c.Request().Context()); err != nil {
				// Metering is best effort, degraded Redis does not block traffic
				checks["redis"] = "degraded"
			} else {
				checks["redis"] = "ok"
			}
		}

		return c.JSON(code, models.HealthResponse{
			Status:    status,
			Timestamp: time.Now(),
			Version:   serviceVersion,
			Uptime:    time.Since(startTime),
			Checks:    checks,
		})
	}
}

// LivenessHandler handles liveness probe requests
func LivenessHandler(c echo.Context) error {
	return c.JSON(http.StatusOK, models.HealthResponse{
		Status:    "alive",
		Timestamp: time.Now(),
		Version:   serviceVersion,
		Uptime:    time.Since(startTime),
	})
}
