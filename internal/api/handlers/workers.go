package handlers

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"scrapinghorse/internal/api/middleware"
	"scrapinghorse/internal/scraper/workers"
	"scrapinghorse/pkg/models"
)

// WorkerStatsHandler exposes pool and job counters for monitoring.
func WorkerStatsHandler(poolManager *workers.PoolManager) echo.HandlerFunc {
	return func(c echo.Context) error {
		stats, err := poolManager.GetStats()
		if err != nil {
			return c.JSON(http.StatusServiceUnavailable, models.ErrorResponse{
				Error:     "pool_unavailable",
				Message:   err.Error(),
				RequestID: middleware.RequestID(c),
				Timestamp: time.Now(),
			})
		}

		return c.JSON(http.StatusOK, stats)
	}
}
