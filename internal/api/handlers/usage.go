package handlers

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"scrapinghorse/internal/api/middleware"
	"scrapinghorse/internal/usage"
	"scrapinghorse/pkg/models"
)

// UsageHandler reports the credits the calling key has burned today.
func UsageHandler(tracker *usage.Tracker) echo.HandlerFunc {
	return func(c echo.Context) error {
		apiKey := c.Request().Header.Get("X-API-Key")

		used, err := tracker.UsedToday(c.Request().Context(), apiKey)
		if err != nil {
			return c.JSON(http.StatusServiceUnavailable, models.ErrorResponse{
				Error:     "usage_unavailable",
				Message:   "Usage counters are temporarily unavailable",
				RequestID: middleware.RequestID(c),
				Timestamp: time.Now(),
			})
		}

		return c.JSON(http.StatusOK, models.UsageResponse{
			Date:        time.Now().UTC().Format("2006-01-02"),
			CreditsUsed: used,
		})
	}
}
