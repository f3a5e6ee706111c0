package middleware

import (
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"scrapinghorse/internal/config"
	"scrapinghorse/pkg/models"
)

// APIKeyAuth rejects requests whose X-API-Key header does not match the
// configured key. When no key is configured the check is disabled, which is
// the local-development mode.
func APIKeyAuth(cfg *config.Config) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if cfg.Server.APIKey == "" {
				return next(c)
			}

			provided := c.Request().Header.Get("X-API-Key")
			if subtle.ConstantTimeCompare([]byte(provided), []byte(cfg.Server.APIKey)) != 1 {
				return c.JSON(http.StatusUnauthorized, models.ErrorResponse{
					Error:     "unauthorized",
					Message:   "Invalid or missing API key",
					RequestID: RequestID(c),
					Timestamp: time.Now(),
				})
			}

			return next(c)
		}
	}
}
