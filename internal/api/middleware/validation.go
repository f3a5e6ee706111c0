package middleware

import (
	"github.com/labstack/echo/v4"

	"scrapinghorse/pkg/utils"
)

// RequestValidation tags every request with an ID for log correlation.
func RequestValidation() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			requestID := utils.GenerateRequestID()
			c.Set("request_id", requestID)
			c.Response().Header().Set("X-Request-ID", requestID)

			return next(c)
		}
	}
}

// RequestID returns the request ID set by RequestValidation.
func RequestID(c echo.Context) string {
	if id, ok := c.Get("request_id").(string); ok {
		return id
	}
	return ""
}
