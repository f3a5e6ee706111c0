package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scrapinghorse/internal/config"
)

func invokeWithAuth(t *testing.T, cfg *config.Config, apiKey string) *httptest.ResponseRecorder {
	t.Helper()

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/search?query=test", nil)
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	handler := APIKeyAuth(cfg)(func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})
	require.NoError(t, handler(c))
	return rec
}

func TestAPIKeyAuthAcceptsMatchingKey(t *testing.T) {
	cfg := &config.Config{}
	cfg.Server.APIKey = "secret-key"

	rec := invokeWithAuth(t, cfg, "secret-key")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAPIKeyAuthRejectsWrongKey(t *testing.T) {
	cfg := &config.Config{}
	cfg.Server.APIKey = "secret-key"

	rec := invokeWithAuth(t, cfg, "wrong-key")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAPIKeyAuthRejectsMissingKey(t *testing.T) {
	cfg := &config.Config{}
	cfg.Server.APIKey = "secret-key"

	rec := invokeWithAuth(t, cfg, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAPIKeyAuthDisabledWithoutConfiguredKey(t *testing.T) {
	cfg := &config.Config{}

	rec := invokeWithAuth(t, cfg, "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimiterEnforcesBurst(t *testing.T) {
	cfg := &config.Config{}
	cfg.Server.RateLimit = 1
	cfg.Server.RateBurst = 2

	rl := NewRateLimiter(cfg)
	defer rl.Stop()

	e := echo.New()
	handler := rl.Middleware()(func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/search?query=test", nil)
		req.Header.Set("X-API-Key", "burst-key")
		rec := httptest.NewRecorder()
		require.NoError(t, handler(e.NewContext(req, rec)))
		codes = append(codes, rec.Code)
	}

	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestRateLimiterIsolatesKeys(t *testing.T) {
	cfg := &config.Config{}
	cfg.Server.RateLimit = 1
	cfg.Server.RateBurst = 1

	rl := NewRateLimiter(cfg)
	defer rl.Stop()

	e := echo.New()
	handler := rl.Middleware()(func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})

	for _, key := range []string{"key-a", "key-b"} {
		req := httptest.NewRequest(http.MethodGet, "/search?query=test", nil)
		req.Header.Set("X-API-Key", key)
		rec := httptest.NewRecorder()
		require.NoError(t, handler(e.NewContext(req, rec)))
		assert.Equal(t, http.StatusOK, rec.Code, key)
	}
}

func TestRequestValidationAssignsRequestID(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	var seen string
	handler := RequestValidation()(func(c echo.Context) error {
		seen = RequestID(c)
		return c.NoContent(http.StatusOK)
	})
	require.NoError(t, handler(c))

	assert.NotEmpty(t, seen)
	assert.Equal(t, seen, rec.Header().Get("X-Request-ID"))
}
