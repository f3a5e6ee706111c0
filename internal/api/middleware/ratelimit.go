package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"

	"scrapinghorse/internal/config"
	"scrapinghorse/pkg/models"
)

// keyLimiter tracks the token bucket for one API key.
type keyLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter applies a per-key token bucket. Unused buckets are evicted
// periodically so the map does not grow with every key ever seen.
type RateLimiter struct {
	config   *config.Config
	mu       sync.Mutex
	limiters map[string]*keyLimiter
	stop     chan struct{}
}

// NewRateLimiter creates a rate limiter from configuration.
func NewRateLimiter(cfg *config.Config) *RateLimiter {
	rl := &RateLimiter{
		config:   cfg,
		limiters: make(map[string]*keyLimiter),
		stop:     make(chan struct{}),
	}

	go rl.cleanupRoutine()
	return rl
}

// Middleware returns the echo middleware applying the limit.
func (rl *RateLimiter) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := c.Request().Header.Get("X-API-Key")
			if key == "" {
				key = c.RealIP()
			}

			if !rl.allow(key) {
				return c.JSON(http.StatusTooManyRequests, models.ErrorResponse{
					Error:     "rate_limited",
					Message:   "Too many requests, slow down",
					RequestID: RequestID(c),
					Timestamp: time.Now(),
				})
			}

			return next(c)
		}
	}
}

func (rl *RateLimiter) allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	kl, exists := rl.limiters[key]
	if !exists {
		kl = &keyLimiter{
			limiter: rate.NewLimiter(rate.Limit(rl.config.Server.RateLimit), rl.config.Server.RateBurst),
		}
		rl.limiters[key] = kl
	}

	kl.lastSeen = time.Now()
	return kl.limiter.Allow()
}

// Stop stops the cleanup routine.
func (rl *RateLimiter) Stop() {
	close(rl.stop)
}

func (rl *RateLimiter) cleanupRoutine() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup()
		case <-rl.stop:
			return
		}
	}
}

func (rl *RateLimiter) cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := time.Now().Add(-10 * time.Minute)
	for key, kl := range rl.limiters {
		if kl.lastSeen.Before(cutoff) {
			delete(rl.limiters, key)
		}
	}
}
