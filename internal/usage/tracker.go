package usage

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"scrapinghorse/internal/config"
	"scrapinghorse/internal/logging"
	"scrapinghorse/internal/logging/types"
)

const counterTTL = 40 * 24 * time.Hour

// Tracker meters per-key usage in Redis. Every completed search burns one
// credit; counters roll over daily and expire on their own.
type Tracker struct {
	client *redis.Client
	logger types.Logger
}

// NewTracker creates a tracker connected to the configured Redis instance.
func NewTracker(cfg *config.Config) *Tracker {
	opts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		opts = &redis.Options{
			Addr: "localhost:6379",
		}
	}
	if cfg.Redis.Password != "" {
		opts.Password = cfg.Redis.Password
	}
	if cfg.Redis.DB != 0 {
		opts.DB = cfg.Redis.DB
	}

	opts.DialTimeout = cfg.Redis.Timeout
	opts.ReadTimeout = cfg.Redis.Timeout
	opts.WriteTimeout = cfg.Redis.Timeout

	return &Tracker{
		client: redis.NewClient(opts),
		logger: logging.GetGlobalLogger().WithField("component", "usage_tracker"),
	}
}

// Record burns credits for one completed search and returns the key's total
// for the current day. Metering failures never fail the request; the spent
// credits are still reported to the caller.
func (t *Tracker) Record(ctx context.Context, apiKey string, credits int) int {
	key := t.dailyKey(apiKey)

	total, err := t.client.IncrBy(ctx, key, int64(credits)).Result()
	if err != nil {
		t.logger.Warn("Failed to record usage", map[string]interface{}{
			"error": err.Error(),
		})
		return credits
	}

	// First increment of the day sets the expiry
	if total == int64(credits) {
		if err := t.client.Expire(ctx, key, counterTTL).Err(); err != nil {
			t.logger.Warn("Failed to set usage counter expiry", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}

	return int(total)
}

// UsedToday returns the credits a key burned so far today.
func (t *Tracker) UsedToday(ctx context.Context, apiKey string) (int, error) {
	total, err := t.client.Get(ctx, t.dailyKey(apiKey)).Int()
	if err != nil {
		if err == redis.Nil {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read usage counter: %w", err)
	}
	return total, nil
}

// IsHealthy checks if Redis is connected and healthy
func (t *Tracker) IsHealthy(ctx context.Context) error {
	return t.client.Ping(ctx).Err()
}

// Close closes the Redis connection
func (t *Tracker) Close() error {
	return t.client.Close()
}

func (t *Tracker) dailyKey(apiKey string) string {
	return fmt.Sprintf("usage:%s:%s", apiKey, time.Now().UTC().Format("2006-01-02"))
}
