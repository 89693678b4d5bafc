package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

const rateLimitPrefix = "rl:wallet:"

// UserRateLimit caps mutating requests per user (the :id route param, or the
// client IP when absent) to maxPerMin using a fixed one-minute Redis window.
// A nil client disables the limiter; Redis errors and timeouts fail open.
func UserRateLimit(cache *redis.Client, maxPerMin int, logger *slog.Logger) fiber.Handler {
	if maxPerMin <= 0 {
		maxPerMin = 60
	}
	return func(c *fiber.Ctx) error {
		if cache == nil {
			return c.Next()
		}
		subject := c.Params("id")
		if subject == "" {
			subject = c.IP()
		}
		window := time.Now().UTC().Truncate(time.Minute)
		key := fmt.Sprintf("%s%s:%d", rateLimitPrefix, subject, window.Unix())

		ctx, cancel := context.WithTimeout(c.UserContext(), redisOpTimeout)
		defer cancel()
		pipe := cache.TxPipeline()
		incr := pipe.Incr(ctx, key)
		pipe.Expire(ctx, key, time.Minute)
		if _, err := pipe.Exec(ctx); err != nil {
			if logger != nil {
				logger.Warn("rate limit check failed", slog.String("subject", subject), slog.Any("error", err))
			}
			return c.Next()
		}

		count := incr.Val()
		remaining := int64(maxPerMin) - count
		if remaining < 0 {
			remaining = 0
		}
		c.Set("X-RateLimit-Limit", strconv.Itoa(maxPerMin))
		c.Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
		if count > int64(maxPerMin) {
			retry := window.Add(time.Minute).Sub(time.Now().UTC())
			c.Set(fiber.HeaderRetryAfter, strconv.Itoa(int(retry.Seconds())+1))
			return fiber.NewError(http.StatusTooManyRequests, "too many requests, try again later")
		}
		return c.Next()
	}
}
