package middleware

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jellydator/ttlcache/v3"
	"golang.org/x/time/rate"

	"tournament-leaderboard/logger"
)

// RateLimiter hands out one token bucket per key. Idle buckets expire.
type RateLimiter struct {
	limiters        *ttlcache.Cache[string, *rate.Limiter]
	refillPerSecond int
	burst           int
}

// NewRateLimiter returns the limiter and a function that stops its expiry loop.
func NewRateLimiter(refillPerSecond, burst int) (*RateLimiter, func()) {
	cache := ttlcache.New[string, *rate.Limiter](
		ttlcache.WithTTL[string, *rate.Limiter](30 * time.Minute),
	)
	go cache.Start()

	return &RateLimiter{
		limiters:        cache,
		refillPerSecond: refillPerSecond,
		burst:           burst,
	}, cache.Stop
}

func (l *RateLimiter) Consume(key string) bool {
	item, _ := l.limiters.GetOrSet(key, rate.NewLimiter(rate.Limit(l.refillPerSecond), l.burst))
	return item.Value().Allow()
}

// RateLimitMiddleware rejects requests from an IP that exhausted its bucket.
// A nil limiter disables the check.
func RateLimitMiddleware(limiter *RateLimiter, log *logger.Logger) fiber.Handler {
	if log == nil {
		log = logger.Nop()
	}
	return func(c *fiber.Ctx) error {
		if limiter == nil || limiter.Consume("ip: "+c.IP()) {
			return c.Next()
		}
		log.Warn("[RateLimit] too many requests", "ip", c.IP(), "path", c.Path())
		return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
			"error": "Too many requests",
		})
	}
}
