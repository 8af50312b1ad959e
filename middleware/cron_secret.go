package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"tournament-leaderboard/apperrors"
	"tournament-leaderboard/logger"
)

// CronSecretMiddleware guards job triggers. Schedulers that cannot set
// headers may pass the secret as ?secret= instead. An empty secret disables
// the check.
func CronSecretMiddleware(secret string, log *logger.Logger) fiber.Handler {
	if log == nil {
		log = logger.Nop()
	}
	if secret == "" {
		return func(c *fiber.Ctx) error { return c.Next() }
	}

	return func(c *fiber.Ctx) error {
		provided := bearerToken(c.Get(fiber.HeaderAuthorization))
		if provided == "" {
			provided = strings.TrimSpace(c.Query("secret"))
		}
		if provided == "" || !tokenMatches(provided, secret) {
			log.Warn("[Cron] rejected job trigger", "path", c.Path(), "ip", c.IP())
			return apperrors.Respond(c, apperrors.New(apperrors.ErrCodeUnauthorized, "Unauthorized", nil))
		}
		return c.Next()
	}
}
