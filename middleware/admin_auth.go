package middleware

import (
	"crypto/subtle"
	"strings"

	"github.com/gofiber/fiber/v2"

	"tournament-leaderboard/apperrors"
	"tournament-leaderboard/logger"
)

// AdminAuthMiddleware checks the shared admin token from the Authorization
// header, with or without the "Bearer " prefix. An empty token disables the
// check.
func AdminAuthMiddleware(expectedToken string, log *logger.Logger) fiber.Handler {
	if log == nil {
		log = logger.Nop()
	}
	if expectedToken == "" {
		log.Warn("[AdminAuth] ADMIN_TOKEN is not set, admin routes are open")
		return func(c *fiber.Ctx) error { return c.Next() }
	}

	return func(c *fiber.Ctx) error {
		authHeader := c.Get(fiber.HeaderAuthorization)
		if authHeader == "" {
			log.Warn("[AdminAuth] missing Authorization header", "path", c.Path())
			return apperrors.Respond(c, apperrors.New(apperrors.ErrCodeUnauthorized, "admin token missing", nil))
		}

		if !tokenMatches(bearerToken(authHeader), expectedToken) {
			log.Warn("[AdminAuth] invalid admin token", "path", c.Path(), "ip", c.IP())
			return apperrors.Respond(c, apperrors.New(apperrors.ErrCodeUnauthorized, "invalid admin token", nil))
		}
		return c.Next()
	}
}

// bearerToken accepts "Bearer <token>" or the raw token.
func bearerToken(header string) string {
	header = strings.TrimSpace(header)
	if token, ok := strings.CutPrefix(header, "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return header
}

func tokenMatches(got, want string) bool {
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}
