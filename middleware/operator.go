package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

const OperatorLocalsKey = "operator"

// OperatorContextMiddleware records who performed an admin action. The
// dashboard sends its operator name in X-Operator; requests without one are
// attributed to "admin".
func OperatorContextMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		operator := strings.TrimSpace(c.Get("X-Operator"))
		if operator == "" {
			operator = "admin"
		}
		c.Locals(OperatorLocalsKey, operator)
		return c.Next()
	}
}

// Operator returns the name stored by OperatorContextMiddleware.
func Operator(c *fiber.Ctx) string {
	if op, ok := c.Locals(OperatorLocalsKey).(string); ok && op != "" {
		return op
	}
	return "admin"
}
