package handlers

import (
	"github.com/gofiber/fiber/v2"

	"tournament-leaderboard/logger"
	"tournament-leaderboard/middleware"
	"tournament-leaderboard/workers"
)

func SetupCronRoutes(app *fiber.App, backfill *workers.AvatarBackfill, secret string, log *logger.Logger) {
	app.Get("/cron/fetch-avatars", middleware.CronSecretMiddleware(secret, log), func(c *fiber.Ctx) error {
		log.Info("[Cron] avatar fetch triggered", "ip", c.IP())
		res, err := backfill.RunOnce(c.UserContext())
		if err != nil {
			log.Error("[Cron] avatar fetch failed", "error", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"success":   false,
				"error":     "avatar fetch failed",
				"processed": 0,
			})
		}
		return c.JSON(res)
	})
}
