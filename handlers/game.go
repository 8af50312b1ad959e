package handlers

import (
	"github.com/gofiber/fiber/v2"

	"tournament-leaderboard/apperrors"
	"tournament-leaderboard/logger"
	"tournament-leaderboard/middleware"
	"tournament-leaderboard/services"
)

type gameControlRequest struct {
	Status string `json:"status"`
}

func SetupGameRoutes(app *fiber.App, admin *services.AdminService, adminToken string, log *logger.Logger) {
	// Polled by the game client, so it must never be served from a cache.
	app.Get("/game/status", func(c *fiber.Ctx) error {
		status, err := admin.GetGameStatus(c.UserContext())
		if err != nil {
			return apperrors.Respond(c, err)
		}
		c.Set(fiber.HeaderCacheControl, "no-store, max-age=0")
		return c.JSON(fiber.Map{"status": status})
	})

	app.Post("/game/control",
		middleware.AdminAuthMiddleware(adminToken, log),
		middleware.OperatorContextMiddleware(),
		func(c *fiber.Ctx) error {
			var req gameControlRequest
			if err := c.BodyParser(&req); err != nil {
				return badRequest(c, "Invalid status. Must be START or STOP")
			}
			status, err := admin.SetGameStatus(c.UserContext(), req.Status)
			if err != nil {
				return apperrors.Respond(c, err)
			}
			log.Info("[Admin] game control", "operator", middleware.Operator(c), "status", string(status))
			return c.JSON(fiber.Map{"success": true, "status": status})
		})
}
