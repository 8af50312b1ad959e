package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"tournament-leaderboard/apperrors"
	"tournament-leaderboard/logger"
	"tournament-leaderboard/middleware"
	"tournament-leaderboard/models"
	"tournament-leaderboard/services"
)

type deltaRequest struct {
	Delta *int `json:"delta"`
}

type adminHandler struct {
	admin     *services.AdminService
	standings *services.StandingsService
	logger    *logger.Logger
}

func SetupAdminRoutes(app *fiber.App, admin *services.AdminService, standings *services.StandingsService, adminToken string, log *logger.Logger) {
	h := &adminHandler{admin: admin, standings: standings, logger: log}

	group := app.Group("/admin",
		middleware.AdminAuthMiddleware(adminToken, log),
		middleware.OperatorContextMiddleware(),
	)

	group.Get("/players", h.listPlayers)
	group.Post("/players", h.addPlayer)
	group.Delete("/players/:id", h.deletePlayer)
	group.Patch("/players/:id/wins", h.adjustWins)
	group.Patch("/players/:id/points", h.adjustPoints)

	group.Get("/pending", h.listPending)
	group.Post("/pending/approve", h.approvePending)
}

func (h *adminHandler) listPlayers(c *fiber.Ctx) error {
	players, _, err := h.standings.ListPlayers(c.UserContext(), filterFromQuery(c))
	if err != nil {
		return apperrors.Respond(c, err)
	}
	return c.JSON(fiber.Map{"players": players})
}

func (h *adminHandler) listPending(c *fiber.Ctx) error {
	pending, err := h.standings.ListPendingWinners(c.UserContext(), filterFromQuery(c))
	if err != nil {
		return apperrors.Respond(c, err)
	}
	return c.JSON(fiber.Map{"pending": pending})
}

func (h *adminHandler) addPlayer(c *fiber.Ctx) error {
	var req services.PlayerRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	p, err := h.admin.AddPlayer(c.UserContext(), req)
	if err != nil {
		return apperrors.Respond(c, err)
	}
	h.logger.Info("[Admin] player added", "operator", middleware.Operator(c), "username", p.Username)
	return c.Status(fiber.StatusCreated).JSON(p)
}

func (h *adminHandler) deletePlayer(c *fiber.Ctx) error {
	id := c.Params("id")
	if err := h.admin.DeletePlayer(c.UserContext(), id); err != nil {
		return apperrors.Respond(c, err)
	}
	h.logger.Info("[Admin] player deleted", "operator", middleware.Operator(c), "id", id)
	return c.JSON(fiber.Map{"success": true})
}

func (h *adminHandler) adjustWins(c *fiber.Ctx) error {
	return h.adjust(c, h.admin.AdjustWins)
}

func (h *adminHandler) adjustPoints(c *fiber.Ctx) error {
	return h.adjust(c, h.admin.AdjustPoints)
}

func (h *adminHandler) adjust(c *fiber.Ctx, apply func(context.Context, string, int) (*models.Player, error)) error {
	var req deltaRequest
	if err := c.BodyParser(&req); err != nil || req.Delta == nil {
		return badRequest(c, "delta is required")
	}
	p, err := apply(c.UserContext(), c.Params("id"), *req.Delta)
	if err != nil {
		return apperrors.Respond(c, err)
	}
	h.logger.Info("[Admin] player adjusted", "operator", middleware.Operator(c), "id", p.ID, "delta", *req.Delta)
	return c.JSON(p)
}

func (h *adminHandler) approvePending(c *fiber.Ctx) error {
	var req services.PlayerRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	p, err := h.admin.ApprovePending(c.UserContext(), req)
	if err != nil {
		return apperrors.Respond(c, err)
	}
	h.logger.Info("[Admin] pending winner approved", "operator", middleware.Operator(c), "username", p.Username)
	return c.JSON(fiber.Map{"success": true, "player": p})
}
