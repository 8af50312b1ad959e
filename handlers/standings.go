package handlers

import (
	"github.com/gofiber/fiber/v2"

	"tournament-leaderboard/apperrors"
	"tournament-leaderboard/models"
	"tournament-leaderboard/services"
)

func SetupStandingsRoutes(app *fiber.App, standings *services.StandingsService, events []models.Event) {
	app.Get("/leaderboard", func(c *fiber.Ctx) error {
		players, bucket, err := standings.ListPlayers(c.UserContext(), filterFromQuery(c))
		if err != nil {
			return apperrors.Respond(c, err)
		}
		return c.JSON(fiber.Map{
			"players":         players,
			"day":             bucket.Day,
			"tournament_type": bucket.TournamentType,
			"event":           bucket.Event,
		})
	})

	app.Get("/events", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"events": events})
	})
}

// filterFromQuery reads day, tournament (or tournament_type) and event.
func filterFromQuery(c *fiber.Ctx) services.Filter {
	tournament := c.Query("tournament")
	if tournament == "" {
		tournament = c.Query("tournament_type")
	}
	return services.Filter{
		Day:            c.Query("day"),
		TournamentType: tournament,
		Event:          c.Query("event"),
	}
}
