package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"tournament-leaderboard/apperrors"
	"tournament-leaderboard/ingest"
	"tournament-leaderboard/logger"
	"tournament-leaderboard/metrics"
	"tournament-leaderboard/middleware"
	"tournament-leaderboard/models"
	"tournament-leaderboard/services"
	"tournament-leaderboard/workers"
)

// Deps is everything the HTTP surface needs. Limiter may be nil.
type Deps struct {
	Engine     *ingest.Engine
	Standings  *services.StandingsService
	Admin      *services.AdminService
	Backfill   *workers.AvatarBackfill
	Events     []models.Event
	Limiter    *middleware.RateLimiter
	Logger     *logger.Logger
	Metrics    *metrics.Metrics
	AdminToken string
	CronSecret string

	AllowedOrigins string
	BodyLimit      int
}

func NewApp(d Deps) *fiber.App {
	if d.Logger == nil {
		d.Logger = logger.Nop()
	}

	app := fiber.New(fiber.Config{
		BodyLimit:    d.BodyLimit,
		ErrorHandler: errorHandler,
	})

	app.Use(recover.New())
	if d.AllowedOrigins != "" {
		app.Use(cors.New(cors.Config{
			AllowOrigins: d.AllowedOrigins,
			AllowMethods: "GET,POST,PUT,DELETE,OPTIONS,PATCH,HEAD",
			AllowHeaders: "Origin, Content-Type, Accept, Authorization, Idempotency-Key, X-Operator, X-Requested-With",
			MaxAge:       86400,
		}))
	}

	SetupHealthRoutes(app, d.Metrics)
	SetupWebhookRoutes(app, d.Engine, d.Limiter, d.Logger, d.Metrics)
	SetupStandingsRoutes(app, d.Standings, d.Events)
	SetupGameRoutes(app, d.Admin, d.AdminToken, d.Logger)
	SetupAdminRoutes(app, d.Admin, d.Standings, d.AdminToken, d.Logger)
	SetupCronRoutes(app, d.Backfill, d.CronSecret, d.Logger)

	return app
}

// errorHandler keeps fiber's own errors (404 routes, body limit) in the
// same JSON shape as application errors.
func errorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return c.Status(fe.Code).JSON(fiber.Map{"error": fe.Message})
	}
	return apperrors.Respond(c, err)
}

func badRequest(c *fiber.Ctx, message string) error {
	return apperrors.Respond(c, apperrors.InvalidInput(message, nil))
}
