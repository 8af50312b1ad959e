package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"tournament-leaderboard/apperrors"
	"tournament-leaderboard/ingest"
	"tournament-leaderboard/logger"
	"tournament-leaderboard/metrics"
	"tournament-leaderboard/middleware"
)

func SetupWebhookRoutes(app *fiber.App, engine *ingest.Engine, limiter *middleware.RateLimiter, log *logger.Logger, m *metrics.Metrics) {
	h := &webhookHandler{engine: engine, logger: log, metrics: m}
	limit := middleware.RateLimitMiddleware(limiter, log)

	app.Post("/webhook/result", limit, h.receive)
	// Older game clients still post here.
	app.Post("/api/webhook/roblox", limit, h.receive)
}

// webhookResponse puts the summary fields at the top level of the body.
type webhookResponse struct {
	Success bool `json:"success"`
	ingest.Summary
}

type webhookHandler struct {
	engine  *ingest.Engine
	logger  *logger.Logger
	metrics *metrics.Metrics
}

func (h *webhookHandler) receive(c *fiber.Ctx) error {
	req, err := ingest.ParsePayload(c.Body())
	if err != nil {
		h.metrics.WebhookRequest("4xx")
		h.logger.Warn("[Webhook] rejected payload", "error", err, "ip", c.IP())
		return badRequest(c, err.Error())
	}
	if key := strings.TrimSpace(c.Get("Idempotency-Key")); key != "" {
		req.IdempotencyKey = key
	}

	summary, err := h.engine.Ingest(c.UserContext(), req)
	if err != nil {
		if apperrors.CodeOf(err) == apperrors.ErrCodeInvalidInput {
			h.metrics.WebhookRequest("4xx")
		} else {
			h.metrics.WebhookRequest("5xx")
			h.logger.Error("[Webhook] failed to apply results", "error", err)
		}
		return apperrors.Respond(c, err)
	}

	h.metrics.WebhookRequest("2xx")
	return c.JSON(webhookResponse{Success: true, Summary: summary})
}
