package handlers

import (
	"context"

	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog/log"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthHandler struct {
	store Pinger
}

func NewHealthHandler(store Pinger) *HealthHandler {
	return &HealthHandler{store}
}

// Handles GET /health.
func (h *HealthHandler) GetHealth(c fiber.Ctx) error {
	if err := h.store.Ping(c.Context()); err != nil {
		log.Warn().Err(err).Msg("health check failed")
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"status": "unavailable",
			"error":  err.Error(),
		})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status": "ok",
	})
}
