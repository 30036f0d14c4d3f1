package handlers

import (
	"errors"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog/log"

	"github.com/suwandre/fundarb/internal/store"
)

// sendRaw writes an already encoded JSON document.
func sendRaw(c fiber.Ctx, payload json.RawMessage) error {
	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return c.Status(fiber.StatusOK).Send(payload)
}

func badRequest(c fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"error": msg,
	})
}

// serverError logs err and reports it as a 500.
func serverError(c fiber.Ctx, err error, msg string) error {
	event := log.Error().Err(err).Str("path", c.Path())
	if errors.Is(err, store.ErrUnavailable) {
		event = event.Bool("store_unavailable", true)
	}
	event.Msg(msg)

	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error": err.Error(),
	})
}
