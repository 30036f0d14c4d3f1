package handlers

import (
	"context"

	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog/log"
)

// MarketService answers the uncached, live market queries.
type MarketService interface {
	PerpSymbols(ctx context.Context) (map[string][]string, error)
	MajorFundingRates(ctx context.Context) (map[string]map[string]any, error)
}

type MarketHandler struct {
	service MarketService
}

func NewMarketHandler(service MarketService) *MarketHandler {
	return &MarketHandler{service}
}

// Handles GET /api/perp-symbols.
func (h *MarketHandler) GetPerpSymbols(c fiber.Ctx) error {
	symbols, err := h.service.PerpSymbols(c.Context())
	if err != nil {
		return serverError(c, err, "failed to list perpetual symbols")
	}

	log.Info().Int("exchanges", len(symbols)).Msg("perpetual symbols listed")
	return c.Status(fiber.StatusOK).JSON(symbols)
}

// Handles GET /api/funding-rates.
func (h *MarketHandler) GetFundingRates(c fiber.Ctx) error {
	rates, err := h.service.MajorFundingRates(c.Context())
	if err != nil {
		return serverError(c, err, "failed to fetch funding rates")
	}

	return c.Status(fiber.StatusOK).JSON(rates)
}
