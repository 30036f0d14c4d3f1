package handlers

import (
	"context"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog/log"

	"github.com/suwandre/fundarb/internal/cache"
	"github.com/suwandre/fundarb/internal/models"
)

// Gate serves a table from the snapshot cache, producing it on a miss.
type Gate interface {
	Get(ctx context.Context, dataType models.DataType, produce cache.Producer) (json.RawMessage, error)
}

// TableService builds the comparison tables.
type TableService interface {
	FundingTable(ctx context.Context) ([]models.FundingRow, error)
	TopArbitrage(ctx context.Context) ([]models.ArbitrageRow, error)
}

type TableHandler struct {
	gate    Gate
	service TableService
}

func NewTableHandler(gate Gate, service TableService) *TableHandler {
	return &TableHandler{gate: gate, service: service}
}

// Handles GET /api/common-funding-table.
func (h *TableHandler) GetFundingTable(c fiber.Ctx) error {
	payload, err := h.gate.Get(c.Context(), models.DataTypeFunding, func(ctx context.Context) (any, error) {
		return h.service.FundingTable(ctx)
	})
	if err != nil {
		return serverError(c, err, "failed to serve funding table")
	}

	log.Debug().Int("bytes", len(payload)).Msg("funding table served")
	return sendRaw(c, payload)
}

// Handles GET /api/top-arbitrage.
func (h *TableHandler) GetTopArbitrage(c fiber.Ctx) error {
	payload, err := h.gate.Get(c.Context(), models.DataTypeArbitrage, func(ctx context.Context) (any, error) {
		return h.service.TopArbitrage(ctx)
	})
	if err != nil {
		return serverError(c, err, "failed to serve arbitrage table")
	}

	log.Debug().Int("bytes", len(payload)).Msg("arbitrage table served")
	return sendRaw(c, payload)
}
