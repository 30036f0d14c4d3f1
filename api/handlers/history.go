package handlers

import (
	"context"
	"strconv"

	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog/log"

	"github.com/suwandre/fundarb/internal/models"
)

const (
	defaultHistoryLimit = 10
	maxHistoryLimit     = 1000
)

// HistoryStore is the read side of the snapshot store.
type HistoryStore interface {
	History(ctx context.Context, dataType models.DataType, limit int) ([]models.Snapshot, error)
	HourlyArbitragePeaks(ctx context.Context) ([]models.HourlyPeak, error)
}

type HistoryHandler struct {
	store HistoryStore
}

func NewHistoryHandler(store HistoryStore) *HistoryHandler {
	return &HistoryHandler{store}
}

// Handles GET /api/history/:data_type?limit=N.
func (h *HistoryHandler) GetHistory(c fiber.Ctx) error {
	dataType, err := models.ParseDataType(c.Params("data_type"))
	if err != nil {
		return badRequest(c, err.Error())
	}

	limit := defaultHistoryLimit
	if raw := c.Query("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 1 {
			return badRequest(c, "limit must be a positive integer")
		}
		if limit > maxHistoryLimit {
			limit = maxHistoryLimit
		}
	}

	snapshots, err := h.store.History(c.Context(), dataType, limit)
	if err != nil {
		return serverError(c, err, "failed to read history")
	}

	log.Info().
		Str("data_type", string(dataType)).
		Int("limit", limit).
		Int("snapshots", len(snapshots)).
		Msg("history served")

	return c.Status(fiber.StatusOK).JSON(snapshots)
}

// Handles GET /api/history/arbitrage/hourly.
func (h *HistoryHandler) GetHourlyArbitrage(c fiber.Ctx) error {
	peaks, err := h.store.HourlyArbitragePeaks(c.Context())
	if err != nil {
		return serverError(c, err, "failed to aggregate hourly arbitrage")
	}
	if peaks == nil {
		peaks = []models.HourlyPeak{}
	}

	return c.Status(fiber.StatusOK).JSON(peaks)
}
