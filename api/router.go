package api

import (
	"github.com/gofiber/fiber/v3"

	"github.com/suwandre/fundarb/api/handlers"
)

type Service interface {
	handlers.MarketService
	handlers.TableService
}

type Store interface {
	handlers.HistoryStore
	handlers.Pinger
}

func SetupRoutes(app *fiber.App, service Service, gate handlers.Gate, store Store) {
	marketHandler := handlers.NewMarketHandler(service)
	tableHandler := handlers.NewTableHandler(gate, service)
	historyHandler := handlers.NewHistoryHandler(store)
	healthHandler := handlers.NewHealthHandler(store)

	app.Get("/health", healthHandler.GetHealth)

	v1 := app.Group("/api")

	v1.Get("/perp-symbols", marketHandler.GetPerpSymbols)
	v1.Get("/funding-rates", marketHandler.GetFundingRates)
	v1.Get("/common-funding-table", tableHandler.GetFundingTable)
	v1.Get("/top-arbitrage", tableHandler.GetTopArbitrage)

	// static route first so it is not captured by :data_type
	v1.Get("/history/arbitrage/hourly", historyHandler.GetHourlyArbitrage)
	v1.Get("/history/:data_type", historyHandler.GetHistory)
}
