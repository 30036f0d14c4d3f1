package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	recoverer "github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/suwandre/fundarb/api"
	"github.com/suwandre/fundarb/config"
	"github.com/suwandre/fundarb/internal/aggregator"
	"github.com/suwandre/fundarb/internal/cache"
	"github.com/suwandre/fundarb/internal/exchange"
	"github.com/suwandre/fundarb/internal/logger"
	"github.com/suwandre/fundarb/internal/models"
	"github.com/suwandre/fundarb/internal/scheduler"
	"github.com/suwandre/fundarb/internal/store"
)

func main() {
	// ── 1. Logger setup
	logger.Setup(logger.Options{})

	// ── 2. Root context setup
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ── 3. Config
	configPath := os.Getenv("CONFIG_FILE")
	if configPath == "" {
		configPath = "config.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	logCloser := logger.Setup(logger.Options{Level: cfg.Log.Level, File: cfg.Log.File})
	defer logCloser.Close()

	log.Info().
		Strs("exchanges", cfg.Exchanges).
		Str("reference", cfg.Reference()).
		Str("db_driver", cfg.Database.Driver).
		Msg("config loaded")

	// ── 4. Snapshot store
	var snapshots store.Store
	sqlStore, err := store.OpenSQL(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open snapshot store")
	}
	snapshots = sqlStore

	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		snapshots = store.NewRedisMirror(sqlStore, client, cfg.CacheTTL)
		log.Info().Str("addr", cfg.Redis.Addr).Msg("redis snapshot mirror enabled")
	}
	defer snapshots.Close()

	pingCtx, cancelPing := context.WithTimeout(ctx, 5*time.Second)
	err = snapshots.Ping(pingCtx)
	cancelPing()
	if err != nil {
		log.Fatal().Err(err).Msg("snapshot store unreachable")
	}

	// ── 5. Exchange clients
	factory, err := exchange.NewFactory(cfg.ExchangeConfigs())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to configure exchanges")
	}
	log.Info().Strs("exchanges", factory.Names()).Msg("exchange factory initialized")

	// ── 6. Pipeline + cache gate
	service := aggregator.NewService(factory, aggregator.Options{
		Margin:         cfg.MarginCurrency,
		Reference:      cfg.Reference(),
		VolumeLimit:    cfg.TopVolumeLimit,
		ArbitrageLimit: cfg.TopArbitrageLimit,
		Concurrency:    cfg.MaxConcurrency,
		MajorSymbols:   cfg.MajorSymbols,
	})
	gate := cache.NewGate(snapshots, cfg.CacheTTL)

	// ── 7. Scheduler
	if cfg.RefreshInterval > 0 {
		sched := scheduler.NewScheduler(cfg.RefreshInterval, scheduledTasks(cfg, service, gate, snapshots)...)
		sched.Start(ctx)
		defer sched.Stop()
	}

	// ── 8. Fiber app
	app := fiber.New(fiber.Config{
		AppName:      "Fundarb",
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 2 * time.Minute,
		JSONEncoder:  json.Marshal,
		JSONDecoder:  json.Unmarshal,
	})
	app.Use(recoverer.New())
	app.Use(cors.New())

	// ── 9. Routes
	api.SetupRoutes(app, service, gate, snapshots)

	// ── 10. Graceful shutdown listener
	go func() {
		<-ctx.Done()
		log.Info().Msg("shutdown signal received")
		if err := app.Shutdown(); err != nil {
			log.Error().Err(err).Msg("error during shutdown")
		}
	}()

	// ── 11. Start server (blocking)
	log.Info().Str("port", cfg.AppPort).Msg("starting server")
	if err := app.Listen(":" + cfg.AppPort); err != nil {
		log.Error().Err(err).Msg("server stopped with error")
	}
}

func scheduledTasks(cfg *config.Config, service *aggregator.Service, gate *cache.Gate, snapshots store.Store) []scheduler.Task {
	tasks := []scheduler.Task{
		{
			Name: "warm-funding-table",
			Run: func(ctx context.Context) error {
				_, err := gate.Refresh(ctx, models.DataTypeFunding, func(ctx context.Context) (any, error) {
					return service.FundingTable(ctx)
				})
				return err
			},
		},
		{
			Name: "warm-arbitrage-table",
			Run: func(ctx context.Context) error {
				_, err := gate.Refresh(ctx, models.DataTypeArbitrage, func(ctx context.Context) (any, error) {
					return service.TopArbitrage(ctx)
				})
				return err
			},
		},
	}

	if cfg.HistoryRetention > 0 {
		tasks = append(tasks, scheduler.Task{
			Name: "prune-history",
			Run: func(ctx context.Context) error {
				removed, err := snapshots.Prune(ctx, time.Now().Add(-cfg.HistoryRetention))
				if err != nil {
					return err
				}
				if removed > 0 {
					log.Info().Int64("removed", removed).Msg("old snapshots pruned")
				}
				return nil
			},
		})
	}
	return tasks
}
