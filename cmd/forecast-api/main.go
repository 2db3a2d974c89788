package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"visitor-forecast/internal/api"
	"visitor-forecast/internal/api/handler"
	"visitor-forecast/internal/config"
	"visitor-forecast/internal/logging"
	"visitor-forecast/internal/store"
	"visitor-forecast/pkg/router"
	"visitor-forecast/pkg/utils"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}
	logging.Init(cfg.Logging)

	// Init DB
	db, err := store.Open(cfg.Store.Path)
	if err != nil {
		logging.Fatal().Err(err).Str("path", cfg.Store.Path).Msg("Failed to open run registry")
	}
	defer db.Close()

	h := handler.NewRunHandler(db, utils.NewOutputManager(cfg.Output.Dir), cfg.Run, cfg.Server.RunTimeout)

	// Create router
	r := router.New()

	// Register API routes
	api.RegisterRoutes(r, h)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Start server
	if err := r.Start(ctx, cfg.Server.Addr); err != nil {
		logging.Error().Err(err).Msg("Server stopped")
	}
	logging.Info().Msg("Waiting for running forecasts")
	h.Wait()
}
