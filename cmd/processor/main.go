package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"sensorwatch/internal/app"
	"sensorwatch/internal/config"
	"sensorwatch/internal/logger"
)

func main() {
	// .env is optional
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logger.Init("info", "processor")
		logger.Logger.Fatal().Err(err).Msg("invalid configuration")
	}
	logger.Init(cfg.Logging.Level, "processor")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.RunStage(ctx, cfg, app.StageProcessor); err != nil {
		logger.Logger.Error().Err(err).Msg("processor exited")
		os.Exit(1)
	}
	logger.Logger.Info().Msg("exited")
}
