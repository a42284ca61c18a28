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
		logger.Init("info", "gateway")
		logger.Logger.Fatal().Err(err).Msg("invalid configuration")
	}
	logger.Init(cfg.Logging.Level, "gateway")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Logger.Info().
		Str("addr", cfg.HTTP.Addr).
		Str("topic", cfg.Kafka.SensorTopic).
		Msg("gateway starting")

	if err := app.RunGateway(ctx, cfg); err != nil {
		logger.Logger.Error().Err(err).Msg("gateway exited")
		os.Exit(1)
	}
	logger.Logger.Info().Msg("shutting down")
}
