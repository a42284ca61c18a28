// Command lambda runs a consumer stage as an SNS-triggered function. The
// stage is chosen by the STAGE environment variable.
package main

import (
	"context"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/joho/godotenv"

	"sensorwatch/internal/app"
	"sensorwatch/internal/bus"
	"sensorwatch/internal/config"
	"sensorwatch/internal/logger"
)

// Response is returned for every invocation; per-record failures are only
// logged.
type Response struct {
	StatusCode int    `json:"statusCode"`
	Body       string `json:"body"`
}

var successBody = map[string]string{
	app.StageProcessor: "Successfully processed sensor data",
	app.StageNotifier:  "Successfully processed alerts",
}

func newHandler(stage string, h bus.BatchHandler) func(context.Context, events.SNSEvent) (Response, error) {
	return func(ctx context.Context, event events.SNSEvent) (Response, error) {
		res := h.HandleBatch(ctx, bus.FromSNSEvent(event))
		lg := logger.WithComponent("lambda")
		lg.Info().
			Str("stage", stage).
			Int("records", res.Total).
			Int("failed", res.Failed).
			Msg("invocation complete")
		return Response{StatusCode: 200, Body: successBody[stage]}, nil
	}
}

func main() {
	_ = godotenv.Load()

	stage := os.Getenv("STAGE")

	cfg, err := config.Load()
	if err != nil {
		logger.Init("info", "lambda")
		logger.Logger.Fatal().Err(err).Msg("invalid configuration")
	}
	logger.Init(cfg.Logging.Level, "lambda-"+stage)

	// built once per cold start
	sh, err := app.NewStageHandler(context.Background(), cfg, stage)
	if err != nil {
		logger.Logger.Fatal().Err(err).Str("stage", stage).Msg("stage init failed")
	}

	lambda.Start(newHandler(stage, sh.Handler))
}
