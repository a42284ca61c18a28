// Package app wires configuration, clients and handlers into runnable
// services.
package app

import (
	"context"
	"errors"
	"fmt"

	"sensorwatch/internal/alerts"
	"sensorwatch/internal/bus"
	"sensorwatch/internal/config"
	"sensorwatch/internal/logger"
	"sensorwatch/internal/notify"
	"sensorwatch/internal/processor"
	"sensorwatch/internal/storage"
)

// Consumer stages
const (
	StageProcessor = "processor"
	StageNotifier  = "notifier"
)

// ErrUnknownStage is returned for a stage name other than processor or notifier.
var ErrUnknownStage = errors.New("unknown stage")

// StageHandler is a ready batch handler together with the clients it owns.
type StageHandler struct {
	Name    string
	Topic   string
	Handler bus.BatchHandler

	publisher Publisher
	store     storage.Store
}

// NewStageHandler builds the batch handler for stage and every client it
// needs. Close releases them.
func NewStageHandler(ctx context.Context, cfg *config.Config, stage string) (*StageHandler, error) {
	log := logger.WithComponent("app")

	switch stage {
	case StageProcessor:
		if err := cfg.RequireProcessor(); err != nil {
			return nil, err
		}

		store, err := storage.New(ctx, cfg.Storage)
		if err != nil {
			return nil, fmt.Errorf("open reading store: %w", err)
		}

		pub, err := NewPublisher(ctx, cfg, cfg.Kafka.AlertTopic)
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("create alert publisher: %w", err)
		}

		log.Info().
			Str("storage_backend", cfg.Storage.Backend).
			Str("table", cfg.Storage.Table).
			Str("bus", cfg.Bus.Kind).
			Str("alert_topic", cfg.Kafka.AlertTopic).
			Msg("processor stage initialized")

		return &StageHandler{
			Name:      stage,
			Topic:     cfg.Kafka.SensorTopic,
			Handler:   processor.New(store, alerts.NewDispatcher(pub)),
			publisher: pub,
			store:     store,
		}, nil

	case StageNotifier:
		if err := cfg.RequireNotifier(); err != nil {
			return nil, err
		}

		mailer, err := notify.NewMailer(ctx, cfg.Email.Mailer, cfg.Email.AWSRegion)
		if err != nil {
			return nil, fmt.Errorf("create mailer: %w", err)
		}

		log.Info().
			Str("mailer", cfg.Email.Mailer).
			Str("recipient", cfg.Email.Address).
			Msg("notifier stage initialized")

		return &StageHandler{
			Name:    stage,
			Topic:   cfg.Kafka.AlertTopic,
			Handler: notify.NewNotifier(mailer, cfg.Email.Address),
		}, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStage, stage)
	}
}

// Close releases the stage's clients.
func (s *StageHandler) Close() error {
	var errs []error
	if s.publisher != nil {
		errs = append(errs, s.publisher.Close())
	}
	if s.store != nil {
		errs = append(errs, s.store.Close())
	}
	return errors.Join(errs...)
}
