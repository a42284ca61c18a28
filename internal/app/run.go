package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	ghandlers "github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"sensorwatch/internal/config"
	"sensorwatch/internal/handlers"
	"sensorwatch/internal/kafka"
	"sensorwatch/internal/logger"
	"sensorwatch/internal/middleware"
	"sensorwatch/internal/storage"
	"sensorwatch/internal/worker"
)

// ErrSNSStage is returned by RunStage when the bus is sns; SNS-fed stages
// run under cmd/lambda.
var ErrSNSStage = errors.New("sns stages are delivered by lambda, not run as consumers")

const (
	shutdownTimeout = 10 * time.Second
	statsInterval   = 30 * time.Second
)

// RunGateway serves the HTTP ingress until ctx is cancelled.
func RunGateway(ctx context.Context, cfg *config.Config) error {
	log := logger.WithComponent("gateway")
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := cfg.RequireGateway(); err != nil {
		return err
	}

	pub, err := NewPublisher(ctx, cfg, cfg.Kafka.SensorTopic)
	if err != nil {
		return fmt.Errorf("failed to initialize publisher: %w", err)
	}
	defer pub.Close()

	store, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to open reading store: %w", err)
	}
	defer store.Close()

	log.Info().
		Str("bus", cfg.Bus.Kind).
		Str("topic", cfg.Kafka.SensorTopic).
		Msg("publisher initialized")

	router := mux.NewRouter()
	router.Use(middleware.Logging)
	handlers.NewGatewayAPI(handlers.GatewayConfig{
		Publisher: pub,
		Readings:  store,
		Topic:     cfg.Kafka.SensorTopic,
	}).Register(router)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	handler := middleware.Chain(
		router,
		middleware.Recovery,
		ghandlers.CORS(
			ghandlers.AllowedOrigins([]string{"*"}),
			ghandlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
			ghandlers.AllowedHeaders([]string{"Content-Type", middleware.RequestIDHeader}),
		),
		middleware.RateLimit(cfg.HTTP.RateLimitRPS),
	)

	var wg sync.WaitGroup
	if producer, ok := pub.(*kafka.Producer); ok {
		wg.Add(1)
		go func() {
			defer wg.Done()
			reportStats(ctx, func() {
				s := producer.Stats()
				log.Info().
					Uint64("producer_sent", s.MessagesSent).
					Uint64("producer_failed", s.MessagesFailed).
					Uint64("producer_bytes", s.BytesWritten).
					Msg("stats")
			})
		}()
	}

	err = serve(ctx, newServer(cfg.HTTP, handler))
	cancel()
	wg.Wait()
	return err
}

// RunStage consumes the stage's topic in batches until ctx is cancelled.
// It also serves /health and /metrics.
func RunStage(ctx context.Context, cfg *config.Config, stage string) error {
	log := logger.WithComponent(stage)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if cfg.Bus.Kind == config.BusSNS {
		return ErrSNSStage
	}

	sh, err := NewStageHandler(ctx, cfg, stage)
	if err != nil {
		return err
	}
	defer sh.Close()

	consumer, err := kafka.NewConsumer(cfg.Kafka.Brokers, sh.Topic, cfg.GroupFor(stage), cfg.Kafka.Consumer)
	if err != nil {
		return fmt.Errorf("failed to initialize consumer: %w", err)
	}
	defer consumer.Close()

	runner := worker.New(worker.Config{
		Stage:        stage,
		Source:       consumer,
		Handler:      sh.Handler,
		BatchSize:    cfg.Kafka.Consumer.BatchSize,
		BatchTimeout: cfg.Kafka.Consumer.BatchTimeout,
	})
	runner.Start()

	log.Info().
		Str("topic", sh.Topic).
		Str("group_id", cfg.GroupFor(stage)).
		Msg("consuming")

	router := mux.NewRouter()
	router.Use(middleware.Logging)
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, `{"status":"healthy","stage":%q,"timestamp":%q}`, stage, time.Now().UTC().Format(time.RFC3339))
	}).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		reportStats(ctx, func() {
			s := runner.Stats()
			log.Info().
				Uint64("batches", s.Batches).
				Uint64("processed", s.Processed).
				Uint64("failed", s.Failed).
				Uint64("commit_errors", s.CommitErrors).
				Msg("stats")
		})
	}()

	err = serve(ctx, newServer(cfg.HTTP, middleware.Chain(router, middleware.Recovery)))

	// stop consuming before clients are closed by the deferred calls
	runner.Stop()
	cancel()
	wg.Wait()
	log.Info().Msg("stage stopped gracefully")
	return err
}

func newServer(cfg config.HTTPConfig, h http.Handler) *http.Server {
	return &http.Server{
		Addr:         cfg.Addr,
		Handler:      h,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}
}

// serve runs srv until ctx is cancelled, then shuts it down gracefully.
func serve(ctx context.Context, srv *http.Server) error {
	log := logger.WithComponent("http")
	errCh := make(chan error, 1)

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Msg("stopping HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
		return err
	}
	return nil
}

// reportStats calls report every statsInterval until ctx is done.
func reportStats(ctx context.Context, report func()) {
	ticker := time.NewTicker(statsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			report()
		}
	}
}
