// Package worker drives a consumer stage: it pulls records from a Source,
// groups them into batches and hands each batch to a bus.BatchHandler before
// committing it.
package worker

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"sensorwatch/internal/bus"
	"sensorwatch/internal/logger"
	"sensorwatch/internal/metrics"
)

// Source delivers records and accepts commits for them.
type Source interface {
	Fetch(ctx context.Context) (bus.Record, error)
	Commit(ctx context.Context, records []bus.Record) error
}

// Config holds batch runner configuration
type Config struct {
	Stage        string
	Source       Source
	Handler      bus.BatchHandler
	BatchSize    int
	BatchTimeout time.Duration

	// Upper bound for handling plus committing one batch
	HandleTimeout time.Duration

	// Pause after a failed fetch
	FetchBackoff time.Duration
}

// Runner consumes one source with a single batching loop. Every batch is
// committed once handled, whatever the per-record outcomes were.
type Runner struct {
	stage         string
	source        Source
	handler       bus.BatchHandler
	batchSize     int
	batchTimeout  time.Duration
	handleTimeout time.Duration
	fetchBackoff  time.Duration

	records chan bus.Record
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc

	// Metrics
	batches      atomic.Uint64
	processed    atomic.Uint64
	failed       atomic.Uint64
	commitErrors atomic.Uint64
}

// New creates a batch runner
func New(cfg Config) *Runner {
	if cfg.Stage == "" {
		cfg.Stage = "default"
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = time.Second
	}
	if cfg.HandleTimeout <= 0 {
		cfg.HandleTimeout = 30 * time.Second
	}
	if cfg.FetchBackoff <= 0 {
		cfg.FetchBackoff = time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Runner{
		stage:         cfg.Stage,
		source:        cfg.Source,
		handler:       cfg.Handler,
		batchSize:     cfg.BatchSize,
		batchTimeout:  cfg.BatchTimeout,
		handleTimeout: cfg.HandleTimeout,
		fetchBackoff:  cfg.FetchBackoff,
		records:       make(chan bus.Record, cfg.BatchSize),
		ctx:           ctx,
		cancel:        cancel,
	}
}

// Start begins fetching and handling records
func (r *Runner) Start() {
	log := logger.WithComponent("batch_runner")
	log.Info().
		Str("stage", r.stage).
		Int("batch_size", r.batchSize).
		Dur("batch_timeout", r.batchTimeout).
		Msg("starting batch runner")

	r.wg.Add(2)
	go r.fetch()
	go r.run()
}

// Stop cancels fetching, flushes the pending batch and waits for both
// goroutines to exit.
func (r *Runner) Stop() {
	log := logger.WithComponent("batch_runner")
	log.Info().Str("stage", r.stage).Msg("stopping batch runner")
	r.cancel()
	r.wg.Wait()
	log.Info().Str("stage", r.stage).Msg("batch runner stopped")
}

// fetch feeds records into the batching loop until the runner is stopped.
func (r *Runner) fetch() {
	defer r.wg.Done()
	defer close(r.records)

	log := logger.WithComponent("batch_runner").With().Str("stage", r.stage).Logger()

	for {
		rec, err := r.source.Fetch(r.ctx)
		if err != nil {
			if r.ctx.Err() != nil {
				return
			}
			log.Error().Err(err).Dur("backoff", r.fetchBackoff).Msg("fetch failed")
			select {
			case <-time.After(r.fetchBackoff):
				continue
			case <-r.ctx.Done():
				return
			}
		}

		select {
		case r.records <- rec:
		case <-r.ctx.Done():
			// not committed, so it will be delivered again
			return
		}
	}
}

func (r *Runner) run() {
	defer r.wg.Done()

	batch := make([]bus.Record, 0, r.batchSize)
	timer := time.NewTimer(r.batchTimeout)
	defer timer.Stop()

	for {
		select {
		case rec, ok := <-r.records:
			if !ok {
				// Fetcher stopped, flush and exit
				r.flush(batch)
				return
			}

			batch = append(batch, rec)

			if len(batch) >= r.batchSize {
				r.flush(batch)
				batch = batch[:0]
				timer.Reset(r.batchTimeout)
			}

		case <-timer.C:
			if len(batch) > 0 {
				r.flush(batch)
				batch = batch[:0]
			}
			timer.Reset(r.batchTimeout)
		}
	}
}

// flush handles and commits one batch. It runs on its own context so a batch
// in flight during shutdown still completes.
func (r *Runner) flush(batch []bus.Record) {
	if len(batch) == 0 {
		return
	}

	log := logger.WithComponent("batch_runner").With().Str("stage", r.stage).Logger()
	start := time.Now()

	ctx, cancel := context.WithTimeout(context.Background(), r.handleTimeout)
	defer cancel()

	res := r.handle(ctx, batch)

	if err := r.source.Commit(ctx, batch); err != nil {
		log.Error().Err(err).Int("batch_size", len(batch)).Msg("failed to commit batch")
		r.commitErrors.Add(1)
		metrics.CommitFailures.WithLabelValues(r.stage).Inc()
	}

	duration := time.Since(start)
	metrics.BatchSize.WithLabelValues(r.stage).Observe(float64(len(batch)))
	metrics.BatchDuration.WithLabelValues(r.stage).Observe(duration.Seconds())
	metrics.RecordsTotal.WithLabelValues(r.stage, "success").Add(float64(res.Succeeded))
	metrics.RecordsTotal.WithLabelValues(r.stage, "failed").Add(float64(res.Failed))

	r.batches.Add(1)
	r.processed.Add(uint64(res.Succeeded))
	r.failed.Add(uint64(res.Failed))

	log.Info().
		Int("batch_size", len(batch)).
		Int("succeeded", res.Succeeded).
		Int("failed", res.Failed).
		Dur("duration", duration).
		Msg("batch handled")
}

// handle invokes the handler. A panic marks every record of the batch failed.
func (r *Runner) handle(ctx context.Context, batch []bus.Record) (res bus.BatchResult) {
	defer func() {
		if p := recover(); p != nil {
			lg := logger.WithComponent("batch_runner")
			lg.Error().
				Str("stage", r.stage).
				Interface("panic", p).
				Bytes("stack", debug.Stack()).
				Msg("batch handler panic recovered")
			metrics.PanicsRecovered.WithLabelValues(r.stage).Inc()

			res = bus.BatchResult{}
			err := fmt.Errorf("handler panic: %v", p)
			for i, rec := range batch {
				res.Record(i, rec.ID, err)
			}
		}
	}()

	return r.handler.HandleBatch(ctx, batch)
}

// Stats returns runner statistics
func (r *Runner) Stats() Stats {
	return Stats{
		Batches:      r.batches.Load(),
		Processed:    r.processed.Load(),
		Failed:       r.failed.Load(),
		CommitErrors: r.commitErrors.Load(),
	}
}

// Stats holds runner metrics
type Stats struct {
	Batches      uint64
	Processed    uint64
	Failed       uint64
	CommitErrors uint64
}
