// Package processor handles sensor-topic batches: every reading is stored,
// evaluated against the fixed thresholds and any resulting alerts are
// dispatched.
package processor

import (
	"context"
	"encoding/json"
	"fmt"

	"sensorwatch/internal/alerts"
	"sensorwatch/internal/bus"
	"sensorwatch/internal/logger"
	"sensorwatch/internal/metrics"
	"sensorwatch/internal/models"
	"sensorwatch/internal/storage"
)

// AlertDispatcher publishes alerts for a stored reading.
type AlertDispatcher interface {
	Dispatch(ctx context.Context, alerts []models.Alert) alerts.DispatchResult
}

// Processor is the sensor-topic batch handler.
type Processor struct {
	store      storage.Store
	dispatcher AlertDispatcher
}

// New creates a Processor.
func New(store storage.Store, dispatcher AlertDispatcher) *Processor {
	return &Processor{store: store, dispatcher: dispatcher}
}

// HandleBatch processes each record on its own. A failing record is logged
// and reported in the result; the remaining records are still processed.
func (p *Processor) HandleBatch(ctx context.Context, records []bus.Record) bus.BatchResult {
	log := logger.WithComponent("processor")
	var res bus.BatchResult

	for i, rec := range records {
		err := p.handle(ctx, rec)
		if err != nil {
			log.Error().
				Err(err).
				Str("record_id", rec.ID).
				Int("index", i).
				Msg("error processing record")
		}
		res.Record(i, rec.ID, err)
	}

	log.Debug().
		Int("total", res.Total).
		Int("failed", res.Failed).
		Msg("batch processed")
	return res
}

func (p *Processor) handle(ctx context.Context, rec bus.Record) error {
	var in models.ReadingInput
	if err := json.Unmarshal(rec.Payload, &in); err != nil {
		metrics.ReadingsReceivedTotal.WithLabelValues("rejected").Inc()
		return fmt.Errorf("%w: %v", models.ErrInvalidBody, err)
	}
	if err := in.Validate(); err != nil {
		metrics.ReadingsReceivedTotal.WithLabelValues("rejected").Inc()
		return err
	}
	metrics.ReadingsReceivedTotal.WithLabelValues("accepted").Inc()

	stored, err := p.store.Save(ctx, in.Reading())
	if err != nil {
		metrics.ReadingsStoredTotal.WithLabelValues("failed").Inc()
		return fmt.Errorf("store reading from %s: %w", in.SensorID, err)
	}
	metrics.ReadingsStoredTotal.WithLabelValues("success").Inc()

	found := alerts.Evaluate(stored)
	if len(found) == 0 {
		return nil
	}

	lg := logger.WithComponent("processor")
	lg.Info().
		Str("sensor_id", stored.SensorID).
		Strs("alert_types", alerts.Kinds(found)).
		Msg("thresholds exceeded")

	// alert publish failures are logged by the dispatcher and do not fail
	// the record
	p.dispatcher.Dispatch(ctx, found)
	return nil
}
