package alerts

import (
	"context"
	"encoding/json"
	"fmt"

	"sensorwatch/internal/bus"
	"sensorwatch/internal/logger"
	"sensorwatch/internal/metrics"
	"sensorwatch/internal/models"
)

// Dispatcher forwards alerts onto the alert topic.
type Dispatcher struct {
	publisher bus.Publisher
}

// NewDispatcher creates a dispatcher publishing through p.
func NewDispatcher(p bus.Publisher) *Dispatcher {
	return &Dispatcher{publisher: p}
}

// DispatchResult reports how many alerts reached the channel.
type DispatchResult struct {
	Published  int
	Failed     int
	MessageIDs []string
}

// Subject is the channel subject line for an alert.
func Subject(a models.Alert) string {
	return fmt.Sprintf("IoT Sensor Alert: %s", a.Type)
}

// Dispatch publishes every alert independently. A failed publish is logged
// and counted; it never stops the remaining alerts and is not returned.
func (d *Dispatcher) Dispatch(ctx context.Context, alerts []models.Alert) DispatchResult {
	log := logger.WithComponent("alert_dispatcher")
	var res DispatchResult

	for _, a := range alerts {
		metrics.AlertsRaisedTotal.WithLabelValues(string(a.Type)).Inc()

		payload, err := json.Marshal(a)
		if err != nil {
			res.Failed++
			metrics.AlertsPublishedTotal.WithLabelValues("failed").Inc()
			log.Error().Err(err).Str("sensor_id", a.SensorID).Msg("failed to serialize alert")
			continue
		}

		id, err := d.publisher.Publish(ctx, bus.Message{
			Key:     a.SensorID,
			Subject: Subject(a),
			Payload: payload,
		})
		if err != nil {
			res.Failed++
			metrics.AlertsPublishedTotal.WithLabelValues("failed").Inc()
			log.Error().
				Err(err).
				Str("sensor_id", a.SensorID).
				Str("alert_type", string(a.Type)).
				Msg("failed to publish alert")
			continue
		}

		res.Published++
		res.MessageIDs = append(res.MessageIDs, id)
		metrics.AlertsPublishedTotal.WithLabelValues("success").Inc()
		log.Info().
			Str("sensor_id", a.SensorID).
			Str("alert_type", string(a.Type)).
			Float64("value", a.Value).
			Str("message_id", id).
			Msg("alert sent")
	}

	return res
}
