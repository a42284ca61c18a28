package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"sensorwatch/internal/bus"
	"sensorwatch/internal/logger"
	"sensorwatch/internal/metrics"
	"sensorwatch/internal/models"
)

// Notifier is the alert-topic batch handler.
type Notifier struct {
	mailer    Mailer
	recipient string
	now       func() time.Time
}

// NewNotifier sends every alert to recipient, which is also the sender.
func NewNotifier(mailer Mailer, recipient string) *Notifier {
	return &Notifier{mailer: mailer, recipient: recipient, now: time.Now}
}

// WithClock replaces the delivery-time clock.
func (n *Notifier) WithClock(now func() time.Time) *Notifier {
	n.now = now
	return n
}

// HandleBatch emails each alert on its own. Failures are logged and
// reported, never propagated.
func (n *Notifier) HandleBatch(ctx context.Context, records []bus.Record) bus.BatchResult {
	log := logger.WithComponent("notifier")
	var res bus.BatchResult

	for i, rec := range records {
		err := n.handle(ctx, rec)
		if err != nil {
			log.Error().
				Err(err).
				Str("record_id", rec.ID).
				Msg("error processing alert")
		}
		res.Record(i, rec.ID, err)
	}
	return res
}

func (n *Notifier) handle(ctx context.Context, rec bus.Record) error {
	var a models.Alert
	if err := json.Unmarshal(rec.Payload, &a); err != nil {
		metrics.NotificationsTotal.WithLabelValues("unknown", "invalid").Inc()
		return fmt.Errorf("decode alert: %w", err)
	}
	if !a.Type.IsValid() {
		metrics.NotificationsTotal.WithLabelValues("unknown", "invalid").Inc()
		return fmt.Errorf("unknown alert type %q", a.Type)
	}

	email, err := Render(a, n.now())
	if err != nil {
		metrics.NotificationsTotal.WithLabelValues(string(a.Type), "failed").Inc()
		return err
	}
	email.From = n.recipient
	email.To = n.recipient

	id, err := n.mailer.Send(ctx, email)
	if err != nil {
		metrics.NotificationsTotal.WithLabelValues(string(a.Type), "failed").Inc()
		return fmt.Errorf("send alert for %s: %w", a.SensorID, err)
	}

	metrics.NotificationsTotal.WithLabelValues(string(a.Type), "sent").Inc()
	lg := logger.WithComponent("notifier")
	lg.Info().
		Str("sensor_id", a.SensorID).
		Str("alert_type", string(a.Type)).
		Str("message_id", id).
		Msg("email alert sent")
	return nil
}
