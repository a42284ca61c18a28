package app

import (
	"context"
	"fmt"

	"sensorwatch/internal/bus"
	"sensorwatch/internal/config"
	"sensorwatch/internal/kafka"
)

// Publisher is a bus.Publisher that owns its client.
type Publisher interface {
	bus.Publisher
	Close() error
}

// NewPublisher returns a publisher to topic on the configured bus. For
// sns, topic is the topic ARN.
func NewPublisher(ctx context.Context, cfg *config.Config, topic string) (Publisher, error) {
	switch cfg.Bus.Kind {
	case config.BusSNS:
		p, err := bus.NewSNSPublisher(ctx, cfg.Bus.AWSRegion, cfg.Bus.SNSEndpoint, topic)
		if err != nil {
			return nil, err
		}
		return p, nil
	case config.BusKafka, "":
		p, err := kafka.NewProducer(cfg.Kafka.Brokers, topic, cfg.Kafka.Producer)
		if err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unknown bus %q", cfg.Bus.Kind)
	}
}
