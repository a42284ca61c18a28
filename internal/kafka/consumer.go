package kafka

import (
	"context"
	"errors"
	"fmt"

	"github.com/segmentio/kafka-go"

	"sensorwatch/internal/bus"
	"sensorwatch/internal/config"
)

// messageReader is the subset of *kafka.Reader the consumer uses.
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer reads a topic as a member of a consumer group. Offsets are only
// committed through Commit, after a batch has been handled.
type Consumer struct {
	reader messageReader
	topic  string
}

// NewConsumer creates a group consumer for topic.
func NewConsumer(brokers []string, topic, groupID string, cfg config.ConsumerConfig) (*Consumer, error) {
	if len(brokers) == 0 {
		return nil, errors.New("at least one broker is required")
	}
	if topic == "" || groupID == "" {
		return nil, errors.New("topic and group ID are required")
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		GroupID:  groupID,
		Topic:    topic,
		MinBytes: cfg.MinBytes,
		MaxBytes: cfg.MaxBytes,
		MaxWait:  cfg.MaxWait,
	})

	return &Consumer{reader: reader, topic: topic}, nil
}

// Fetch blocks until the next message is available.
func (c *Consumer) Fetch(ctx context.Context) (bus.Record, error) {
	m, err := c.reader.FetchMessage(ctx)
	if err != nil {
		return bus.Record{}, err
	}
	return toRecord(m), nil
}

// Commit acknowledges records up to and including each record's offset.
func (c *Consumer) Commit(ctx context.Context, records []bus.Record) error {
	if len(records) == 0 {
		return nil
	}
	msgs := make([]kafka.Message, len(records))
	for i, r := range records {
		msgs[i] = kafka.Message{Topic: r.Topic, Partition: r.Partition, Offset: r.Offset}
	}
	if err := c.reader.CommitMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("commit %s: %w", c.topic, err)
	}
	return nil
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}

func toRecord(m kafka.Message) bus.Record {
	r := bus.Record{
		Payload:   m.Value,
		Topic:     m.Topic,
		Partition: m.Partition,
		Offset:    m.Offset,
		Time:      m.Time,
	}
	for _, h := range m.Headers {
		switch h.Key {
		case HeaderMessageID:
			r.ID = string(h.Value)
		case HeaderSubject:
			r.Subject = string(h.Value)
		}
	}
	if r.ID == "" {
		r.ID = fmt.Sprintf("%s/%d/%d", m.Topic, m.Partition, m.Offset)
	}
	return r
}
