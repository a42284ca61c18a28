package kafka

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/compress"

	"sensorwatch/internal/bus"
	"sensorwatch/internal/config"
	"sensorwatch/internal/logger"
	"sensorwatch/internal/metrics"
)

// Header keys carried on every message
const (
	HeaderMessageID = "message_id"
	HeaderSubject   = "subject"
)

// Producer errors
var (
	ErrProducerClosed = errors.New("producer is closed")
	ErrEmptyPayload   = errors.New("message payload is empty")
)

// messageWriter is the subset of *kafka.Writer the producer uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Stats() kafka.WriterStats
	Close() error
}

// Producer publishes bus messages to one topic through a pool of writers.
type Producer struct {
	cfg     config.ProducerConfig
	brokers []string
	topic   string
	writers []messageWriter
	pool    chan messageWriter
	closed  atomic.Bool

	// Metrics
	messagesSent   atomic.Uint64
	messagesFailed atomic.Uint64
	bytesWritten   atomic.Uint64
}

// NewProducer creates a producer for topic.
func NewProducer(brokers []string, topic string, cfg config.ProducerConfig) (*Producer, error) {
	if len(brokers) == 0 {
		return nil, errors.New("at least one broker is required")
	}

	if topic == "" {
		return nil, errors.New("topic is required")
	}

	if cfg.PoolSize <= 0 {
		cfg.PoolSize = 2
	}

	compression := getCompression(cfg.Compression)

	writers := make([]messageWriter, cfg.PoolSize)
	for i := range writers {
		w := &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{}, // same sensor, same partition
			BatchSize:    cfg.BatchSize,
			BatchTimeout: cfg.BatchTimeout,
			WriteTimeout: cfg.WriteTimeout,
			RequiredAcks: kafka.RequiredAcks(cfg.RequiredAcks),
			Compression:  compression,
			MaxAttempts:  1, // retries are handled here, governed by MaxRetries
			Async:        false,
		}
		writers[i] = w
	}

	return newProducer(brokers, topic, cfg, writers), nil
}

func newProducer(brokers []string, topic string, cfg config.ProducerConfig, writers []messageWriter) *Producer {
	p := &Producer{
		cfg:     cfg,
		brokers: brokers,
		topic:   topic,
		writers: writers,
		pool:    make(chan messageWriter, len(writers)),
	}
	for _, w := range writers {
		p.pool <- w
	}
	return p
}

// getCompression returns the kafka compression codec
func getCompression(name string) compress.Compression {
	switch name {
	case "gzip":
		return compress.Gzip
	case "snappy":
		return compress.Snappy
	case "lz4":
		return compress.Lz4
	case "zstd":
		return compress.Zstd
	default:
		return compress.None
	}
}

// Publish writes msg to the topic and returns its generated message ID.
func (p *Producer) Publish(ctx context.Context, msg bus.Message) (string, error) {
	if p.closed.Load() {
		return "", ErrProducerClosed
	}
	if len(msg.Payload) == 0 {
		return "", ErrEmptyPayload
	}

	id := uuid.New().String()
	km := kafka.Message{
		Key:   []byte(msg.Key),
		Value: msg.Payload,
		Headers: []kafka.Header{
			{Key: HeaderMessageID, Value: []byte(id)},
			{Key: HeaderSubject, Value: []byte(msg.Subject)},
		},
		Time: time.Now().UTC(),
	}

	// Get writer from pool
	var writer messageWriter
	select {
	case writer = <-p.pool:
		defer func() { p.pool <- writer }()
	case <-ctx.Done():
		p.fail()
		return "", ctx.Err()
	}

	start := time.Now()
	err := p.publishWithRetry(ctx, writer, km)
	metrics.KafkaPublishDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		p.fail()
		return "", err
	}

	p.messagesSent.Add(1)
	p.bytesWritten.Add(uint64(len(km.Value)))
	metrics.KafkaPublishTotal.WithLabelValues(p.topic, "success").Inc()
	metrics.KafkaBytesWritten.Add(float64(len(km.Value)))
	return id, nil
}

func (p *Producer) fail() {
	p.messagesFailed.Add(1)
	metrics.KafkaPublishTotal.WithLabelValues(p.topic, "failed").Inc()
}

// publishWithRetry writes one message, retrying with exponential backoff
// up to MaxRetries times.
func (p *Producer) publishWithRetry(ctx context.Context, writer messageWriter, msg kafka.Message) error {
	log := logger.WithComponent("kafka_producer")
	var lastErr error
	backoff := p.cfg.RetryBackoff

	for attempt := 0; attempt <= p.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			log.Warn().
				Int("attempt", attempt).
				Dur("backoff", backoff).
				Str("topic", p.topic).
				Msg("retrying kafka publish")

			metrics.KafkaPublishRetries.Inc()

			select {
			case <-time.After(backoff):
				backoff *= 2
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		err := writer.WriteMessages(ctx, msg)
		if err == nil {
			return nil
		}

		lastErr = err
		log.Warn().
			Err(err).
			Int("attempt", attempt+1).
			Str("topic", p.topic).
			Msg("kafka publish attempt failed")

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
	}

	if p.cfg.MaxRetries == 0 {
		return lastErr
	}
	return fmt.Errorf("failed after %d attempts: %w", p.cfg.MaxRetries+1, lastErr)
}

// Close closes all writers in the pool
func (p *Producer) Close() error {
	if p.closed.Swap(true) {
		return nil // Already closed
	}

	var errs []error
	for _, writer := range p.writers {
		if err := writer.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// Stats returns producer statistics
func (p *Producer) Stats() ProducerStats {
	return ProducerStats{
		MessagesSent:   p.messagesSent.Load(),
		MessagesFailed: p.messagesFailed.Load(),
		BytesWritten:   p.bytesWritten.Load(),
	}
}

// ProducerStats holds producer metrics
type ProducerStats struct {
	MessagesSent   uint64
	MessagesFailed uint64
	BytesWritten   uint64
}

// HealthCheck dials the brokers in turn and succeeds once one of them
// returns the topic's partitions.
func (p *Producer) HealthCheck(ctx context.Context) error {
	if p.closed.Load() {
		return ErrProducerClosed
	}
	if len(p.brokers) == 0 {
		return errors.New("no brokers configured")
	}

	var lastErr error
	for _, broker := range p.brokers {
		if err := readPartitions(ctx, broker, p.topic); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	return fmt.Errorf("kafka unreachable: %w", lastErr)
}

func readPartitions(ctx context.Context, broker, topic string) error {
	conn, err := kafka.DialContext(ctx, "tcp", broker)
	if err != nil {
		return err
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	partitions, err := conn.ReadPartitions(topic)
	if err != nil {
		return err
	}
	if len(partitions) == 0 {
		return fmt.Errorf("topic %s has no partitions", topic)
	}
	return nil
}
