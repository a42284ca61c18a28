package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("SENSOR_TOPIC", "")
	t.Setenv("LOG_LEVEL", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.HTTP.Addr != ":3000" {
		t.Errorf("expected default addr :3000, got %s", cfg.HTTP.Addr)
	}
	if len(cfg.Kafka.Brokers) != 1 || cfg.Kafka.Brokers[0] != "localhost:9092" {
		t.Errorf("unexpected default brokers: %v", cfg.Kafka.Brokers)
	}
	if cfg.Kafka.Producer.MaxRetries != 0 {
		t.Errorf("expected retries disabled by default, got %d", cfg.Kafka.Producer.MaxRetries)
	}
	if cfg.Storage.Backend != "sqlite" || cfg.Email.Mailer != "log" {
		t.Errorf("unexpected default backends: %s/%s", cfg.Storage.Backend, cfg.Email.Mailer)
	}
	if cfg.Bus.Kind != BusKafka {
		t.Errorf("expected kafka bus by default, got %s", cfg.Bus.Kind)
	}
	if cfg.GroupFor("processor") != "sensorwatch-processor" {
		t.Errorf("unexpected group: %s", cfg.GroupFor("processor"))
	}
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092,")
	t.Setenv("SENSOR_TOPIC", "iot-sensor-data")
	t.Setenv("ALERT_TOPIC", "iot-alerts")
	t.Setenv("READINGS_TABLE", "sensor_readings")
	t.Setenv("KAFKA_CONSUMER_BATCH_TIMEOUT", "250ms")
	t.Setenv("STORAGE_BACKEND", "redis")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if len(cfg.Kafka.Brokers) != 2 || cfg.Kafka.Brokers[1] != "kafka-2:9092" {
		t.Errorf("brokers not parsed: %v", cfg.Kafka.Brokers)
	}
	if cfg.Kafka.Consumer.BatchTimeout != 250*time.Millisecond {
		t.Errorf("batch timeout not parsed: %v", cfg.Kafka.Consumer.BatchTimeout)
	}
	if err := cfg.RequireProcessor(); err != nil {
		t.Errorf("RequireProcessor: %v", err)
	}
}

func TestLoad_SNSBus(t *testing.T) {
	t.Setenv("BUS", "sns")
	t.Setenv("AWS_REGION", "eu-west-1")
	t.Setenv("SNS_ENDPOINT", "http://localhost:4566")
	t.Setenv("ALERT_TOPIC", "arn:aws:sns:eu-west-1:123456789012:iot-alerts")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Bus.Kind != BusSNS || cfg.Bus.AWSRegion != "eu-west-1" || cfg.Bus.SNSEndpoint != "http://localhost:4566" {
		t.Errorf("unexpected bus config: %+v", cfg.Bus)
	}
	if cfg.Kafka.AlertTopic != "arn:aws:sns:eu-west-1:123456789012:iot-alerts" {
		t.Errorf("alert topic ARN not loaded: %s", cfg.Kafka.AlertTopic)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }, true},
		{"bad backend", func(c *Config) { c.Storage.Backend = "dynamodb" }, true},
		{"bad mailer", func(c *Config) { c.Email.Mailer = "smtp" }, true},
		{"no brokers", func(c *Config) { c.Kafka.Brokers = nil }, true},
		{"bad bus", func(c *Config) { c.Bus.Kind = "sqs" }, true},
		{"sns without brokers", func(c *Config) { c.Bus.Kind = BusSNS; c.Kafka.Brokers = nil }, false},
		{"zero batch", func(c *Config) { c.Kafka.Consumer.BatchSize = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				Bus:     BusConfig{Kind: BusKafka},
				Kafka:   KafkaConfig{Brokers: []string{"b:9092"}, Consumer: ConsumerConfig{BatchSize: 1}},
				Storage: StorageConfig{Backend: "sqlite"},
				Email:   EmailConfig{Mailer: "log"},
				Logging: LoggingConfig{Level: "info"},
			}
			tt.modify(cfg)
			if err := cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestRequire_ListsMissingKeys(t *testing.T) {
	cfg := &Config{}

	err := cfg.RequireNotifier()
	if err == nil {
		t.Fatal("expected error for missing notifier settings")
	}
	if !strings.Contains(err.Error(), "ALERT_EMAIL, ALERT_TOPIC") {
		t.Errorf("unexpected error: %v", err)
	}

	cfg.Kafka.SensorTopic = "iot-sensor-data"
	cfg.Storage.Table = "sensor_readings"
	if err := cfg.RequireGateway(); err != nil {
		t.Errorf("RequireGateway: %v", err)
	}
}
