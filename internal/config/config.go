package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Config holds runtime configuration shared by every sensorwatch binary.
type Config struct {
	HTTP    HTTPConfig
	Bus     BusConfig
	Kafka   KafkaConfig
	Storage StorageConfig
	Email   EmailConfig
	Logging LoggingConfig
}

// HTTPConfig configures the gateway API and the stage health/metrics listener.
type HTTPConfig struct {
	Addr         string
	RateLimitRPS int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Message buses
const (
	BusKafka = "kafka"
	BusSNS   = "sns"
)

// BusConfig selects the channel between stages. With sns, SENSOR_TOPIC and
// ALERT_TOPIC hold topic ARNs.
type BusConfig struct {
	Kind      string
	AWSRegion string
	// Overrides the SNS endpoint, e.g. for LocalStack
	SNSEndpoint string
}

// KafkaConfig holds broker, topic and client tuning.
type KafkaConfig struct {
	Brokers []string
	// Topic carrying raw sensor readings
	SensorTopic string
	// Topic carrying alerts for the notifier
	AlertTopic string
	// Consumer group prefix; the stage name is appended
	GroupID  string
	Producer ProducerConfig
	Consumer ConsumerConfig
}

// ProducerConfig tunes the pooled Kafka writers.
type ProducerConfig struct {
	PoolSize     int
	BatchSize    int
	BatchTimeout time.Duration
	WriteTimeout time.Duration
	RequiredAcks int
	Compression  string
	// Zero disables retries
	MaxRetries   int
	RetryBackoff time.Duration
}

// ConsumerConfig tunes the batch runner fed by the Kafka reader.
type ConsumerConfig struct {
	BatchSize    int
	BatchTimeout time.Duration
	MinBytes     int
	MaxBytes     int
	MaxWait      time.Duration
}

// StorageConfig selects and configures the reading store.
type StorageConfig struct {
	// sqlite or redis
	Backend    string
	Table      string
	SQLitePath string
	RedisAddr  string
	RedisDB    int
}

// EmailConfig configures alert delivery.
type EmailConfig struct {
	// Recipient and sender of every alert email
	Address string
	// ses or log
	Mailer    string
	AWSRegion string
}

type LoggingConfig struct {
	Level string
}

// Load reads configuration from the environment.
func Load() (*Config, error) {
	cfg := &Config{
		HTTP: HTTPConfig{
			Addr:         getEnv("HTTP_ADDR", ":3000"),
			RateLimitRPS: getEnvInt("RATE_LIMIT_RPS", 50),
			ReadTimeout:  getEnvDuration("HTTP_READ_TIMEOUT", 10*time.Second),
			WriteTimeout: getEnvDuration("HTTP_WRITE_TIMEOUT", 10*time.Second),
		},
		Bus: BusConfig{
			Kind:        getEnv("BUS", BusKafka),
			AWSRegion:   getEnv("AWS_REGION", "us-east-2"),
			SNSEndpoint: os.Getenv("SNS_ENDPOINT"),
		},
		Kafka: KafkaConfig{
			Brokers:     getEnvList("KAFKA_BROKERS", []string{"localhost:9092"}),
			SensorTopic: os.Getenv("SENSOR_TOPIC"),
			AlertTopic:  os.Getenv("ALERT_TOPIC"),
			GroupID:     getEnv("KAFKA_GROUP_ID", "sensorwatch"),
			Producer: ProducerConfig{
				PoolSize:     getEnvInt("KAFKA_PRODUCER_POOL_SIZE", 2),
				BatchSize:    getEnvInt("KAFKA_PRODUCER_BATCH_SIZE", 1),
				BatchTimeout: getEnvDuration("KAFKA_PRODUCER_BATCH_TIMEOUT", 10*time.Millisecond),
				WriteTimeout: getEnvDuration("KAFKA_PRODUCER_WRITE_TIMEOUT", 10*time.Second),
				RequiredAcks: getEnvInt("KAFKA_PRODUCER_REQUIRED_ACKS", -1),
				Compression:  getEnv("KAFKA_PRODUCER_COMPRESSION", "none"),
				MaxRetries:   getEnvInt("KAFKA_PRODUCER_MAX_RETRIES", 0),
				RetryBackoff: getEnvDuration("KAFKA_PRODUCER_RETRY_BACKOFF", 100*time.Millisecond),
			},
			Consumer: ConsumerConfig{
				BatchSize:    getEnvInt("KAFKA_CONSUMER_BATCH_SIZE", 10),
				BatchTimeout: getEnvDuration("KAFKA_CONSUMER_BATCH_TIMEOUT", time.Second),
				MinBytes:     getEnvInt("KAFKA_CONSUMER_MIN_BYTES", 1),
				MaxBytes:     getEnvInt("KAFKA_CONSUMER_MAX_BYTES", 10<<20),
				MaxWait:      getEnvDuration("KAFKA_CONSUMER_MAX_WAIT", 500*time.Millisecond),
			},
		},
		Storage: StorageConfig{
			Backend:    getEnv("STORAGE_BACKEND", "sqlite"),
			Table:      os.Getenv("READINGS_TABLE"),
			SQLitePath: getEnv("SQLITE_PATH", "./data/sensorwatch.db"),
			RedisAddr:  getEnv("REDIS_ADDR", "localhost:6379"),
			RedisDB:    getEnvInt("REDIS_DB", 0),
		},
		Email: EmailConfig{
			Address:   os.Getenv("ALERT_EMAIL"),
			Mailer:    getEnv("MAILER", "log"),
			AWSRegion: getEnv("AWS_REGION", "us-east-2"),
		},
		Logging: LoggingConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the settings every binary depends on.
func (c *Config) Validate() error {
	switch c.Bus.Kind {
	case BusKafka:
		if len(c.Kafka.Brokers) == 0 {
			return errors.New("at least one kafka broker is required")
		}
	case BusSNS:
	default:
		return fmt.Errorf("invalid bus: %s", c.Bus.Kind)
	}

	validLevels := map[string]bool{"trace": true, "debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	switch c.Storage.Backend {
	case "sqlite", "redis":
	default:
		return fmt.Errorf("invalid storage backend: %s", c.Storage.Backend)
	}

	switch c.Email.Mailer {
	case "ses", "log":
	default:
		return fmt.Errorf("invalid mailer: %s", c.Email.Mailer)
	}

	if c.HTTP.RateLimitRPS < 0 {
		return fmt.Errorf("invalid rate limit: %d", c.HTTP.RateLimitRPS)
	}

	if c.Kafka.Consumer.BatchSize <= 0 {
		return fmt.Errorf("invalid consumer batch size: %d", c.Kafka.Consumer.BatchSize)
	}

	return nil
}

// RequireGateway checks the settings the HTTP gateway needs.
func (c *Config) RequireGateway() error {
	return require(map[string]string{
		"SENSOR_TOPIC":   c.Kafka.SensorTopic,
		"READINGS_TABLE": c.Storage.Table,
	})
}

// RequireProcessor checks the settings the reading processor needs.
func (c *Config) RequireProcessor() error {
	return require(map[string]string{
		"SENSOR_TOPIC":   c.Kafka.SensorTopic,
		"ALERT_TOPIC":    c.Kafka.AlertTopic,
		"READINGS_TABLE": c.Storage.Table,
	})
}

// RequireNotifier checks the settings the alert notifier needs.
func (c *Config) RequireNotifier() error {
	return require(map[string]string{
		"ALERT_TOPIC": c.Kafka.AlertTopic,
		"ALERT_EMAIL": c.Email.Address,
	})
}

// GroupFor returns the consumer group for a stage.
func (c *Config) GroupFor(stage string) string {
	return c.Kafka.GroupID + "-" + stage
}

func require(values map[string]string) error {
	var missing []string
	for key, val := range values {
		if strings.TrimSpace(val) == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	sort.Strings(missing)
	return fmt.Errorf("missing required environment: %s", strings.Join(missing, ", "))
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
