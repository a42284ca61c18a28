package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sensorwatch_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sensorwatch_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint", "status"},
	)

	HTTPRateLimited = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sensorwatch_http_rate_limited_total",
			Help: "Total number of requests rejected by the rate limiter",
		},
	)

	// Gateway metrics
	ReadingsReceivedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sensorwatch_readings_received_total",
			Help: "Total number of readings received by the gateway",
		},
		[]string{"status"}, // status: accepted, rejected, failed
	)

	// Processor metrics
	ReadingsStoredTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sensorwatch_readings_stored_total",
			Help: "Total number of readings written to the store",
		},
		[]string{"status"}, // status: success, failed
	)

	AlertsRaisedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sensorwatch_alerts_raised_total",
			Help: "Total number of alerts raised by the threshold evaluator",
		},
		[]string{"type"},
	)

	AlertsPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sensorwatch_alerts_published_total",
			Help: "Total number of alerts handed to the alert topic",
		},
		[]string{"status"},
	)

	// Notifier metrics
	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sensorwatch_notifications_total",
			Help: "Total number of alert notifications sent",
		},
		[]string{"type", "status"},
	)

	// Batch runner metrics
	BatchSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sensorwatch_batch_size",
			Help:    "Number of records per handled batch",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500},
		},
		[]string{"stage"},
	)

	BatchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sensorwatch_batch_duration_seconds",
			Help:    "Time taken to handle and commit a batch",
			Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"stage"},
	)

	RecordsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sensorwatch_records_total",
			Help: "Total number of records handled per stage",
		},
		[]string{"stage", "status"}, // status: success, failed
	)

	CommitFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sensorwatch_commit_failures_total",
			Help: "Total number of failed batch commits",
		},
		[]string{"stage"},
	)

	// Kafka producer metrics
	KafkaPublishTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sensorwatch_kafka_publish_total",
			Help: "Total number of messages published to Kafka",
		},
		[]string{"topic", "status"}, // status: success, failed
	)

	KafkaPublishDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sensorwatch_kafka_publish_duration_seconds",
			Help:    "Time taken to publish to Kafka",
			Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
	)

	KafkaPublishRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sensorwatch_kafka_publish_retries_total",
			Help: "Total number of Kafka publish retries",
		},
	)

	KafkaBytesWritten = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sensorwatch_kafka_bytes_written_total",
			Help: "Total bytes written to Kafka",
		},
	)

	// Panic recovery
	PanicsRecovered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sensorwatch_panics_recovered_total",
			Help: "Total number of panics recovered",
		},
		[]string{"component"},
	)
)
