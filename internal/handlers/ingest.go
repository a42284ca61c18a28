package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"sensorwatch/internal/alerts"
	"sensorwatch/internal/bus"
	"sensorwatch/internal/logger"
	"sensorwatch/internal/metrics"
	"sensorwatch/internal/models"
)

const (
	defaultVerifyLimit = 10
	maxVerifyLimit     = 100
)

// ReadingLister serves the most recent stored readings.
type ReadingLister interface {
	Recent(ctx context.Context, n int) ([]models.SensorReading, error)
}

// healthChecker is implemented by publishers that can report readiness.
type healthChecker interface {
	HealthCheck(ctx context.Context) error
}

// GatewayAPI is the synchronous ingress for sensor readings.
type GatewayAPI struct {
	publisher   bus.Publisher
	readings    ReadingLister
	topic       string
	maxBodySize int64
	now         func() time.Time
}

// GatewayConfig holds configuration for the gateway handlers
type GatewayConfig struct {
	Publisher   bus.Publisher
	Readings    ReadingLister
	Topic       string
	MaxBodySize int64
}

// NewGatewayAPI creates the gateway handlers
func NewGatewayAPI(cfg GatewayConfig) *GatewayAPI {
	maxBodySize := cfg.MaxBodySize
	if maxBodySize == 0 {
		maxBodySize = 1 << 20 // 1MB default
	}

	return &GatewayAPI{
		publisher:   cfg.Publisher,
		readings:    cfg.Readings,
		topic:       cfg.Topic,
		maxBodySize: maxBodySize,
		now:         time.Now,
	}
}

// Register mounts the gateway routes on r.
func (g *GatewayAPI) Register(r *mux.Router) {
	r.HandleFunc("/health", g.Health).Methods(http.MethodGet)
	r.HandleFunc("/publish-sensor-data", g.PublishSensorData).Methods(http.MethodPost)
	r.HandleFunc("/verify-data", g.VerifyData).Methods(http.MethodGet)
}

// PublishResponse is returned after a reading was handed to the sensor topic.
type PublishResponse struct {
	Success        bool     `json:"success"`
	MessageID      string   `json:"messageId"`
	SensorID       string   `json:"sensorId"`
	ExpectedAlerts []string `json:"expectedAlerts"`
	Message        string   `json:"message"`
}

// VerifyResponse lists recently stored readings.
type VerifyResponse struct {
	Success   bool                   `json:"success"`
	ItemCount int                    `json:"itemCount"`
	Items     []models.SensorReading `json:"items"`
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// Health reports liveness and the topic readings are published to.
func (g *GatewayAPI) Health(w http.ResponseWriter, r *http.Request) {
	if hc, ok := g.publisher.(healthChecker); ok {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := hc.HealthCheck(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{Error: err.Error(), Code: ErrorCode(err)})
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"timestamp": g.now().UTC().Format(time.RFC3339),
		"topicArn":  g.topic,
	})
}

// PublishSensorData validates a reading and publishes the request body to
// the sensor topic. It does not wait for storage or evaluation.
func (g *GatewayAPI) PublishSensorData(w http.ResponseWriter, r *http.Request) {
	log := logger.WithComponent("gateway")

	r.Body = http.MaxBytesReader(w, r.Body, g.maxBodySize)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, ErrorResponse{Error: "request body too large"})
			return
		}
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	var in models.ReadingInput
	if err := json.Unmarshal(body, &in); err != nil {
		metrics.ReadingsReceivedTotal.WithLabelValues("rejected").Inc()
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: models.ErrInvalidBody.Error()})
		return
	}
	if err := in.Validate(); err != nil {
		metrics.ReadingsReceivedTotal.WithLabelValues("rejected").Inc()
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	metrics.ReadingsReceivedTotal.WithLabelValues("accepted").Inc()

	reading := in.Reading()
	log.Info().
		Str("sensor_id", reading.SensorID).
		Float64("temperature", reading.Temperature).
		Float64("humidity", reading.Humidity).
		Msg("received sensor data")

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	id, err := g.publisher.Publish(ctx, bus.Message{
		Key:     reading.SensorID,
		Subject: fmt.Sprintf("Sensor Data from %s", reading.SensorID),
		Payload: body,
	})
	if err != nil {
		log.Error().Err(err).Str("sensor_id", reading.SensorID).Msg("error publishing sensor data")
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: err.Error(), Code: ErrorCode(err)})
		return
	}

	log.Info().Str("sensor_id", reading.SensorID).Str("message_id", id).Msg("published sensor data")

	writeJSON(w, http.StatusOK, PublishResponse{
		Success:        true,
		MessageID:      id,
		SensorID:       reading.SensorID,
		ExpectedAlerts: alerts.Kinds(alerts.Evaluate(reading)),
		Message:        "Data published successfully to " + g.topic,
	})
}

// VerifyData returns the most recent stored readings, newest first.
func (g *GatewayAPI) VerifyData(w http.ResponseWriter, r *http.Request) {
	limit := defaultVerifyLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "limit must be a positive integer"})
			return
		}
		limit = min(n, maxVerifyLimit)
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	items, err := g.readings.Recent(ctx, limit)
	if err != nil {
		lg := logger.WithComponent("gateway")
		lg.Error().Err(err).Msg("error querying readings")
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: err.Error(), Code: ErrorCode(err)})
		return
	}
	if items == nil {
		items = []models.SensorReading{}
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].Timestamp > items[j].Timestamp })

	writeJSON(w, http.StatusOK, VerifyResponse{
		Success:   true,
		ItemCount: len(items),
		Items:     items,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
