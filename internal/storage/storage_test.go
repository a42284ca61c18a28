package storage

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"sensorwatch/internal/config"
	"sensorwatch/internal/models"
)

// skipIfNoRedis skips the test if Redis is not available
func skipIfNoRedis(t *testing.T) {
	if os.Getenv("REDIS_TEST") != "1" {
		t.Skip("Skipping Redis integration test. Set REDIS_TEST=1 to run.")
	}
}

func TestNew_UnknownBackend(t *testing.T) {
	_, err := New(context.Background(), config.StorageConfig{Backend: "dynamodb", Table: "sensor_readings"})
	if !errors.Is(err, ErrUnknownBackend) {
		t.Errorf("expected ErrUnknownBackend, got %v", err)
	}
}

func TestNew_SQLite(t *testing.T) {
	s, err := New(context.Background(), config.StorageConfig{Backend: "sqlite", SQLitePath: ":memory:", Table: "sensor_readings"})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer s.Close()

	if _, ok := s.(*SQLiteStore); !ok {
		t.Errorf("expected *SQLiteStore, got %T", s)
	}
}

func TestNew_InvalidTable(t *testing.T) {
	_, err := New(context.Background(), config.StorageConfig{Backend: "sqlite", SQLitePath: ":memory:", Table: ""})
	if !errors.Is(err, ErrInvalidTable) {
		t.Errorf("expected ErrInvalidTable, got %v", err)
	}
}

func TestRedisStore_SaveAndRecent(t *testing.T) {
	skipIfNoRedis(t)

	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	table := "test_readings_" + uuid.New().String()[:8]

	s, err := NewRedisStore(context.Background(), RedisOptions{Addr: addr, Table: table})
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	defer s.Close()

	t0 := time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)
	s.WithClock(stepClock(t0, time.Millisecond))

	ctx := context.Background()
	for _, id := range []string{"sensor-001", "sensor-002", "sensor-003"} {
		if _, err := s.Save(ctx, models.SensorReading{SensorID: id, Temperature: 21, Humidity: 45, Location: "Room"}); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
	}

	got, err := s.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(got) != 2 || got[0].SensorID != "sensor-003" || got[1].SensorID != "sensor-002" {
		t.Errorf("unexpected order: %+v", got)
	}
	if got[0].Timestamp != t0.Add(2*time.Millisecond).UnixMilli() {
		t.Errorf("unexpected timestamp: %d", got[0].Timestamp)
	}
}
