package storage

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"sensorwatch/internal/config"
	"sensorwatch/internal/models"
)

// Storage errors
var (
	ErrUnknownBackend = errors.New("unknown storage backend")
	ErrInvalidTable   = errors.New("invalid table name")
)

// Store persists readings and serves the most recent ones.
type Store interface {
	// Save stamps the reading with the store clock and writes one record.
	Save(ctx context.Context, r models.SensorReading) (models.SensorReading, error)
	// Recent returns up to n readings, newest timestamp first.
	Recent(ctx context.Context, n int) ([]models.SensorReading, error)
	Close() error
}

// Clock returns the current time; stores use it to assign timestamps.
type Clock func() time.Time

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_\-]{0,62}$`)

// ValidateTable rejects names that are unsafe as a table or key prefix.
func ValidateTable(name string) error {
	if !tableName.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidTable, name)
	}
	return nil
}

// New opens the backend selected in cfg.
func New(ctx context.Context, cfg config.StorageConfig) (Store, error) {
	switch cfg.Backend {
	case "sqlite":
		return NewSQLiteStore(cfg.SQLitePath, cfg.Table)
	case "redis":
		return NewRedisStore(ctx, RedisOptions{Addr: cfg.RedisAddr, DB: cfg.RedisDB, Table: cfg.Table})
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownBackend, cfg.Backend)
	}
}

func millis(t time.Time) int64 {
	return t.UnixMilli()
}
