package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"sensorwatch/internal/models"
)

// SQLiteStore keeps readings in a single SQLite table.
type SQLiteStore struct {
	db    *sql.DB
	table string
	now   Clock
}

// NewSQLiteStore opens (and migrates) the database at path.
func NewSQLiteStore(path, table string) (*SQLiteStore, error) {
	if err := ValidateTable(table); err != nil {
		return nil, err
	}

	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("error creating database directory: %w", err)
			}
		}
	}

	db, err := sql.Open("sqlite", sqliteDSN(path))
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}
	// a single connection keeps :memory: databases shared and serialises writes
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("error while pinging database: %w", err)
	}

	s := &SQLiteStore{
		db:    db,
		table: table,
		now:   time.Now,
	}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("error while migrating database: %w", err)
	}

	return s, nil
}

// WithClock replaces the clock used to stamp readings.
func (s *SQLiteStore) WithClock(c Clock) *SQLiteStore {
	s.now = c
	return s
}

func (s *SQLiteStore) migrate() error {
	schema := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %[1]q (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			sensor_id TEXT NOT NULL,
			timestamp INTEGER NOT NULL,
			temperature REAL NOT NULL,
			humidity REAL NOT NULL,
			location TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS %[2]q ON %[1]q(timestamp);
	`, s.table, "idx_"+s.table+"_timestamp")

	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) Save(ctx context.Context, r models.SensorReading) (models.SensorReading, error) {
	r.Timestamp = millis(s.now())

	query := fmt.Sprintf(`INSERT INTO %q (sensor_id, timestamp, temperature, humidity, location) VALUES (?, ?, ?, ?, ?)`, s.table)
	if _, err := s.db.ExecContext(ctx, query, r.SensorID, r.Timestamp, r.Temperature, r.Humidity, r.Location); err != nil {
		return r, fmt.Errorf("error inserting reading: %w", err)
	}
	return r, nil
}

func (s *SQLiteStore) Recent(ctx context.Context, n int) ([]models.SensorReading, error) {
	if n <= 0 {
		return []models.SensorReading{}, nil
	}

	query := fmt.Sprintf(`SELECT sensor_id, timestamp, temperature, humidity, location FROM %q ORDER BY timestamp DESC, id DESC LIMIT ?`, s.table)
	rows, err := s.db.QueryContext(ctx, query, n)
	if err != nil {
		return nil, fmt.Errorf("error querying readings: %w", err)
	}
	defer rows.Close()

	readings := make([]models.SensorReading, 0, n)
	for rows.Next() {
		var r models.SensorReading
		if err := rows.Scan(&r.SensorID, &r.Timestamp, &r.Temperature, &r.Humidity, &r.Location); err != nil {
			return nil, fmt.Errorf("error scanning reading: %w", err)
		}
		readings = append(readings, r)
	}
	return readings, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// sqliteDSN adds a busy timeout and, for files shared between the gateway
// and the processor, WAL journaling.
func sqliteDSN(path string) string {
	if path == ":memory:" {
		return path
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
}
