package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"sensorwatch/internal/models"
)

// RedisOptions configures a RedisStore.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Table    string
}

// RedisStore keeps each reading as a JSON value under <table>:<id> and
// indexes the ids in a sorted set named <table>, scored by timestamp.
type RedisStore struct {
	client *redis.Client
	table  string
	now    Clock
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(ctx context.Context, opts RedisOptions) (*RedisStore, error) {
	if err := ValidateTable(opts.Table); err != nil {
		return nil, err
	}

	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("error connecting to redis: %w", err)
	}

	return &RedisStore{client: client, table: opts.Table, now: time.Now}, nil
}

// WithClock replaces the clock used to stamp readings.
func (s *RedisStore) WithClock(c Clock) *RedisStore {
	s.now = c
	return s
}

func (s *RedisStore) key(id string) string {
	return s.table + ":" + id
}

func (s *RedisStore) Save(ctx context.Context, r models.SensorReading) (models.SensorReading, error) {
	r.Timestamp = millis(s.now())

	data, err := json.Marshal(r)
	if err != nil {
		return r, fmt.Errorf("error encoding reading: %w", err)
	}

	id := uuid.New().String()
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key(id), data, 0)
		pipe.ZAdd(ctx, s.table, &redis.Z{Score: float64(r.Timestamp), Member: id})
		return nil
	})
	if err != nil {
		return r, fmt.Errorf("error writing reading: %w", err)
	}
	return r, nil
}

func (s *RedisStore) Recent(ctx context.Context, n int) ([]models.SensorReading, error) {
	if n <= 0 {
		return []models.SensorReading{}, nil
	}

	ids, err := s.client.ZRevRange(ctx, s.table, 0, int64(n-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("error reading index: %w", err)
	}
	if len(ids) == 0 {
		return []models.SensorReading{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.key(id)
	}

	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("error reading values: %w", err)
	}

	readings := make([]models.SensorReading, 0, len(values))
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			// value expired or deleted behind the index
			continue
		}
		var r models.SensorReading
		if err := json.Unmarshal([]byte(raw), &r); err != nil {
			return nil, fmt.Errorf("error decoding reading: %w", err)
		}
		readings = append(readings, r)
	}
	return readings, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
