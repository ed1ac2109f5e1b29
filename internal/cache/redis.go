package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/ckan-monitor/ckan-monitor/internal/ckan"
)

// snapshotKey is the fixed Redis key holding the snapshot. The value is the
// same bare JSON array the file store writes.
const snapshotKey = "ckan-monitor:dataset_snapshot"

// RedisStore persists the snapshot in Redis so multiple dashboard instances
// can share one cached fetch.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects to Redis at addr and verifies the connection.
func NewRedisStore(ctx context.Context, addr, password string, db int) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return &RedisStore{client: client}, nil
}

// Close releases the Redis connection pool.
func (s *RedisStore) Close() error { return s.client.Close() }

func (s *RedisStore) Read(ctx context.Context) ([]ckan.Dataset, bool, error) {
	data, err := s.client.Get(ctx, snapshotKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		// Unreachable Redis is treated as "no snapshot" rather than
		// corruption: deleting would also fail, and a fresh fetch is
		// the right recovery either way.
		return nil, false, nil
	}

	var datasets []ckan.Dataset
	if err := json.Unmarshal(data, &datasets); err != nil {
		return nil, true, fmt.Errorf("failed to decode snapshot value: %w", err)
	}
	return datasets, true, nil
}

func (s *RedisStore) Write(ctx context.Context, datasets []ckan.Dataset) error {
	data, err := json.Marshal(datasets)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	if err := s.client.Set(ctx, snapshotKey, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to write snapshot value: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context) error {
	if err := s.client.Del(ctx, snapshotKey).Err(); err != nil {
		return fmt.Errorf("failed to delete snapshot value: %w", err)
	}
	return nil
}
