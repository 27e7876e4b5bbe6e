package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "conveyor:cache:"

// RedisStore persists cache payloads in Redis, for sharing dependency caches
// between runners on different hosts.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(ctx context.Context, redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	err = client.Ping(ctx).Err()
	if err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return &RedisStore{client: client}, nil
}

func (s *RedisStore) Restore(ctx context.Context, key string) (*Payload, error) {
	data, err := s.client.Get(ctx, redisKeyPrefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to read cache entry: %w", err)
	}

	var payload Payload

	err = json.Unmarshal(data, &payload)
	if err != nil {
		return nil, fmt.Errorf("failed to decode cache entry: %w", err)
	}

	return &payload, nil
}

func (s *RedisStore) Save(ctx context.Context, payload *Payload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode cache entry: %w", err)
	}

	err = s.client.Set(ctx, redisKeyPrefix+payload.Key, data, 0).Err()
	if err != nil {
		return fmt.Errorf("failed to write cache entry: %w", err)
	}

	return nil
}

func (s *RedisStore) Close(_ context.Context) error {
	return s.client.Close()
}
