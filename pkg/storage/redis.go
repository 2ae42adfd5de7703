package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/HatiCode/corecast/pkg/scaling"
)

const redisKeyPrefix = "corecast:model:"

// RedisStore implements Store on top of Redis so that several corecastd
// replicas share fitted models. Entries expire after the configured TTL.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	mu     sync.RWMutex
}

// NewRedisStore connects to Redis at addr and verifies the connection.
// A zero ttl defaults to 24 hours.
func NewRedisStore(addr, password string, db int, ttl time.Duration) (*RedisStore, error) {
	if addr == "" {
		return nil, errors.New("redis address cannot be empty")
	}
	if db < 0 {
		return nil, errors.New("redis database number must be >= 0")
	}

	if ttl == 0 {
		ttl = 24 * time.Hour
	}

	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}

	return &RedisStore{
		client: client,
		ttl:    ttl,
	}, nil
}

// Put stores a model as JSON under "corecast:model:{key}".
func (r *RedisStore) Put(ctx context.Context, key string, model scaling.Model) error {
	if err := validateKey(key); err != nil {
		return err
	}

	data, err := json.Marshal(model)
	if err != nil {
		return fmt.Errorf("failed to marshal model: %w", err)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.client == nil {
		return errors.New("redis store is closed")
	}

	if err := r.client.Set(ctx, redisKeyPrefix+key, data, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store model in redis: %w", err)
	}
	return nil
}

// Get retrieves the model stored under key. A missing key is not an error.
func (r *RedisStore) Get(ctx context.Context, key string) (scaling.Model, bool, error) {
	if err := validateKey(key); err != nil {
		return scaling.Model{}, false, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.client == nil {
		return scaling.Model{}, false, errors.New("redis store is closed")
	}

	data, err := r.client.Get(ctx, redisKeyPrefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return scaling.Model{}, false, nil
		}
		return scaling.Model{}, false, fmt.Errorf("failed to get model from redis: %w", err)
	}

	var model scaling.Model
	if err := json.Unmarshal(data, &model); err != nil {
		return scaling.Model{}, false, fmt.Errorf("failed to unmarshal model: %w", err)
	}
	return model, true, nil
}

// Close closes the Redis client connection. It is safe to call multiple times.
func (r *RedisStore) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.client == nil {
		return nil
	}

	err := r.client.Close()
	r.client = nil
	if errors.Is(err, redis.ErrClosed) {
		return nil
	}
	return err
}

// Ping checks the Redis connection health.
func (r *RedisStore) Ping(ctx context.Context) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.client == nil {
		return errors.New("redis store is closed")
	}
	return r.client.Ping(ctx).Err()
}

// validateKey accepts lowercase hex fingerprints and similar simple keys.
func validateKey(key string) error {
	if key == "" {
		return errors.New("model key required")
	}
	for _, c := range key {
		if !((c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') ||
			(c >= '0' && c <= '9') || c == '-' || c == '_') {
			return fmt.Errorf("invalid model key %q: only alphanumeric, hyphens, and underscores allowed", key)
		}
	}
	return nil
}
