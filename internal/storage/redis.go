package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"moodledger/internal/apperrors"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ===============================
// REDIS ADAPTER IMPLEMENTATION
// ===============================

type redisAdapter struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedisAdapter creates a new Redis-based adapter. Records never expire.
func NewRedisAdapter(config *Config, logger *zap.Logger) (Adapter, error) {
	if config == nil {
		return nil, fmt.Errorf("storage config cannot be nil")
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	// Parse Redis URL if provided
	var options *redis.Options
	if config.RedisURL != "" {
		var err error
		options, err = redis.ParseURL(config.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
		}
	} else {
		addr := config.RedisAddr
		if addr == "" {
			addr = "localhost:6379"
		}
		options = &redis.Options{
			Addr:     addr,
			Password: config.RedisPassword,
			DB:       config.RedisDB,
		}
	}

	if config.PoolSize > 0 {
		options.PoolSize = config.PoolSize
	}

	client := redis.NewClient(options)

	// Test the connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := client.Ping(ctx).Result(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("Redis storage initialized",
		zap.String("addr", options.Addr),
		zap.Int("db", options.DB),
	)

	return NewRedisAdapterFromClient(client, logger), nil
}

// NewRedisAdapterFromClient wraps an existing client
func NewRedisAdapterFromClient(client *redis.Client, logger *zap.Logger) Adapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &redisAdapter{client: client, logger: logger}
}

func (r *redisAdapter) Get(ctx context.Context, key string) (json.RawMessage, error) {
	val, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	} else if err != nil {
		r.logger.Error("Failed to get from Redis",
			zap.String("key", key),
			zap.Error(err))
		return nil, apperrors.NewStorageError("get", key, err)
	}

	return json.RawMessage(val), nil
}

func (r *redisAdapter) Set(ctx context.Context, key string, value interface{}) error {
	data, err := encode(value)
	if err != nil {
		return apperrors.NewStorageError("set", key, err)
	}

	if err := r.client.Set(ctx, key, data, 0).Err(); err != nil {
		r.logger.Error("Failed to set in Redis",
			zap.String("key", key),
			zap.Error(err))
		return apperrors.NewStorageError("set", key, err)
	}
	return nil
}

func (r *redisAdapter) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return apperrors.NewStorageError("delete", key, err)
	}
	return nil
}

func (r *redisAdapter) Health(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis health check failed: %w", err)
	}
	return nil
}

func (r *redisAdapter) Close() error {
	return r.client.Close()
}
