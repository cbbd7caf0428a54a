// internal/storage/storage.go
package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// ===============================
// ADAPTER INTERFACE
// ===============================

// Adapter abstracts a durable key/value store holding JSON values.
// Each higher component treats a single key as its whole persisted record,
// so no multi-key atomicity is offered.
type Adapter interface {
	// Get returns the raw JSON stored under key, or (nil, nil) when absent.
	// Backend failures come back as *apperrors.StorageError.
	Get(ctx context.Context, key string) (json.RawMessage, error)
	// Set marshals value to JSON and stores it under key.
	Set(ctx context.Context, key string, value interface{}) error
	Delete(ctx context.Context, key string) error

	Health(ctx context.Context) error
	Close() error
}

// ===============================
// ADAPTER CONFIGURATION
// ===============================

// Config holds storage configuration
type Config struct {
	Provider  string `json:"provider" yaml:"provider"`   // "memory", "sqlite", "redis"
	Namespace string `json:"namespace" yaml:"namespace"` // key prefix, e.g. "moodledger"

	// SQLite configuration
	SQLitePath string `json:"sqlite_path" yaml:"sqlite_path"`

	// Redis configuration
	RedisURL      string `json:"redis_url" yaml:"redis_url"`
	RedisAddr     string `json:"redis_addr" yaml:"redis_addr"`
	RedisDB       int    `json:"redis_db" yaml:"redis_db"`
	RedisPassword string `json:"redis_password" yaml:"redis_password"`
	PoolSize      int    `json:"pool_size" yaml:"pool_size"`
}

// DefaultConfig returns a default storage configuration
func DefaultConfig() *Config {
	return &Config{
		Provider:   "sqlite",
		Namespace:  "moodledger",
		SQLitePath: "data/moodledger.db",
		RedisAddr:  "localhost:6379",
		PoolSize:   10,
	}
}

// NewAdapter creates a storage adapter based on configuration
func NewAdapter(config *Config, logger *zap.Logger) (Adapter, error) {
	if config == nil {
		config = DefaultConfig()
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	switch strings.ToLower(config.Provider) {
	case "sqlite", "":
		return NewSQLiteAdapter(config, logger)
	case "redis":
		return NewRedisAdapter(config, logger)
	case "memory":
		logger.Info("Using in-memory storage; data will not survive restarts")
		return NewMemoryAdapter(), nil
	default:
		return nil, fmt.Errorf("unsupported storage provider: %s", config.Provider)
	}
}

// ===============================
// KEY LAYOUT
// ===============================

// Record key suffixes. Each key has exactly one owning service.
const (
	MoodsSuffix     = "moods"
	SyncQueueSuffix = "sync_queue"
	BadgesSuffix    = "badges"
)

// Keys builds the namespaced record keys
type Keys struct {
	Namespace string
}

// Moods is the mood ledger record key
func (k Keys) Moods() string { return k.join(MoodsSuffix) }

// SyncQueue is the offline action queue record key
func (k Keys) SyncQueue() string { return k.join(SyncQueueSuffix) }

// Badges is the progression record key
func (k Keys) Badges() string { return k.join(BadgesSuffix) }

func (k Keys) join(suffix string) string {
	if k.Namespace == "" {
		return suffix
	}
	return k.Namespace + "_" + suffix
}

// ===============================
// UTILITY FUNCTIONS
// ===============================

// encode marshals a value the way every adapter stores it
func encode(value interface{}) ([]byte, error) {
	switch v := value.(type) {
	case json.RawMessage:
		if !json.Valid(v) {
			return nil, fmt.Errorf("invalid raw JSON value")
		}
		return v, nil
	case []byte:
		if !json.Valid(v) {
			return nil, fmt.Errorf("invalid raw JSON value")
		}
		return v, nil
	default:
		data, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal value: %w", err)
		}
		return data, nil
	}
}

// Load fetches key and decodes it into out.
// found is false when the key is missing or its contents are corrupt; both are
// treated as "no data". err is non-nil only when the backend itself failed, in
// which case callers must not overwrite the record with a partial view.
func Load(ctx context.Context, a Adapter, key string, out interface{}, logger *zap.Logger) (found bool, err error) {
	raw, err := a.Get(ctx, key)
	if err != nil {
		logger.Warn("Storage read failed, continuing with empty state",
			zap.String("key", key),
			zap.Error(err))
		return false, err
	}
	if raw == nil {
		return false, nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		logger.Warn("Corrupt record, continuing with empty state",
			zap.String("key", key),
			zap.Error(err))
		return false, nil
	}
	return true, nil
}
