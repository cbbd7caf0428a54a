package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"moodledger/internal/apperrors"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// ===============================
// SQLITE ADAPTER IMPLEMENTATION
// ===============================

const kvSchema = `
	CREATE TABLE IF NOT EXISTS kv_store (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)
`

type kvRow struct {
	Key       string    `db:"key"`
	Value     string    `db:"value"`
	UpdatedAt time.Time `db:"updated_at"`
}

type sqliteAdapter struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// NewSQLiteAdapter opens (creating if needed) the SQLite file at config.SQLitePath
func NewSQLiteAdapter(config *Config, logger *zap.Logger) (Adapter, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	path := config.SQLitePath
	if path == "" {
		path = DefaultConfig().SQLitePath
	}

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	db, err := sqlx.Connect("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to sqlite: %w", err)
	}

	// SQLite doesn't support multiple writers
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(kvSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create kv_store table: %w", err)
	}

	logger.Info("SQLite storage initialized", zap.String("path", path))

	return &sqliteAdapter{db: db, logger: logger}, nil
}

func (s *sqliteAdapter) Get(ctx context.Context, key string) (json.RawMessage, error) {
	var row kvRow
	err := s.db.GetContext(ctx, &row, `SELECT key, value, updated_at FROM kv_store WHERE key = ?`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	} else if err != nil {
		s.logger.Error("Failed to read from sqlite",
			zap.String("key", key),
			zap.Error(err))
		return nil, apperrors.NewStorageError("get", key, err)
	}

	return json.RawMessage(row.Value), nil
}

func (s *sqliteAdapter) Set(ctx context.Context, key string, value interface{}) error {
	data, err := encode(value)
	if err != nil {
		return apperrors.NewStorageError("set", key, err)
	}

	_, err = s.db.NamedExecContext(ctx, `
		INSERT INTO kv_store (key, value, updated_at)
		VALUES (:key, :value, :updated_at)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, kvRow{Key: key, Value: string(data), UpdatedAt: time.Now().UTC()})
	if err != nil {
		s.logger.Error("Failed to write to sqlite",
			zap.String("key", key),
			zap.Error(err))
		return apperrors.NewStorageError("set", key, err)
	}
	return nil
}

func (s *sqliteAdapter) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM kv_store WHERE key = ?`, key); err != nil {
		return apperrors.NewStorageError("delete", key, err)
	}
	return nil
}

func (s *sqliteAdapter) Health(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("sqlite health check failed: %w", err)
	}
	return nil
}

func (s *sqliteAdapter) Close() error {
	return s.db.Close()
}
