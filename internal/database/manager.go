package database

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

// ErrClosed is returned by operations on a closed manager
var ErrClosed = errors.New("database: manager closed")

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Config holds the remote mirror connection settings
type Config struct {
	URL                string
	MaxOpenConns       int
	MaxIdleConns       int
	ConnMaxLifetime    time.Duration
	ConnectTimeout     time.Duration
	SlowQueryThreshold time.Duration
}

// DefaultConfig returns pool settings sized for a single local agent
func DefaultConfig() *Config {
	return &Config{
		MaxOpenConns:       5,
		MaxIdleConns:       2,
		ConnMaxLifetime:    30 * time.Minute,
		ConnectTimeout:     10 * time.Second,
		SlowQueryThreshold: 100 * time.Millisecond,
	}
}

// Manager owns the Postgres connection pool of the remote mirror
type Manager struct {
	db      *sql.DB
	logger  *zap.Logger
	metrics *Metrics
	config  *Config
	mu      sync.RWMutex
}

// NewManager opens the pool and verifies the connection
func NewManager(cfg *Config, logger *zap.Logger) (*Manager, error) {
	m, err := OpenManager(cfg, logger)
	if err != nil {
		return nil, err
	}

	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = DefaultConfig().ConnectTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := m.PingContext(ctx); err != nil {
		m.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	m.logger.Info("Mirror database connected",
		zap.Int("max_open_conns", cfg.MaxOpenConns),
		zap.Int("max_idle_conns", cfg.MaxIdleConns),
		zap.Duration("conn_max_lifetime", cfg.ConnMaxLifetime),
	)
	return m, nil
}

// OpenManager opens the pool without contacting the server. Connections are
// established on first use, so the mirror may be unreachable at startup.
func OpenManager(cfg *Config, logger *zap.Logger) (*Manager, error) {
	if cfg == nil || cfg.URL == "" {
		return nil, fmt.Errorf("database URL is required")
	}

	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}
	configureConnectionPool(db, cfg)
	return NewManagerFromDB(db, cfg, logger), nil
}

// NewManagerFromDB wraps an already opened pool
func NewManagerFromDB(db *sql.DB, cfg *Config, logger *zap.Logger) *Manager {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	threshold := cfg.SlowQueryThreshold
	if threshold <= 0 {
		threshold = DefaultConfig().SlowQueryThreshold
	}
	return &Manager{
		db:      db,
		logger:  logger.With(zap.String("component", "database")),
		metrics: NewMetrics(threshold),
		config:  cfg,
	}
}

func configureConnectionPool(db *sql.DB, cfg *Config) {
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	db.SetConnMaxIdleTime(5 * time.Minute)
}

// DB returns the underlying pool
func (m *Manager) DB() *sql.DB {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.db
}

// Migrate applies the embedded schema migrations. The migrator gets its own
// connection so closing it leaves the pool untouched.
func (m *Manager) Migrate() error {
	migrationDB, err := sql.Open("postgres", m.config.URL)
	if err != nil {
		return fmt.Errorf("failed to create migration connection: %w", err)
	}
	defer migrationDB.Close()

	if err := migrationDB.Ping(); err != nil {
		return fmt.Errorf("migration connection failed: %w", err)
	}

	source, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return fmt.Errorf("failed to load embedded migrations: %w", err)
	}

	driver, err := postgres.WithInstance(migrationDB, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	migrator, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}
	defer migrator.Close()

	currentVersion, dirty, err := migrator.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("failed to get migration version: %w", err)
	}
	if dirty {
		m.logger.Warn("Database is in dirty state", zap.Uint("version", currentVersion))
		return fmt.Errorf("database is in dirty state at version %d", currentVersion)
	}

	if err := migrator.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	newVersion, _, err := migrator.Version()
	if err != nil {
		return fmt.Errorf("failed to get new migration version: %w", err)
	}

	m.logger.Info("Migrations completed successfully",
		zap.Uint("from_version", currentVersion),
		zap.Uint("to_version", newVersion),
	)
	return nil
}

// ExecContext executes a statement and records its metrics
func (m *Manager) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	db := m.DB()
	if db == nil {
		return nil, ErrClosed
	}
	start := time.Now()
	result, err := db.ExecContext(ctx, query, args...)
	m.observe("exec", query, time.Since(start), err)
	return result, err
}

// PingContext verifies the mirror is reachable
func (m *Manager) PingContext(ctx context.Context) error {
	db := m.DB()
	if db == nil {
		return ErrClosed
	}
	start := time.Now()
	err := db.PingContext(ctx)
	m.metrics.RecordQuery("ping", time.Since(start), err)
	return err
}

// Metrics returns a point-in-time view of query metrics
func (m *Manager) Metrics() MetricsSnapshot {
	var stats sql.DBStats
	if db := m.DB(); db != nil {
		stats = db.Stats()
	}
	return m.metrics.Snapshot(stats)
}

// Close closes the pool
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.db == nil {
		return nil
	}
	err := m.db.Close()
	m.db = nil
	return err
}

func (m *Manager) observe(queryType, query string, duration time.Duration, err error) {
	m.metrics.RecordQuery(queryType, duration, err)
	if duration > m.metrics.slowQueryThreshold {
		m.logger.Warn("Slow query detected",
			zap.String("type", queryType),
			zap.Duration("duration", duration),
			zap.String("query", truncateQuery(query)),
		)
	}
}

func truncateQuery(query string) string {
	const max = 120
	if len(query) <= max {
		return query
	}
	return query[:max] + "..."
}
