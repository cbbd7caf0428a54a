package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the sync agent
type Config struct {
	App          AppConfig
	Storage      StorageConfig
	Queue        QueueConfig
	Connectivity ConnectivityConfig
	Mirror       MirrorConfig
	Logging      LoggingConfig
}

// AppConfig holds process-level settings
type AppConfig struct {
	Environment     string
	Name            string
	UserID          string
	ShutdownTimeout time.Duration
}

// StorageConfig selects and configures the local storage adapter
type StorageConfig struct {
	Provider      string
	Namespace     string
	SQLitePath    string
	RedisURL      string
	RedisAddr     string
	RedisDB       int
	RedisPassword string
	PoolSize      int
}

// QueueConfig controls offline queue retries
type QueueConfig struct {
	MaxAttempts         int
	InitialBackoff      time.Duration
	MaxBackoff          time.Duration
	Multiplier          float64
	RandomizationFactor float64
}

// ConnectivityConfig controls active connectivity probing
type ConnectivityConfig struct {
	ProbeInterval time.Duration
	ProbeTimeout  time.Duration
	InitialOnline bool
}

// MirrorConfig holds the remote Postgres mirror settings
type MirrorConfig struct {
	Enabled            bool
	URL                string
	MaxOpenConns       int
	MaxIdleConns       int
	ConnMaxLifetime    time.Duration
	ConnectTimeout     time.Duration
	SlowQueryThreshold time.Duration
	AutoMigrate        bool
}

// LoggingConfig holds logger settings
type LoggingConfig struct {
	Level  string
	Format string
}

// Load reads configuration from the environment. Outside production a
// .env.<GO_ENV> file (or .env) is loaded first.
func Load() (*Config, error) {
	env := getEnv("GO_ENV", "development")
	if env != "production" {
		envFile := fmt.Sprintf(".env.%s", env)
		if _, err := os.Stat(envFile); err == nil {
			_ = godotenv.Load(envFile)
		} else {
			_ = godotenv.Load()
		}
	}

	config := &Config{
		App:          loadAppConfig(env),
		Storage:      loadStorageConfig(),
		Queue:        loadQueueConfig(),
		Connectivity: loadConnectivityConfig(),
		Mirror:       loadMirrorConfig(env),
		Logging:      loadLoggingConfig(env),
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return config, nil
}

func loadAppConfig(env string) AppConfig {
	return AppConfig{
		Environment:     env,
		Name:            getEnv("APP_NAME", "moodsync"),
		UserID:          getEnv("MOODLEDGER_USER_ID", "local"),
		ShutdownTimeout: getDurationEnv("SHUTDOWN_TIMEOUT", 30*time.Second),
	}
}

func loadStorageConfig() StorageConfig {
	return StorageConfig{
		Provider:      strings.ToLower(getEnv("STORAGE_PROVIDER", "sqlite")),
		Namespace:     getEnv("STORAGE_NAMESPACE", "moodledger"),
		SQLitePath:    getEnv("SQLITE_PATH", "data/moodledger.db"),
		RedisURL:      getEnv("REDIS_URL", ""),
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisDB:       getIntEnv("REDIS_DB", 0),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		PoolSize:      getIntEnv("REDIS_POOL_SIZE", 10),
	}
}

func loadQueueConfig() QueueConfig {
	return QueueConfig{
		MaxAttempts:         getIntEnv("QUEUE_MAX_ATTEMPTS", 3),
		InitialBackoff:      getDurationEnv("QUEUE_INITIAL_BACKOFF", 0),
		MaxBackoff:          getDurationEnv("QUEUE_MAX_BACKOFF", 5*time.Minute),
		Multiplier:          getFloat64Env("QUEUE_BACKOFF_MULTIPLIER", 2),
		RandomizationFactor: getFloat64Env("QUEUE_BACKOFF_JITTER", 0),
	}
}

func loadConnectivityConfig() ConnectivityConfig {
	return ConnectivityConfig{
		ProbeInterval: getDurationEnv("CONNECTIVITY_PROBE_INTERVAL", 30*time.Second),
		ProbeTimeout:  getDurationEnv("CONNECTIVITY_PROBE_TIMEOUT", 5*time.Second),
		InitialOnline: getBoolEnv("CONNECTIVITY_INITIAL_ONLINE", false),
	}
}

func loadMirrorConfig(env string) MirrorConfig {
	url := getEnv("MIRROR_DATABASE_URL", "")
	return MirrorConfig{
		Enabled:            getBoolEnv("MIRROR_ENABLED", url != ""),
		URL:                url,
		MaxOpenConns:       getIntEnv("MIRROR_MAX_OPEN_CONNS", 5),
		MaxIdleConns:       getIntEnv("MIRROR_MAX_IDLE_CONNS", 2),
		ConnMaxLifetime:    getDurationEnv("MIRROR_CONN_MAX_LIFETIME", 30*time.Minute),
		ConnectTimeout:     getDurationEnv("MIRROR_CONNECT_TIMEOUT", 10*time.Second),
		SlowQueryThreshold: getDurationEnv("MIRROR_SLOW_QUERY_THRESHOLD", 100*time.Millisecond),
		AutoMigrate:        getBoolEnv("MIRROR_AUTO_MIGRATE", env != "production"),
	}
}

func loadLoggingConfig(env string) LoggingConfig {
	return LoggingConfig{
		Level:  getEnv("LOG_LEVEL", getDefaultLogLevel(env)),
		Format: getEnv("LOG_FORMAT", getDefaultLogFormat(env)),
	}
}

// Validate checks every section
func (c *Config) Validate() error {
	validators := []func() error{
		c.Storage.Validate,
		c.Queue.Validate,
		c.Connectivity.Validate,
		c.Mirror.Validate,
	}
	for _, validate := range validators {
		if err := validate(); err != nil {
			return err
		}
	}
	if c.App.UserID == "" {
		return fmt.Errorf("MOODLEDGER_USER_ID is required")
	}
	return nil
}

// Validate checks the storage section
func (s *StorageConfig) Validate() error {
	switch s.Provider {
	case "sqlite":
		if s.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required for the sqlite provider")
		}
	case "redis":
		if s.RedisURL == "" && s.RedisAddr == "" {
			return fmt.Errorf("REDIS_URL or REDIS_ADDR is required for the redis provider")
		}
	case "memory":
	default:
		return fmt.Errorf("unsupported STORAGE_PROVIDER %q", s.Provider)
	}
	return nil
}

// Validate checks the queue section
func (q *QueueConfig) Validate() error {
	if q.MaxAttempts < 1 {
		return fmt.Errorf("QUEUE_MAX_ATTEMPTS must be at least 1")
	}
	if q.InitialBackoff < 0 || q.MaxBackoff <= 0 {
		return fmt.Errorf("queue backoff intervals must not be negative")
	}
	if q.Multiplier < 1 {
		return fmt.Errorf("QUEUE_BACKOFF_MULTIPLIER must be at least 1")
	}
	if q.RandomizationFactor < 0 || q.RandomizationFactor > 1 {
		return fmt.Errorf("QUEUE_BACKOFF_JITTER must be between 0 and 1")
	}
	return nil
}

// Validate checks the connectivity section
func (c *ConnectivityConfig) Validate() error {
	if c.ProbeInterval <= 0 || c.ProbeTimeout <= 0 {
		return fmt.Errorf("connectivity probe interval and timeout must be positive")
	}
	return nil
}

// Validate checks the mirror section
func (m *MirrorConfig) Validate() error {
	if m.Enabled && m.URL == "" {
		return fmt.Errorf("MIRROR_DATABASE_URL is required when the mirror is enabled")
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development"
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getFloat64Env(key string, defaultValue float64) float64 {
	if value, exists := os.LookupEnv(key); exists {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getDefaultLogLevel(env string) string {
	switch env {
	case "production":
		return "info"
	default:
		return "debug"
	}
}

func getDefaultLogFormat(env string) string {
	switch env {
	case "production":
		return "json"
	default:
		return "console"
	}
}
