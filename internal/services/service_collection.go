// file: internal/services/service_collection.go
package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"moodledger/internal/cache"
	"moodledger/internal/config"
	"moodledger/internal/connectivity"
	"moodledger/internal/database"
	"moodledger/internal/events"
	"moodledger/internal/ledger"
	"moodledger/internal/mirror"
	"moodledger/internal/progression"
	"moodledger/internal/storage"
	"moodledger/internal/syncqueue"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// ServiceCollection holds every component of the local agent, wired in
// dependency order
type ServiceCollection struct {
	// Core Services
	Tracker TrackerService

	// Record owners
	Ledger  *ledger.Ledger
	Queue   *syncqueue.Queue
	Engine  *progression.Engine
	Monitor *connectivity.Monitor

	// Infrastructure Components
	Storage   storage.Adapter
	EventBus  events.EventBus
	Views     *cache.Cache
	Mirror    *mirror.Mirror
	DBManager *database.Manager
	Logger    *zap.Logger
	Config    *config.Config

	// Service Management
	healthCheckers map[string]HealthChecker
	probe          connectivity.Probe
	now            func() time.Time
	startTime      time.Time
	migrated       bool
	mu             sync.RWMutex
	initialized    bool
	started        bool
}

// Option overrides a component the collection would otherwise build from
// configuration
type Option func(*ServiceCollection)

// WithStorage injects the storage adapter
func WithStorage(adapter storage.Adapter) Option {
	return func(sc *ServiceCollection) { sc.Storage = adapter }
}

// WithMirrorExecutor injects the remote mirror connection
func WithMirrorExecutor(db mirror.Executor) Option {
	return func(sc *ServiceCollection) { sc.Mirror = mirror.New(db, sc.Logger) }
}

// WithProbe overrides the connectivity probe
func WithProbe(probe connectivity.Probe) Option {
	return func(sc *ServiceCollection) { sc.probe = probe }
}

// WithClock overrides the wall clock of every record owner
func WithClock(now func() time.Time) Option {
	return func(sc *ServiceCollection) { sc.now = now }
}

// NewServiceCollection creates the local agent
func NewServiceCollection(cfg *config.Config, logger *zap.Logger, opts ...Option) (*ServiceCollection, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	collection := &ServiceCollection{
		Config:         cfg,
		Logger:         logger,
		healthCheckers: make(map[string]HealthChecker),
		now:            time.Now,
		startTime:      time.Now(),
	}
	for _, opt := range opts {
		opt(collection)
	}

	// Initialize in dependency order
	if err := collection.initializeInfrastructure(); err != nil {
		return nil, fmt.Errorf("failed to initialize infrastructure: %w", err)
	}

	if err := collection.initializeMirror(); err != nil {
		collection.Close()
		return nil, fmt.Errorf("failed to initialize mirror: %w", err)
	}

	collection.initializeServices()

	collection.initialized = true
	logger.Info("Service collection initialized successfully",
		zap.String("storage_provider", cfg.Storage.Provider),
		zap.Bool("mirror_enabled", collection.Mirror != nil),
	)

	return collection, nil
}

// ===============================
// INITIALIZATION METHODS
// ===============================

// initializeInfrastructure sets up storage, the event bus and the view cache
func (sc *ServiceCollection) initializeInfrastructure() error {
	sc.Logger.Info("Initializing infrastructure components")

	if sc.Storage == nil {
		adapter, err := storage.NewAdapter(storageConfig(sc.Config), sc.Logger)
		if err != nil {
			return fmt.Errorf("failed to initialize storage: %w", err)
		}
		sc.Storage = adapter
	}
	sc.registerHealthChecker(&checker{name: "storage", check: sc.Storage.Health})

	sc.EventBus = events.NewEventBus(events.DefaultEventBusConfig(), sc.Logger)
	sc.Views = cache.New(cache.DefaultConfig(), sc.Logger)

	sc.Logger.Info("Infrastructure components initialized")
	return nil
}

// initializeMirror opens the remote mirror pool. An unreachable server is
// not an error: actions stay queued until the probe reports it online.
func (sc *ServiceCollection) initializeMirror() error {
	if sc.Mirror == nil && sc.Config.Mirror.Enabled {
		manager, err := database.OpenManager(databaseConfig(sc.Config), sc.Logger)
		if err != nil {
			return err
		}
		sc.DBManager = manager
		sc.Mirror = mirror.New(manager, sc.Logger)
	}

	if sc.Mirror == nil {
		sc.Logger.Info("Remote mirror disabled; actions stay queued locally")
		return nil
	}
	if sc.probe == nil {
		sc.probe = sc.Mirror.Ping
	}
	sc.registerHealthChecker(&checker{name: "mirror", check: sc.Mirror.Ping})
	return nil
}

// initializeServices builds the record owners and the tracker
func (sc *ServiceCollection) initializeServices() {
	keys := storage.Keys{Namespace: sc.Config.Storage.Namespace}

	sc.Ledger = ledger.New(sc.Storage, keys.Moods(), sc.Logger, ledger.WithClock(sc.now))

	sc.Queue = syncqueue.New(sc.Storage, keys.SyncQueue(), queueConfig(sc.Config), sc.EventBus, sc.Logger,
		syncqueue.WithClock(sc.now))
	if sc.Mirror != nil {
		for actionType, handler := range sc.Mirror.Handlers() {
			sc.Queue.RegisterHandler(actionType, handler)
		}
	}

	sc.Engine = progression.New(sc.Storage, keys.Badges(), sc.Ledger, sc.EventBus, sc.Logger,
		progression.WithClock(sc.now))

	sc.Monitor = connectivity.NewMonitor(connectivityConfig(sc.Config), sc.probe, sc.EventBus, sc.Logger)

	sc.Tracker = NewTrackerService(sc.Config.App.UserID, sc.Ledger, sc.Queue, sc.Engine, sc.Views, sc.Logger, sc.now)
}

// ===============================
// SERVICE LIFECYCLE MANAGEMENT
// ===============================

// Start restores persisted state, connects the queue to connectivity and
// begins probing
func (sc *ServiceCollection) Start(ctx context.Context) error {
	sc.mu.Lock()
	if !sc.initialized {
		sc.mu.Unlock()
		return fmt.Errorf("service collection not initialized")
	}
	if sc.started {
		sc.mu.Unlock()
		return fmt.Errorf("service collection already started")
	}
	sc.started = true
	sc.mu.Unlock()

	sc.Logger.Info("Starting service collection")

	pending := sc.Queue.Load(ctx)
	moods := len(sc.Ledger.Load(ctx))
	state := sc.Engine.Progression(ctx)

	sc.Monitor.Subscribe(func(online bool) {
		if online {
			sc.ensureMigrated()
		}
	})
	sc.Monitor.Subscribe(sc.Queue.HandleConnectivity)

	if sc.probe != nil {
		sc.Monitor.Check(ctx)
		if err := sc.Monitor.Start(ctx); err != nil {
			return fmt.Errorf("failed to start connectivity monitor: %w", err)
		}
	}
	if sc.Monitor.Online() {
		sc.ensureMigrated()
	}
	sc.Queue.HandleConnectivity(sc.Monitor.Online())

	sc.Logger.Info("Service collection started successfully",
		zap.Int("mood_entries", moods),
		zap.Int("pending_actions", pending),
		zap.Int("total_points", state.TotalPoints),
		zap.String("level", state.Level),
		zap.Bool("online", sc.Monitor.Online()),
	)
	return nil
}

// Shutdown stops probing, waits for in-flight drains and closes resources
func (sc *ServiceCollection) Shutdown(ctx context.Context) error {
	sc.Logger.Info("Shutting down service collection")

	var shutdownErr error
	sc.Monitor.Stop()

	done := make(chan struct{})
	go func() {
		sc.Queue.Wait()
		close(done)
	}()

	select {
	case <-done:
		sc.Logger.Info("Sync queue drains finished")
	case <-ctx.Done():
		sc.Logger.Warn("Shutdown timeout exceeded")
		shutdownErr = multierr.Append(shutdownErr, fmt.Errorf("shutdown timeout exceeded"))
	}

	shutdownErr = multierr.Append(shutdownErr, sc.Close())
	if shutdownErr != nil {
		sc.Logger.Error("Errors occurred during shutdown",
			zap.Int("error_count", len(multierr.Errors(shutdownErr))),
			zap.Error(shutdownErr),
		)
		return shutdownErr
	}

	sc.Logger.Info("Service collection shutdown completed successfully")
	return nil
}

// Close releases storage and the mirror pool
func (sc *ServiceCollection) Close() error {
	var err error
	if sc.Storage != nil {
		err = multierr.Append(err, wrapClose("storage", sc.Storage.Close()))
	}
	if sc.DBManager != nil {
		err = multierr.Append(err, wrapClose("database", sc.DBManager.Close()))
	}
	return err
}

// HealthCheck checks every registered component
func (sc *ServiceCollection) HealthCheck(ctx context.Context) *ServiceHealth {
	sc.Logger.Debug("Performing service collection health check")

	health := &ServiceHealth{
		Status:    "healthy",
		Timestamp: time.Now(),
		Services:  make(map[string]ServiceStatus),
		Uptime:    time.Since(sc.startTime),
		Issues:    []string{},
	}

	sc.mu.RLock()
	checkers := make([]HealthChecker, 0, len(sc.healthCheckers))
	for _, hc := range sc.healthCheckers {
		checkers = append(checkers, hc)
	}
	sc.mu.RUnlock()

	for _, hc := range checkers {
		status := sc.checkServiceHealth(ctx, hc)
		health.Services[hc.ServiceName()] = status
		if status.Status != "healthy" {
			health.Issues = append(health.Issues, fmt.Sprintf("%s: %s", hc.ServiceName(), status.Error))
		}
	}

	// storage failures are fatal to health, mirror failures only degrade it
	if storageStatus, ok := health.Services["storage"]; ok && storageStatus.Status != "healthy" {
		health.Status = "unhealthy"
	} else if len(health.Issues) > 0 {
		health.Status = "degraded"
	}

	sc.Logger.Debug("Health check completed",
		zap.String("status", health.Status),
		zap.Int("issues", len(health.Issues)),
	)
	return health
}

// ===============================
// PRIVATE HELPER METHODS
// ===============================

// ensureMigrated applies mirror migrations once per process, on the first
// moment the mirror is reachable
func (sc *ServiceCollection) ensureMigrated() {
	if sc.DBManager == nil || !sc.Config.Mirror.AutoMigrate {
		return
	}

	sc.mu.Lock()
	defer sc.mu.Unlock()
	if sc.migrated {
		return
	}
	if err := sc.DBManager.Migrate(); err != nil {
		sc.Logger.Error("Mirror migration failed", zap.Error(err))
		return
	}
	sc.migrated = true
}

// registerHealthChecker registers a health checker
func (sc *ServiceCollection) registerHealthChecker(hc HealthChecker) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.healthCheckers[hc.ServiceName()] = hc
}

// checkServiceHealth runs one checker with a bounded timeout
func (sc *ServiceCollection) checkServiceHealth(ctx context.Context, hc HealthChecker) ServiceStatus {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	start := time.Now()
	err := hc.HealthCheck(ctx)
	status := ServiceStatus{
		Name:         hc.ServiceName(),
		Status:       "healthy",
		LastCheck:    time.Now(),
		ResponseTime: time.Since(start),
	}
	if err != nil {
		status.Status = "unhealthy"
		status.Error = err.Error()
	}
	return status
}

// checker adapts a health function to HealthChecker
type checker struct {
	name  string
	check func(ctx context.Context) error
}

func (c *checker) HealthCheck(ctx context.Context) error { return c.check(ctx) }
func (c *checker) ServiceName() string                   { return c.name }

func wrapClose(component string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s close: %w", component, err)
}

// ===============================
// CONFIGURATION MAPPING
// ===============================

func storageConfig(cfg *config.Config) *storage.Config {
	return &storage.Config{
		Provider:      cfg.Storage.Provider,
		Namespace:     cfg.Storage.Namespace,
		SQLitePath:    cfg.Storage.SQLitePath,
		RedisURL:      cfg.Storage.RedisURL,
		RedisAddr:     cfg.Storage.RedisAddr,
		RedisDB:       cfg.Storage.RedisDB,
		RedisPassword: cfg.Storage.RedisPassword,
		PoolSize:      cfg.Storage.PoolSize,
	}
}

func queueConfig(cfg *config.Config) syncqueue.Config {
	return syncqueue.Config{
		MaxAttempts:         cfg.Queue.MaxAttempts,
		InitialBackoff:      cfg.Queue.InitialBackoff,
		MaxBackoff:          cfg.Queue.MaxBackoff,
		Multiplier:          cfg.Queue.Multiplier,
		RandomizationFactor: cfg.Queue.RandomizationFactor,
	}
}

func connectivityConfig(cfg *config.Config) connectivity.Config {
	return connectivity.Config{
		ProbeInterval: cfg.Connectivity.ProbeInterval,
		ProbeTimeout:  cfg.Connectivity.ProbeTimeout,
		InitialOnline: cfg.Connectivity.InitialOnline,
	}
}

func databaseConfig(cfg *config.Config) *database.Config {
	return &database.Config{
		URL:                cfg.Mirror.URL,
		MaxOpenConns:       cfg.Mirror.MaxOpenConns,
		MaxIdleConns:       cfg.Mirror.MaxIdleConns,
		ConnMaxLifetime:    cfg.Mirror.ConnMaxLifetime,
		ConnectTimeout:     cfg.Mirror.ConnectTimeout,
		SlowQueryThreshold: cfg.Mirror.SlowQueryThreshold,
	}
}
