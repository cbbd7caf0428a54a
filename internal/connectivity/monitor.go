// Package connectivity tracks the online/offline state that gates queue drains.
package connectivity

import (
	"context"
	"errors"
	"sync"
	"time"

	"moodledger/internal/events"

	"github.com/go-co-op/gocron"
	"go.uber.org/zap"
)

// Probe checks whether the remote mirror is reachable
type Probe func(ctx context.Context) error

// Config controls active probing
type Config struct {
	ProbeInterval time.Duration
	ProbeTimeout  time.Duration
	InitialOnline bool
}

// DefaultConfig probes every 30 seconds and starts offline
func DefaultConfig() Config {
	return Config{
		ProbeInterval: 30 * time.Second,
		ProbeTimeout:  5 * time.Second,
	}
}

// Monitor holds the binary connectivity state and notifies subscribers on
// every transition, in subscription order. Subscribers must not call SetOnline.
type Monitor struct {
	transition sync.Mutex

	mu          sync.RWMutex
	online      bool
	subscribers []func(online bool)

	config    Config
	probe     Probe
	bus       events.EventBus
	logger    *zap.Logger
	scheduler *gocron.Scheduler
	cancel    context.CancelFunc
}

// NewMonitor creates a monitor. probe may be nil when the state is driven
// only through SetOnline.
func NewMonitor(config Config, probe Probe, bus events.EventBus, logger *zap.Logger) *Monitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if bus == nil {
		bus = events.NewNoopBus()
	}
	if config.ProbeInterval <= 0 {
		config.ProbeInterval = DefaultConfig().ProbeInterval
	}
	if config.ProbeTimeout <= 0 {
		config.ProbeTimeout = DefaultConfig().ProbeTimeout
	}
	return &Monitor{
		online: config.InitialOnline,
		config: config,
		probe:  probe,
		bus:    bus,
		logger: logger.With(zap.String("component", "connectivity")),
	}
}

// Subscribe registers fn for future transitions
func (m *Monitor) Subscribe(fn func(online bool)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscribers = append(m.subscribers, fn)
}

// Online reports the current state
func (m *Monitor) Online() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.online
}

// SetOnline records an externally observed state. Subscribers are only
// notified when the state changes.
func (m *Monitor) SetOnline(online bool) {
	m.transition.Lock()
	defer m.transition.Unlock()

	m.mu.Lock()
	if m.online == online {
		m.mu.Unlock()
		return
	}
	m.online = online
	subscribers := append([]func(bool){}, m.subscribers...)
	m.mu.Unlock()

	m.logger.Info("Connectivity changed", zap.Bool("online", online))
	for _, fn := range subscribers {
		fn(online)
	}
	if err := m.bus.Publish(context.Background(), events.NewConnectivityEvent(online, time.Now())); err != nil {
		m.logger.Warn("Event handler failed",
			zap.String("event_type", events.TypeConnectivityChanged),
			zap.Error(err))
	}
}

// Check runs the probe once and records the outcome
func (m *Monitor) Check(ctx context.Context) bool {
	if m.probe == nil {
		return m.Online()
	}

	probeCtx, cancel := context.WithTimeout(ctx, m.config.ProbeTimeout)
	defer cancel()

	err := m.probe(probeCtx)
	if err != nil && ctx.Err() != nil {
		// shutting down; keep the last known state
		return m.Online()
	}
	if err != nil {
		m.logger.Debug("Connectivity probe failed", zap.Error(err))
	}
	m.SetOnline(err == nil)
	return err == nil
}

// Start probes immediately and then every ProbeInterval until Stop or until
// ctx is done.
func (m *Monitor) Start(ctx context.Context) error {
	if m.probe == nil {
		return errors.New("connectivity: no probe configured")
	}

	m.mu.Lock()
	if m.scheduler != nil {
		m.mu.Unlock()
		return errors.New("connectivity: monitor already started")
	}
	probeCtx, cancel := context.WithCancel(ctx)
	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()
	if _, err := s.Every(m.config.ProbeInterval).Do(func() { m.Check(probeCtx) }); err != nil {
		m.mu.Unlock()
		cancel()
		return err
	}
	m.scheduler = s
	m.cancel = cancel
	m.mu.Unlock()

	s.StartAsync()
	m.logger.Info("Connectivity probing started", zap.Duration("interval", m.config.ProbeInterval))
	return nil
}

// Stop halts probing and waits for a running probe to finish
func (m *Monitor) Stop() {
	m.mu.Lock()
	s, cancel := m.scheduler, m.cancel
	m.scheduler, m.cancel = nil, nil
	m.mu.Unlock()

	if s == nil {
		return
	}
	cancel()
	s.Stop()
}
