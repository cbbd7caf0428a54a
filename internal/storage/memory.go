package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"moodledger/internal/apperrors"
)

// MemoryAdapter implements Adapter using in-memory storage
type MemoryAdapter struct {
	mu     sync.RWMutex
	items  map[string][]byte
	closed bool

	// failGets and failSets inject backend failures, keyed by storage key.
	// An empty-string key fails every call.
	failGets map[string]error
	failSets map[string]error
}

// NewMemoryAdapter creates a new in-memory adapter
func NewMemoryAdapter() *MemoryAdapter {
	return &MemoryAdapter{
		items:    make(map[string][]byte),
		failGets: make(map[string]error),
		failSets: make(map[string]error),
	}
}

// Get retrieves a value from memory
func (m *MemoryAdapter) Get(ctx context.Context, key string) (json.RawMessage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := m.injected(m.failGets, key); err != nil {
		return nil, apperrors.NewStorageError("get", key, err)
	}

	data, exists := m.items[key]
	if !exists {
		return nil, nil
	}

	out := make(json.RawMessage, len(data))
	copy(out, data)
	return out, nil
}

// Set stores a value in memory
func (m *MemoryAdapter) Set(ctx context.Context, key string, value interface{}) error {
	data, err := encode(value)
	if err != nil {
		return apperrors.NewStorageError("set", key, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.injected(m.failSets, key); err != nil {
		return apperrors.NewStorageError("set", key, err)
	}

	m.items[key] = data
	return nil
}

// Delete removes a value from memory
func (m *MemoryAdapter) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.items, key)
	return nil
}

// Health checks adapter health
func (m *MemoryAdapter) Health(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return fmt.Errorf("memory storage is closed")
	}
	return nil
}

// Close marks the adapter closed
func (m *MemoryAdapter) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	return nil
}

// FailGets makes Get on key return err. Pass a nil error to clear.
func (m *MemoryAdapter) FailGets(key string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err == nil {
		delete(m.failGets, key)
		return
	}
	m.failGets[key] = err
}

// FailSets makes Set on key return err. Pass a nil error to clear.
func (m *MemoryAdapter) FailSets(key string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err == nil {
		delete(m.failSets, key)
		return
	}
	m.failSets[key] = err
}

// Raw stores bytes verbatim, bypassing JSON validation
func (m *MemoryAdapter) Raw(key string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.items[key] = data
}

func (m *MemoryAdapter) injected(failures map[string]error, key string) error {
	if err, ok := failures[key]; ok {
		return err
	}
	if err, ok := failures[""]; ok {
		return err
	}
	return nil
}
