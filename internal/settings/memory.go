package settings

import (
	"context"
	"sync"
)

// MemoryStore is a Store kept in process memory. It counts writes so
// callers can assert on persistence behaviour.
type MemoryStore struct {
	mu     sync.Mutex
	values map[string]string
	saves  int
	resets int
	// Err, when set, is returned by every operation.
	Err error
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]string)}
}

func (m *MemoryStore) Load(context.Context) (Settings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return Settings{}, m.Err
	}
	return fromMap(m.values), nil
}

func (m *MemoryStore) Save(_ context.Context, s Settings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.values = s.toMap()
	m.saves++
	return nil
}

func (m *MemoryStore) Reset(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.values = make(map[string]string)
	m.resets++
	return nil
}

func (m *MemoryStore) Close() error { return nil }

// Saves returns the number of successful Save calls.
func (m *MemoryStore) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

// Resets returns the number of successful Reset calls.
func (m *MemoryStore) Resets() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.resets
}
