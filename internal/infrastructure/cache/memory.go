package cache

import (
	"context"
	"encoding/json"
	"path"
	"sync"
	"time"
)

type memoryEntry struct {
	data      []byte
	expiresAt time.Time
}

// Memory is an in-process Store used in tests and local development.
// Expiry is evaluated lazily on read against the Now func, which tests
// override for deterministic TTL behavior.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry

	// Now supplies the clock; defaults to time.Now
	Now func() time.Time
}

// NewMemory creates an empty in-memory store
func NewMemory() *Memory {
	return &Memory{
		entries: make(map[string]memoryEntry),
		Now:     time.Now,
	}
}

var _ Store = (*Memory)(nil)

// Set stores a JSON-marshaled value under key with a TTL
func (m *Memory) Set(_ context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = memoryEntry{data: data, expiresAt: m.Now().Add(ttl)}
	return nil
}

// Get retrieves a value by key; ErrNotFound once the TTL has elapsed
func (m *Memory) Get(_ context.Context, key string, dest interface{}) error {
	m.mu.RLock()
	entry, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok || !entry.expiresAt.After(m.Now()) {
		return ErrNotFound
	}
	return json.Unmarshal(entry.data, dest)
}

// Del deletes a key
func (m *Memory) Del(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

// Exists checks if a live key exists
func (m *Memory) Exists(_ context.Context, key string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.entries[key]
	return ok && entry.expiresAt.After(m.Now()), nil
}

// Expire resets the TTL on an existing key
func (m *Memory) Expire(_ context.Context, key string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.entries[key]
	if !ok {
		return nil
	}
	entry.expiresAt = m.Now().Add(ttl)
	m.entries[key] = entry
	return nil
}

// Keys returns live keys matching a glob pattern
func (m *Memory) Keys(_ context.Context, pattern string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	now := m.Now()
	var keys []string
	for k, entry := range m.entries {
		if !entry.expiresAt.After(now) {
			continue
		}
		if ok, _ := path.Match(pattern, k); ok {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

// Ping always succeeds
func (m *Memory) Ping(context.Context) error { return nil }

// Close is a no-op
func (m *Memory) Close() error { return nil }
