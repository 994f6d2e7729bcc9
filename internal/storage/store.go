package storage

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// ErrKeyNotFound is returned when a key doesn't exist in the store
// (or has expired).
var ErrKeyNotFound = errors.New("key not found")

// Store defines the interface for the ephemeral key-value store that backs
// edit locks and cursor positions.
// All implementations must be thread-safe for concurrent access.
type Store interface {
	// Get retrieves a value by key
	// Returns ErrKeyNotFound if the key doesn't exist or has expired
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value, overwriting any existing one
	// A ttl of zero means the key never expires
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// SetNX stores a value only if no live value exists for the key
	// Returns true when the value was installed
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)

	// CompareAndDelete removes the key only if its current value equals expected
	// Returns true when the key was removed
	CompareAndDelete(ctx context.Context, key string, expected []byte) (bool, error)

	// Delete removes a key
	// No error if key doesn't exist
	Delete(ctx context.Context, key string) error

	// Scan returns all live keys with the given prefix
	// Order is not guaranteed
	Scan(ctx context.Context, prefix string) ([]string, error)

	// Ping checks the store is reachable
	Ping(ctx context.Context) error

	// Close releases the store's resources
	Close() error
}

// StoreStats contains statistics about the store
type StoreStats struct {
	Keys    int // Number of live keys
	Bytes   int // Total size of all live values in bytes
	Expired int // Number of expired entries not yet purged
}

type entry struct {
	expiresAt time.Time // zero means no expiry
	value     []byte
}

func (e entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// MemoryStore implements Store with in-memory storage
// Uses sync.RWMutex for thread-safe concurrent access
// Expired entries are treated as absent on access and removed by Purge
type MemoryStore struct {
	clock clock.Clock
	data  map[string]entry // Key-value storage
	mu    sync.RWMutex     // Protects concurrent access
}

// NewMemoryStore creates a new in-memory store using the wall clock
func NewMemoryStore() *MemoryStore {
	return NewMemoryStoreWithClock(clock.New())
}

// NewMemoryStoreWithClock creates a new in-memory store reading time from clk
func NewMemoryStoreWithClock(clk clock.Clock) *MemoryStore {
	return &MemoryStore{
		clock: clk,
		data:  make(map[string]entry),
	}
}

// Get retrieves a value by key
// Returns a copy of the value to prevent external modification
func (m *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, exists := m.data[key]
	if !exists || e.expired(m.clock.Now()) {
		return nil, ErrKeyNotFound
	}

	return cloneBytes(e.value), nil
}

// Set stores a value with the given key
// Makes a copy of the value to prevent external modification
func (m *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.data[key] = m.newEntry(value, ttl)
	return nil
}

// SetNX installs the value only when the key is absent or expired
func (m *MemoryStore) SetNX(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e, exists := m.data[key]; exists && !e.expired(m.clock.Now()) {
		return false, nil
	}
	m.data[key] = m.newEntry(value, ttl)
	return true, nil
}

// CompareAndDelete removes the key when its live value equals expected
func (m *MemoryStore) CompareAndDelete(_ context.Context, key string, expected []byte) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, exists := m.data[key]
	if !exists || e.expired(m.clock.Now()) {
		return false, nil
	}
	if string(e.value) != string(expected) {
		return false, nil
	}
	delete(m.data, key)
	return true, nil
}

// Delete removes a key-value pair
// No error if key doesn't exist (idempotent)
func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.data, key)
	return nil
}

// Scan returns the live keys starting with prefix
func (m *MemoryStore) Scan(_ context.Context, prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	now := m.clock.Now()
	keys := make([]string, 0)
	for key, e := range m.data {
		if strings.HasPrefix(key, prefix) && !e.expired(now) {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

// Ping always succeeds for the in-memory store
func (m *MemoryStore) Ping(context.Context) error { return nil }

// Close drops all entries
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = make(map[string]entry)
	return nil
}

// Purge removes expired entries and returns how many were dropped
func (m *MemoryStore) Purge() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	purged := 0
	for key, e := range m.data {
		if e.expired(now) {
			delete(m.data, key)
			purged++
		}
	}
	return purged
}

// RunJanitor purges expired entries every interval until ctx is done.
// Expiry is already enforced lazily on access; the janitor only bounds memory.
func (m *MemoryStore) RunJanitor(ctx context.Context, interval time.Duration) {
	ticker := m.clock.Ticker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.Purge()
		case <-ctx.Done():
			return
		}
	}
}

// Stats returns storage statistics
func (m *MemoryStore) Stats() StoreStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	now := m.clock.Now()
	var stats StoreStats
	for _, e := range m.data {
		if e.expired(now) {
			stats.Expired++
			continue
		}
		stats.Keys++
		stats.Bytes += len(e.value)
	}
	return stats
}

func (m *MemoryStore) newEntry(value []byte, ttl time.Duration) entry {
	e := entry{value: cloneBytes(value)}
	if ttl > 0 {
		e.expiresAt = m.clock.Now().Add(ttl)
	}
	return e
}

func cloneBytes(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
