package sessions

import (
	"context"
	"fmt"
	"sync"
	"time"

	apperrors "github.com/jrsteele09/epr-admin-frontend/internal/errors"
)

// NowTimeFunc returns the current time. It can be overridden in tests.
var NowTimeFunc = time.Now

// Store is the keyed cache behind sessions, flash values and pending logins.
// Get and Take return ErrSessionNotFound on a miss.
type Store interface {
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	// Take reads and removes a value in one step.
	Take(ctx context.Context, key string) ([]byte, error)
}

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// MemoryStore is an in-memory implementation of Store for single instance deployments and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates a new in-memory session store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
	}
}

// Set creates or replaces an entry
func (m *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if key == "" {
		return fmt.Errorf("key is required")
	}
	if ttl <= 0 {
		return fmt.Errorf("ttl must be positive")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Keep a copy so callers can't mutate stored bytes
	m.entries[key] = memoryEntry{
		value:     append([]byte(nil), value...),
		expiresAt: NowTimeFunc().Add(ttl),
	}
	return nil
}

func (m *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	entry, ok := m.entries[key]
	m.mu.RUnlock()

	if !ok {
		return nil, apperrors.ErrSessionNotFound
	}
	if !NowTimeFunc().Before(entry.expiresAt) {
		m.evictExpired(key)
		return nil, apperrors.ErrSessionNotFound
	}
	return append([]byte(nil), entry.value...), nil
}

// evictExpired deletes key only if it is still expired under the write lock,
// so a Set that landed after the read is kept.
func (m *MemoryStore) evictExpired(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if entry, ok := m.entries[key]; ok && !NowTimeFunc().Before(entry.expiresAt) {
		delete(m.entries, key)
	}
}

// Delete removes an entry. Missing keys are not an error.
func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.entries, key)
	return nil
}

func (m *MemoryStore) Take(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[key]
	if !ok {
		return nil, apperrors.ErrSessionNotFound
	}
	delete(m.entries, key)

	if !NowTimeFunc().Before(entry.expiresAt) {
		return nil, apperrors.ErrSessionNotFound
	}
	return entry.value, nil
}
