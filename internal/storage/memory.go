package storage

import (
	"context"
	"sort"
	"sync"

	"keygate/internal/models"
)

// MemoryStorage implements the Storage interface using an in-memory map.
// This is the default backend: keys issued at runtime are lost on restart
// and only the configured bootstrap key is recreated.
type MemoryStorage struct {
	mu     sync.RWMutex
	keys   map[string]*models.CredentialRecord // keyed by hash
	closed bool
}

// NewMemoryStorage creates a new memory-based storage instance
func NewMemoryStorage(config Config) (*MemoryStorage, error) {
	return &MemoryStorage{
		keys: make(map[string]*models.CredentialRecord),
	}, nil
}

// Keys returns all stored records ordered by creation time
func (m *MemoryStorage) Keys(ctx context.Context) ([]*models.CredentialRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrClosed
	}

	records := make([]*models.CredentialRecord, 0, len(m.keys))
	for _, rec := range m.keys {
		// Return a copy to prevent external modification
		records = append(records, rec.Clone())
	}
	sortByCreation(records)

	return records, nil
}

// GetKey retrieves a record by key hash
func (m *MemoryStorage) GetKey(ctx context.Context, hash string) (*models.CredentialRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrClosed
	}

	rec, exists := m.keys[hash]
	if !exists {
		return nil, ErrNotFound
	}

	return rec.Clone(), nil
}

// SaveKey stores or replaces a record
func (m *MemoryStorage) SaveKey(ctx context.Context, rec *models.CredentialRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}

	// Store a copy to prevent external modification
	m.keys[rec.KeyHash] = rec.Clone()

	return nil
}

// DeleteKey removes a record by key hash
func (m *MemoryStorage) DeleteKey(ctx context.Context, hash string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return false, ErrClosed
	}

	if _, exists := m.keys[hash]; !exists {
		return false, nil
	}
	delete(m.keys, hash)

	return true, nil
}

// Ping always succeeds for in-memory storage unless it has been closed.
func (m *MemoryStorage) Ping(_ context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return ErrClosed
	}
	return nil
}

// Close drops all records
func (m *MemoryStorage) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.keys = make(map[string]*models.CredentialRecord)
	m.closed = true

	return nil
}

func sortByCreation(records []*models.CredentialRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].CreatedAt.Equal(records[j].CreatedAt) {
			return records[i].KeyHash < records[j].KeyHash
		}
		return records[i].CreatedAt.Before(records[j].CreatedAt)
	})
}
