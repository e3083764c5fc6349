package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"keygate/internal/models"
)

// JSONStorage implements the Storage interface by mirroring hash-keyed
// records to a JSON file so issued keys survive a restart. It keeps an
// in-memory cache and re-reads the file when it changes on disk.
type JSONStorage struct {
	filePath     string
	cacheTTL     time.Duration
	mu           sync.RWMutex
	data         *JSONData
	lastModified time.Time
	cacheExpiry  time.Time
	closed       bool
}

// JSONData represents the structure of data stored in JSON format
type JSONData struct {
	Keys        []*models.CredentialRecord `json:"keys"`
	LastUpdated time.Time                  `json:"last_updated"`
}

// NewJSONStorage creates a new JSON-based storage instance
func NewJSONStorage(config Config) (*JSONStorage, error) {
	cacheTTL := 5 * time.Minute
	if config.CacheTTL != "" {
		if duration, err := time.ParseDuration(config.CacheTTL); err == nil {
			cacheTTL = duration
		}
	}

	storage := &JSONStorage{
		filePath: config.Path,
		cacheTTL: cacheTTL,
	}

	// Initialize with empty data if file doesn't exist
	if err := storage.ensureFileExists(); err != nil {
		return nil, fmt.Errorf("failed to ensure file exists: %w", err)
	}

	// Load initial data
	if err := storage.loadData(); err != nil {
		return nil, fmt.Errorf("failed to load initial data: %w", err)
	}

	return storage, nil
}

// ensureFileExists creates the JSON file with empty data if it doesn't exist
func (j *JSONStorage) ensureFileExists() error {
	if _, err := os.Stat(j.filePath); os.IsNotExist(err) {
		if err := os.MkdirAll(filepath.Dir(j.filePath), 0700); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}

		return j.saveData(&JSONData{Keys: []*models.CredentialRecord{}})
	}
	return nil
}

// loadData loads data from the JSON file with caching.
// It uses double-checked locking: a fast read-lock path for cache hits,
// and a write-lock slow path with re-validation to prevent TOCTOU races.
func (j *JSONStorage) loadData() error {
	j.mu.RLock()
	if j.closed {
		j.mu.RUnlock()
		return ErrClosed
	}
	if j.data != nil && time.Now().Before(j.cacheExpiry) {
		j.mu.RUnlock()
		return nil
	}
	j.mu.RUnlock()

	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		return ErrClosed
	}

	// Another goroutine may have loaded while we waited for the write lock.
	if j.data != nil && time.Now().Before(j.cacheExpiry) {
		return nil
	}

	info, err := os.Stat(j.filePath)
	if err != nil {
		return fmt.Errorf("failed to stat file: %w", err)
	}

	// If the file hasn't changed, extend the cache and return.
	if j.data != nil && !info.ModTime().After(j.lastModified) {
		j.cacheExpiry = time.Now().Add(j.cacheTTL)
		return nil
	}

	fileData, err := os.ReadFile(j.filePath)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}

	var data JSONData
	if err := json.Unmarshal(fileData, &data); err != nil {
		return fmt.Errorf("failed to unmarshal JSON: %w", err)
	}

	j.data = &data
	j.lastModified = info.ModTime()
	j.cacheExpiry = time.Now().Add(j.cacheTTL)
	return nil
}

// saveData writes data through a temp file and rename so a crash never
// leaves a truncated key file. Callers hold the write lock.
func (j *JSONStorage) saveData(data *JSONData) error {
	data.LastUpdated = time.Now()

	fileData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	tmp := j.filePath + ".tmp"
	if err := os.WriteFile(tmp, fileData, 0600); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := os.Rename(tmp, j.filePath); err != nil {
		return fmt.Errorf("failed to replace file: %w", err)
	}

	if info, err := os.Stat(j.filePath); err == nil {
		j.lastModified = info.ModTime()
	}

	return nil
}

// Keys returns all stored records ordered by creation time
func (j *JSONStorage) Keys(ctx context.Context) ([]*models.CredentialRecord, error) {
	if err := j.loadData(); err != nil {
		return nil, err
	}

	j.mu.RLock()
	defer j.mu.RUnlock()

	if j.data == nil {
		return nil, ErrClosed
	}

	records := make([]*models.CredentialRecord, 0, len(j.data.Keys))
	for _, rec := range j.data.Keys {
		records = append(records, rec.Clone())
	}
	sortByCreation(records)

	return records, nil
}

// GetKey retrieves a record by key hash
func (j *JSONStorage) GetKey(ctx context.Context, hash string) (*models.CredentialRecord, error) {
	if err := j.loadData(); err != nil {
		return nil, err
	}

	j.mu.RLock()
	defer j.mu.RUnlock()

	if j.data == nil {
		return nil, ErrClosed
	}

	for _, rec := range j.data.Keys {
		if rec.KeyHash == hash {
			return rec.Clone(), nil
		}
	}

	return nil, ErrNotFound
}

// SaveKey stores or replaces a record and persists the file
func (j *JSONStorage) SaveKey(ctx context.Context, rec *models.CredentialRecord) error {
	if err := j.loadData(); err != nil {
		return err
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	if j.data == nil {
		return ErrClosed
	}

	stored := rec.Clone()
	for i, existing := range j.data.Keys {
		if existing.KeyHash == rec.KeyHash {
			previous := existing
			j.data.Keys[i] = stored
			if err := j.saveData(j.data); err != nil {
				j.data.Keys[i] = previous
				return err
			}
			return nil
		}
	}

	j.data.Keys = append(j.data.Keys, stored)
	if err := j.saveData(j.data); err != nil {
		j.data.Keys = j.data.Keys[:len(j.data.Keys)-1]
		return err
	}
	return nil
}

// DeleteKey removes a record by key hash and persists the file
func (j *JSONStorage) DeleteKey(ctx context.Context, hash string) (bool, error) {
	if err := j.loadData(); err != nil {
		return false, err
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	if j.data == nil {
		return false, ErrClosed
	}

	for i, rec := range j.data.Keys {
		if rec.KeyHash == hash {
			remaining := make([]*models.CredentialRecord, 0, len(j.data.Keys)-1)
			remaining = append(remaining, j.data.Keys[:i]...)
			remaining = append(remaining, j.data.Keys[i+1:]...)

			previous := j.data.Keys
			j.data.Keys = remaining
			if err := j.saveData(j.data); err != nil {
				j.data.Keys = previous
				return false, err
			}
			return true, nil
		}
	}

	return false, nil
}

// Ping verifies the backing file is still readable.
func (j *JSONStorage) Ping(_ context.Context) error {
	j.mu.RLock()
	closed := j.closed
	j.mu.RUnlock()
	if closed {
		return ErrClosed
	}
	if _, err := os.Stat(j.filePath); err != nil {
		return fmt.Errorf("failed to stat file: %w", err)
	}
	return nil
}

// Close closes the storage connection and cleans up resources
func (j *JSONStorage) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	// Clear cache
	j.data = nil
	j.cacheExpiry = time.Time{}
	j.closed = true

	return nil
}
