package storage

import (
	"context"

	"keygate/internal/models"
)

// Storage defines the interface for credential record persistence.
// Records are addressed only by the SHA-256 hex hash of the raw key; the raw
// value never reaches a backend. Implementations return copies so callers
// cannot mutate stored state without going through SaveKey.
type Storage interface {
	// Keys returns every stored credential record
	Keys(ctx context.Context) ([]*models.CredentialRecord, error)

	// GetKey retrieves a record by key hash, or ErrNotFound
	GetKey(ctx context.Context, hash string) (*models.CredentialRecord, error)

	// SaveKey stores or replaces the record under rec.KeyHash
	SaveKey(ctx context.Context, rec *models.CredentialRecord) error

	// DeleteKey removes a record and reports whether one existed
	DeleteKey(ctx context.Context, hash string) (bool, error)

	// Ping reports whether the backend is usable
	Ping(ctx context.Context) error

	// Close releases backend resources
	Close() error
}

// Config holds configuration for storage backends
type Config struct {
	// Type specifies the storage backend type (memory, json)
	Type string `json:"type" yaml:"type"`

	// Path is used for file-based storage backends
	Path string `json:"path,omitempty" yaml:"path,omitempty"`

	// CacheTTL specifies how long the JSON backend trusts its in-memory copy
	// before checking the file for external changes
	CacheTTL string `json:"cache_ttl,omitempty" yaml:"cache_ttl,omitempty"`
}
