package models

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"maps"
	"slices"
	"time"
)

const (
	// WildcardScope grants every permission.
	WildcardScope = "*"

	// APIKeyPrefix marks generated credentials so they are recognizable in
	// configuration files and secret scanners.
	APIKeyPrefix = "sk-"

	// KeyIDLength is the number of hash characters shown to identify a key.
	KeyIDLength = 8
)

// CredentialRecord is the stored state of one API key. The raw key value is
// never kept; records are addressed by the SHA-256 hex hash of the raw key.
type CredentialRecord struct {
	KeyHash   string         `json:"key_hash"`
	Scopes    []string       `json:"scopes"`
	RateLimit int            `json:"rate_limit"`
	CreatedAt time.Time      `json:"created_at"`
	ExpiresAt time.Time      `json:"expires_at"`
	Metadata  map[string]any `json:"metadata"`
}

// NewCredentialRecord builds a record for rawKey that expires ttl after now.
func NewCredentialRecord(rawKey string, scopes []string, rateLimit int, ttl time.Duration, metadata map[string]any, now time.Time) *CredentialRecord {
	if metadata == nil {
		metadata = map[string]any{}
	}
	return &CredentialRecord{
		KeyHash:   HashAPIKey(rawKey),
		Scopes:    slices.Clone(scopes),
		RateLimit: rateLimit,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
		Metadata:  maps.Clone(metadata),
	}
}

// GenerateAPIKey produces a new random API key in the format sk-<32 hex chars>
// carrying 128 bits of entropy.
func GenerateAPIKey() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate api key: %w", err)
	}
	return APIKeyPrefix + hex.EncodeToString(b), nil
}

// HashAPIKey computes the SHA-256 hex digest of a raw API key.
func HashAPIKey(rawKey string) string {
	sum := sha256.Sum256([]byte(rawKey))
	return hex.EncodeToString(sum[:])
}

// KeyID returns the short display identifier for a key hash.
func KeyID(hash string) string {
	if len(hash) > KeyIDLength {
		return hash[:KeyIDLength]
	}
	return hash
}

// RawKeyHint returns at most the first five characters of a raw key, for
// log lines about rejected credentials.
func RawKeyHint(rawKey string) string {
	const n = 5
	if len(rawKey) > n {
		return rawKey[:n] + "..."
	}
	return rawKey + "..."
}

// HasScope reports whether the record grants scope, directly or through the
// wildcard scope.
func (r *CredentialRecord) HasScope(scope string) bool {
	for _, s := range r.Scopes {
		if s == scope || s == WildcardScope {
			return true
		}
	}
	return false
}

// IsExpired reports whether now is past the record's expiry.
func (r *CredentialRecord) IsExpired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}

// Clone returns a deep copy so callers can read or mutate it without
// sharing slices or maps with the store.
func (r *CredentialRecord) Clone() *CredentialRecord {
	c := *r
	c.Scopes = slices.Clone(r.Scopes)
	c.Metadata = maps.Clone(r.Metadata)
	if c.Metadata == nil {
		c.Metadata = map[string]any{}
	}
	return &c
}

// MergeMetadata shallow-merges updates into the record's metadata; keys in
// updates override existing ones.
func (r *CredentialRecord) MergeMetadata(updates map[string]any) {
	if r.Metadata == nil {
		r.Metadata = make(map[string]any, len(updates))
	}
	maps.Copy(r.Metadata, updates)
}

// UsageInfo describes the current rate-limit window of a key.
type UsageInfo struct {
	Requests    int    `json:"requests"`
	WindowStart string `json:"window_start"`
}

// KeyInfo is the read-only view of a credential returned by introspection.
// It identifies the key only by a short prefix of its hash.
type KeyInfo struct {
	KeyID     string         `json:"key_id"`
	Scopes    []string       `json:"scopes"`
	RateLimit int            `json:"rate_limit"`
	CreatedAt string         `json:"created_at"`
	ExpiresAt string         `json:"expires_at"`
	Expired   bool           `json:"expired"`
	Metadata  map[string]any `json:"metadata"`
	Usage     *UsageInfo     `json:"usage,omitempty"`
}

// NewKeyInfo renders rec as a KeyInfo with RFC3339 timestamps.
func NewKeyInfo(rec *CredentialRecord, now time.Time) *KeyInfo {
	c := rec.Clone()
	return &KeyInfo{
		KeyID:     KeyID(c.KeyHash),
		Scopes:    c.Scopes,
		RateLimit: c.RateLimit,
		CreatedAt: c.CreatedAt.UTC().Format(time.RFC3339),
		ExpiresAt: c.ExpiresAt.UTC().Format(time.RFC3339),
		Expired:   c.IsExpired(now),
		Metadata:  c.Metadata,
	}
}
