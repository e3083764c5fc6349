// Package keys implements API key governance: issuing, validating,
// rate limiting, updating, revoking and introspecting opaque bearer
// credentials. Only SHA-256 hashes of raw keys are ever stored.
package keys

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"keygate/internal/models"
	"keygate/internal/ratelimit"
	"keygate/internal/storage"
)

const (
	// DefaultKeyTTL is the lifetime of the bootstrap credential.
	DefaultKeyTTL = 365 * 24 * time.Hour

	// DefaultKeyName is recorded in the bootstrap credential's metadata.
	DefaultKeyName = "Default Development API Key"

	day = 24 * time.Hour

	maxGenerateAttempts = 5
)

// GenerateOptions describes a new credential. Zero values select defaults:
// nil Scopes grants the wildcard scope, zero RateLimit and ExpiryDays use the
// manager's configured defaults.
type GenerateOptions struct {
	Scopes     []string
	RateLimit  int
	ExpiryDays int
	Metadata   map[string]any
}

// UpdateOptions lists the attributes to change. Nil fields are left alone.
// Metadata is merged into the existing metadata, and ExpiryDays counts from
// the time of the update.
type UpdateOptions struct {
	Scopes     []string
	RateLimit  *int
	ExpiryDays *int
	Metadata   map[string]any
}

// Manager owns the credential records and their rate-limit trackers. A
// single Manager is built at startup and shared by the request gate and the
// admin API.
type Manager struct {
	store   storage.Storage
	limiter ratelimit.Limiter

	now               func() time.Time
	newKey            func() (string, error)
	defaultRateLimit  int
	defaultExpiryDays int

	// mu serializes read-modify-write of records against readers so a
	// reader never observes a half-applied update or a revoked key's tracker
	// being recreated.
	mu sync.RWMutex
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// WithDefaultRateLimit sets the per-window quota for keys generated without one.
func WithDefaultRateLimit(limit int) Option {
	return func(m *Manager) {
		if limit > 0 {
			m.defaultRateLimit = limit
		}
	}
}

// WithDefaultExpiryDays sets the lifetime of keys generated without one.
func WithDefaultExpiryDays(days int) Option {
	return func(m *Manager) {
		if days > 0 {
			m.defaultExpiryDays = days
		}
	}
}

// WithKeyGenerator replaces the raw key source.
func WithKeyGenerator(gen func() (string, error)) Option {
	return func(m *Manager) {
		m.newKey = gen
	}
}

// NewManager creates a manager over the given store and limiter.
func NewManager(store storage.Storage, limiter ratelimit.Limiter, opts ...Option) *Manager {
	m := &Manager{
		store:             store,
		limiter:           limiter,
		now:               time.Now,
		newKey:            models.GenerateAPIKey,
		defaultRateLimit:  models.DefaultRateLimit,
		defaultExpiryDays: models.DefaultExpiryDays,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Validate checks raw against the stored records. It never touches the
// rate-limit tracker.
func (m *Manager) Validate(ctx context.Context, raw, scope string) error {
	if raw == "" {
		return newMissingCredentialError()
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, err := m.lookup(ctx, raw)
	if err != nil {
		return err
	}

	if rec.IsExpired(m.now()) {
		slog.Warn("Expired API key attempt", "key_prefix", models.RawKeyHint(raw))
		return newExpiredError()
	}

	if scope != "" && !rec.HasScope(scope) {
		slog.Warn("Unauthorized scope attempt",
			"scope", scope,
			"key_prefix", models.RawKeyHint(raw),
		)
		return newScopeDeniedError(scope)
	}

	return nil
}

// CheckRateLimit counts one request for raw within the current window. A
// credential without a record is refused with UnknownCredential rather than
// being given a tracker.
func (m *Manager) CheckRateLimit(ctx context.Context, raw string) (ratelimit.Info, error) {
	if raw == "" {
		return ratelimit.Info{}, newMissingCredentialError()
	}

	// The read lock is held across Allow so a concurrent Revoke cannot
	// delete the tracker between the record lookup and the increment.
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, err := m.lookup(ctx, raw)
	if err != nil {
		return ratelimit.Info{}, err
	}

	allowed, info := m.limiter.Allow(rec.KeyHash, rec.RateLimit)
	if !allowed {
		slog.Warn("Rate limit exceeded",
			"key_prefix", models.RawKeyHint(raw),
			"limit", info.Limit,
			"retry_after", ratelimit.RetryAfterSeconds(info),
		)
		return info, newRateLimitError()
	}

	return info, nil
}

// Generate issues a new credential and returns the raw key. The raw value
// is not retrievable afterwards.
func (m *Manager) Generate(ctx context.Context, opts GenerateOptions) (string, error) {
	if opts.RateLimit < 0 {
		return "", invalidArgument("rate limit must be positive, got %d", opts.RateLimit)
	}
	if opts.ExpiryDays < 0 {
		return "", invalidArgument("expiry days must be positive, got %d", opts.ExpiryDays)
	}

	scopes := opts.Scopes
	if scopes == nil {
		scopes = []string{models.WildcardScope}
	}
	rateLimit := opts.RateLimit
	if rateLimit == 0 {
		rateLimit = m.defaultRateLimit
	}
	expiryDays := opts.ExpiryDays
	if expiryDays == 0 {
		expiryDays = m.defaultExpiryDays
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for attempt := 0; attempt < maxGenerateAttempts; attempt++ {
		raw, err := m.newKey()
		if err != nil {
			return "", err
		}

		hash := models.HashAPIKey(raw)
		_, err = m.store.GetKey(ctx, hash)
		if err == nil {
			slog.Warn("Generated API key collided with an existing record, retrying",
				"attempt", attempt+1,
			)
			continue
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return "", fmt.Errorf("failed to check for existing key: %w", err)
		}

		rec := models.NewCredentialRecord(raw, scopes, rateLimit, time.Duration(expiryDays)*day, opts.Metadata, m.now())
		if err := m.store.SaveKey(ctx, rec); err != nil {
			return "", fmt.Errorf("failed to store key: %w", err)
		}

		slog.Info("API key generated",
			"event", "security_audit",
			"action", "generate",
			"key_id", models.KeyID(hash),
			"scopes", rec.Scopes,
			"rate_limit", rec.RateLimit,
			"expires_at", rec.ExpiresAt.UTC().Format(time.RFC3339),
		)
		return raw, nil
	}

	return "", fmt.Errorf("failed to generate a unique key after %d attempts", maxGenerateAttempts)
}

// Revoke deletes the credential and its tracker. It reports whether a
// record existed, so a second revoke returns false.
func (m *Manager) Revoke(ctx context.Context, raw string) (bool, error) {
	if raw == "" {
		return false, invalidArgument("key is required")
	}

	hash := models.HashAPIKey(raw)

	m.mu.Lock()
	defer m.mu.Unlock()

	deleted, err := m.store.DeleteKey(ctx, hash)
	if err != nil {
		return false, fmt.Errorf("failed to delete key: %w", err)
	}
	m.limiter.Reset(hash)

	if deleted {
		slog.Info("API key revoked",
			"event", "security_audit",
			"action", "revoke",
			"key_id", models.KeyID(hash),
		)
	}
	return deleted, nil
}

// Update applies opts to an existing credential and reports whether a
// record was found.
func (m *Manager) Update(ctx context.Context, raw string, opts UpdateOptions) (bool, error) {
	if raw == "" {
		return false, invalidArgument("key is required")
	}
	if opts.RateLimit != nil && *opts.RateLimit <= 0 {
		return false, invalidArgument("rate limit must be positive, got %d", *opts.RateLimit)
	}
	if opts.ExpiryDays != nil && *opts.ExpiryDays <= 0 {
		return false, invalidArgument("expiry days must be positive, got %d", *opts.ExpiryDays)
	}

	hash := models.HashAPIKey(raw)

	m.mu.Lock()
	defer m.mu.Unlock()

	rec, err := m.store.GetKey(ctx, hash)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to load key: %w", err)
	}

	var changed []string
	if opts.Scopes != nil {
		rec.Scopes = slices.Clone(opts.Scopes)
		changed = append(changed, "scopes")
	}
	if opts.RateLimit != nil {
		rec.RateLimit = *opts.RateLimit
		changed = append(changed, "rate_limit")
	}
	if opts.ExpiryDays != nil {
		rec.ExpiresAt = m.now().Add(time.Duration(*opts.ExpiryDays) * day)
		changed = append(changed, "expires_at")
	}
	if opts.Metadata != nil {
		rec.MergeMetadata(opts.Metadata)
		changed = append(changed, "metadata")
	}

	if err := m.store.SaveKey(ctx, rec); err != nil {
		return false, fmt.Errorf("failed to store key: %w", err)
	}

	slog.Info("API key updated",
		"event", "security_audit",
		"action", "update",
		"key_id", models.KeyID(hash),
		"fields", changed,
	)
	return true, nil
}

// GetInfo returns a snapshot of the credential, including its current
// window when a tracker exists.
func (m *Manager) GetInfo(ctx context.Context, raw string) (*models.KeyInfo, bool, error) {
	if raw == "" {
		return nil, false, nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, err := m.store.GetKey(ctx, models.HashAPIKey(raw))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to load key: %w", err)
	}

	return m.snapshot(rec, true), true, nil
}

// List returns snapshots of every credential. Usage is attached only when
// includeUsage is set and the key has a tracker.
func (m *Manager) List(ctx context.Context, includeUsage bool) ([]*models.KeyInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	records, err := m.store.Keys(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list keys: %w", err)
	}

	infos := make([]*models.KeyInfo, 0, len(records))
	for _, rec := range records {
		infos = append(infos, m.snapshot(rec, includeUsage))
	}
	return infos, nil
}

// SeedDefault installs the bootstrap credential with wildcard scope and a
// one-year lifetime unless a record for raw already exists. It reports
// whether a record was created.
func (m *Manager) SeedDefault(ctx context.Context, raw string) (bool, error) {
	if raw == "" {
		return false, invalidArgument("default key is required")
	}

	hash := models.HashAPIKey(raw)

	m.mu.Lock()
	defer m.mu.Unlock()

	_, err := m.store.GetKey(ctx, hash)
	if err == nil {
		slog.Debug("Default API key already present", "key_id", models.KeyID(hash))
		return false, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return false, fmt.Errorf("failed to check default key: %w", err)
	}

	rec := models.NewCredentialRecord(raw,
		[]string{models.WildcardScope},
		m.defaultRateLimit,
		DefaultKeyTTL,
		map[string]any{"name": DefaultKeyName, "created_by": "system"},
		m.now(),
	)
	if err := m.store.SaveKey(ctx, rec); err != nil {
		return false, fmt.Errorf("failed to store default key: %w", err)
	}

	slog.Info("Loaded default API key",
		"event", "security_audit",
		"action", "seed",
		"key_id", models.KeyID(hash),
	)
	return true, nil
}

// Ping reports whether the backing store is usable.
func (m *Manager) Ping(ctx context.Context) error {
	return m.store.Ping(ctx)
}

// lookup resolves raw to its record. Callers hold m.mu.
func (m *Manager) lookup(ctx context.Context, raw string) (*models.CredentialRecord, error) {
	rec, err := m.store.GetKey(ctx, models.HashAPIKey(raw))
	if errors.Is(err, storage.ErrNotFound) {
		slog.Warn("Invalid API key attempt", "key_prefix", models.RawKeyHint(raw))
		return nil, newUnknownCredentialError()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load key: %w", err)
	}
	return rec, nil
}

func (m *Manager) snapshot(rec *models.CredentialRecord, includeUsage bool) *models.KeyInfo {
	info := models.NewKeyInfo(rec, m.now())
	if !includeUsage {
		return info
	}
	if usage, ok := m.limiter.Usage(rec.KeyHash); ok {
		info.Usage = &models.UsageInfo{
			Requests:    usage.Requests,
			WindowStart: usage.WindowStart.UTC().Format(time.RFC3339),
		}
	}
	return info
}
