package keys

import (
	"context"

	"keygate/internal/models"
	"keygate/internal/ratelimit"
)

// Authenticator is the part of the manager the request gate depends on.
type Authenticator interface {
	// Validate checks that raw names a live credential holding scope. An
	// empty scope checks existence and expiry only.
	Validate(ctx context.Context, raw, scope string) error

	// CheckRateLimit counts one request against the credential's quota.
	CheckRateLimit(ctx context.Context, raw string) (ratelimit.Info, error)
}

// ManagerInterface defines every key governance operation.
type ManagerInterface interface {
	Authenticator

	Generate(ctx context.Context, opts GenerateOptions) (string, error)
	Revoke(ctx context.Context, raw string) (bool, error)
	Update(ctx context.Context, raw string, opts UpdateOptions) (bool, error)
	GetInfo(ctx context.Context, raw string) (*models.KeyInfo, bool, error)
	List(ctx context.Context, includeUsage bool) ([]*models.KeyInfo, error)

	// Ping reports whether the backing store is usable
	Ping(ctx context.Context) error
}

// Ensure Manager implements ManagerInterface
var _ ManagerInterface = (*Manager)(nil)
