package keys

import (
	"errors"
	"fmt"
	"net/http"

	"keygate/internal/models"
)

// Reason classifies why a credential was refused.
type Reason string

const (
	ReasonMissingCredential Reason = "MissingCredential"
	ReasonUnknownCredential Reason = "UnknownCredential"
	ReasonExpired           Reason = "Expired"
	ReasonScopeDenied       Reason = "ScopeDenied"
	ReasonRateLimitExceeded Reason = "RateLimitExceeded"
)

// KeyError is returned for every expected credential failure. Message is
// safe to show to the caller and never contains the raw credential.
type KeyError struct {
	Reason     Reason
	Code       string
	Message    string
	StatusCode int
}

func (e *KeyError) Error() string {
	return e.Message
}

// Is matches any KeyError with the same Reason, so callers can write
// errors.Is(err, keys.ErrExpired).
func (e *KeyError) Is(target error) bool {
	t, ok := target.(*KeyError)
	if !ok {
		return false
	}
	return t.Reason == e.Reason
}

// Sentinels for errors.Is comparisons.
var (
	ErrMissingCredential = &KeyError{Reason: ReasonMissingCredential}
	ErrUnknownCredential = &KeyError{Reason: ReasonUnknownCredential}
	ErrExpired           = &KeyError{Reason: ReasonExpired}
	ErrScopeDenied       = &KeyError{Reason: ReasonScopeDenied}
	ErrRateLimitExceeded = &KeyError{Reason: ReasonRateLimitExceeded}
)

// ErrInvalidArgument marks caller mistakes such as a non-positive rate limit.
var ErrInvalidArgument = errors.New("invalid argument")

// ReasonOf extracts the Reason from err, if err is a KeyError.
func ReasonOf(err error) (Reason, bool) {
	var ke *KeyError
	if errors.As(err, &ke) {
		return ke.Reason, true
	}
	return "", false
}

func newMissingCredentialError() *KeyError {
	return &KeyError{
		Reason:     ReasonMissingCredential,
		Code:       models.ErrorCodeUnauthorized,
		Message:    "API key is required",
		StatusCode: http.StatusUnauthorized,
	}
}

func newUnknownCredentialError() *KeyError {
	return &KeyError{
		Reason:     ReasonUnknownCredential,
		Code:       models.ErrorCodeUnauthorized,
		Message:    "Invalid API key",
		StatusCode: http.StatusUnauthorized,
	}
}

func newExpiredError() *KeyError {
	return &KeyError{
		Reason:     ReasonExpired,
		Code:       models.ErrorCodeUnauthorized,
		Message:    "API key has expired",
		StatusCode: http.StatusUnauthorized,
	}
}

func newScopeDeniedError(scope string) *KeyError {
	return &KeyError{
		Reason:     ReasonScopeDenied,
		Code:       models.ErrorCodeForbidden,
		Message:    fmt.Sprintf("API key does not have permission for %s", scope),
		StatusCode: http.StatusForbidden,
	}
}

func newRateLimitError() *KeyError {
	return &KeyError{
		Reason:     ReasonRateLimitExceeded,
		Code:       models.ErrorCodeRateLimited,
		Message:    "API rate limit exceeded",
		StatusCode: http.StatusTooManyRequests,
	}
}

func invalidArgument(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}
