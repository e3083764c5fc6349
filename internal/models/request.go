// Package models - API request types and input validation.
// This file defines the admin API request bodies.
//
// Validation Philosophy:
// - Fail fast with clear error messages for invalid input
// - Raw keys travel in request bodies, never in URLs or query strings
// - Pointer fields distinguish "not provided" from zero values on updates
package models

import (
	"errors"
	"strings"
)

// GenerateKeyRequest asks for a new credential. Zero values select the
// configured defaults.
type GenerateKeyRequest struct {
	Scopes     []string       `json:"scopes,omitempty"`
	RateLimit  int            `json:"rate_limit,omitempty"`
	ExpiryDays int            `json:"expiry_days,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// KeyLookupRequest identifies an existing credential by its raw value.
type KeyLookupRequest struct {
	Key string `json:"key"`
}

// UpdateKeyRequest changes selected attributes of an existing credential.
// ExpiryDays counts from the moment of the update, not from creation.
type UpdateKeyRequest struct {
	Key        string         `json:"key"`
	Scopes     []string       `json:"scopes,omitempty"`
	RateLimit  *int           `json:"rate_limit,omitempty"`
	ExpiryDays *int           `json:"expiry_days,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

func (r *GenerateKeyRequest) Validate() error {
	if r.RateLimit < 0 {
		return errors.New("rate_limit must be positive")
	}

	if r.ExpiryDays < 0 {
		return errors.New("expiry_days must be positive")
	}

	return validateScopes(r.Scopes)
}

func (r *GenerateKeyRequest) Normalize() {
	r.Scopes = normalizeScopes(r.Scopes)
}

func (r *KeyLookupRequest) Validate() error {
	if strings.TrimSpace(r.Key) == "" {
		return errors.New("key is required")
	}
	return nil
}

func (r *UpdateKeyRequest) Validate() error {
	if strings.TrimSpace(r.Key) == "" {
		return errors.New("key is required")
	}

	if r.RateLimit != nil && *r.RateLimit <= 0 {
		return errors.New("rate_limit must be positive")
	}

	if r.ExpiryDays != nil && *r.ExpiryDays <= 0 {
		return errors.New("expiry_days must be positive")
	}

	if r.Scopes != nil && len(r.Scopes) == 0 {
		return errors.New("scopes cannot be empty when provided")
	}

	return validateScopes(r.Scopes)
}

func (r *UpdateKeyRequest) Normalize() {
	if r.Scopes != nil {
		r.Scopes = normalizeScopes(r.Scopes)
	}
}

func validateScopes(scopes []string) error {
	for _, s := range scopes {
		if strings.TrimSpace(s) == "" {
			return errors.New("scopes cannot contain empty values")
		}
	}
	return nil
}

func normalizeScopes(scopes []string) []string {
	for i, s := range scopes {
		scopes[i] = strings.TrimSpace(s)
	}
	return scopes
}
