// Package models - API response types and error handling.
// This file defines all outgoing API response structures with consistent formatting.
//
// Response Design Principles:
// - Gate rejections carry exactly two fields so clients can parse them uniformly
// - Admin endpoints use the richer ErrorResponse envelope with machine-readable codes
// - Raw API keys appear in a response body only once, at generation time
// - RFC3339 timestamps for international compatibility
package models

import (
	"time"
)

// GateRejection is the body written when the request gate refuses a request.
// It never carries more than these two fields.
type GateRejection struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func NewGateRejection(message string) *GateRejection {
	return &GateRejection{Success: false, Message: message}
}

// GenerateKeyResponse returns a freshly issued credential. Key is the raw
// value and is never retrievable again.
type GenerateKeyResponse struct {
	Key     string   `json:"key"`
	KeyInfo *KeyInfo `json:"key_info"`
	Message string   `json:"message"`
}

type ListKeysResponse struct {
	Keys       []*KeyInfo `json:"keys"`
	TotalCount int        `json:"total_count"`
}

type KeyInfoResponse struct {
	Key *KeyInfo `json:"key"`
}

type UpdateKeyResponse struct {
	Key     *KeyInfo `json:"key"`
	Message string   `json:"message"`
}

type RevokeKeyResponse struct {
	Revoked bool   `json:"revoked"`
	Message string `json:"message"`
}

// ErrorResponse provides structured error information for the admin API.
//
// Error Categories:
// - Validation errors: malformed JSON or out-of-range values
// - Not found errors: the referenced key has no record
// - Authorization errors: missing scope
// - Internal errors: storage failures
type ErrorResponse struct {
	Error     string            `json:"error"`                // Error type (always "error")
	Message   string            `json:"message"`              // Human-readable error description
	Code      string            `json:"code,omitempty"`       // Machine-readable error code
	Details   map[string]string `json:"details,omitempty"`    // Field-specific error details
	Timestamp time.Time         `json:"timestamp"`            // Error occurrence time
	RequestID string            `json:"request_id,omitempty"` // Unique request identifier
}

type HealthCheckResponse struct {
	Status     string                     `json:"status"`
	Timestamp  time.Time                  `json:"timestamp"`
	Version    string                     `json:"version,omitempty"`
	Uptime     string                     `json:"uptime,omitempty"`
	Components map[string]ComponentHealth `json:"components,omitempty"`
}

type ComponentHealth struct {
	Status    string    `json:"status"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Health Status Constants
const (
	StatusHealthy   = "healthy"   // All systems operational
	StatusUnhealthy = "unhealthy" // Major system issues
	StatusDegraded  = "degraded"  // Partial functionality
)

// Standard HTTP Error Codes
//
// Upper-case with underscores, mapped onto HTTP status codes.
const (
	ErrorCodeNotFound         = "NOT_FOUND"          // 404: Resource doesn't exist
	ErrorCodeKeyNotFound      = "KEY_NOT_FOUND"      // 404: No record for the supplied key
	ErrorCodeMethodNotAllowed = "METHOD_NOT_ALLOWED" // 405: Path exists, method does not
	ErrorCodeBadRequest       = "BAD_REQUEST"        // 400: Invalid request format
	ErrorCodeValidation       = "VALIDATION_ERROR"   // 400: Input validation failed
	ErrorCodeInternalError    = "INTERNAL_ERROR"     // 500: Server-side error
	ErrorCodeUnauthorized     = "UNAUTHORIZED"       // 401: Authentication required
	ErrorCodeForbidden        = "FORBIDDEN"          // 403: Permission denied
	ErrorCodeRateLimited      = "RATE_LIMITED"       // 429: Request quota exhausted
	ErrorCodeServiceUnavail   = "SERVICE_UNAVAILABLE"
)

func NewErrorResponse(message string, code string) *ErrorResponse {
	return &ErrorResponse{
		Error:     "error",
		Message:   message,
		Code:      code,
		Timestamp: time.Now(),
	}
}

func NewHealthCheckResponse(status string) *HealthCheckResponse {
	return &HealthCheckResponse{
		Status:     status,
		Timestamp:  time.Now(),
		Components: make(map[string]ComponentHealth),
	}
}

// AddComponent records a component's status and downgrades the overall
// status when the component is not healthy.
func (h *HealthCheckResponse) AddComponent(name, status, message string) {
	h.Components[name] = ComponentHealth{
		Status:    status,
		Message:   message,
		Timestamp: time.Now(),
	}
	if status != StatusHealthy && h.Status == StatusHealthy {
		h.Status = StatusDegraded
	}
}
