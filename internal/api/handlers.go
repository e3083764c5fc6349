package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"keygate/internal/keys"
	"keygate/internal/models"
)

// Handlers contains HTTP handlers for the keygate API
type Handlers struct {
	manager   keys.ManagerInterface
	version   string
	startedAt time.Time
}

// HandlerOption configures optional handler dependencies.
type HandlerOption func(*Handlers)

// WithVersion sets the version reported by the health endpoint.
func WithVersion(v string) HandlerOption {
	return func(h *Handlers) {
		h.version = v
	}
}

// NewHandlers creates a new handlers instance
func NewHandlers(manager keys.ManagerInterface, opts ...HandlerOption) *Handlers {
	h := &Handlers{
		manager:   manager,
		startedAt: time.Now(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// HealthCheck handles health check requests
// GET /health
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response := models.NewHealthCheckResponse(models.StatusHealthy)
	response.Version = h.version
	response.Uptime = time.Since(h.startedAt).Round(time.Second).String()

	if err := h.manager.Ping(r.Context()); err != nil {
		response.AddComponent("storage", models.StatusUnhealthy, err.Error())
	} else {
		response.AddComponent("storage", models.StatusHealthy, "Key store is operational")
	}
	response.AddComponent("gate", models.StatusHealthy, "Request gate is operational")

	h.writeJSONResponse(w, http.StatusOK, response)
}

// KeySelf returns the calling key's own record
// GET /api/v1/keys/self
func (h *Handlers) KeySelf(w http.ResponseWriter, r *http.Request) {
	info, found, err := h.manager.GetInfo(r.Context(), rawKeyFromContext(r.Context()))
	if err != nil {
		slog.Error("Failed to load calling key", "error", err)
		h.writeErrorResponse(w, r, http.StatusInternalServerError, models.ErrorCodeInternalError, "failed to load key")
		return
	}
	if !found {
		// Revoked after the gate admitted the request
		h.writeErrorResponse(w, r, http.StatusNotFound, models.ErrorCodeKeyNotFound, "key not found")
		return
	}

	h.writeJSONResponse(w, http.StatusOK, models.KeyInfoResponse{Key: info})
}

// writeJSONResponse writes a JSON response
func (h *Handlers) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		// Headers are already sent; nothing more can be written.
		slog.Error("Error encoding JSON response", "error", err)
	}
}

// writeErrorResponse writes an error response tagged with the request ID
func (h *Handlers) writeErrorResponse(w http.ResponseWriter, r *http.Request, statusCode int, errorCode, message string) {
	errorResp := models.NewErrorResponse(message, errorCode)
	errorResp.RequestID = GetRequestID(r.Context())
	h.writeJSONResponse(w, statusCode, errorResp)
}
