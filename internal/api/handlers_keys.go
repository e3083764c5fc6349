package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"keygate/internal/keys"
	"keygate/internal/models"
)

// ListKeys handles GET /api/v1/admin/keys
func (h *Handlers) ListKeys(w http.ResponseWriter, r *http.Request) {
	includeUsage := r.URL.Query().Get("include_usage") == "true"

	infos, err := h.manager.List(r.Context(), includeUsage)
	if err != nil {
		slog.Error("Failed to list keys", "error", err)
		h.writeErrorResponse(w, r, http.StatusInternalServerError, models.ErrorCodeInternalError, "failed to list keys")
		return
	}

	h.writeJSONResponse(w, http.StatusOK, models.ListKeysResponse{
		Keys:       infos,
		TotalCount: len(infos),
	})
}

// GenerateKey handles POST /api/v1/admin/keys
func (h *Handlers) GenerateKey(w http.ResponseWriter, r *http.Request) {
	var req models.GenerateKeyRequest
	if !h.decodeRequest(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		h.writeErrorResponse(w, r, http.StatusBadRequest, models.ErrorCodeValidation, err.Error())
		return
	}
	req.Normalize()

	raw, err := h.manager.Generate(r.Context(), keys.GenerateOptions{
		Scopes:     req.Scopes,
		RateLimit:  req.RateLimit,
		ExpiryDays: req.ExpiryDays,
		Metadata:   req.Metadata,
	})
	if err != nil {
		h.writeManagerError(w, r, "generate", err)
		return
	}

	info, _, err := h.manager.GetInfo(r.Context(), raw)
	if err != nil {
		h.writeManagerError(w, r, "generate", err)
		return
	}

	slog.Info("API key issued through admin API",
		"event", "security_audit",
		"action", "generate",
		"key_id", info.KeyID,
		"actor_key_id", actorKeyID(r),
	)

	h.writeJSONResponse(w, http.StatusCreated, models.GenerateKeyResponse{
		Key:     raw,
		KeyInfo: info,
		Message: "Store this key securely, it will not be shown again",
	})
}

// GetKeyInfo handles POST /api/v1/admin/keys/info
func (h *Handlers) GetKeyInfo(w http.ResponseWriter, r *http.Request) {
	var req models.KeyLookupRequest
	if !h.decodeRequest(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		h.writeErrorResponse(w, r, http.StatusBadRequest, models.ErrorCodeValidation, err.Error())
		return
	}

	info, found, err := h.manager.GetInfo(r.Context(), req.Key)
	if err != nil {
		h.writeManagerError(w, r, "info", err)
		return
	}
	if !found {
		h.writeErrorResponse(w, r, http.StatusNotFound, models.ErrorCodeKeyNotFound, "key not found")
		return
	}

	h.writeJSONResponse(w, http.StatusOK, models.KeyInfoResponse{Key: info})
}

// UpdateKey handles PATCH /api/v1/admin/keys
func (h *Handlers) UpdateKey(w http.ResponseWriter, r *http.Request) {
	var req models.UpdateKeyRequest
	if !h.decodeRequest(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		h.writeErrorResponse(w, r, http.StatusBadRequest, models.ErrorCodeValidation, err.Error())
		return
	}
	req.Normalize()

	found, err := h.manager.Update(r.Context(), req.Key, keys.UpdateOptions{
		Scopes:     req.Scopes,
		RateLimit:  req.RateLimit,
		ExpiryDays: req.ExpiryDays,
		Metadata:   req.Metadata,
	})
	if err != nil {
		h.writeManagerError(w, r, "update", err)
		return
	}
	if !found {
		h.writeErrorResponse(w, r, http.StatusNotFound, models.ErrorCodeKeyNotFound, "key not found")
		return
	}

	info, _, err := h.manager.GetInfo(r.Context(), req.Key)
	if err != nil {
		h.writeManagerError(w, r, "update", err)
		return
	}

	slog.Info("API key updated through admin API",
		"event", "security_audit",
		"action", "update",
		"key_id", info.KeyID,
		"actor_key_id", actorKeyID(r),
	)

	h.writeJSONResponse(w, http.StatusOK, models.UpdateKeyResponse{
		Key:     info,
		Message: "Key updated",
	})
}

// RevokeKey handles POST /api/v1/admin/keys/revoke. Revoking an unknown or
// already revoked key is not an error; the response reports revoked=false.
func (h *Handlers) RevokeKey(w http.ResponseWriter, r *http.Request) {
	var req models.KeyLookupRequest
	if !h.decodeRequest(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		h.writeErrorResponse(w, r, http.StatusBadRequest, models.ErrorCodeValidation, err.Error())
		return
	}

	revoked, err := h.manager.Revoke(r.Context(), req.Key)
	if err != nil {
		h.writeManagerError(w, r, "revoke", err)
		return
	}

	message := "Key revoked"
	if !revoked {
		message = "Key not found or already revoked"
	}

	slog.Info("API key revocation requested through admin API",
		"event", "security_audit",
		"action", "revoke",
		"key_id", models.KeyID(models.HashAPIKey(req.Key)),
		"revoked", revoked,
		"actor_key_id", actorKeyID(r),
	)

	h.writeJSONResponse(w, http.StatusOK, models.RevokeKeyResponse{
		Revoked: revoked,
		Message: message,
	})
}

// decodeRequest decodes the JSON body into dst, writing a 400 on failure.
func (h *Handlers) decodeRequest(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		h.writeErrorResponse(w, r, http.StatusBadRequest, models.ErrorCodeBadRequest, "invalid request body")
		return false
	}
	return true
}

func (h *Handlers) writeManagerError(w http.ResponseWriter, r *http.Request, action string, err error) {
	if errors.Is(err, keys.ErrInvalidArgument) {
		h.writeErrorResponse(w, r, http.StatusBadRequest, models.ErrorCodeValidation, err.Error())
		return
	}
	slog.Error("Key operation failed", "action", action, "error", err)
	h.writeErrorResponse(w, r, http.StatusInternalServerError, models.ErrorCodeInternalError, "failed to "+action+" key")
}

// actorKeyID identifies the key making this request.
func actorKeyID(r *http.Request) string {
	if hash := KeyHashFromContext(r.Context()); hash != "" {
		return models.KeyID(hash)
	}
	return "unknown"
}
