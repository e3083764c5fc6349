package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"keygate/internal/keys"
	"keygate/internal/models"
)

const testAdminKey = "sk-test-admin-key"

func setupTestRouter(t *testing.T) (http.Handler, *keys.Manager, *decisionLog) {
	t.Helper()
	manager, _ := newTestManager(t)
	created, err := manager.SeedDefault(context.Background(), testAdminKey)
	require.NoError(t, err)
	require.True(t, created)

	log := &decisionLog{}
	config := models.NewDefaultConfig()
	router := SetupRoutes(NewHandlers(manager, WithVersion("test")), config, WithGateOptions(WithDecisionRecorder(log)))
	return router, manager, log
}

func doRequest(router http.Handler, method, path, key string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	if key != "" {
		req.Header.Set(models.DefaultHeaderName, key)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestRoutes_HealthIsPublic(t *testing.T) {
	router, _, log := setupTestRouter(t)

	for _, path := range []string{"/health", "/api/v1/health"} {
		rec := doRequest(router, http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusOK, rec.Code, path)
		assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))
		assert.Equal(t, DecisionBypassed, log.last())
	}
}

func TestRoutes_UnmatchedPathsAreGated(t *testing.T) {
	router, _, _ := setupTestRouter(t)

	rec := doRequest(router, http.MethodGet, "/api/v1/does-not-exist", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, map[string]any{"success": false, "message": "API key is required"}, decodeRejection(t, rec))

	rec = doRequest(router, http.MethodGet, "/api/v1/does-not-exist", testAdminKey, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doRequest(router, http.MethodDelete, "/api/v1/keys/self", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doRequest(router, http.MethodDelete, "/api/v1/keys/self", testAdminKey, nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestRoutes_WrongMethodReturns405(t *testing.T) {
	router, _, _ := setupTestRouter(t)

	tests := []struct {
		method string
		path   string
	}{
		{http.MethodPost, "/health"},
		{http.MethodDelete, "/api/v1/keys/self"},
		{http.MethodDelete, "/api/v1/admin/keys"},
		{http.MethodGet, "/api/v1/admin/keys/info"},
		{http.MethodPut, "/api/v1/admin/keys/revoke"},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			rec := doRequest(router, tt.method, tt.path, testAdminKey, nil)
			require.Equal(t, http.StatusMethodNotAllowed, rec.Code)

			var resp models.ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, models.ErrorCodeMethodNotAllowed, resp.Code)
		})
	}
}

func TestRoutes_AdminLifecycle(t *testing.T) {
	router, _, _ := setupTestRouter(t)

	// Issue a read-only key with the bootstrap admin key.
	rec := doRequest(router, http.MethodPost, "/api/v1/admin/keys", testAdminKey, models.GenerateKeyRequest{
		Scopes:    []string{"read"},
		RateLimit: 1,
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var generated models.GenerateKeyResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &generated))
	reader := generated.Key

	// The new key reaches ordinary endpoints once, then runs out of quota.
	rec = doRequest(router, http.MethodGet, "/api/v1/keys/self", reader, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var self models.KeyInfoResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &self))
	assert.Equal(t, generated.KeyInfo.KeyID, self.Key.KeyID)

	rec = doRequest(router, http.MethodGet, "/api/v1/keys/self", reader, nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, map[string]any{"success": false, "message": "API rate limit exceeded"}, decodeRejection(t, rec))
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	// Raising the limit takes effect within the current window.
	limit := 10
	rec = doRequest(router, http.MethodPatch, "/api/v1/admin/keys", testAdminKey, models.UpdateKeyRequest{Key: reader, RateLimit: &limit})
	require.Equal(t, http.StatusOK, rec.Code)
	rec = doRequest(router, http.MethodGet, "/api/v1/keys/self", reader, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Without the admin scope the key cannot manage keys.
	rec = doRequest(router, http.MethodGet, "/api/v1/admin/keys", reader, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = doRequest(router, http.MethodGet, "/api/v1/admin/keys?include_usage=true", testAdminKey, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list models.ListKeysResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Equal(t, 2, list.TotalCount)
	assert.NotContains(t, rec.Body.String(), reader)
	assert.NotContains(t, rec.Body.String(), testAdminKey)

	rec = doRequest(router, http.MethodPost, "/api/v1/admin/keys/revoke", testAdminKey, models.KeyLookupRequest{Key: reader})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(router, http.MethodGet, "/api/v1/keys/self", reader, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Invalid API key", decodeRejection(t, rec)["message"])
}

func TestRoutes_RejectedRequestNeverReachesHandler(t *testing.T) {
	router, manager, log := setupTestRouter(t)
	raw, err := manager.Generate(context.Background(), keys.GenerateOptions{Scopes: []string{"admin"}, RateLimit: 1})
	require.NoError(t, err)

	// The first call is admitted and lists keys.
	rec := doRequest(router, http.MethodGet, "/api/v1/admin/keys", raw, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, DecisionForwarded, log.last())

	// The second would generate a key if the handler ran.
	rec = doRequest(router, http.MethodPost, "/api/v1/admin/keys", raw, models.GenerateKeyRequest{})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, DecisionRejectedRate, log.last())

	infos, err := manager.List(context.Background(), false)
	require.NoError(t, err)
	assert.Len(t, infos, 2)
}

func TestRoutes_CORSPreflightSkipsGate(t *testing.T) {
	manager, _ := newTestManager(t)
	_, err := manager.SeedDefault(context.Background(), testAdminKey)
	require.NoError(t, err)

	config := models.NewDefaultConfig()
	config.Server.CORS.Enabled = true
	config.Server.CORS.AllowedOrigins = []string{"https://console.example.com"}
	router := SetupRoutes(NewHandlers(manager), config)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/admin/keys", nil)
	req.Header.Set("Origin", "https://console.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", models.DefaultHeaderName)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "https://console.example.com", rec.Header().Get("Access-Control-Allow-Origin"))

	// Actual requests are still gated and expose the rate limit headers.
	req = httptest.NewRequest(http.MethodGet, "/api/v1/keys/self", nil)
	req.Header.Set("Origin", "https://console.example.com")
	req.Header.Set(models.DefaultHeaderName, testAdminKey)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "https://console.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Expose-Headers"), "X-Ratelimit-Remaining")

	req = httptest.NewRequest(http.MethodGet, "/api/v1/keys/self", nil)
	req.Header.Set("Origin", "https://console.example.com")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
