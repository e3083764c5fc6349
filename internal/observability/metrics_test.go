package observability

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"keygate/internal/api"
	"keygate/internal/models"
	"keygate/internal/version"
)

func setupMetrics(t *testing.T) *Provider {
	t.Helper()
	restoreGlobals(t)
	provider, err := Setup(context.Background(), models.MetricsConfig{Enabled: true, Path: "/metrics"}, models.ObservabilityConfig{}, version.Info{})
	require.NoError(t, err)
	t.Cleanup(func() { provider.Shutdown(context.Background()) })
	return provider
}

func TestMetricsServer_ExposesGateDecisions(t *testing.T) {
	provider := setupMetrics(t)

	gm, err := NewGateMetrics()
	require.NoError(t, err)
	gm.RecordDecision(context.Background(), api.DecisionRejectedRate, 5*time.Millisecond)

	ms := NewMetricsServer(9090, "/metrics", provider)
	assert.Equal(t, ":9090", ms.server.Addr)

	rec := httptest.NewRecorder()
	ms.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, "gate_decisions")
	assert.Contains(t, body, `outcome="rejected_rate"`)
	assert.Contains(t, body, "go_goroutines")
}

func TestMetricsServer_OtherPathsNotFound(t *testing.T) {
	ms := NewMetricsServer(9090, "/metrics", setupMetrics(t))

	rec := httptest.NewRecorder()
	ms.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/admin/keys", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMetricsServer_StartAndShutdown(t *testing.T) {
	ms := NewMetricsServer(0, "/metrics", setupMetrics(t))

	errCh := make(chan error, 1)
	go func() {
		errCh <- ms.Start()
	}()

	// Give the server time to start
	time.Sleep(100 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, ms.Shutdown(ctx))

	assert.True(t, errors.Is(<-errCh, http.ErrServerClosed))
}

func TestNewMetricsServer_NilProvider(t *testing.T) {
	ms := NewMetricsServer(9090, "/metrics", nil)

	rec := httptest.NewRecorder()
	ms.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
