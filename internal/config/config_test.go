package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"keygate/internal/models"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configFile := filepath.Join(t.TempDir(), "keygate.yaml")
	require.NoError(t, os.WriteFile(configFile, []byte(content), 0644))
	return configFile
}

func TestLoad_WithValidConfigFile(t *testing.T) {
	configFile := writeConfig(t, `
server:
  port: 8081
  host: "localhost"
  read_timeout: 15s
  write_timeout: 20s
  idle_timeout: 90s
  tls_enabled: false

storage:
  type: "json"
  path: "./data/test-keys.json"

security:
  header_name: "X-Service-Key"
  exclude_paths: ["/health", "/status"]
  default_key: "sk-from-file"
  default_rate_limit: 250
  rate_limit_window: 30m
  default_expiry_days: 30

logging:
  level: "debug"
  format: "text"
  output: "stderr"

metrics:
  enabled: true
  path: "/internal/metrics"
  port: 9191

observability:
  service_name: "edge-gate"
  tracing:
    enabled: true
    exporter: "otlp"
    otlp_endpoint: "collector:4317"
    sample_rate: 0.25
`)

	config, err := Load(configFile)
	require.NoError(t, err)

	assert.Equal(t, 8081, config.Server.Port)
	assert.Equal(t, "localhost", config.Server.Host)
	assert.Equal(t, 15*time.Second, config.Server.ReadTimeout)
	assert.Equal(t, 20*time.Second, config.Server.WriteTimeout)
	assert.Equal(t, 90*time.Second, config.Server.IdleTimeout)

	assert.Equal(t, models.StorageTypeJSON, config.Storage.Type)
	assert.Equal(t, "./data/test-keys.json", config.Storage.Path)

	assert.Equal(t, "X-Service-Key", config.Security.HeaderName)
	assert.Equal(t, []string{"/health", "/status"}, config.Security.ExcludePaths)
	assert.Equal(t, "sk-from-file", config.Security.DefaultKey)
	assert.Equal(t, 250, config.Security.DefaultRateLimit)
	assert.Equal(t, 30*time.Minute, config.Security.RateLimitWindow)
	assert.Equal(t, 30, config.Security.DefaultExpiryDays)
	assert.False(t, config.Security.UsesDevelopmentKey())

	assert.Equal(t, "debug", config.Logging.Level)
	assert.Equal(t, "text", config.Logging.Format)
	assert.Equal(t, "stderr", config.Logging.Output)

	assert.Equal(t, "/internal/metrics", config.Metrics.Path)
	assert.Equal(t, 9191, config.Metrics.Port)

	assert.Equal(t, "edge-gate", config.Observability.ServiceName)
	assert.True(t, config.Observability.Tracing.Enabled)
	assert.Equal(t, "collector:4317", config.Observability.Tracing.OTLPEndpoint)
	assert.Equal(t, 0.25, config.Observability.Tracing.SampleRate)
}

func TestLoad_WithDefaults(t *testing.T) {
	config, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, config.Server.Port)
	assert.Equal(t, models.StorageTypeMemory, config.Storage.Type)
	assert.Equal(t, models.DefaultHeaderName, config.Security.HeaderName)
	assert.Equal(t, models.DefaultExcludePaths, config.Security.ExcludePaths)
	assert.Equal(t, models.DefaultRateLimit, config.Security.DefaultRateLimit)
	assert.Equal(t, time.Hour, config.Security.RateLimitWindow)
	assert.Equal(t, models.DefaultExpiryDays, config.Security.DefaultExpiryDays)
	assert.True(t, config.Security.UsesDevelopmentKey())
}

func TestLoad_EmptyDefaultKeyFallsBackToDevelopmentKey(t *testing.T) {
	configFile := writeConfig(t, `
security:
  default_key: ""
`)

	config, err := Load(configFile)
	require.NoError(t, err)
	assert.Equal(t, models.DefaultDevelopmentKey, config.Security.DefaultKey)
}

func TestLoad_WithEnvironmentVariables(t *testing.T) {
	t.Setenv("KEYGATE_PORT", "9999")
	t.Setenv("KEYGATE_HOST", "127.0.0.1")
	t.Setenv("KEYGATE_STORAGE_TYPE", "json")
	t.Setenv("KEYGATE_STORAGE_PATH", "/tmp/keys.json")
	t.Setenv("KEYGATE_HEADER_NAME", "X-Gate-Key")
	t.Setenv("KEYGATE_EXCLUDE_PATHS", "/health, /public ,")
	t.Setenv("KEYGATE_DEFAULT_RATE_LIMIT", "42")
	t.Setenv("KEYGATE_RATE_LIMIT_WINDOW", "10m")
	t.Setenv("KEYGATE_DEFAULT_EXPIRY_DAYS", "14")
	t.Setenv("KEYGATE_LOG_LEVEL", "warn")
	t.Setenv("KEYGATE_METRICS_ENABLED", "false")
	t.Setenv("KEYGATE_TRACING_SAMPLE_RATE", "0.5")
	t.Setenv("KEYGATE_CORS_ENABLED", "true")
	t.Setenv("KEYGATE_CORS_ALLOWED_ORIGINS", "https://a.example.com,https://b.example.com")

	configFile := writeConfig(t, `
server:
  port: 8080
  host: "localhost"

storage:
  type: "memory"

logging:
  level: "info"
`)

	config, err := Load(configFile)
	require.NoError(t, err)

	assert.Equal(t, 9999, config.Server.Port)
	assert.Equal(t, "127.0.0.1", config.Server.Host)
	assert.Equal(t, models.StorageTypeJSON, config.Storage.Type)
	assert.Equal(t, "/tmp/keys.json", config.Storage.Path)
	assert.Equal(t, "X-Gate-Key", config.Security.HeaderName)
	assert.Equal(t, []string{"/health", "/public"}, config.Security.ExcludePaths)
	assert.Equal(t, 42, config.Security.DefaultRateLimit)
	assert.Equal(t, 10*time.Minute, config.Security.RateLimitWindow)
	assert.Equal(t, 14, config.Security.DefaultExpiryDays)
	assert.Equal(t, "warn", config.Logging.Level)
	assert.False(t, config.Metrics.Enabled)
	assert.Equal(t, 0.5, config.Observability.Tracing.SampleRate)
	assert.True(t, config.Server.CORS.Enabled)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, config.Server.CORS.AllowedOrigins)
}

func TestLoad_InvalidEnvironmentValuesAreIgnored(t *testing.T) {
	t.Setenv("KEYGATE_PORT", "not-a-port")
	t.Setenv("KEYGATE_RATE_LIMIT_WINDOW", "soon")

	config, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 8080, config.Server.Port)
	assert.Equal(t, time.Hour, config.Security.RateLimitWindow)
}

func TestLoad_DefaultKeyFromEnvironment(t *testing.T) {
	tests := []struct {
		name     string
		legacy   string
		explicit string
		want     string
	}{
		{name: "neither set", want: models.DefaultDevelopmentKey},
		{name: "legacy only", legacy: "sk-legacy", want: "sk-legacy"},
		{name: "explicit wins", legacy: "sk-legacy", explicit: "sk-explicit", want: "sk-explicit"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(LegacyDefaultKeyEnv, tt.legacy)
			t.Setenv("KEYGATE_DEFAULT_KEY", tt.explicit)

			config, err := Load("")
			require.NoError(t, err)
			assert.Equal(t, tt.want, config.Security.DefaultKey)
		})
	}
}

func TestLoad_NonExistentFile(t *testing.T) {
	_, err := Load("/non/existent/path.yaml")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "config file not found")
}

func TestLoad_InvalidYAML(t *testing.T) {
	configFile := writeConfig(t, `
server:
  port: 8080
  invalid: [unclosed array
`)

	_, err := Load(configFile)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML config")
}

func TestLoad_EmptyConfigFile(t *testing.T) {
	config, err := Load(writeConfig(t, ""))
	require.NoError(t, err)

	assert.Equal(t, 8080, config.Server.Port)
	assert.Equal(t, "0.0.0.0", config.Server.Host)
	assert.Equal(t, models.StorageTypeMemory, config.Storage.Type)
}

func TestLoad_UnsupportedKeysStillLoad(t *testing.T) {
	configFile := writeConfig(t, `
security:
  enable_auth: false
  api_keys:
    - key: "legacy"
storage:
  database:
    dsn: "postgres://"
`)

	config, err := Load(configFile)
	require.NoError(t, err)
	assert.Equal(t, models.DefaultHeaderName, config.Security.HeaderName)
}

func TestLoad_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		errMsg  string
	}{
		{"invalid port", "server:\n  port: 70000\n", "port must be between"},
		{"unknown storage", "storage:\n  type: redis\n", "invalid storage type"},
		{"zero rate limit", "security:\n  default_rate_limit: 0\n", "default rate limit must be positive"},
		{"relative exclude path", "security:\n  exclude_paths: [\"health\"]\n", "exclude path must start with"},
		{"tls without certs", "server:\n  tls_enabled: true\n", "TLS cert file is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestSaveExample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "keygate.example.yaml")

	require.NoError(t, SaveExample(path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	config, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, models.StorageTypeJSON, config.Storage.Type)
	assert.False(t, config.Security.UsesDevelopmentKey())
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"/a", "/b"}, splitList(" /a,,/b , "))
	assert.Nil(t, splitList(" , "))
}
