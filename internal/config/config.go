package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"keygate/internal/models"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "KEYGATE_"

// LegacyDefaultKeyEnv is read for the bootstrap key when KEYGATE_DEFAULT_KEY
// is unset, so existing deployments keep working.
const LegacyDefaultKeyEnv = "MCP_API_KEY"

// Load loads configuration from file and environment variables
func Load(configPath string) (*models.Config, error) {
	// Start with default configuration
	config := models.NewDefaultConfig()

	// Load from file if provided and exists
	if configPath != "" {
		if err := loadFromFile(config, configPath); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	// Override with environment variables
	loadFromEnvironment(config)

	normalize(config)

	// Validate the final configuration
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// normalize fills values that an operator may have blanked out.
func normalize(config *models.Config) {
	if strings.TrimSpace(config.Security.DefaultKey) == "" {
		config.Security.DefaultKey = models.DefaultDevelopmentKey
	}
	if config.Security.HeaderName == "" {
		config.Security.HeaderName = models.DefaultHeaderName
	}
}

// deprecatedConfig mirrors config fields that keygate does not honor.
type deprecatedConfig struct {
	Security struct {
		EnableAuth interface{} `yaml:"enable_auth"`
		APIKeys    interface{} `yaml:"api_keys"`
	} `yaml:"security"`
	Storage struct {
		Database interface{} `yaml:"database"`
	} `yaml:"storage"`
}

// warnDeprecatedKeys logs a warning for each unsupported config key found in the YAML data.
// The service continues to start normally - these keys are silently ignored by the main decoder.
func warnDeprecatedKeys(data []byte) {
	var dep deprecatedConfig
	if err := yaml.Unmarshal(data, &dep); err != nil {
		return
	}
	if dep.Security.EnableAuth != nil {
		slog.Warn("Config key is not supported; the API key gate cannot be disabled. Use security.exclude_paths for public endpoints.", "config_key", "security.enable_auth")
	}
	if dep.Security.APIKeys != nil {
		slog.Warn("Config key is not supported; issue keys with 'keygate key generate'. Only security.default_key is seeded from config.", "config_key", "security.api_keys")
	}
	if dep.Storage.Database != nil {
		slog.Warn("Config key is not supported; keys are kept in memory or in a JSON file.", "config_key", "storage.database")
	}
}

// loadFromFile loads configuration from a YAML file
func loadFromFile(config *models.Config, filePath string) error {
	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		return fmt.Errorf("config file not found: %s", filePath)
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	warnDeprecatedKeys(data)
	if err := yaml.Unmarshal(data, config); err != nil {
		return fmt.Errorf("failed to parse YAML config: %w", err)
	}
	return nil
}

func env(name string) string {
	return os.Getenv(EnvPrefix + name)
}

func envInt(name string, dst *int) {
	if v := env(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		} else {
			slog.Warn("Ignoring invalid integer environment variable", "name", EnvPrefix+name, "value", v)
		}
	}
}

func envDuration(name string, dst *time.Duration) {
	if v := env(name); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		} else {
			slog.Warn("Ignoring invalid duration environment variable", "name", EnvPrefix+name, "value", v)
		}
	}
}

func envBool(name string, dst *bool) {
	if v := env(name); v != "" {
		*dst = strings.ToLower(v) == "true"
	}
}

func envString(name string, dst *string) {
	if v := env(name); v != "" {
		*dst = v
	}
}

// loadFromEnvironment loads configuration from environment variables
func loadFromEnvironment(config *models.Config) {
	// Server configuration
	envInt("PORT", &config.Server.Port)
	envString("HOST", &config.Server.Host)
	envDuration("READ_TIMEOUT", &config.Server.ReadTimeout)
	envDuration("WRITE_TIMEOUT", &config.Server.WriteTimeout)
	envDuration("IDLE_TIMEOUT", &config.Server.IdleTimeout)
	envBool("TLS_ENABLED", &config.Server.TLSEnabled)
	envString("TLS_CERT_FILE", &config.Server.TLSCertFile)
	envString("TLS_KEY_FILE", &config.Server.TLSKeyFile)
	envBool("CORS_ENABLED", &config.Server.CORS.Enabled)
	if origins := env("CORS_ALLOWED_ORIGINS"); origins != "" {
		config.Server.CORS.AllowedOrigins = splitList(origins)
	}

	// Storage configuration
	envString("STORAGE_TYPE", &config.Storage.Type)
	envString("STORAGE_PATH", &config.Storage.Path)

	// Security configuration
	envString("HEADER_NAME", &config.Security.HeaderName)
	if paths := env("EXCLUDE_PATHS"); paths != "" {
		config.Security.ExcludePaths = splitList(paths)
	}
	if key := os.Getenv(LegacyDefaultKeyEnv); key != "" {
		config.Security.DefaultKey = key
	}
	envString("DEFAULT_KEY", &config.Security.DefaultKey)
	envInt("DEFAULT_RATE_LIMIT", &config.Security.DefaultRateLimit)
	envDuration("RATE_LIMIT_WINDOW", &config.Security.RateLimitWindow)
	envInt("DEFAULT_EXPIRY_DAYS", &config.Security.DefaultExpiryDays)

	// Logging configuration
	envString("LOG_LEVEL", &config.Logging.Level)
	envString("LOG_FORMAT", &config.Logging.Format)
	envString("LOG_OUTPUT", &config.Logging.Output)
	envString("LOG_FILE_PATH", &config.Logging.FilePath)

	// Metrics configuration
	envBool("METRICS_ENABLED", &config.Metrics.Enabled)
	envString("METRICS_PATH", &config.Metrics.Path)
	envInt("METRICS_PORT", &config.Metrics.Port)

	// Observability configuration
	envString("SERVICE_NAME", &config.Observability.ServiceName)
	envBool("TRACING_ENABLED", &config.Observability.Tracing.Enabled)
	envString("TRACING_EXPORTER", &config.Observability.Tracing.Exporter)
	envString("OTLP_ENDPOINT", &config.Observability.Tracing.OTLPEndpoint)
	if rate := env("TRACING_SAMPLE_RATE"); rate != "" {
		if f, err := strconv.ParseFloat(rate, 64); err == nil {
			config.Observability.Tracing.SampleRate = f
		}
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// SaveExample saves an example configuration file
func SaveExample(filePath string) error {
	// Create directory if it doesn't exist
	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	config := models.NewDefaultConfig()

	config.Storage.Type = models.StorageTypeJSON
	config.Security.DefaultKey = "sk-replace-with-a-long-random-value"

	// Example TLS configuration
	config.Server.TLSEnabled = false
	config.Server.TLSCertFile = "/path/to/cert.pem"
	config.Server.TLSKeyFile = "/path/to/key.pem"

	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config to YAML: %w", err)
	}

	// The example carries a credential placeholder; keep it owner-only.
	if err := os.WriteFile(filePath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
