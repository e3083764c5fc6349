// Package models - Service configuration and operational settings.
// This file defines the configuration structures for every keygate component.
//
// Configuration Philosophy:
// - Hierarchical configuration with logical grouping (server, storage, security, etc.)
// - Defaults that run a local development gate out of the box
// - Validation that catches misconfigurations before the listener starts
// - The bootstrap credential is configuration, never source code, in production
package models

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
)

// Storage type constants
const (
	StorageTypeMemory = "memory"
	StorageTypeJSON   = "json"
)

const (
	// DefaultHeaderName is the request header that carries the API key.
	DefaultHeaderName = "X-API-Key"

	// DefaultDevelopmentKey is the fallback bootstrap credential used when
	// none is configured. Production deployments must override it.
	DefaultDevelopmentKey = "test-mcp-api-key-local-dev"

	DefaultRateLimit       = 1000
	DefaultRateLimitWindow = time.Hour
	DefaultExpiryDays      = 90
)

// DefaultExcludePaths are reachable without an API key.
var DefaultExcludePaths = []string{"/docs", "/redoc", "/openapi.json", "/health", "/api/v1/health"}

// Config is the root configuration structure containing all service settings.
//
// Configuration Structure:
// - Server: HTTP server and network settings
// - Storage: where credential records live (memory or a JSON mirror)
// - Security: the request gate and key manager defaults
// - Logging: Structured logging and output configuration
// - Metrics: Prometheus endpoint
// - Observability: tracing
type Config struct {
	Server        ServerConfig        `yaml:"server" json:"server"`
	Storage       StorageConfig       `yaml:"storage" json:"storage"`
	Security      SecurityConfig      `yaml:"security" json:"security"`
	Logging       LoggingConfig       `yaml:"logging" json:"logging"`
	Metrics       MetricsConfig       `yaml:"metrics" json:"metrics"`
	Observability ObservabilityConfig `yaml:"observability" json:"observability"`
}

type ServerConfig struct {
	Port         int           `yaml:"port" json:"port"`
	Host         string        `yaml:"host" json:"host"`
	ReadTimeout  time.Duration `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" json:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" json:"idle_timeout"`
	TLSEnabled   bool          `yaml:"tls_enabled" json:"tls_enabled"`
	TLSCertFile  string        `yaml:"tls_cert_file" json:"tls_cert_file"`
	TLSKeyFile   string        `yaml:"tls_key_file" json:"tls_key_file"`
	CORS         CORSConfig    `yaml:"cors" json:"cors"`
}

// CORSConfig controls cross-origin access for browser clients. Preflight
// requests are answered before the gate, so they never need an API key.
type CORSConfig struct {
	Enabled        bool     `yaml:"enabled" json:"enabled"`
	AllowedOrigins []string `yaml:"allowed_origins" json:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods" json:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers" json:"allowed_headers"`
	MaxAge         int      `yaml:"max_age" json:"max_age"`
}

type StorageConfig struct {
	Type string `yaml:"type" json:"type"`
	Path string `yaml:"path" json:"path"`
}

// SecurityConfig drives the request gate and the key manager.
//
// DefaultKey is seeded once at startup with wildcard scope. ExcludePaths are
// matched by prefix and skip every credential check.
type SecurityConfig struct {
	HeaderName        string        `yaml:"header_name" json:"header_name"`
	ExcludePaths      []string      `yaml:"exclude_paths" json:"exclude_paths"`
	DefaultKey        string        `yaml:"default_key" json:"default_key"`
	DefaultRateLimit  int           `yaml:"default_rate_limit" json:"default_rate_limit"`
	RateLimitWindow   time.Duration `yaml:"rate_limit_window" json:"rate_limit_window"`
	DefaultExpiryDays int           `yaml:"default_expiry_days" json:"default_expiry_days"`
}

type LoggingConfig struct {
	Level    string `yaml:"level" json:"level"`
	Format   string `yaml:"format" json:"format"`
	Output   string `yaml:"output" json:"output"`
	FilePath string `yaml:"file_path" json:"file_path"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Path    string `yaml:"path" json:"path"`
	Port    int    `yaml:"port" json:"port"`
}

type ObservabilityConfig struct {
	ServiceName string        `yaml:"service_name" json:"service_name"`
	Tracing     TracingConfig `yaml:"tracing" json:"tracing"`
}

type TracingConfig struct {
	Enabled      bool    `yaml:"enabled" json:"enabled"`
	Exporter     string  `yaml:"exporter" json:"exporter"`
	OTLPEndpoint string  `yaml:"otlp_endpoint" json:"otlp_endpoint"`
	SampleRate   float64 `yaml:"sample_rate" json:"sample_rate"`
}

// NewDefaultConfig creates a configuration suitable for local development.
//
// Default Values Rationale:
// - Port 8080: Standard non-privileged HTTP port
// - Memory storage: matches the single-process key manager
// - 1000 requests per hour per key, 90-day key lifetime
// - Documentation and health endpoints reachable without a key
func NewDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         8080,
			Host:         "0.0.0.0",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
			CORS: CORSConfig{
				Enabled:        false,
				AllowedMethods: []string{"GET", "POST", "PATCH", "OPTIONS"},
				AllowedHeaders: []string{"Accept", "Content-Type", DefaultHeaderName, "X-Request-ID"},
				MaxAge:         300,
			},
		},
		Storage: StorageConfig{
			Type: StorageTypeMemory,
			Path: "./data/keys.json",
		},
		Security: SecurityConfig{
			HeaderName:        DefaultHeaderName,
			ExcludePaths:      slices.Clone(DefaultExcludePaths),
			DefaultKey:        DefaultDevelopmentKey,
			DefaultRateLimit:  DefaultRateLimit,
			RateLimitWindow:   DefaultRateLimitWindow,
			DefaultExpiryDays: DefaultExpiryDays,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
			Port:    9090,
		},
		Observability: ObservabilityConfig{
			ServiceName: "keygate",
			Tracing: TracingConfig{
				Enabled:    false,
				Exporter:   "stdout",
				SampleRate: 1.0,
			},
		},
	}
}

func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("invalid server config: %w", err)
	}

	if err := c.Storage.Validate(); err != nil {
		return fmt.Errorf("invalid storage config: %w", err)
	}

	if err := c.Security.Validate(); err != nil {
		return fmt.Errorf("invalid security config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("invalid logging config: %w", err)
	}

	if err := c.Metrics.Validate(); err != nil {
		return fmt.Errorf("invalid metrics config: %w", err)
	}

	if err := c.Observability.Validate(); err != nil {
		return fmt.Errorf("invalid observability config: %w", err)
	}

	return nil
}

func (sc *ServerConfig) Validate() error {
	if sc.Port <= 0 || sc.Port > 65535 {
		return errors.New("port must be between 1 and 65535")
	}

	if sc.Host == "" {
		return errors.New("host cannot be empty")
	}

	if sc.ReadTimeout < 0 || sc.WriteTimeout < 0 || sc.IdleTimeout < 0 {
		return errors.New("timeouts cannot be negative")
	}

	if sc.TLSEnabled {
		if sc.TLSCertFile == "" {
			return errors.New("TLS cert file is required when TLS is enabled")
		}
		if sc.TLSKeyFile == "" {
			return errors.New("TLS key file is required when TLS is enabled")
		}
	}

	if sc.CORS.Enabled && len(sc.CORS.AllowedOrigins) == 0 {
		return errors.New("CORS requires at least one allowed origin when enabled")
	}

	if sc.CORS.MaxAge < 0 {
		return errors.New("CORS max age cannot be negative")
	}

	return nil
}

func (stc *StorageConfig) Validate() error {
	switch stc.Type {
	case StorageTypeMemory:
		return nil
	case StorageTypeJSON:
		if stc.Path == "" {
			return errors.New("path is required for JSON storage")
		}
		return nil
	default:
		return fmt.Errorf("invalid storage type: %s", stc.Type)
	}
}

func (sec *SecurityConfig) Validate() error {
	if strings.TrimSpace(sec.HeaderName) == "" {
		return errors.New("header name cannot be empty")
	}

	for _, p := range sec.ExcludePaths {
		if !strings.HasPrefix(p, "/") {
			return fmt.Errorf("exclude path must start with '/': %q", p)
		}
	}

	if sec.DefaultRateLimit <= 0 {
		return errors.New("default rate limit must be positive")
	}

	if sec.RateLimitWindow <= 0 {
		return errors.New("rate limit window must be positive")
	}

	if sec.DefaultExpiryDays <= 0 {
		return errors.New("default expiry days must be positive")
	}

	return nil
}

func (lc *LoggingConfig) Validate() error {
	if !slices.Contains([]string{"debug", "info", "warn", "error"}, lc.Level) {
		return fmt.Errorf("invalid log level: %s", lc.Level)
	}

	if !slices.Contains([]string{"json", "text"}, lc.Format) {
		return fmt.Errorf("invalid log format: %s", lc.Format)
	}

	if !slices.Contains([]string{"stdout", "stderr", "file"}, lc.Output) {
		return fmt.Errorf("invalid log output: %s", lc.Output)
	}

	if lc.Output == "file" && lc.FilePath == "" {
		return errors.New("file path is required when output is file")
	}

	return nil
}

func (mc *MetricsConfig) Validate() error {
	if !mc.Enabled {
		return nil
	}

	if mc.Path == "" {
		return errors.New("metrics path cannot be empty")
	}

	if mc.Port <= 0 || mc.Port > 65535 {
		return errors.New("metrics port must be between 1 and 65535")
	}

	return nil
}

func (oc *ObservabilityConfig) Validate() error {
	if !oc.Tracing.Enabled {
		return nil
	}

	switch oc.Tracing.Exporter {
	case "stdout":
	case "otlp":
		if oc.Tracing.OTLPEndpoint == "" {
			return errors.New("OTLP endpoint is required when exporter is otlp")
		}
	default:
		return fmt.Errorf("invalid trace exporter: %s", oc.Tracing.Exporter)
	}

	if oc.Tracing.SampleRate < 0 || oc.Tracing.SampleRate > 1 {
		return errors.New("sample rate must be between 0 and 1")
	}

	return nil
}

// UsesDevelopmentKey reports whether the bootstrap key is still the
// built-in development placeholder.
func (sec *SecurityConfig) UsesDevelopmentKey() bool {
	return sec.DefaultKey == DefaultDevelopmentKey
}
