package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"keygate/internal/api"
	"keygate/internal/config"
	"keygate/internal/keys"
	"keygate/internal/logger"
	"keygate/internal/models"
	"keygate/internal/observability"
	"keygate/internal/ratelimit"
	"keygate/internal/storage"
	"keygate/internal/version"
)

func newServeCmd() *cobra.Command {
	var (
		port int
		host string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API key gate",
		Long:  "Start the HTTP server. Every request except allow-listed paths must carry a valid API key.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("port") {
				cfg.Server.Port = port
			}
			if cmd.Flags().Changed("host") {
				cfg.Server.Host = host
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg)
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 8080, "HTTP listen port (overrides config)")
	cmd.Flags().StringVar(&host, "host", "0.0.0.0", "HTTP listen host (overrides config)")

	return cmd
}

// runServe starts the gate and blocks until ctx is cancelled.
func runServe(ctx context.Context, cfg *models.Config) error {
	info := version.GetInfo()

	// Initialize structured logging
	log, closer, err := logger.Setup(cfg.Logging, info)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	if closer != nil {
		defer closer.Close()
	}
	slog.SetDefault(log)

	// Initialize observability (OpenTelemetry)
	otelProvider, err := observability.Setup(ctx, cfg.Metrics, cfg.Observability, info)
	if err != nil {
		return fmt.Errorf("failed to initialize observability: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := otelProvider.Shutdown(shutdownCtx); err != nil {
			slog.Error("Failed to shutdown observability", "error", err)
		}
	}()

	store, err := storage.NewFactory().Create(cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer store.Close()

	// Wrap storage with instrumentation if metrics are enabled
	var activeStorage storage.Storage = store
	if cfg.Metrics.Enabled || cfg.Observability.Tracing.Enabled {
		instrumented, err := observability.NewInstrumentedStorage(store)
		if err != nil {
			return fmt.Errorf("failed to create instrumented storage: %w", err)
		}
		activeStorage = instrumented
	}

	limiter := ratelimit.NewWindowLimiter(cfg.Security.RateLimitWindow)
	defer limiter.Close()

	manager := keys.NewManager(activeStorage, limiter,
		keys.WithDefaultRateLimit(cfg.Security.DefaultRateLimit),
		keys.WithDefaultExpiryDays(cfg.Security.DefaultExpiryDays),
	)

	if cfg.Security.UsesDevelopmentKey() {
		slog.Warn("Using the built-in development API key; set KEYGATE_DEFAULT_KEY or security.default_key in production")
	}
	if _, err := manager.SeedDefault(ctx, cfg.Security.DefaultKey); err != nil {
		return fmt.Errorf("failed to seed default key: %w", err)
	}

	routeOpts := []api.RouteOption{}
	if cfg.Observability.Tracing.Enabled {
		routeOpts = append(routeOpts, api.WithOTelMiddleware(cfg.Observability.ServiceName))
	}
	if cfg.Metrics.Enabled {
		gateMetrics, err := observability.NewGateMetrics()
		if err != nil {
			return fmt.Errorf("failed to create gate metrics: %w", err)
		}
		routeOpts = append(routeOpts, api.WithGateOptions(api.WithDecisionRecorder(gateMetrics)))
	}

	handlers := api.NewHandlers(manager, api.WithVersion(info.Version))
	router := api.SetupRoutes(handlers, cfg, routeOpts...)

	// Start metrics server if enabled
	var metricsServer *observability.MetricsServer
	if cfg.Metrics.Enabled {
		metricsServer = observability.NewMetricsServer(cfg.Metrics.Port, cfg.Metrics.Path, otelProvider)
		go func() {
			if err := metricsServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("Metrics server failed", "error", err)
			}
		}()
	}

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("Starting server",
			"addr", server.Addr,
			"tls", cfg.Server.TLSEnabled,
			"storage", cfg.Storage.Type,
			"header", cfg.Security.HeaderName,
		)

		var err error
		if cfg.Server.TLSEnabled {
			err = server.ListenAndServeTLS(cfg.Server.TLSCertFile, cfg.Server.TLSKeyFile)
		} else {
			err = server.ListenAndServe()
		}
		serveErr <- err
	}()

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("Shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("Metrics server forced to shutdown", "error", err)
		}
	}

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}

	slog.Info("Server shutdown complete")
	return nil
}
