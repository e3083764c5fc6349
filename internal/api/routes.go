package api

import (
	"net/http"
	"slices"

	"github.com/go-chi/cors"
	"github.com/gorilla/mux"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"

	"keygate/internal/models"
	"keygate/internal/ratelimit"
)

// AdminScope is the scope required by the key administration endpoints.
const AdminScope = "admin"

type routeSettings struct {
	middleware []mux.MiddlewareFunc
	gateOpts   []GateOption
}

// RouteOption configures optional route behavior.
type RouteOption func(*routeSettings)

// WithOTelMiddleware adds OpenTelemetry HTTP instrumentation middleware.
func WithOTelMiddleware(serviceName string) RouteOption {
	return func(s *routeSettings) {
		s.middleware = append(s.middleware, otelmux.Middleware(serviceName,
			otelmux.WithFilter(func(r *http.Request) bool {
				return r.URL.Path != "/health" &&
					r.URL.Path != "/api/v1/health"
			}),
		))
	}
}

// WithGateOptions passes options through to the request gate.
func WithGateOptions(opts ...GateOption) RouteOption {
	return func(s *routeSettings) {
		s.gateOpts = append(s.gateOpts, opts...)
	}
}

// SetupRoutes configures the HTTP routes for the API. Every request,
// including ones that match no route, passes through the gate.
func SetupRoutes(handlers *Handlers, config *models.Config, opts ...RouteOption) *mux.Router {
	settings := &routeSettings{}
	for _, opt := range opts {
		opt(settings)
	}

	router := mux.NewRouter()

	chain := []mux.MiddlewareFunc{recoveryMiddleware}
	if config.Server.CORS.Enabled {
		chain = append(chain, corsMiddleware(config.Server.CORS, config.Security.HeaderName))
	}
	chain = append(chain, requestIDMiddleware)
	chain = append(chain, settings.middleware...)
	chain = append(chain,
		loggingMiddleware,
		Gate(handlers.manager, GateConfigFrom(config.Security), settings.gateOpts...),
	)
	router.Use(chain...)

	router.HandleFunc("/health", handlers.HealthCheck).Methods("GET")
	router.HandleFunc("/api/v1/health", handlers.HealthCheck).Methods("GET")

	// Routes are registered with full paths on the top-level router. mux only
	// reports a method mismatch for routes it can see at this level.
	router.HandleFunc("/api/v1/keys/self", handlers.KeySelf).Methods("GET")

	requireAdmin := RequireScope(handlers.manager, AdminScope)
	admin := func(path string, h http.HandlerFunc, method string) {
		router.Handle("/api/v1/admin/keys"+path, requireAdmin(h)).Methods(method)
	}
	admin("", handlers.ListKeys, "GET")
	admin("", handlers.GenerateKey, "POST")
	admin("", handlers.UpdateKey, "PATCH")
	admin("/info", handlers.GetKeyInfo, "POST")
	admin("/revoke", handlers.RevokeKey, "POST")

	// mux skips router middleware for unmatched requests.
	router.NotFoundHandler = wrapChain(http.HandlerFunc(handlers.notFound), chain)
	router.MethodNotAllowedHandler = wrapChain(http.HandlerFunc(handlers.methodNotAllowed), chain)

	return router
}

// corsMiddleware answers preflight requests itself, so browsers never need
// to present a key for OPTIONS.
func corsMiddleware(cfg models.CORSConfig, headerName string) mux.MiddlewareFunc {
	headers := slices.Clone(cfg.AllowedHeaders)
	if headerName != "" && !slices.Contains(headers, headerName) {
		headers = append(headers, headerName)
	}
	return cors.Handler(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: cfg.AllowedMethods,
		AllowedHeaders: headers,
		ExposedHeaders: []string{
			RequestIDHeader,
			ratelimit.HeaderLimit,
			ratelimit.HeaderRemaining,
			ratelimit.HeaderReset,
			ratelimit.HeaderRetryAfter,
		},
		MaxAge: cfg.MaxAge,
	})
}

func wrapChain(h http.Handler, chain []mux.MiddlewareFunc) http.Handler {
	for i := len(chain) - 1; i >= 0; i-- {
		h = chain[i](h)
	}
	return h
}

func (h *Handlers) notFound(w http.ResponseWriter, r *http.Request) {
	h.writeErrorResponse(w, r, http.StatusNotFound, models.ErrorCodeNotFound, "Not found")
}

func (h *Handlers) methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	h.writeErrorResponse(w, r, http.StatusMethodNotAllowed, models.ErrorCodeMethodNotAllowed, "Method not allowed")
}
