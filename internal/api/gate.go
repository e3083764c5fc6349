package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"keygate/internal/keys"
	"keygate/internal/models"
	"keygate/internal/ratelimit"
)

// Decision is the terminal state of a request passing through the gate.
type Decision string

const (
	DecisionBypassed     Decision = "bypassed"
	DecisionForwarded    Decision = "forwarded"
	DecisionRejectedAuth Decision = "rejected_auth"
	DecisionRejectedRate Decision = "rejected_rate"
	DecisionError        Decision = "error"
)

// DecisionRecorder observes every gate decision and the time it took,
// measured from admission to the end of the downstream handler.
type DecisionRecorder interface {
	RecordDecision(ctx context.Context, decision Decision, duration time.Duration)
}

// GateConfig controls which header carries the key and which paths skip
// the gate entirely.
type GateConfig struct {
	HeaderName   string
	ExcludePaths []string
}

// GateConfigFrom builds a GateConfig from the security section.
func GateConfigFrom(sec models.SecurityConfig) GateConfig {
	return GateConfig{
		HeaderName:   sec.HeaderName,
		ExcludePaths: sec.ExcludePaths,
	}
}

// GateOption configures the gate middleware.
type GateOption func(*gate)

// WithDecisionRecorder reports each decision to rec.
func WithDecisionRecorder(rec DecisionRecorder) GateOption {
	return func(g *gate) {
		g.recorder = rec
	}
}

type gate struct {
	auth     keys.Authenticator
	config   GateConfig
	recorder DecisionRecorder
}

// Gate returns middleware that admits a request only if it carries a valid
// key with quota left. Excluded paths are forwarded without any check.
// Rejections answer 401 or 429 with a GateRejection body and never reach
// the wrapped handler.
func Gate(auth keys.Authenticator, config GateConfig, opts ...GateOption) mux.MiddlewareFunc {
	if config.HeaderName == "" {
		config.HeaderName = models.DefaultHeaderName
	}
	g := &gate{auth: auth, config: config}
	for _, opt := range opts {
		opt(g)
	}
	return g.middleware
}

func (g *gate) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		if g.excluded(r.URL.Path) {
			next.ServeHTTP(w, r)
			g.record(r.Context(), DecisionBypassed, start)
			return
		}

		raw := r.Header.Get(g.config.HeaderName)

		if err := g.auth.Validate(r.Context(), raw, ""); err != nil {
			var ke *keys.KeyError
			if !errors.As(err, &ke) {
				g.internalError(w, r, err, start)
				return
			}
			slog.Warn("API key validation failed",
				"reason", ke.Reason,
				"message", ke.Message,
				"path", r.URL.Path,
			)
			writeGateRejection(w, http.StatusUnauthorized, ke.Message)
			g.record(r.Context(), DecisionRejectedAuth, start)
			return
		}

		info, err := g.auth.CheckRateLimit(r.Context(), raw)
		if err != nil {
			var ke *keys.KeyError
			if !errors.As(err, &ke) {
				g.internalError(w, r, err, start)
				return
			}
			// A key revoked between validation and counting lands here.
			if ke.Reason != keys.ReasonRateLimitExceeded {
				writeGateRejection(w, http.StatusUnauthorized, ke.Message)
				g.record(r.Context(), DecisionRejectedAuth, start)
				return
			}
			slog.Warn("Rate limit exceeded for API key", "path", r.URL.Path)
			ratelimit.SetHeaders(w, info)
			ratelimit.SetRetryAfter(w, info)
			writeGateRejection(w, http.StatusTooManyRequests, ke.Message)
			g.record(r.Context(), DecisionRejectedRate, start)
			return
		}

		ratelimit.SetHeaders(w, info)

		ctx := context.WithValue(r.Context(), keyHashContextKey, models.HashAPIKey(raw))
		ctx = context.WithValue(ctx, rawKeyContextKey, raw)

		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r.WithContext(ctx))

		elapsed := time.Since(start)
		slog.Debug("Request processed",
			"method", r.Method,
			"path", r.URL.Path,
			"status", sw.status,
			"duration", elapsed,
		)
		if g.recorder != nil {
			g.recorder.RecordDecision(r.Context(), DecisionForwarded, elapsed)
		}
	})
}

// excluded reports whether path starts with any allow-listed prefix.
func (g *gate) excluded(path string) bool {
	for _, prefix := range g.config.ExcludePaths {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

func (g *gate) internalError(w http.ResponseWriter, r *http.Request, err error, start time.Time) {
	slog.Error("API key check failed", "error", err, "path", r.URL.Path)
	writeGateRejection(w, http.StatusInternalServerError, "Internal server error")
	g.record(r.Context(), DecisionError, start)
}

func (g *gate) record(ctx context.Context, decision Decision, start time.Time) {
	if g.recorder != nil {
		g.recorder.RecordDecision(ctx, decision, time.Since(start))
	}
}

// RequireScope returns middleware that checks the key admitted by the gate
// for scope. It must run inside Gate. A missing scope answers 403.
func RequireScope(auth keys.Authenticator, scope string) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			err := auth.Validate(r.Context(), rawKeyFromContext(r.Context()), scope)
			if err == nil {
				next.ServeHTTP(w, r)
				return
			}

			var ke *keys.KeyError
			switch {
			case errors.As(err, &ke) && ke.Reason == keys.ReasonScopeDenied:
				slog.Warn("Insufficient scope",
					"scope", scope,
					"key_id", models.KeyID(KeyHashFromContext(r.Context())),
					"path", r.URL.Path,
				)
				writeGateRejection(w, http.StatusForbidden, ke.Message)
			case errors.As(err, &ke):
				writeGateRejection(w, http.StatusUnauthorized, ke.Message)
			default:
				slog.Error("Scope check failed", "error", err, "path", r.URL.Path)
				writeGateRejection(w, http.StatusInternalServerError, "Internal server error")
			}
		})
	}
}

type contextKey string

const (
	keyHashContextKey contextKey = "key_hash"
	rawKeyContextKey  contextKey = "raw_api_key"
)

// KeyHashFromContext returns the hash of the key admitted by the gate, or
// an empty string for requests that bypassed it.
func KeyHashFromContext(ctx context.Context) string {
	hash, _ := ctx.Value(keyHashContextKey).(string)
	return hash
}

func rawKeyFromContext(ctx context.Context) string {
	raw, _ := ctx.Value(rawKeyContextKey).(string)
	return raw
}

func writeGateRejection(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(models.NewGateRejection(message)); err != nil {
		slog.Error("Failed to encode gate rejection", "error", err)
	}
}
