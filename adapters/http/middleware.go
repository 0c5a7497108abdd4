package http

import (
	"net/http"
	"strings"
	"time"

	"github.com/artpar/amodule/adapters/metrics"
	"github.com/artpar/amodule/pkg/jsonapi"
	"github.com/artpar/amodule/ports"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// NewMetricsMiddleware creates middleware that records request metrics.
// Requests are labelled by chi route pattern so path parameters do not
// create new series.
func NewMetricsMiddleware(m *metrics.Collector) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if internalPath(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			m.RequestsInFlight.Inc()
			defer m.RequestsInFlight.Dec()

			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			route := "unmatched"
			if rc := chi.RouteContext(r.Context()); rc != nil {
				if p := rc.RoutePattern(); p != "" {
					route = p
				}
			}
			status := metrics.StatusClass(ww.Status())

			m.RequestsTotal.WithLabelValues(r.Method, route, status).Inc()
			m.RequestDuration.WithLabelValues(r.Method, route, status).Observe(time.Since(start).Seconds())
		})
	}
}

// NewLoggingMiddleware creates a new logging middleware.
func NewLoggingMiddleware(logger zerolog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			// Skip logging for health checks and metrics
			if internalPath(r.URL.Path) {
				return
			}

			logger.Debug().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(start)).
				Str("request_id", middleware.GetReqID(r.Context())).
				Msg("http request")
		})
	}
}

// APIKeyAuth guards routes with a single bcrypt-hashed API key.
type APIKeyAuth struct {
	hasher  ports.Hasher
	hash    []byte
	header  string
	metrics *metrics.Collector
	logger  zerolog.Logger
}

// NewAPIKeyAuth creates the API key check. header defaults to X-API-Key;
// m may be nil.
func NewAPIKeyAuth(hasher ports.Hasher, hash string, header string, m *metrics.Collector, logger zerolog.Logger) *APIKeyAuth {
	if header == "" {
		header = "X-API-Key"
	}
	return &APIKeyAuth{
		hasher:  hasher,
		hash:    []byte(hash),
		header:  header,
		metrics: m,
		logger:  logger,
	}
}

// Middleware rejects requests without a valid key.
func (a *APIKeyAuth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := extractAPIKey(r, a.header)
		if key == "" {
			a.fail(r, "missing")
			jsonapi.WriteError(w, jsonapi.NewError(401, "missing_api_key", "Unauthorized").
				Detailf("Send the API key in the %s header or as a bearer token", a.header).
				Header(a.header).
				Build())
			return
		}
		if !a.hasher.Compare(a.hash, key) {
			a.fail(r, "invalid")
			jsonapi.WriteUnauthorized(w, "The provided API key is invalid")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (a *APIKeyAuth) fail(r *http.Request, reason string) {
	if a.metrics != nil {
		a.metrics.AuthFailures.WithLabelValues(reason).Inc()
	}
	a.logger.Debug().
		Str("reason", reason).
		Str("path", r.URL.Path).
		Str("request_id", middleware.GetReqID(r.Context())).
		Msg("api key rejected")
}

// extractAPIKey extracts the API key from the configured header or an
// Authorization bearer token.
func extractAPIKey(r *http.Request, header string) string {
	if key := r.Header.Get(header); key != "" {
		return key
	}

	if auth := r.Header.Get("Authorization"); auth != "" {
		if len(auth) > 7 && strings.EqualFold(auth[:7], "bearer ") {
			return strings.TrimSpace(auth[7:])
		}
	}

	return ""
}
