package http

import (
	"net/http"
	"strings"
	"time"

	"github.com/artpar/amodule/adapters/metrics"
	"github.com/artpar/amodule/core/openapi"
	"github.com/artpar/amodule/core/spec"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	httpSwagger "github.com/swaggo/http-swagger"
)

// RouterConfig holds optional configuration for the router.
type RouterConfig struct {
	Metrics        *metrics.Collector
	MetricsHandler http.Handler // Exporter for the metrics path (default: promhttp.Handler)
	MetricsPath    string       // default: /metrics

	OpenAPI         *openapi.Service // nil disables /.well-known/openapi.json and /swagger
	SwaggerInstance string           // swag instance the UI reads doc.json from

	Auth    *APIKeyAuth // nil leaves /api open
	Version string
	Timeout time.Duration // Per-request timeout (default: 60s)
}

// NewRouter creates the main HTTP router.
func NewRouter(h *ModuleHandler, health *HealthHandler, logger zerolog.Logger, cfg RouterConfig) chi.Router {
	r := chi.NewRouter()

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(NewLoggingMiddleware(logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(timeout))

	if cfg.Metrics != nil {
		r.Use(NewMetricsMiddleware(cfg.Metrics))
	}

	// Health endpoints (no auth required)
	r.Get("/health", health.Liveness)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	metricsPath := cfg.MetricsPath
	if metricsPath == "" {
		metricsPath = "/metrics"
	}
	if cfg.MetricsHandler != nil {
		r.Handle(metricsPath, cfg.MetricsHandler)
	} else if cfg.Metrics != nil {
		r.Handle(metricsPath, promhttp.Handler())
	}

	if cfg.OpenAPI != nil {
		svc := cfg.OpenAPI
		r.Get("/.well-known/openapi.json", func(w http.ResponseWriter, r *http.Request) {
			raw, err := svc.JSON()
			if err != nil {
				logger.Error().Err(err).Msg("failed to render openapi document")
				http.Error(w, "openapi document unavailable", http.StatusInternalServerError)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Write(raw)
		})

		opts := []func(*httpSwagger.Config){httpSwagger.URL("/.well-known/openapi.json")}
		if cfg.SwaggerInstance != "" {
			opts = append(opts, httpSwagger.InstanceName(cfg.SwaggerInstance))
		}
		r.Get("/swagger/*", httpSwagger.Handler(opts...))
	}

	r.Get("/version", VersionHandler(cfg.Version, moduleMeta(h)))

	r.Route("/api", func(api chi.Router) {
		if cfg.Auth != nil {
			api.Use(cfg.Auth.Middleware)
		}
		h.Routes(api)
	})

	return r
}

func moduleMeta(h *ModuleHandler) spec.ModuleMeta {
	if s := h.module.Spec(); s != nil {
		return s.Module
	}
	return spec.ModuleMeta{}
}

// internalPath reports paths excluded from request logs and metrics.
func internalPath(path string) bool {
	return strings.HasPrefix(path, "/health") || path == "/metrics" ||
		strings.HasPrefix(path, "/swagger") || strings.HasPrefix(path, "/.well-known")
}
