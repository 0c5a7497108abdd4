// Package metrics provides Prometheus metrics collection for amodule.
package metrics

import (
	"time"

	"github.com/artpar/amodule/domain/run"
	"github.com/artpar/amodule/ports"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "amodule"

// Collector holds all Prometheus metrics for amodule.
type Collector struct {
	// Request metrics
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RequestsInFlight prometheus.Gauge

	// Auth metrics
	AuthFailures *prometheus.CounterVec

	// Contract metrics
	Validations        *prometheus.CounterVec
	Invocations        *prometheus.CounterVec
	InvocationDuration *prometheus.HistogramVec

	// Module metadata, constant 1
	ModuleInfo *prometheus.GaugeVec

	// Config metrics
	ConfigReloads      prometheus.Counter
	ConfigReloadErrors prometheus.Counter
	ConfigLastReload   prometheus.Gauge
}

// New creates a collector registered with the default registry.
func New() *Collector {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a new metrics collector with a custom registry.
// Useful for testing to avoid global state.
func NewWithRegistry(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "requests_total",
				Help:      "Total number of HTTP requests processed",
			},
			[]string{"method", "route", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "route", "status"},
		),
		RequestsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "requests_in_flight",
				Help:      "Number of HTTP requests currently being processed",
			},
		),
		AuthFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "auth_failures_total",
				Help:      "Total number of API key authentication failures",
			},
			[]string{"reason"},
		),
		Validations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "validations_total",
				Help:      "Contract checks by method, direction and result",
			},
			[]string{"method", "direction", "result"},
		),
		Invocations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "invocations_total",
				Help:      "Method invocations by outcome",
			},
			[]string{"method", "status"},
		),
		InvocationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "invocation_duration_seconds",
				Help:      "Method invocation duration in seconds",
				Buckets:   []float64{.0005, .001, .005, .01, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"method"},
		),
		ModuleInfo: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "module_info",
				Help:      "Name and version of the served module",
			},
			[]string{"name", "version"},
		),
		ConfigReloads: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "config_reloads_total",
				Help:      "Total number of successful config reloads",
			},
		),
		ConfigReloadErrors: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "config_reload_errors_total",
				Help:      "Total number of config reload errors",
			},
		),
		ConfigLastReload: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "config_last_reload_timestamp",
				Help:      "Unix timestamp of last successful config reload",
			},
		),
	}
}

// Validated implements ports.Observer.
func (c *Collector) Validated(method, direction string, ok bool) {
	result := "pass"
	if !ok {
		result = "fail"
	}
	c.Validations.WithLabelValues(method, direction, result).Inc()
}

// Invoked implements ports.Observer.
func (c *Collector) Invoked(method string, status run.Status, d time.Duration) {
	c.Invocations.WithLabelValues(method, string(status)).Inc()
	c.InvocationDuration.WithLabelValues(method).Observe(d.Seconds())
}

// SetModule publishes the module name and version.
func (c *Collector) SetModule(name, version string) {
	c.ModuleInfo.Reset()
	c.ModuleInfo.WithLabelValues(name, version).Set(1)
}

// StatusClass maps an HTTP status code to "2xx", "4xx", etc.
func StatusClass(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	case code >= 200:
		return "2xx"
	default:
		return "1xx"
	}
}

var _ ports.Observer = (*Collector)(nil)
