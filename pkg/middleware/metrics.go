package middleware

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/dataroute/dataroute/pkg/request"
)

// MetricsConfig configures the Prometheus middleware, mirroring the
// teacher's MetricsConfig shape.
type MetricsConfig struct {
	Namespace   string
	Subsystem   string
	ConstLabels prometheus.Labels
	Buckets     []float64
	Registry    prometheus.Registerer
}

// MetricsOption configures the Prometheus middleware.
type MetricsOption func(*MetricsConfig)

func WithNamespace(namespace string) MetricsOption {
	return func(c *MetricsConfig) { c.Namespace = namespace }
}

func WithSubsystem(subsystem string) MetricsOption {
	return func(c *MetricsConfig) { c.Subsystem = subsystem }
}

func WithConstLabels(labels prometheus.Labels) MetricsOption {
	return func(c *MetricsConfig) { c.ConstLabels = labels }
}

func WithBuckets(buckets []float64) MetricsOption {
	return func(c *MetricsConfig) { c.Buckets = buckets }
}

func WithRegistry(registry prometheus.Registerer) MetricsOption {
	return func(c *MetricsConfig) { c.Registry = registry }
}

func defaultMetricsConfig() MetricsConfig {
	return MetricsConfig{Namespace: "dataroute", Buckets: prometheus.DefBuckets, Registry: prometheus.DefaultRegisterer}
}

type metrics struct {
	callsTotal   *prometheus.CounterVec
	callDuration *prometheus.HistogramVec
	callErrors   *prometheus.CounterVec
}

var (
	globalMetrics   *metrics
	globalMetricsMu sync.Mutex
)

func initMetrics(config MetricsConfig) *metrics {
	factory := promauto.With(config.Registry)
	return &metrics{
		callsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: config.Namespace, Subsystem: config.Subsystem,
			Name: "calls_total", Help: "Total number of loader/action calls processed",
			ConstLabels: config.ConstLabels,
		}, []string{"method", "status"}),
		callDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: config.Namespace, Subsystem: config.Subsystem,
			Name: "call_duration_seconds", Help: "Loader/action call duration in seconds",
			ConstLabels: config.ConstLabels, Buckets: config.Buckets,
		}, []string{"method"}),
		callErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: config.Namespace, Subsystem: config.Subsystem,
			Name: "call_errors_total", Help: "Total number of loader/action call errors",
			ConstLabels: config.ConstLabels,
		}, []string{"method"}),
	}
}

// Prometheus creates a Middleware that records call counts, durations, and
// errors.
func Prometheus(opts ...MetricsOption) Middleware {
	config := defaultMetricsConfig()
	for _, opt := range opts {
		opt(&config)
	}

	globalMetricsMu.Lock()
	if globalMetrics == nil {
		globalMetrics = initMetrics(config)
	}
	m := globalMetrics
	globalMetricsMu.Unlock()

	return func(req any, next func() (any, error)) (any, error) {
		method := "unknown"
		if r, ok := req.(*request.Request); ok {
			method = r.Method
		}

		start := time.Now()
		data, err := next()
		m.callDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())

		status := "success"
		if err != nil {
			status = "error"
			m.callErrors.WithLabelValues(method).Inc()
		}
		m.callsTotal.WithLabelValues(method, status).Inc()
		return data, err
	}
}
