package observability

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ReadinessCheck reports whether a dependency is reachable.
type ReadinessCheck func() error

// MetricsHandler provides Prometheus metrics and health endpoints.
type MetricsHandler struct {
	registry *prometheus.Registry
	checks   map[string]ReadinessCheck
}

// NewMetricsHandler creates a new metrics handler. The default
// registerer already carries the Go and process collectors plus the
// promauto application metrics, so the private registry stays free for
// explicit registrations.
func NewMetricsHandler() *MetricsHandler {
	return &MetricsHandler{
		registry: prometheus.NewRegistry(),
		checks:   make(map[string]ReadinessCheck),
	}
}

// MustRegister adds collectors to the handler's private registry.
func (h *MetricsHandler) MustRegister(cs ...prometheus.Collector) {
	h.registry.MustRegister(cs...)
}

// AddReadinessCheck registers a dependency check for /ready.
func (h *MetricsHandler) AddReadinessCheck(name string, check ReadinessCheck) {
	h.checks[name] = check
}

// MetricsEndpoint returns the Prometheus metrics handler
func (h *MetricsHandler) MetricsEndpoint() gin.HandlerFunc {
	gatherers := prometheus.Gatherers{h.registry, prometheus.DefaultGatherer}
	handler := promhttp.HandlerFor(gatherers, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})

	return func(c *gin.Context) {
		handler.ServeHTTP(c.Writer, c.Request)
	}
}

// HealthEndpoint provides the basic health check
func (h *MetricsHandler) HealthEndpoint() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"service":   "trimline-api",
			"timestamp": time.Now().Unix(),
		})
	}
}

// ReadinessEndpoint runs the registered dependency checks
func (h *MetricsHandler) ReadinessEndpoint() gin.HandlerFunc {
	return func(c *gin.Context) {
		failures := gin.H{}
		for name, check := range h.checks {
			if err := check(); err != nil {
				failures[name] = err.Error()
			}
		}
		if len(failures) > 0 {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":   "not_ready",
				"failures": failures,
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	}
}

// LivenessEndpoint provides liveness check
func (h *MetricsHandler) LivenessEndpoint() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "alive"})
	}
}
