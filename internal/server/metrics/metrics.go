// Package metrics provides Prometheus metrics for the token service.
package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dmitrijs2005/tokenkeeper/internal/common"
)

// Metrics holds all Prometheus metrics of the server.
type Metrics struct {
	RequestsTotal     *prometheus.CounterVec
	RequestDuration   *prometheus.HistogramVec
	OperationsTotal   *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec

	registry *prometheus.Registry
}

// New creates and registers all metrics on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tokenkeeper_http_requests_total",
				Help: "HTTP requests by method, route and status code.",
			},
			[]string{"method", "route", "code"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tokenkeeper_http_request_duration_seconds",
				Help:    "HTTP request latency by method and route.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		OperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tokenkeeper_operations_total",
				Help: "Lifecycle operations by name and outcome.",
			},
			[]string{"operation", "outcome"},
		),
		OperationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tokenkeeper_operation_duration_seconds",
				Help:    "Lifecycle operation latency by name.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		registry: reg,
	}

	reg.MustRegister(m.RequestsTotal)
	reg.MustRegister(m.RequestDuration)
	reg.MustRegister(m.OperationsTotal)
	reg.MustRegister(m.OperationDuration)
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return m
}

// Handler returns an http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Middleware records count and latency of every request. Unmatched routes
// are folded into one label value.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		method := c.Request.Method
		m.RequestsTotal.WithLabelValues(method, route, strconv.Itoa(c.Writer.Status())).Inc()
		m.RequestDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
	}
}

// ObserveOperation records a lifecycle operation outcome.
func (m *Metrics) ObserveOperation(op string, err error, elapsed time.Duration) {
	m.OperationsTotal.WithLabelValues(op, Outcome(err)).Inc()
	m.OperationDuration.WithLabelValues(op).Observe(elapsed.Seconds())
}

// Outcome buckets an operation error into a low-cardinality label.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case common.IsAuthorizationFailure(err):
		return "unauthorized"
	case errors.Is(err, common.ErrForbidden):
		return "forbidden"
	case errors.Is(err, common.ErrorNotFound):
		return "not_found"
	case errors.Is(err, common.ErrAlreadyRevoked),
		errors.Is(err, common.ErrAlreadyExpired),
		errors.Is(err, common.ErrConcurrencyConflict):
		return "conflict"
	case errors.Is(err, common.ErrInvalidDuration),
		errors.Is(err, common.ErrInvalidClaims),
		errors.Is(err, common.ErrInvalidAudience),
		errors.Is(err, common.ErrInvalidRequest),
		errors.Is(err, common.ErrBulkLimitExceeded):
		return "invalid"
	default:
		return "error"
	}
}
