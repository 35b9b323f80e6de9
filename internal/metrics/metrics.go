// Package metrics collects and exposes Prometheus request metrics.
package metrics

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds the HTTP request metrics.
type Collector struct {
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

// NewCollector registers the request metrics on reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "clique_http_requests_total",
			Help: "HTTP requests by method, path and status.",
		}, []string{"method", "path", "status"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "clique_http_request_duration_seconds",
			Help:    "HTTP request latency by method and path.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),
	}
	reg.MustRegister(c.requests, c.latency)
	return c
}

// Middleware instruments every request. The route path (not the raw URL)
// labels the series to keep cardinality bounded.
func (c *Collector) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ec echo.Context) error {
			start := time.Now()

			err := next(ec)

			path := ec.Path()
			if path == "" {
				path = "unmatched"
			}
			c.requests.WithLabelValues(
				ec.Request().Method, path, strconv.Itoa(ec.Response().Status),
			).Inc()
			c.latency.WithLabelValues(ec.Request().Method, path).
				Observe(time.Since(start).Seconds())

			return err
		}
	}
}

// Handler serves the /metrics endpoint for reg.
func Handler(reg *prometheus.Registry) echo.HandlerFunc {
	return echo.WrapHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
}
