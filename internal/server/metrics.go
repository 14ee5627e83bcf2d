package server

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics instruments the HTTP facade.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests *prometheus.CounterVec
	httpLatency  *prometheus.HistogramVec
	searches     prometheus.Counter
	searchHits   prometheus.Histogram
}

// NewMetrics creates a collector with its own registry so tests do not
// fight over the global one.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "aictl_http_requests_total",
			Help: "HTTP requests handled by the facade.",
		}, []string{"method", "route", "status"}),
		httpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "aictl_http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		searches: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "aictl_image_searches_total",
			Help: "Image similarity searches served.",
		}),
		searchHits: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "aictl_image_search_results",
			Help:    "Results returned per image search.",
			Buckets: []float64{0, 1, 2, 5, 10, 20, 50},
		}),
	}

	registry.MustRegister(m.httpRequests, m.httpLatency, m.searches, m.searchHits)
	return m
}

// Handler serves the /metrics endpoint.
func (m *Metrics) Handler() gin.HandlerFunc {
	h := promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
	return gin.WrapH(h)
}

// Middleware records request counts and latency per route.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.httpRequests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		m.httpLatency.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}

func (m *Metrics) observeSearch(resultCount int) {
	m.searches.Inc()
	m.searchHits.Observe(float64(resultCount))
}
