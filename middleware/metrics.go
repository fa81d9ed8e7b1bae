package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors exported on /metrics
type Metrics struct {
	registry  *prometheus.Registry
	requests  *prometheus.CounterVec
	analyses  *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	fallbacks prometheus.Counter
}

// NewMetrics registers the collectors on a private registry
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "aeo_http_requests_total",
			Help: "HTTP requests by route and status code.",
		}, []string{"route", "status"}),
		analyses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "aeo_analyses_total",
			Help: "Analyses by detected content type and outcome.",
		}, []string{"content_type", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "aeo_analysis_duration_seconds",
			Help:    "Time spent analyzing one page.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"qualitative"}),
		fallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "aeo_qualitative_fallbacks_total",
			Help: "Analyses scored without the language model.",
		}),
	}
	m.registry.MustRegister(m.requests, m.analyses, m.duration, m.fallbacks)
	return m
}

// ObserveAnalysis records one analysis. outcome is "ok" or an error kind.
func (m *Metrics) ObserveAnalysis(contentType, outcome string, assessed bool, d time.Duration) {
	if contentType == "" {
		contentType = "unknown"
	}
	m.analyses.WithLabelValues(contentType, outcome).Inc()
	m.duration.WithLabelValues(strconv.FormatBool(assessed)).Observe(d.Seconds())
	if outcome == "ok" && !assessed {
		m.fallbacks.Inc()
	}
}

// Middleware counts requests by matched route
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.requests.WithLabelValues(route, strconv.Itoa(c.Writer.Status())).Inc()
	}
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
