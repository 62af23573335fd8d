package server

import (
	"errors"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gauthierbraillon/infographic/internal/statistics"
)

// Metrics holds the Prometheus collectors for the HTTP server. Each Metrics
// owns its registry so several servers can live in one process.
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	statisticsTotal     *prometheus.CounterVec
	feedPosts           prometheus.Histogram
	activeSessions      prometheus.GaugeFunc
}

// NewMetrics registers the server metrics. sessions, when non-nil, backs the
// active sessions gauge.
func NewMetrics(version string, sessions *SessionStore) *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "infographic_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)
	m.httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "infographic_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)
	m.statisticsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "infographic_statistics_total",
			Help: "Statistics computed, by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)
	m.feedPosts = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "infographic_feed_posts",
			Help:    "Number of posts fetched per statistics request",
			Buckets: []float64{0, 10, 25, 50, 100, 200, 500},
		},
	)
	buildInfo := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "infographic_build_info",
			Help: "Build information",
		},
		[]string{"version"},
	)

	m.registry.MustRegister(m.httpRequestsTotal, m.httpRequestDuration, m.statisticsTotal, m.feedPosts, buildInfo)
	buildInfo.WithLabelValues(version).Set(1)

	if sessions != nil {
		m.activeSessions = prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Name: "infographic_active_sessions",
				Help: "Number of live sessions",
			},
			func() float64 { return float64(sessions.Len()) },
		)
		m.registry.MustRegister(m.activeSessions)
	}

	return m
}

// Middleware records request counts and latency.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unknown"
		}
		status := strconv.Itoa(c.Writer.Status())

		m.httpRequestsTotal.WithLabelValues(c.Request.Method, endpoint, status).Inc()
		m.httpRequestDuration.WithLabelValues(c.Request.Method, endpoint).Observe(time.Since(start).Seconds())
	}
}

// ObserveEnvelope counts each key of a computed envelope by outcome.
func (m *Metrics) ObserveEnvelope(posts int, env *statistics.Envelope) {
	m.feedPosts.Observe(float64(posts))
	for _, kind := range env.Kinds() {
		o, _ := env.Outcome(kind)
		m.statisticsTotal.WithLabelValues(string(kind), outcomeLabel(o)).Inc()
	}
}

func outcomeLabel(o statistics.Outcome) string {
	switch {
	case o.Err == nil:
		return "ok"
	case errors.Is(o.Err, statistics.ErrInsufficientData):
		return "insufficient_data"
	default:
		return "error"
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() gin.HandlerFunc {
	handler := promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
	return func(c *gin.Context) {
		handler.ServeHTTP(c.Writer, c.Request)
	}
}
