package monitoring

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{0.1, 0.5, 1, 2, 5},
		},
		[]string{"method", "endpoint"},
	)

	AdvisorRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "advisor_requests_total",
			Help: "Recommendation advisor calls by outcome",
		},
		[]string{"outcome"}, // success, failure, rejected
	)

	RoadmapFallbacks = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "roadmap_fallbacks_total",
			Help: "Roadmaps produced by the deterministic fallback generator",
		},
	)

	AttemptsSubmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assessment_attempts_total",
			Help: "Finalized assessment attempts by result",
		},
		[]string{"result"}, // passed, failed, pending
	)

	// 0 = closed, 1 = open, 2 = half-open
	CircuitState = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "advisor_circuit_state",
			Help: "State of the advisor circuit breaker",
		},
	)
)

func Init() {
	prometheus.MustRegister(RequestCounter)
	prometheus.MustRegister(RequestDuration)
	prometheus.MustRegister(AdvisorRequests)
	prometheus.MustRegister(RoadmapFallbacks)
	prometheus.MustRegister(AttemptsSubmitted)
	prometheus.MustRegister(CircuitState)
}

func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start).Seconds()
		status := c.Writer.Status()

		RequestCounter.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			strconv.Itoa(status),
		).Inc()

		RequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
		).Observe(duration)
	}
}

func PrometheusHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
