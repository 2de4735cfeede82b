package monitoring

import (
	"strconv"
	"sync"
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
			Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5},
		},
		[]string{"method", "endpoint"},
	)

	WSSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "chat_ws_sessions",
			Help: "Number of connected realtime sessions",
		},
	)

	RelayedEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_relayed_events_total",
			Help: "Realtime events delivered to sessions, by event type",
		},
		[]string{"type"},
	)

	AdoptionTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adoption_transitions_total",
			Help: "Adoption request status transitions, by resulting status",
		},
		[]string{"status"},
	)

	TaskResults = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "background_tasks_total",
			Help: "Background tasks processed, by task type and outcome",
		},
		[]string{"task", "outcome"},
	)
)

var registerOnce sync.Once

// Init registers the collectors with the default registry. Safe to call more than once.
func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			RequestCounter,
			RequestDuration,
			WSSessions,
			RelayedEvents,
			AdoptionTransitions,
			TaskResults,
		)
	})
}

func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}
		duration := time.Since(start).Seconds()

		RequestCounter.WithLabelValues(
			c.Request.Method,
			endpoint,
			strconv.Itoa(c.Writer.Status()),
		).Inc()

		RequestDuration.WithLabelValues(
			c.Request.Method,
			endpoint,
		).Observe(duration)
	}
}

func PrometheusHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
