package telemetry

import (
	"autoservice/internal/models"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the prometheus collectors of the toolkit
type Metrics struct {
	registry *prometheus.Registry

	RunsTotal          *prometheus.CounterVec
	ServiceRunsTotal   *prometheus.CounterVec
	ServiceDurationSec *prometheus.HistogramVec
	EventsDropped      prometheus.Counter
	RequestsTotal      *prometheus.CounterVec
	RequestDurationSec *prometheus.HistogramVec
	RateLimitDropped   prometheus.Counter
}

func New(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		registry: registry,
		RunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "autoservice_runs_total",
			Help: "Finished runs by final status.",
		}, []string{"status"}),
		ServiceRunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "autoservice_service_runs_total",
			Help: "Completed service invocations by service and result status.",
		}, []string{"service", "status"}),
		ServiceDurationSec: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "autoservice_service_duration_seconds",
			Help:    "Service run duration in seconds.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200, 2400, 3600, 7200},
		}, []string{"service"}),
		EventsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "autoservice_events_dropped_total",
			Help: "Progress event deliveries dropped because a listener was behind.",
		}),
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "autoservice_http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"route", "method", "status"}),
		RequestDurationSec: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "autoservice_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "method", "status"}),
		RateLimitDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "autoservice_ratelimit_dropped_total",
			Help: "Requests rejected by the rate limiter.",
		}),
	}

	registry.MustRegister(
		m.RunsTotal,
		m.ServiceRunsTotal,
		m.ServiceDurationSec,
		m.EventsDropped,
		m.RequestsTotal,
		m.RequestDurationSec,
		m.RateLimitDropped,
	)
	return m
}

// ServiceFinished records one completed service
func (m *Metrics) ServiceFinished(result models.ServiceResult) {
	m.ServiceRunsTotal.WithLabelValues(result.ServiceID, string(result.Status)).Inc()
	m.ServiceDurationSec.WithLabelValues(result.ServiceID).Observe(result.Duration.Seconds())
}

// RunFinished records one finished run
func (m *Metrics) RunFinished(state models.ServiceRunState) {
	m.RunsTotal.WithLabelValues(string(state.Status)).Inc()
}

// EventDropped counts one dropped event delivery
func (m *Metrics) EventDropped() {
	m.EventsDropped.Inc()
}

// Middleware records request counts and latencies by route template
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		startedAt := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "other"
		}
		status := strconv.Itoa(c.Writer.Status())
		m.RequestsTotal.WithLabelValues(route, c.Request.Method, status).Inc()
		m.RequestDurationSec.WithLabelValues(route, c.Request.Method, status).Observe(time.Since(startedAt).Seconds())
	}
}

// Handler serves the registry in the prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RateLimited counts one request rejected by the rate limiter
func (m *Metrics) RateLimited() {
	m.RateLimitDropped.Inc()
}
