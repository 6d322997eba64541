package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors of the process.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Scheduler metrics
	Transitions *prometheus.CounterVec

	// Dispatcher metrics
	Ticks         *prometheus.CounterVec
	Dispatched    *prometheus.CounterVec
	TickErrors    prometheus.Counter
	InflightCalls prometheus.Gauge
	PendingCalls  prometheus.Gauge

	// Provider metrics
	ProviderRequests *prometheus.CounterVec
}

// New registers every collector on reg. Tests pass prometheus.NewRegistry()
// so repeated construction does not collide with the default registry.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		HTTPRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path", "status"},
		),

		Transitions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "campaign_scheduler_transitions_total",
				Help: "Scheduler decisions by outcome and resulting action",
			},
			[]string{"outcome", "action"}, // action: retry, close, complete, skip
		),

		Ticks: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "campaign_dispatcher_ticks_total",
				Help: "Dispatcher loop iterations by result",
			},
			[]string{"result"}, // dispatched, idle, disabled, off_hours, not_leader, error
		),
		Dispatched: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "campaign_dispatched_calls_total",
				Help: "Calls handed to the calling provider",
			},
			[]string{"source"}, // retry, selected, manual
		),
		TickErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "campaign_dispatcher_errors_total",
			Help: "Dispatcher ticks that failed",
		}),
		InflightCalls: f.NewGauge(prometheus.GaugeOpts{
			Name: "campaign_inflight_calls",
			Help: "Calls placed by this process that have not finished",
		}),
		PendingCalls: f.NewGauge(prometheus.GaugeOpts{
			Name: "campaign_pending_retries",
			Help: "Pending call_schedule rows at the last status record",
		}),

		ProviderRequests: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "campaign_provider_requests_total",
				Help: "Requests to the calling provider by operation and result",
			},
			[]string{"operation", "result"},
		),
	}
}

// Middleware records request count and latency per route pattern.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())
		m.HTTPRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
		m.HTTPRequestDuration.WithLabelValues(c.Request.Method, path, status).Observe(time.Since(start).Seconds())
	}
}

func (m *Metrics) RecordTransition(outcome, action string) {
	if m == nil {
		return
	}
	m.Transitions.WithLabelValues(outcome, action).Inc()
}

func (m *Metrics) RecordTick(result string) {
	if m == nil {
		return
	}
	m.Ticks.WithLabelValues(result).Inc()
	if result == "error" {
		m.TickErrors.Inc()
	}
}

func (m *Metrics) RecordDispatch(source string) {
	if m == nil {
		return
	}
	m.Dispatched.WithLabelValues(source).Inc()
}

func (m *Metrics) AddInflight(delta float64) {
	if m == nil {
		return
	}
	m.InflightCalls.Add(delta)
}

func (m *Metrics) SetPending(n int) {
	if m == nil {
		return
	}
	m.PendingCalls.Set(float64(n))
}

func (m *Metrics) RecordProviderRequest(operation string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.ProviderRequests.WithLabelValues(operation, result).Inc()
}
