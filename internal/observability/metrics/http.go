package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector owns the Prometheus series exported by recruitctl.
type Collector struct {
	registry *prometheus.Registry

	requests *prometheus.CounterVec
	errors   *prometheus.CounterVec
	latency  *prometheus.HistogramVec

	initAttempts *prometheus.CounterVec
	initDuration prometheus.Histogram
	sessionState prometheus.Gauge
}

// NewCollector registers every series on a private registry.
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "recruitchain_http_requests_total",
			Help: "Total number of HTTP requests processed.",
		}, []string{"handler", "method", "code"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "recruitchain_http_request_errors_total",
			Help: "Total number of HTTP requests resulting in 5xx responses.",
		}, []string{"handler", "method"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "recruitchain_http_request_duration_seconds",
			Help:    "Latency distribution of HTTP requests.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"handler", "method"}),
		initAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "recruitchain_session_initialize_total",
			Help: "Session initialization attempts partitioned by result code.",
		}, []string{"result"}),
		initDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "recruitchain_session_initialize_duration_seconds",
			Help:    "Time spent connecting the session to the contract.",
			Buckets: prometheus.DefBuckets,
		}),
		sessionState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "recruitchain_session_state",
			Help: "Current session state (0 uninitialized, 1 initializing, 2 initialized).",
		}),
	}
	c.registry.MustRegister(
		c.requests, c.errors, c.latency,
		c.initAttempts, c.initDuration, c.sessionState,
		collectors.NewGoCollector(),
	)
	return c
}

// ObserveHTTPRequest records metrics about an HTTP request lifecycle.
func (c *Collector) ObserveHTTPRequest(handler, method string, status int, duration time.Duration) {
	if c == nil {
		return
	}
	c.requests.WithLabelValues(handler, method, strconv.Itoa(status)).Inc()
	if status >= 500 {
		c.errors.WithLabelValues(handler, method).Inc()
	}
	c.latency.WithLabelValues(handler, method).Observe(duration.Seconds())
}

// ObserveInitialize records one initialization pass. result is "ok" or an
// error code.
func (c *Collector) ObserveInitialize(result string, duration time.Duration) {
	if c == nil {
		return
	}
	c.initAttempts.WithLabelValues(result).Inc()
	c.initDuration.Observe(duration.Seconds())
}

// SetSessionState publishes the numeric session state.
func (c *Collector) SetSessionState(state int) {
	if c == nil {
		return
	}
	c.sessionState.Set(float64(state))
}

// Gatherer exposes the underlying registry.
func (c *Collector) Gatherer() prometheus.Gatherer {
	return c.registry
}

// Handler exposes the metrics in Prometheus text exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
