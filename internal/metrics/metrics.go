// Package metrics exposes the tutor's Prometheus metrics. Every method is
// safe to call on a nil *Collector, so components can run without metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds all Prometheus metrics for the server.
type Collector struct {
	registry *prometheus.Registry

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec

	routeDecisions   *prometheus.CounterVec
	responses        *prometheus.CounterVec
	responseDuration *prometheus.HistogramVec
	lessonsCompleted prometheus.Counter
	retrieval        *prometheus.GaugeVec
	breakerOpen      prometheus.Gauge
}

// NewCollector creates a collector with its own registry, so several
// collectors (one per test) never clash on registration.
func NewCollector(namespace string) *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		routeDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "route_decisions_total",
			Help:      "Routing decisions by chosen responder and whether the model reply matched cleanly",
		}, []string{"route", "confident"}),
		responses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "responses_total",
			Help:      "Responder runs by outcome (ok, error, cancelled)",
		}, []string{"responder", "outcome"}),
		responseDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "response_duration_seconds",
			Help:      "Time from dispatch to the last streamed fragment",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		}, []string{"responder"}),
		lessonsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lessons_advanced_total",
			Help:      "Lesson completions that unlocked the next lesson",
		}),
		retrieval: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "retrieval_available",
			Help:      "1 when a knowledge domain serves retrieved context, 0 when degraded",
		}, []string{"domain"}),
		breakerOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "llm_circuit_open",
			Help:      "1 while the language model circuit breaker is open",
		}),
	}

	c.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		c.httpRequests,
		c.httpDuration,
		c.routeDecisions,
		c.responses,
		c.responseDuration,
		c.lessonsCompleted,
		c.retrieval,
		c.breakerOpen,
	)
	return c
}

// Registry returns the registry, mainly for tests.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// Handler serves the metrics in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// ObserveHTTP records one finished HTTP request.
func (c *Collector) ObserveHTTP(method, route string, status int, d time.Duration) {
	if c == nil {
		return
	}
	c.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// ObserveRoute records a routing decision.
func (c *Collector) ObserveRoute(route string, confident bool) {
	if c == nil {
		return
	}
	c.routeDecisions.WithLabelValues(route, strconv.FormatBool(confident)).Inc()
}

// ObserveResponse records one responder run.
func (c *Collector) ObserveResponse(responder, outcome string, d time.Duration) {
	if c == nil {
		return
	}
	c.responses.WithLabelValues(responder, outcome).Inc()
	c.responseDuration.WithLabelValues(responder).Observe(d.Seconds())
}

// LessonAdvanced counts a completion that unlocked the next lesson.
func (c *Collector) LessonAdvanced() {
	if c == nil {
		return
	}
	c.lessonsCompleted.Inc()
}

// SetRetrieval records whether domain serves retrieved context.
func (c *Collector) SetRetrieval(domain string, available bool) {
	if c == nil {
		return
	}
	v := 0.0
	if available {
		v = 1
	}
	c.retrieval.WithLabelValues(domain).Set(v)
}

// SetBreakerState tracks circuit breaker transitions ("closed",
// "half-open", "open").
func (c *Collector) SetBreakerState(state string) {
	if c == nil {
		return
	}
	if state == "open" {
		c.breakerOpen.Set(1)
	} else {
		c.breakerOpen.Set(0)
	}
}
