// ABOUTME: Prometheus collectors for the board's agents, issue refreshes and HTTP traffic
// ABOUTME: Uses a private registry served by promhttp; a nil *Metrics records nothing

package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "coven_board"

// Metrics holds every collector the board publishes.
type Metrics struct {
	registry *prometheus.Registry

	registrations   *prometheus.CounterVec
	heartbeats      *prometheus.CounterVec
	refreshes       *prometheus.CounterVec
	refreshDuration *prometheus.HistogramVec
	agents          *prometheus.GaugeVec
	issues          *prometheus.GaugeVec
	activityEvents  prometheus.Gauge
	httpRequests    *prometheus.HistogramVec
}

// New creates the collectors and registers them, with the Go runtime and
// process collectors, on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		registrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "agent_registrations_total",
			Help:      "Agent registrations, by whether a new agent was created.",
		}, []string{"result"}),
		heartbeats: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "heartbeats_total",
			Help:      "Heartbeats received, by whether they were applied or ignored as stale.",
		}, []string{"result"}),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "issue_refreshes_total",
			Help:      "Issue refresh attempts per repository and outcome.",
		}, []string{"repo", "result"}),
		refreshDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "issue_refresh_duration_seconds",
			Help:      "Time spent refreshing one repository.",
			Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"repo"}),
		agents: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "agents",
			Help:      "Registered agents by effective status.",
		}, []string{"status"}),
		issues: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "issues",
			Help:      "Cached issues by kanban column.",
		}, []string{"column"}),
		activityEvents: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "activity_events",
			Help:      "Events currently held in the activity window.",
		}),
		httpRequests: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route pattern and status code.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "code"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.registrations,
		m.heartbeats,
		m.refreshes,
		m.refreshDuration,
		m.agents,
		m.issues,
		m.activityEvents,
		m.httpRequests,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// Registry exposes the underlying registry; used by tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Registration counts one registration.
func (m *Metrics) Registration(created bool) {
	if m == nil {
		return
	}
	result := "updated"
	if created {
		result = "created"
	}
	m.registrations.WithLabelValues(result).Inc()
}

// Heartbeat counts one heartbeat.
func (m *Metrics) Heartbeat(applied bool) {
	if m == nil {
		return
	}
	result := "applied"
	if !applied {
		result = "stale"
	}
	m.heartbeats.WithLabelValues(result).Inc()
}

// Refresh records the outcome and duration of one repository refresh.
func (m *Metrics) Refresh(repo string, err error, took time.Duration) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.refreshes.WithLabelValues(repo, result).Inc()
	m.refreshDuration.WithLabelValues(repo).Observe(took.Seconds())
}

// SetAgents replaces the per-status agent gauge. Statuses absent from counts
// are expected to be present with a zero value so stale series are reset.
func (m *Metrics) SetAgents(counts map[string]int) {
	if m == nil {
		return
	}
	for status, n := range counts {
		m.agents.WithLabelValues(status).Set(float64(n))
	}
}

// SetIssues replaces the per-column issue gauge.
func (m *Metrics) SetIssues(counts map[string]int) {
	if m == nil {
		return
	}
	for column, n := range counts {
		m.issues.WithLabelValues(column).Set(float64(n))
	}
}

// SetActivityEvents records the size of the activity window.
func (m *Metrics) SetActivityEvents(n int) {
	if m == nil {
		return
	}
	m.activityEvents.Set(float64(n))
}

// ObserveRequest records one HTTP request.
func (m *Metrics) ObserveRequest(route string, code int, took time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(route, strconv.Itoa(code)).Observe(took.Seconds())
}
