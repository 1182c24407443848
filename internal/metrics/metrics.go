// Package metrics exposes Prometheus collectors for the harvester service.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	tasksTotal                 *prometheus.CounterVec
	itemsTotal                 *prometheus.CounterVec
	gateContentionTotal        *prometheus.CounterVec
	notificationsTotal         *prometheus.CounterVec
	continuationsTotal         *prometheus.CounterVec
	activeTasks                prometheus.Gauge
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	rateLimitDelaySeconds      *prometheus.HistogramVec
	tasksEnqueuedTotal         *prometheus.CounterVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		tasksTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_tasks_total",
				Help: "Crawl tasks finished, labeled by platform and terminal state.",
			},
			[]string{"platform", "state"},
		)

		itemsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_items_total",
				Help: "Candidates processed, labeled by platform and outcome.",
			},
			[]string{"platform", "outcome"},
		)

		gateContentionTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_gate_contention_total",
				Help: "Tasks that found the concurrency gate already held.",
			},
			[]string{"platform"},
		)

		notificationsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_notifications_total",
				Help: "Notifier deliveries, labeled by status.",
			},
			[]string{"status"},
		)

		continuationsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_continuations_total",
				Help: "Next-page tasks enqueued by the continuation controller.",
			},
			[]string{"platform"},
		)

		activeTasks = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "harvester_active_tasks",
				Help: "Number of crawl tasks currently executing.",
			},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of admin API requests, labeled by method, route and code.",
			},
			[]string{"method", "route", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)

		rateLimitDelaySeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "harvester_rate_limit_delay_seconds",
				Help:    "Time spent waiting for a page source rate limit token, labeled by host.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15},
			},
			[]string{"host"},
		)

		tasksEnqueuedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_tasks_enqueued_total",
				Help: "Crawl tasks accepted by the queue, labeled by platform and trigger.",
			},
			[]string{"platform", "trigger"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	Init()
	return promhttp.Handler()
}

func platformLabel(platform string) string {
	if platform == "" {
		return "unknown"
	}
	return platform
}

// ObserveTask counts a task reaching its terminal state.
func ObserveTask(platform, state string) {
	Init()
	tasksTotal.WithLabelValues(platformLabel(platform), state).Inc()
}

// ObserveItem counts one candidate outcome.
func ObserveItem(platform, outcome string) {
	Init()
	itemsTotal.WithLabelValues(platformLabel(platform), outcome).Inc()
}

// ObserveGateContention counts a failed gate acquisition.
func ObserveGateContention(platform string) {
	Init()
	gateContentionTotal.WithLabelValues(platformLabel(platform)).Inc()
}

// ObserveNotification counts a Notifier send by status ("ok" or "error").
func ObserveNotification(status string) {
	Init()
	notificationsTotal.WithLabelValues(status).Inc()
}

// ObserveContinuation counts an enqueued next-page task.
func ObserveContinuation(platform string) {
	Init()
	continuationsTotal.WithLabelValues(platformLabel(platform)).Inc()
}

// IncActiveTasks increments the active tasks gauge.
func IncActiveTasks() {
	Init()
	activeTasks.Inc()
}

// DecActiveTasks decrements the active tasks gauge.
func DecActiveTasks() {
	Init()
	activeTasks.Dec()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveRateLimitDelay records how long an Open waited for its host's token.
func ObserveRateLimitDelay(host string, delay time.Duration) {
	Init()
	rateLimitDelaySeconds.WithLabelValues(host).Observe(delay.Seconds())
}

// ObserveEnqueue counts a task handed to the queue.
func ObserveEnqueue(platform, trigger string) {
	Init()
	tasksEnqueuedTotal.WithLabelValues(platformLabel(platform), trigger).Inc()
}
