package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Task outcomes recorded by TasksTotal
const (
	OutcomeFinished = "finished"
	OutcomeFailed   = "failed"
	OutcomeNotFound = "not_found"
	OutcomeInvalid  = "invalid"
	OutcomeReturned = "returned"
)

// Metrics holds all Prometheus metrics for the agent
type Metrics struct {
	registry *prometheus.Registry

	// Queue metrics
	LeasesTotal      *prometheus.CounterVec
	LeaseErrorsTotal prometheus.Counter
	ReturnsTotal     prometheus.Counter

	SubscribeErrorsTotal prometheus.Counter

	// Task metrics
	TasksTotal           *prometheus.CounterVec
	TaskDuration         prometheus.Histogram
	ProgressUpdatesTotal prometheus.Counter
	StoreErrorsTotal     *prometheus.CounterVec

	// Renderer metrics
	RendererExitsTotal *prometheus.CounterVec
	Busy               prometheus.Gauge
}

// NewMetrics creates and registers all metrics
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,

		LeasesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "monet_queue_leases_total",
				Help: "Total number of lease attempts by trigger and result",
			},
			[]string{"trigger", "result"},
		),
		LeaseErrorsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "monet_queue_lease_errors_total",
				Help: "Total number of failed lease attempts",
			},
		),
		ReturnsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "monet_queue_returns_total",
				Help: "Total number of tasks returned to the shared queue",
			},
		),

		SubscribeErrorsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "monet_queue_subscribe_errors_total",
				Help: "Total number of failed or dropped task notification subscriptions",
			},
		),

		TasksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "monet_tasks_total",
				Help: "Total number of processed tasks by outcome",
			},
			[]string{"outcome"},
		),
		TaskDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "monet_task_duration_seconds",
				Help:    "Duration of renderer runs in seconds",
				Buckets: prometheus.ExponentialBuckets(1, 2, 14),
			},
		),
		ProgressUpdatesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "monet_task_progress_updates_total",
				Help: "Total number of intermediate progress saves",
			},
		),
		StoreErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "monet_task_store_errors_total",
				Help: "Total number of task store errors by operation",
			},
			[]string{"operation"},
		),

		RendererExitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "monet_renderer_exits_total",
				Help: "Total number of renderer exits by status",
			},
			[]string{"status"},
		),
		Busy: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "monet_agent_busy",
				Help: "Whether the agent is processing a task",
			},
		),
	}

	m.registerMetrics()

	return m
}

// registerMetrics registers all metrics with the registry
func (m *Metrics) registerMetrics() {
	m.registry.MustRegister(m.LeasesTotal)
	m.registry.MustRegister(m.LeaseErrorsTotal)
	m.registry.MustRegister(m.ReturnsTotal)
	m.registry.MustRegister(m.SubscribeErrorsTotal)

	m.registry.MustRegister(m.TasksTotal)
	m.registry.MustRegister(m.TaskDuration)
	m.registry.MustRegister(m.ProgressUpdatesTotal)
	m.registry.MustRegister(m.StoreErrorsTotal)

	m.registry.MustRegister(m.RendererExitsTotal)
	m.registry.MustRegister(m.Busy)
}

// SetBusy reflects the agent busy flag
func (m *Metrics) SetBusy(busy bool) {
	if busy {
		m.Busy.Set(1)
		return
	}
	m.Busy.Set(0)
}

// Handler returns an HTTP handler for the metrics endpoint
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Registry returns the Prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
