package metrics

import (
	"context"
	"runtime"
	"sync"
	"time"

	apperrors "github.com/plexcord/connstatus/internal/pkg/errors"
)

// Metrics holds all application metrics.
type Metrics struct {
	// Connection metrics
	Transitions       *CounterVec // labels: service, state
	Connected         *GaugeVec   // labels: service
	ReconnectAttempts *CounterVec // labels: service, outcome
	PushEvents        *CounterVec // labels: topic

	// Catalog metrics
	CatalogLookups *CounterVec // labels: outcome

	// Bus metrics
	BusEventsPublished *CounterVec   // labels: topic
	BusEventLatency    *HistogramVec // labels: topic
	BusErrors          *CounterVec   // labels: topic, code

	// System metrics
	GoroutineCount *Gauge
	MemoryUsage    *Gauge // in bytes
	Uptime         *Gauge // in seconds

	startTime time.Time
	stopOnce  sync.Once
	stop      chan struct{}
}

// New creates a new metrics instance with all metrics initialized. Call
// StartCollector to sample system metrics periodically.
func New() *Metrics {
	return &Metrics{
		Transitions: NewCounterVec(
			"connstatus_transitions_total",
			"Connectivity transitions observed per service",
			[]string{"service", "state"},
		),
		Connected: NewGaugeVec(
			"connstatus_connected",
			"Whether the service is connected (1) or not (0)",
			[]string{"service"},
		),
		ReconnectAttempts: NewCounterVec(
			"connstatus_auto_reconnect_total",
			"Auto-reconnect evaluations by outcome",
			[]string{"service", "outcome"},
		),
		PushEvents: NewCounterVec(
			"connstatus_push_events_total",
			"Push events received from the backend",
			[]string{"topic"},
		),
		CatalogLookups: NewCounterVec(
			"connstatus_catalog_lookups_total",
			"Error catalog lookups by outcome",
			[]string{"outcome"},
		),
		BusEventsPublished: NewCounterVec(
			"connstatus_bus_events_published_total",
			"Total number of events published to the bus",
			[]string{"topic"},
		),
		BusEventLatency: NewHistogramVec(
			"connstatus_bus_event_latency_seconds",
			"Event bus publish latency in seconds",
			[]string{"topic"},
			[]float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
		),
		BusErrors: NewCounterVec(
			"connstatus_bus_errors_total",
			"Total number of event bus errors",
			[]string{"topic", "code"},
		),
		GoroutineCount: NewGauge(
			"connstatus_goroutines",
			"Number of goroutines",
			nil,
		),
		MemoryUsage: NewGauge(
			"connstatus_memory_bytes",
			"Memory usage in bytes",
			nil,
		),
		Uptime: NewGauge(
			"connstatus_uptime_seconds",
			"Process uptime in seconds",
			nil,
		),
		startTime: time.Now(),
		stop:      make(chan struct{}),
	}
}

// StartCollector samples system metrics every interval until ctx is done or
// Close is called.
func (m *Metrics) StartCollector(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	m.collectSystemMetrics()

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-m.stop:
				return
			case <-ticker.C:
				m.collectSystemMetrics()
			}
		}
	}()
}

// collectSystemMetrics samples runtime statistics once.
func (m *Metrics) collectSystemMetrics() {
	m.GoroutineCount.Set(float64(runtime.NumGoroutine()))

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)
	m.MemoryUsage.Set(float64(memStats.Alloc))

	m.Uptime.Set(time.Since(m.startTime).Seconds())
}

// RecordTransition records a connectivity change of service.
func (m *Metrics) RecordTransition(service string, connected bool) {
	state := "disconnected"
	value := 0.0
	if connected {
		state = "connected"
		value = 1
	}
	m.Transitions.WithLabels(service, state).Inc()
	m.Connected.WithLabels(service).Set(value)
}

// RecordReconnect records the outcome of an auto-reconnect evaluation.
func (m *Metrics) RecordReconnect(service, outcome string) {
	m.ReconnectAttempts.WithLabels(service, outcome).Inc()
}

// RecordPushEvent counts a push event received on topic.
func (m *Metrics) RecordPushEvent(topic string) {
	m.PushEvents.WithLabels(topic).Inc()
}

// RecordCatalogLookup records where an error record came from.
func (m *Metrics) RecordCatalogLookup(outcome string) {
	m.CatalogLookups.WithLabels(outcome).Inc()
}

// RecordBusPublish records event bus publish metrics.
func (m *Metrics) RecordBusPublish(topic string, latency time.Duration, err error) {
	m.BusEventsPublished.WithLabels(topic).Inc()
	m.BusEventLatency.WithLabels(topic).Observe(latency.Seconds())

	if err != nil {
		m.BusErrors.WithLabels(topic, errorCode(err)).Inc()
	}
}

// errorCode returns the AppError code of err for use as a label.
func errorCode(err error) string {
	if code := apperrors.CodeOf(err); code != "" {
		return code
	}
	return "generic"
}

// Close stops the system collector.
func (m *Metrics) Close() error {
	m.stopOnce.Do(func() { close(m.stop) })
	return nil
}
