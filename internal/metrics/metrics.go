// Package metrics holds the relay's Prometheus collectors on a private
// registry, served at /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "designsync"

// Metrics is the set of relay collectors. The zero value is not usable;
// call New.
type Metrics struct {
	Registry *prometheus.Registry

	Connections      prometheus.Gauge
	AuthRejections   *prometheus.CounterVec // reason
	Joins            *prometheus.CounterVec // outcome: admitted, denied
	EventsPublished  *prometheus.CounterVec // type
	EventsDropped    *prometheus.CounterVec // type
	Locks            *prometheus.CounterVec // outcome: granted, denied, released, swept
	DependencyErrors *prometheus.CounterVec // op
	InboundRejected  *prometheus.CounterVec // reason: invalid, rate_limited
	ActivityDropped  prometheus.Counter
}

// New registers every collector on a fresh registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: reg,
		Connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections",
			Help:      "Open WebSocket sessions.",
		}),
		AuthRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_rejections_total",
			Help:      "Handshakes refused before upgrade, by reason.",
		}, []string{"reason"}),
		Joins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "room_joins_total",
			Help:      "Room join attempts by outcome.",
		}, []string{"outcome"}),
		EventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Outbound frames enqueued to subscribers, by event type.",
		}, []string{"type"}),
		EventsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_dropped_total",
			Help:      "Outbound frames dropped because a subscriber's outbox was full.",
		}, []string{"type"}),
		Locks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "locks_total",
			Help:      "Lock operations by outcome.",
		}, []string{"outcome"}),
		DependencyErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dependency_errors_total",
			Help:      "Failed store or collaborator calls, by operation.",
		}, []string{"op"}),
		InboundRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inbound_rejected_total",
			Help:      "Inbound frames rejected, by reason.",
		}, []string{"reason"}),
		ActivityDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "activity_dropped_total",
			Help:      "Activity events dropped because the queue was full.",
		}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.Connections,
		m.AuthRejections,
		m.Joins,
		m.EventsPublished,
		m.EventsDropped,
		m.Locks,
		m.DependencyErrors,
		m.InboundRejected,
		m.ActivityDropped,
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}
