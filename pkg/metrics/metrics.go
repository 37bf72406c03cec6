// Package metrics holds the prometheus collectors of the venue. All methods
// are safe on a nil *Metrics so components can run without instrumentation.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "matchcore"

type Metrics struct {
	commands        *prometheus.CounterVec
	commandDuration *prometheus.HistogramVec
	activeLanes     prometheus.Gauge
	intakeDepth     prometheus.Gauge
	eventsPublished *prometheus.CounterVec
	projection      prometheus.Gauge
}

// New builds the collectors and registers them on reg. A nil reg skips
// registration, which keeps tests free of global state.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Commands processed, by kind and result.",
		}, []string{"kind", "result"}),
		commandDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "command_duration_seconds",
			Help:      "Time from dequeue to result for a command.",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 10),
		}, []string{"kind"}),
		activeLanes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_lanes",
			Help:      "Instrument lanes currently draining commands.",
		}),
		intakeDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "intake_depth",
			Help:      "Commands waiting in the router intake queue.",
		}),
		eventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Events published on instrument streams, by type.",
		}, []string{"type"}),
		projection: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "projection_entries",
			Help:      "Order entries held by the read-model.",
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.commands,
			m.commandDuration,
			m.activeLanes,
			m.intakeDepth,
			m.eventsPublished,
			m.projection,
		)
	}
	return m
}

func (m *Metrics) CommandDone(kind string, took time.Duration, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.commands.WithLabelValues(kind, result).Inc()
	m.commandDuration.WithLabelValues(kind).Observe(took.Seconds())
}

func (m *Metrics) LaneStarted() {
	if m != nil {
		m.activeLanes.Inc()
	}
}

func (m *Metrics) LaneStopped() {
	if m != nil {
		m.activeLanes.Dec()
	}
}

func (m *Metrics) SetIntakeDepth(n int) {
	if m != nil {
		m.intakeDepth.Set(float64(n))
	}
}

func (m *Metrics) EventPublished(eventType string) {
	if m != nil {
		m.eventsPublished.WithLabelValues(eventType).Inc()
	}
}

func (m *Metrics) ProjectionEntryAdded() {
	if m != nil {
		m.projection.Inc()
	}
}
