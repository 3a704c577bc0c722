// Package metrics exposes devagent's Prometheus instruments.
//
// Each Metrics value owns its registry so tests and multiple agents in one
// process do not collide on the global default registry.
package metrics

import (
	"net/http"

	"github.com/nerrad567/devagent/internal/agent"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "devagent"

// Metrics holds the agent's counters and gauges.
type Metrics struct {
	registry *prometheus.Registry

	LinkAttemptsFailed    prometheus.Counter
	SessionAttemptsFailed prometheus.Counter
	SessionsEstablished   prometheus.Counter
	ConnectivityState     prometheus.Gauge
	TelemetryPublished    *prometheus.CounterVec
	CommandsHandled       *prometheus.CounterVec
	ActuatorLevel         prometheus.Gauge
	InboxDropped          prometheus.GaugeFunc
}

// New creates and registers all instruments. droppedFn reports the broker
// inbox drop count; nil registers no gauge for it.
func New(droppedFn func() float64) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: reg,
		LinkAttemptsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "link_attempts_failed_total",
			Help:      "Failed network link attempts",
		}),
		SessionAttemptsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_attempts_failed_total",
			Help:      "Failed broker session attempts",
		}),
		SessionsEstablished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_established_total",
			Help:      "Broker sessions opened and subscribed",
		}),
		ConnectivityState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connectivity_state",
			Help:      "Connectivity state: 0 disconnected, 1 link up, 2 session up",
		}),
		TelemetryPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "telemetry_published_total",
			Help:      "Telemetry publish attempts by result",
		}, []string{"result"}),
		CommandsHandled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_handled_total",
			Help:      "Inbound command messages by outcome",
		}, []string{"outcome"}),
		ActuatorLevel: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "actuator_level",
			Help:      "Current actuator output level (0 low, 1 high)",
		}),
	}

	reg.MustRegister(
		m.LinkAttemptsFailed,
		m.SessionAttemptsFailed,
		m.SessionsEstablished,
		m.ConnectivityState,
		m.TelemetryPublished,
		m.CommandsHandled,
		m.ActuatorLevel,
	)

	if droppedFn != nil {
		m.InboxDropped = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "inbox_dropped_messages",
			Help:      "Inbound messages dropped because the inbox was full",
		}, droppedFn)
		reg.MustRegister(m.InboxDropped)
	}

	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// LinkAttemptFailed implements agent.Recorder.
func (m *Metrics) LinkAttemptFailed() {
	m.LinkAttemptsFailed.Inc()
}

// SessionAttemptFailed implements agent.Recorder.
func (m *Metrics) SessionAttemptFailed() {
	m.SessionAttemptsFailed.Inc()
}

// SessionEstablished implements agent.Recorder.
func (m *Metrics) SessionEstablished() {
	m.SessionsEstablished.Inc()
}

// StateChanged implements agent.Recorder.
func (m *Metrics) StateChanged(state agent.ConnectivityState) {
	m.ConnectivityState.Set(float64(state))
}

// ActuatorChanged records the current output level.
func (m *Metrics) ActuatorChanged(high bool) {
	if high {
		m.ActuatorLevel.Set(1)
		return
	}
	m.ActuatorLevel.Set(0)
}

// TelemetryEmitted counts one publish attempt.
func (m *Metrics) TelemetryEmitted(sent bool) {
	result := "sent"
	if !sent {
		result = "failed"
	}
	m.TelemetryPublished.WithLabelValues(result).Inc()
}

// CommandHandled counts one inbound command by outcome.
func (m *Metrics) CommandHandled(outcome string) {
	m.CommandsHandled.WithLabelValues(outcome).Inc()
}

var _ agent.Recorder = (*Metrics)(nil)
