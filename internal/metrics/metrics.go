// Package metrics exposes Prometheus counters for the watcher.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "jurywatch"

// Metrics groups the collectors recorded by sessions.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	FramesDecoded    *prometheus.CounterVec
	FramesSkipped    prometheus.Counter
	PayloadMalformed prometheus.Counter
	AgentFallbacks   prometheus.Counter
	ThoughtsDropped  prometheus.Counter
	SessionsStarted  *prometheus.CounterVec
	SessionsDone     *prometheus.CounterVec
	ActiveSessions   prometheus.Gauge
}

// New creates metrics on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		FramesDecoded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_decoded_total",
			Help:      "Stream frames decoded, by event type.",
		}, []string{"event"}),
		FramesSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_skipped_total",
			Help:      "Stream lines skipped because they carried no known field.",
		}),
		PayloadMalformed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payload_malformed_total",
			Help:      "Frame payloads that looked like JSON but failed to parse.",
		}),
		AgentFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "agent_fallback_total",
			Help:      "Agent names resolved through the default mapping.",
		}),
		ThoughtsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "thoughts_dropped_total",
			Help:      "Thoughts dropped because their agent could not be resolved in strict mode.",
		}),
		SessionsStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_started_total",
			Help:      "Sessions started, by mode.",
		}, []string{"mode"}),
		SessionsDone: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_completed_total",
			Help:      "Sessions completed, by reason.",
		}, []string{"reason"}),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Sessions currently running.",
		}),
	}

	reg.MustRegister(
		m.FramesDecoded,
		m.FramesSkipped,
		m.PayloadMalformed,
		m.AgentFallbacks,
		m.ThoughtsDropped,
		m.SessionsStarted,
		m.SessionsDone,
		m.ActiveSessions,
		collectors.NewGoCollector(),
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) FrameDecoded(event string) {
	if m == nil {
		return
	}
	m.FramesDecoded.WithLabelValues(event).Inc()
}

func (m *Metrics) FrameSkipped() {
	if m == nil {
		return
	}
	m.FramesSkipped.Inc()
}

func (m *Metrics) MalformedPayload() {
	if m == nil {
		return
	}
	m.PayloadMalformed.Inc()
}

func (m *Metrics) AgentFallback() {
	if m == nil {
		return
	}
	m.AgentFallbacks.Inc()
}

func (m *Metrics) ThoughtDropped() {
	if m == nil {
		return
	}
	m.ThoughtsDropped.Inc()
}

func (m *Metrics) SessionStarted(mode string) {
	if m == nil {
		return
	}
	m.SessionsStarted.WithLabelValues(mode).Inc()
	m.ActiveSessions.Inc()
}

func (m *Metrics) SessionCompleted(reason string) {
	if m == nil {
		return
	}
	m.SessionsDone.WithLabelValues(reason).Inc()
}

// SessionEnded is called when a session goroutine exits, completed or torn down.
func (m *Metrics) SessionEnded() {
	if m == nil {
		return
	}
	m.ActiveSessions.Dec()
}
