package diag

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts diagnostics, reduced events and open sessions. It implements
// Sink so it can sit beside a LogSink in a Multi.
type Metrics struct {
	events       *prometheus.CounterVec
	diagnostics  *prometheus.CounterVec
	sessionsOpen prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		events: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "studyprogress_events_total",
				Help: "Progress events delivered to the reducer, by event name",
			},
			[]string{"event"},
		),
		diagnostics: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "studyprogress_diagnostics_total",
				Help: "Diagnostic reports, by kind",
			},
			[]string{"kind"},
		),
		sessionsOpen: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "studyprogress_sessions_open",
				Help: "Channel sessions currently subscribed",
			},
		),
	}
	reg.MustRegister(m.events, m.diagnostics, m.sessionsOpen)
	return m
}

// Report implements Sink.
func (m *Metrics) Report(kind Kind, _ string) {
	m.diagnostics.WithLabelValues(string(kind)).Inc()
}

// EventReduced counts one event handed to the reducer.
func (m *Metrics) EventReduced(name string) {
	m.events.WithLabelValues(name).Inc()
}

// SessionOpened increments the open-session gauge.
func (m *Metrics) SessionOpened() {
	m.sessionsOpen.Inc()
}

// SessionClosed decrements the open-session gauge.
func (m *Metrics) SessionClosed() {
	m.sessionsOpen.Dec()
}
