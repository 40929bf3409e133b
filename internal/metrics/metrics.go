package metrics

import (
	"net/http"

	"djchat/backend/internal/chathub"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics records chat delivery outcomes. It implements chathub.Recorder.
type Metrics struct {
	registry *prometheus.Registry

	messagesSent    *prometheus.CounterVec
	broadcastEvents *prometheus.CounterVec
	publishFailures prometheus.Counter
	sessionsActive  prometheus.Gauge
}

var _ chathub.Recorder = (*Metrics)(nil)

// New registers the chat collectors plus the Go runtime and process
// collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		messagesSent: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chat_messages_sent_total",
				Help: "Own messages by durable write outcome.",
			},
			[]string{"outcome"},
		),
		broadcastEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chat_broadcast_events_total",
				Help: "Inbound broadcast message events by reconciliation result.",
			},
			[]string{"result"},
		),
		publishFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "chat_broadcast_publish_failures_total",
				Help: "Best-effort broadcasts that could not be published.",
			},
		),
		sessionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "chat_sessions_active",
				Help: "Chat sessions currently open.",
			},
		),
	}
	m.registry.MustRegister(
		m.messagesSent,
		m.broadcastEvents,
		m.publishFailures,
		m.sessionsActive,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) SessionOpened() { m.sessionsActive.Inc() }
func (m *Metrics) SessionClosed() { m.sessionsActive.Dec() }

func (m *Metrics) MessageDelivered(outcome string) {
	m.messagesSent.WithLabelValues(outcome).Inc()
}

func (m *Metrics) BroadcastReceived(result chathub.BroadcastResult) {
	m.broadcastEvents.WithLabelValues(string(result)).Inc()
}

func (m *Metrics) PublishFailed() { m.publishFailures.Inc() }

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
