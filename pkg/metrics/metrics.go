// Package metrics exposes Prometheus collectors for sessions, relayed messages
// and group conversation outcomes.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "groupchat"

// Metrics bundles the collectors recorded by the orchestrator and UI layers.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	ActiveSessions   prometheus.Gauge
	SessionsStarted  *prometheus.CounterVec
	MessagesRelayed  *prometheus.CounterVec
	Conversations    prometheus.Counter
	Outcomes         *prometheus.CounterVec
	HumanInputAsks   *prometheus.CounterVec
	IncomingMessages *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Number of chat sessions currently registered.",
		}),
		SessionsStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_started_total",
			Help:      "Session bootstrap attempts by result.",
		}, []string{"result"}),
		MessagesRelayed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_relayed_total",
			Help:      "Inter-agent messages mirrored to the UI, by sender.",
		}, []string{"author"}),
		Conversations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "conversations_started_total",
			Help:      "Group conversations created.",
		}),
		Outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "run_outcomes_total",
			Help:      "Autonomous run outcomes.",
		}, []string{"outcome"}),
		HumanInputAsks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "human_input_requests_total",
			Help:      "Human input requests by kind.",
		}, []string{"kind"}),
		IncomingMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "incoming_messages_total",
			Help:      "User messages routed by the orchestrator, by branch.",
		}, []string{"branch"}),
	}
	if reg != nil {
		reg.MustRegister(
			m.ActiveSessions,
			m.SessionsStarted,
			m.MessagesRelayed,
			m.Conversations,
			m.Outcomes,
			m.HumanInputAsks,
			m.IncomingMessages,
		)
	}
	return m
}

func (m *Metrics) SessionStarted(ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	m.SessionsStarted.WithLabelValues(result).Inc()
}

func (m *Metrics) SessionOpened() {
	if m != nil {
		m.ActiveSessions.Inc()
	}
}

func (m *Metrics) SessionClosed() {
	if m != nil {
		m.ActiveSessions.Dec()
	}
}

func (m *Metrics) Relayed(author string) {
	if m != nil {
		m.MessagesRelayed.WithLabelValues(author).Inc()
	}
}

func (m *Metrics) ConversationStarted() {
	if m != nil {
		m.Conversations.Inc()
	}
}

func (m *Metrics) RunFinished(outcome string) {
	if m != nil {
		m.Outcomes.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) HumanInput(kind string) {
	if m != nil {
		m.HumanInputAsks.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) Incoming(branch string) {
	if m != nil {
		m.IncomingMessages.WithLabelValues(branch).Inc()
	}
}
