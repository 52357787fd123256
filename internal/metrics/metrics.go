// Package metrics provides Prometheus instrumentation for the support-chat
// services: gauges for live connections and open sessions, counters for
// message and typing throughput, and histograms for staff response time.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ConnectionsTotal tracks the current number of active widget
	// websocket connections on the gateway.
	ConnectionsTotal = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "supportchat_connections_total",
		Help: "Current number of active widget WebSocket connections",
	})

	// MessagesTotal counts chat messages processed, labeled by sender
	// role: "user", "admin", or "bot".
	MessagesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "supportchat_messages_total",
		Help: "Total number of chat messages processed",
	}, []string{"sender"})

	// TypingSignalsTotal counts ephemeral typing broadcasts relayed.
	TypingSignalsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "supportchat_typing_signals_total",
		Help: "Total number of typing broadcasts relayed",
	})

	// SessionsTotal counts session lifecycle events, labeled by event:
	// "requested", "joined", or "closed".
	SessionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "supportchat_sessions_total",
		Help: "Total number of session lifecycle events",
	}, []string{"event"})

	// WaitingSessions tracks the current number of sessions awaiting a
	// staff member.
	WaitingSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "supportchat_waiting_sessions",
		Help: "Current number of sessions awaiting staff pickup",
	})

	// PickupDuration records the time from concern submission to a staff
	// member joining the session.
	PickupDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "supportchat_pickup_duration_seconds",
		Help:    "Time from concern submission to staff pickup",
		Buckets: []float64{5, 15, 30, 60, 120, 300, 600, 1800},
	})

	// RequestsRejected counts API requests refused before processing,
	// labeled by reason: "rate_limited", "unauthorized", or "invalid".
	RequestsRejected = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "supportchat_requests_rejected_total",
		Help: "Total number of API requests refused before processing",
	}, []string{"reason"})
)

func init() {
	prometheus.MustRegister(
		ConnectionsTotal,
		MessagesTotal,
		TypingSignalsTotal,
		SessionsTotal,
		WaitingSessions,
		PickupDuration,
		RequestsRejected,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
