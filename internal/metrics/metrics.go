// Package metrics provides Prometheus instrumentation for the TaskChat
// backend. It exposes counters for auth attempts, snapshot deliveries and
// message sends, plus gauges for live subscriptions and gateway connections.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// AuthAttemptsTotal counts register-or-sign-in attempts, labeled by
	// result: "registered", "signed_in", "profile_write_failed", "rejected".
	AuthAttemptsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "taskchat_auth_attempts_total",
		Help: "Total number of register-or-sign-in attempts",
	}, []string{"result"})

	// SnapshotsTotal counts live-query snapshot deliveries, labeled by list
	// kind: "directory", "conversations", "messages".
	SnapshotsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "taskchat_snapshots_total",
		Help: "Total number of live-query snapshots delivered",
	}, []string{"kind"})

	// MessagesSentTotal counts message send attempts, labeled by result:
	// "ok", "failed", "preview_stale".
	MessagesSentTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "taskchat_messages_sent_total",
		Help: "Total number of message send attempts",
	}, []string{"result"})

	// SubscriptionsActive tracks the current number of live store
	// subscriptions across all backends.
	SubscriptionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "taskchat_subscriptions_active",
		Help: "Current number of live store subscriptions",
	})

	// ConnectionsTotal tracks the current number of active gateway
	// WebSocket connections.
	ConnectionsTotal = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "taskchat_connections_total",
		Help: "Current number of active gateway WebSocket connections",
	})
)

func init() {
	prometheus.MustRegister(
		AuthAttemptsTotal,
		SnapshotsTotal,
		MessagesSentTotal,
		SubscriptionsActive,
		ConnectionsTotal,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
