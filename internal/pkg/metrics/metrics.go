// Package metrics provides the Prometheus collectors for the delivery core.
// Names are stable; dashboards and alerts rely on them.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "marketchat"

var (
	// BusPublishTotal counts publish attempts by channel and status (ok|error).
	BusPublishTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bus_publish_total",
			Help:      "Total number of message bus publish attempts by channel and status.",
		},
		[]string{"channel", "status"},
	)

	// BusReceivedTotal counts payloads handed to local subscribers by channel.
	BusReceivedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bus_received_total",
			Help:      "Total number of payloads received from the message bus by channel.",
		},
		[]string{"channel"},
	)

	// FanoutDeliveredTotal counts frames queued to local connections by channel.
	FanoutDeliveredTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fanout_delivered_total",
			Help:      "Total number of frames queued to locally connected subscribers.",
		},
		[]string{"channel"},
	)

	// FanoutDroppedTotal counts payloads or frames dropped by the fanout router.
	// reason is one of malformed|no_subscribers|slow_consumer.
	FanoutDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fanout_dropped_total",
			Help:      "Total number of payloads or frames dropped during local fanout.",
		},
		[]string{"channel", "reason"},
	)

	// RevokedTokens is the current number of entries in the revocation registry.
	RevokedTokens = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "revoked_tokens",
			Help:      "Number of revoked tokens still remembered.",
		},
	)

	// RevocationSweptTotal counts registry entries removed by the periodic sweep.
	RevocationSweptTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "revocation_swept_total",
			Help:      "Total number of expired revocation entries removed.",
		},
	)

	// WebSocketConnectionsActive is the current number of bound connections on this instance.
	WebSocketConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "websocket_connections_active",
			Help:      "Number of active WebSocket connections.",
		},
	)

	// AuthRejectedTotal counts rejected credentials by surface (http|handshake|refresh) and reason.
	AuthRejectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_rejected_total",
			Help:      "Total number of rejected credentials by surface and reason.",
		},
		[]string{"surface", "reason"},
	)

	// MessagesPersistedTotal counts durable writes by kind (chat|location).
	MessagesPersistedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_persisted_total",
			Help:      "Total number of chat messages and location pings persisted.",
		},
		[]string{"kind"},
	)
)

// Handler serves the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}
