// Package metrics exposes the bridge's Prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ActiveSessions tracks the number of live client sessions.
	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "gehbridge",
		Name:      "active_sessions",
		Help:      "Number of active client sessions.",
	})

	// IRCConnections tracks the number of live IRC connections.
	IRCConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "gehbridge",
		Name:      "irc_connections",
		Help:      "Number of open IRC server connections.",
	})

	// MessagesRelayed counts chat messages crossing the bridge, by
	// direction (inbound = IRC to client, outbound = client to IRC).
	MessagesRelayed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gehbridge",
		Name:      "messages_relayed_total",
		Help:      "Total chat messages relayed across the bridge.",
	}, []string{"direction"})

	// EncryptedRelays counts pre-encrypted envelopes relayed to IRC.
	EncryptedRelays = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "gehbridge",
		Name:      "encrypted_relays_total",
		Help:      "Total encrypted envelopes relayed to IRC verbatim.",
	})
)

// Handler returns the HTTP handler serving the metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
