// Package metrics exposes Prometheus collectors for the broadcast control
// plane. Collectors are registered on the default registry and served by the
// API server's /metrics endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// LivenessPolls counts upstream manifest polls by result (live, offline, error).
	LivenessPolls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "broadcastd_liveness_polls_total",
		Help: "Upstream manifest polls by result.",
	}, []string{"result"})

	// RelayRequests counts HLS relay passthrough requests by status class.
	RelayRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "broadcastd_relay_requests_total",
		Help: "HLS relay requests by upstream status class.",
	}, []string{"status"})

	// RestreamTransitions counts restream status transitions per platform.
	RestreamTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "broadcastd_restream_transitions_total",
		Help: "Restream status transitions by platform and new status.",
	}, []string{"platform", "status"})

	// GatewayConnections tracks currently open gateway connections.
	GatewayConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "broadcastd_gateway_connections",
		Help: "Currently open realtime gateway connections.",
	})

	// GatewayMessages counts gateway messages by kind and outcome.
	GatewayMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "broadcastd_gateway_messages_total",
		Help: "Gateway client messages by kind and outcome.",
	}, []string{"kind", "outcome"})

	// GatewayReaped counts connections reclaimed by heartbeat timeout.
	GatewayReaped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "broadcastd_gateway_reaped_total",
		Help: "Connections closed after missing a heartbeat.",
	})
)
