// Package server exposes Prometheus instrumentation for connections, groups,
// and the fan-out path.
package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "popchat",
		Name:      "active_connections",
		Help:      "Number of live WebSocket connections.",
	})
	metricActiveGroups = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "popchat",
		Name:      "active_groups",
		Help:      "Number of active groups.",
	})
	metricFramesDelivered = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "popchat",
		Name:      "frames_delivered_total",
		Help:      "Outbound frames enqueued to client send buffers.",
	})
	metricFramesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "popchat",
		Name:      "frames_dropped_total",
		Help:      "Outbound frames dropped because a client buffer was full or closed.",
	})
	metricRateLimitedSends = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "popchat",
		Name:      "rate_limited_sends_total",
		Help:      "Messages silently dropped by the connection-level send budget.",
	})
	metricRejectedRequests = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "popchat",
		Name:      "rejected_requests_total",
		Help:      "HTTP requests rejected by the per-address request budget.",
	})
)
