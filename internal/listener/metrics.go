package listener

import (
	"github.com/prometheus/client_golang/prometheus"
)

// metrics tracks the accept engine's health. Registration is optional;
// unregistered collectors still count but are never scraped.
type metrics struct {
	accepted    prometheus.Counter
	retries     prometheus.Counter
	queued      prometheus.Gauge
	activeLoops prometheus.Gauge
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		accepted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "conduit",
			Subsystem: "listener",
			Name:      "accepted_connections_total",
			Help:      "Connections accepted and published to the queue.",
		}),
		retries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "conduit",
			Subsystem: "listener",
			Name:      "connect_retries_total",
			Help:      "Transient connect faults recovered by replacing the handle.",
		}),
		queued: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "conduit",
			Subsystem: "listener",
			Name:      "queued_connections",
			Help:      "Accepted connections waiting for an Accept caller (0 or 1).",
		}),
		activeLoops: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "conduit",
			Subsystem: "listener",
			Name:      "active_accept_loops",
			Help:      "Accept loops currently running.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.accepted, m.retries, m.queued, m.activeLoops)
	}
	return m
}
