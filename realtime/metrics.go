// Copyright 2026 The Concord Authors
// SPDX-License-Identifier: Apache-2.0

package realtime

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the engine's Prometheus instruments. Production wiring
// registers them on prometheus.DefaultRegisterer; tests pass a fresh
// registry so parallel tests do not collide.
type Metrics struct {
	EventsBroadcast  prometheus.Counter
	EventsRelayed    prometheus.Counter
	RelayNoTarget    prometheus.Counter
	DeliveryFailures prometheus.Counter
	Connections      prometheus.GaugeFunc
}

// NewMetrics creates and registers the engine metrics. connections is
// sampled on scrape, typically Registry.Len.
func NewMetrics(reg prometheus.Registerer, connections func() int) *Metrics {
	m := &Metrics{
		EventsBroadcast: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "concord_events_broadcast_total",
			Help: "Events fanned out to all live connections.",
		}),
		EventsRelayed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "concord_events_relayed_total",
			Help: "Targeted events relayed to a user's connections.",
		}),
		RelayNoTarget: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "concord_relay_no_target_total",
			Help: "Targeted events dropped because the target had no live connection.",
		}),
		DeliveryFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "concord_delivery_failures_total",
			Help: "Individual sends that failed; the connection is evicted.",
		}),
		Connections: prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "concord_connections",
			Help: "Currently registered connections.",
		}, func() float64 { return float64(connections()) }),
	}
	reg.MustRegister(
		m.EventsBroadcast,
		m.EventsRelayed,
		m.RelayNoTarget,
		m.DeliveryFailures,
		m.Connections,
	)
	return m
}
