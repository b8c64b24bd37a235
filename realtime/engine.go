// Copyright 2026 The Concord Authors
// SPDX-License-Identifier: Apache-2.0

package realtime

import (
	"io"
	"log/slog"
)

// Engine delivers domain events to live connections: broadcast to
// every registered connection, or targeted relay to one user's
// connections.
//
// Delivery is fire-and-forget. Events are offered in the order the
// caller hands them over; the engine never reorders a single caller's
// sequential calls. Cross-caller ordering is unspecified. A send
// failure evicts that connection and never affects other targets or
// propagates to the caller.
type Engine struct {
	registry *Registry
	logger   *slog.Logger
	metrics  *Metrics
}

// NewEngine creates an engine over the given registry. logger and
// metrics may be nil.
func NewEngine(registry *Registry, logger *slog.Logger, metrics *Metrics) *Engine {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Engine{
		registry: registry,
		logger:   logger,
		metrics:  metrics,
	}
}

// Broadcast sends event to every registered connection. Broadcast is
// deliberately unscoped: all currently connected sockets receive the
// event regardless of channel or server membership. Completes without
// error when zero connections are registered.
func (e *Engine) Broadcast(event Event) {
	if e.metrics != nil {
		e.metrics.EventsBroadcast.Inc()
	}
	for _, conn := range e.registry.All() {
		e.deliver(conn, event)
	}
}

// Relay sends event to every live connection of targetID. If the user
// has no live connection the event is dropped: logged, not retried,
// not queued.
func (e *Engine) Relay(event Event, targetID int64) {
	conns := e.registry.Lookup(targetID)
	if len(conns) == 0 {
		if e.metrics != nil {
			e.metrics.RelayNoTarget.Inc()
		}
		e.logger.Debug("relay target offline, event dropped",
			"type", event.Type,
			"target", targetID,
		)
		return
	}
	if e.metrics != nil {
		e.metrics.EventsRelayed.Inc()
	}
	for _, conn := range conns {
		e.deliver(conn, event)
	}
}

// deliver offers event to one connection. On failure the connection is
// removed from the registry so later fanouts skip it.
func (e *Engine) deliver(conn Conn, event Event) {
	if err := conn.Send(event); err != nil {
		if e.metrics != nil {
			e.metrics.DeliveryFailures.Inc()
		}
		e.logger.Warn("delivery failed, evicting connection",
			"type", event.Type,
			"error", err,
		)
		e.registry.Unregister(conn)
	}
}
