// Copyright 2026 The Concord Authors
// SPDX-License-Identifier: Apache-2.0

// Package realtime is the delivery core of the chat service: a
// process-local registry of live connections keyed by user id, and an
// engine that fans events out to every connection or relays them to a
// single targeted user.
//
// Delivery is strictly best-effort. There is no queue, no retry, and
// no acknowledgement: an event is offered to each live connection
// once, a failed send evicts that connection from the registry, and a
// relay to a user with no live connection is dropped with a log line.
// A mutation that triggered an event never fails because delivery
// failed.
//
// The registry survives only for the process lifetime. Clients
// re-associate after a reconnect by sending a register event through
// the gateway.
package realtime
