// Copyright 2026 The Concord Authors
// SPDX-License-Identifier: Apache-2.0

// Package gateway is the websocket edge of the chat service. It
// upgrades HTTP connections, binds them to users in the realtime
// registry, and dispatches inbound frames: register events attach the
// connection to a user, WebRTC signaling events are validated and
// relayed to their target. Outbound delivery goes through a buffered
// per-connection writer; a connection that cannot keep up is closed
// rather than allowed to stall the fanout path.
package gateway
