// Copyright 2026 The Concord Authors
// SPDX-License-Identifier: Apache-2.0

// Package social implements the durable side of the chat service: the
// relational store and the state machines layered over it. Friend
// requests, DM channel identity, and server invites are the
// invariant-heavy parts; servers, channels, messages, bans, and the
// audit journal round out the model.
//
// Mutations that must observe-then-decide run inside a single
// IMMEDIATE SQLite transaction, which serializes them against each
// other. Successful mutations emit events through a Publisher; event
// delivery is best-effort and decoupled from durability.
package social
