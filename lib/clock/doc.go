// Copyright 2026 The Concord Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock abstracts time for deterministic tests.
//
// Production code injects [Real]. Tests inject [Fake] and drive time
// explicitly with [FakeClock.Advance], which makes invite expiry and
// other time-dependent behavior testable without sleeping.
package clock
