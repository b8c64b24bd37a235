// Copyright 2026 The Concord Authors
// SPDX-License-Identifier: Apache-2.0

package social

import (
	"errors"
	"fmt"

	"zombiezen.com/go/sqlite"
)

// The error taxonomy of the social state machine. Operations wrap one
// of these sentinels with context; callers classify with errors.Is:
//
//	if errors.Is(err, social.ErrConflict) { ... }
//
// The calling layer maps each kind to a client-facing status. The
// core never swallows an invariant violation.
var (
	// ErrNotFound: the referenced entity or edge does not exist
	// (unknown invite code, no pending request to accept).
	ErrNotFound = errors.New("not found")

	// ErrConflict: a state-machine precondition is violated
	// (duplicate request, already friends, already a member, invite
	// revoked/expired/exhausted).
	ErrConflict = errors.New("conflict")

	// ErrForbidden: a membership or authorization precondition failed
	// (creating an invite for a server you are not in, redeeming
	// while banned).
	ErrForbidden = errors.New("forbidden")

	// ErrTransient: the store was unavailable (pool exhausted, write
	// lock timeout). Safe to retry at the caller's discretion.
	ErrTransient = errors.New("store unavailable")
)

// uniqueViolation reports whether err is a SQLite UNIQUE or PRIMARY
// KEY constraint failure. Several invariants are enforced by unique
// indexes (invite codes, DM participant keys, friend edge pairs) and
// surface to callers as ErrConflict.
func uniqueViolation(err error) bool {
	switch sqlite.ErrCode(err) {
	case sqlite.ResultConstraintUnique, sqlite.ResultConstraintPrimaryKey:
		return true
	}
	return false
}

// storeErr classifies a low-level store error: lock contention and
// interrupts become ErrTransient, everything else passes through
// wrapped with the operation name.
func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	switch sqlite.ErrCode(err) {
	case sqlite.ResultBusy, sqlite.ResultLocked, sqlite.ResultInterrupt:
		return fmt.Errorf("%s: %w: %v", op, ErrTransient, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
