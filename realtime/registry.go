// Copyright 2026 The Concord Authors
// SPDX-License-Identifier: Apache-2.0

package realtime

import "sync"

// Conn is a live transport connection. The gateway produces Conn
// values from websocket upgrades; tests use in-memory fakes.
//
// Send must be safe for concurrent use and must not block the caller
// indefinitely — the gateway implementation hands the event to a
// buffered per-connection writer and drops on overflow. A non-nil
// error means the connection is dead and will be evicted from the
// registry by the engine.
type Conn interface {
	Send(event Event) error
}

// Registry maps logical user ids to their live connections. A user
// may have zero, one, or many connections (multi-device); a
// connection belongs to at most one user.
//
// The registry is process-local state with process lifetime: nothing
// is persisted, and after a restart clients must re-register.
//
// All methods are safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	byUser map[int64]map[Conn]struct{}
	byConn map[Conn]int64
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byUser: make(map[int64]map[Conn]struct{}),
		byConn: make(map[Conn]int64),
	}
}

// Register associates conn with userID, making it a valid fanout and
// relay target. Registering the same connection again is a no-op if
// the user matches; if the connection was previously registered to a
// different user, the old association is replaced.
func (r *Registry) Register(conn Conn, userID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if previous, ok := r.byConn[conn]; ok {
		if previous == userID {
			return
		}
		r.removeLocked(conn, previous)
	}

	set := r.byUser[userID]
	if set == nil {
		set = make(map[Conn]struct{})
		r.byUser[userID] = set
	}
	set[conn] = struct{}{}
	r.byConn[conn] = userID
}

// Unregister removes the association for conn. Called on transport
// close. Safe to call for a connection that was never registered.
func (r *Registry) Unregister(conn Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	userID, ok := r.byConn[conn]
	if !ok {
		return
	}
	r.removeLocked(conn, userID)
}

func (r *Registry) removeLocked(conn Conn, userID int64) {
	delete(r.byConn, conn)
	if set, ok := r.byUser[userID]; ok {
		delete(set, conn)
		if len(set) == 0 {
			delete(r.byUser, userID)
		}
	}
}

// Lookup returns the live connections for userID, possibly empty.
func (r *Registry) Lookup(userID int64) []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set := r.byUser[userID]
	if len(set) == 0 {
		return nil
	}
	conns := make([]Conn, 0, len(set))
	for conn := range set {
		conns = append(conns, conn)
	}
	return conns
}

// UserOf returns the user a connection is registered to, if any. The
// gateway uses it to attribute inbound frames to a sender.
func (r *Registry) UserOf(conn Conn) (int64, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	userID, ok := r.byConn[conn]
	return userID, ok
}

// All returns every registered connection, for broadcast.
func (r *Registry) All() []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := make([]Conn, 0, len(r.byConn))
	for conn := range r.byConn {
		conns = append(conns, conn)
	}
	return conns
}

// Len returns the number of registered connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byConn)
}
