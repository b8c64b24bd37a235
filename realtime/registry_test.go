// Copyright 2026 The Concord Authors
// SPDX-License-Identifier: Apache-2.0

package realtime

import (
	"errors"
	"sync"
	"testing"
)

// fakeConn records delivered events and can be made to fail.
type fakeConn struct {
	mu     sync.Mutex
	events []Event
	fail   bool
}

func (c *fakeConn) Send(event Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return errors.New("connection closed")
	}
	c.events = append(c.events, event)
	return nil
}

func (c *fakeConn) delivered() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Event, len(c.events))
	copy(out, c.events)
	return out
}

func TestRegisterIdempotent(t *testing.T) {
	registry := NewRegistry()
	conn := &fakeConn{}

	registry.Register(conn, 1)
	registry.Register(conn, 1)

	if got := len(registry.Lookup(1)); got != 1 {
		t.Fatalf("Lookup(1) returned %d conns, want 1", got)
	}
	if got := registry.Len(); got != 1 {
		t.Fatalf("Len = %d, want 1", got)
	}
}

func TestRegisterReassociates(t *testing.T) {
	registry := NewRegistry()
	conn := &fakeConn{}

	registry.Register(conn, 1)
	registry.Register(conn, 2)

	if got := len(registry.Lookup(1)); got != 0 {
		t.Errorf("Lookup(1) returned %d conns, want 0", got)
	}
	if got := len(registry.Lookup(2)); got != 1 {
		t.Errorf("Lookup(2) returned %d conns, want 1", got)
	}
}

func TestMultiDevice(t *testing.T) {
	registry := NewRegistry()
	phone := &fakeConn{}
	laptop := &fakeConn{}

	registry.Register(phone, 1)
	registry.Register(laptop, 1)

	if got := len(registry.Lookup(1)); got != 2 {
		t.Fatalf("Lookup(1) returned %d conns, want 2", got)
	}

	registry.Unregister(phone)
	if got := len(registry.Lookup(1)); got != 1 {
		t.Fatalf("after Unregister, Lookup(1) returned %d conns, want 1", got)
	}
}

func TestUnregisterUnknownConn(t *testing.T) {
	registry := NewRegistry()
	// Must not panic or error for a connection that never registered.
	registry.Unregister(&fakeConn{})
}

func TestConcurrentRegistryAccess(t *testing.T) {
	registry := NewRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		i := i
		go func() {
			defer wg.Done()
			conn := &fakeConn{}
			registry.Register(conn, int64(i%4))
			registry.Lookup(int64(i % 4))
			registry.All()
			registry.Unregister(conn)
		}()
	}
	wg.Wait()

	if got := registry.Len(); got != 0 {
		t.Fatalf("Len = %d after all unregistered, want 0", got)
	}
}

func TestUserOf(t *testing.T) {
	r := NewRegistry()
	conn := &fakeConn{}

	if _, ok := r.UserOf(conn); ok {
		t.Error("UserOf reported an unregistered connection")
	}
	r.Register(conn, 7)
	userID, ok := r.UserOf(conn)
	if !ok || userID != 7 {
		t.Errorf("UserOf = (%d, %v), want (7, true)", userID, ok)
	}
	r.Unregister(conn)
	if _, ok := r.UserOf(conn); ok {
		t.Error("UserOf reported a connection after unregister")
	}
}
