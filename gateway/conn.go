// Copyright 2026 The Concord Authors
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/concord-chat/concord/realtime"
)

// errSlowConsumer is returned by Send when the connection's outbound
// buffer is full. The fanout engine treats any Send error as grounds
// for eviction, so a stalled reader is dropped rather than allowed to
// back-pressure delivery to everyone else.
var errSlowConsumer = errors.New("send buffer full")

// writeTimeout bounds a single outbound frame write.
const writeTimeout = 10 * time.Second

// wsConn adapts a websocket to the realtime.Conn interface. Sends are
// decoupled from the socket by a buffered channel drained by a single
// writer goroutine, so Send never blocks the caller.
type wsConn struct {
	sock   *websocket.Conn
	send   chan realtime.Event
	logger *slog.Logger

	closeOnce sync.Once
	closed    chan struct{}
}

func newWSConn(sock *websocket.Conn, buffer int, logger *slog.Logger) *wsConn {
	return &wsConn{
		sock:   sock,
		send:   make(chan realtime.Event, buffer),
		logger: logger,
		closed: make(chan struct{}),
	}
}

// Send queues an event for delivery. It fails when the buffer is full
// or the connection is closed; it never blocks.
func (c *wsConn) Send(event realtime.Event) error {
	select {
	case <-c.closed:
		return errors.New("connection closed")
	default:
	}
	select {
	case c.send <- event:
		return nil
	default:
		c.close(websocket.StatusPolicyViolation, "send buffer overflow")
		return errSlowConsumer
	}
}

// writeLoop drains the send buffer onto the socket. It exits when the
// connection closes.
func (c *wsConn) writeLoop(ctx context.Context) {
	for {
		select {
		case <-c.closed:
			return
		case <-ctx.Done():
			return
		case event := <-c.send:
			writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := wsjson.Write(writeCtx, c.sock, event)
			cancel()
			if err != nil {
				c.logger.Debug("write failed", "error", err)
				c.close(websocket.StatusAbnormalClosure, "write failed")
				return
			}
		}
	}
}

// close shuts the socket down exactly once.
func (c *wsConn) close(code websocket.StatusCode, reason string) {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.sock.Close(code, reason)
	})
}
