// Copyright 2026 The Concord Authors
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/concord-chat/concord/lib/clock"
	"github.com/concord-chat/concord/realtime"
)

// Config tunes the gateway's per-connection behavior.
type Config struct {
	// SendBuffer is the outbound event buffer per connection.
	// Defaults to 64.
	SendBuffer int

	// MaxEventBytes caps the size of one inbound frame. Defaults to
	// 64 KiB.
	MaxEventBytes int64

	// EventsPerSecond and EventBurst shape the inbound rate limit.
	// Defaults: 25 events/s with a burst of 50.
	EventsPerSecond float64
	EventBurst      int

	// PingInterval is the keepalive cadence. Defaults to 25s.
	PingInterval time.Duration

	// AllowAnyOrigin disables the websocket Origin check. Only set
	// outside production, where the frontend is served from a
	// different origin than the gateway.
	AllowAnyOrigin bool
}

func (c *Config) applyDefaults() {
	if c.SendBuffer <= 0 {
		c.SendBuffer = 64
	}
	if c.MaxEventBytes <= 0 {
		c.MaxEventBytes = 64 << 10
	}
	if c.EventsPerSecond <= 0 {
		c.EventsPerSecond = 25
	}
	if c.EventBurst <= 0 {
		c.EventBurst = 50
	}
	if c.PingInterval <= 0 {
		c.PingInterval = 25 * time.Second
	}
}

// Gateway accepts websocket connections and dispatches their frames
// into the realtime engine. It implements http.Handler.
type Gateway struct {
	registry *realtime.Registry
	engine   *realtime.Engine
	clock    clock.Clock
	logger   *slog.Logger
	config   Config
}

// New constructs a gateway over the given registry and engine.
func New(registry *realtime.Registry, engine *realtime.Engine, cl clock.Clock, logger *slog.Logger, config Config) *Gateway {
	config.applyDefaults()
	if cl == nil {
		cl = clock.Real()
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Gateway{
		registry: registry,
		engine:   engine,
		clock:    cl,
		logger:   logger,
		config:   config,
	}
}

// ServeHTTP upgrades the request and runs the connection until it
// closes.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sock, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: g.config.AllowAnyOrigin,
	})
	if err != nil {
		g.logger.Debug("upgrade failed", "error", err)
		return
	}
	sock.SetReadLimit(g.config.MaxEventBytes)

	conn := newWSConn(sock, g.config.SendBuffer, g.logger)
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	go conn.writeLoop(ctx)
	go g.keepalive(ctx, conn)

	g.readLoop(ctx, sock, conn)

	g.registry.Unregister(conn)
	conn.close(websocket.StatusNormalClosure, "")
}

// readLoop consumes frames until the socket errors or closes.
func (g *Gateway) readLoop(ctx context.Context, sock *websocket.Conn, conn *wsConn) {
	limiter := rate.NewLimiter(rate.Limit(g.config.EventsPerSecond), g.config.EventBurst)

	for {
		var event realtime.Event
		if err := wsjson.Read(ctx, sock, &event); err != nil {
			status := websocket.CloseStatus(err)
			if status == -1 && !errors.Is(err, context.Canceled) {
				g.logger.Debug("read failed", "error", err)
			}
			return
		}
		if !limiter.Allow() {
			g.logger.Warn("rate limit exceeded", "type", event.Type)
			conn.close(websocket.StatusPolicyViolation, "rate limit exceeded")
			return
		}
		g.dispatch(conn, event)
	}
}

// dispatch routes one inbound event. Malformed events are dropped,
// never fatal; the connection stays up.
func (g *Gateway) dispatch(conn *wsConn, event realtime.Event) {
	switch {
	case event.Type == realtime.TypeRegister:
		userID := coercePayloadID(event.Payload["userId"])
		if userID == 0 {
			g.logger.Warn("register without user id")
			return
		}
		g.registry.Register(conn, userID)
		g.logger.Info("connection registered", "user", userID)

	case event.IsSignaling():
		senderID, ok := g.registry.UserOf(conn)
		if !ok {
			g.logger.Warn("signaling from unregistered connection", "type", event.Type)
			return
		}
		if event.TargetID == 0 {
			g.logger.Warn("signaling without target", "type", event.Type, "sender", senderID)
			return
		}
		if err := validateSignal(event); err != nil {
			g.logger.Warn("invalid signaling payload",
				"type", event.Type, "sender", senderID, "error", err)
			return
		}
		if event.Payload == nil {
			event.Payload = map[string]any{}
		}
		event.Payload["senderId"] = senderID
		g.engine.Relay(event, event.TargetID)

	default:
		g.logger.Debug("unknown event type dropped", "type", event.Type)
	}
}

// keepalive pings on a fixed cadence so intermediaries keep the
// connection open.
func (g *Gateway) keepalive(ctx context.Context, conn *wsConn) {
	ticker := g.clock.NewTicker(g.config.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-conn.closed:
			return
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := conn.sock.Ping(pingCtx)
			cancel()
			if err != nil {
				conn.close(websocket.StatusAbnormalClosure, "ping failed")
				return
			}
		}
	}
}

// coercePayloadID extracts a numeric id from a decoded JSON value.
func coercePayloadID(v any) int64 {
	switch n := v.(type) {
	case float64:
		return int64(n)
	case int64:
		return n
	}
	return 0
}
