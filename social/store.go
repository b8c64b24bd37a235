// Copyright 2026 The Concord Authors
// SPDX-License-Identifier: Apache-2.0

package social

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/concord-chat/concord/lib/clock"
	"github.com/concord-chat/concord/lib/sqlitepool"
	"github.com/concord-chat/concord/realtime"
)

// Publisher receives the domain events produced by successful
// mutations. The fanout engine implements it; tests use a recorder.
// Delivery is best-effort and never affects the mutation that
// produced the event.
type Publisher interface {
	Broadcast(event realtime.Event)
	Relay(event realtime.Event, targetID int64)
}

// Store is the relational store plus the social state machine on top
// of it: friend lifecycle, DM channel identity, and server invite
// lifecycle, together with the event producers for messages, channels,
// servers, and bans.
//
// Every invariant-sensitive operation (friend mirror detection, DM
// dedup, invite redemption) runs its check-then-act sequence inside a
// single IMMEDIATE transaction, which makes per-pair and per-invite
// transitions linearizable. Cross-pair operations have no ordering
// guarantee relative to each other.
type Store struct {
	pool      *sqlitepool.Pool
	clock     clock.Clock
	logger    *slog.Logger
	publisher Publisher
}

// StoreConfig holds the parameters for opening a social store.
type StoreConfig struct {
	// Path is the filesystem path to the SQLite database file. The
	// parent directory must exist. Required.
	Path string

	// PoolSize is the number of pooled connections. Defaults to 4.
	PoolSize int

	// Clock provides the current time for row timestamps and invite
	// expiry. Defaults to clock.Real().
	Clock clock.Clock

	// Logger receives operational messages.
	Logger *slog.Logger

	// Publisher receives domain events after successful mutations.
	// Nil disables event production (useful for migrations and some
	// tests).
	Publisher Publisher
}

// Open opens the social store, creating the database and schema if
// needed. The caller must Close the store when done.
func Open(cfg StoreConfig) (*Store, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	cl := cfg.Clock
	if cl == nil {
		cl = clock.Real()
	}

	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:     cfg.Path,
		PoolSize: cfg.PoolSize,
		Logger:   logger,
		OnConnect: func(conn *sqlite.Conn) error {
			return sqlitex.ExecuteScript(conn, schema, nil)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("social store: %w", err)
	}

	return &Store{
		pool:      pool,
		clock:     cl,
		logger:    logger,
		publisher: cfg.Publisher,
	}, nil
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	return s.pool.Close()
}

// now returns the current time as the canonical column text
// (RFC 3339, UTC). SQLite DATETIME columns store text; RFC 3339 sorts
// lexicographically in timestamp order.
func (s *Store) now() string {
	return s.clock.Now().UTC().Format(time.RFC3339Nano)
}

// withTx runs fn inside a single IMMEDIATE transaction on one pooled
// connection. The write lock is taken up front, so every
// check-then-act sequence inside fn is atomic with respect to other
// withTx callers. A non-nil error from fn rolls the transaction back.
func (s *Store) withTx(ctx context.Context, op string, fn func(conn *sqlite.Conn) error) (err error) {
	conn, takeErr := s.pool.Take(ctx)
	if takeErr != nil {
		return fmt.Errorf("%s: %w: %v", op, ErrTransient, takeErr)
	}
	defer s.pool.Put(conn)

	endTx, txErr := sqlitex.ImmediateTransaction(conn)
	if txErr != nil {
		return storeErr(op, txErr)
	}
	defer endTx(&err)

	return fn(conn)
}

// withConn runs fn on one pooled connection without a transaction,
// for single-statement reads.
func (s *Store) withConn(ctx context.Context, op string, fn func(conn *sqlite.Conn) error) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("%s: %w: %v", op, ErrTransient, err)
	}
	defer s.pool.Put(conn)
	return fn(conn)
}

// broadcast hands a domain event to the publisher, if any.
func (s *Store) broadcast(event realtime.Event) {
	if s.publisher != nil {
		s.publisher.Broadcast(event)
	}
}

// relay hands a targeted domain event to the publisher, if any.
func (s *Store) relay(event realtime.Event, targetID int64) {
	if s.publisher != nil {
		s.publisher.Relay(event, targetID)
	}
}

// schema is the full relational schema, applied idempotently on every
// connection. Table and column names follow the service's external
// API conventions (snake_case columns, PascalCase tables).
const schema = `
CREATE TABLE IF NOT EXISTS Users (
	id INTEGER PRIMARY KEY,
	username TEXT NOT NULL UNIQUE,
	email TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	avatar_url TEXT,
	created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS Servers (
	id INTEGER PRIMARY KEY,
	owner_id INTEGER NOT NULL REFERENCES Users(id),
	name TEXT NOT NULL UNIQUE,
	icon_url TEXT,
	created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS ServerMembers (
	id INTEGER PRIMARY KEY,
	server_id INTEGER NOT NULL REFERENCES Servers(id),
	user_id INTEGER NOT NULL REFERENCES Users(id),
	nickname TEXT,
	joined_at DATETIME NOT NULL,
	UNIQUE (server_id, user_id)
);

CREATE TABLE IF NOT EXISTS Channels (
	id INTEGER PRIMARY KEY,
	server_id INTEGER NOT NULL REFERENCES Servers(id),
	name TEXT NOT NULL,
	type TEXT NOT NULL,
	topic TEXT,
	created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS Messages (
	id INTEGER PRIMARY KEY,
	channel_id INTEGER NOT NULL REFERENCES Channels(id),
	author_id INTEGER NOT NULL REFERENCES Users(id),
	content TEXT NOT NULL,
	created_at DATETIME NOT NULL,
	edited_at DATETIME,
	reply_to_id INTEGER REFERENCES Messages(id)
);

CREATE INDEX IF NOT EXISTS idx_messages_channel
	ON Messages (channel_id, created_at);

CREATE TABLE IF NOT EXISTS DMChannels (
	id INTEGER PRIMARY KEY,
	is_group BOOLEAN NOT NULL,
	participant_key TEXT,
	created_at DATETIME NOT NULL
);

-- participant_key is the canonical identity of a deduplicated DM
-- channel: the blake3 hash of the sorted participant id list. The
-- unique index is the authoritative dedup mechanism; the key lookup
-- is the fast path. Explicitly created group channels carry a NULL
-- key (multiple such channels may share a participant set).
CREATE UNIQUE INDEX IF NOT EXISTS idx_dm_participant_key
	ON DMChannels (participant_key) WHERE participant_key IS NOT NULL;

CREATE TABLE IF NOT EXISTS DMParticipants (
	id INTEGER PRIMARY KEY,
	dm_channel_id INTEGER NOT NULL REFERENCES DMChannels(id),
	user_id INTEGER NOT NULL REFERENCES Users(id),
	UNIQUE (dm_channel_id, user_id)
);

CREATE TABLE IF NOT EXISTS DMMessages (
	id INTEGER PRIMARY KEY,
	dm_channel_id INTEGER NOT NULL REFERENCES DMChannels(id),
	author_id INTEGER NOT NULL REFERENCES Users(id),
	content TEXT NOT NULL,
	created_at DATETIME NOT NULL,
	edited_at DATETIME
);

CREATE TABLE IF NOT EXISTS Friends (
	user_id INTEGER NOT NULL REFERENCES Users(id),
	friend_id INTEGER NOT NULL REFERENCES Users(id),
	status TEXT NOT NULL CHECK (status IN ('pending', 'accepted', 'blocked')),
	updated_at DATETIME NOT NULL,
	PRIMARY KEY (user_id, friend_id)
);

CREATE TABLE IF NOT EXISTS ServerInvites (
	id INTEGER PRIMARY KEY,
	code TEXT NOT NULL UNIQUE,
	server_id INTEGER NOT NULL REFERENCES Servers(id),
	creator_id INTEGER NOT NULL REFERENCES Users(id),
	max_uses INTEGER,
	uses INTEGER NOT NULL DEFAULT 0,
	expires_at DATETIME,
	temporary BOOLEAN NOT NULL DEFAULT 0,
	revoked BOOLEAN NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS ServerBans (
	id INTEGER PRIMARY KEY,
	server_id INTEGER NOT NULL REFERENCES Servers(id),
	user_id INTEGER NOT NULL REFERENCES Users(id),
	banned_by_id INTEGER NOT NULL REFERENCES Users(id),
	reason TEXT,
	created_at DATETIME NOT NULL,
	expires_at DATETIME,
	unbanned_by_id INTEGER REFERENCES Users(id),
	unbanned_at DATETIME
);

CREATE TABLE IF NOT EXISTS AuditLogs (
	id INTEGER PRIMARY KEY,
	server_id INTEGER NOT NULL REFERENCES Servers(id),
	actor_id INTEGER NOT NULL REFERENCES Users(id),
	action_type TEXT NOT NULL,
	metadata BLOB,
	created_at DATETIME NOT NULL
);
`
