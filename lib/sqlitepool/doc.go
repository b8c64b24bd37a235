// Copyright 2026 The Concord Authors
// SPDX-License-Identifier: Apache-2.0

// Package sqlitepool provides the Concord-standard SQLite connection
// pool.
//
// The relational store behind the social state machine (friend edges,
// DM channels, invites, memberships) lives in a single SQLite database
// accessed through this pool. It wraps zombiezen.com/go/sqlite with
// production defaults: WAL journal mode, NORMAL synchronous, foreign
// key enforcement, and a busy timeout so concurrent writers queue
// instead of failing.
//
// The pool is built on zombiezen's sqlitex.Pool. Callers [Pool.Take] a
// connection, perform work, and [Pool.Put] it back. Connections are
// NOT safe for concurrent use — each goroutine must hold its own
// connection for the duration of its work.
//
// # Pragmas
//
// Every connection in the pool is initialized with these pragmas:
//
//   - journal_mode=WAL: concurrent readers and a single writer. Reads
//     never block writes; writes never block reads.
//   - synchronous=NORMAL: transactions survive process crashes.
//   - busy_timeout=5000: wait up to 5 seconds for a write lock instead
//     of returning SQLITE_BUSY immediately. Every invariant-sensitive
//     social operation runs in an IMMEDIATE transaction, so write
//     contention is expected and must queue.
//   - foreign_keys=ON: the social schema leans on the database for
//     referential integrity (edges reference users, participants
//     reference channels); violations are bugs and should fail loudly.
//   - cache_size=-4096: 4 MB page cache per connection.
//   - temp_store=MEMORY: temporary tables and indexes in memory.
//
// # Usage
//
//	pool, err := sqlitepool.Open(sqlitepool.Config{
//	    Path:     "/var/concord/chat.db",
//	    PoolSize: 4,
//	    Logger:   logger,
//	    OnConnect: func(conn *sqlite.Conn) error {
//	        return sqlitex.ExecuteScript(conn, schema, nil)
//	    },
//	})
//	if err != nil {
//	    return err
//	}
//	defer pool.Close()
//
// # Design
//
// This package is intentionally thin: it applies standard pragmas and
// exposes the underlying zombiezen types directly. There is no query
// builder and no ORM. The social store writes SQL, uses
// sqlitex.Execute for cached statements, and scopes every
// check-then-act sequence with sqlitex.ImmediateTransaction.
package sqlitepool
