// Copyright 2026 The Concord Authors
// SPDX-License-Identifier: Apache-2.0

package social

import (
	"context"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

// AuditEntry is one row of a server's moderation journal.
type AuditEntry struct {
	ID         int64
	ServerID   int64
	ActorID    int64
	ActionType string
	Metadata   map[string]any
	CreatedAt  string
}

// auditEnc encodes metadata in CBOR core deterministic form, so the
// same action always produces byte-identical journal entries.
var auditEnc cbor.EncMode

func init() {
	var err error
	auditEnc, err = cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
}

// appendAudit writes a journal row inside the caller's transaction.
func appendAudit(conn *sqlite.Conn, serverID, actorID int64, actionType string, metadata map[string]any, now string) error {
	var blob []byte
	if len(metadata) > 0 {
		var err error
		blob, err = auditEnc.Marshal(metadata)
		if err != nil {
			return fmt.Errorf("append audit: %w", err)
		}
	}
	return sqlitex.Execute(conn, `INSERT INTO AuditLogs (server_id, actor_id, action_type, metadata, created_at)
		VALUES (?, ?, ?, ?, ?)`, &sqlitex.ExecOptions{
		Args: []any{serverID, actorID, actionType, blob, now},
	})
}

// AuditEntries returns a server's journal, newest first, capped at
// limit (0 means no cap).
func (s *Store) AuditEntries(ctx context.Context, serverID int64, limit int) ([]AuditEntry, error) {
	const op = "audit entries"
	query := `SELECT id, server_id, actor_id, action_type, metadata, created_at
		FROM AuditLogs WHERE server_id = ? ORDER BY id DESC`
	args := []any{serverID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	var entries []AuditEntry
	err := s.withConn(ctx, op, func(conn *sqlite.Conn) error {
		return storeErr(op, sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
			Args: args,
			ResultFunc: func(stmt *sqlite.Stmt) error {
				entry := AuditEntry{
					ID:         stmt.ColumnInt64(0),
					ServerID:   stmt.ColumnInt64(1),
					ActorID:    stmt.ColumnInt64(2),
					ActionType: stmt.ColumnText(3),
					CreatedAt:  stmt.ColumnText(5),
				}
				if n := stmt.ColumnLen(4); n > 0 {
					blob := make([]byte, n)
					stmt.ColumnBytes(4, blob)
					if err := cbor.Unmarshal(blob, &entry.Metadata); err != nil {
						return fmt.Errorf("audit row %d: %w", entry.ID, err)
					}
				}
				entries = append(entries, entry)
				return nil
			},
		}))
	})
	return entries, err
}
