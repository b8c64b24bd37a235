// Copyright 2026 The Concord Authors
// SPDX-License-Identifier: Apache-2.0

package social

import (
	"context"
	"crypto/rand"
	"fmt"
	"time"

	"github.com/mr-tron/base58"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

// inviteCodeLen is the length of the public invite code. Eight base58
// characters give about 46 bits of entropy, plenty against guessing
// while staying typeable.
const inviteCodeLen = 8

// Invite is a redeemable entry ticket into a server.
type Invite struct {
	ID        int64
	Code      string
	ServerID  int64
	CreatorID int64
	MaxUses   int64 // 0 means unlimited
	Uses      int64
	ExpiresAt string // empty means never
	Temporary bool
	Revoked   bool
	CreatedAt string
}

// newInviteCode returns a fresh random code. Eight random bytes
// encode to at least eight base58 characters, trimmed to the fixed
// length.
func newInviteCode() string {
	buf := make([]byte, 8)
	rand.Read(buf)
	return base58.Encode(buf)[:inviteCodeLen]
}

// CreateInvite mints an invite for a server. Only members may create
// invites (ErrForbidden otherwise). maxUses of 0 means unlimited;
// a zero ttl means the invite never expires. In the astronomically
// unlikely event of a code collision the call returns ErrConflict and
// the caller may simply retry.
func (s *Store) CreateInvite(ctx context.Context, serverID, creatorID int64, maxUses int64, ttl time.Duration, temporary bool) (Invite, error) {
	const op = "create invite"
	if maxUses < 0 {
		return Invite{}, fmt.Errorf("%s: %w: negative max uses", op, ErrConflict)
	}

	var inv Invite
	err := s.withTx(ctx, op, func(conn *sqlite.Conn) error {
		if err := requireMember(conn, op, serverID, creatorID); err != nil {
			return err
		}

		now := s.now()
		expiresAt := ""
		if ttl > 0 {
			expiresAt = s.clock.Now().UTC().Add(ttl).Format(time.RFC3339Nano)
		}
		code := newInviteCode()

		err := sqlitex.Execute(conn, `INSERT INTO ServerInvites
			(code, server_id, creator_id, max_uses, uses, expires_at, temporary, revoked, created_at)
			VALUES (?, ?, ?, ?, 0, ?, ?, 0, ?)`, &sqlitex.ExecOptions{
			Args: []any{code, serverID, creatorID, nullableInt(maxUses), nullableText(expiresAt), temporary, now},
		})
		if uniqueViolation(err) {
			return fmt.Errorf("%s: %w: code collision", op, ErrConflict)
		}
		if err != nil {
			return storeErr(op, err)
		}
		inv = Invite{
			ID:        conn.LastInsertRowID(),
			Code:      code,
			ServerID:  serverID,
			CreatorID: creatorID,
			MaxUses:   maxUses,
			ExpiresAt: expiresAt,
			Temporary: temporary,
			CreatedAt: now,
		}
		return appendAudit(conn, serverID, creatorID, "invite.create",
			map[string]any{"code": code, "maxUses": maxUses}, now)
	})
	if err != nil {
		return Invite{}, err
	}
	s.logger.Info("invite created", "server", serverID, "code", inv.Code, "creator", creatorID)
	return inv, nil
}

// RedeemInvite consumes one use of the invite and joins userID to its
// server. The validity checks (revoked, exhausted, expired), the
// membership insert, and the use-count increment happen in one
// transaction, so an invite with N remaining uses admits exactly N
// distinct users no matter how the redeemers race.
//
// Unknown codes are ErrNotFound. Revoked, exhausted, or expired
// invites and redemption by an existing member are ErrConflict.
// Redemption by a banned user is ErrForbidden.
func (s *Store) RedeemInvite(ctx context.Context, code string, userID int64) (Server, error) {
	const op = "redeem invite"
	var srv Server
	err := s.withTx(ctx, op, func(conn *sqlite.Conn) error {
		inv, found, err := inviteByCode(conn, code)
		if err != nil {
			return storeErr(op, err)
		}
		if !found {
			return fmt.Errorf("%s: %w: code %q", op, ErrNotFound, code)
		}
		if inv.Revoked {
			return fmt.Errorf("%s: %w: invite revoked", op, ErrConflict)
		}
		if inv.MaxUses > 0 && inv.Uses >= inv.MaxUses {
			return fmt.Errorf("%s: %w: invite exhausted", op, ErrConflict)
		}
		if inv.ExpiresAt != "" {
			expires, perr := time.Parse(time.RFC3339Nano, inv.ExpiresAt)
			if perr != nil {
				return fmt.Errorf("%s: bad expiry on invite %d: %v", op, inv.ID, perr)
			}
			// Expiry is exclusive: the invite is live at the instant
			// of its deadline and dead strictly after.
			if s.clock.Now().UTC().After(expires) {
				return fmt.Errorf("%s: %w: invite expired", op, ErrConflict)
			}
		}

		banned, err := isBanned(conn, inv.ServerID, userID)
		if err != nil {
			return storeErr(op, err)
		}
		if banned {
			return fmt.Errorf("%s: %w: banned from server %d", op, ErrForbidden, inv.ServerID)
		}
		member, err := isMember(conn, inv.ServerID, userID)
		if err != nil {
			return storeErr(op, err)
		}
		if member {
			return fmt.Errorf("%s: %w: already a member", op, ErrConflict)
		}

		now := s.now()
		err = sqlitex.Execute(conn, `INSERT INTO ServerMembers (server_id, user_id, joined_at)
			VALUES (?, ?, ?)`, &sqlitex.ExecOptions{
			Args: []any{inv.ServerID, userID, now},
		})
		if err != nil {
			return storeErr(op, err)
		}
		err = sqlitex.Execute(conn, `UPDATE ServerInvites SET uses = uses + 1 WHERE id = ?`,
			&sqlitex.ExecOptions{Args: []any{inv.ID}})
		if err != nil {
			return storeErr(op, err)
		}

		err = sqlitex.Execute(conn, `SELECT id, owner_id, name, COALESCE(icon_url, ''), created_at
			FROM Servers WHERE id = ?`, &sqlitex.ExecOptions{
			Args: []any{inv.ServerID},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				srv = Server{
					ID:        stmt.ColumnInt64(0),
					OwnerID:   stmt.ColumnInt64(1),
					Name:      stmt.ColumnText(2),
					IconURL:   stmt.ColumnText(3),
					CreatedAt: stmt.ColumnText(4),
				}
				return nil
			},
		})
		if err != nil {
			return storeErr(op, err)
		}
		return appendAudit(conn, inv.ServerID, userID, "invite.redeem",
			map[string]any{"code": code}, now)
	})
	if err != nil {
		return Server{}, err
	}
	s.logger.Info("invite redeemed", "code", code, "user", userID, "server", srv.ID)
	return srv, nil
}

// RevokeInvite marks the invite dead. Only members of the invite's
// server may revoke. Revoking an already revoked invite is a no-op
// success; memberships granted before revocation are untouched.
func (s *Store) RevokeInvite(ctx context.Context, inviteID, actorID int64) error {
	const op = "revoke invite"
	var code string
	err := s.withTx(ctx, op, func(conn *sqlite.Conn) error {
		inv, found, err := inviteByID(conn, inviteID)
		if err != nil {
			return storeErr(op, err)
		}
		if !found {
			return fmt.Errorf("%s: %w: invite %d", op, ErrNotFound, inviteID)
		}
		code = inv.Code
		if err := requireMember(conn, op, inv.ServerID, actorID); err != nil {
			return err
		}
		if inv.Revoked {
			return nil
		}
		now := s.now()
		err = sqlitex.Execute(conn, `UPDATE ServerInvites SET revoked = 1 WHERE id = ?`,
			&sqlitex.ExecOptions{Args: []any{inv.ID}})
		if err != nil {
			return storeErr(op, err)
		}
		return appendAudit(conn, inv.ServerID, actorID, "invite.revoke",
			map[string]any{"code": inv.Code}, now)
	})
	if err != nil {
		return err
	}
	s.logger.Info("invite revoked", "invite", inviteID, "code", code, "by", actorID)
	return nil
}

// InviteByCode returns the invite with the given code, or ErrNotFound.
func (s *Store) InviteByCode(ctx context.Context, code string) (Invite, error) {
	const op = "invite by code"
	var inv Invite
	found := false
	err := s.withConn(ctx, op, func(conn *sqlite.Conn) error {
		var err error
		inv, found, err = inviteByCode(conn, code)
		return storeErr(op, err)
	})
	if err != nil {
		return Invite{}, err
	}
	if !found {
		return Invite{}, fmt.Errorf("%s: %w: code %q", op, ErrNotFound, code)
	}
	return inv, nil
}

// ServerInvites lists a server's invites, newest first.
func (s *Store) ServerInvites(ctx context.Context, serverID int64) ([]Invite, error) {
	const op = "server invites"
	var invites []Invite
	err := s.withConn(ctx, op, func(conn *sqlite.Conn) error {
		return storeErr(op, sqlitex.Execute(conn, `SELECT id, code, server_id, creator_id,
			COALESCE(max_uses, 0), uses, COALESCE(expires_at, ''), temporary, revoked, created_at
			FROM ServerInvites WHERE server_id = ? ORDER BY id DESC`, &sqlitex.ExecOptions{
			Args: []any{serverID},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				invites = append(invites, scanInvite(stmt))
				return nil
			},
		}))
	})
	return invites, err
}

func inviteByCode(conn *sqlite.Conn, code string) (Invite, bool, error) {
	var inv Invite
	found := false
	err := sqlitex.Execute(conn, `SELECT id, code, server_id, creator_id,
		COALESCE(max_uses, 0), uses, COALESCE(expires_at, ''), temporary, revoked, created_at
		FROM ServerInvites WHERE code = ?`, &sqlitex.ExecOptions{
		Args: []any{code},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			found = true
			inv = scanInvite(stmt)
			return nil
		},
	})
	return inv, found, err
}

func inviteByID(conn *sqlite.Conn, id int64) (Invite, bool, error) {
	var inv Invite
	found := false
	err := sqlitex.Execute(conn, `SELECT id, code, server_id, creator_id,
		COALESCE(max_uses, 0), uses, COALESCE(expires_at, ''), temporary, revoked, created_at
		FROM ServerInvites WHERE id = ?`, &sqlitex.ExecOptions{
		Args: []any{id},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			found = true
			inv = scanInvite(stmt)
			return nil
		},
	})
	return inv, found, err
}

func scanInvite(stmt *sqlite.Stmt) Invite {
	return Invite{
		ID:        stmt.ColumnInt64(0),
		Code:      stmt.ColumnText(1),
		ServerID:  stmt.ColumnInt64(2),
		CreatorID: stmt.ColumnInt64(3),
		MaxUses:   stmt.ColumnInt64(4),
		Uses:      stmt.ColumnInt64(5),
		ExpiresAt: stmt.ColumnText(6),
		Temporary: stmt.ColumnInt64(7) != 0,
		Revoked:   stmt.ColumnInt64(8) != 0,
		CreatedAt: stmt.ColumnText(9),
	}
}

func nullableInt(v int64) any {
	if v == 0 {
		return nil
	}
	return v
}

func nullableText(v string) any {
	if v == "" {
		return nil
	}
	return v
}
