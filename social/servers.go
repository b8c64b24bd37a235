// Copyright 2026 The Concord Authors
// SPDX-License-Identifier: Apache-2.0

package social

import (
	"context"
	"fmt"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/concord-chat/concord/realtime"
)

// Server is a named community of channels and members.
type Server struct {
	ID        int64
	OwnerID   int64
	Name      string
	IconURL   string
	CreatedAt string
}

// Channel is a text or voice channel inside a server.
type Channel struct {
	ID        int64
	ServerID  int64
	Name      string
	Type      string
	Topic     string
	CreatedAt string
}

// Channel types.
const (
	ChannelText  = "text"
	ChannelVoice = "voice"
)

// Ban is an active or lifted server ban.
type Ban struct {
	ID         int64
	ServerID   int64
	UserID     int64
	BannedByID int64
	Reason     string
	CreatedAt  string
	ExpiresAt  string
	UnbannedAt string
}

// CreateServer creates a server owned by ownerID, who joins as the
// first member, with a default general text channel. Server names are
// unique; a duplicate is ErrConflict.
func (s *Store) CreateServer(ctx context.Context, ownerID int64, name string) (Server, error) {
	const op = "create server"
	if name == "" {
		return Server{}, fmt.Errorf("%s: %w: server name required", op, ErrConflict)
	}
	var srv Server
	err := s.withTx(ctx, op, func(conn *sqlite.Conn) error {
		ok, err := userExists(conn, ownerID)
		if err != nil {
			return storeErr(op, err)
		}
		if !ok {
			return fmt.Errorf("%s: %w: user %d", op, ErrNotFound, ownerID)
		}

		now := s.now()
		err = sqlitex.Execute(conn, `INSERT INTO Servers (owner_id, name, created_at)
			VALUES (?, ?, ?)`, &sqlitex.ExecOptions{
			Args: []any{ownerID, name, now},
		})
		if uniqueViolation(err) {
			return fmt.Errorf("%s: %w: name %q taken", op, ErrConflict, name)
		}
		if err != nil {
			return storeErr(op, err)
		}
		id := conn.LastInsertRowID()

		err = sqlitex.Execute(conn, `INSERT INTO ServerMembers (server_id, user_id, joined_at)
			VALUES (?, ?, ?)`, &sqlitex.ExecOptions{
			Args: []any{id, ownerID, now},
		})
		if err != nil {
			return storeErr(op, err)
		}
		err = sqlitex.Execute(conn, `INSERT INTO Channels (server_id, name, type, created_at)
			VALUES (?, 'general', ?, ?)`, &sqlitex.ExecOptions{
			Args: []any{id, ChannelText, now},
		})
		if err != nil {
			return storeErr(op, err)
		}

		srv = Server{ID: id, OwnerID: ownerID, Name: name, CreatedAt: now}
		return appendAudit(conn, id, ownerID, "server.create", map[string]any{"name": name}, now)
	})
	if err != nil {
		return Server{}, err
	}
	s.logger.Info("server created", "server", srv.ID, "owner", ownerID, "name", name)
	s.broadcast(realtime.Event{
		Type: realtime.TypeServerCreated,
		Payload: map[string]any{
			"id":      srv.ID,
			"name":    name,
			"ownerId": ownerID,
		},
	})
	return srv, nil
}

// ServerByID returns the server, or ErrNotFound.
func (s *Store) ServerByID(ctx context.Context, id int64) (Server, error) {
	const op = "server by id"
	var srv Server
	found := false
	err := s.withConn(ctx, op, func(conn *sqlite.Conn) error {
		return storeErr(op, sqlitex.Execute(conn, `SELECT id, owner_id, name,
			COALESCE(icon_url, ''), created_at FROM Servers WHERE id = ?`, &sqlitex.ExecOptions{
			Args: []any{id},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				found = true
				srv = Server{
					ID:        stmt.ColumnInt64(0),
					OwnerID:   stmt.ColumnInt64(1),
					Name:      stmt.ColumnText(2),
					IconURL:   stmt.ColumnText(3),
					CreatedAt: stmt.ColumnText(4),
				}
				return nil
			},
		}))
	})
	if err != nil {
		return Server{}, err
	}
	if !found {
		return Server{}, fmt.Errorf("%s: %w: server %d", op, ErrNotFound, id)
	}
	return srv, nil
}

// CreateChannel adds a channel to a server. Only members may create
// channels.
func (s *Store) CreateChannel(ctx context.Context, serverID, actorID int64, name, channelType string) (Channel, error) {
	const op = "create channel"
	if name == "" {
		return Channel{}, fmt.Errorf("%s: %w: channel name required", op, ErrConflict)
	}
	if channelType != ChannelText && channelType != ChannelVoice {
		return Channel{}, fmt.Errorf("%s: %w: unknown channel type %q", op, ErrConflict, channelType)
	}

	var ch Channel
	err := s.withTx(ctx, op, func(conn *sqlite.Conn) error {
		if err := requireMember(conn, op, serverID, actorID); err != nil {
			return err
		}
		now := s.now()
		err := sqlitex.Execute(conn, `INSERT INTO Channels (server_id, name, type, created_at)
			VALUES (?, ?, ?, ?)`, &sqlitex.ExecOptions{
			Args: []any{serverID, name, channelType, now},
		})
		if err != nil {
			return storeErr(op, err)
		}
		ch = Channel{
			ID:        conn.LastInsertRowID(),
			ServerID:  serverID,
			Name:      name,
			Type:      channelType,
			CreatedAt: now,
		}
		return appendAudit(conn, serverID, actorID, "channel.create",
			map[string]any{"channelId": ch.ID, "name": name, "type": channelType}, now)
	})
	if err != nil {
		return Channel{}, err
	}
	s.broadcast(realtime.Event{
		Type: realtime.TypeChannelCreated,
		Payload: map[string]any{
			"id":       ch.ID,
			"serverId": serverID,
			"name":     name,
			"kind":     channelType,
		},
	})
	return ch, nil
}

// ServerChannels lists a server's channels in creation order.
func (s *Store) ServerChannels(ctx context.Context, serverID int64) ([]Channel, error) {
	const op = "server channels"
	var channels []Channel
	err := s.withConn(ctx, op, func(conn *sqlite.Conn) error {
		return storeErr(op, sqlitex.Execute(conn, `SELECT id, server_id, name, type,
			COALESCE(topic, ''), created_at FROM Channels WHERE server_id = ? ORDER BY id`,
			&sqlitex.ExecOptions{
				Args: []any{serverID},
				ResultFunc: func(stmt *sqlite.Stmt) error {
					channels = append(channels, Channel{
						ID:        stmt.ColumnInt64(0),
						ServerID:  stmt.ColumnInt64(1),
						Name:      stmt.ColumnText(2),
						Type:      stmt.ColumnText(3),
						Topic:     stmt.ColumnText(4),
						CreatedAt: stmt.ColumnText(5),
					})
					return nil
				},
			}))
	})
	return channels, err
}

// IsMember reports whether userID belongs to serverID.
func (s *Store) IsMember(ctx context.Context, serverID, userID int64) (bool, error) {
	const op = "is member"
	member := false
	err := s.withConn(ctx, op, func(conn *sqlite.Conn) error {
		var err error
		member, err = isMember(conn, serverID, userID)
		return storeErr(op, err)
	})
	return member, err
}

// ServerMembers lists the user ids of a server's members.
func (s *Store) ServerMembers(ctx context.Context, serverID int64) ([]int64, error) {
	const op = "server members"
	var ids []int64
	err := s.withConn(ctx, op, func(conn *sqlite.Conn) error {
		return storeErr(op, sqlitex.Execute(conn, `SELECT user_id FROM ServerMembers
			WHERE server_id = ? ORDER BY joined_at, user_id`, &sqlitex.ExecOptions{
			Args: []any{serverID},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				ids = append(ids, stmt.ColumnInt64(0))
				return nil
			},
		}))
	})
	return ids, err
}

// AddMember joins targetID to the server directly, without an invite.
// Only existing members may add. An existing membership is
// ErrConflict; an active ban is ErrForbidden.
func (s *Store) AddMember(ctx context.Context, serverID, actorID, targetID int64) error {
	const op = "add member"
	err := s.withTx(ctx, op, func(conn *sqlite.Conn) error {
		if err := requireMember(conn, op, serverID, actorID); err != nil {
			return err
		}
		ok, err := userExists(conn, targetID)
		if err != nil {
			return storeErr(op, err)
		}
		if !ok {
			return fmt.Errorf("%s: %w: user %d", op, ErrNotFound, targetID)
		}
		banned, err := isBanned(conn, serverID, targetID)
		if err != nil {
			return storeErr(op, err)
		}
		if banned {
			return fmt.Errorf("%s: %w: user %d is banned", op, ErrForbidden, targetID)
		}

		err = sqlitex.Execute(conn, `INSERT INTO ServerMembers (server_id, user_id, joined_at)
			VALUES (?, ?, ?)`, &sqlitex.ExecOptions{
			Args: []any{serverID, targetID, s.now()},
		})
		if uniqueViolation(err) {
			return fmt.Errorf("%s: %w: already a member", op, ErrConflict)
		}
		return storeErr(op, err)
	})
	if err != nil {
		return err
	}
	s.logger.Info("member added", "server", serverID, "user", targetID, "by", actorID)
	return nil
}

// RemoveMember kicks targetID from the server. Only members may kick,
// and the owner cannot be removed. Unlike a ban, nothing prevents the
// removed user from rejoining.
func (s *Store) RemoveMember(ctx context.Context, serverID, actorID, targetID int64) error {
	const op = "remove member"
	err := s.withTx(ctx, op, func(conn *sqlite.Conn) error {
		if err := requireMember(conn, op, serverID, actorID); err != nil {
			return err
		}
		var ownerID int64
		err := sqlitex.Execute(conn, `SELECT owner_id FROM Servers WHERE id = ?`,
			&sqlitex.ExecOptions{
				Args: []any{serverID},
				ResultFunc: func(stmt *sqlite.Stmt) error {
					ownerID = stmt.ColumnInt64(0)
					return nil
				},
			})
		if err != nil {
			return storeErr(op, err)
		}
		if targetID == ownerID {
			return fmt.Errorf("%s: %w: cannot remove the owner", op, ErrForbidden)
		}
		member, err := isMember(conn, serverID, targetID)
		if err != nil {
			return storeErr(op, err)
		}
		if !member {
			return fmt.Errorf("%s: %w: user %d is not a member", op, ErrNotFound, targetID)
		}
		err = sqlitex.Execute(conn, `DELETE FROM ServerMembers
			WHERE server_id = ? AND user_id = ?`, &sqlitex.ExecOptions{
			Args: []any{serverID, targetID},
		})
		if err != nil {
			return storeErr(op, err)
		}
		return appendAudit(conn, serverID, actorID, "member.remove",
			map[string]any{"userId": targetID}, s.now())
	})
	if err != nil {
		return err
	}
	s.logger.Info("member removed", "server", serverID, "user", targetID, "by", actorID)
	return nil
}

// LeaveServer removes userID's own membership. The owner cannot
// leave their server. ErrNotFound if not a member.
func (s *Store) LeaveServer(ctx context.Context, serverID, userID int64) error {
	const op = "leave server"
	err := s.withTx(ctx, op, func(conn *sqlite.Conn) error {
		var ownerID int64
		found := false
		err := sqlitex.Execute(conn, `SELECT owner_id FROM Servers WHERE id = ?`,
			&sqlitex.ExecOptions{
				Args: []any{serverID},
				ResultFunc: func(stmt *sqlite.Stmt) error {
					found = true
					ownerID = stmt.ColumnInt64(0)
					return nil
				},
			})
		if err != nil {
			return storeErr(op, err)
		}
		if !found {
			return fmt.Errorf("%s: %w: server %d", op, ErrNotFound, serverID)
		}
		if ownerID == userID {
			return fmt.Errorf("%s: %w: owner cannot leave", op, ErrConflict)
		}
		member, err := isMember(conn, serverID, userID)
		if err != nil {
			return storeErr(op, err)
		}
		if !member {
			return fmt.Errorf("%s: %w: not a member", op, ErrNotFound)
		}
		return storeErr(op, sqlitex.Execute(conn, `DELETE FROM ServerMembers
			WHERE server_id = ? AND user_id = ?`, &sqlitex.ExecOptions{
			Args: []any{serverID, userID},
		}))
	})
	if err != nil {
		return err
	}
	s.logger.Info("member left server", "server", serverID, "user", userID)
	return nil
}

// BanMember bans targetID from the server: the membership row is
// removed and an active ban row recorded, atomically. Only members
// may ban, the owner cannot be banned, and a second active ban on the
// same user is ErrConflict.
func (s *Store) BanMember(ctx context.Context, serverID, actorID, targetID int64, reason string) error {
	const op = "ban member"
	err := s.withTx(ctx, op, func(conn *sqlite.Conn) error {
		if err := requireMember(conn, op, serverID, actorID); err != nil {
			return err
		}
		var ownerID int64
		err := sqlitex.Execute(conn, `SELECT owner_id FROM Servers WHERE id = ?`,
			&sqlitex.ExecOptions{
				Args: []any{serverID},
				ResultFunc: func(stmt *sqlite.Stmt) error {
					ownerID = stmt.ColumnInt64(0)
					return nil
				},
			})
		if err != nil {
			return storeErr(op, err)
		}
		if targetID == ownerID {
			return fmt.Errorf("%s: %w: cannot ban the owner", op, ErrForbidden)
		}
		banned, err := isBanned(conn, serverID, targetID)
		if err != nil {
			return storeErr(op, err)
		}
		if banned {
			return fmt.Errorf("%s: %w: user %d already banned", op, ErrConflict, targetID)
		}

		now := s.now()
		err = sqlitex.Execute(conn, `DELETE FROM ServerMembers
			WHERE server_id = ? AND user_id = ?`, &sqlitex.ExecOptions{
			Args: []any{serverID, targetID},
		})
		if err != nil {
			return storeErr(op, err)
		}
		err = sqlitex.Execute(conn, `INSERT INTO ServerBans (server_id, user_id, banned_by_id, reason, created_at)
			VALUES (?, ?, ?, ?, ?)`, &sqlitex.ExecOptions{
			Args: []any{serverID, targetID, actorID, reason, now},
		})
		if err != nil {
			return storeErr(op, err)
		}
		return appendAudit(conn, serverID, actorID, "member.ban",
			map[string]any{"userId": targetID, "reason": reason}, now)
	})
	if err != nil {
		return err
	}
	s.logger.Info("member banned", "server", serverID, "user", targetID, "by", actorID)
	s.broadcast(realtime.Event{
		Type: realtime.TypeServerBanCreated,
		Payload: map[string]any{
			"serverId": serverID,
			"userId":   targetID,
		},
	})
	return nil
}

// UnbanMember lifts an active ban. ErrNotFound without one.
func (s *Store) UnbanMember(ctx context.Context, serverID, actorID, targetID int64) error {
	const op = "unban member"
	err := s.withTx(ctx, op, func(conn *sqlite.Conn) error {
		if err := requireMember(conn, op, serverID, actorID); err != nil {
			return err
		}
		banned, err := isBanned(conn, serverID, targetID)
		if err != nil {
			return storeErr(op, err)
		}
		if !banned {
			return fmt.Errorf("%s: %w: user %d is not banned", op, ErrNotFound, targetID)
		}
		now := s.now()
		err = sqlitex.Execute(conn, `UPDATE ServerBans SET unbanned_by_id = ?, unbanned_at = ?
			WHERE server_id = ? AND user_id = ? AND unbanned_at IS NULL`, &sqlitex.ExecOptions{
			Args: []any{actorID, now, serverID, targetID},
		})
		if err != nil {
			return storeErr(op, err)
		}
		return appendAudit(conn, serverID, actorID, "member.unban",
			map[string]any{"userId": targetID}, now)
	})
	if err != nil {
		return err
	}
	s.logger.Info("member unbanned", "server", serverID, "user", targetID, "by", actorID)
	return nil
}

// ServerBans lists a server's active bans.
func (s *Store) ServerBans(ctx context.Context, serverID int64) ([]Ban, error) {
	const op = "server bans"
	var bans []Ban
	err := s.withConn(ctx, op, func(conn *sqlite.Conn) error {
		return storeErr(op, sqlitex.Execute(conn, `SELECT id, server_id, user_id, banned_by_id,
			COALESCE(reason, ''), created_at, COALESCE(expires_at, '')
			FROM ServerBans WHERE server_id = ? AND unbanned_at IS NULL ORDER BY id`,
			&sqlitex.ExecOptions{
				Args: []any{serverID},
				ResultFunc: func(stmt *sqlite.Stmt) error {
					bans = append(bans, Ban{
						ID:         stmt.ColumnInt64(0),
						ServerID:   stmt.ColumnInt64(1),
						UserID:     stmt.ColumnInt64(2),
						BannedByID: stmt.ColumnInt64(3),
						Reason:     stmt.ColumnText(4),
						CreatedAt:  stmt.ColumnText(5),
						ExpiresAt:  stmt.ColumnText(6),
					})
					return nil
				},
			}))
	})
	return bans, err
}

func isMember(conn *sqlite.Conn, serverID, userID int64) (bool, error) {
	member := false
	err := sqlitex.Execute(conn, `SELECT 1 FROM ServerMembers
		WHERE server_id = ? AND user_id = ?`, &sqlitex.ExecOptions{
		Args: []any{serverID, userID},
		ResultFunc: func(*sqlite.Stmt) error {
			member = true
			return nil
		},
	})
	return member, err
}

func isBanned(conn *sqlite.Conn, serverID, userID int64) (bool, error) {
	banned := false
	err := sqlitex.Execute(conn, `SELECT 1 FROM ServerBans
		WHERE server_id = ? AND user_id = ? AND unbanned_at IS NULL`, &sqlitex.ExecOptions{
		Args: []any{serverID, userID},
		ResultFunc: func(*sqlite.Stmt) error {
			banned = true
			return nil
		},
	})
	return banned, err
}

// requireMember is the membership gate shared by invite creation,
// channel creation, and moderation.
func requireMember(conn *sqlite.Conn, op string, serverID, userID int64) error {
	member, err := isMember(conn, serverID, userID)
	if err != nil {
		return storeErr(op, err)
	}
	if !member {
		return fmt.Errorf("%s: %w: user %d is not a member of server %d", op, ErrForbidden, userID, serverID)
	}
	return nil
}
