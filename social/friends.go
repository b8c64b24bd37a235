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

// Friend statuses stored in the Friends table. Rows are directed:
// a pending request is one row (requester -> recipient), an accepted
// friendship is a mirrored pair, and a block is one row in the
// blocker's direction.
const (
	FriendPending  = "pending"
	FriendAccepted = "accepted"
	FriendBlocked  = "blocked"
)

// FriendEdge is one directed row of the friend graph.
type FriendEdge struct {
	UserID    int64
	FriendID  int64
	Status    string
	UpdatedAt string
}

// SendFriendRequest creates a pending request from userID to friendID.
//
// If a pending request already exists in the opposite direction, the
// two users clearly both want the friendship, so the mirror request is
// treated as acceptance: both rows become accepted atomically. Any
// other existing edge between the pair (duplicate pending, already
// accepted, either direction blocked) is ErrConflict. A self-request
// is ErrConflict.
func (s *Store) SendFriendRequest(ctx context.Context, userID, friendID int64) error {
	const op = "send friend request"
	if userID == friendID {
		return fmt.Errorf("%s: %w: cannot friend yourself", op, ErrConflict)
	}

	accepted := false
	err := s.withTx(ctx, op, func(conn *sqlite.Conn) error {
		for _, id := range []int64{userID, friendID} {
			ok, err := userExists(conn, id)
			if err != nil {
				return storeErr(op, err)
			}
			if !ok {
				return fmt.Errorf("%s: %w: user %d", op, ErrNotFound, id)
			}
		}

		forward, fwdOK, err := friendEdge(conn, userID, friendID)
		if err != nil {
			return storeErr(op, err)
		}
		reverse, revOK, err := friendEdge(conn, friendID, userID)
		if err != nil {
			return storeErr(op, err)
		}

		if fwdOK {
			return fmt.Errorf("%s: %w: edge already %s", op, ErrConflict, forward.Status)
		}
		if revOK && reverse.Status != FriendPending {
			return fmt.Errorf("%s: %w: edge already %s", op, ErrConflict, reverse.Status)
		}

		now := s.now()
		if revOK {
			// Mirror of an existing pending request: auto-accept both
			// directions.
			accepted = true
			err := sqlitex.Execute(conn, `UPDATE Friends SET status = ?, updated_at = ?
				WHERE user_id = ? AND friend_id = ?`, &sqlitex.ExecOptions{
				Args: []any{FriendAccepted, now, friendID, userID},
			})
			if err != nil {
				return storeErr(op, err)
			}
			return insertFriendEdge(conn, op, userID, friendID, FriendAccepted, now)
		}
		return insertFriendEdge(conn, op, userID, friendID, FriendPending, now)
	})
	if err != nil {
		return err
	}

	if accepted {
		s.logger.Info("friend request auto-accepted", "user", userID, "friend", friendID)
		s.relay(realtime.Event{
			Type:    realtime.TypeFriendRequestAccept,
			Payload: map[string]any{"userId": userID},
		}, friendID)
	} else {
		s.logger.Info("friend request sent", "user", userID, "friend", friendID)
		s.relay(realtime.Event{
			Type:    realtime.TypeFriendRequestCreated,
			Payload: map[string]any{"userId": userID},
		}, friendID)
	}
	return nil
}

// AcceptFriendRequest accepts the pending request that requesterID
// sent to userID. The pending row flips to accepted and the mirror row
// is created, atomically. Without a pending request in that exact
// direction the call is ErrNotFound.
func (s *Store) AcceptFriendRequest(ctx context.Context, userID, requesterID int64) error {
	const op = "accept friend request"
	err := s.withTx(ctx, op, func(conn *sqlite.Conn) error {
		edge, ok, err := friendEdge(conn, requesterID, userID)
		if err != nil {
			return storeErr(op, err)
		}
		if !ok || edge.Status != FriendPending {
			return fmt.Errorf("%s: %w: no pending request from %d", op, ErrNotFound, requesterID)
		}

		now := s.now()
		err = sqlitex.Execute(conn, `UPDATE Friends SET status = ?, updated_at = ?
			WHERE user_id = ? AND friend_id = ?`, &sqlitex.ExecOptions{
			Args: []any{FriendAccepted, now, requesterID, userID},
		})
		if err != nil {
			return storeErr(op, err)
		}
		return insertFriendEdge(conn, op, userID, requesterID, FriendAccepted, now)
	})
	if err != nil {
		return err
	}
	s.logger.Info("friend request accepted", "user", userID, "requester", requesterID)
	s.relay(realtime.Event{
		Type:    realtime.TypeFriendRequestAccept,
		Payload: map[string]any{"userId": userID},
	}, requesterID)
	return nil
}

// RespondToFriendRequest answers the pending request requesterID sent
// to userID: accepted when accept is true, discarded otherwise.
func (s *Store) RespondToFriendRequest(ctx context.Context, userID, requesterID int64, accept bool) error {
	if accept {
		return s.AcceptFriendRequest(ctx, userID, requesterID)
	}
	return s.RejectFriendRequest(ctx, userID, requesterID)
}

// RejectFriendRequest discards the pending request that requesterID
// sent to userID. Without a pending request in that direction the call
// is ErrNotFound.
func (s *Store) RejectFriendRequest(ctx context.Context, userID, requesterID int64) error {
	const op = "reject friend request"
	err := s.withTx(ctx, op, func(conn *sqlite.Conn) error {
		edge, ok, err := friendEdge(conn, requesterID, userID)
		if err != nil {
			return storeErr(op, err)
		}
		if !ok || edge.Status != FriendPending {
			return fmt.Errorf("%s: %w: no pending request from %d", op, ErrNotFound, requesterID)
		}
		return storeErr(op, sqlitex.Execute(conn, `DELETE FROM Friends
			WHERE user_id = ? AND friend_id = ?`, &sqlitex.ExecOptions{
			Args: []any{requesterID, userID},
		}))
	})
	if err != nil {
		return err
	}
	s.logger.Info("friend request rejected", "user", userID, "requester", requesterID)
	return nil
}

// RemoveFriend deletes an accepted friendship in both directions.
// The pair must currently be accepted; anything else is ErrNotFound.
func (s *Store) RemoveFriend(ctx context.Context, userID, friendID int64) error {
	const op = "remove friend"
	err := s.withTx(ctx, op, func(conn *sqlite.Conn) error {
		edge, ok, err := friendEdge(conn, userID, friendID)
		if err != nil {
			return storeErr(op, err)
		}
		if !ok || edge.Status != FriendAccepted {
			return fmt.Errorf("%s: %w: not friends with %d", op, ErrNotFound, friendID)
		}
		return storeErr(op, sqlitex.Execute(conn, `DELETE FROM Friends
			WHERE (user_id = ? AND friend_id = ?) OR (user_id = ? AND friend_id = ?)`,
			&sqlitex.ExecOptions{
				Args: []any{userID, friendID, friendID, userID},
			}))
	})
	if err != nil {
		return err
	}
	s.logger.Info("friend removed", "user", userID, "friend", friendID)
	return nil
}

// BlockUser records a one-directional block from userID toward
// targetID. Any existing edges between the pair, in either direction,
// are replaced by the single block row, so blocking tears down a
// friendship or a pending request as a side effect. Blocking a user
// you already block is ErrConflict; a block in the opposite direction
// does not prevent a new one.
func (s *Store) BlockUser(ctx context.Context, userID, targetID int64) error {
	const op = "block user"
	if userID == targetID {
		return fmt.Errorf("%s: %w: cannot block yourself", op, ErrConflict)
	}
	err := s.withTx(ctx, op, func(conn *sqlite.Conn) error {
		ok, err := userExists(conn, targetID)
		if err != nil {
			return storeErr(op, err)
		}
		if !ok {
			return fmt.Errorf("%s: %w: user %d", op, ErrNotFound, targetID)
		}

		edge, found, err := friendEdge(conn, userID, targetID)
		if err != nil {
			return storeErr(op, err)
		}
		if found && edge.Status == FriendBlocked {
			return fmt.Errorf("%s: %w: already blocked", op, ErrConflict)
		}

		// Clear the forward edge and any non-block reverse edge, then
		// write the block. A reverse block belongs to the other user
		// and stays.
		err = sqlitex.Execute(conn, `DELETE FROM Friends
			WHERE (user_id = ? AND friend_id = ?)
			   OR (user_id = ? AND friend_id = ? AND status != ?)`,
			&sqlitex.ExecOptions{
				Args: []any{userID, targetID, targetID, userID, FriendBlocked},
			})
		if err != nil {
			return storeErr(op, err)
		}
		return insertFriendEdge(conn, op, userID, targetID, FriendBlocked, s.now())
	})
	if err != nil {
		return err
	}
	s.logger.Info("user blocked", "user", userID, "target", targetID)
	return nil
}

// UnblockUser removes userID's block on targetID. ErrNotFound if no
// such block exists.
func (s *Store) UnblockUser(ctx context.Context, userID, targetID int64) error {
	const op = "unblock user"
	err := s.withTx(ctx, op, func(conn *sqlite.Conn) error {
		edge, ok, err := friendEdge(conn, userID, targetID)
		if err != nil {
			return storeErr(op, err)
		}
		if !ok || edge.Status != FriendBlocked {
			return fmt.Errorf("%s: %w: %d is not blocked", op, ErrNotFound, targetID)
		}
		return storeErr(op, sqlitex.Execute(conn, `DELETE FROM Friends
			WHERE user_id = ? AND friend_id = ?`, &sqlitex.ExecOptions{
			Args: []any{userID, targetID},
		}))
	})
	if err != nil {
		return err
	}
	s.logger.Info("user unblocked", "user", userID, "target", targetID)
	return nil
}

// Friends lists the users userID has an accepted friendship with.
func (s *Store) Friends(ctx context.Context, userID int64) ([]User, error) {
	return s.friendUsers(ctx, "list friends", userID, FriendAccepted)
}

// PendingRequests lists the users with an outstanding request to
// userID (incoming, not yet answered).
func (s *Store) PendingRequests(ctx context.Context, userID int64) ([]User, error) {
	const op = "list pending requests"
	var users []User
	err := s.withConn(ctx, op, func(conn *sqlite.Conn) error {
		return storeErr(op, sqlitex.Execute(conn, `SELECT u.id, u.username, u.email,
			u.password_hash, COALESCE(u.avatar_url, ''), u.created_at
			FROM Friends f JOIN Users u ON u.id = f.user_id
			WHERE f.friend_id = ? AND f.status = ?
			ORDER BY f.updated_at`, &sqlitex.ExecOptions{
			Args: []any{userID, FriendPending},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				users = append(users, scanUser(stmt))
				return nil
			},
		}))
	})
	return users, err
}

// BlockedUsers lists the users userID has blocked.
func (s *Store) BlockedUsers(ctx context.Context, userID int64) ([]User, error) {
	return s.friendUsers(ctx, "list blocked users", userID, FriendBlocked)
}

func (s *Store) friendUsers(ctx context.Context, op string, userID int64, status string) ([]User, error) {
	var users []User
	err := s.withConn(ctx, op, func(conn *sqlite.Conn) error {
		return storeErr(op, sqlitex.Execute(conn, `SELECT u.id, u.username, u.email,
			u.password_hash, COALESCE(u.avatar_url, ''), u.created_at
			FROM Friends f JOIN Users u ON u.id = f.friend_id
			WHERE f.user_id = ? AND f.status = ?
			ORDER BY u.username`, &sqlitex.ExecOptions{
			Args: []any{userID, status},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				users = append(users, scanUser(stmt))
				return nil
			},
		}))
	})
	return users, err
}

// friendEdge reads the directed edge user -> friend.
func friendEdge(conn *sqlite.Conn, userID, friendID int64) (FriendEdge, bool, error) {
	var edge FriendEdge
	found := false
	err := sqlitex.Execute(conn, `SELECT user_id, friend_id, status, updated_at
		FROM Friends WHERE user_id = ? AND friend_id = ?`, &sqlitex.ExecOptions{
		Args: []any{userID, friendID},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			found = true
			edge = FriendEdge{
				UserID:    stmt.ColumnInt64(0),
				FriendID:  stmt.ColumnInt64(1),
				Status:    stmt.ColumnText(2),
				UpdatedAt: stmt.ColumnText(3),
			}
			return nil
		},
	})
	return edge, found, err
}

func insertFriendEdge(conn *sqlite.Conn, op string, userID, friendID int64, status, now string) error {
	err := sqlitex.Execute(conn, `INSERT INTO Friends (user_id, friend_id, status, updated_at)
		VALUES (?, ?, ?, ?)`, &sqlitex.ExecOptions{
		Args: []any{userID, friendID, status, now},
	})
	if uniqueViolation(err) {
		return fmt.Errorf("%s: %w: edge exists", op, ErrConflict)
	}
	return storeErr(op, err)
}
