// Copyright 2026 The Concord Authors
// SPDX-License-Identifier: Apache-2.0

package social

import (
	"context"
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/mr-tron/base58"
	"github.com/zeebo/blake3"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/concord-chat/concord/realtime"
)

// DMChannel is a direct-message conversation. Channels opened through
// GetOrCreateDMChannel are keyed by their exact participant set, so
// at most one exists per set. Explicitly created group channels have
// no key and may repeat a set.
type DMChannel struct {
	ID           int64
	IsGroup      bool
	Participants []int64
	CreatedAt    string
}

// DMMessage is one message inside a DM channel.
type DMMessage struct {
	ID          int64
	DMChannelID int64
	AuthorID    int64
	Content     string
	CreatedAt   string
	EditedAt    string
}

// participantKey derives the canonical identity of a non-group DM
// from its participant set: the blake3 hash of the sorted ids,
// base58-encoded. Order of the inputs never matters.
func participantKey(userIDs []int64) string {
	sorted := make([]int64, len(userIDs))
	copy(sorted, userIDs)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	h := blake3.New()
	var buf [8]byte
	for _, id := range sorted {
		binary.BigEndian.PutUint64(buf[:], uint64(id))
		h.Write(buf[:])
	}
	return base58.Encode(h.Sum(nil))
}

// GetOrCreateDMChannel returns the unique channel for the exact
// participant set, creating it on first use. The author is always
// part of the set whether or not they appear in participantIDs.
// Channels with more than two participants are marked as group.
//
// Concurrent first calls for the same set converge on a single
// channel: the participant key carries a unique index, and an insert
// that loses the race re-reads the winner inside its own transaction.
// A set with fewer than two distinct users is ErrConflict.
func (s *Store) GetOrCreateDMChannel(ctx context.Context, authorID int64, participantIDs []int64) (DMChannel, error) {
	const op = "get or create dm channel"

	seen := map[int64]struct{}{authorID: {}}
	members := []int64{authorID}
	for _, id := range participantIDs {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		members = append(members, id)
	}
	if len(members) < 2 {
		return DMChannel{}, fmt.Errorf("%s: %w: need at least one other participant", op, ErrConflict)
	}

	key := participantKey(members)
	isGroup := len(members) > 2

	var ch DMChannel
	err := s.withTx(ctx, op, func(conn *sqlite.Conn) error {
		for _, id := range members {
			ok, err := userExists(conn, id)
			if err != nil {
				return storeErr(op, err)
			}
			if !ok {
				return fmt.Errorf("%s: %w: user %d", op, ErrNotFound, id)
			}
		}

		existing, found, err := dmChannelByKey(conn, key)
		if err != nil {
			return storeErr(op, err)
		}
		if found {
			ch = existing
			return nil
		}

		now := s.now()
		err = sqlitex.Execute(conn, `INSERT INTO DMChannels (is_group, participant_key, created_at)
			VALUES (?, ?, ?)`, &sqlitex.ExecOptions{
			Args: []any{isGroup, key, now},
		})
		if uniqueViolation(err) {
			// Lost the creation race. The winner's row is committed,
			// so the key lookup now succeeds.
			existing, found, err := dmChannelByKey(conn, key)
			if err != nil {
				return storeErr(op, err)
			}
			if !found {
				return fmt.Errorf("%s: channel vanished after conflict", op)
			}
			ch = existing
			return nil
		}
		if err != nil {
			return storeErr(op, err)
		}

		id := conn.LastInsertRowID()
		for _, uid := range members {
			err := sqlitex.Execute(conn, `INSERT INTO DMParticipants (dm_channel_id, user_id)
				VALUES (?, ?)`, &sqlitex.ExecOptions{
				Args: []any{id, uid},
			})
			if err != nil {
				return storeErr(op, err)
			}
		}
		ch = DMChannel{
			ID:           id,
			IsGroup:      isGroup,
			Participants: members,
			CreatedAt:    now,
		}
		return nil
	})
	if err != nil {
		return DMChannel{}, err
	}
	return ch, nil
}

// CreateGroupDMChannel creates a new group conversation with the
// given members. Group channels are never deduplicated; every call
// creates a fresh channel. At least two distinct members are
// required, duplicates are collapsed.
func (s *Store) CreateGroupDMChannel(ctx context.Context, memberIDs []int64) (DMChannel, error) {
	const op = "create group dm channel"

	seen := make(map[int64]struct{}, len(memberIDs))
	members := make([]int64, 0, len(memberIDs))
	for _, id := range memberIDs {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		members = append(members, id)
	}
	if len(members) < 2 {
		return DMChannel{}, fmt.Errorf("%s: %w: need at least two members", op, ErrConflict)
	}

	var ch DMChannel
	err := s.withTx(ctx, op, func(conn *sqlite.Conn) error {
		for _, id := range members {
			ok, err := userExists(conn, id)
			if err != nil {
				return storeErr(op, err)
			}
			if !ok {
				return fmt.Errorf("%s: %w: user %d", op, ErrNotFound, id)
			}
		}

		now := s.now()
		err := sqlitex.Execute(conn, `INSERT INTO DMChannels (is_group, participant_key, created_at)
			VALUES (1, NULL, ?)`, &sqlitex.ExecOptions{
			Args: []any{now},
		})
		if err != nil {
			return storeErr(op, err)
		}
		id := conn.LastInsertRowID()
		for _, uid := range members {
			err := sqlitex.Execute(conn, `INSERT INTO DMParticipants (dm_channel_id, user_id)
				VALUES (?, ?)`, &sqlitex.ExecOptions{
				Args: []any{id, uid},
			})
			if err != nil {
				return storeErr(op, err)
			}
		}
		ch = DMChannel{
			ID:           id,
			IsGroup:      true,
			Participants: members,
			CreatedAt:    now,
		}
		return nil
	})
	if err != nil {
		return DMChannel{}, err
	}
	s.logger.Info("group dm channel created", "channel", ch.ID, "members", len(members))
	return ch, nil
}

// DMChannelByID returns the channel and its participants.
func (s *Store) DMChannelByID(ctx context.Context, id int64) (DMChannel, error) {
	const op = "dm channel by id"
	var ch DMChannel
	found := false
	err := s.withConn(ctx, op, func(conn *sqlite.Conn) error {
		err := sqlitex.Execute(conn, `SELECT id, is_group, created_at
			FROM DMChannels WHERE id = ?`, &sqlitex.ExecOptions{
			Args: []any{id},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				found = true
				ch = DMChannel{
					ID:        stmt.ColumnInt64(0),
					IsGroup:   stmt.ColumnInt64(1) != 0,
					CreatedAt: stmt.ColumnText(2),
				}
				return nil
			},
		})
		if err != nil {
			return storeErr(op, err)
		}
		if !found {
			return fmt.Errorf("%s: %w: channel %d", op, ErrNotFound, id)
		}
		participants, err := dmParticipants(conn, id)
		if err != nil {
			return storeErr(op, err)
		}
		ch.Participants = participants
		return nil
	})
	if err != nil {
		return DMChannel{}, err
	}
	return ch, nil
}

// SendDirectMessage appends a message to a DM channel the author
// participates in and relays it to each other participant's live
// connections. A non-participant author is ErrForbidden.
func (s *Store) SendDirectMessage(ctx context.Context, channelID, authorID int64, content string) (DMMessage, error) {
	const op = "send direct message"
	if content == "" {
		return DMMessage{}, fmt.Errorf("%s: %w: empty message", op, ErrConflict)
	}

	var msg DMMessage
	var recipients []int64
	err := s.withTx(ctx, op, func(conn *sqlite.Conn) error {
		participants, err := dmParticipants(conn, channelID)
		if err != nil {
			return storeErr(op, err)
		}
		if len(participants) == 0 {
			return fmt.Errorf("%s: %w: channel %d", op, ErrNotFound, channelID)
		}
		isParticipant := false
		for _, id := range participants {
			if id == authorID {
				isParticipant = true
			} else {
				recipients = append(recipients, id)
			}
		}
		if !isParticipant {
			return fmt.Errorf("%s: %w: not a participant", op, ErrForbidden)
		}

		now := s.now()
		err = sqlitex.Execute(conn, `INSERT INTO DMMessages (dm_channel_id, author_id, content, created_at)
			VALUES (?, ?, ?, ?)`, &sqlitex.ExecOptions{
			Args: []any{channelID, authorID, content, now},
		})
		if err != nil {
			return storeErr(op, err)
		}
		msg = DMMessage{
			ID:          conn.LastInsertRowID(),
			DMChannelID: channelID,
			AuthorID:    authorID,
			Content:     content,
			CreatedAt:   now,
		}
		return nil
	})
	if err != nil {
		return DMMessage{}, err
	}

	for _, id := range recipients {
		s.relay(realtime.Event{
			Type: realtime.TypeDMMessageCreated,
			Payload: map[string]any{
				"id":        msg.ID,
				"channelId": channelID,
				"authorId":  authorID,
				"content":   content,
				"createdAt": msg.CreatedAt,
			},
		}, id)
	}
	return msg, nil
}

// DMChannelMessages returns the channel's messages oldest first,
// capped at limit (0 means no cap).
func (s *Store) DMChannelMessages(ctx context.Context, channelID int64, limit int) ([]DMMessage, error) {
	const op = "dm channel messages"
	query := `SELECT id, dm_channel_id, author_id, content, created_at, COALESCE(edited_at, '')
		FROM DMMessages WHERE dm_channel_id = ? ORDER BY created_at, id`
	args := []any{channelID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	var msgs []DMMessage
	err := s.withConn(ctx, op, func(conn *sqlite.Conn) error {
		return storeErr(op, sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
			Args: args,
			ResultFunc: func(stmt *sqlite.Stmt) error {
				msgs = append(msgs, DMMessage{
					ID:          stmt.ColumnInt64(0),
					DMChannelID: stmt.ColumnInt64(1),
					AuthorID:    stmt.ColumnInt64(2),
					Content:     stmt.ColumnText(3),
					CreatedAt:   stmt.ColumnText(4),
					EditedAt:    stmt.ColumnText(5),
				})
				return nil
			},
		}))
	})
	return msgs, err
}

// UserDMChannels lists every DM channel the user participates in.
func (s *Store) UserDMChannels(ctx context.Context, userID int64) ([]DMChannel, error) {
	const op = "user dm channels"
	var channels []DMChannel
	err := s.withConn(ctx, op, func(conn *sqlite.Conn) error {
		err := sqlitex.Execute(conn, `SELECT c.id, c.is_group, c.created_at
			FROM DMChannels c JOIN DMParticipants p ON p.dm_channel_id = c.id
			WHERE p.user_id = ? ORDER BY c.id`, &sqlitex.ExecOptions{
			Args: []any{userID},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				channels = append(channels, DMChannel{
					ID:        stmt.ColumnInt64(0),
					IsGroup:   stmt.ColumnInt64(1) != 0,
					CreatedAt: stmt.ColumnText(2),
				})
				return nil
			},
		})
		if err != nil {
			return storeErr(op, err)
		}
		for i := range channels {
			participants, err := dmParticipants(conn, channels[i].ID)
			if err != nil {
				return storeErr(op, err)
			}
			channels[i].Participants = participants
		}
		return nil
	})
	return channels, err
}

func dmChannelByKey(conn *sqlite.Conn, key string) (DMChannel, bool, error) {
	var ch DMChannel
	found := false
	err := sqlitex.Execute(conn, `SELECT id, is_group, created_at
		FROM DMChannels WHERE participant_key = ?`, &sqlitex.ExecOptions{
		Args: []any{key},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			found = true
			ch = DMChannel{
				ID:        stmt.ColumnInt64(0),
				IsGroup:   stmt.ColumnInt64(1) != 0,
				CreatedAt: stmt.ColumnText(2),
			}
			return nil
		},
	})
	if err != nil || !found {
		return DMChannel{}, found, err
	}
	participants, err := dmParticipants(conn, ch.ID)
	if err != nil {
		return DMChannel{}, false, err
	}
	ch.Participants = participants
	return ch, true, nil
}

func dmParticipants(conn *sqlite.Conn, channelID int64) ([]int64, error) {
	var ids []int64
	err := sqlitex.Execute(conn, `SELECT user_id FROM DMParticipants
		WHERE dm_channel_id = ? ORDER BY user_id`, &sqlitex.ExecOptions{
		Args: []any{channelID},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			ids = append(ids, stmt.ColumnInt64(0))
			return nil
		},
	})
	return ids, err
}
