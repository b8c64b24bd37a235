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

// Message is one message inside a server channel.
type Message struct {
	ID        int64
	ChannelID int64
	AuthorID  int64
	Content   string
	CreatedAt string
	EditedAt  string
	ReplyToID int64
}

// CreateMessage appends a message to a server channel and broadcasts
// it to every live connection. The author must be a member of the
// channel's server. replyToID of 0 means no reply target.
func (s *Store) CreateMessage(ctx context.Context, channelID, authorID int64, content string, replyToID int64) (Message, error) {
	const op = "create message"
	if content == "" {
		return Message{}, fmt.Errorf("%s: %w: empty message", op, ErrConflict)
	}

	var msg Message
	err := s.withTx(ctx, op, func(conn *sqlite.Conn) error {
		serverID, found, err := channelServer(conn, channelID)
		if err != nil {
			return storeErr(op, err)
		}
		if !found {
			return fmt.Errorf("%s: %w: channel %d", op, ErrNotFound, channelID)
		}
		if err := requireMember(conn, op, serverID, authorID); err != nil {
			return err
		}

		now := s.now()
		err = sqlitex.Execute(conn, `INSERT INTO Messages (channel_id, author_id, content, created_at, reply_to_id)
			VALUES (?, ?, ?, ?, ?)`, &sqlitex.ExecOptions{
			Args: []any{channelID, authorID, content, now, nullableInt(replyToID)},
		})
		if err != nil {
			return storeErr(op, err)
		}
		msg = Message{
			ID:        conn.LastInsertRowID(),
			ChannelID: channelID,
			AuthorID:  authorID,
			Content:   content,
			CreatedAt: now,
			ReplyToID: replyToID,
		}
		return nil
	})
	if err != nil {
		return Message{}, err
	}

	s.broadcast(realtime.Event{
		Type: realtime.TypeMessageCreated,
		Payload: map[string]any{
			"id":        msg.ID,
			"channelId": channelID,
			"authorId":  authorID,
			"content":   content,
			"createdAt": msg.CreatedAt,
		},
	})
	return msg, nil
}

// EditMessage replaces a message's content. Only the author may edit
// (ErrForbidden otherwise).
func (s *Store) EditMessage(ctx context.Context, messageID, actorID int64, content string) (Message, error) {
	const op = "edit message"
	if content == "" {
		return Message{}, fmt.Errorf("%s: %w: empty message", op, ErrConflict)
	}

	var msg Message
	err := s.withTx(ctx, op, func(conn *sqlite.Conn) error {
		existing, found, err := messageByID(conn, messageID)
		if err != nil {
			return storeErr(op, err)
		}
		if !found {
			return fmt.Errorf("%s: %w: message %d", op, ErrNotFound, messageID)
		}
		if existing.AuthorID != actorID {
			return fmt.Errorf("%s: %w: not the author", op, ErrForbidden)
		}

		now := s.now()
		err = sqlitex.Execute(conn, `UPDATE Messages SET content = ?, edited_at = ? WHERE id = ?`,
			&sqlitex.ExecOptions{Args: []any{content, now, messageID}})
		if err != nil {
			return storeErr(op, err)
		}
		msg = existing
		msg.Content = content
		msg.EditedAt = now
		return nil
	})
	if err != nil {
		return Message{}, err
	}

	s.broadcast(realtime.Event{
		Type: realtime.TypeMessageEdited,
		Payload: map[string]any{
			"id":        msg.ID,
			"channelId": msg.ChannelID,
			"content":   msg.Content,
			"editedAt":  msg.EditedAt,
		},
	})
	return msg, nil
}

// DeleteMessage removes a message. The author or the server owner may
// delete; anyone else is ErrForbidden.
func (s *Store) DeleteMessage(ctx context.Context, messageID, actorID int64) error {
	const op = "delete message"
	var channelID int64
	err := s.withTx(ctx, op, func(conn *sqlite.Conn) error {
		existing, found, err := messageByID(conn, messageID)
		if err != nil {
			return storeErr(op, err)
		}
		if !found {
			return fmt.Errorf("%s: %w: message %d", op, ErrNotFound, messageID)
		}
		channelID = existing.ChannelID

		if existing.AuthorID != actorID {
			serverID, _, err := channelServer(conn, existing.ChannelID)
			if err != nil {
				return storeErr(op, err)
			}
			var ownerID int64
			err = sqlitex.Execute(conn, `SELECT owner_id FROM Servers WHERE id = ?`,
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
			if actorID != ownerID {
				return fmt.Errorf("%s: %w: not the author or owner", op, ErrForbidden)
			}
		}

		// Detach replies before removing the parent.
		err = sqlitex.Execute(conn, `UPDATE Messages SET reply_to_id = NULL WHERE reply_to_id = ?`,
			&sqlitex.ExecOptions{Args: []any{messageID}})
		if err != nil {
			return storeErr(op, err)
		}
		return storeErr(op, sqlitex.Execute(conn, `DELETE FROM Messages WHERE id = ?`,
			&sqlitex.ExecOptions{Args: []any{messageID}}))
	})
	if err != nil {
		return err
	}

	s.broadcast(realtime.Event{
		Type: realtime.TypeMessageDeleted,
		Payload: map[string]any{
			"id":        messageID,
			"channelId": channelID,
		},
	})
	return nil
}

// ChannelMessages returns a channel's messages oldest first, capped
// at limit (0 means no cap).
func (s *Store) ChannelMessages(ctx context.Context, channelID int64, limit int) ([]Message, error) {
	const op = "channel messages"
	query := `SELECT id, channel_id, author_id, content, created_at,
		COALESCE(edited_at, ''), COALESCE(reply_to_id, 0)
		FROM Messages WHERE channel_id = ? ORDER BY created_at, id`
	args := []any{channelID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	var msgs []Message
	err := s.withConn(ctx, op, func(conn *sqlite.Conn) error {
		return storeErr(op, sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
			Args: args,
			ResultFunc: func(stmt *sqlite.Stmt) error {
				msgs = append(msgs, scanMessage(stmt))
				return nil
			},
		}))
	})
	return msgs, err
}

func messageByID(conn *sqlite.Conn, id int64) (Message, bool, error) {
	var msg Message
	found := false
	err := sqlitex.Execute(conn, `SELECT id, channel_id, author_id, content, created_at,
		COALESCE(edited_at, ''), COALESCE(reply_to_id, 0) FROM Messages WHERE id = ?`,
		&sqlitex.ExecOptions{
			Args: []any{id},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				found = true
				msg = scanMessage(stmt)
				return nil
			},
		})
	return msg, found, err
}

func scanMessage(stmt *sqlite.Stmt) Message {
	return Message{
		ID:        stmt.ColumnInt64(0),
		ChannelID: stmt.ColumnInt64(1),
		AuthorID:  stmt.ColumnInt64(2),
		Content:   stmt.ColumnText(3),
		CreatedAt: stmt.ColumnText(4),
		EditedAt:  stmt.ColumnText(5),
		ReplyToID: stmt.ColumnInt64(6),
	}
}

func channelServer(conn *sqlite.Conn, channelID int64) (int64, bool, error) {
	var serverID int64
	found := false
	err := sqlitex.Execute(conn, `SELECT server_id FROM Channels WHERE id = ?`,
		&sqlitex.ExecOptions{
			Args: []any{channelID},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				found = true
				serverID = stmt.ColumnInt64(0)
				return nil
			},
		})
	return serverID, found, err
}
