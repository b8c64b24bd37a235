// Copyright 2026 The Concord Authors
// SPDX-License-Identifier: Apache-2.0

package social

import (
	"context"
	"fmt"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

// User is a registered account.
type User struct {
	ID           int64
	Username     string
	Email        string
	PasswordHash string
	AvatarURL    string
	CreatedAt    string
}

// CreateUser registers a new account. Username and email are unique;
// a duplicate of either returns ErrConflict.
func (s *Store) CreateUser(ctx context.Context, username, email, passwordHash string) (User, error) {
	const op = "create user"
	if username == "" || email == "" {
		return User{}, fmt.Errorf("%s: %w: username and email required", op, ErrConflict)
	}
	var user User
	err := s.withTx(ctx, op, func(conn *sqlite.Conn) error {
		now := s.now()
		err := sqlitex.Execute(conn, `INSERT INTO Users (username, email, password_hash, created_at)
			VALUES (?, ?, ?, ?)`, &sqlitex.ExecOptions{
			Args: []any{username, email, passwordHash, now},
		})
		if uniqueViolation(err) {
			return fmt.Errorf("%s: %w: username or email already taken", op, ErrConflict)
		}
		if err != nil {
			return storeErr(op, err)
		}
		user = User{
			ID:           conn.LastInsertRowID(),
			Username:     username,
			Email:        email,
			PasswordHash: passwordHash,
			CreatedAt:    now,
		}
		return nil
	})
	if err != nil {
		return User{}, err
	}
	s.logger.Info("user created", "user", user.ID, "username", username)
	return user, nil
}

// UserByID returns the user with the given id, or ErrNotFound.
func (s *Store) UserByID(ctx context.Context, id int64) (User, error) {
	const op = "user by id"
	var user User
	found := false
	err := s.withConn(ctx, op, func(conn *sqlite.Conn) error {
		err := sqlitex.Execute(conn, `SELECT id, username, email, password_hash,
			COALESCE(avatar_url, ''), created_at FROM Users WHERE id = ?`, &sqlitex.ExecOptions{
			Args: []any{id},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				found = true
				user = scanUser(stmt)
				return nil
			},
		})
		return storeErr(op, err)
	})
	if err != nil {
		return User{}, err
	}
	if !found {
		return User{}, fmt.Errorf("%s: %w: user %d", op, ErrNotFound, id)
	}
	return user, nil
}

// UserByUsername returns the user with the given username, or
// ErrNotFound.
func (s *Store) UserByUsername(ctx context.Context, username string) (User, error) {
	const op = "user by username"
	var user User
	found := false
	err := s.withConn(ctx, op, func(conn *sqlite.Conn) error {
		err := sqlitex.Execute(conn, `SELECT id, username, email, password_hash,
			COALESCE(avatar_url, ''), created_at FROM Users WHERE username = ?`, &sqlitex.ExecOptions{
			Args: []any{username},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				found = true
				user = scanUser(stmt)
				return nil
			},
		})
		return storeErr(op, err)
	})
	if err != nil {
		return User{}, err
	}
	if !found {
		return User{}, fmt.Errorf("%s: %w: user %q", op, ErrNotFound, username)
	}
	return user, nil
}

// Users lists every account, ordered by username.
func (s *Store) Users(ctx context.Context) ([]User, error) {
	const op = "list users"
	var users []User
	err := s.withConn(ctx, op, func(conn *sqlite.Conn) error {
		return storeErr(op, sqlitex.Execute(conn, `SELECT id, username, email, password_hash,
			COALESCE(avatar_url, ''), created_at FROM Users ORDER BY username`, &sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				users = append(users, scanUser(stmt))
				return nil
			},
		}))
	})
	return users, err
}

func scanUser(stmt *sqlite.Stmt) User {
	return User{
		ID:           stmt.ColumnInt64(0),
		Username:     stmt.ColumnText(1),
		Email:        stmt.ColumnText(2),
		PasswordHash: stmt.ColumnText(3),
		AvatarURL:    stmt.ColumnText(4),
		CreatedAt:    stmt.ColumnText(5),
	}
}

// userExists reports whether the user id exists. Callers hold a
// connection already.
func userExists(conn *sqlite.Conn, id int64) (bool, error) {
	exists := false
	err := sqlitex.Execute(conn, `SELECT 1 FROM Users WHERE id = ?`, &sqlitex.ExecOptions{
		Args: []any{id},
		ResultFunc: func(*sqlite.Stmt) error {
			exists = true
			return nil
		},
	})
	return exists, err
}
