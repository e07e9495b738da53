package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when a user name or key does not exist.
	ErrNotFound = errors.New("store: user not found")

	// ErrNotBound is returned when a chat identity has no binding.
	ErrNotBound = errors.New("store: chat identity not bound")
)

// User is one surveyed person on the roster.
//
// Overlap is NULL until the person replies; Valid with Bool=true means they
// reported an overlap, Bool=false means they reported none.
type User struct {
	Key       string
	Name      string
	Overlap   sql.NullBool
	CreatedAt time.Time
}

// Admin is an operator allowed to run privileged commands.
type Admin struct {
	Key        string
	ChatUserID string
	CreatedAt  time.Time
}

// IsAdmin reports whether chatUserID is a registered operator.
func (s *Store) IsAdmin(ctx context.Context, chatUserID string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM admins WHERE chat_user_id = ?`, chatUserID,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check admin: %w", err)
	}
	return n > 0, nil
}

// AddAdmin registers chatUserID as an operator. Registering an existing
// operator is a no-op; the UNIQUE constraint makes concurrent calls safe.
func (s *Store) AddAdmin(ctx context.Context, chatUserID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO admins (key, chat_user_id, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT(chat_user_id) DO NOTHING
	`, uuid.NewString(), chatUserID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to add admin: %w", err)
	}
	return nil
}

// ListAdmins returns all operators in registration order.
func (s *Store) ListAdmins(ctx context.Context) ([]*Admin, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key, chat_user_id, created_at FROM admins ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("failed to list admins: %w", err)
	}
	defer rows.Close()

	var admins []*Admin
	for rows.Next() {
		a := &Admin{}
		if err := rows.Scan(&a.Key, &a.ChatUserID, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan admin: %w", err)
		}
		admins = append(admins, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list admins: %w", err)
	}
	return admins, nil
}

// ListUsers returns every user in insertion order.
func (s *Store) ListUsers(ctx context.Context) ([]*User, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key, name, overlap, created_at FROM users ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		u := &User{}
		if err := rows.Scan(&u.Key, &u.Name, &u.Overlap, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return users, nil
}

// CountUsers returns the roster size.
func (s *Store) CountUsers(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return n, nil
}

// FindUserByName returns the key of the user called name, or ErrNotFound.
func (s *Store) FindUserByName(ctx context.Context, name string) (string, error) {
	var key string
	err := s.db.QueryRowContext(ctx, `SELECT key FROM users WHERE name = ?`, name).Scan(&key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return "", fmt.Errorf("failed to find user: %w", err)
	}
	return key, nil
}

// AddUser puts name on the roster. Adding an existing name is a no-op.
func (s *Store) AddUser(ctx context.Context, name string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (key, name, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT(name) DO NOTHING
	`, uuid.NewString(), name, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to add user: %w", err)
	}
	return nil
}

// RemoveUser deletes the user called name together with every binding that
// points at it. Returns ErrNotFound when no such user exists.
func (s *Store) RemoveUser(ctx context.Context, name string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin remove user: %w", err)
	}
	defer tx.Rollback()

	var key string
	err = tx.QueryRowContext(ctx, `SELECT key FROM users WHERE name = ?`, name).Scan(&key)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return fmt.Errorf("failed to find user: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM bindings WHERE user_key = ?`, key); err != nil {
		return fmt.Errorf("failed to delete bindings: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM users WHERE key = ?`, key); err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit remove user: %w", err)
	}
	return nil
}

// IsBound reports whether chatUserID has a binding.
func (s *Store) IsBound(ctx context.Context, chatUserID string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM bindings WHERE chat_user_id = ?`, chatUserID,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check binding: %w", err)
	}
	return n > 0, nil
}

// BindUser points chatUserID at the user called name, replacing any previous
// binding. The lookup and the write are one statement, so the binding can
// never reference a user that vanished in between. Returns ErrNotFound when
// no such user exists.
func (s *Store) BindUser(ctx context.Context, chatUserID, name string) error {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO bindings (chat_user_id, user_key, bound_at)
		SELECT ?, key, ? FROM users WHERE name = ?
		ON CONFLICT(chat_user_id) DO UPDATE SET
			user_key = excluded.user_key,
			bound_at = excluded.bound_at
	`, chatUserID, time.Now().UTC(), name)
	if err != nil {
		return fmt.Errorf("failed to bind user: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to bind user: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return nil
}

// BoundKey returns the user key chatUserID is bound to, or ErrNotBound.
func (s *Store) BoundKey(ctx context.Context, chatUserID string) (string, error) {
	var key string
	err := s.db.QueryRowContext(ctx,
		`SELECT user_key FROM bindings WHERE chat_user_id = ?`, chatUserID,
	).Scan(&key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: %s", ErrNotBound, chatUserID)
	}
	if err != nil {
		return "", fmt.Errorf("failed to get binding: %w", err)
	}
	return key, nil
}

// NameForKey returns the name of the user with the given key, or ErrNotFound.
func (s *Store) NameForKey(ctx context.Context, key string) (string, error) {
	var name string
	err := s.db.QueryRowContext(ctx, `SELECT name FROM users WHERE key = ?`, key).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: key %s", ErrNotFound, key)
	}
	if err != nil {
		return "", fmt.Errorf("failed to get user name: %w", err)
	}
	return name, nil
}

// SetOverlapByName records the reply of the user called name.
func (s *Store) SetOverlapByName(ctx context.Context, name string, overlap bool) error {
	res, err := s.db.ExecContext(ctx, `UPDATE users SET overlap = ? WHERE name = ?`, overlap, name)
	if err != nil {
		return fmt.Errorf("failed to set overlap: %w", err)
	}
	return expectOne(res, name)
}

// SetOverlapByKey records the reply of the user with the given key.
func (s *Store) SetOverlapByKey(ctx context.Context, key string, overlap bool) error {
	res, err := s.db.ExecContext(ctx, `UPDATE users SET overlap = ? WHERE key = ?`, overlap, key)
	if err != nil {
		return fmt.Errorf("failed to set overlap: %w", err)
	}
	return expectOne(res, "key "+key)
}

// ClearAllOverlap resets every user to "not replied".
func (s *Store) ClearAllOverlap(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `UPDATE users SET overlap = NULL`); err != nil {
		return fmt.Errorf("failed to clear replies: %w", err)
	}
	return nil
}

// Reset empties the roster: admins, users and bindings.
func (s *Store) Reset(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin reset: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"bindings", "users", "admins"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to reset %s: %w", table, err)
		}
	}
	return tx.Commit()
}

func expectOne(res sql.Result, target string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to set overlap: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, target)
	}
	return nil
}
