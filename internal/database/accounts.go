package database

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"droplock/internal/droplock"
	"droplock/internal/identity"
)

// Account operations

// InsertAccount stores a new identity account. Returns ErrConflict on a
// duplicate email.
func (s *SQLiteDatabase) InsertAccount(a *identity.Account) error {
	ctx, cancel := s.ctx()
	defer cancel()

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO accounts (uid, email, password_hash, created_at, updated_at) VALUES (?, ?, ?, ?, ?)",
		a.UID, a.Email, a.PasswordHash, toMillis(a.CreatedAt), toMillis(a.UpdatedAt))
	if isConstraintError(err) {
		return fmt.Errorf("%w: account %s already exists", droplock.ErrConflict, a.Email)
	}
	if err != nil {
		return droplock.TransportError("inserting account", err)
	}
	return nil
}

// GetAccount returns the account for uid, or nil.
func (s *SQLiteDatabase) GetAccount(uid string) (*identity.Account, error) {
	return s.getAccount("uid", uid)
}

// GetAccountByEmail returns the account with the given email, or nil.
func (s *SQLiteDatabase) GetAccountByEmail(email string) (*identity.Account, error) {
	return s.getAccount("email", email)
}

func (s *SQLiteDatabase) getAccount(column, value string) (*identity.Account, error) {
	ctx, cancel := s.ctx()
	defer cancel()

	var (
		a                identity.Account
		created, updated int64
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT uid, email, password_hash, created_at, updated_at FROM accounts WHERE "+column+" = ?", value).
		Scan(&a.UID, &a.Email, &a.PasswordHash, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, droplock.TransportError("getting account", err)
	}
	a.CreatedAt = fromMillis(created)
	a.UpdatedAt = fromMillis(updated)
	return &a, nil
}

// UpdatePasswordHash replaces an account's bcrypt hash.
func (s *SQLiteDatabase) UpdatePasswordHash(uid, hash string, at time.Time) error {
	ctx, cancel := s.ctx()
	defer cancel()

	res, err := s.db.ExecContext(ctx,
		"UPDATE accounts SET password_hash = ?, updated_at = ? WHERE uid = ?", hash, toMillis(at), uid)
	if err != nil {
		return droplock.TransportError("updating password", err)
	}
	return requireAffected(res, "account "+uid)
}

// Session operations

// InsertSession stores a hashed bearer token.
func (s *SQLiteDatabase) InsertSession(sess *identity.Session) error {
	ctx, cancel := s.ctx()
	defer cancel()

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO session_tokens (token_hash, uid, created_at, expires_at) VALUES (?, ?, ?, ?)",
		sess.TokenHash, sess.UID, toMillis(sess.CreatedAt), toMillis(sess.ExpiresAt))
	if err != nil {
		return droplock.TransportError("inserting session", err)
	}
	return nil
}

// GetSession returns the session for a token hash, or nil.
func (s *SQLiteDatabase) GetSession(tokenHash string) (*identity.Session, error) {
	ctx, cancel := s.ctx()
	defer cancel()

	var (
		sess             identity.Session
		created, expires int64
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT token_hash, uid, created_at, expires_at FROM session_tokens WHERE token_hash = ?", tokenHash).
		Scan(&sess.TokenHash, &sess.UID, &created, &expires)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, droplock.TransportError("getting session", err)
	}
	sess.CreatedAt = fromMillis(created)
	sess.ExpiresAt = fromMillis(expires)
	return &sess, nil
}

// DeleteSession revokes one token.
func (s *SQLiteDatabase) DeleteSession(tokenHash string) error {
	ctx, cancel := s.ctx()
	defer cancel()

	if _, err := s.db.ExecContext(ctx, "DELETE FROM session_tokens WHERE token_hash = ?", tokenHash); err != nil {
		return droplock.TransportError("deleting session", err)
	}
	return nil
}

// DeleteSessionsForAccount revokes every token of an account.
func (s *SQLiteDatabase) DeleteSessionsForAccount(uid string) error {
	ctx, cancel := s.ctx()
	defer cancel()

	if _, err := s.db.ExecContext(ctx, "DELETE FROM session_tokens WHERE uid = ?", uid); err != nil {
		return droplock.TransportError("deleting sessions", err)
	}
	return nil
}

// DeleteExpiredSessions removes sessions expired at now and returns how many.
func (s *SQLiteDatabase) DeleteExpiredSessions(now time.Time) (int64, error) {
	ctx, cancel := s.ctx()
	defer cancel()

	res, err := s.db.ExecContext(ctx, "DELETE FROM session_tokens WHERE expires_at <= ?", toMillis(now))
	if err != nil {
		return 0, droplock.TransportError("deleting expired sessions", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, droplock.TransportError("reading affected rows", err)
	}
	return n, nil
}
