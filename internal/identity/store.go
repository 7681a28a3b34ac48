package identity

import "time"

// Account is a sign-in identity. Roles and sectors live on the profile,
// not here.
type Account struct {
	UID          string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Session is an issued bearer token. Only the SHA-256 of the token is
// stored.
type Session struct {
	TokenHash string
	UID       string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// AccountStore persists accounts and sessions. Lookups of absent records
// return (nil, nil).
type AccountStore interface {
	// InsertAccount returns droplock.ErrConflict if the email is taken.
	InsertAccount(account *Account) error
	GetAccount(uid string) (*Account, error)
	GetAccountByEmail(email string) (*Account, error)
	// UpdatePasswordHash returns droplock.ErrNotFound for an unknown uid.
	UpdatePasswordHash(uid, hash string, at time.Time) error

	InsertSession(session *Session) error
	GetSession(tokenHash string) (*Session, error)
	DeleteSession(tokenHash string) error
	// DeleteSessionsForAccount revokes every token of an account.
	DeleteSessionsForAccount(uid string) error
	DeleteExpiredSessions(now time.Time) (int64, error)
}
