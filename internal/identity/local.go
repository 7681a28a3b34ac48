package identity

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"droplock/internal/droplock"
)

const tokenBytes = 32

// LocalProvider is an IdentityProvider over an AccountStore. Passwords are
// stored as bcrypt hashes; bearer tokens are random and only their
// SHA-256 is persisted.
type LocalProvider struct {
	store AccountStore
	clock droplock.Clock
	idgen droplock.IDGenerator
	ttl   time.Duration
	cost  int
}

var _ droplock.IdentityProvider = (*LocalProvider)(nil)

// NewLocalProvider creates a LocalProvider issuing tokens valid for ttl.
func NewLocalProvider(store AccountStore, clock droplock.Clock, idgen droplock.IDGenerator, ttl time.Duration) *LocalProvider {
	return &LocalProvider{
		store: store,
		clock: clock,
		idgen: idgen,
		ttl:   ttl,
		cost:  bcrypt.DefaultCost,
	}
}

// SetHashCost overrides the bcrypt cost. Tests use bcrypt.MinCost.
func (p *LocalProvider) SetHashCost(cost int) {
	p.cost = cost
}

func (p *LocalProvider) SignIn(email, password string) (*droplock.SignInResult, error) {
	account, err := p.store.GetAccountByEmail(normalizeEmail(email))
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, fmt.Errorf("%w: invalid email or password", droplock.ErrUnauthorized)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		return nil, fmt.Errorf("%w: invalid email or password", droplock.ErrUnauthorized)
	}

	token, err := newToken()
	if err != nil {
		return nil, err
	}
	now := p.clock.Now()
	session := &Session{
		TokenHash: hashToken(token),
		UID:       account.UID,
		CreatedAt: now,
		ExpiresAt: now.Add(p.ttl),
	}
	if err := p.store.InsertSession(session); err != nil {
		return nil, fmt.Errorf("storing session: %w", err)
	}

	return &droplock.SignInResult{
		IDToken:   token,
		UID:       account.UID,
		Email:     account.Email,
		ExpiresAt: session.ExpiresAt,
	}, nil
}

func (p *LocalProvider) VerifyToken(token string) (*droplock.TokenClaims, error) {
	if token == "" {
		return nil, fmt.Errorf("%w: missing token", droplock.ErrUnauthorized)
	}
	session, err := p.store.GetSession(hashToken(token))
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, fmt.Errorf("%w: unknown token", droplock.ErrUnauthorized)
	}
	if !p.clock.Now().Before(session.ExpiresAt) {
		return nil, fmt.Errorf("%w: token expired", droplock.ErrUnauthorized)
	}

	account, err := p.store.GetAccount(session.UID)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, fmt.Errorf("%w: account removed", droplock.ErrUnauthorized)
	}
	return &droplock.TokenClaims{UID: account.UID, Email: account.Email, ExpiresAt: session.ExpiresAt}, nil
}

func (p *LocalProvider) RevokeToken(token string) error {
	if token == "" {
		return nil
	}
	return p.store.DeleteSession(hashToken(token))
}

func (p *LocalProvider) CreateAccount(email, password string) (string, error) {
	email = normalizeEmail(email)
	if !strings.Contains(email, "@") {
		return "", fmt.Errorf("%w: invalid email %q", droplock.ErrValidation, email)
	}
	if len(password) < droplock.MinPasswordLength {
		return "", fmt.Errorf("%w: password must be at least %d characters", droplock.ErrValidation, droplock.MinPasswordLength)
	}

	hash, err := p.hash(password)
	if err != nil {
		return "", err
	}
	now := p.clock.Now()
	account := &Account{
		UID:          p.idgen.New(),
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := p.store.InsertAccount(account); err != nil {
		return "", err
	}
	return account.UID, nil
}

// UpdatePassword replaces the password and revokes every session of the
// account.
func (p *LocalProvider) UpdatePassword(uid, password string) error {
	if len(password) < droplock.MinPasswordLength {
		return fmt.Errorf("%w: password must be at least %d characters", droplock.ErrValidation, droplock.MinPasswordLength)
	}
	hash, err := p.hash(password)
	if err != nil {
		return err
	}
	if err := p.store.UpdatePasswordHash(uid, hash, p.clock.Now()); err != nil {
		return err
	}
	if err := p.store.DeleteSessionsForAccount(uid); err != nil {
		return fmt.Errorf("revoking sessions: %w", err)
	}
	return nil
}

// PurgeExpiredSessions deletes sessions past their expiry and returns how
// many were removed.
func (p *LocalProvider) PurgeExpiredSessions() (int64, error) {
	return p.store.DeleteExpiredSessions(p.clock.Now())
}

func (p *LocalProvider) hash(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), p.cost)
	if errors.Is(err, bcrypt.ErrPasswordTooLong) {
		return "", fmt.Errorf("%w: password too long", droplock.ErrValidation)
	}
	if err != nil {
		return "", fmt.Errorf("hashing password: %w", err)
	}
	return string(hash), nil
}

func newToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
