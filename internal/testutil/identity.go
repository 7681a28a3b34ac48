package testutil

import (
	"fmt"
	"sync"
	"time"

	"droplock/internal/droplock"
)

// FakeIdentityProvider keeps accounts in memory with plaintext passwords.
// Tokens are "token-{uid}" and never expire.
type FakeIdentityProvider struct {
	mu        sync.Mutex
	byEmail   map[string]string
	passwords map[string]string
	emails    map[string]string
	next      int

	// FailCreate makes CreateAccount fail with this error when set.
	FailCreate error
}

var _ droplock.IdentityProvider = (*FakeIdentityProvider)(nil)

func NewFakeIdentityProvider() *FakeIdentityProvider {
	return &FakeIdentityProvider{
		byEmail:   make(map[string]string),
		passwords: make(map[string]string),
		emails:    make(map[string]string),
	}
}

func (f *FakeIdentityProvider) SignIn(email, password string) (*droplock.SignInResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	uid, ok := f.byEmail[email]
	if !ok || f.passwords[uid] != password {
		return nil, fmt.Errorf("%w: invalid credentials", droplock.ErrUnauthorized)
	}
	return &droplock.SignInResult{IDToken: "token-" + uid, UID: uid, Email: email, ExpiresAt: time.Now().Add(time.Hour)}, nil
}

func (f *FakeIdentityProvider) VerifyToken(token string) (*droplock.TokenClaims, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for uid, email := range f.emails {
		if token == "token-"+uid {
			return &droplock.TokenClaims{UID: uid, Email: email, ExpiresAt: time.Now().Add(time.Hour)}, nil
		}
	}
	return nil, fmt.Errorf("%w: invalid token", droplock.ErrUnauthorized)
}

func (f *FakeIdentityProvider) RevokeToken(string) error { return nil }

func (f *FakeIdentityProvider) CreateAccount(email, password string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailCreate != nil {
		return "", f.FailCreate
	}
	if _, ok := f.byEmail[email]; ok {
		return "", fmt.Errorf("%w: account %s already exists", droplock.ErrConflict, email)
	}
	f.next++
	uid := fmt.Sprintf("uid-%d", f.next)
	f.byEmail[email] = uid
	f.emails[uid] = email
	f.passwords[uid] = password
	return uid, nil
}

func (f *FakeIdentityProvider) UpdatePassword(uid, password string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.emails[uid]; !ok {
		return fmt.Errorf("%w: account %s", droplock.ErrNotFound, uid)
	}
	f.passwords[uid] = password
	return nil
}

// Password returns the current password of uid.
func (f *FakeIdentityProvider) Password(uid string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.passwords[uid]
}
