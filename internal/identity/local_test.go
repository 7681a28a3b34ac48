package identity_test

import (
	"errors"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"droplock/internal/droplock"
	"droplock/internal/identity"
	"droplock/internal/testutil"
)

func newProvider(t *testing.T) (*identity.LocalProvider, *testutil.StubClock) {
	t.Helper()
	clock := testutil.FixedClock()
	p := identity.NewLocalProvider(testutil.NewTestDatabase(t), clock, testutil.NewPrefixedIDGenerator("uid"), time.Hour)
	p.SetHashCost(bcrypt.MinCost)
	return p, clock
}

func TestLocalProvider_SignIn(t *testing.T) {
	p, _ := newProvider(t)
	uid, err := p.CreateAccount(" Ana@Example.com ", "secret1")
	if err != nil {
		t.Fatalf("CreateAccount() error = %v", err)
	}

	t.Run("valid credentials", func(t *testing.T) {
		res, err := p.SignIn("ana@example.com", "secret1")
		if err != nil {
			t.Fatalf("SignIn() error = %v", err)
		}
		if res.UID != uid || res.Email != "ana@example.com" || len(res.IDToken) != 64 {
			t.Errorf("SignIn() = %+v", res)
		}
	})

	tests := []struct {
		name     string
		email    string
		password string
	}{
		{"wrong password", "ana@example.com", "secret2"},
		{"unknown email", "bob@example.com", "secret1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := p.SignIn(tt.email, tt.password); !errors.Is(err, droplock.ErrUnauthorized) {
				t.Errorf("SignIn() error = %v, want ErrUnauthorized", err)
			}
		})
	}
}

func TestLocalProvider_VerifyToken(t *testing.T) {
	p, clock := newProvider(t)
	uid, _ := p.CreateAccount("ana@example.com", "secret1")
	res, err := p.SignIn("ana@example.com", "secret1")
	if err != nil {
		t.Fatalf("SignIn() error = %v", err)
	}

	claims, err := p.VerifyToken(res.IDToken)
	if err != nil {
		t.Fatalf("VerifyToken() error = %v", err)
	}
	if claims.UID != uid || !claims.ExpiresAt.Equal(clock.Now().Add(time.Hour)) {
		t.Errorf("claims = %+v", claims)
	}

	for _, token := range []string{"", "not-a-token"} {
		if _, err := p.VerifyToken(token); !errors.Is(err, droplock.ErrUnauthorized) {
			t.Errorf("VerifyToken(%q) error = %v, want ErrUnauthorized", token, err)
		}
	}

	clock.Advance(time.Hour)
	if _, err := p.VerifyToken(res.IDToken); !errors.Is(err, droplock.ErrUnauthorized) {
		t.Errorf("expired VerifyToken() error = %v, want ErrUnauthorized", err)
	}
	n, err := p.PurgeExpiredSessions()
	if err != nil || n != 1 {
		t.Errorf("PurgeExpiredSessions() = %d, %v, want 1", n, err)
	}
}

func TestLocalProvider_RevokeToken(t *testing.T) {
	p, _ := newProvider(t)
	p.CreateAccount("ana@example.com", "secret1")
	res, _ := p.SignIn("ana@example.com", "secret1")

	if err := p.RevokeToken(res.IDToken); err != nil {
		t.Fatalf("RevokeToken() error = %v", err)
	}
	if _, err := p.VerifyToken(res.IDToken); !errors.Is(err, droplock.ErrUnauthorized) {
		t.Errorf("revoked VerifyToken() error = %v, want ErrUnauthorized", err)
	}
	if err := p.RevokeToken("unknown"); err != nil {
		t.Errorf("RevokeToken(unknown) error = %v", err)
	}
}

func TestLocalProvider_CreateAccount(t *testing.T) {
	p, _ := newProvider(t)

	if _, err := p.CreateAccount("ana@example.com", "secret1"); err != nil {
		t.Fatalf("CreateAccount() error = %v", err)
	}
	if _, err := p.CreateAccount("ANA@example.com", "secret1"); !errors.Is(err, droplock.ErrConflict) {
		t.Errorf("duplicate CreateAccount() error = %v, want ErrConflict", err)
	}
	if _, err := p.CreateAccount("ana", "secret1"); !errors.Is(err, droplock.ErrValidation) {
		t.Errorf("CreateAccount(ana) error = %v, want ErrValidation", err)
	}
	if _, err := p.CreateAccount("bob@example.com", "123"); !errors.Is(err, droplock.ErrValidation) {
		t.Errorf("short password error = %v, want ErrValidation", err)
	}
}

func TestLocalProvider_UpdatePassword(t *testing.T) {
	p, _ := newProvider(t)
	uid, _ := p.CreateAccount("ana@example.com", "secret1")
	res, _ := p.SignIn("ana@example.com", "secret1")

	if err := p.UpdatePassword(uid, "secret2"); err != nil {
		t.Fatalf("UpdatePassword() error = %v", err)
	}
	if _, err := p.VerifyToken(res.IDToken); !errors.Is(err, droplock.ErrUnauthorized) {
		t.Errorf("old token still valid: %v", err)
	}
	if _, err := p.SignIn("ana@example.com", "secret1"); !errors.Is(err, droplock.ErrUnauthorized) {
		t.Errorf("old password still accepted: %v", err)
	}
	if _, err := p.SignIn("ana@example.com", "secret2"); err != nil {
		t.Errorf("SignIn() with new password error = %v", err)
	}
	if err := p.UpdatePassword("uid-99", "secret3"); !errors.Is(err, droplock.ErrNotFound) {
		t.Errorf("UpdatePassword(unknown) error = %v, want ErrNotFound", err)
	}
}
