package droplock

import "time"

// SignInResult is returned by a successful password sign-in.
type SignInResult struct {
	IDToken   string
	UID       string
	Email     string
	ExpiresAt time.Time
}

// TokenClaims are the verified contents of a bearer token.
type TokenClaims struct {
	UID       string
	Email     string
	ExpiresAt time.Time
}

// IdentityProvider issues and verifies bearer tokens and owns account
// credentials. Profiles (roles, sectors) live in the Database, not here.
type IdentityProvider interface {
	// SignIn checks email/password and issues a bearer token.
	SignIn(email, password string) (*SignInResult, error)

	// VerifyToken returns the claims of a valid, unexpired token.
	// Returns ErrUnauthorized otherwise.
	VerifyToken(token string) (*TokenClaims, error)

	// RevokeToken invalidates a token. Revoking an unknown token is not an error.
	RevokeToken(token string) error

	// CreateAccount creates an account and returns its uid.
	CreateAccount(email, password string) (string, error)

	// UpdatePassword replaces an account's password.
	UpdatePassword(uid, password string) error
}

// Mailer is the outbound notification boundary. It never returns an
// error: delivery problems are logged and reported as false.
type Mailer interface {
	SendAlertEmail(to, subject, body string) bool
}
