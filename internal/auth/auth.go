// Package auth defines the credential-issuer boundary consumed by the
// session layer. A Provider verifies credentials and mints stable account
// ids; it knows nothing about profiles, roles, or chat state.
package auth

import (
	"context"
	"errors"
)

// Sentinel errors returned by Provider implementations.
var (
	// ErrEmailTaken is returned by CreateAccount when an account already
	// exists for the email.
	ErrEmailTaken = errors.New("auth: email already registered")

	// ErrInvalidCredentials is returned by SignIn when the email is unknown
	// or the password does not match.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
)

// Provider issues and verifies account credentials. Implementations are safe
// for concurrent use and hold no per-session state; the session layer caches
// the signed-in identity.
type Provider interface {
	// CreateAccount registers a new account and returns its id.
	CreateAccount(ctx context.Context, email, password string) (string, error)

	// SignIn verifies credentials and returns the account id.
	SignIn(ctx context.Context, email, password string) (string, error)
}
