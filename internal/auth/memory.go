package auth

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// MemoryProvider is an in-process Provider for tests and single-node runs.
// Passwords are kept verbatim; it is not meant to face a network.
type MemoryProvider struct {
	mu       sync.Mutex
	accounts map[string]memoryAccount // keyed by email
}

type memoryAccount struct {
	id       string
	password string
}

// NewMemoryProvider creates an empty in-memory provider.
func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{accounts: make(map[string]memoryAccount)}
}

// CreateAccount registers the email with a generated id. Registering an
// already-known email fails with ErrEmailTaken.
func (p *MemoryProvider) CreateAccount(_ context.Context, email, password string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.accounts[email]; ok {
		return "", ErrEmailTaken
	}
	id := uuid.NewString()
	p.accounts[email] = memoryAccount{id: id, password: password}
	return id, nil
}

// SignIn verifies the password for the email and returns the account id.
func (p *MemoryProvider) SignIn(_ context.Context, email, password string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	acct, ok := p.accounts[email]
	if !ok || acct.password != password {
		return "", ErrInvalidCredentials
	}
	return acct.id, nil
}
