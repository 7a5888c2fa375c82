package auth

import (
	"context"
	"errors"
	"testing"
)

func TestMemoryProviderCreateAndSignIn(t *testing.T) {
	p := NewMemoryProvider()
	ctx := context.Background()

	id, err := p.CreateAccount(ctx, "a@x.com", "secret1")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if id == "" {
		t.Fatal("expected non-empty id")
	}

	got, err := p.SignIn(ctx, "a@x.com", "secret1")
	if err != nil {
		t.Fatalf("sign in: %v", err)
	}
	if got != id {
		t.Errorf("sign-in id %q, want %q", got, id)
	}
}

func TestMemoryProviderDuplicateEmail(t *testing.T) {
	p := NewMemoryProvider()
	ctx := context.Background()

	if _, err := p.CreateAccount(ctx, "a@x.com", "secret1"); err != nil {
		t.Fatalf("create: %v", err)
	}
	_, err := p.CreateAccount(ctx, "a@x.com", "other")
	if !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}
}

func TestMemoryProviderBadCredentials(t *testing.T) {
	p := NewMemoryProvider()
	ctx := context.Background()

	if _, err := p.CreateAccount(ctx, "a@x.com", "secret1"); err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := p.SignIn(ctx, "a@x.com", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("wrong password: expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := p.SignIn(ctx, "nobody@x.com", "secret1"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("unknown email: expected ErrInvalidCredentials, got %v", err)
	}
}
