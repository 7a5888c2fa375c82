package user

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/byteofhoney/TaskChatApp/internal/auth"
	"github.com/byteofhoney/TaskChatApp/internal/store"
	"github.com/byteofhoney/TaskChatApp/internal/store/memstore"
)

func TestRegisterPersistsProfile(t *testing.T) {
	st := memstore.New()
	m := NewSessionManager(auth.NewMemoryProvider(), st)
	ctx := context.Background()

	registered := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return registered }

	profile, err := m.RegisterOrSignIn(ctx, "Alice", "a@x.com", "secret1", RoleMentor)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if profile.ID == "" {
		t.Fatal("expected non-empty id")
	}
	if profile.Name != "Alice" || profile.Role != RoleMentor {
		t.Errorf("profile fields wrong: %+v", profile)
	}

	if id, ok := m.CurrentIdentity(); !ok || id != profile.ID {
		t.Errorf("CurrentIdentity=(%q,%v), want (%q,true)", id, ok, profile.ID)
	}

	doc, err := st.GetOnce(ctx, store.Join(UsersCollection, profile.ID))
	if err != nil || doc == nil {
		t.Fatalf("profile doc: doc=%v err=%v", doc, err)
	}
	if doc.String("name") != "Alice" || doc.String("type") != "mentor" {
		t.Errorf("stored fields wrong: %v", doc.Fields)
	}
	if !doc.Time("createdAt").Equal(registered) {
		t.Errorf("createdAt=%v, want %v", doc.Time("createdAt"), registered)
	}
}

func TestSignInFallbackPreservesCreatedAt(t *testing.T) {
	st := memstore.New()
	provider := auth.NewMemoryProvider()
	ctx := context.Background()

	first := NewSessionManager(provider, st)
	registered := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	first.now = func() time.Time { return registered }
	profile, err := first.RegisterOrSignIn(ctx, "Alice", "a@x.com", "secret1", RoleMentor)
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	// Same credentials again: creation fails, sign-in succeeds, and the
	// fallback merge leaves createdAt untouched.
	second := NewSessionManager(provider, st)
	second.now = func() time.Time { return registered.Add(48 * time.Hour) }
	again, err := second.RegisterOrSignIn(ctx, "Alice", "a@x.com", "secret1", RoleMentor)
	if err != nil {
		t.Fatalf("fallback sign-in: %v", err)
	}
	if again.ID != profile.ID {
		t.Fatalf("fallback resolved different id: %q vs %q", again.ID, profile.ID)
	}

	doc, err := st.GetOnce(ctx, store.Join(UsersCollection, profile.ID))
	if err != nil || doc == nil {
		t.Fatalf("profile doc: doc=%v err=%v", doc, err)
	}
	if !doc.Time("createdAt").Equal(registered) {
		t.Errorf("createdAt overwritten on fallback: %v", doc.Time("createdAt"))
	}
}

func TestRegisterOrSignInBothPathsFail(t *testing.T) {
	st := memstore.New()
	provider := auth.NewMemoryProvider()
	ctx := context.Background()

	first := NewSessionManager(provider, st)
	if _, err := first.RegisterOrSignIn(ctx, "Alice", "a@x.com", "secret1", RoleMentor); err != nil {
		t.Fatalf("register: %v", err)
	}

	// Existing email, wrong password: create fails, sign-in fails.
	second := NewSessionManager(provider, st)
	_, err := second.RegisterOrSignIn(ctx, "Alice", "a@x.com", "wrong", RoleMentor)
	if !errors.Is(err, auth.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, ok := second.CurrentIdentity(); ok {
		t.Error("failed auth must not leave a cached identity")
	}
}

func TestRegisterRejectsUnknownRole(t *testing.T) {
	m := NewSessionManager(auth.NewMemoryProvider(), memstore.New())
	if _, err := m.RegisterOrSignIn(context.Background(), "X", "x@x.com", "pw", Role("admin")); err == nil {
		t.Fatal("expected error for unknown role")
	}
}

// failingProfileStore rejects all profile writes.
type failingProfileStore struct {
	store.Store
	fail bool
}

func (f *failingProfileStore) SetMerge(ctx context.Context, path string, fields store.Fields) error {
	if f.fail {
		return errors.New("simulated profile write failure")
	}
	return f.Store.SetMerge(ctx, path, fields)
}

func TestProfileWriteFailureIsRetriableWithoutReauth(t *testing.T) {
	st := &failingProfileStore{Store: memstore.New(), fail: true}
	m := NewSessionManager(auth.NewMemoryProvider(), st)
	ctx := context.Background()

	_, err := m.RegisterOrSignIn(ctx, "Alice", "a@x.com", "secret1", RoleMentor)
	var pwe *ProfileWriteError
	if !errors.As(err, &pwe) {
		t.Fatalf("expected ProfileWriteError, got %v", err)
	}
	if pwe.UID == "" {
		t.Fatal("ProfileWriteError must carry the authenticated id")
	}

	// The session is signed in; retrying the upsert needs no second auth.
	if id, ok := m.CurrentIdentity(); !ok || id != pwe.UID {
		t.Fatalf("CurrentIdentity=(%q,%v), want (%q,true)", id, ok, pwe.UID)
	}

	st.fail = false
	if err := m.UpsertProfile(ctx, "Alice", "a@x.com", RoleMentor); err != nil {
		t.Fatalf("retry upsert: %v", err)
	}

	profile, err := m.LoadCurrentProfile(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if profile == nil || profile.Name != "Alice" {
		t.Fatalf("expected persisted profile, got %+v", profile)
	}
}

func TestLoadCurrentProfileUnauthenticated(t *testing.T) {
	m := NewSessionManager(auth.NewMemoryProvider(), memstore.New())
	profile, err := m.LoadCurrentProfile(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if profile != nil {
		t.Fatalf("expected nil profile, got %+v", profile)
	}
}

func TestSignOutClearsIdentity(t *testing.T) {
	m := NewSessionManager(auth.NewMemoryProvider(), memstore.New())
	ctx := context.Background()

	if _, err := m.RegisterOrSignIn(ctx, "Alice", "a@x.com", "secret1", RoleMentor); err != nil {
		t.Fatalf("register: %v", err)
	}
	m.SignOut()
	if _, ok := m.CurrentIdentity(); ok {
		t.Error("identity still cached after sign-out")
	}
	profile, err := m.LoadCurrentProfile(ctx)
	if err != nil || profile != nil {
		t.Errorf("expected (nil,nil) after sign-out, got (%+v,%v)", profile, err)
	}
}
