package user

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/byteofhoney/TaskChatApp/internal/auth"
	"github.com/byteofhoney/TaskChatApp/internal/metrics"
	"github.com/byteofhoney/TaskChatApp/internal/store"
)

// ProfileWriteError reports that authentication succeeded but the profile
// upsert failed. The identity exists in the auth system; callers retry the
// upsert (UpsertProfile) without re-authenticating.
type ProfileWriteError struct {
	UID string
	Err error
}

func (e *ProfileWriteError) Error() string {
	return fmt.Sprintf("user: profile write for %s failed: %v", e.UID, e.Err)
}

func (e *ProfileWriteError) Unwrap() error { return e.Err }

// SessionManager owns the signed-in identity. It wraps the auth provider and
// the profile documents, caching the current account id locally. One
// SessionManager serves one logical client session.
type SessionManager struct {
	provider auth.Provider
	st       store.Store
	now      func() time.Time

	mu        sync.Mutex
	currentID string
}

// NewSessionManager creates a session manager with no signed-in identity.
func NewSessionManager(provider auth.Provider, st store.Store) *SessionManager {
	return &SessionManager{provider: provider, st: st, now: time.Now}
}

// RegisterOrSignIn attempts account creation and falls back to sign-in with
// the same credentials when creation fails (typically because the account
// already exists). On either success the profile document is merge-upserted:
// the create path stamps createdAt, the fallback path leaves any existing
// createdAt untouched. Auth failure on both paths returns the sign-in error;
// auth success with a failed upsert returns *ProfileWriteError and leaves
// the session signed in.
func (m *SessionManager) RegisterOrSignIn(ctx context.Context, name, email, password string, role Role) (*Profile, error) {
	if !role.Valid() {
		return nil, fmt.Errorf("user: unknown role %q", role)
	}

	created := true
	uid, err := m.provider.CreateAccount(ctx, email, password)
	if err != nil {
		log.Printf("[session] create account for %s failed, trying sign-in: %v", email, err)
		created = false
		uid, err = m.provider.SignIn(ctx, email, password)
		if err != nil {
			log.Printf("[session] sign-in for %s failed: %v", email, err)
			metrics.AuthAttemptsTotal.WithLabelValues("rejected").Inc()
			return nil, fmt.Errorf("user: register or sign in: %w", err)
		}
	}

	m.mu.Lock()
	m.currentID = uid
	m.mu.Unlock()

	now := m.now()
	fields := store.Fields{
		"name":  name,
		"email": email,
		"type":  string(role),
	}
	if created {
		fields["createdAt"] = now
	}
	if err := m.st.SetMerge(ctx, store.Join(UsersCollection, uid), fields); err != nil {
		log.Printf("[session] profile upsert for %s failed: %v", uid, err)
		metrics.AuthAttemptsTotal.WithLabelValues("profile_write_failed").Inc()
		return nil, &ProfileWriteError{UID: uid, Err: err}
	}

	if created {
		metrics.AuthAttemptsTotal.WithLabelValues("registered").Inc()
	} else {
		metrics.AuthAttemptsTotal.WithLabelValues("signed_in").Inc()
	}

	profile := &Profile{ID: uid, Name: name, Email: email, Role: role}
	if created {
		profile.CreatedAt = now
	}
	return profile, nil
}

// UpsertProfile merges name, email and role onto the current identity's
// profile document. It is the retry path after a ProfileWriteError.
func (m *SessionManager) UpsertProfile(ctx context.Context, name, email string, role Role) error {
	uid, ok := m.CurrentIdentity()
	if !ok {
		return fmt.Errorf("user: no signed-in identity")
	}
	fields := store.Fields{
		"name":  name,
		"email": email,
		"type":  string(role),
	}
	if err := m.st.SetMerge(ctx, store.Join(UsersCollection, uid), fields); err != nil {
		return &ProfileWriteError{UID: uid, Err: err}
	}
	return nil
}

// CurrentIdentity returns the locally cached account id. It never touches
// the network.
func (m *SessionManager) CurrentIdentity() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.currentID, m.currentID != ""
}

// SignOut clears the cached identity. Remote state is untouched.
func (m *SessionManager) SignOut() {
	m.mu.Lock()
	m.currentID = ""
	m.mu.Unlock()
}

// LoadCurrentProfile fetches the signed-in user's profile document once.
// It returns (nil, nil) when no identity is cached or the document is
// absent.
func (m *SessionManager) LoadCurrentProfile(ctx context.Context) (*Profile, error) {
	uid, ok := m.CurrentIdentity()
	if !ok {
		return nil, nil
	}

	doc, err := m.st.GetOnce(ctx, store.Join(UsersCollection, uid))
	if err != nil {
		return nil, fmt.Errorf("user: load profile %s: %w", uid, err)
	}
	if doc == nil {
		log.Printf("[session] no profile document for %s", uid)
		return nil, nil
	}
	profile := profileFromDoc(*doc)
	return &profile, nil
}

// FetchCounterparts returns the counterpart-role directory once, without a
// live subscription.
func (m *SessionManager) FetchCounterparts(ctx context.Context, myRole Role) ([]Profile, error) {
	docs, err := m.st.GetAll(ctx, counterpartQuery(myRole))
	if err != nil {
		return nil, fmt.Errorf("user: fetch counterparts: %w", err)
	}
	return profilesFromDocs(docs), nil
}
