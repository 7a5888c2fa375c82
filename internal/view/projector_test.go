package view

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/byteofhoney/TaskChatApp/internal/auth"
	"github.com/byteofhoney/TaskChatApp/internal/chat"
	"github.com/byteofhoney/TaskChatApp/internal/store"
	"github.com/byteofhoney/TaskChatApp/internal/store/memstore"
	"github.com/byteofhoney/TaskChatApp/internal/user"
)

func newTestProjector(st store.Store, provider auth.Provider, onChange func(State)) *Projector {
	sessions := user.NewSessionManager(provider, st)
	svc := chat.NewService(st)
	return NewProjector(sessions, svc, st, onChange)
}

// End-to-end first contact: two users register, the mentor finds the intern
// in the directory, opens a chat, sends a message, and both sides observe it.
func TestFirstContactFlow(t *testing.T) {
	st := memstore.New()
	provider := auth.NewMemoryProvider()
	ctx := context.Background()

	aliceProj := newTestProjector(st, provider, nil)
	defer aliceProj.Close()
	bobProj := newTestProjector(st, provider, nil)
	defer bobProj.Close()

	if err := aliceProj.RegisterOrSignIn(ctx, "Alice", "a@x.com", "secret1", user.RoleMentor); err != nil {
		t.Fatalf("alice register: %v", err)
	}
	if got := aliceProj.State(); got.CurrentUser == nil || got.CurrentUser.Name != "Alice" {
		t.Fatalf("alice state after register: %+v", got)
	}
	if len(aliceProj.State().Directory) != 0 {
		t.Fatal("directory should be empty before Bob registers")
	}

	if err := bobProj.RegisterOrSignIn(ctx, "Bob", "b@x.com", "secret2", user.RoleIntern); err != nil {
		t.Fatalf("bob register: %v", err)
	}

	// Bob's profile write reaches Alice's live directory.
	dir := aliceProj.State().Directory
	if len(dir) != 1 || dir[0].Name != "Bob" {
		t.Fatalf("alice directory after bob registers: %v", dir)
	}
	bob := dir[0]

	cid, err := aliceProj.OpenConversationWith(ctx, bob)
	if err != nil {
		t.Fatalf("open with bob: %v", err)
	}
	state := aliceProj.State()
	if state.OpenConversation != cid {
		t.Fatalf("open conversation %q, want %q", state.OpenConversation, cid)
	}
	if len(state.Conversations) != 1 {
		t.Fatalf("alice conversation list: %v", state.Conversations)
	}
	if len(state.Messages) != 0 {
		t.Fatalf("new conversation should start empty, got %v", state.Messages)
	}

	if err := aliceProj.SendMessage(ctx, "hi"); err != nil {
		t.Fatalf("send: %v", err)
	}
	state = aliceProj.State()
	if len(state.Messages) != 1 || state.Messages[0].Text != "hi" {
		t.Fatalf("alice messages after send: %v", state.Messages)
	}
	if state.Conversations[0].LastMessage != "hi" {
		t.Errorf("alice preview %q", state.Conversations[0].LastMessage)
	}

	// Bob's conversation list already picked it up; opening shows the message.
	bobState := bobProj.State()
	if len(bobState.Conversations) != 1 || bobState.Conversations[0].LastMessage != "hi" {
		t.Fatalf("bob conversation list: %v", bobState.Conversations)
	}
	if err := bobProj.OpenConversation(cid); err != nil {
		t.Fatalf("bob open: %v", err)
	}
	bobState = bobProj.State()
	if len(bobState.Messages) != 1 || bobState.Messages[0].SenderName != "Alice" {
		t.Fatalf("bob messages: %v", bobState.Messages)
	}
}

func TestSwitchingConversationsDoesNotBleed(t *testing.T) {
	st := memstore.New()
	provider := auth.NewMemoryProvider()
	ctx := context.Background()

	proj := newTestProjector(st, provider, nil)
	defer proj.Close()
	if err := proj.RegisterOrSignIn(ctx, "Alice", "a@x.com", "secret1", user.RoleMentor); err != nil {
		t.Fatalf("register: %v", err)
	}

	bob := user.Profile{ID: "uid-bob", Name: "Bob", Role: user.RoleIntern}
	carol := user.Profile{ID: "uid-carol", Name: "Carol", Role: user.RoleIntern}

	cidBob, err := proj.OpenConversationWith(ctx, bob)
	if err != nil {
		t.Fatalf("open bob: %v", err)
	}
	if err := proj.SendMessage(ctx, "for bob"); err != nil {
		t.Fatalf("send: %v", err)
	}

	if _, err := proj.OpenConversationWith(ctx, carol); err != nil {
		t.Fatalf("open carol: %v", err)
	}
	state := proj.State()
	if len(state.Messages) != 0 {
		t.Fatalf("carol view should start empty, got %v", state.Messages)
	}

	// Traffic in the old conversation must not land in the new view.
	svc := chat.NewService(st)
	me := *proj.State().CurrentUser
	if err := svc.SendMessage(ctx, cidBob, "more for bob", me); err != nil {
		t.Fatalf("send to old: %v", err)
	}
	state = proj.State()
	if len(state.Messages) != 0 {
		t.Fatalf("old conversation leaked into new view: %v", state.Messages)
	}

	if err := proj.SendMessage(ctx, "for carol"); err != nil {
		t.Fatalf("send: %v", err)
	}
	state = proj.State()
	if len(state.Messages) != 1 || state.Messages[0].Text != "for carol" {
		t.Fatalf("carol view: %v", state.Messages)
	}
}

func TestCloseConversationClearsView(t *testing.T) {
	st := memstore.New()
	provider := auth.NewMemoryProvider()
	ctx := context.Background()

	proj := newTestProjector(st, provider, nil)
	defer proj.Close()
	if err := proj.RegisterOrSignIn(ctx, "Alice", "a@x.com", "secret1", user.RoleMentor); err != nil {
		t.Fatalf("register: %v", err)
	}

	bob := user.Profile{ID: "uid-bob", Name: "Bob", Role: user.RoleIntern}
	if _, err := proj.OpenConversationWith(ctx, bob); err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := proj.SendMessage(ctx, "hi"); err != nil {
		t.Fatalf("send: %v", err)
	}

	proj.CloseConversation()
	state := proj.State()
	if state.OpenConversation != "" || len(state.Messages) != 0 {
		t.Fatalf("view not cleared: %+v", state)
	}
	// Closing again is a no-op.
	proj.CloseConversation()
}

func TestCloseIsIdempotentAndStopsNotifications(t *testing.T) {
	st := memstore.New()
	provider := auth.NewMemoryProvider()
	ctx := context.Background()

	notifications := 0
	proj := newTestProjector(st, provider, func(State) { notifications++ })
	if err := proj.RegisterOrSignIn(ctx, "Alice", "a@x.com", "secret1", user.RoleMentor); err != nil {
		t.Fatalf("register: %v", err)
	}

	proj.Close()
	proj.Close() // repeated close is a no-op
	after := notifications

	// Writes after close must not reach the projector.
	if err := st.Set(ctx, "users/u-new", store.Fields{"name": "Eve", "type": "intern"}); err != nil {
		t.Fatalf("set: %v", err)
	}
	if notifications != after {
		t.Fatalf("notification after close: %d -> %d", after, notifications)
	}

	// Closing a projector that never subscribed is also fine.
	newTestProjector(st, provider, nil).Close()
}

// togglingMergeStore fails merges on a chosen path when armed.
type togglingMergeStore struct {
	store.Store
	failPath string
	armed    bool
}

func (f *togglingMergeStore) SetMerge(ctx context.Context, path string, fields store.Fields) error {
	if f.armed && path == f.failPath {
		return errors.New("simulated write failure")
	}
	return f.Store.SetMerge(ctx, path, fields)
}

func TestSendFailureLandsInErrorSlot(t *testing.T) {
	fst := &togglingMergeStore{Store: memstore.New()}
	provider := auth.NewMemoryProvider()
	ctx := context.Background()

	proj := newTestProjector(fst, provider, nil)
	defer proj.Close()
	if err := proj.RegisterOrSignIn(ctx, "Alice", "a@x.com", "secret1", user.RoleMentor); err != nil {
		t.Fatalf("register: %v", err)
	}

	bob := user.Profile{ID: "uid-bob", Name: "Bob", Role: user.RoleIntern}
	cid, err := proj.OpenConversationWith(ctx, bob)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	fst.failPath = store.Join(chat.ChatsCollection, cid)
	fst.armed = true

	err = proj.SendMessage(ctx, "hi")
	var stale *chat.StalePreviewError
	if !errors.As(err, &stale) {
		t.Fatalf("expected StalePreviewError, got %v", err)
	}

	state := proj.State()
	if state.Err == "" || !strings.Contains(state.Err, cid) {
		t.Fatalf("error slot %q should name the conversation", state.Err)
	}
	// The message itself went through.
	if len(state.Messages) != 1 || state.Messages[0].Text != "hi" {
		t.Fatalf("message lost: %v", state.Messages)
	}

	proj.ClearError()
	if got := proj.State().Err; got != "" {
		t.Fatalf("error slot not cleared: %q", got)
	}
}

func TestResumeWithoutIdentity(t *testing.T) {
	st := memstore.New()
	proj := newTestProjector(st, auth.NewMemoryProvider(), nil)
	defer proj.Close()

	if err := proj.Resume(context.Background()); err != nil {
		t.Fatalf("resume: %v", err)
	}
	state := proj.State()
	if state.CurrentUser != nil || state.Loading || state.Err != "" {
		t.Fatalf("expected signed-out idle state, got %+v", state)
	}
}

func TestResumeRestoresSession(t *testing.T) {
	st := memstore.New()
	provider := auth.NewMemoryProvider()
	ctx := context.Background()

	sessions := user.NewSessionManager(provider, st)
	svc := chat.NewService(st)
	if _, err := sessions.RegisterOrSignIn(ctx, "Alice", "a@x.com", "secret1", user.RoleMentor); err != nil {
		t.Fatalf("register: %v", err)
	}

	proj := NewProjector(sessions, svc, st, nil)
	defer proj.Close()
	if err := proj.Resume(ctx); err != nil {
		t.Fatalf("resume: %v", err)
	}
	state := proj.State()
	if state.CurrentUser == nil || state.CurrentUser.Name != "Alice" {
		t.Fatalf("resume did not restore profile: %+v", state)
	}
	if state.Loading {
		t.Fatal("loading flag left raised")
	}
}
