// Package view projects remote chat state into UI-ready slices. The
// Projector owns the signed-in profile, the counterpart directory, the
// conversation list, and the open conversation's messages, together with the
// live subscriptions feeding them. One Projector serves one client session
// and must be closed when the session ends.
package view

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/byteofhoney/TaskChatApp/internal/chat"
	"github.com/byteofhoney/TaskChatApp/internal/store"
	"github.com/byteofhoney/TaskChatApp/internal/user"
)

// State is one consistent copy of every projected slice. Slices are owned by
// the receiver and never mutated afterwards.
type State struct {
	CurrentUser      *user.Profile
	Directory        []user.Profile
	Conversations    []chat.Conversation
	Messages         []chat.Message
	OpenConversation string // "" when no conversation view is open
	Loading          bool
	Err              string // last surfaced error; cleared via ClearError
}

// Projector coordinates the session manager, chat service, and live
// subscriptions behind a single mutex-guarded state. All exported methods
// are safe for concurrent use. The optional onChange hook fires with a state
// copy after every mutation; it runs outside the projector lock, so it may
// call back into the projector except for Close.
type Projector struct {
	sessions *user.SessionManager
	svc      *chat.Service
	st       store.Store
	onChange func(State)

	mu      sync.Mutex
	state   State
	dirSub  store.Subscription
	convSub store.Subscription
	msgSub  store.Subscription
	closed  bool
}

// NewProjector creates an idle projector. onChange may be nil.
func NewProjector(sessions *user.SessionManager, svc *chat.Service, st store.Store, onChange func(State)) *Projector {
	return &Projector{sessions: sessions, svc: svc, st: st, onChange: onChange}
}

// RegisterOrSignIn authenticates (create with sign-in fallback), upserts the
// profile, and starts the directory and conversation subscriptions. The
// loading flag is raised for the duration; a failure lands in the error slot
// and is also returned.
func (p *Projector) RegisterOrSignIn(ctx context.Context, name, email, password string, role user.Role) error {
	p.setLoading(true)

	profile, err := p.sessions.RegisterOrSignIn(ctx, name, email, password, role)
	if err != nil {
		p.fail(err)
		return err
	}
	return p.start(profile)
}

// Resume loads the current profile for an already signed-in session and
// starts the subscriptions. Without a cached identity or profile document it
// clears all slices and reports no error.
func (p *Projector) Resume(ctx context.Context) error {
	p.setLoading(true)

	profile, err := p.sessions.LoadCurrentProfile(ctx)
	if err != nil {
		p.fail(err)
		return err
	}
	if profile == nil {
		p.mu.Lock()
		p.state.CurrentUser = nil
		p.state.Directory = nil
		p.state.Conversations = nil
		p.state.Loading = false
		snap := p.snapshotLocked()
		p.mu.Unlock()
		p.notify(snap)
		return nil
	}
	return p.start(profile)
}

// start wires the directory and conversation watches for the profile,
// releasing any watches from a previous identity first.
func (p *Projector) start(profile *user.Profile) error {
	p.mu.Lock()
	oldDir, oldConv := p.dirSub, p.convSub
	p.dirSub, p.convSub = nil, nil
	p.mu.Unlock()
	releaseAll(oldDir, oldConv)

	dirSub, err := user.WatchCounterparts(p.st, profile.Role, p.applyDirectory)
	if err != nil {
		p.fail(fmt.Errorf("view: watch directory: %w", err))
		return err
	}
	convSub, err := chat.WatchConversations(p.st, profile.ID, p.applyConversations)
	if err != nil {
		dirSub.Release()
		p.fail(fmt.Errorf("view: watch conversations: %w", err))
		return err
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		releaseAll(dirSub, convSub)
		return nil
	}
	p.dirSub, p.convSub = dirSub, convSub
	p.state.CurrentUser = profile
	p.state.Loading = false
	snap := p.snapshotLocked()
	p.mu.Unlock()
	p.notify(snap)
	return nil
}

// OpenConversationWith resolves (or lazily creates) the conversation with
// the other profile and opens its message view.
func (p *Projector) OpenConversationWith(ctx context.Context, other user.Profile) (string, error) {
	p.mu.Lock()
	me := p.state.CurrentUser
	p.mu.Unlock()
	if me == nil {
		err := fmt.Errorf("view: no signed-in user")
		p.fail(err)
		return "", err
	}

	cid, err := p.svc.CreateOrGetConversation(ctx, *me, other)
	if err != nil {
		p.fail(err)
		return "", err
	}
	if err := p.OpenConversation(cid); err != nil {
		return "", err
	}
	return cid, nil
}

// OpenConversation attaches the message watch to the conversation. Any
// previously held message subscription is released first, so at most one
// message listener exists and snapshots from the old conversation can never
// land in the new view.
func (p *Projector) OpenConversation(conversationID string) error {
	p.mu.Lock()
	old := p.msgSub
	p.msgSub = nil
	p.state.OpenConversation = conversationID
	p.state.Messages = nil
	p.mu.Unlock()
	releaseAll(old)

	sub, err := chat.WatchMessages(p.st, conversationID, func(msgs []chat.Message) {
		p.applyMessages(conversationID, msgs)
	})
	if err != nil {
		p.fail(fmt.Errorf("view: watch messages: %w", err))
		return err
	}

	p.mu.Lock()
	if p.closed || p.state.OpenConversation != conversationID {
		// Closed or re-opened elsewhere while subscribing.
		p.mu.Unlock()
		sub.Release()
		return nil
	}
	p.msgSub = sub
	p.mu.Unlock()
	return nil
}

// CloseConversation releases the message watch and clears the message view.
// Calling it with no open conversation is a no-op.
func (p *Projector) CloseConversation() {
	p.mu.Lock()
	old := p.msgSub
	p.msgSub = nil
	p.state.OpenConversation = ""
	p.state.Messages = nil
	snap := p.snapshotLocked()
	p.mu.Unlock()
	releaseAll(old)
	p.notify(snap)
}

// SendMessage sends text into the open conversation. Failures (including a
// stale preview after a durable message write) land in the error slot;
// already-typed input is the caller's to keep.
func (p *Projector) SendMessage(ctx context.Context, text string) error {
	p.mu.Lock()
	me := p.state.CurrentUser
	cid := p.state.OpenConversation
	p.mu.Unlock()

	if me == nil || cid == "" {
		err := fmt.Errorf("view: no open conversation")
		p.fail(err)
		return err
	}

	if err := p.svc.SendMessage(ctx, cid, text, *me); err != nil {
		p.fail(err)
		return err
	}
	return nil
}

// ClearError empties the error slot.
func (p *Projector) ClearError() {
	p.mu.Lock()
	p.state.Err = ""
	snap := p.snapshotLocked()
	p.mu.Unlock()
	p.notify(snap)
}

// State returns a consistent copy of the projected state.
func (p *Projector) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshotLocked()
}

// Close tears down every subscription and freezes the projector. It is
// idempotent: repeated calls, or closing a projector that never subscribed,
// are no-ops.
func (p *Projector) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	dir, conv, msg := p.dirSub, p.convSub, p.msgSub
	p.dirSub, p.convSub, p.msgSub = nil, nil, nil
	p.mu.Unlock()

	releaseAll(dir, conv, msg)
	log.Printf("[view] projector closed")
}

// applyDirectory is the directory watch callback.
func (p *Projector) applyDirectory(list []user.Profile) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.state.Directory = list
	snap := p.snapshotLocked()
	p.mu.Unlock()
	p.notify(snap)
}

// applyConversations is the conversation watch callback.
func (p *Projector) applyConversations(list []chat.Conversation) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.state.Conversations = list
	snap := p.snapshotLocked()
	p.mu.Unlock()
	p.notify(snap)
}

// applyMessages is the message watch callback. Snapshots for a conversation
// that is no longer open are discarded: they belong to a released or
// superseded subscription.
func (p *Projector) applyMessages(conversationID string, msgs []chat.Message) {
	p.mu.Lock()
	if p.closed || p.state.OpenConversation != conversationID {
		p.mu.Unlock()
		return
	}
	p.state.Messages = msgs
	snap := p.snapshotLocked()
	p.mu.Unlock()
	p.notify(snap)
}

// setLoading raises or lowers the loading flag.
func (p *Projector) setLoading(loading bool) {
	p.mu.Lock()
	p.state.Loading = loading
	snap := p.snapshotLocked()
	p.mu.Unlock()
	p.notify(snap)
}

// fail records the error in the error slot and lowers the loading flag.
func (p *Projector) fail(err error) {
	log.Printf("[view] %v", err)
	p.mu.Lock()
	p.state.Err = err.Error()
	p.state.Loading = false
	snap := p.snapshotLocked()
	p.mu.Unlock()
	p.notify(snap)
}

// snapshotLocked copies the state, including slice contents, so receivers
// can hold it without racing later mutations. Caller must hold p.mu.
func (p *Projector) snapshotLocked() State {
	snap := p.state
	snap.Directory = append([]user.Profile(nil), p.state.Directory...)
	snap.Conversations = append([]chat.Conversation(nil), p.state.Conversations...)
	snap.Messages = append([]chat.Message(nil), p.state.Messages...)
	return snap
}

func (p *Projector) notify(snap State) {
	if p.onChange != nil {
		p.onChange(snap)
	}
}

func releaseAll(subs ...store.Subscription) {
	for _, sub := range subs {
		if sub != nil {
			sub.Release()
		}
	}
}
