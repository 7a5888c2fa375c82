package chat

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/byteofhoney/TaskChatApp/internal/metrics"
	"github.com/byteofhoney/TaskChatApp/internal/store"
	"github.com/byteofhoney/TaskChatApp/internal/user"
)

// StalePreviewError reports that a message was durably appended but the
// conversation's denormalized preview could not be updated. The send itself
// succeeded; the preview catches up on the next successful send.
type StalePreviewError struct {
	ConversationID string
	Err            error
}

func (e *StalePreviewError) Error() string {
	return fmt.Sprintf("chat: message stored but preview update for %s failed: %v", e.ConversationID, e.Err)
}

func (e *StalePreviewError) Unwrap() error { return e.Err }

// Service issues conversation and message writes against the document store.
type Service struct {
	st  store.Store
	now func() time.Time
}

// NewService creates a chat service on top of the given store.
func NewService(st store.Store) *Service {
	return &Service{st: st, now: time.Now}
}

// CreateOrGetConversation returns the conversation id for the pair, creating
// the conversation document on first contact. The id is a pure function of
// the two participant ids, so when both participants race through the
// absent-then-write path they target the same document with the same
// participant data and the writes converge last-write-wins.
func (s *Service) CreateOrGetConversation(ctx context.Context, me, other user.Profile) (string, error) {
	cid := ConversationID(me.ID, other.ID)
	path := store.Join(ChatsCollection, cid)

	doc, err := s.st.GetOnce(ctx, path)
	if err != nil {
		return "", fmt.Errorf("chat: check conversation %s: %w", cid, err)
	}
	if doc != nil {
		return cid, nil
	}

	now := s.now()
	fields := store.Fields{
		"participants":     []string{me.ID, other.ID},
		"participantNames": []string{me.Name, other.Name},
		"lastMessage":      "",
		"lastMessageTime":  now,
		"createdAt":        now,
	}
	if err := s.st.Set(ctx, path, fields); err != nil {
		return "", fmt.Errorf("chat: create conversation %s: %w", cid, err)
	}
	log.Printf("[chat] created conversation %s", cid)
	return cid, nil
}

// SendMessage appends a message to the conversation and then updates the
// conversation's preview fields via merge. The preview write runs only after
// the message write succeeded: a failed append leaves nothing written, while
// a failed preview update returns *StalePreviewError with the message
// already durable.
func (s *Service) SendMessage(ctx context.Context, conversationID, text string, sender user.Profile) error {
	now := s.now()

	_, err := s.st.Add(ctx, MessagesCollection(conversationID), store.Fields{
		"text":       text,
		"senderId":   sender.ID,
		"senderName": sender.Name,
		"timestamp":  now,
	})
	if err != nil {
		metrics.MessagesSentTotal.WithLabelValues("failed").Inc()
		return fmt.Errorf("chat: append message to %s: %w", conversationID, err)
	}

	err = s.st.SetMerge(ctx, store.Join(ChatsCollection, conversationID), store.Fields{
		"lastMessage":     text,
		"lastMessageTime": now,
	})
	if err != nil {
		log.Printf("[chat] preview update for %s failed: %v", conversationID, err)
		metrics.MessagesSentTotal.WithLabelValues("preview_stale").Inc()
		return &StalePreviewError{ConversationID: conversationID, Err: err}
	}

	metrics.MessagesSentTotal.WithLabelValues("ok").Inc()
	return nil
}
