package chat

import (
	"time"

	"github.com/byteofhoney/TaskChatApp/internal/store"
)

// ChatsCollection is the document store collection holding conversations.
const ChatsCollection = "chats"

// MessagesCollection returns the message subcollection path for a
// conversation.
func MessagesCollection(conversationID string) string {
	return ChatsCollection + "/" + conversationID + "/messages"
}

// Conversation is a 1:1 chat between exactly two participants. LastMessage
// and LastMessageTime are the denormalized preview updated on every send;
// a conversation with no messages yet carries the creation timestamp.
type Conversation struct {
	ID               string
	Participants     []string
	ParticipantNames []string // ordered to match Participants
	LastMessage      string
	LastMessageTime  time.Time
	CreatedAt        time.Time
}

// PartnerName returns the display name of the other participant, or "" when
// myID is not a participant or the names are missing.
func (c Conversation) PartnerName(myID string) string {
	mine := false
	for _, id := range c.Participants {
		if id == myID {
			mine = true
			break
		}
	}
	if !mine {
		return ""
	}
	for i, id := range c.Participants {
		if id != myID && i < len(c.ParticipantNames) {
			return c.ParticipantNames[i]
		}
	}
	return ""
}

// Message is one immutable chat message. The id is assigned by the store at
// creation.
type Message struct {
	ID         string
	Text       string
	SenderID   string
	SenderName string
	Timestamp  time.Time
}

func conversationFromDoc(d store.Doc) Conversation {
	return Conversation{
		ID:               d.ID,
		Participants:     d.Strings("participants"),
		ParticipantNames: d.Strings("participantNames"),
		LastMessage:      d.String("lastMessage"),
		LastMessageTime:  d.Time("lastMessageTime"),
		CreatedAt:        d.Time("createdAt"),
	}
}

func conversationsFromDocs(docs []store.Doc) []Conversation {
	out := make([]Conversation, 0, len(docs))
	for _, d := range docs {
		out = append(out, conversationFromDoc(d))
	}
	return out
}

func messageFromDoc(d store.Doc) Message {
	return Message{
		ID:         d.ID,
		Text:       d.String("text"),
		SenderID:   d.String("senderId"),
		SenderName: d.String("senderName"),
		Timestamp:  d.Time("timestamp"),
	}
}

func messagesFromDocs(docs []store.Doc) []Message {
	out := make([]Message, 0, len(docs))
	for _, d := range docs {
		out = append(out, messageFromDoc(d))
	}
	return out
}
