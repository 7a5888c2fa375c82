// Package protocol defines the WebSocket message types and structures used
// for communication between the mobile client and the gateway. All messages
// are serialized as JSON and follow a consistent envelope format with a type
// discriminator.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// ---------------------------------------------------------------------------
// Message type constants
// ---------------------------------------------------------------------------

// Client -> Server message types.
const (
	TypeRegister     = "register"
	TypeResume       = "resume"
	TypeOpenChat     = "open_chat"
	TypeOpenChatWith = "open_chat_with"
	TypeCloseChat    = "close_chat"
	TypeMessage      = "message"
	TypeClearError   = "clear_error"
	TypeSignOut      = "sign_out"
	TypePing         = "ping"
)

// Server -> Client message types.
const (
	TypeState = "state"
	TypeError = "error"
	TypePong  = "pong"
)

// ---------------------------------------------------------------------------
// Envelope — used for initial JSON parsing to extract the type discriminator.
// ---------------------------------------------------------------------------

// Envelope holds the message type and the raw JSON payload for deferred
// parsing into a concrete struct.
type Envelope struct {
	Type string          `json:"type"`
	Raw  json.RawMessage `json:"-"`
}

// UnmarshalJSON implements the json.Unmarshaler interface. It captures the
// full raw bytes and extracts only the "type" field so that the rest of the
// payload can be decoded later into the appropriate concrete struct.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	// Capture the full raw message for deferred parsing.
	e.Raw = make(json.RawMessage, len(data))
	copy(e.Raw, data)

	// Extract only the type field.
	var partial struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &partial); err != nil {
		return fmt.Errorf("protocol: failed to unmarshal envelope: %w", err)
	}
	if partial.Type == "" {
		return fmt.Errorf("protocol: missing or empty \"type\" field")
	}
	e.Type = partial.Type
	return nil
}

// ---------------------------------------------------------------------------
// Client -> Server message structs
// ---------------------------------------------------------------------------

// RegisterMsg is sent by the client to register or sign in. The server tries
// account creation first and falls back to sign-in with the same
// credentials.
type RegisterMsg struct {
	Type     string `json:"type"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"` // "mentor" or "intern"
}

// ResumeMsg asks the server to reload the profile of an already signed-in
// session.
type ResumeMsg struct {
	Type string `json:"type"`
}

// OpenChatMsg opens the message view for a known conversation id.
type OpenChatMsg struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversation_id"`
}

// OpenChatWithMsg opens (creating on first contact) the conversation with a
// user from the directory.
type OpenChatWithMsg struct {
	Type   string `json:"type"`
	UserID string `json:"user_id"`
}

// CloseChatMsg closes the open message view.
type CloseChatMsg struct {
	Type string `json:"type"`
}

// ChatMsg is a text message sent by the client into the open conversation.
type ChatMsg struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// ClearErrorMsg clears the server-side error slot for this session.
type ClearErrorMsg struct {
	Type string `json:"type"`
}

// SignOutMsg ends the signed-in session.
type SignOutMsg struct {
	Type string `json:"type"`
}

// PingMsg is a client-initiated keepalive ping.
type PingMsg struct {
	Type string `json:"type"`
}

// ---------------------------------------------------------------------------
// Server -> Client message structs
// ---------------------------------------------------------------------------

// ProfilePayload is one directory entry or the current user.
type ProfilePayload struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email,omitempty"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// ConversationPayload is one conversation-list entry with its denormalized
// preview.
type ConversationPayload struct {
	ID               string    `json:"id"`
	Participants     []string  `json:"participants"`
	ParticipantNames []string  `json:"participant_names"`
	LastMessage      string    `json:"last_message"`
	LastMessageTime  time.Time `json:"last_message_time"`
	CreatedAt        time.Time `json:"created_at"`
}

// MessagePayload is one message in the open conversation.
type MessagePayload struct {
	ID         string    `json:"id"`
	Text       string    `json:"text"`
	SenderID   string    `json:"sender_id"`
	SenderName string    `json:"sender_name"`
	Timestamp  time.Time `json:"timestamp"`
}

// StateMsg is the full projected state pushed to the client after every
// change. Lists are always full replacements, never deltas.
type StateMsg struct {
	Type             string                `json:"type"`
	CurrentUser      *ProfilePayload       `json:"current_user"`
	Directory        []ProfilePayload      `json:"directory"`
	Conversations    []ConversationPayload `json:"conversations"`
	Messages         []MessagePayload      `json:"messages"`
	OpenConversation string                `json:"open_conversation"`
	Loading          bool                  `json:"loading"`
	Error            string                `json:"error,omitempty"`
}

// ErrorMsg is sent by the server to communicate an error condition.
type ErrorMsg struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// PongMsg is the server's response to a client ping.
type PongMsg struct {
	Type string `json:"type"`
}

// ---------------------------------------------------------------------------
// Helper functions
// ---------------------------------------------------------------------------

// ParseClientMessage parses raw WebSocket bytes into a typed client message.
// It returns the message type string, the decoded struct, and any error
// encountered during parsing. An error is returned for unknown or
// server-only message types.
func ParseClientMessage(data []byte) (string, interface{}, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", nil, fmt.Errorf("protocol: failed to parse message: %w", err)
	}

	var (
		msg interface{}
		err error
	)

	switch env.Type {
	case TypeRegister:
		var m RegisterMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeResume:
		var m ResumeMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeOpenChat:
		var m OpenChatMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeOpenChatWith:
		var m OpenChatWithMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeCloseChat:
		var m CloseChatMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeMessage:
		var m ChatMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeClearError:
		var m ClearErrorMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeSignOut:
		var m SignOutMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypePing:
		var m PingMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	default:
		return env.Type, nil, fmt.Errorf("protocol: unknown client message type %q", env.Type)
	}

	if err != nil {
		return env.Type, nil, fmt.Errorf("protocol: failed to parse %s message: %w", env.Type, err)
	}
	return env.Type, msg, nil
}

// NewServerMessage builds a marshaled server message of the given type from
// the payload struct, forcing the "type" field to the given value.
func NewServerMessage(msgType string, payload interface{}) ([]byte, error) {
	// Marshal the payload struct to a generic map so we can ensure the "type"
	// field is present and correct.
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("protocol: failed to marshal payload: %w", err)
	}

	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("protocol: failed to unmarshal payload into map: %w", err)
	}

	m["type"] = msgType

	out, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("protocol: failed to marshal server message: %w", err)
	}
	return out, nil
}
