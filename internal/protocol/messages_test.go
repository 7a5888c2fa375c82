package protocol

import (
	"encoding/json"
	"testing"
)

func TestParseClientMessageRegister(t *testing.T) {
	data := []byte(`{"type":"register","name":"Alice","email":"a@x.com","password":"secret1","role":"mentor"}`)

	typ, msg, err := ParseClientMessage(data)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if typ != TypeRegister {
		t.Fatalf("type %q, want %q", typ, TypeRegister)
	}
	reg, ok := msg.(RegisterMsg)
	if !ok {
		t.Fatalf("expected RegisterMsg, got %T", msg)
	}
	if reg.Name != "Alice" || reg.Email != "a@x.com" || reg.Role != "mentor" {
		t.Errorf("fields wrong: %+v", reg)
	}
}

func TestParseClientMessageOpenChat(t *testing.T) {
	typ, msg, err := ParseClientMessage([]byte(`{"type":"open_chat","conversation_id":"a_b"}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if typ != TypeOpenChat {
		t.Fatalf("type %q, want %q", typ, TypeOpenChat)
	}
	open, ok := msg.(OpenChatMsg)
	if !ok {
		t.Fatalf("expected OpenChatMsg, got %T", msg)
	}
	if open.ConversationID != "a_b" {
		t.Errorf("conversation id %q", open.ConversationID)
	}
}

func TestParseClientMessageText(t *testing.T) {
	typ, msg, err := ParseClientMessage([]byte(`{"type":"message","text":"hello"}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if typ != TypeMessage {
		t.Fatalf("type %q, want %q", typ, TypeMessage)
	}
	if m := msg.(ChatMsg); m.Text != "hello" {
		t.Errorf("text %q", m.Text)
	}
}

func TestParseClientMessageErrors(t *testing.T) {
	cases := []struct {
		name string
		data string
	}{
		{"invalid json", `{not json`},
		{"missing type", `{"text":"hi"}`},
		{"unknown type", `{"type":"teleport"}`},
		{"server-only type", `{"type":"state"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, _, err := ParseClientMessage([]byte(tc.data)); err == nil {
				t.Errorf("expected error for %s", tc.data)
			}
		})
	}
}

func TestNewServerMessageForcesType(t *testing.T) {
	out, err := NewServerMessage(TypePong, PongMsg{})
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	var m map[string]interface{}
	if err := json.Unmarshal(out, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if m["type"] != TypePong {
		t.Errorf("type %v, want %q", m["type"], TypePong)
	}
}

func TestNewServerMessageState(t *testing.T) {
	state := StateMsg{
		CurrentUser:      &ProfilePayload{ID: "u1", Name: "Alice", Role: "mentor"},
		Directory:        []ProfilePayload{{ID: "u2", Name: "Bob", Role: "intern"}},
		Conversations:    []ConversationPayload{},
		Messages:         []MessagePayload{},
		OpenConversation: "",
		Error:            "send failed",
	}

	out, err := NewServerMessage(TypeState, state)
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	var decoded StateMsg
	if err := json.Unmarshal(out, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.Type != TypeState {
		t.Errorf("type %q, want %q", decoded.Type, TypeState)
	}
	if decoded.CurrentUser == nil || decoded.CurrentUser.Name != "Alice" {
		t.Errorf("current user wrong: %+v", decoded.CurrentUser)
	}
	if len(decoded.Directory) != 1 || decoded.Directory[0].Name != "Bob" {
		t.Errorf("directory wrong: %+v", decoded.Directory)
	}
	if decoded.Error != "send failed" {
		t.Errorf("error slot %q", decoded.Error)
	}
}

func TestEnvelopeKeepsRawPayload(t *testing.T) {
	data := []byte(`{"type":"open_chat_with","user_id":"u9"}`)

	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if env.Type != TypeOpenChatWith {
		t.Fatalf("type %q", env.Type)
	}

	var m OpenChatWithMsg
	if err := json.Unmarshal(env.Raw, &m); err != nil {
		t.Fatalf("deferred decode: %v", err)
	}
	if m.UserID != "u9" {
		t.Errorf("user id %q", m.UserID)
	}
}
