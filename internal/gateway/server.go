// Package gateway exposes the chat core to mobile clients over WebSocket.
// Each connection gets its own session manager and state projector bound to
// the shared store and auth provider; every projector change is pushed to
// the client as a full state message.
package gateway

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/google/uuid"

	"github.com/byteofhoney/TaskChatApp/internal/auth"
	"github.com/byteofhoney/TaskChatApp/internal/chat"
	"github.com/byteofhoney/TaskChatApp/internal/metrics"
	"github.com/byteofhoney/TaskChatApp/internal/protocol"
	"github.com/byteofhoney/TaskChatApp/internal/store"
	"github.com/byteofhoney/TaskChatApp/internal/user"
	"github.com/byteofhoney/TaskChatApp/internal/view"
)

// Config holds tunable parameters for the gateway.
type Config struct {
	WriteTimeout   time.Duration // timeout for WebSocket write operations
	CommandTimeout time.Duration // timeout for store/auth operations per command
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		WriteTimeout:   10 * time.Second,
		CommandTimeout: 10 * time.Second,
	}
}

// Server upgrades HTTP connections to WebSocket and runs one read loop per
// client. A handful of mobile clients per node is expected, so each
// connection simply owns a blocking reader goroutine.
type Server struct {
	config   Config
	st       store.Store
	provider auth.Provider
	svc      *chat.Service

	mu      sync.Mutex
	clients map[string]*client
}

// client is one connected WebSocket session.
type client struct {
	id       string
	conn     net.Conn
	writeMu  sync.Mutex
	sessions *user.SessionManager
	proj     *view.Projector
	config   Config
}

// NewServer creates a gateway over the shared store and auth provider.
func NewServer(config Config, st store.Store, provider auth.Provider) *Server {
	return &Server{
		config:   config,
		st:       st,
		provider: provider,
		svc:      chat.NewService(st),
		clients:  make(map[string]*client),
	}
}

// HandleWS upgrades the request and starts the client's read loop. It is
// mounted on the /ws route.
func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, _, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		log.Printf("[gateway] upgrade failed: %v", err)
		return
	}

	c := &client{
		id:     uuid.NewString(),
		conn:   conn,
		config: s.config,
	}
	c.sessions = user.NewSessionManager(s.provider, s.st)
	c.proj = view.NewProjector(c.sessions, s.svc, s.st, c.pushState)

	s.mu.Lock()
	s.clients[c.id] = c
	s.mu.Unlock()
	metrics.ConnectionsTotal.Inc()
	log.Printf("[gateway] client %s connected from %s", c.id, conn.RemoteAddr())

	go s.readLoop(c)
}

// HandleHealth is a minimal liveness endpoint.
func (s *Server) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	n := len(s.clients)
	s.mu.Unlock()
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "ok clients=%d\n", n)
}

// Shutdown closes every client connection and its projector.
func (s *Server) Shutdown() {
	s.mu.Lock()
	clients := make([]*client, 0, len(s.clients))
	for _, c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.Unlock()

	for _, c := range clients {
		s.drop(c)
	}
}

// readLoop reads frames until the connection dies, dispatching each one.
func (s *Server) readLoop(c *client) {
	defer s.drop(c)

	for {
		data, err := wsutil.ReadClientText(c.conn)
		if err != nil {
			log.Printf("[gateway] client %s read: %v", c.id, err)
			return
		}
		s.dispatch(c, data)
	}
}

// drop removes the client, closes its projector (releasing all live
// subscriptions) and the socket. Safe to call more than once per client.
func (s *Server) drop(c *client) {
	s.mu.Lock()
	_, present := s.clients[c.id]
	delete(s.clients, c.id)
	s.mu.Unlock()
	if !present {
		return
	}

	c.proj.Close()
	c.conn.Close()
	metrics.ConnectionsTotal.Dec()
	log.Printf("[gateway] client %s disconnected", c.id)
}

// dispatch parses one client frame and applies it to the projector. Command
// failures already land in the projector's error slot and reach the client
// through the next state push; only protocol-level problems get a dedicated
// error reply.
func (s *Server) dispatch(c *client, data []byte) {
	msgType, msg, err := protocol.ParseClientMessage(data)
	if err != nil {
		log.Printf("[gateway] client %s parse error: %v", c.id, err)
		c.sendError("parse_error", "invalid message format")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.config.CommandTimeout)
	defer cancel()

	switch m := msg.(type) {
	case protocol.RegisterMsg:
		role := user.Role(m.Role)
		if !role.Valid() {
			c.sendError("bad_role", fmt.Sprintf("unknown role %q", m.Role))
			return
		}
		_ = c.proj.RegisterOrSignIn(ctx, m.Name, m.Email, m.Password, role)

	case protocol.ResumeMsg:
		_ = c.proj.Resume(ctx)

	case protocol.OpenChatMsg:
		_ = c.proj.OpenConversation(m.ConversationID)

	case protocol.OpenChatWithMsg:
		other, err := user.FetchProfile(ctx, s.st, m.UserID)
		if err != nil {
			c.sendError("lookup_failed", "could not load user")
			return
		}
		if other == nil {
			c.sendError("unknown_user", fmt.Sprintf("no such user %q", m.UserID))
			return
		}
		_, _ = c.proj.OpenConversationWith(ctx, *other)

	case protocol.CloseChatMsg:
		c.proj.CloseConversation()

	case protocol.ChatMsg:
		_ = c.proj.SendMessage(ctx, m.Text)

	case protocol.ClearErrorMsg:
		c.proj.ClearError()

	case protocol.SignOutMsg:
		c.sessions.SignOut()
		c.proj.CloseConversation()

	case protocol.PingMsg:
		c.send(protocol.TypePong, protocol.PongMsg{})

	default:
		c.sendError("unsupported", fmt.Sprintf("unsupported message type %q", msgType))
	}
}

// pushState is the projector's onChange hook: it serializes the state copy
// and writes it to the client.
func (c *client) pushState(state view.State) {
	c.send(protocol.TypeState, stateMsg(state))
}

func (c *client) sendError(code, message string) {
	c.send(protocol.TypeError, protocol.ErrorMsg{Code: code, Message: message})
}

// send marshals and writes one server message. Writes are serialized per
// connection; a failed write is logged and the read loop tears the
// connection down on its next read error.
func (c *client) send(msgType string, payload interface{}) {
	data, err := protocol.NewServerMessage(msgType, payload)
	if err != nil {
		log.Printf("[gateway] client %s marshal %s: %v", c.id, msgType, err)
		return
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout)); err != nil {
		log.Printf("[gateway] client %s set deadline: %v", c.id, err)
		return
	}
	if err := wsutil.WriteServerText(c.conn, data); err != nil {
		log.Printf("[gateway] client %s write %s: %v", c.id, msgType, err)
	}
}

// stateMsg converts the projected state into its wire representation.
func stateMsg(state view.State) protocol.StateMsg {
	out := protocol.StateMsg{
		Directory:        make([]protocol.ProfilePayload, 0, len(state.Directory)),
		Conversations:    make([]protocol.ConversationPayload, 0, len(state.Conversations)),
		Messages:         make([]protocol.MessagePayload, 0, len(state.Messages)),
		OpenConversation: state.OpenConversation,
		Loading:          state.Loading,
		Error:            state.Err,
	}
	if state.CurrentUser != nil {
		p := profilePayload(*state.CurrentUser)
		out.CurrentUser = &p
	}
	for _, u := range state.Directory {
		out.Directory = append(out.Directory, profilePayload(u))
	}
	for _, conv := range state.Conversations {
		out.Conversations = append(out.Conversations, protocol.ConversationPayload{
			ID:               conv.ID,
			Participants:     conv.Participants,
			ParticipantNames: conv.ParticipantNames,
			LastMessage:      conv.LastMessage,
			LastMessageTime:  conv.LastMessageTime,
			CreatedAt:        conv.CreatedAt,
		})
	}
	for _, msg := range state.Messages {
		out.Messages = append(out.Messages, protocol.MessagePayload{
			ID:         msg.ID,
			Text:       msg.Text,
			SenderID:   msg.SenderID,
			SenderName: msg.SenderName,
			Timestamp:  msg.Timestamp,
		})
	}
	return out
}

func profilePayload(p user.Profile) protocol.ProfilePayload {
	return protocol.ProfilePayload{
		ID:        p.ID,
		Name:      p.Name,
		Email:     p.Email,
		Role:      string(p.Role),
		CreatedAt: p.CreatedAt,
	}
}
