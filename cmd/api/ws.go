package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/chatsocket/chatsocket/internal/chat"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendBuffer     = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Token auth is the access control; cross-origin browser clients
	// are expected.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsClient is one live websocket connection. It satisfies chat.Sender:
// deliveries are queued on a buffered channel so a slow reader never
// blocks the dispatching goroutine.
type wsClient struct {
	handle    string
	conn      *websocket.Conn
	send      chan chat.Event
	done      chan struct{}
	closeOnce sync.Once
}

var errConnClosed = errors.New("connection closed")

func newWSClient(handle string, conn *websocket.Conn) *wsClient {
	return &wsClient{
		handle: handle,
		conn:   conn,
		send:   make(chan chat.Event, sendBuffer),
		done:   make(chan struct{}),
	}
}

// Send queues an event for delivery. Non-blocking: a reader too slow to
// drain its buffer gets the whole connection dropped rather than ever
// stalling the dispatching goroutine.
func (c *wsClient) Send(ev chat.Event) error {
	select {
	case <-c.done:
		return errConnClosed
	case c.send <- ev:
		return nil
	default:
		c.close()
		return errors.New("send buffer full; dropping connection")
	}
}

// close signals both pumps to shut the connection down. Safe to call
// more than once and from any goroutine.
func (c *wsClient) close() {
	c.closeOnce.Do(func() { close(c.done) })
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case ev := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

// newHandle generates an unguessable connection handle.
func newHandle() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// wsToken pulls the JWT from the query string, falling back to the
// Authorization header for non-browser clients.
func wsToken(r *http.Request) string {
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}
	return strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
}

func (s *server) handleWS(w http.ResponseWriter, r *http.Request) {
	claims, err := s.jwt.VerifyToken(wsToken(r))
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid token")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("websocket upgrade failed: %v", err)
		return
	}

	handle, err := newHandle()
	if err != nil {
		_ = conn.Close()
		return
	}

	client := newWSClient(handle, conn)
	if err := s.coord.Connect(r.Context(), claims.Email, handle, client); err != nil {
		log.Printf("connect failed for %s: %v", claims.Email, err)
		_ = conn.WriteJSON(chat.Event{Name: chat.EventError, Data: chat.ErrorPayload{Message: "connection failed"}})
		_ = conn.Close()
		return
	}

	go client.writePump()
	s.readPump(client)
}

// readPump owns the connection's read side. It exits on any read error
// (client gone, protocol violation, oversized frame) and unwinds the
// connection through the coordinator.
func (s *server) readPump(c *wsClient) {
	defer func() {
		c.close()
		_ = c.conn.Close()
		// The request context is gone once the handler returns; the
		// offline write gets its own deadline.
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.coord.Disconnect(ctx, c.handle)
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("websocket read error on %s: %v", c.handle, err)
			}
			return
		}
		s.handleEvent(c, raw)
	}
}

// handleEvent routes one inbound frame to the coordinator. Failures are
// reported back on the same connection as error events; the connection
// itself stays up.
func (s *server) handleEvent(c *wsClient, raw []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	env, err := chat.DecodeEnvelope(raw)
	if err != nil {
		c.sendError("malformed event")
		return
	}

	switch env.Name {
	case chat.EventSendMessage:
		payload, err := chat.DecodeSendMessage(env.Data)
		if err != nil {
			c.sendError("malformed event")
			return
		}
		if _, err := s.coord.SendMessage(ctx, c.handle, payload); err != nil {
			c.sendError(clientMessage(err))
		}

	case chat.EventJoinConversation:
		payload, err := chat.DecodeConversationRef(env.Data)
		if err != nil {
			c.sendError("malformed event")
			return
		}
		s.coord.JoinConversation(c.handle, payload.ConversationID)

	case chat.EventLeaveConversation:
		payload, err := chat.DecodeConversationRef(env.Data)
		if err != nil {
			c.sendError("malformed event")
			return
		}
		s.coord.LeaveConversation(c.handle, payload.ConversationID)

	case chat.EventMarkAsRead:
		payload, err := chat.DecodeConversationRef(env.Data)
		if err != nil {
			c.sendError("malformed event")
			return
		}
		if err := s.coord.MarkAsRead(ctx, c.handle, payload.ConversationID); err != nil {
			c.sendError(clientMessage(err))
		}

	case chat.EventTypingStart, chat.EventTypingStop:
		payload, err := chat.DecodeConversationRef(env.Data)
		if err != nil {
			c.sendError("malformed event")
			return
		}
		if err := s.coord.Typing(c.handle, payload.ConversationID, env.Name == chat.EventTypingStart); err != nil {
			c.sendError(clientMessage(err))
		}

	case chat.EventGetOnlineUsers:
		s.coord.OnlineUsers(c.handle)

	case chat.EventGetConversations:
		if err := s.coord.Conversations(ctx, c.handle); err != nil {
			c.sendError(clientMessage(err))
		}

	case chat.EventGetConversationsEnriched:
		if err := s.coord.ConversationsEnriched(ctx, c.handle); err != nil {
			c.sendError(clientMessage(err))
		}

	default:
		c.sendError("unknown event")
	}
}

func (c *wsClient) sendError(msg string) {
	_ = c.Send(chat.Event{Name: chat.EventError, Data: chat.ErrorPayload{Message: msg}})
}

// clientMessage keeps error payloads short and fixed: pipeline
// sentinels speak for themselves, anything else stays opaque.
func clientMessage(err error) string {
	switch {
	case errors.Is(err, chat.ErrUnauthenticated),
		errors.Is(err, chat.ErrInvalidParticipants),
		errors.Is(err, chat.ErrSenderNotFound),
		errors.Is(err, chat.ErrRecipientNotFound),
		errors.Is(err, chat.ErrConversationNotFound):
		return err.Error()
	default:
		return "internal error"
	}
}
