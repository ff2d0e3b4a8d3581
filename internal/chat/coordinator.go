package chat

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/chatsocket/chatsocket/internal/data"
	"github.com/chatsocket/chatsocket/internal/normalize"
)

// Coordinator orchestrates connection lifecycles and the message
// pipeline across the presence registry, room index, conversation state
// manager and broadcast dispatcher. One instance per process; all
// methods are safe for concurrent use by independent connection tasks.
type Coordinator struct {
	svc      *Service
	users    UserGateway
	presence *Presence
	rooms    *Rooms
	dispatch *Dispatcher
}

// NewCoordinator wires a coordinator from its parts.
func NewCoordinator(svc *Service, users UserGateway, presence *Presence, rooms *Rooms, dispatch *Dispatcher) *Coordinator {
	return &Coordinator{
		svc:      svc,
		users:    users,
		presence: presence,
		rooms:    rooms,
		dispatch: dispatch,
	}
}

// Presence exposes the registry for read-only presence checks.
func (c *Coordinator) Presence() *Presence { return c.presence }

// Rooms exposes the room index for membership checks.
func (c *Coordinator) Rooms() *Rooms { return c.rooms }

// Connect registers a new connection for the identity: the sender joins
// the dispatch registry, presence flips online (silently evicting a
// prior handle for the same identity), the user record is marked
// online, the handle is seeded into the room of every existing
// conversation, and user_online is announced to everyone else.
func (c *Coordinator) Connect(ctx context.Context, identity, handle string, sender Sender) error {
	identity = normalize.Email(identity)

	c.dispatch.Register(handle, sender)
	if evicted, replaced := c.presence.Connect(identity, handle); replaced {
		// The evicted connection is not notified; its eventual
		// disconnect is a guarded no-op.
		c.rooms.DropHandle(evicted)
		c.dispatch.Unregister(evicted)
		log.Printf("identity %s reconnected; evicted handle %s", identity, evicted)
	}

	if err := c.users.SetOnlineStatus(ctx, identity, true, handle); err != nil {
		c.presence.Disconnect(handle)
		c.dispatch.Unregister(handle)
		return fmt.Errorf("failed to mark %s online: %w", identity, err)
	}

	convs, err := c.svc.ListFor(ctx, identity)
	if err != nil {
		c.presence.Disconnect(handle)
		c.dispatch.Unregister(handle)
		return fmt.Errorf("failed to seed rooms for %s: %w", identity, err)
	}
	for _, conv := range convs {
		c.rooms.Join(conv.ConversationID, handle)
	}

	c.dispatch.ToAllExcept(handle, Event{Name: EventUserOnline, Data: PresencePayload{Email: identity}})
	log.Printf("user %s connected with handle %s", identity, handle)
	return nil
}

// Disconnect reverses a connection: the handle leaves every room and
// the dispatch registry; if it still owned the identity's presence
// entry, the identity goes offline and user_offline is announced. A
// stale disconnect arriving after a reconnect changes nothing for the
// newer connection.
func (c *Coordinator) Disconnect(ctx context.Context, handle string) {
	c.rooms.DropHandle(handle)
	c.dispatch.Unregister(handle)

	identity, ok := c.presence.Disconnect(handle)
	if !ok {
		return
	}

	if err := c.users.SetOnlineStatus(ctx, identity, false, ""); err != nil {
		log.Printf("failed to mark %s offline: %v", identity, err)
	}

	c.dispatch.ToAllExcept(handle, Event{Name: EventUserOffline, Data: PresencePayload{Email: identity}})
	log.Printf("user %s disconnected", identity)
}

// SendMessage runs the full pipeline for a send request originating
// from a live connection. Stage failures abort the remaining stages and
// surface as an error to the caller; nothing is broadcast on failure.
func (c *Coordinator) SendMessage(ctx context.Context, handle string, req *SendMessagePayload) (*MessageView, error) {
	identity, ok := c.presence.IdentityFor(handle)
	if !ok {
		return nil, ErrUnauthenticated
	}
	return c.sendFrom(ctx, identity, handle, req)
}

// SendFrom runs the pipeline for an already-authenticated identity (the
// REST pass-through). The identity's live handle, if any, participates
// in the room broadcast the same way.
func (c *Coordinator) SendFrom(ctx context.Context, identity string, req *SendMessagePayload) (*MessageView, error) {
	identity = normalize.Email(identity)
	handle, _ := c.presence.HandleFor(identity)
	return c.sendFrom(ctx, identity, handle, req)
}

func (c *Coordinator) sendFrom(ctx context.Context, identity, handle string, req *SendMessagePayload) (*MessageView, error) {
	sender, err := c.users.GetUserByEmail(ctx, identity)
	if err != nil {
		if errors.Is(err, data.ErrUserNotFound) {
			return nil, ErrSenderNotFound
		}
		return nil, err
	}

	to := normalize.Email(req.ToEmail)
	exists, err := c.users.UserExists(ctx, to)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrRecipientNotFound
	}

	conv, err := c.svc.GetOrCreateDirect(ctx, identity, to)
	if err != nil {
		return nil, err
	}
	conversationID := conv.ID.Hex()

	// The body is stored and broadcast verbatim; rendering concerns
	// belong to clients.
	msg, err := c.svc.RecordMessage(ctx, conversationID, identity, sender.Name, req.Message, req.MessageType, req.ReplyTo)
	if err != nil {
		return nil, err
	}
	view := messageView(msg)

	// Membership updates on (possibly new) conversations: the sender's
	// live handle and the recipient's, when online, join the room before
	// the broadcast. Idempotent for already-seeded connections.
	if handle != "" {
		c.rooms.Join(conversationID, handle)
	}
	recipientHandle, recipientOnline := c.presence.HandleFor(to)
	if recipientOnline {
		c.rooms.Join(conversationID, recipientHandle)
	}

	// Broadcast to the whole room, sender's connection included.
	c.dispatch.ToHandles(c.rooms.MembersOf(conversationID), "", Event{Name: EventNewMessage, Data: view})

	// Direct notify guarantees delivery even if the recipient's
	// connection had not yet joined the room.
	if recipientOnline {
		c.dispatch.ToHandle(recipientHandle, Event{Name: EventMessageNotification, Data: MessageNotificationPayload{
			ConversationID: conversationID,
			SenderEmail:    identity,
			SenderName:     sender.Name,
			Message:        view.Body,
		}})
	}

	return &view, nil
}

// JoinConversation subscribes the handle to a room on explicit request.
func (c *Coordinator) JoinConversation(handle, conversationID string) {
	c.rooms.Join(conversationID, handle)
	c.dispatch.ToHandle(handle, Event{Name: EventJoinedConversation, Data: ConversationRefPayload{ConversationID: conversationID}})
}

// LeaveConversation unsubscribes the handle from a room.
func (c *Coordinator) LeaveConversation(handle, conversationID string) {
	c.rooms.Leave(conversationID, handle)
	c.dispatch.ToHandle(handle, Event{Name: EventLeftConversation, Data: ConversationRefPayload{ConversationID: conversationID}})
}

// MarkAsRead zeroes the caller's unread counter and announces the reset
// to the conversation's room.
func (c *Coordinator) MarkAsRead(ctx context.Context, handle, conversationID string) error {
	identity, ok := c.presence.IdentityFor(handle)
	if !ok {
		return ErrUnauthenticated
	}

	if err := c.svc.MarkRead(ctx, conversationID, identity); err != nil {
		return err
	}

	c.dispatch.ToHandles(c.rooms.MembersOf(conversationID), "", Event{Name: EventMarkedAsRead, Data: MarkedAsReadPayload{
		ConversationID: conversationID,
		UserEmail:      identity,
	}})
	return nil
}

// Typing announces a typing transition to everyone else in the room.
func (c *Coordinator) Typing(handle, conversationID string, typing bool) error {
	identity, ok := c.presence.IdentityFor(handle)
	if !ok {
		return ErrUnauthenticated
	}

	c.dispatch.ToHandles(c.rooms.MembersOf(conversationID), handle, Event{Name: EventUserTyping, Data: TypingPayload{
		ConversationID: conversationID,
		UserEmail:      identity,
		Typing:         typing,
	}})
	return nil
}

// OnlineUsers answers the caller with the current online identities.
func (c *Coordinator) OnlineUsers(handle string) {
	c.dispatch.ToHandle(handle, Event{Name: EventOnlineUsers, Data: OnlineUsersPayload{Users: c.presence.Online()}})
}

// Conversations answers the caller with its conversation list.
func (c *Coordinator) Conversations(ctx context.Context, handle string) error {
	identity, ok := c.presence.IdentityFor(handle)
	if !ok {
		return ErrUnauthenticated
	}

	views, err := c.svc.ListFor(ctx, identity)
	if err != nil {
		return err
	}
	c.dispatch.ToHandle(handle, Event{Name: EventConversationsList, Data: ConversationsListPayload{Conversations: views}})
	return nil
}

// ConversationsEnriched answers the caller with its conversation list,
// participants resolved to display summaries.
func (c *Coordinator) ConversationsEnriched(ctx context.Context, handle string) error {
	identity, ok := c.presence.IdentityFor(handle)
	if !ok {
		return ErrUnauthenticated
	}

	views, err := c.svc.ListEnriched(ctx, identity)
	if err != nil {
		return err
	}
	c.dispatch.ToHandle(handle, Event{Name: EventEnrichedConversationsList, Data: EnrichedConversationsListPayload{Conversations: views}})
	return nil
}
