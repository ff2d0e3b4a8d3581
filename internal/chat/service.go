package chat

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/chatsocket/chatsocket/internal/data"
	"github.com/chatsocket/chatsocket/internal/normalize"
)

// UserGateway is the slice of the persistence gateway the chat core
// needs for user records. *data.UsersStore satisfies it.
type UserGateway interface {
	GetUserByEmail(ctx context.Context, email string) (*data.User, error)
	UserExists(ctx context.Context, email string) (bool, error)
	SetOnlineStatus(ctx context.Context, email string, online bool, socketID string) error
}

// ConversationGateway is the persistence surface for conversation
// documents. *data.ConversationsStore satisfies it.
type ConversationGateway interface {
	FindDirect(ctx context.Context, a, b string) (*data.Conversation, error)
	CreateDirect(ctx context.Context, a, b string) (*data.Conversation, error)
	FindByID(ctx context.Context, id string) (*data.Conversation, error)
	ApplyMessage(ctx context.Context, id string, participants []string, sender, body string, at time.Time) error
	MarkRead(ctx context.Context, id, email string) error
	ListFor(ctx context.Context, email string) ([]*data.Conversation, error)
}

// MessageGateway is the persistence surface for message documents.
// *data.MessagesStore satisfies it.
type MessageGateway interface {
	SaveMessage(ctx context.Context, conversationID, senderEmail, senderName, body, kind, replyTo string) (*data.Message, error)
	ListMessages(ctx context.Context, conversationID string, skip, limit int64) ([]*data.Message, error)
}

// ConversationView projects a conversation down to one participant's
// perspective: the unread map collapses to that identity's counter.
type ConversationView struct {
	ConversationID    string     `json:"conversation_id"`
	Participants      []string   `json:"participants"`
	LastMessage       string     `json:"last_message,omitempty"`
	LastMessageTime   *time.Time `json:"last_message_time,omitempty"`
	LastMessageSender string     `json:"last_message_sender,omitempty"`
	UnreadCount       int        `json:"unread_count"`
}

// ParticipantSummary is a displayable participant: resolved from the
// user record when one exists, synthesized from the identity otherwise.
type ParticipantSummary struct {
	Email        string `json:"email"`
	Name         string `json:"name"`
	ProfileImage string `json:"profile_image,omitempty"`
	IsOnline     bool   `json:"is_online"`
}

// EnrichedConversationView is a ConversationView whose participants are
// resolved to display summaries.
type EnrichedConversationView struct {
	ConversationID    string               `json:"conversation_id"`
	Participants      []ParticipantSummary `json:"participants"`
	LastMessage       string               `json:"last_message,omitempty"`
	LastMessageTime   *time.Time           `json:"last_message_time,omitempty"`
	LastMessageSender string               `json:"last_message_sender,omitempty"`
	UnreadCount       int                  `json:"unread_count"`
}

// Service is the conversation state manager: it owns the read/mutate
// sequences on conversation metadata and the per-pair creation
// serialization.
type Service struct {
	users UserGateway
	convs ConversationGateway
	msgs  MessageGateway

	pairMu sync.Mutex
	pairs  map[string]*sync.Mutex
}

// NewService wires a Service with its persistence gateways.
func NewService(users UserGateway, convs ConversationGateway, msgs MessageGateway) *Service {
	return &Service{
		users: users,
		convs: convs,
		msgs:  msgs,
		pairs: make(map[string]*sync.Mutex),
	}
}

// pairLock returns the mutex serializing creation for one unordered
// pair. Entries are never evicted; the map is bounded by the number of
// distinct pairs seen by this process.
func (s *Service) pairLock(key string) *sync.Mutex {
	s.pairMu.Lock()
	defer s.pairMu.Unlock()
	mu, ok := s.pairs[key]
	if !ok {
		mu = &sync.Mutex{}
		s.pairs[key] = mu
	}
	return mu
}

// GetOrCreateDirect returns the direct conversation for the unordered
// pair (a, b), creating it with zeroed unread counters when absent. At
// most one conversation ever exists per pair: creation is serialized
// per pair in-process, and the store's unique pair key resolves races
// with other writers.
func (s *Service) GetOrCreateDirect(ctx context.Context, a, b string) (*data.Conversation, error) {
	a, b = normalize.Email(a), normalize.Email(b)
	if a == "" || b == "" || a == b {
		return nil, ErrInvalidParticipants
	}

	mu := s.pairLock(data.PairKey(a, b))
	mu.Lock()
	defer mu.Unlock()

	conv, err := s.convs.FindDirect(ctx, a, b)
	if err == nil {
		return conv, nil
	}
	if !errors.Is(err, data.ErrConversationNotFound) {
		return nil, err
	}
	return s.convs.CreateDirect(ctx, a, b)
}

// RecordMessage persists the message, then updates the conversation's
// last-message fields and increments every other participant's unread
// counter in one atomic store update.
func (s *Service) RecordMessage(ctx context.Context, conversationID, senderEmail, senderName, body, kind, replyTo string) (*data.Message, error) {
	conv, err := s.convs.FindByID(ctx, conversationID)
	if err != nil {
		if errors.Is(err, data.ErrConversationNotFound) {
			return nil, ErrConversationNotFound
		}
		return nil, err
	}

	msg, err := s.msgs.SaveMessage(ctx, conversationID, senderEmail, senderName, body, kind, replyTo)
	if err != nil {
		return nil, err
	}

	if err := s.convs.ApplyMessage(ctx, conversationID, conv.Participants, msg.SenderEmail, body, msg.Timestamp); err != nil {
		return nil, err
	}
	return msg, nil
}

// MarkRead zeroes the identity's unread counter for the conversation.
// Idempotent; marking an already-read conversation is not an error.
func (s *Service) MarkRead(ctx context.Context, conversationID, email string) error {
	err := s.convs.MarkRead(ctx, conversationID, normalize.Email(email))
	if errors.Is(err, data.ErrConversationNotFound) {
		return ErrConversationNotFound
	}
	return err
}

// ListFor returns the identity's conversations, most recently active
// first, each projected down to that identity's unread counter.
func (s *Service) ListFor(ctx context.Context, email string) ([]ConversationView, error) {
	email = normalize.Email(email)
	convs, err := s.convs.ListFor(ctx, email)
	if err != nil {
		return nil, err
	}

	views := make([]ConversationView, 0, len(convs))
	for _, c := range convs {
		views = append(views, ConversationView{
			ConversationID:    c.ID.Hex(),
			Participants:      c.Participants,
			LastMessage:       c.LastMessage,
			LastMessageTime:   c.LastMessageTime,
			LastMessageSender: c.LastMessageSender,
			UnreadCount:       c.UnreadCount[email],
		})
	}
	return views, nil
}

// ListEnriched is ListFor with each participant resolved to a display
// summary. A participant whose user record is missing still yields a
// usable summary with the identity's local part as the name; callers
// depend on always getting a displayable participant list.
func (s *Service) ListEnriched(ctx context.Context, email string) ([]EnrichedConversationView, error) {
	email = normalize.Email(email)
	convs, err := s.convs.ListFor(ctx, email)
	if err != nil {
		return nil, err
	}

	views := make([]EnrichedConversationView, 0, len(convs))
	for _, c := range convs {
		participants := make([]ParticipantSummary, 0, len(c.Participants))
		for _, p := range c.Participants {
			u, err := s.users.GetUserByEmail(ctx, p)
			switch {
			case err == nil:
				participants = append(participants, ParticipantSummary{
					Email:        u.Email,
					Name:         u.Name,
					ProfileImage: u.ProfileImage,
					IsOnline:     u.IsOnline,
				})
			case errors.Is(err, data.ErrUserNotFound):
				participants = append(participants, ParticipantSummary{
					Email: normalize.Email(p),
					Name:  normalize.LocalPart(p),
				})
			default:
				return nil, err
			}
		}

		views = append(views, EnrichedConversationView{
			ConversationID:    c.ID.Hex(),
			Participants:      participants,
			LastMessage:       c.LastMessage,
			LastMessageTime:   c.LastMessageTime,
			LastMessageSender: c.LastMessageSender,
			UnreadCount:       c.UnreadCount[email],
		})
	}
	return views, nil
}

// Messages returns one chronological page of a conversation's history.
func (s *Service) Messages(ctx context.Context, conversationID string, skip, limit int64) ([]MessageView, error) {
	msgs, err := s.msgs.ListMessages(ctx, conversationID, skip, limit)
	if err != nil {
		return nil, err
	}

	views := make([]MessageView, 0, len(msgs))
	for _, m := range msgs {
		views = append(views, messageView(m))
	}
	return views, nil
}

func messageView(m *data.Message) MessageView {
	return MessageView{
		ID:             m.ID.Hex(),
		ConversationID: m.ConversationID,
		SenderEmail:    m.SenderEmail,
		SenderName:     m.SenderName,
		Body:           m.Body,
		Timestamp:      m.Timestamp,
		Kind:           m.Kind,
		Edited:         m.Edited,
		ReplyTo:        m.ReplyTo,
	}
}
