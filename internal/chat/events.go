package chat

import (
	"encoding/json"
	"errors"
	"time"
)

// Event names consumed from connections.
const (
	EventSendMessage              = "send_message"
	EventJoinConversation         = "join_conversation"
	EventLeaveConversation        = "leave_conversation"
	EventMarkAsRead               = "mark_as_read"
	EventTypingStart              = "typing_start"
	EventTypingStop               = "typing_stop"
	EventGetOnlineUsers           = "get_online_users"
	EventGetConversations         = "get_conversations"
	EventGetConversationsEnriched = "get_conversations_enriched"
)

// Event names produced for connections.
const (
	EventUserOnline                = "user_online"
	EventUserOffline               = "user_offline"
	EventNewMessage                = "new_message"
	EventMessageNotification       = "message_notification"
	EventJoinedConversation        = "joined_conversation"
	EventLeftConversation          = "left_conversation"
	EventMarkedAsRead              = "marked_as_read"
	EventUserTyping                = "user_typing"
	EventOnlineUsers               = "online_users"
	EventConversationsList         = "conversations_list"
	EventEnrichedConversationsList = "enriched_conversations_list"
	EventError                     = "error"
)

// Event is an outbound tagged-variant envelope delivered to a connection.
type Event struct {
	Name string `json:"event"`
	Data any    `json:"data,omitempty"`
}

// Envelope is the inbound wire form: the payload stays raw until the
// event name selects its shape.
type Envelope struct {
	Name string          `json:"event"`
	Data json.RawMessage `json:"data"`
}

// ErrMalformedEvent is returned when an inbound payload fails shape
// validation at the boundary.
var ErrMalformedEvent = errors.New("malformed event payload")

// DecodeEnvelope parses a raw inbound frame.
func DecodeEnvelope(raw []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, ErrMalformedEvent
	}
	if env.Name == "" {
		return nil, ErrMalformedEvent
	}
	return &env, nil
}

// SendMessagePayload is the inbound send_message payload.
type SendMessagePayload struct {
	ToEmail     string `json:"to_email"`
	Message     string `json:"message"`
	MessageType string `json:"message_type"`
	ReplyTo     string `json:"reply_to,omitempty"`
}

// DecodeSendMessage validates and decodes a send_message payload.
func DecodeSendMessage(data json.RawMessage) (*SendMessagePayload, error) {
	var p SendMessagePayload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, ErrMalformedEvent
	}
	if p.ToEmail == "" || p.Message == "" {
		return nil, ErrMalformedEvent
	}
	return &p, nil
}

// ConversationRefPayload is the inbound payload for events that name a
// conversation: join/leave, mark_as_read, typing_start/stop.
type ConversationRefPayload struct {
	ConversationID string `json:"conversation_id"`
}

// DecodeConversationRef validates and decodes a conversation-scoped payload.
func DecodeConversationRef(data json.RawMessage) (*ConversationRefPayload, error) {
	var p ConversationRefPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, ErrMalformedEvent
	}
	if p.ConversationID == "" {
		return nil, ErrMalformedEvent
	}
	return &p, nil
}

// PresencePayload announces an identity's presence transition.
type PresencePayload struct {
	Email string `json:"email"`
}

// MessageView is the outward projection of a persisted message; it is
// both the new_message payload and the REST read-path element.
type MessageView struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	SenderEmail    string    `json:"sender_email"`
	SenderName     string    `json:"sender_name"`
	Body           string    `json:"message"`
	Timestamp      time.Time `json:"timestamp"`
	Kind           string    `json:"message_type"`
	Edited         bool      `json:"edited"`
	ReplyTo        string    `json:"reply_to,omitempty"`
}

// MessageNotificationPayload is the direct-notify payload sent to a
// recipient's own connection alongside the room broadcast.
type MessageNotificationPayload struct {
	ConversationID string `json:"conversation_id"`
	SenderEmail    string `json:"sender_email"`
	SenderName     string `json:"sender_name"`
	Message        string `json:"message"`
}

// MarkedAsReadPayload announces a read-counter reset to the room.
type MarkedAsReadPayload struct {
	ConversationID string `json:"conversation_id"`
	UserEmail      string `json:"user_email"`
}

// TypingPayload announces a typing transition to the room.
type TypingPayload struct {
	ConversationID string `json:"conversation_id"`
	UserEmail      string `json:"user_email"`
	Typing         bool   `json:"typing"`
}

// OnlineUsersPayload lists every currently-online identity.
type OnlineUsersPayload struct {
	Users []string `json:"users"`
}

// ConversationsListPayload carries a conversations_list response.
type ConversationsListPayload struct {
	Conversations []ConversationView `json:"conversations"`
}

// EnrichedConversationsListPayload carries an enriched_conversations_list response.
type EnrichedConversationsListPayload struct {
	Conversations []EnrichedConversationView `json:"conversations"`
}

// ErrorPayload carries a short user-facing failure description. It is
// only ever sent to the originating connection.
type ErrorPayload struct {
	Message string `json:"message"`
}
