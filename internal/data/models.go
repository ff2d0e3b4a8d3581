// Package data provides DB models and stores.
package data

import (
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// User maps to the users collection. Email is the identity string used
// across presence, rooms and conversations.
type User struct {
	ID           bson.ObjectID `bson:"_id,omitempty"`
	Email        string        `bson:"email"`
	Name         string        `bson:"name"`
	PasswordHash string        `bson:"password,omitempty"`
	ProfileImage string        `bson:"profile_image,omitempty"`
	IsOnline     bool          `bson:"is_online"`
	LastSeen     *time.Time    `bson:"last_seen,omitempty"`
	SocketID     string        `bson:"socket_id,omitempty"`
	CreatedAt    time.Time     `bson:"created_at"`
	UpdatedAt    time.Time     `bson:"updated_at"`
}

// Conversation maps to the conversations collection. PairKey is the
// sorted "a|b" form of the two participants for direct conversations;
// a unique index on it makes creation idempotent per unordered pair.
type Conversation struct {
	ID                bson.ObjectID  `bson:"_id,omitempty"`
	Participants      []string       `bson:"participants"`
	ConversationType  string         `bson:"conversation_type"`
	PairKey           string         `bson:"pair_key,omitempty"`
	CreatedAt         time.Time      `bson:"created_at"`
	LastMessage       string         `bson:"last_message,omitempty"`
	LastMessageTime   *time.Time     `bson:"last_message_time,omitempty"`
	LastMessageSender string         `bson:"last_message_sender,omitempty"`
	UnreadCount       map[string]int `bson:"unread_count"`
}

// Message maps to the chat_messages collection. Immutable once
// persisted except for the edited fields.
type Message struct {
	ID             bson.ObjectID `bson:"_id,omitempty"`
	ConversationID string        `bson:"conversation_id"`
	SenderEmail    string        `bson:"sender_email"`
	SenderName     string        `bson:"sender_name"`
	Body           string        `bson:"message"`
	Timestamp      time.Time     `bson:"timestamp"`
	Kind           string        `bson:"message_type"`
	Edited         bool          `bson:"edited"`
	EditedAt       *time.Time    `bson:"edited_at,omitempty"`
	ReplyTo        string        `bson:"reply_to,omitempty"`
}

// KindText is the default message kind.
const KindText = "text"

// TypeDirect is the only conversation type the coordinator creates.
const TypeDirect = "direct"
