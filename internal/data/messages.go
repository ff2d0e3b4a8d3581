package data

import (
	"context"
	"time"

	"github.com/chatsocket/chatsocket/internal/normalize"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// Pagination bounds for message reads.
const (
	DefaultPageSize = 50
	MaxPageSize     = 200
)

// MessagesStore provides message database operations.
type MessagesStore struct {
	coll *mongo.Collection
}

// NewMessagesStore returns a MessagesStore using the given collection.
func NewMessagesStore(coll *mongo.Collection) *MessagesStore {
	return &MessagesStore{coll: coll}
}

// SaveMessage inserts a message document and returns the saved record.
// The timestamp reflects persistence time; read-path ordering is always
// by this field.
func (m *MessagesStore) SaveMessage(ctx context.Context, conversationID, senderEmail, senderName, body, kind, replyTo string) (*Message, error) {
	if kind == "" {
		kind = KindText
	}

	msg := &Message{
		ConversationID: conversationID,
		SenderEmail:    normalize.Email(senderEmail),
		SenderName:     senderName,
		Body:           body,
		Timestamp:      time.Now().UTC(),
		Kind:           kind,
		Edited:         false,
		ReplyTo:        replyTo,
	}

	result, err := m.coll.InsertOne(ctx, msg)
	if err != nil {
		return nil, err
	}

	msg.ID = result.InsertedID.(bson.ObjectID)
	return msg, nil
}

// ListMessages returns a page of a conversation's messages in
// chronological order. The storage query runs newest-first with
// skip/limit and the page is reversed before returning, so callers
// always see ascending timestamps.
func (m *MessagesStore) ListMessages(ctx context.Context, conversationID string, skip, limit int64) ([]*Message, error) {
	if skip < 0 {
		skip = 0
	}
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}

	opts := options.Find().
		SetSort(bson.M{"timestamp": -1}).
		SetSkip(skip).
		SetLimit(limit)

	cursor, err := m.coll.Find(ctx, bson.M{"conversation_id": conversationID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var messages []*Message
	if err = cursor.All(ctx, &messages); err != nil {
		return nil, err
	}

	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}
