package data

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chatsocket/chatsocket/internal/normalize"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// ErrConversationNotFound is returned when no conversation matches the query.
var ErrConversationNotFound = errors.New("conversation not found")

// ConversationsStore performs conversation DB operations.
type ConversationsStore struct {
	coll *mongo.Collection
}

// NewConversationsStore returns a ConversationsStore using the provided collection.
func NewConversationsStore(coll *mongo.Collection) *ConversationsStore {
	return &ConversationsStore{coll: coll}
}

// PairKey returns the deterministic key for an unordered participant
// pair: both identities normalized, sorted, joined with "|".
func PairKey(a, b string) string {
	a, b = normalize.Email(a), normalize.Email(b)
	if b < a {
		a, b = b, a
	}
	return a + "|" + b
}

// FindDirect looks up the direct conversation for an unordered pair.
func (c *ConversationsStore) FindDirect(ctx context.Context, a, b string) (*Conversation, error) {
	var conv Conversation
	err := c.coll.FindOne(ctx, bson.M{
		"pair_key":          PairKey(a, b),
		"conversation_type": TypeDirect,
	}).Decode(&conv)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrConversationNotFound
		}
		return nil, err
	}
	return &conv, nil
}

// CreateDirect inserts a direct conversation for the pair with zeroed
// unread counters. If a concurrent insert for the same pair wins the
// race, the unique pair_key index rejects ours and the existing
// document is returned instead, so the call is idempotent.
func (c *ConversationsStore) CreateDirect(ctx context.Context, a, b string) (*Conversation, error) {
	a, b = normalize.Email(a), normalize.Email(b)
	conv := &Conversation{
		Participants:     []string{a, b},
		ConversationType: TypeDirect,
		PairKey:          PairKey(a, b),
		CreatedAt:        time.Now().UTC(),
		UnreadCount:      map[string]int{a: 0, b: 0},
	}

	result, err := c.coll.InsertOne(ctx, conv)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return c.FindDirect(ctx, a, b)
		}
		return nil, err
	}

	conv.ID = result.InsertedID.(bson.ObjectID)
	return conv, nil
}

// FindByID looks up a conversation by its hex id.
func (c *ConversationsStore) FindByID(ctx context.Context, id string) (*Conversation, error) {
	oid, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrConversationNotFound
	}

	var conv Conversation
	if err := c.coll.FindOne(ctx, bson.M{"_id": oid}).Decode(&conv); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrConversationNotFound
		}
		return nil, err
	}
	return &conv, nil
}

// ApplyMessage records a new message on the conversation metadata: sets
// the last-message fields and increments the unread counter of every
// participant except the sender. Everything happens in one document
// update, so concurrent senders cannot lose increments — the $inc is
// applied server-side, never read-modify-written by us.
func (c *ConversationsStore) ApplyMessage(ctx context.Context, id string, participants []string, sender, body string, at time.Time) error {
	oid, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return ErrConversationNotFound
	}

	sender = normalize.Email(sender)
	inc := bson.M{}
	for _, p := range participants {
		if normalize.Email(p) != sender {
			inc["unread_count."+normalize.Email(p)] = 1
		}
	}

	update := bson.M{
		"$set": bson.M{
			"last_message":        body,
			"last_message_time":   at,
			"last_message_sender": sender,
		},
	}
	if len(inc) > 0 {
		update["$inc"] = inc
	}

	result, err := c.coll.UpdateOne(ctx, bson.M{"_id": oid}, update)
	if err != nil {
		return fmt.Errorf("failed to update conversation %s: %w", id, err)
	}
	if result.MatchedCount == 0 {
		return ErrConversationNotFound
	}
	return nil
}

// MarkRead zeroes the unread counter for one participant. Idempotent.
func (c *ConversationsStore) MarkRead(ctx context.Context, id, email string) error {
	oid, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return ErrConversationNotFound
	}

	_, err = c.coll.UpdateOne(ctx,
		bson.M{"_id": oid},
		bson.M{"$set": bson.M{"unread_count." + normalize.Email(email): 0}},
	)
	return err
}

// ListFor returns every conversation the identity participates in,
// sorted by last_message_time descending. Mongo sorts missing fields
// lowest, so never-messaged conversations land at the end.
func (c *ConversationsStore) ListFor(ctx context.Context, email string) ([]*Conversation, error) {
	opts := options.Find().SetSort(bson.M{"last_message_time": -1})

	cursor, err := c.coll.Find(ctx, bson.M{"participants": normalize.Email(email)}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var conversations []*Conversation
	if err = cursor.All(ctx, &conversations); err != nil {
		return nil, err
	}
	return conversations, nil
}
