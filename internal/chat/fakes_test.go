package chat

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/chatsocket/chatsocket/internal/data"
	"github.com/chatsocket/chatsocket/internal/normalize"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// memGateway is an in-memory stand-in for the Mongo stores. It mimics
// the behavior the core relies on: the unique pair key on direct
// conversations and server-side atomic unread increments.
type memGateway struct {
	mu     sync.Mutex
	users  map[string]*data.User
	convs  map[string]*data.Conversation
	byPair map[string]string
	msgs   []*data.Message

	// createDelay widens the race window between FindDirect and
	// CreateDirect in concurrency tests.
	createDelay time.Duration

	failSetOnline bool
}

func newMemGateway() *memGateway {
	return &memGateway{
		users:  make(map[string]*data.User),
		convs:  make(map[string]*data.Conversation),
		byPair: make(map[string]string),
	}
}

func (g *memGateway) addUser(email, name string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.users[normalize.Email(email)] = &data.User{
		ID:    bson.NewObjectID(),
		Email: normalize.Email(email),
		Name:  name,
	}
}

func (g *memGateway) removeUser(email string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.users, normalize.Email(email))
}

func (g *memGateway) GetUserByEmail(_ context.Context, email string) (*data.User, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	u, ok := g.users[normalize.Email(email)]
	if !ok {
		return nil, data.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (g *memGateway) UserExists(_ context.Context, email string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.users[normalize.Email(email)]
	return ok, nil
}

func (g *memGateway) SetOnlineStatus(_ context.Context, email string, online bool, socketID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failSetOnline {
		return errors.New("gateway unavailable")
	}
	email = normalize.Email(email)
	u, ok := g.users[email]
	if !ok {
		u = &data.User{ID: bson.NewObjectID(), Email: email}
		g.users[email] = u
	}
	now := time.Now().UTC()
	u.IsOnline = online
	u.LastSeen = &now
	u.SocketID = socketID
	return nil
}

func (g *memGateway) FindDirect(_ context.Context, a, b string) (*data.Conversation, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	id, ok := g.byPair[data.PairKey(a, b)]
	if !ok {
		return nil, data.ErrConversationNotFound
	}
	cp := *g.convs[id]
	return &cp, nil
}

func (g *memGateway) CreateDirect(_ context.Context, a, b string) (*data.Conversation, error) {
	if g.createDelay > 0 {
		time.Sleep(g.createDelay)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	key := data.PairKey(a, b)
	if id, ok := g.byPair[key]; ok {
		// unique-index collision resolves to the existing document
		cp := *g.convs[id]
		return &cp, nil
	}

	a, b = normalize.Email(a), normalize.Email(b)
	conv := &data.Conversation{
		ID:               bson.NewObjectID(),
		Participants:     []string{a, b},
		ConversationType: data.TypeDirect,
		PairKey:          key,
		CreatedAt:        time.Now().UTC(),
		UnreadCount:      map[string]int{a: 0, b: 0},
	}
	g.convs[conv.ID.Hex()] = conv
	g.byPair[key] = conv.ID.Hex()
	cp := *conv
	return &cp, nil
}

func (g *memGateway) FindByID(_ context.Context, id string) (*data.Conversation, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	conv, ok := g.convs[id]
	if !ok {
		return nil, data.ErrConversationNotFound
	}
	cp := *conv
	return &cp, nil
}

func (g *memGateway) ApplyMessage(_ context.Context, id string, participants []string, sender, body string, at time.Time) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	conv, ok := g.convs[id]
	if !ok {
		return data.ErrConversationNotFound
	}
	conv.LastMessage = body
	conv.LastMessageTime = &at
	conv.LastMessageSender = sender
	for _, p := range participants {
		if normalize.Email(p) != normalize.Email(sender) {
			conv.UnreadCount[normalize.Email(p)]++
		}
	}
	return nil
}

func (g *memGateway) MarkRead(_ context.Context, id, email string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	// like the store: an update matching no document still succeeds
	if conv, ok := g.convs[id]; ok {
		conv.UnreadCount[normalize.Email(email)] = 0
	}
	return nil
}

func (g *memGateway) ListFor(_ context.Context, email string) ([]*data.Conversation, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	email = normalize.Email(email)
	var out []*data.Conversation
	for _, conv := range g.convs {
		for _, p := range conv.Participants {
			if p == email {
				cp := *conv
				out = append(out, &cp)
				break
			}
		}
	}
	// last_message_time descending, never-messaged conversations last
	sort.SliceStable(out, func(i, j int) bool {
		ti, tj := out[i].LastMessageTime, out[j].LastMessageTime
		switch {
		case ti == nil:
			return false
		case tj == nil:
			return true
		default:
			return ti.After(*tj)
		}
	})
	return out, nil
}

func (g *memGateway) SaveMessage(_ context.Context, conversationID, senderEmail, senderName, body, kind, replyTo string) (*data.Message, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if kind == "" {
		kind = data.KindText
	}
	msg := &data.Message{
		ID:             bson.NewObjectID(),
		ConversationID: conversationID,
		SenderEmail:    normalize.Email(senderEmail),
		SenderName:     senderName,
		Body:           body,
		Timestamp:      time.Now().UTC(),
		Kind:           kind,
		ReplyTo:        replyTo,
	}
	g.msgs = append(g.msgs, msg)
	return msg, nil
}

func (g *memGateway) ListMessages(_ context.Context, conversationID string, skip, limit int64) ([]*data.Message, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if skip < 0 {
		skip = 0
	}
	if limit <= 0 {
		limit = data.DefaultPageSize
	}
	if limit > data.MaxPageSize {
		limit = data.MaxPageSize
	}

	var all []*data.Message
	for _, m := range g.msgs {
		if m.ConversationID == conversationID {
			cp := *m
			all = append(all, &cp)
		}
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].Timestamp.After(all[j].Timestamp) })

	if int(skip) >= len(all) {
		return nil, nil
	}
	all = all[skip:]
	if int64(len(all)) > limit {
		all = all[:limit]
	}
	for i, j := 0, len(all)-1; i < j; i, j = i+1, j-1 {
		all[i], all[j] = all[j], all[i]
	}
	return all, nil
}

// fakeSender records events delivered to one connection handle.
type fakeSender struct {
	mu     sync.Mutex
	events []Event
	fail   bool
}

func (f *fakeSender) Send(ev Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("send failed")
	}
	f.events = append(f.events, ev)
	return nil
}

func (f *fakeSender) byName(name string) []Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Event
	for _, ev := range f.events {
		if ev.Name == name {
			out = append(out, ev)
		}
	}
	return out
}

func (f *fakeSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.events)
}
