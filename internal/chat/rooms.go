package chat

import "sync"

// Rooms is the ephemeral room-membership index: conversation id → set
// of connection handles subscribed to it. Never persisted; a fresh
// process has empty rooms until connections re-seed them.
type Rooms struct {
	mu       sync.RWMutex
	members  map[string]map[string]struct{} // conversation id -> handles
	byHandle map[string]map[string]struct{} // handle -> conversation ids
}

// NewRooms creates an empty room index.
func NewRooms() *Rooms {
	return &Rooms{
		members:  make(map[string]map[string]struct{}),
		byHandle: make(map[string]map[string]struct{}),
	}
}

// Join adds the handle to the conversation's room. Idempotent.
func (r *Rooms) Join(conversationID, handle string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.members[conversationID] == nil {
		r.members[conversationID] = make(map[string]struct{})
	}
	r.members[conversationID][handle] = struct{}{}

	if r.byHandle[handle] == nil {
		r.byHandle[handle] = make(map[string]struct{})
	}
	r.byHandle[handle][conversationID] = struct{}{}
}

// Leave removes the handle from the conversation's room. Idempotent.
func (r *Rooms) Leave(conversationID, handle string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leaveLocked(conversationID, handle)
}

func (r *Rooms) leaveLocked(conversationID, handle string) {
	if set := r.members[conversationID]; set != nil {
		delete(set, handle)
		if len(set) == 0 {
			delete(r.members, conversationID)
		}
	}
	if set := r.byHandle[handle]; set != nil {
		delete(set, conversationID)
		if len(set) == 0 {
			delete(r.byHandle, handle)
		}
	}
}

// MembersOf returns a snapshot of the handles in the conversation's room.
func (r *Rooms) MembersOf(conversationID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set := r.members[conversationID]
	out := make([]string, 0, len(set))
	for h := range set {
		out = append(out, h)
	}
	return out
}

// DropHandle removes the handle from every room it joined. Called on
// disconnect so dead handles never linger in membership sets.
func (r *Rooms) DropHandle(handle string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for conversationID := range r.byHandle[handle] {
		r.leaveLocked(conversationID, handle)
	}
	delete(r.byHandle, handle)
}
