// Package chat implements the connection/room/presence registry and the
// message-delivery pipeline: the in-memory mapping from identity to
// active connection, room membership, and the ordered send path from
// persistence through broadcast.
package chat

import "sync"

// Presence is the source of truth for "who is online". It keeps a
// bidirectional identity↔handle mapping so the reverse lookup on
// disconnect and on every send never scans. At most one live handle per
// identity: a second connect for the same identity replaces the mapping
// and implicitly evicts the first without notifying it.
type Presence struct {
	mu         sync.RWMutex
	byIdentity map[string]string // identity -> handle
	byHandle   map[string]string // handle -> identity
}

// NewPresence creates an empty presence registry.
func NewPresence() *Presence {
	return &Presence{
		byIdentity: make(map[string]string),
		byHandle:   make(map[string]string),
	}
}

// Connect registers the identity→handle mapping, overwriting any prior
// mapping for the identity. Returns the evicted handle, if any.
func (p *Presence) Connect(identity, handle string) (evicted string, replaced bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if old, ok := p.byIdentity[identity]; ok && old != handle {
		delete(p.byHandle, old)
		evicted, replaced = old, true
	}
	p.byIdentity[identity] = handle
	p.byHandle[handle] = identity
	return evicted, replaced
}

// Disconnect removes the mapping owned by handle and returns the
// identity it belonged to. If the identity has since reconnected with a
// newer handle, the stale disconnect is a no-op and ok is false — the
// newer mapping survives.
func (p *Presence) Disconnect(handle string) (identity string, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	identity, ok = p.byHandle[handle]
	if !ok {
		return "", false
	}
	delete(p.byHandle, handle)
	if current, live := p.byIdentity[identity]; live && current == handle {
		delete(p.byIdentity, identity)
		return identity, true
	}
	return "", false
}

// IsOnline reports whether the identity has a live handle.
func (p *Presence) IsOnline(identity string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.byIdentity[identity]
	return ok
}

// HandleFor returns the identity's live handle.
func (p *Presence) HandleFor(identity string) (string, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	h, ok := p.byIdentity[identity]
	return h, ok
}

// IdentityFor resolves a handle back to its identity.
func (p *Presence) IdentityFor(handle string) (string, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	id, ok := p.byHandle[handle]
	return id, ok
}

// Online returns a snapshot of every currently-online identity.
func (p *Presence) Online() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]string, 0, len(p.byIdentity))
	for id := range p.byIdentity {
		out = append(out, id)
	}
	return out
}
