package chat

import (
	"log"
	"sync"
)

// Sender is the minimal interface the dispatcher needs from a
// connection: the ability to deliver one event to the client.
type Sender interface {
	Send(Event) error
}

// Dispatcher maps connection handles to their senders and delivers
// events to a single handle, a set of handles, or everyone. Delivery is
// fire-and-forget per handle: a failure is logged and never aborts
// delivery to the rest or fails the originating operation.
type Dispatcher struct {
	mu      sync.RWMutex
	senders map[string]Sender
}

// NewDispatcher creates an empty dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{senders: make(map[string]Sender)}
}

// Register associates a sender with a connection handle.
func (d *Dispatcher) Register(handle string, s Sender) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.senders[handle] = s
}

// Unregister removes the handle's sender.
func (d *Dispatcher) Unregister(handle string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.senders, handle)
}

// ToHandle delivers an event to one handle.
func (d *Dispatcher) ToHandle(handle string, ev Event) {
	d.mu.RLock()
	s, ok := d.senders[handle]
	d.mu.RUnlock()
	if !ok {
		return
	}
	if err := s.Send(ev); err != nil {
		log.Printf("delivery of %s to %s failed: %v", ev.Name, handle, err)
	}
}

// ToHandles delivers an event to each handle in the set, optionally
// skipping one (the originating connection).
func (d *Dispatcher) ToHandles(handles []string, skip string, ev Event) {
	for _, h := range handles {
		if h == skip {
			continue
		}
		d.ToHandle(h, ev)
	}
}

// ToAllExcept delivers an event to every registered connection except one.
func (d *Dispatcher) ToAllExcept(skip string, ev Event) {
	d.mu.RLock()
	handles := make([]string, 0, len(d.senders))
	for h := range d.senders {
		handles = append(handles, h)
	}
	d.mu.RUnlock()

	d.ToHandles(handles, skip, ev)
}
