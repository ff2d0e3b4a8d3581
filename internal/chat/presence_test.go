package chat

import (
	"fmt"
	"sync"
	"testing"
)

func TestPresence_ConnectAndLookups(t *testing.T) {
	p := NewPresence()

	p.Connect("alice@example.com", "h1")

	if !p.IsOnline("alice@example.com") {
		t.Fatal("expected alice online after connect")
	}
	if h, ok := p.HandleFor("alice@example.com"); !ok || h != "h1" {
		t.Fatalf("HandleFor returned %q, %v", h, ok)
	}
	if id, ok := p.IdentityFor("h1"); !ok || id != "alice@example.com" {
		t.Fatalf("IdentityFor returned %q, %v", id, ok)
	}
}

func TestPresence_ReconnectReplacesHandle(t *testing.T) {
	p := NewPresence()

	p.Connect("alice@example.com", "h1")
	evicted, replaced := p.Connect("alice@example.com", "h2")

	if !replaced || evicted != "h1" {
		t.Fatalf("expected h1 evicted, got %q replaced=%v", evicted, replaced)
	}
	if h, _ := p.HandleFor("alice@example.com"); h != "h2" {
		t.Fatalf("expected newer handle h2, got %q", h)
	}

	// A late disconnect for the evicted handle must not clear the newer mapping.
	if id, ok := p.Disconnect("h1"); ok {
		t.Fatalf("stale disconnect reported success for %q", id)
	}
	if !p.IsOnline("alice@example.com") {
		t.Fatal("stale disconnect took alice offline")
	}
	if h, _ := p.HandleFor("alice@example.com"); h != "h2" {
		t.Fatalf("stale disconnect corrupted mapping: %q", h)
	}
}

func TestPresence_Disconnect(t *testing.T) {
	p := NewPresence()

	p.Connect("bob@example.com", "h1")
	identity, ok := p.Disconnect("h1")
	if !ok || identity != "bob@example.com" {
		t.Fatalf("Disconnect returned %q, %v", identity, ok)
	}
	if p.IsOnline("bob@example.com") {
		t.Fatal("bob still online after disconnect")
	}

	// disconnecting an unknown handle is a no-op
	if _, ok := p.Disconnect("h1"); ok {
		t.Fatal("second disconnect reported success")
	}
}

func TestPresence_Online(t *testing.T) {
	p := NewPresence()
	p.Connect("a@example.com", "h1")
	p.Connect("b@example.com", "h2")

	online := p.Online()
	if len(online) != 2 {
		t.Fatalf("expected 2 online identities, got %d", len(online))
	}
}

func TestPresence_ConcurrentChurn(t *testing.T) {
	p := NewPresence()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("user%d@example.com", i%10)
			h := fmt.Sprintf("h%d", i)
			p.Connect(id, h)
			p.IsOnline(id)
			p.Online()
			p.Disconnect(h)
		}(i)
	}
	wg.Wait()

	// every identity ended with either zero or one live handle
	for _, id := range p.Online() {
		if _, ok := p.HandleFor(id); !ok {
			t.Fatalf("online identity %s has no handle", id)
		}
	}
}
