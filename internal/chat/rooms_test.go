package chat

import "testing"

func TestRooms_JoinLeaveIdempotent(t *testing.T) {
	r := NewRooms()

	r.Join("c1", "h1")
	r.Join("c1", "h1") // repeat join is a no-op
	r.Join("c1", "h2")

	members := r.MembersOf("c1")
	if len(members) != 2 {
		t.Fatalf("expected 2 members, got %d", len(members))
	}

	r.Leave("c1", "h1")
	r.Leave("c1", "h1") // repeat leave is a no-op
	if got := r.MembersOf("c1"); len(got) != 1 || got[0] != "h2" {
		t.Fatalf("unexpected members after leave: %v", got)
	}
}

func TestRooms_MembersOfUnknownRoom(t *testing.T) {
	r := NewRooms()
	if got := r.MembersOf("nope"); len(got) != 0 {
		t.Fatalf("expected empty membership, got %v", got)
	}
}

func TestRooms_DropHandle(t *testing.T) {
	r := NewRooms()
	r.Join("c1", "h1")
	r.Join("c2", "h1")
	r.Join("c2", "h2")

	r.DropHandle("h1")

	if got := r.MembersOf("c1"); len(got) != 0 {
		t.Fatalf("h1 still in c1: %v", got)
	}
	if got := r.MembersOf("c2"); len(got) != 1 || got[0] != "h2" {
		t.Fatalf("unexpected c2 members: %v", got)
	}
}
