package normalize

import "testing"

func TestEmail(t *testing.T) {
	if got := Email("  Alice@Example.COM "); got != "alice@example.com" {
		t.Fatalf("unexpected normalized email: %q", got)
	}
}

func TestLocalPart(t *testing.T) {
	if got := LocalPart("Bob@example.com"); got != "bob" {
		t.Fatalf("unexpected local part: %q", got)
	}
	// Identities that are not email-shaped fall back to the whole string.
	if got := LocalPart("plainname"); got != "plainname" {
		t.Fatalf("unexpected local part for bare identity: %q", got)
	}
}
