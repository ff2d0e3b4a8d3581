package normalize

import "strings"

// Email returns a normalized form of an email address suitable for
// storage and comparisons. Normalization currently trims surrounding
// whitespace and lower-cases the address.
func Email(e string) string {
	return strings.ToLower(strings.TrimSpace(e))
}

// LocalPart returns the portion of an email-shaped identity before the
// "@". Used as a display-name fallback when no user record exists for a
// conversation participant.
func LocalPart(e string) string {
	e = Email(e)
	if i := strings.IndexByte(e, '@'); i > 0 {
		return e[:i]
	}
	return e
}
