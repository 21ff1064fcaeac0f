package naming

import (
	"strings"
	"unicode/utf8"
)

// DefaultMaxBytes bounds generated tenant database names.
const DefaultMaxBytes = 38

// Truncate bounds s to max bytes without splitting a multi-byte character:
// a trailing partial sequence is dropped, never emitted. The result is
// always valid UTF-8.
func Truncate(s string, max int) string {
	if max < 1 {
		return ""
	}
	if len(s) <= max && utf8.ValidString(s) {
		return s
	}
	if len(s) > max {
		s = s[:max]
	}
	return strings.ToValidUTF8(s, "")
}

// TenantDatabase builds the deterministic storage identifier for an owner
// and slug: Truncate(prefix + ownerID + "_" + slug, max). Characters of
// ownerID outside [A-Za-z0-9_-] become '_', so issuer subjects such as
// "auth0|abc" still yield a usable name.
func TenantDatabase(prefix, ownerID, slug string, max int) string {
	return Truncate(prefix+ownerKey(ownerID)+"_"+slug, max)
}

// ownerKey maps a user id onto the storage name alphabet.
func ownerKey(ownerID string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			return r
		}
		return '_'
	}, ownerID)
}
