// Package naming derives storage-safe identifiers from free text and bounds
// them to a byte budget.
package naming

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

var diacritics = strings.NewReplacer(
	"á", "a", "à", "a", "ä", "a", "â", "a", "ã", "a", "å", "a",
	"é", "e", "è", "e", "ë", "e", "ê", "e",
	"í", "i", "ì", "i", "ï", "i", "î", "i",
	"ó", "o", "ò", "o", "ö", "o", "ô", "o", "õ", "o",
	"ú", "u", "ù", "u", "ü", "u", "û", "u",
	"ñ", "n", "ç", "c", "ý", "y", "ÿ", "y",
)

// Slug lower-cases s, folds the common Latin diacritics to their base
// letter and replaces everything outside [a-z0-9_] with '_'. Input is
// NFC-normalized first so decomposed accents fold the same way as
// precomposed ones. Blank input yields "".
func Slug(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return ""
	}

	s = diacritics.Replace(norm.NFC.String(s))
	s = strings.ReplaceAll(s, " ", "_")

	return strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' {
			return r
		}
		return '_'
	}, s)
}
