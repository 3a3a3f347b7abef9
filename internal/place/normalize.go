// Package place resolves free-text place queries to administrative dongs.
package place

import (
	"strings"

	"golang.org/x/text/unicode/norm"
	"golang.org/x/text/width"
)

// Normalize canonicalizes query text before any lookup: Unicode NFC,
// full-width characters folded to half-width, and whitespace collapsed.
// Korean input arrives in mixed forms (IME artifacts, pasted full-width
// digits), so every cascade step works on the same canonical form.
func Normalize(text string) string {
	s := norm.NFC.String(text)
	s = width.Fold.String(s)
	return strings.Join(strings.Fields(s), " ")
}
