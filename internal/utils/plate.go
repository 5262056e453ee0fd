package utils

import (
	"strings"
	"unicode"
)

// NormalizePlate folds a device-reported plate into the canonical form
// used for storage and lookups: uppercase, letters and digits only.
func NormalizePlate(raw string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(raw) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
