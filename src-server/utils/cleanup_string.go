package utils

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// CleanupName collapses whitespace, title-cases each word and removes a
// trailing period. Used for names printed on badges and certificates.
// Words that are already all upper-case (MD, AIIMS) are kept.
func CleanupName(s string) string {
	words := strings.Fields(s)
	caser := cases.Title(language.English)
	for i, w := range words {
		if len(w) > 1 && strings.ToUpper(w) == w {
			continue
		}
		words[i] = caser.String(w)
	}
	return strings.TrimSuffix(strings.Join(words, " "), ".")
}
