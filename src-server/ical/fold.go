package ical

import (
	"strings"
	"unicode/utf8"
)

const maxLineOctets = 75

// Transform a normal writer into a writer that emits one content line,
// folded into lines of at most 75 octets and terminated by CRLF. Folding
// never splits a UTF-8 sequence; continuation lines start with a space.
//
//	var sb strings.Builder
//	writer := Split75wrapper(sb.WriteString)
//	writer("SUMMARY:Opening keynote")
func Split75wrapper(writer func(string) (int, error)) func(string) (int, error) {
	return func(str string) (int, error) {
		str = strings.TrimRight(str, "\r\n")
		if len(str) <= maxLineOctets {
			return writer(str + "\r\n")
		}

		var sb strings.Builder
		limit := maxLineOctets
		lineLen := 0
		for _, r := range str {
			size := utf8.RuneLen(r)
			if size < 0 {
				size = len(string(utf8.RuneError))
			}
			if lineLen+size > limit {
				sb.WriteString("\r\n ")
				// the leading space counts towards the next line
				limit = maxLineOctets - 1
				lineLen = 0
			}
			sb.WriteRune(r)
			lineLen += size
		}
		sb.WriteString("\r\n")
		return writer(sb.String())
	}
}

// EscapeText escapes a TEXT property value.
func EscapeText(s string) string {
	return textEscaper.Replace(strings.ReplaceAll(s, "\r\n", "\n"))
}

var textEscaper = strings.NewReplacer(
	`\`, `\\`,
	";", `\;`,
	",", `\,`,
	"\n", `\n`,
)
