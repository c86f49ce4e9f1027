package ical

import "strings"

var textEscaper = strings.NewReplacer(
	`\`, `\\`,
	";", `\;`,
	",", `\,`,
	"\r\n", `\n`,
	"\n", `\n`,
)

// EscapeText escapes a TEXT value: backslash, semicolon, comma and newline.
func EscapeText(s string) string {
	return textEscaper.Replace(s)
}

// UnescapeText reverses EscapeText. Unknown escapes keep the escaped character.
func UnescapeText(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' || i+1 == len(s) {
			b.WriteByte(c)
			continue
		}
		i++
		switch s[i] {
		case 'n', 'N':
			b.WriteByte('\n')
		default:
			b.WriteByte(s[i])
		}
	}
	return b.String()
}

// splitEscaped splits a multi-valued TEXT property on unescaped separators and
// unescapes each part.
func splitEscaped(s string, sep byte) []string {
	var parts []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' {
			i++
			continue
		}
		if s[i] == sep {
			parts = append(parts, UnescapeText(s[start:i]))
			start = i + 1
		}
	}
	return append(parts, UnescapeText(s[start:]))
}
