package ical

import (
	"strings"
	"unicode/utf8"
)

// maxLineOctets is the RFC 5545 content line limit, excluding the CRLF.
const maxLineOctets = 75

// Fold splits a content line into 75-octet physical lines. Continuation lines
// start with a single space, which counts toward their length. Multi-byte UTF-8
// sequences are never split.
func Fold(line string) string {
	if len(line) <= maxLineOctets {
		return line
	}

	var b strings.Builder
	limit := maxLineOctets
	for len(line) > limit {
		cut := limit
		for cut > 0 && !utf8.RuneStart(line[cut]) {
			cut--
		}
		b.WriteString(line[:cut])
		b.WriteString("\r\n ")
		line = line[cut:]
		limit = maxLineOctets - 1
	}
	b.WriteString(line)
	return b.String()
}

// Unfold joins folded physical lines back into logical content lines.
func Unfold(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for i := 0; i < len(text); i++ {
		switch {
		case text[i] == '\r' && i+2 < len(text) && text[i+1] == '\n' && isFoldSpace(text[i+2]):
			i += 2
		case text[i] == '\n' && i+1 < len(text) && isFoldSpace(text[i+1]):
			i++
		default:
			b.WriteByte(text[i])
		}
	}
	return b.String()
}

func isFoldSpace(c byte) bool {
	return c == ' ' || c == '\t'
}
