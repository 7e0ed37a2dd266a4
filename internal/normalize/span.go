// Package normalize turns the reasoning service's free-form replies into the
// strict validation and insights payloads, falling back deterministically
// when a reply carries no usable structure.
package normalize

import "strings"

// FirstObject returns the first balanced {...} span in text. Braces inside
// JSON string literals are ignored. ok is false when no opening brace is
// ever closed.
func FirstObject(text string) (span string, ok bool) {
	for start := strings.IndexByte(text, '{'); start >= 0; {
		if end := matchBrace(text, start); end > 0 {
			return text[start : end+1], true
		}
		next := strings.IndexByte(text[start+1:], '{')
		if next < 0 {
			break
		}
		start += next + 1
	}
	return "", false
}

// matchBrace returns the index of the brace closing the one at start, or
// -1 if the text ends first.
func matchBrace(text string, start int) int {
	depth := 0
	inString := false
	escape := false

	for i := start; i < len(text); i++ {
		c := text[i]

		if escape {
			escape = false
			continue
		}
		if inString {
			switch c {
			case '\\':
				escape = true
			case '"':
				inString = false
			}
			continue
		}

		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}
