package extract

import "strings"

// Object returns the first syntactically complete JSON object in text.
//
// Braces are only counted outside of double-quoted strings and the character
// following a backslash is never acted upon, so quotes and braces inside
// string values do not affect nesting. It reports false when no object is
// closed before the text ends.
func Object(text string) (string, bool) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", false
	}

	var (
		depth    int
		inString bool
		escaped  bool
	)
	for i := start; i < len(text); i++ {
		c := text[i]
		if escaped {
			escaped = false
			continue
		}
		switch c {
		case '\\':
			escaped = true
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					return text[start : i+1], true
				}
			}
		}
	}
	return "", false
}
