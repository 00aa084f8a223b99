package command

import "strings"

// Repair fixes the mistakes models most often make when writing JSON:
// single-quoted strings, bare object keys and trailing commas. It is a single
// best-effort pass; its output is not guaranteed to be valid JSON.
func Repair(s string) string {
	s = doubleQuotes(s)
	s = quoteKeys(s)
	s = stripTrailingCommas(s)
	return s
}

// doubleQuotes rewrites single-quoted strings as double-quoted ones, leaving
// existing double-quoted runs untouched.
func doubleQuotes(s string) string {
	var (
		b                  strings.Builder
		inDouble, inSingle bool
		escaped            bool
	)
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case inDouble:
			b.WriteByte(c)
			if escaped {
				escaped = false
			} else if c == '\\' {
				escaped = true
			} else if c == '"' {
				inDouble = false
			}
		case inSingle:
			if escaped {
				escaped = false
				if c != '\'' {
					b.WriteByte('\\')
				}
				b.WriteByte(c)
				continue
			}
			switch c {
			case '\\':
				escaped = true
			case '\'':
				inSingle = false
				b.WriteByte('"')
			case '"':
				b.WriteString(`\"`)
			default:
				b.WriteByte(c)
			}
		default:
			switch c {
			case '"':
				inDouble = true
			case '\'':
				inSingle = true
				c = '"'
			}
			b.WriteByte(c)
		}
	}
	return b.String()
}

// quoteKeys wraps bare identifiers used as object keys in double quotes.
func quoteKeys(s string) string {
	var (
		b         strings.Builder
		inString  bool
		escaped   bool
		expectKey bool
	)
	b.Grow(len(s) + 16)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			b.WriteByte(c)
			if escaped {
				escaped = false
			} else if c == '\\' {
				escaped = true
			} else if c == '"' {
				inString = false
			}
			continue
		}
		switch {
		case c == '"':
			inString = true
			expectKey = false
		case c == '{' || c == ',':
			expectKey = true
		case isSpace(c):
		case expectKey && isIdentStart(c):
			j := i + 1
			for j < len(s) && isIdent(s[j]) {
				j++
			}
			k := j
			for k < len(s) && isSpace(s[k]) {
				k++
			}
			expectKey = false
			if k < len(s) && s[k] == ':' {
				b.WriteByte('"')
				b.WriteString(s[i:j])
				b.WriteByte('"')
				i = j - 1
				continue
			}
		default:
			expectKey = false
		}
		b.WriteByte(c)
	}
	return b.String()
}

// stripTrailingCommas drops commas directly followed by a closing bracket.
func stripTrailingCommas(s string) string {
	var (
		b        strings.Builder
		inString bool
		escaped  bool
	)
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			if escaped {
				escaped = false
			} else if c == '\\' {
				escaped = true
			} else if c == '"' {
				inString = false
			}
			b.WriteByte(c)
			continue
		}
		if c == '"' {
			inString = true
		}
		if c == ',' {
			j := i + 1
			for j < len(s) && isSpace(s[j]) {
				j++
			}
			if j < len(s) && (s[j] == '}' || s[j] == ']') {
				continue
			}
		}
		b.WriteByte(c)
	}
	return b.String()
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\n' || c == '\r' || c == '\t'
}

func isIdentStart(c byte) bool {
	return c == '_' || c == '$' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdent(c byte) bool {
	return isIdentStart(c) || c == '-' || (c >= '0' && c <= '9')
}
