package agentwire

import (
	"strings"
	"unicode/utf16"
	"unicode/utf8"
)

// ExtractDelta pulls the text out of the embedded `"delta":"..."` field of
// a raw wire fragment. It is a pure function and tolerates fragments that
// are not complete JSON documents, which is why it exists instead of a
// plain json.Unmarshal: chunks may be cut mid-object by the transport.
//
// Escaped quotes inside the delta do not terminate the scan, and literal
// `\n`, `\"`, `\\` sequences come back as real newline, quote and backslash
// characters. A fragment with no delta field, or with an unterminated
// delta, yields "".
func ExtractDelta(chunk string) string {
	idx := strings.Index(chunk, `"delta"`)
	if idx < 0 {
		return ""
	}
	rest := chunk[idx+len(`"delta"`):]

	// Skip to the opening quote of the value.
	i := 0
	for i < len(rest) && (rest[i] == ' ' || rest[i] == '\t') {
		i++
	}
	if i >= len(rest) || rest[i] != ':' {
		return ""
	}
	i++
	for i < len(rest) && (rest[i] == ' ' || rest[i] == '\t') {
		i++
	}
	if i >= len(rest) || rest[i] != '"' {
		return ""
	}
	i++

	var b strings.Builder
	for i < len(rest) {
		c := rest[i]
		switch c {
		case '"':
			return b.String()
		case '\\':
			if i+1 >= len(rest) {
				return ""
			}
			esc := rest[i+1]
			i += 2
			switch esc {
			case '"':
				b.WriteByte('"')
			case '\\':
				b.WriteByte('\\')
			case '/':
				b.WriteByte('/')
			case 'n':
				b.WriteByte('\n')
			case 'r':
				b.WriteByte('\r')
			case 't':
				b.WriteByte('\t')
			case 'b':
				b.WriteByte('\b')
			case 'f':
				b.WriteByte('\f')
			case 'u':
				r, n := decodeUnicodeEscape(rest[i:])
				if n == 0 {
					return ""
				}
				b.WriteRune(r)
				i += n
			default:
				// Unknown escape: keep the character, drop the backslash.
				b.WriteByte(esc)
			}
		default:
			b.WriteByte(c)
			i++
		}
	}
	// Unterminated delta value.
	return ""
}

// decodeUnicodeEscape decodes the 4 hex digits following a `\u` escape,
// joining UTF-16 surrogate pairs. It returns the rune and how many bytes of
// s were consumed beyond the `\u` prefix, or 0 when the digits are
// malformed.
func decodeUnicodeEscape(s string) (rune, int) {
	r, ok := hex4(s)
	if !ok {
		return 0, 0
	}
	if !utf16.IsSurrogate(r) {
		return r, 4
	}
	if len(s) >= 10 && s[4] == '\\' && s[5] == 'u' {
		if r2, ok := hex4(s[6:]); ok {
			if combined := utf16.DecodeRune(r, r2); combined != utf8.RuneError {
				return combined, 10
			}
		}
	}
	return utf8.RuneError, 4
}

func hex4(s string) (rune, bool) {
	if len(s) < 4 {
		return 0, false
	}
	var r rune
	for i := 0; i < 4; i++ {
		c := s[i]
		r <<= 4
		switch {
		case c >= '0' && c <= '9':
			r |= rune(c - '0')
		case c >= 'a' && c <= 'f':
			r |= rune(c-'a') + 10
		case c >= 'A' && c <= 'F':
			r |= rune(c-'A') + 10
		default:
			return 0, false
		}
	}
	return r, true
}
