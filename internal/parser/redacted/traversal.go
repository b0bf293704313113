package redacted

import "github.com/tlsnotary/notaryd/internal/parser"

// parseBody walks the raw body text for surviving `"key":value` pair
// tokens. It never parses a JSON tree: redaction can zero the braces of
// an object along with its values, so recursive-descent parsing (which
// requires a well-formed root) would see nothing at all in exactly the
// case this parser exists for. Instead every `"` byte in range is tried
// as the start of a key, and a pair is recorded whenever a colon and a
// recognizable value token follow. Bytes that don't form a pair are
// simply skipped; this never errors.
func parseBody(input []byte, bodyRange parser.Range) BodyMap {
	body := make(BodyMap)
	end := bodyRange.End
	if end > len(input) {
		end = len(input)
	}
	pos := bodyRange.Start
	for pos < end {
		if input[pos] != '"' {
			pos++
			continue
		}
		keyInner, afterKey, ok := scanQuotedString(input, pos, end)
		if !ok {
			break
		}
		p := skipLinearWS(input, afterKey, end)
		if p >= end || input[p] != ':' {
			pos = afterKey
			continue
		}
		valueStart := skipLinearWS(input, p+1, end)
		value, next := scanValueToken(input, valueStart, end)
		body["."+string(keyInner.Slice(input))] = KeyValue{Key: keyInner, Value: value}
		pos = next
	}
	return body
}

// scanQuotedString parses a `"..."` token starting at pos (input[pos] must
// be '"'), honoring backslash escapes. It returns the range between the
// quotes and the position just past the closing quote.
func scanQuotedString(input []byte, pos, end int) (inner parser.Range, next int, ok bool) {
	i := pos + 1
	for i < end {
		b := input[i]
		if b == '\\' {
			i += 2
			continue
		}
		if b == '"' {
			return parser.Range{Start: pos + 1, End: i}, i + 1, true
		}
		i++
	}
	return parser.Range{}, pos, false
}

// scanValueToken recognizes the value token starting at pos, returning its
// range and the position just past it. It returns (nil, pos) when no value
// survived: the position is immediately a terminator, the input ran out,
// or a run of redacted bytes never reaches a terminator that would let the
// run be trusted as a bounded value rather than trailing noise.
func scanValueToken(input []byte, pos, end int) (*parser.Range, int) {
	if pos >= end {
		return nil, pos
	}
	switch b := input[pos]; b {
	case ',', '}', ']':
		return nil, pos
	case '"':
		_, next, ok := scanQuotedString(input, pos, end)
		if !ok {
			return nil, end
		}
		v := parser.Range{Start: pos, End: next}
		return &v, next
	case '{', '[':
		closeAt := findMatchingClose(input, pos, end)
		v := parser.Range{Start: pos, End: closeAt}
		// Resume scanning just past the opening brace/bracket rather than
		// past its close, so pairs nested inside are still discovered; the
		// body map is flat regardless of how deep a pair actually sat.
		return &v, pos + 1
	}
	if isValueByte(input[pos]) {
		i := pos
		for i < end && isValueByte(input[i]) {
			i++
		}
		j := skipLinearWS(input, i, end)
		if j < end && (input[j] == ',' || input[j] == '}' || input[j] == ']') {
			v := parser.Range{Start: pos, End: i}
			return &v, i
		}
		return nil, pos
	}
	return nil, pos
}

// isValueByte reports whether b can appear inside an unquoted value token:
// a number, a `true`/`false`/`null` literal, or (once redaction has zeroed
// part or all of one of those) the NUL bytes that replaced it.
func isValueByte(b byte) bool {
	switch {
	case b == 0:
		return true
	case b >= '0' && b <= '9':
		return true
	case b == '.' || b == '-' || b == '+' || b == 'e' || b == 'E':
		return true
	case b == 't' || b == 'r' || b == 'u' || b == 'f' || b == 'a' || b == 'l' || b == 's' || b == 'n':
		return true
	}
	return false
}

// skipLinearWS advances past plain whitespace (not NUL, which carries
// meaning of its own in redacted text).
func skipLinearWS(input []byte, pos, end int) int {
	for pos < end {
		switch input[pos] {
		case ' ', '\t', '\r', '\n':
			pos++
		default:
			return pos
		}
	}
	return pos
}

// findMatchingClose returns the index just past the brace/bracket that
// closes the one at start, skipping over quoted strings so braces inside
// string content don't upset the depth count. Returns end if the
// structure was never closed.
func findMatchingClose(input []byte, start, end int) int {
	open := input[start]
	closeByte := byte('}')
	if open == '[' {
		closeByte = ']'
	}
	depth := 0
	i := start
	for i < end {
		b := input[i]
		if b == '"' {
			_, next, ok := scanQuotedString(input, i, end)
			if !ok {
				return end
			}
			i = next
			continue
		}
		switch b {
		case open:
			depth++
		case closeByte:
			depth--
			if depth == 0 {
				return i + 1
			}
		}
		i++
	}
	return end
}
