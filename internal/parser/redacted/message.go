package redacted

import (
	"strconv"
	"strings"

	"github.com/tlsnotary/notaryd/internal/parser"
)

// parseHeaderBlock reads as many header lines as it can recover starting
// at pos. Any failure (unterminated line, missing colon) stops header
// parsing and returns what was recovered so far rather than an error —
// headers that did not survive redaction are simply absent, not a syntax
// error. Returns the position just past the terminating blank line when
// one was found, or the position where parsing gave up otherwise.
func parseHeaderBlock(input []byte, pos int) (Headers, int) {
	headers := make(Headers)
	for {
		line, next, err := parser.ReadLine(input, pos)
		if err != nil {
			return headers, pos
		}
		if line.Empty() {
			return headers, next
		}
		name, value, hasValue, err := parser.SplitHeaderLine(line, input)
		if err != nil {
			// Not a valid header line; stop rather than guess.
			return headers, pos
		}
		key := normalizeHeaderName(string(name.Slice(input)))
		h := Header{Name: name}
		if hasValue {
			v := value
			h.Value = &v
		}
		headers[key] = append(headers[key], h)
		pos = next
	}
}

// parseBodyRange determines, on a best-effort basis, the range of raw body
// text following the headers. Unlike the standard parser this never
// errors: Content-Length framing is honored when it survived, and
// otherwise every remaining byte is handed to the body scanner, since
// nothing about the body's own shape can be trusted to bound it once
// redaction may have stripped its braces.
func parseBodyRange(input []byte, headers Headers, bodyStart int) parser.Range {
	if bodyStart >= len(input) {
		return parser.Range{Start: bodyStart, End: bodyStart}
	}

	if cl, ok := headers.Get("content-length"); ok && cl.Value != nil {
		if n, err := strconv.Atoi(strings.TrimSpace(string(cl.Value.Slice(input)))); err == nil {
			end := bodyStart + n
			if end > len(input) {
				end = len(input)
			}
			return parser.Range{Start: bodyStart, End: end}
		}
	}

	// No reliable framing: redaction may have destroyed the enclosing
	// braces along with any length header, so the body's syntactic shape
	// can't gate this the way it would for an intact message. Hand the
	// whole remainder to the body scanner and let it locate whatever pair
	// tokens survived, wherever they sit in the NUL padding.
	return parser.Range{Start: bodyStart, End: len(input)}
}
