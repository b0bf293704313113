// Package standard parses complete, well-formed HTTP/1.1 request and
// response messages with Content-Length or single-chunk chunked framing
// and a JSON body, reporting every value as a byte range into the
// original input rather than decoding it.
package standard

import "github.com/tlsnotary/notaryd/internal/parser"

// Header is one "Name: Value" header line. Value is always present for a
// standard (non-redacted) message — a missing value is an InvalidHeader error.
type Header struct {
	Name  parser.Range
	Value parser.Range
}

// Headers maps a lowercased header name to every occurrence, in the order
// they appeared. Lookups are case-insensitive; insertion order per name is
// preserved for reconstructing the original header block.
type Headers map[string][]Header

// Get returns the last occurrence of name, mirroring HTTP's "last value
// wins" convention for duplicate headers, and whether it was present.
func (h Headers) Get(name string) (Header, bool) {
	vals, ok := h[normalizeHeaderName(name)]
	if !ok || len(vals) == 0 {
		return Header{}, false
	}
	return vals[len(vals)-1], true
}

// All returns every occurrence of name in insertion order.
func (h Headers) All(name string) []Header {
	return h[normalizeHeaderName(name)]
}

func normalizeHeaderName(name string) string {
	b := []byte(name)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

// Body is one entry in a message's flattened keypath map. Every reachable
// JSON node in the body gets exactly one entry, keyed by its path-stack
// keypath string.
type Body interface{ isBody() }

// KeyValue is a body entry reached through an object key: the `"key"` and
// its value both carry a range. Value is always present in the standard
// parser.
type KeyValue struct {
	Key   parser.Range
	Value parser.Range
}

func (KeyValue) isBody() {}

// ValueEntry is a body entry that is not itself an object member: the
// document root, or an element reached through an array index.
type ValueEntry struct {
	Value parser.Range
}

func (ValueEntry) isBody() {}

// BodyMap maps every reachable JSON node's keypath to its Body entry. The
// root is always present at key "".
type BodyMap map[string]Body

// Request is a fully parsed HTTP/1.1 request with a JSON body.
type Request struct {
	Input           []byte
	Method          parser.Range
	URL             parser.Range
	ProtocolVersion parser.Range
	Headers         Headers
	ChunkSize       *parser.Range // non-nil when the body used chunked framing
	Body            BodyMap
}

// MethodWithSpace widens Method to include its trailing space.
func (r *Request) MethodWithSpace() parser.Range {
	return widenWithTrailingByte(r.Method, r.Input, ' ')
}

// URLWithSpace widens URL to include its trailing space.
func (r *Request) URLWithSpace() parser.Range {
	return widenWithTrailingByte(r.URL, r.Input, ' ')
}

// ProtocolVersionWithNewline widens ProtocolVersion to include its
// trailing line terminator.
func (r *Request) ProtocolVersionWithNewline() parser.Range {
	return parser.WithCRLF(r.ProtocolVersion, r.Input)
}

// ChunkSizeWithNewline widens the chunk-size line to include its trailing
// line terminator. Panics if the request was not chunked; callers should
// check ChunkSize != nil first.
func (r *Request) ChunkSizeWithNewline() parser.Range {
	return parser.WithCRLF(*r.ChunkSize, r.Input)
}

// Response is a fully parsed HTTP/1.1 response with a JSON body.
type Response struct {
	Input           []byte
	ProtocolVersion parser.Range
	StatusCode      parser.Range
	Status          parser.Range
	Headers         Headers
	Body            BodyMap
}

// ProtocolVersionWithSpace widens ProtocolVersion to include its trailing
// space.
func (r *Response) ProtocolVersionWithSpace() parser.Range {
	return widenWithTrailingByte(r.ProtocolVersion, r.Input, ' ')
}

// StatusCodeWithSpace widens StatusCode to include its trailing space.
func (r *Response) StatusCodeWithSpace() parser.Range {
	return widenWithTrailingByte(r.StatusCode, r.Input, ' ')
}

// StatusWithNewline widens Status to include its trailing line terminator.
func (r *Response) StatusWithNewline() parser.Range {
	return parser.WithCRLF(r.Status, r.Input)
}

func widenWithTrailingByte(v parser.Range, input []byte, b byte) parser.Range {
	return parser.WithSeparator(v, input, b)
}
