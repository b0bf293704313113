// Package redacted parses HTTP/1.1 messages that have been selectively
// redacted by an MPC-TLS verifier: hidden byte spans are replaced with NUL
// bytes, and redaction may take punctuation with them (even the enclosing
// braces), so the body is scanned as a flat sequence of `"key":value`
// pairs rather than parsed as a JSON tree. Parsing degrades silently for missing headers
// and body content (empty maps, not errors) but still hard-fails if the
// first line itself cannot be recovered — without a first line there is no
// message to report on at all.
package redacted

import "github.com/tlsnotary/notaryd/internal/parser"

// Header is one "Name: Value" header line. Value may be absent (nil) when
// only "Name: \r\n" survived redaction.
type Header struct {
	Name  parser.Range
	Value *parser.Range
}

// Headers maps a lowercased header name to every occurrence that survived,
// in the order they appeared.
type Headers map[string][]Header

// Get returns the last surviving occurrence of name.
func (h Headers) Get(name string) (Header, bool) {
	vals, ok := h[normalizeHeaderName(name)]
	if !ok || len(vals) == 0 {
		return Header{}, false
	}
	return vals[len(vals)-1], true
}

// All returns every surviving occurrence of name in insertion order.
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

// Body is one entry in the flat (non-recursive) body keypath map.
type Body interface{ isBody() }

// KeyValue is a surviving `"key":value` body entry, found anywhere in the
// body text regardless of brace nesting: redaction can strip the
// enclosing braces along with any value, so the body is walked as a flat
// sequence of pair tokens rather than a parsed object tree. Value is nil
// when redaction removed the value down to nothing (no bytes between the
// colon and the next recognized terminator), distinct from a value that
// survived as a bounded run of zero bytes.
type KeyValue struct {
	Key   parser.Range
	Value *parser.Range
}

func (KeyValue) isBody() {}

// BodyMap maps each surviving `"key":value` pair to its KeyValue entry,
// keyed by "."+key. There is no root entry: once braces can no longer be
// trusted to still bound a coherent document, reporting one would imply
// a structure redaction has already destroyed.
type BodyMap map[string]Body

// Request is a partially recovered HTTP/1.1 request.
type Request struct {
	Input           []byte
	Method          parser.Range
	URL             parser.Range
	ProtocolVersion parser.Range
	Headers         Headers
	Body            BodyMap
}

// Response is a partially recovered HTTP/1.1 response.
type Response struct {
	Input           []byte
	ProtocolVersion parser.Range
	StatusCode      parser.Range
	Status          parser.Range
	Headers         Headers
	Body            BodyMap
}
