// Package reveal implements selective disclosure over a fully parsed HTTP
// message: the prover decides, per header and per body keypath, whether a
// span is revealed in plaintext or hidden behind a commitment hash before
// the transcript is handed to the MPC-TLS notarization engine.
package reveal

import (
	"fmt"

	"lukechampine.com/blake3"

	"github.com/tlsnotary/notaryd/internal/parser"
	"github.com/tlsnotary/notaryd/internal/parser/standard"
)

// Mode selects whether a selected span is disclosed or hidden.
type Mode int

const (
	Reveal Mode = iota
	Commit
)

// Quoting controls which range-widening function is applied to a body
// value before it is revealed or committed.
type Quoting int

const (
	// Quoted widens the value to include its surrounding quote marks.
	Quoted Quoting = iota
	// Unquoted leaves a bare (non-string) value range untouched.
	Unquoted
	// UnquotedPadded behaves like Unquoted but additionally records a
	// fixed commitment length so the verifier cannot infer the original
	// value's length from the commitment's size.
	UnquotedPadded
)

// HeaderSelector configures disclosure for one header name.
type HeaderSelector struct {
	Name string
	Mode Mode
}

// BodySelector configures disclosure for one body keypath.
type BodySelector struct {
	Keypath string
	Mode    Mode
	Quoting Quoting
	// PadTo sets the padded commitment length for UnquotedPadded.
	PadTo int
	// KeyOnly reveals the key but commits only the value. Valid only
	// when Mode is Commit and the body entry is a KeyValue; applying it
	// to a root or array-element ValueEntry is an error.
	KeyOnly bool
}

// Config is a full selective-disclosure configuration for one message.
type Config struct {
	Headers []HeaderSelector
	Body    []BodySelector
}

// Span is one disclosed or committed region of the message.
type Span struct {
	Label     string
	Range     parser.Range
	Revealed  bool
	Plaintext []byte // set when Revealed
	Commit    []byte // 32-byte BLAKE3 commitment, set when not Revealed
	PaddedLen int     // commitment padding length, UnquotedPadded only
}

// Resolved is the outcome of resolving a Config against a parsed message.
// FirstLine is always revealed, matching the original implementation's
// policy of always disclosing the request/status line.
type Resolved struct {
	FirstLine []byte
	Headers   []Span
	Body      []Span
}

// ResolveRequest applies cfg to a fully parsed request.
func ResolveRequest(req *standard.Request, cfg Config) (*Resolved, error) {
	firstLine := req.ProtocolVersionWithNewline()
	firstLine.Start = req.MethodWithSpace().Start
	out := &Resolved{FirstLine: firstLine.Slice(req.Input)}

	headerSpans, err := resolveHeaders(req.Input, req.Headers.Get, cfg.Headers)
	if err != nil {
		return nil, err
	}
	out.Headers = headerSpans

	bodySpans, err := resolveBody(req.Input, req.Body, cfg.Body)
	if err != nil {
		return nil, err
	}
	out.Body = bodySpans
	return out, nil
}

// ResolveResponse applies cfg to a fully parsed response.
func ResolveResponse(resp *standard.Response, cfg Config) (*Resolved, error) {
	firstLine := resp.StatusWithNewline()
	firstLine.Start = resp.ProtocolVersionWithSpace().Start
	out := &Resolved{FirstLine: firstLine.Slice(resp.Input)}

	headerSpans, err := resolveHeaders(resp.Input, resp.Headers.Get, cfg.Headers)
	if err != nil {
		return nil, err
	}
	out.Headers = headerSpans

	bodySpans, err := resolveBody(resp.Input, resp.Body, cfg.Body)
	if err != nil {
		return nil, err
	}
	out.Body = bodySpans
	return out, nil
}

func resolveHeaders(input []byte, get func(string) (standard.Header, bool), selectors []HeaderSelector) ([]Span, error) {
	var spans []Span
	for _, sel := range selectors {
		h, ok := get(sel.Name)
		if !ok {
			return nil, fmt.Errorf("reveal: header %q not present in message", sel.Name)
		}
		full := parser.HeaderFullRange(h.Name, h.Value, input)
		spans = append(spans, makeSpan(sel.Name, full, input, sel.Mode, Unquoted, 0))
	}
	return spans, nil
}

func resolveBody(input []byte, body standard.BodyMap, selectors []BodySelector) ([]Span, error) {
	var spans []Span
	for _, sel := range selectors {
		entry, ok := body[sel.Keypath]
		if !ok {
			return nil, fmt.Errorf("reveal: body keypath %q not present in message", sel.Keypath)
		}

		if sel.KeyOnly {
			kv, ok := entry.(standard.KeyValue)
			if !ok {
				return nil, fmt.Errorf("reveal: KeyOnly requested for %q, which is not a key/value entry", sel.Keypath)
			}
			spans = append(spans, makeSpan(sel.Keypath+".key", parser.WithQuotes(kv.Key), input, Reveal, Quoted, 0))
			spans = append(spans, makeSpan(sel.Keypath+".value", valueRange(kv.Value, sel.Quoting), input, Commit, sel.Quoting, sel.PadTo))
			continue
		}

		var r parser.Range
		switch e := entry.(type) {
		case standard.KeyValue:
			r = valueRange(e.Value, sel.Quoting)
		case standard.ValueEntry:
			r = valueRange(e.Value, sel.Quoting)
		}
		spans = append(spans, makeSpan(sel.Keypath, r, input, sel.Mode, sel.Quoting, sel.PadTo))
	}
	return spans, nil
}

func valueRange(v parser.Range, q Quoting) parser.Range {
	if q == Quoted {
		return parser.WithQuotes(v)
	}
	return v
}

func makeSpan(label string, r parser.Range, input []byte, mode Mode, q Quoting, padTo int) Span {
	span := Span{Label: label, Range: r}
	if mode == Reveal {
		span.Revealed = true
		span.Plaintext = r.Slice(input)
		return span
	}
	padded := calculatePaddedRange(r, q, padTo)
	preimage := make([]byte, padded)
	copy(preimage, r.Slice(input))
	span.Commit = commitmentHash(preimage)
	span.PaddedLen = padded
	return span
}

// calculatePaddedRange returns the number of bytes from r.Start that the
// commitment preimage should cover: either the value's natural length, or
// — for UnquotedPadded — a caller-supplied fixed length so the commitment
// size alone does not leak the original value's length.
func calculatePaddedRange(r parser.Range, q Quoting, padTo int) int {
	natural := r.Len()
	if q != UnquotedPadded || padTo <= natural {
		return natural
	}
	return padTo
}

func commitmentHash(data []byte) []byte {
	sum := blake3.Sum256(data)
	return sum[:]
}
