// Package parser implements range-preserving parsing of HTTP/1.1 messages
// with JSON bodies. Productions never copy or decode bytes; every result is
// a half-open [Start, End) range into the caller's input buffer.
package parser

import "fmt"

// Range is a half-open byte span [Start, End) into an input buffer.
type Range struct {
	Start int
	End   int
}

// Slice returns the bytes this range covers in input.
func (r Range) Slice(input []byte) []byte {
	return input[r.Start:r.End]
}

// Len returns the number of bytes covered.
func (r Range) Len() int {
	return r.End - r.Start
}

// Empty reports whether the range covers zero bytes.
func (r Range) Empty() bool {
	return r.Start >= r.End
}

func (r Range) String() string {
	return fmt.Sprintf("[%d:%d)", r.Start, r.End)
}

// satSub subtracts n from v, floored at 0 (mirrors Rust's saturating_sub,
// since these ranges are widened toward surrounding syntax that is always
// present for a well-formed match but must never underflow on malformed
// or redacted input).
func satSub(v, n int) int {
	if v < n {
		return 0
	}
	return v - n
}

// WithQuotes widens a value range to include one byte on either side,
// turning an inner value range (between the quote marks) into a range
// that covers `"value"` including both quote characters.
func WithQuotes(v Range) Range {
	return Range{Start: satSub(v.Start, 1), End: v.End + 1}
}

// WithOpeningQuote widens only the start of a range by one byte, covering
// the opening quote but not a trailing quote. Used when the caller already
// owns the closing delimiter separately (e.g. building up a key range that
// will later be joined with a colon and value).
func WithOpeningQuote(v Range) Range {
	return Range{Start: satSub(v.Start, 1), End: v.End}
}

// WithQuotesAndColon widens a key's inner range to include its surrounding
// quotes plus the colon (and any whitespace JSON allows before the value)
// that follows the closing quote, given the absolute offset of the colon
// in input.
func WithQuotesAndColon(key Range, colonOffset int) Range {
	withQuotes := WithQuotes(key)
	end := colonOffset + 1
	if end < withQuotes.End {
		end = withQuotes.End
	}
	return Range{Start: withQuotes.Start, End: end}
}

// WithNewline widens a range's end to include one trailing newline byte
// ('\n') found in input immediately after the range, if present.
func WithNewline(v Range, input []byte) Range {
	if v.End < len(input) && input[v.End] == '\n' {
		return Range{Start: v.Start, End: v.End + 1}
	}
	return v
}

// WithCRLF widens a range's end to include a trailing "\r\n" sequence
// found in input immediately after the range, if present. Falls back to
// WithNewline for a bare "\n".
func WithCRLF(v Range, input []byte) Range {
	if v.End+1 < len(input) && input[v.End] == '\r' && input[v.End+1] == '\n' {
		return Range{Start: v.Start, End: v.End + 2}
	}
	return WithNewline(v, input)
}

// WithSeparator widens a range's end to include one trailing separator
// byte (typically ',') found in input immediately after the range.
func WithSeparator(v Range, input []byte, sep byte) Range {
	if v.End < len(input) && input[v.End] == sep {
		return Range{Start: v.Start, End: v.End + 1}
	}
	return v
}

// FullPairQuoted joins a JSON object key range and a quoted value range
// into the full `"key":"value"` span, given the key's inner range, the
// colon's absolute offset, and the value's inner range.
func FullPairQuoted(key Range, colonOffset int, value Range) Range {
	start := WithQuotes(key).Start
	end := WithQuotes(value).End
	_ = colonOffset
	return Range{Start: start, End: end}
}

// FullPairUnquoted joins a JSON object key range and an unquoted value
// range (number, bool, null) into the full `"key":value` span.
func FullPairUnquoted(key Range, value Range) Range {
	start := WithQuotes(key).Start
	return Range{Start: start, End: value.End}
}

// HeaderFullRange joins a header name range and value range into the full
// `Name: Value\r\n` span as it appears in input.
func HeaderFullRange(name Range, value Range, input []byte) Range {
	end := value.End
	if value.Empty() {
		end = name.End
	}
	return WithCRLF(Range{Start: name.Start, End: end}, input)
}
