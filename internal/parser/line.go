package parser

import "bytes"

// ReadLine finds the next CRLF- or LF-terminated line starting at pos.
// Returns the line's content range (excluding the terminator) and the
// position immediately following the terminator.
func ReadLine(input []byte, pos int) (Range, int, error) {
	if pos > len(input) {
		return Range{}, pos, NewSyntaxError(pos, "read past end of input")
	}
	rest := input[pos:]
	idx := bytes.IndexByte(rest, '\n')
	if idx < 0 {
		return Range{}, pos, NewSyntaxError(pos, "unterminated line, expected newline")
	}
	end := pos + idx
	if end > pos && input[end-1] == '\r' {
		return Range{Start: pos, End: end - 1}, pos + idx + 1, nil
	}
	return Range{Start: pos, End: end}, pos + idx + 1, nil
}

// SplitHeaderLine splits a header line's content range into name and value
// ranges at the first colon. If no colon is present the line is not a
// valid header. If nothing but whitespace follows the colon, hasValue is
// false and value is the empty range at the position where a value would
// start — callers in tolerant (redacted) parsing treat this as "header
// present, value not recovered" rather than an error.
func SplitHeaderLine(line Range, input []byte) (name Range, value Range, hasValue bool, err error) {
	content := input[line.Start:line.End]
	idx := bytes.IndexByte(content, ':')
	if idx < 0 {
		return Range{}, Range{}, false, NewInvalidHeader(line.Start, "missing ':' in header line")
	}
	name = Range{Start: line.Start, End: line.Start + idx}
	valStart := line.Start + idx + 1
	for valStart < line.End && (input[valStart] == ' ' || input[valStart] == '\t') {
		valStart++
	}
	valEnd := line.End
	for valEnd > valStart && (input[valEnd-1] == ' ' || input[valEnd-1] == '\t') {
		valEnd--
	}
	if valStart >= valEnd {
		return name, Range{Start: valStart, End: valStart}, false, nil
	}
	return name, Range{Start: valStart, End: valEnd}, true, nil
}
