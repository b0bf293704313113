package standard

import (
	"bytes"

	"github.com/tlsnotary/notaryd/internal/parser"
)

// ParseResponse parses a complete HTTP/1.1 response with a JSON body (or no
// body, e.g. a 204) from input. Responses never carry a ChunkSize field on
// the returned struct even when chunked framing was used — only requests
// expose it, matching the grammar this parser was distilled from.
func ParseResponse(input []byte) (*Response, error) {
	line, next, err := parser.ReadLine(input, 0)
	if err != nil {
		return nil, err
	}

	content := line.Slice(input)
	firstSpace := bytes.IndexByte(content, ' ')
	if firstSpace < 0 {
		return nil, parser.NewSyntaxError(line.Start, "malformed status line, expected VERSION CODE STATUS")
	}
	rest := content[firstSpace+1:]
	secondSpace := bytes.IndexByte(rest, ' ')
	if secondSpace < 0 {
		return nil, parser.NewSyntaxError(line.Start, "malformed status line, expected VERSION CODE STATUS")
	}

	version := parser.Range{Start: line.Start, End: line.Start + firstSpace}
	statusCode := parser.Range{
		Start: line.Start + firstSpace + 1,
		End:   line.Start + firstSpace + 1 + secondSpace,
	}
	status := parser.Range{Start: statusCode.End + 1, End: line.End}

	headers, bodyStart, err := parseHeaderBlock(input, next)
	if err != nil {
		return nil, err
	}

	bodyRange, _, err := parseFraming(input, headers, bodyStart)
	if err != nil {
		return nil, err
	}

	// A response body is only parsed as JSON if it looks like one;
	// tolerant of an empty body (e.g. 204 No Content, or a response with
	// no recognized framing header at all).
	var body BodyMap
	if bodyRange.Empty() {
		body = make(BodyMap)
	} else if b := input[bodyRange.Start]; b == '{' || b == '[' {
		body, err = parseBody(input, bodyRange)
		if err != nil {
			return nil, err
		}
	} else {
		body = make(BodyMap)
	}

	return &Response{
		Input:           input,
		ProtocolVersion: version,
		StatusCode:      statusCode,
		Status:          status,
		Headers:         headers,
		Body:            body,
	}, nil
}
