package standard

import (
	"bytes"

	"github.com/tlsnotary/notaryd/internal/parser"
)

// ParseRequest parses a complete HTTP/1.1 request with a JSON body (or no
// body at all) from input. Returns an *Error (see package parser) on any
// grammar mismatch.
func ParseRequest(input []byte) (*Request, error) {
	line, next, err := parser.ReadLine(input, 0)
	if err != nil {
		return nil, err
	}

	content := line.Slice(input)
	firstSpace := bytes.IndexByte(content, ' ')
	if firstSpace < 0 {
		return nil, parser.NewSyntaxError(line.Start, "malformed request line, expected METHOD URL VERSION")
	}
	lastSpace := bytes.LastIndexByte(content, ' ')
	if lastSpace == firstSpace {
		return nil, parser.NewSyntaxError(line.Start, "malformed request line, expected METHOD URL VERSION")
	}

	method := parser.Range{Start: line.Start, End: line.Start + firstSpace}
	url := parser.Range{Start: line.Start + firstSpace + 1, End: line.Start + lastSpace}
	version := parser.Range{Start: line.Start + lastSpace + 1, End: line.End}

	headers, bodyStart, err := parseHeaderBlock(input, next)
	if err != nil {
		return nil, err
	}

	bodyRange, chunkSize, err := parseFraming(input, headers, bodyStart)
	if err != nil {
		return nil, err
	}

	body, err := parseBody(input, bodyRange)
	if err != nil {
		return nil, err
	}

	return &Request{
		Input:           input,
		Method:          method,
		URL:             url,
		ProtocolVersion: version,
		Headers:         headers,
		ChunkSize:       chunkSize,
		Body:            body,
	}, nil
}
