package redacted

import (
	"bytes"

	"github.com/tlsnotary/notaryd/internal/parser"
)

// ParseRequest recovers as much of a request as survived redaction.
// Headers and body degrade silently to empty maps when they cannot be
// recovered; only a missing or malformed request line is a hard failure,
// since without it there is nothing to report.
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

	headers, bodyStart := parseHeaderBlock(input, next)
	bodyRange := parseBodyRange(input, headers, bodyStart)
	body := parseBody(input, bodyRange)

	return &Request{
		Input:           input,
		Method:          method,
		URL:             url,
		ProtocolVersion: version,
		Headers:         headers,
		Body:            body,
	}, nil
}
