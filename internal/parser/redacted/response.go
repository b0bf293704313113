package redacted

import (
	"bytes"

	"github.com/tlsnotary/notaryd/internal/parser"
)

// ParseResponse recovers as much of a response as survived redaction,
// degrading silently for headers and body as ParseRequest does.
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

	headers, bodyStart := parseHeaderBlock(input, next)
	bodyRange := parseBodyRange(input, headers, bodyStart)
	body := parseBody(input, bodyRange)

	return &Response{
		Input:           input,
		ProtocolVersion: version,
		StatusCode:      statusCode,
		Status:          status,
		Headers:         headers,
		Body:            body,
	}, nil
}
