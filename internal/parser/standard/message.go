package standard

import (
	"bytes"
	"strconv"
	"strings"

	"github.com/tlsnotary/notaryd/internal/parser"
)

// parseHeaderBlock reads header lines starting at pos until it hits the
// blank line that terminates the header block, returning the populated
// Headers and the position immediately following the blank line.
func parseHeaderBlock(input []byte, pos int) (Headers, int, error) {
	headers := make(Headers)
	for {
		line, next, err := parser.ReadLine(input, pos)
		if err != nil {
			return nil, pos, err
		}
		if line.Empty() {
			return headers, next, nil
		}
		name, value, hasValue, err := parser.SplitHeaderLine(line, input)
		if err != nil {
			return nil, pos, err
		}
		if !hasValue {
			return nil, pos, parser.NewInvalidHeader(line.Start, "header has no value")
		}
		key := normalizeHeaderName(string(name.Slice(input)))
		headers[key] = append(headers[key], Header{Name: name, Value: value})
		pos = next
	}
}

// parseFraming reads the message body following the given headers,
// starting at bodyStart. Content-Length framing is used when present;
// otherwise, if any body content remains, it is framed as a single chunk
// of chunked encoding regardless of whether Transfer-Encoding says so.
// Multi-chunk bodies and trailers are out of scope. Returns the body's
// byte range (the raw JSON text, with no chunk envelope) and, when
// chunked, the chunk-size line's range.
func parseFraming(input []byte, headers Headers, bodyStart int) (bodyRange parser.Range, chunkSize *parser.Range, err error) {
	if cl, ok := headers.Get("content-length"); ok {
		n, convErr := strconv.Atoi(strings.TrimSpace(string(cl.Value.Slice(input))))
		if convErr != nil {
			return parser.Range{}, nil, parser.NewInvalidHeader(cl.Value.Start, "invalid Content-Length")
		}
		end := bodyStart + n
		if end > len(input) {
			return parser.Range{}, nil, parser.NewSyntaxError(bodyStart, "Content-Length exceeds available input")
		}
		return parser.Range{Start: bodyStart, End: end}, nil, nil
	}

	if bodyStart >= len(input) {
		return parser.Range{Start: bodyStart, End: bodyStart}, nil, nil
	}

	// No Content-Length: the body is chunked, whether or not
	// Transfer-Encoding said so.
	return parseSingleChunk(input, bodyStart)
}

func parseSingleChunk(input []byte, pos int) (parser.Range, *parser.Range, error) {
	sizeLine, next, err := parser.ReadLine(input, pos)
	if err != nil {
		return parser.Range{}, nil, err
	}
	sizeText := string(sizeLine.Slice(input))
	if idx := strings.IndexByte(sizeText, ';'); idx >= 0 {
		sizeText = sizeText[:idx]
	}
	n, err := strconv.ParseInt(strings.TrimSpace(sizeText), 16, 64)
	if err != nil {
		return parser.Range{}, nil, parser.NewSyntaxError(sizeLine.Start, "invalid chunk size")
	}

	dataStart := next
	dataEnd := dataStart + int(n)
	if dataEnd > len(input) {
		return parser.Range{}, nil, parser.NewSyntaxError(dataStart, "chunk size exceeds available input")
	}
	afterData := dataEnd
	// Consume the CRLF that terminates the chunk data.
	if !bytes.HasPrefix(input[afterData:], []byte("\r\n")) {
		return parser.Range{}, nil, parser.NewSyntaxError(afterData, "missing CRLF after chunk data")
	}
	afterData += 2

	// A single-chunk body is terminated by a zero-size final chunk; the
	// chunked-body grammar ends at that line, with no trailer section.
	termLine, _, err := parser.ReadLine(input, afterData)
	if err != nil {
		return parser.Range{}, nil, err
	}
	if strings.TrimSpace(string(termLine.Slice(input))) != "0" {
		return parser.Range{}, nil, parser.NewSyntaxError(termLine.Start, "expected terminating zero-size chunk, multi-chunk bodies are unsupported")
	}

	return parser.Range{Start: dataStart, End: dataEnd}, &sizeLine, nil
}
