package standard

import (
	"testing"
)

func TestParseRequestContentLength(t *testing.T) {
	raw := "POST /api/balance/alice HTTP/1.1\r\n" +
		"Host: example.com\r\n" +
		"Content-Type: application/json\r\n" +
		"Content-Length: 22\r\n" +
		"\r\n" +
		`{"user":"alice","n":1}`
	input := []byte(raw)

	req, err := ParseRequest(input)
	if err != nil {
		t.Fatalf("ParseRequest: %v", err)
	}

	if got := string(req.Method.Slice(input)); got != "POST" {
		t.Errorf("Method = %q, want POST", got)
	}
	if got := string(req.URL.Slice(input)); got != "/api/balance/alice" {
		t.Errorf("URL = %q, want /api/balance/alice", got)
	}
	if got := string(req.ProtocolVersion.Slice(input)); got != "HTTP/1.1" {
		t.Errorf("ProtocolVersion = %q, want HTTP/1.1", got)
	}

	host, ok := req.Headers.Get("Host")
	if !ok {
		t.Fatalf("Host header not found")
	}
	if got := string(host.Value.Slice(input)); got != "example.com" {
		t.Errorf("Host value = %q, want example.com", got)
	}

	root, ok := req.Body[""]
	if !ok {
		t.Fatalf("root body entry not found")
	}
	rootVal, ok := root.(ValueEntry)
	if !ok {
		t.Fatalf("root entry is %T, want ValueEntry", root)
	}
	if got := string(rootVal.Value.Slice(input)); got != `{"user":"alice","n":1}` {
		t.Errorf("root value = %q", got)
	}

	entry, ok := req.Body[".user"]
	if !ok {
		t.Fatalf(".user keypath not found, have: %v", keys(req.Body))
	}
	kv, ok := entry.(KeyValue)
	if !ok {
		t.Fatalf(".user entry is %T, want KeyValue", entry)
	}
	if got := string(kv.Value.Slice(input)); got != `"alice"` {
		t.Errorf(".user value = %q, want \"alice\"", got)
	}
}

func TestParseRequestChunked(t *testing.T) {
	raw := "POST /ingest HTTP/1.1\r\n" +
		"Transfer-Encoding: chunked\r\n" +
		"\r\n" +
		"10\r\n" +
		`{"ok":true}     ` + "\r\n" +
		"0\r\n"
	input := []byte(raw)

	req, err := ParseRequest(input)
	if err != nil {
		t.Fatalf("ParseRequest: %v", err)
	}
	if req.ChunkSize == nil {
		t.Fatalf("expected ChunkSize to be set for chunked request")
	}
	entry, ok := req.Body[".ok"]
	if !ok {
		t.Fatalf(".ok keypath not found, have: %v", keys(req.Body))
	}
	kv := entry.(KeyValue)
	if got := string(kv.Value.Slice(input)); got != "true" {
		t.Errorf(".ok value = %q, want true", got)
	}
}

func TestParseResponseNestedArray(t *testing.T) {
	raw := "HTTP/1.1 200 OK\r\n" +
		"Content-Type: application/json\r\n" +
		"Content-Length: 35\r\n" +
		"\r\n" +
		`{"balances":[{"user":"a","n":1},2]}`
	input := []byte(raw)

	resp, err := ParseResponse(input)
	if err != nil {
		t.Fatalf("ParseResponse: %v", err)
	}
	if got := string(resp.StatusCode.Slice(input)); got != "200" {
		t.Errorf("StatusCode = %q, want 200", got)
	}
	if got := string(resp.Status.Slice(input)); got != "OK" {
		t.Errorf("Status = %q, want OK", got)
	}

	entry, ok := resp.Body[".balances[0].user"]
	if !ok {
		t.Fatalf(".balances[0].user not found, have: %v", keys(resp.Body))
	}
	kv := entry.(KeyValue)
	if got := string(kv.Value.Slice(input)); got != `"a"` {
		t.Errorf(".balances[0].user = %q", got)
	}

	entry, ok = resp.Body[".balances[1]"]
	if !ok {
		t.Fatalf(".balances[1] not found")
	}
	ve := entry.(ValueEntry)
	if got := string(ve.Value.Slice(input)); got != "2" {
		t.Errorf(".balances[1] = %q, want 2", got)
	}
}

func TestParseResponseChunkedNoTransferEncodingHeader(t *testing.T) {
	raw := "HTTP/1.1 200 OK\r\n" +
		"Content-Type: application/json\r\n" +
		"\r\n" +
		"1a\r\n" +
		`{"status":"success"}` + "      " + "\r\n" +
		"0\r\n"
	input := []byte(raw)

	resp, err := ParseResponse(input)
	if err != nil {
		t.Fatalf("ParseResponse: %v", err)
	}

	entry, ok := resp.Body[".status"]
	if !ok {
		t.Fatalf(".status keypath not found, have: %v", keys(resp.Body))
	}
	kv := entry.(KeyValue)
	if got := string(kv.Value.Slice(input)); got != `"success"` {
		t.Errorf(".status value = %q, want \"success\"", got)
	}
}

func TestParseResponseEmptyBody(t *testing.T) {
	raw := "HTTP/1.1 204 No Content\r\n\r\n"
	resp, err := ParseResponse([]byte(raw))
	if err != nil {
		t.Fatalf("ParseResponse: %v", err)
	}
	if len(resp.Body) != 0 {
		t.Errorf("expected empty body map, got %d entries", len(resp.Body))
	}
}

func TestParseRequestMalformedFirstLine(t *testing.T) {
	_, err := ParseRequest([]byte("GET\r\n\r\n"))
	if err == nil {
		t.Fatalf("expected error for malformed request line")
	}
}

func keys(m BodyMap) []string {
	ks := make([]string, 0, len(m))
	for k := range m {
		ks = append(ks, k)
	}
	return ks
}
