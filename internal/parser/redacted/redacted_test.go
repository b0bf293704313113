package redacted

import "testing"

func TestParseRequestRedactedHeaderValue(t *testing.T) {
	raw := "GET /api/balance/alice HTTP/1.1\r\n" +
		"Host: \r\n" +
		"Authorization: \r\n" +
		"\r\n"
	input := []byte(raw)

	req, err := ParseRequest(input)
	if err != nil {
		t.Fatalf("ParseRequest: %v", err)
	}
	auth, ok := req.Headers.Get("authorization")
	if !ok {
		t.Fatalf("authorization header not found")
	}
	if auth.Value != nil {
		t.Errorf("expected nil Value for fully redacted header, got %v", *auth.Value)
	}
}

func TestParseResponseRedactedBody(t *testing.T) {
	// "balance" survives, its value is zeroed but keeps its original length.
	raw := "HTTP/1.1 200 OK\r\n" +
		"Content-Type: application/json\r\n" +
		"\r\n" +
		`{"user":"alice","balance":` + "\x00\x00\x00}"
	input := []byte(raw)

	resp, err := ParseResponse(input)
	if err != nil {
		t.Fatalf("ParseResponse: %v", err)
	}

	entry, ok := resp.Body[".balance"]
	if !ok {
		t.Fatalf(".balance keypath not found")
	}
	kv, ok := entry.(KeyValue)
	if !ok {
		t.Fatalf(".balance entry is %T, want KeyValue", entry)
	}
	if kv.Value == nil {
		t.Fatalf("expected a zeroed-but-present value range for .balance")
	}
	if got := string(kv.Value.Slice(input)); got != "\x00\x00\x00" {
		t.Errorf(".balance raw value = %q", got)
	}

	userEntry, ok := resp.Body[".user"]
	if !ok {
		t.Fatalf(".user keypath not found")
	}
	userKV := userEntry.(KeyValue)
	if got := string(userKV.Value.Slice(input)); got != `"alice"` {
		t.Errorf(".user value = %q, want \"alice\"", got)
	}
}

func TestParseResponseFullyRedactedValue(t *testing.T) {
	// The whole value (including quotes) for "token" is gone, only the
	// key, colon, and terminating comma survive.
	raw := "HTTP/1.1 200 OK\r\n" +
		"\r\n" +
		`{"token":,"ok":true}`
	input := []byte(raw)

	resp, err := ParseResponse(input)
	if err != nil {
		t.Fatalf("ParseResponse: %v", err)
	}
	entry, ok := resp.Body[".token"]
	if !ok {
		t.Fatalf(".token keypath not found")
	}
	kv := entry.(KeyValue)
	if kv.Value != nil {
		t.Errorf("expected nil Value for fully redacted body entry, got %v", *kv.Value)
	}
}

func TestParseResponseBraceStrippedSurvivingPair(t *testing.T) {
	// The object's braces, and everything else in the body, were zeroed;
	// only one "key":value pair survived in the NUL padding.
	raw := "HTTP/1.1 200 OK\r\n" +
		"\r\n" +
		"\x00\x00\x00\x00" + `"username":"alice"` + "\x00\x00\x00\x00"
	input := []byte(raw)

	resp, err := ParseResponse(input)
	if err != nil {
		t.Fatalf("ParseResponse: %v", err)
	}
	if len(resp.Body) != 1 {
		t.Fatalf("expected exactly one surviving body entry, got %d: %v", len(resp.Body), resp.Body)
	}
	entry, ok := resp.Body[".username"]
	if !ok {
		t.Fatalf(".username keypath not found")
	}
	kv, ok := entry.(KeyValue)
	if !ok {
		t.Fatalf(".username entry is %T, want KeyValue", entry)
	}
	if got := string(kv.Key.Slice(input)); got != "username" {
		t.Errorf("key = %q, want username", got)
	}
	if kv.Value == nil {
		t.Fatalf("expected a surviving value for .username")
	}
	if got := string(kv.Value.Slice(input)); got != `"alice"` {
		t.Errorf("value = %q, want \"alice\"", got)
	}
}

func TestParseResponseBraceStrippedValueGoneEntirely(t *testing.T) {
	// Only the key and colon survived; the value, and everything that
	// would have bounded it, was redacted along with the braces.
	raw := "HTTP/1.1 200 OK\r\n" +
		"\r\n" +
		`"balance":` + "\x00\x00\x00\x00"
	input := []byte(raw)

	resp, err := ParseResponse(input)
	if err != nil {
		t.Fatalf("ParseResponse: %v", err)
	}
	entry, ok := resp.Body[".balance"]
	if !ok {
		t.Fatalf(".balance keypath not found")
	}
	kv := entry.(KeyValue)
	if kv.Value != nil {
		t.Errorf("expected nil Value for an unbounded redacted run, got %v", *kv.Value)
	}
}

func TestParseRequestOnlyFirstLineSurvives(t *testing.T) {
	input := []byte("GET /x HTTP/1.1\r\n")
	req, err := ParseRequest(input)
	if err != nil {
		t.Fatalf("ParseRequest: %v", err)
	}
	if len(req.Headers) != 0 {
		t.Errorf("expected no headers, got %d", len(req.Headers))
	}
	if len(req.Body) != 0 {
		t.Errorf("expected empty body map, got %d entries", len(req.Body))
	}
}

func TestParseRequestMalformedFirstLineHardFails(t *testing.T) {
	_, err := ParseRequest([]byte("garbage\r\n\r\n"))
	if err == nil {
		t.Fatalf("expected hard failure when the first line itself is unrecoverable")
	}
}
