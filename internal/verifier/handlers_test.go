package verifier

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/tlsnotary/notaryd/internal/config"
	"github.com/tlsnotary/notaryd/internal/store"
	"github.com/tlsnotary/notaryd/internal/tlsengine"
)

// memStore is a minimal in-memory store.Store for exercising the HTTP API
// without a real database.
type memStore struct {
	mu       sync.Mutex
	sessions map[string]*store.Session
	results  map[string]*store.VerificationResult
}

func newMemStore() *memStore {
	return &memStore{
		sessions: make(map[string]*store.Session),
		results:  make(map[string]*store.VerificationResult),
	}
}

func (m *memStore) SaveSession(ctx context.Context, s *store.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.sessions[s.ID] = &cp
	return nil
}

func (m *memStore) UpdateSessionPhase(ctx context.Context, id, phase string, failureReason *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return store.ErrNotFound
	}
	s.Phase = phase
	s.FailureReason = failureReason
	return nil
}

func (m *memStore) GetSession(ctx context.Context, id string) (*store.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *memStore) ListSessions(ctx context.Context, filter store.SessionFilter) ([]*store.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*store.Session
	for _, s := range m.sessions {
		cp := *s
		out = append(out, &cp)
	}
	return out, nil
}

func (m *memStore) DeleteSession(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

func (m *memStore) SaveVerificationResult(ctx context.Context, r *store.VerificationResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *r
	m.results[r.SessionID] = &cp
	return nil
}

func (m *memStore) GetVerificationResult(ctx context.Context, sessionID string) (*store.VerificationResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.results[sessionID]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *memStore) RunRetention(ctx context.Context) (int64, error) { return 0, nil }
func (m *memStore) Close() error                                    { return nil }
func (m *memStore) DB() interface{}                                 { return nil }

// echoProver hands the request bytes straight back as the transcript,
// standing in for a real MPC-TLS engine that round-trips with the server.
type echoProver struct{}

func (echoProver) RunSession(ctx context.Context, spec tlsengine.SessionSpec) (tlsengine.SessionOutput, error) {
	return tlsengine.SessionOutput{Transcript: spec.Request, Proof: []byte("proof")}, nil
}

type alwaysValidVerifier struct{}

func (alwaysValidVerifier) VerifyProof(ctx context.Context, output tlsengine.SessionOutput) error {
	return nil
}

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Auth.Token = "test-token"
	return cfg
}

func newTestServer() (*Server, *memStore) {
	ms := newMemStore()
	s := NewServer(testConfig(), ms, nil, echoProver{}, alwaysValidVerifier{}, slog.Default())
	return s, ms
}

func authedRequest(t *testing.T, method, path string, body interface{}) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Authorization", "Bearer test-token")
	return req
}

const sampleResponse = "HTTP/1.1 200 OK\r\nContent-Type: application/json\r\nContent-Length: 33\r\n\r\n{\"account\":\"12345\",\"balance\":500}"

func TestFullSessionLifecycleVerifies(t *testing.T) {
	s, _ := newTestServer()

	createReq := authedRequest(t, "POST", "/session", SessionRequest{
		ServerName: "bank.example.com",
		Request:    sampleResponse,
		Redacted:   false,
	})
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, createReq)
	if rec.Code != http.StatusOK {
		t.Fatalf("create session: status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var created SessionResponse
	if err := json.NewDecoder(rec.Body).Decode(&created); err != nil {
		t.Fatalf("decode create response: %v", err)
	}
	if created.Phase != string(PhaseNotarizing) {
		t.Fatalf("phase = %q, want %q", created.Phase, PhaseNotarizing)
	}

	notarizeReq := authedRequest(t, "POST", "/session/"+created.ID+"/notarize", NotarizeRequest{
		HeaderNames: []string{"Content-Type"},
		Body: []BodySelectorIn{
			{Keypath: ".account", Reveal: false},
			{Keypath: ".balance", Reveal: true},
		},
	})
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, notarizeReq)
	if rec.Code != http.StatusOK {
		t.Fatalf("notarize: status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var notarized NotarizeResponse
	if err := json.NewDecoder(rec.Body).Decode(&notarized); err != nil {
		t.Fatalf("decode notarize response: %v", err)
	}
	if notarized.RevealedFields[".balance"] != "500" {
		t.Errorf("revealed balance = %q, want %q", notarized.RevealedFields[".balance"], "500")
	}
	if _, ok := notarized.RevealedFields[".account"]; ok {
		t.Error("account should not be revealed, it was configured to be committed")
	}

	verifyReq := authedRequest(t, "POST", "/session/"+created.ID+"/verify", VerifyRequest{
		ExpectServerName: "bank.example.com",
	})
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, verifyReq)
	if rec.Code != http.StatusOK {
		t.Fatalf("verify: status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var verified VerifyResponse
	if err := json.NewDecoder(rec.Body).Decode(&verified); err != nil {
		t.Fatalf("decode verify response: %v", err)
	}
	if !verified.Verified {
		t.Fatalf("session did not verify, errors: %v", verified.Errors)
	}
	if len(verified.BoundKeypaths) != 1 || verified.BoundKeypaths[0] != ".account" {
		t.Errorf("bound keypaths = %v, want [.account]", verified.BoundKeypaths)
	}
}

func TestVerifyFailsWhenServerNameMismatch(t *testing.T) {
	s, _ := newTestServer()

	createReq := authedRequest(t, "POST", "/session", SessionRequest{
		ServerName: "bank.example.com",
		Request:    sampleResponse,
	})
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, createReq)
	var created SessionResponse
	_ = json.NewDecoder(rec.Body).Decode(&created)

	notarizeReq := authedRequest(t, "POST", "/session/"+created.ID+"/notarize", NotarizeRequest{})
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, notarizeReq)
	if rec.Code != http.StatusOK {
		t.Fatalf("notarize: status = %d, body = %s", rec.Code, rec.Body.String())
	}

	verifyReq := authedRequest(t, "POST", "/session/"+created.ID+"/verify", VerifyRequest{
		ExpectServerName: "other.example.com",
	})
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, verifyReq)
	var verified VerifyResponse
	if err := json.NewDecoder(rec.Body).Decode(&verified); err != nil {
		t.Fatalf("decode verify response: %v", err)
	}
	if verified.Verified {
		t.Fatal("session should not verify on a server name mismatch")
	}
	if len(verified.Errors) == 0 {
		t.Error("expected at least one validation error")
	}
}

func TestNotarizeRejectsWrongPhase(t *testing.T) {
	s, _ := newTestServer()

	createReq := authedRequest(t, "POST", "/session", SessionRequest{
		ServerName: "bank.example.com",
		Request:    sampleResponse,
	})
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, createReq)
	var created SessionResponse
	_ = json.NewDecoder(rec.Body).Decode(&created)

	notarizeReq := authedRequest(t, "POST", "/session/"+created.ID+"/notarize", NotarizeRequest{})
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, notarizeReq)
	if rec.Code != http.StatusOK {
		t.Fatalf("first notarize: status = %d", rec.Code)
	}

	// A second notarize call on a session already past the notarizing
	// phase must be rejected.
	notarizeReq2 := authedRequest(t, "POST", "/session/"+created.ID+"/notarize", NotarizeRequest{})
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, notarizeReq2)
	if rec.Code != http.StatusConflict {
		t.Errorf("second notarize: status = %d, want %d", rec.Code, http.StatusConflict)
	}
}

func TestUnauthenticatedRequestRejected(t *testing.T) {
	s, _ := newTestServer()

	var buf bytes.Buffer
	_ = json.NewEncoder(&buf).Encode(SessionRequest{ServerName: "x", Request: sampleResponse})
	req := httptest.NewRequest("POST", "/session", &buf)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestHealthCheckReportsStatus(t *testing.T) {
	s, _ := newTestServer()

	req := httptest.NewRequest("GET", "/health", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var health HealthResponse
	if err := json.NewDecoder(rec.Body).Decode(&health); err != nil {
		t.Fatalf("decode health response: %v", err)
	}
	if health.Status != "ok" {
		t.Errorf("status = %q, want ok", health.Status)
	}
}
