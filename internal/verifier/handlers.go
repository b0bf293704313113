package verifier

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tlsnotary/notaryd/internal/commitment"
	"github.com/tlsnotary/notaryd/internal/parser/redacted"
	"github.com/tlsnotary/notaryd/internal/parser/standard"
	"github.com/tlsnotary/notaryd/internal/reveal"
	"github.com/tlsnotary/notaryd/internal/store"
	"github.com/tlsnotary/notaryd/internal/tlsengine"
)

// pendingSession holds the in-memory working state of a session between
// its HTTP calls. Unlike store.Session, this is never persisted: it can
// carry revealed transcript fragments that have no business surviving a
// process restart.
type pendingSession struct {
	mu          sync.Mutex
	serverName  string
	transcript  []byte
	redacted    bool
	sentBytes   int
	recvBytes   int
	proof       []byte
	revealed    map[string]string
	bind        commitment.BindResult
}

var (
	pendingMu sync.Mutex
	pending   = map[string]*pendingSession{}
)

// createSession starts a new notarization session.
func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	var req SessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.ServerName == "" || req.Request == "" {
		http.Error(w, "server_name and request are required", http.StatusBadRequest)
		return
	}

	id := uuid.NewString()
	session := &store.Session{
		ID:             id,
		ServerName:     req.ServerName,
		Phase:          string(PhaseNotarizing),
		RequestSummary: summarize(req.Request),
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	if err := s.store.SaveSession(ctx, session); err != nil {
		s.logger.Error("failed to save session", "error", err)
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}

	pendingMu.Lock()
	pending[id] = &pendingSession{
		serverName: req.ServerName,
		transcript: []byte(req.Request),
		redacted:   req.Redacted,
	}
	pendingMu.Unlock()

	if s.hub != nil {
		s.hub.BroadcastSessionStarted(session)
	}

	s.writeJSON(w, toSessionResponse(session))
}

// getSession reports a session's current phase.
func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	session, err := s.store.GetSession(ctx, id)
	if err != nil {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}
	s.writeJSON(w, toSessionResponse(session))
}

// notarize drives the prover side of one session to completion: it parses
// the recorded transcript with the standard parser, applies the
// requested selective-disclosure configuration, synthesizes the redacted
// transcript a verifier would actually receive, and binds the resulting
// commitments to the keypaths the redacted parser recovers.
func (s *Server) notarize(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	ctx, cancel := context.WithTimeout(r.Context(), time.Duration(s.notarizationTimeout())*time.Second)
	defer cancel()

	session, err := s.store.GetSession(ctx, id)
	if err != nil {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}
	if session.Phase != string(PhaseNotarizing) {
		http.Error(w, "Session is not in the notarizing phase", http.StatusConflict)
		return
	}

	pendingMu.Lock()
	p, ok := pending[id]
	pendingMu.Unlock()
	if !ok {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}

	select {
	case s.sem <- struct{}{}:
		defer func() { <-s.sem }()
	default:
		http.Error(w, "Too many concurrent notarization sessions", http.StatusServiceUnavailable)
		return
	}

	var req NotarizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON: "+err.Error(), http.StatusBadRequest)
		return
	}

	output, err := s.prover.RunSession(ctx, tlsengine.SessionSpec{ServerName: p.serverName, Request: p.transcript})
	if err != nil {
		s.failSession(ctx, session, err.Error())
		http.Error(w, "Notarization unavailable: "+err.Error(), http.StatusNotImplemented)
		return
	}

	resp, err := standard.ParseResponse(output.Transcript)
	if err != nil {
		s.failSession(ctx, session, "parsing transcript: "+err.Error())
		http.Error(w, "Malformed transcript: "+err.Error(), http.StatusUnprocessableEntity)
		return
	}

	cfg := buildRevealConfig(req, s.cfg.Reveal.DefaultPadToBytes)
	resolved, err := reveal.ResolveResponse(resp, cfg)
	if err != nil {
		s.failSession(ctx, session, "resolving disclosure: "+err.Error())
		http.Error(w, "Invalid disclosure configuration: "+err.Error(), http.StatusBadRequest)
		return
	}

	redactedTranscript := zeroUnrevealedSpans(output.Transcript, resolved)
	rResp, err := redacted.ParseResponse(redactedTranscript)
	if err != nil {
		s.failSession(ctx, session, "parsing redacted transcript: "+err.Error())
		http.Error(w, "Malformed redacted transcript: "+err.Error(), http.StatusUnprocessableEntity)
		return
	}

	commitments := commitmentsFromSpans(resolved.Body)
	keyEnds := keyEndsFromRedactedBody(rResp.Body, redactedTranscript)
	bind := commitment.BindToKeypaths(keyEnds, commitments)

	revealedFields := map[string]string{}
	for _, span := range resolved.Body {
		if span.Revealed {
			revealedFields[span.Label] = string(span.Plaintext)
		}
	}

	p.mu.Lock()
	p.revealed = revealedFields
	p.bind = bind
	p.recvBytes = len(output.Transcript)
	p.proof = output.Proof
	p.mu.Unlock()

	if err := Transition(PhaseNotarizing, PhaseVerifying); err != nil {
		s.failSession(ctx, session, err.Error())
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if err := s.store.UpdateSessionPhase(ctx, id, string(PhaseVerifying), nil); err != nil {
		s.logger.Error("failed to update session phase", "error", err)
	}
	session.Phase = string(PhaseVerifying)
	if s.hub != nil {
		s.hub.BroadcastPhaseChanged(session)
		for keypath, value := range revealedFields {
			s.hub.BroadcastFieldRevealed(id, keypath, value)
		}
	}

	s.writeJSON(w, NotarizeResponse{
		SessionID:      id,
		Phase:          string(PhaseVerifying),
		RevealedFields: revealedFields,
		CommitCount:    len(bind.Bound) + len(bind.Unbound),
	})
}

// verify checks the prover's proof and, if it holds, asserts the
// caller's required properties of the notarized session.
func (s *Server) verify(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	session, err := s.store.GetSession(ctx, id)
	if err != nil {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}
	if session.Phase != string(PhaseVerifying) {
		http.Error(w, "Session is not in the verifying phase", http.StatusConflict)
		return
	}

	pendingMu.Lock()
	p, ok := pending[id]
	pendingMu.Unlock()
	if !ok {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}

	var req VerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON: "+err.Error(), http.StatusBadRequest)
		return
	}

	p.mu.Lock()
	proofErr := s.verifier.VerifyProof(ctx, tlsengine.SessionOutput{Transcript: p.transcript, Proof: p.proof})
	boundKeypaths := make([]string, 0, len(p.bind.Bound))
	for kp := range p.bind.Bound {
		boundKeypaths = append(boundKeypaths, kp)
	}
	result := commitment.NotarizationResult{
		ServerName:    p.serverName,
		SentBytes:     p.sentBytes,
		RecvBytes:     p.recvBytes,
		HashAlgorithm: s.cfg.Reveal.HashAlgorithm,
		Bound:         p.bind.Bound,
	}
	revealedFields := p.revealed
	unboundCount := len(p.bind.Unbound)
	p.mu.Unlock()

	builder := commitment.NewValidatorBuilder()
	if req.ExpectServerName != "" {
		builder.ExpectServerName(req.ExpectServerName)
	}
	if req.MinSentBytes > 0 {
		builder.MinSentBytes(req.MinSentBytes)
	}
	if req.MinRecvBytes > 0 {
		builder.MinRecvBytes(req.MinRecvBytes)
	}

	var errs []string
	if proofErr != nil {
		errs = append(errs, "proof verification failed: "+proofErr.Error())
	}
	for _, e := range builder.Build().Validate(result) {
		errs = append(errs, e.Error())
	}
	verified := len(errs) == 0

	nextPhase := PhaseVerified
	var failureReason *string
	if !verified {
		nextPhase = PhaseFailed
		reason := errs[0]
		failureReason = &reason
	}
	if err := Transition(PhaseVerifying, nextPhase); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if err := s.store.UpdateSessionPhase(ctx, id, string(nextPhase), failureReason); err != nil {
		s.logger.Error("failed to update session phase", "error", err)
	}

	vr := &store.VerificationResult{
		SessionID:      id,
		ServerName:     result.ServerName,
		SentBytes:      result.SentBytes,
		RecvBytes:      result.RecvBytes,
		HashAlgorithm:  result.HashAlgorithm,
		RevealedFields: revealedFields,
		BoundKeypaths:  boundKeypaths,
		UnboundCommits: unboundCount,
		Verified:       verified,
		VerifiedAt:     time.Now(),
	}
	if err := s.store.SaveVerificationResult(ctx, vr); err != nil {
		s.logger.Error("failed to save verification result", "error", err)
	}

	session.Phase = string(nextPhase)
	if s.hub != nil {
		s.hub.BroadcastPhaseChanged(session)
		s.hub.BroadcastVerified(vr)
	}

	pendingMu.Lock()
	delete(pending, id)
	pendingMu.Unlock()

	s.writeJSON(w, VerifyResponse{
		SessionID:      id,
		Verified:       verified,
		Errors:         errs,
		RevealedFields: revealedFields,
		BoundKeypaths:  boundKeypaths,
		UnboundCommits: unboundCount,
	})
}

func (s *Server) failSession(ctx context.Context, session *store.Session, reason string) {
	if err := s.store.UpdateSessionPhase(ctx, session.ID, string(PhaseFailed), &reason); err != nil {
		s.logger.Error("failed to mark session failed", "error", err)
	}
	session.Phase = string(PhaseFailed)
	if s.hub != nil {
		s.hub.BroadcastPhaseChanged(session)
	}
}

func (s *Server) notarizationTimeout() int {
	if s.cfg.Notarization.SessionTimeoutS > 0 {
		return s.cfg.Notarization.SessionTimeoutS
	}
	return 60
}

func (s *Server) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

func toSessionResponse(s *store.Session) SessionResponse {
	return SessionResponse{
		ID:            s.ID,
		ServerName:    s.ServerName,
		Phase:         s.Phase,
		CreatedAt:     s.CreatedAt,
		CompletedAt:   s.CompletedAt,
		FailureReason: s.FailureReason,
	}
}

func summarize(request string) string {
	for i, c := range request {
		if c == '\r' || c == '\n' {
			return request[:i]
		}
	}
	if len(request) > 80 {
		return request[:80]
	}
	return request
}

func buildRevealConfig(req NotarizeRequest, defaultPadTo int) reveal.Config {
	cfg := reveal.Config{}
	for _, name := range req.HeaderNames {
		cfg.Headers = append(cfg.Headers, reveal.HeaderSelector{Name: name, Mode: reveal.Reveal})
	}
	for _, b := range req.Body {
		mode := reveal.Commit
		if b.Reveal {
			mode = reveal.Reveal
		}
		quoting := reveal.Quoted
		padTo := b.PadTo
		if padTo == 0 {
			padTo = defaultPadTo
			quoting = reveal.UnquotedPadded
		}
		cfg.Body = append(cfg.Body, reveal.BodySelector{
			Keypath: b.Keypath,
			Mode:    mode,
			Quoting: quoting,
			PadTo:   padTo,
			KeyOnly: b.KeyOnly,
		})
	}
	return cfg
}

// zeroUnrevealedSpans produces the transcript a verifier would actually
// receive: every byte of a committed span (including any quote marks the
// span covers) is overwritten with NUL, while revealed spans and bytes
// outside every committed span are left untouched.
func zeroUnrevealedSpans(input []byte, resolved *reveal.Resolved) []byte {
	out := make([]byte, len(input))
	copy(out, input)

	zero := func(spans []reveal.Span) {
		for _, span := range spans {
			if span.Revealed {
				continue
			}
			for i := span.Range.Start; i < span.Range.End && i < len(out); i++ {
				out[i] = 0
			}
		}
	}
	zero(resolved.Headers)
	zero(resolved.Body)
	return out
}

// commitmentsFromSpans turns the prover's committed spans into the
// transcript-commitment list a verifier would receive out of band.
func commitmentsFromSpans(spans []reveal.Span) []commitment.TranscriptCommitment {
	var out []commitment.TranscriptCommitment
	for _, span := range spans {
		if span.Revealed {
			continue
		}
		out = append(out, commitment.TranscriptCommitment{
			RangeStart: span.Range.Start,
			RangeEnd:   span.Range.Start + span.PaddedLen,
			Hash:       span.Commit,
		})
	}
	return out
}

// keyEndsFromRedactedBody finds every body entry whose surviving value
// span is entirely zero bytes, meaning its content was committed rather
// than revealed, and reports the byte offset a commitment should bind to.
func keyEndsFromRedactedBody(body redacted.BodyMap, transcript []byte) []commitment.KeyEnd {
	var out []commitment.KeyEnd
	for keypath, entry := range body {
		kv, ok := entry.(redacted.KeyValue)
		if !ok || kv.Value == nil {
			continue
		}
		if isAllZero(kv.Value.Slice(transcript)) {
			out = append(out, commitment.KeyEnd{Keypath: keypath, End: kv.Key.End})
		}
	}
	return out
}

func isAllZero(b []byte) bool {
	if len(b) == 0 {
		return false
	}
	for _, c := range b {
		if c != 0 {
			return false
		}
	}
	return true
}
