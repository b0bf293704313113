package verifier

import "time"

// SessionRequest is the body of POST /session: what server the prover
// should notarize a request against, and a redacted flag. The flag is
// recorded with the pending session but does not change parsing: notarize
// always parses the transcript with the standard parser and the
// synthesized redacted transcript with the redacted parser.
type SessionRequest struct {
	ServerName string `json:"server_name"`
	Request    string `json:"request"` // raw HTTP request text
	Redacted   bool   `json:"redacted"`
}

// SessionResponse is returned by POST /session and GET /session/{id}.
type SessionResponse struct {
	ID            string     `json:"id"`
	ServerName    string     `json:"server_name"`
	Phase         string     `json:"phase"`
	CreatedAt     time.Time  `json:"created_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	FailureReason *string    `json:"failure_reason,omitempty"`
}

// NotarizeRequest is the body of POST /session/{id}/notarize: the selective-disclosure
// configuration the prover wants applied to the transcript once the
// MPC-TLS engine returns it.
type NotarizeRequest struct {
	HeaderNames []string         `json:"reveal_headers"`
	Body        []BodySelectorIn `json:"body"`
}

// BodySelectorIn is the wire form of a reveal.BodySelector.
type BodySelectorIn struct {
	Keypath string `json:"keypath"`
	Reveal  bool   `json:"reveal"`
	KeyOnly bool   `json:"key_only"`
	PadTo   int    `json:"pad_to"`
}

// NotarizeResponse reports what was revealed immediately after
// notarization, ahead of the asynchronous proof verification.
type NotarizeResponse struct {
	SessionID      string            `json:"session_id"`
	Phase          string            `json:"phase"`
	RevealedFields map[string]string `json:"revealed_fields"`
	CommitCount    int               `json:"commit_count"`
}

// VerifyRequest is the body of POST /session/{id}/verify.
type VerifyRequest struct {
	ExpectServerName string `json:"expect_server_name,omitempty"`
	MinSentBytes     int    `json:"min_sent_bytes,omitempty"`
	MinRecvBytes     int    `json:"min_recv_bytes,omitempty"`
}

// VerifyResponse is the result of proof verification and commitment
// binding for one session.
type VerifyResponse struct {
	SessionID      string            `json:"session_id"`
	Verified       bool              `json:"verified"`
	Errors         []string          `json:"errors,omitempty"`
	RevealedFields map[string]string `json:"revealed_fields"`
	BoundKeypaths  []string          `json:"bound_keypaths"`
	UnboundCommits int               `json:"unbound_commits"`
}

// HealthResponse reports basic liveness and load information.
type HealthResponse struct {
	Status           string `json:"status"`
	Uptime           string `json:"uptime"`
	ActiveSessions   int    `json:"active_sessions"`
	ConnectedClients int    `json:"connected_clients"`
}
