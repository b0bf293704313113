// Package tlsengine defines the boundary between the notary service and
// the MPC-TLS engine that actually runs the joint prover/verifier
// computation over a TLS session. The engine itself — garbled-circuit or
// STARK-based proof generation — is out of scope; this package exists so
// the rest of the service can be built and tested against a stable
// interface before a real engine is wired in.
package tlsengine

import (
	"context"
	"errors"
)

// ErrNotImplemented is returned by every method of the stub
// implementations in this package.
var ErrNotImplemented = errors.New("tlsengine: not implemented")

// SessionSpec describes the TLS session a prover is asked to notarize.
type SessionSpec struct {
	ServerName string
	Request    []byte
}

// SessionOutput is what a prover hands back once MPC-TLS execution
// completes: the transcript (plaintext where revealed, zeroed elsewhere)
// plus the opaque proof material the verifier needs.
type SessionOutput struct {
	Transcript []byte
	Proof      []byte
}

// Prover drives the prover side of an MPC-TLS session: it dials the
// target server jointly with a verifier and returns the resulting
// redacted transcript and proof.
type Prover interface {
	RunSession(ctx context.Context, spec SessionSpec) (SessionOutput, error)
}

// ProofVerifier checks the proof material a prover produced without
// seeing any plaintext the prover chose not to reveal.
type ProofVerifier interface {
	VerifyProof(ctx context.Context, output SessionOutput) error
}

// notImplementedProver is the stand-in Prover used until a real MPC-TLS
// engine is wired in.
type notImplementedProver struct{}

// NewNotImplementedProver returns a Prover whose RunSession always fails.
func NewNotImplementedProver() Prover {
	return notImplementedProver{}
}

func (notImplementedProver) RunSession(ctx context.Context, spec SessionSpec) (SessionOutput, error) {
	return SessionOutput{}, ErrNotImplemented
}

// notImplementedVerifier is the stand-in ProofVerifier used until a real
// proof system is wired in.
type notImplementedVerifier struct{}

// NewNotImplementedVerifier returns a ProofVerifier whose VerifyProof
// always fails.
func NewNotImplementedVerifier() ProofVerifier {
	return notImplementedVerifier{}
}

func (notImplementedVerifier) VerifyProof(ctx context.Context, output SessionOutput) error {
	return ErrNotImplemented
}
