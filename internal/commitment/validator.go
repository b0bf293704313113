package commitment

import "fmt"

// NotarizationResult summarizes a completed notarization session in the
// terms a post-verification check can assert against. It deliberately
// mirrors only the fields a verifier can observe directly, not anything
// about the hidden plaintext itself.
type NotarizationResult struct {
	ServerName    string
	SentBytes     int
	RecvBytes     int
	HashAlgorithm string
	Bound         map[string]BoundCommitment
}

// Assertion checks one property of a NotarizationResult, returning a
// non-nil error describing the failure.
type Assertion func(NotarizationResult) error

// Validator runs a fixed set of assertions against a NotarizationResult.
type Validator struct {
	assertions []Assertion
}

// NewValidator returns an empty Validator; use ValidatorBuilder to
// construct one with assertions attached.
func NewValidator() *Validator {
	return &Validator{}
}

// Validate runs every configured assertion and returns all failures, not
// just the first, so a caller can report every problem with a session at
// once.
func (v *Validator) Validate(result NotarizationResult) []error {
	var errs []error
	for _, a := range v.assertions {
		if err := a(result); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

// ValidatorBuilder assembles a Validator from a fluent chain of
// assertions.
type ValidatorBuilder struct {
	v *Validator
}

// NewValidatorBuilder starts a new builder.
func NewValidatorBuilder() *ValidatorBuilder {
	return &ValidatorBuilder{v: NewValidator()}
}

// ExpectServerName requires the session's server name to match exactly.
func (b *ValidatorBuilder) ExpectServerName(name string) *ValidatorBuilder {
	b.v.assertions = append(b.v.assertions, func(r NotarizationResult) error {
		if r.ServerName != name {
			return fmt.Errorf("commitment: server name = %q, want %q", r.ServerName, name)
		}
		return nil
	})
	return b
}

// MinSentBytes requires at least n bytes to have been sent over the
// notarized connection.
func (b *ValidatorBuilder) MinSentBytes(n int) *ValidatorBuilder {
	b.v.assertions = append(b.v.assertions, func(r NotarizationResult) error {
		if r.SentBytes < n {
			return fmt.Errorf("commitment: sent %d bytes, want at least %d", r.SentBytes, n)
		}
		return nil
	})
	return b
}

// MinRecvBytes requires at least n bytes to have been received over the
// notarized connection.
func (b *ValidatorBuilder) MinRecvBytes(n int) *ValidatorBuilder {
	b.v.assertions = append(b.v.assertions, func(r NotarizationResult) error {
		if r.RecvBytes < n {
			return fmt.Errorf("commitment: received %d bytes, want at least %d", r.RecvBytes, n)
		}
		return nil
	})
	return b
}

// RequireHashAlgorithm requires the session to have used the given
// commitment hash algorithm, preventing a downgrade to a weaker one.
func (b *ValidatorBuilder) RequireHashAlgorithm(alg string) *ValidatorBuilder {
	b.v.assertions = append(b.v.assertions, func(r NotarizationResult) error {
		if r.HashAlgorithm != alg {
			return fmt.Errorf("commitment: hash algorithm = %q, want %q", r.HashAlgorithm, alg)
		}
		return nil
	})
	return b
}

// RequireKeypathBound requires that the given keypath was successfully
// bound to a transcript commitment during verification.
func (b *ValidatorBuilder) RequireKeypathBound(keypath string) *ValidatorBuilder {
	b.v.assertions = append(b.v.assertions, func(r NotarizationResult) error {
		if _, ok := r.Bound[keypath]; !ok {
			return fmt.Errorf("commitment: keypath %q has no bound commitment", keypath)
		}
		return nil
	})
	return b
}

// Build returns the assembled Validator.
func (b *ValidatorBuilder) Build() *Validator {
	return b.v
}
