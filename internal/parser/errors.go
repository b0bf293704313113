package parser

import "fmt"

// Kind classifies a parse-time failure, following the error taxonomy
// carried over from the grammar this parser pair was distilled from.
type Kind int

const (
	// InvalidSyntax means the lexical grammar itself did not match —
	// this is a statement about the input, not about this code.
	InvalidSyntax Kind = iota
	// MissingField means the grammar matched but a traverser expected a
	// sub-node that was absent. This indicates grammar/traverser drift,
	// a bug in this package, not bad input.
	MissingField
	// UnexpectedRule means a traverser was invoked against a subtree
	// shaped for a different traverser.
	UnexpectedRule
	// InvalidHeader means a header line matched the general line grammar
	// but failed header-specific structure (e.g. no colon).
	InvalidHeader
	// InvalidValue means a JSON value token failed to match any of
	// string/number/bool/null/object/array.
	InvalidValue
)

func (k Kind) String() string {
	switch k {
	case InvalidSyntax:
		return "InvalidSyntax"
	case MissingField:
		return "MissingField"
	case UnexpectedRule:
		return "UnexpectedRule"
	case InvalidHeader:
		return "InvalidHeader"
	case InvalidValue:
		return "InvalidValue"
	default:
		return "Unknown"
	}
}

// Error is a typed parse failure.
type Error struct {
	Kind   Kind
	Detail string
	Offset int // byte offset where the failure was detected, -1 if n/a
}

func (e *Error) Error() string {
	if e.Offset >= 0 {
		return fmt.Sprintf("%s at offset %d: %s", e.Kind, e.Offset, e.Detail)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

// Is supports errors.Is(err, &Error{Kind: X}) style comparisons against Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func newSyntaxErr(offset int, detail string, args ...interface{}) *Error {
	return &Error{Kind: InvalidSyntax, Offset: offset, Detail: fmt.Sprintf(detail, args...)}
}

func newMissingField(name string) *Error {
	return &Error{Kind: MissingField, Offset: -1, Detail: fmt.Sprintf("missing field %q", name)}
}

func newUnexpectedRule(detail string) *Error {
	return &Error{Kind: UnexpectedRule, Offset: -1, Detail: detail}
}

func newInvalidHeader(offset int, detail string) *Error {
	return &Error{Kind: InvalidHeader, Offset: offset, Detail: detail}
}

func newInvalidValue(offset int, detail string) *Error {
	return &Error{Kind: InvalidValue, Offset: offset, Detail: detail}
}

// NewSyntaxError constructs an InvalidSyntax error. Exported for use by the
// standard and redacted subpackages, which build on this package's lexer.
func NewSyntaxError(offset int, detail string, args ...interface{}) *Error {
	return newSyntaxErr(offset, detail, args...)
}

// NewMissingField constructs a MissingField error.
func NewMissingField(name string) *Error { return newMissingField(name) }

// NewUnexpectedRule constructs an UnexpectedRule error.
func NewUnexpectedRule(detail string) *Error { return newUnexpectedRule(detail) }

// NewInvalidHeader constructs an InvalidHeader error.
func NewInvalidHeader(offset int, detail string) *Error { return newInvalidHeader(offset, detail) }

// NewInvalidValue constructs an InvalidValue error.
func NewInvalidValue(offset int, detail string) *Error { return newInvalidValue(offset, detail) }
