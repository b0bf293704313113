// Package store provides data persistence using SQLite.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by GetSession and GetVerificationResult when no
// row matches the given ID.
var ErrNotFound = errors.New("store: not found")

// Session represents one notarization session, from request through
// either a completed verification or an abandoned/failed attempt.
type Session struct {
	ID             string
	ServerName     string
	Phase          string // 'notarizing', 'verifying', 'verified', 'failed'
	RequestSummary string // method + path, for display; never the full body
	CreatedAt      time.Time
	CompletedAt    *time.Time
	FailureReason  *string
	ExpiresAt      *time.Time
}

// VerificationResult is the outcome of verifying a completed notarization
// session: the observable facts about the session plus which keypaths
// were successfully bound to a transcript commitment.
type VerificationResult struct {
	SessionID      string
	ServerName     string
	SentBytes      int
	RecvBytes      int
	HashAlgorithm  string
	RevealedFields map[string]string // keypath -> revealed plaintext
	BoundKeypaths  []string
	UnboundCommits int
	Verified       bool
	VerifiedAt     time.Time
	CreatedAt      time.Time
}

// SessionFilter defines filter criteria for session queries.
type SessionFilter struct {
	ServerName *string
	Phase      *string
	StartTime  *time.Time
	EndTime    *time.Time
	Limit      int
	Offset     int
}

// Store defines the interface for data persistence.
// This follows the Dependency Inversion Principle - depend on abstractions.
type Store interface {
	// Sessions
	SaveSession(ctx context.Context, session *Session) error
	UpdateSessionPhase(ctx context.Context, id, phase string, failureReason *string) error
	GetSession(ctx context.Context, id string) (*Session, error)
	ListSessions(ctx context.Context, filter SessionFilter) ([]*Session, error)
	DeleteSession(ctx context.Context, id string) error

	// Verification results
	SaveVerificationResult(ctx context.Context, result *VerificationResult) error
	GetVerificationResult(ctx context.Context, sessionID string) (*VerificationResult, error)

	// Maintenance
	RunRetention(ctx context.Context) (deleted int64, err error)
	Close() error

	// DB returns the underlying database connection, for callers that need
	// to run ad-hoc diagnostic queries.
	DB() interface{}
}
