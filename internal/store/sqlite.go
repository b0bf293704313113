package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/tlsnotary/notaryd/internal/config"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db        *sql.DB
	retention *config.RetentionConfig
}

// NewSQLiteStore creates a new SQLite store.
func NewSQLiteStore(dbPath string, retention *config.RetentionConfig) (*SQLiteStore, error) {
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	// Session and verification-result rows can carry revealed plaintext
	// fragments of a notarized transcript; keep the file itself private.
	if err := setSecureFilePermissions(dbPath); err != nil {
		_ = err // best effort, e.g. unsupported on Windows
	}

	db.SetMaxOpenConns(1) // SQLite is single-writer
	db.SetMaxIdleConns(1)

	store := &SQLiteStore{
		db:        db,
		retention: retention,
	}

	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return store, nil
}

// setSecureFilePermissions sets restrictive permissions on the database file.
func setSecureFilePermissions(path string) error {
	if runtime.GOOS == "windows" {
		return nil
	}

	if err := os.Chmod(path, 0600); err != nil {
		return fmt.Errorf("setting permissions on %s: %w", path, err)
	}

	walPath := path + "-wal"
	shmPath := path + "-shm"
	os.Chmod(walPath, 0600) // Ignore errors - files may not exist yet
	os.Chmod(shmPath, 0600)

	return nil
}

// migrate runs database migrations.
func (s *SQLiteStore) migrate() error {
	var version int
	err := s.db.QueryRow("SELECT version FROM schema_version WHERE id = 1").Scan(&version)
	if err != nil {
		if _, err := s.db.Exec(`
			CREATE TABLE IF NOT EXISTS schema_version (
				id INTEGER PRIMARY KEY CHECK (id = 1),
				version INTEGER NOT NULL,
				applied_at TEXT NOT NULL DEFAULT (datetime('now')),
				lock_holder TEXT
			);
			INSERT OR IGNORE INTO schema_version (id, version) VALUES (1, 0);
		`); err != nil {
			return fmt.Errorf("creating schema_version: %w", err)
		}
		version = 0
	}

	migrations := []string{
		migrationV1,
	}

	for i := version; i < len(migrations); i++ {
		if _, err := s.db.Exec(migrations[i]); err != nil {
			return fmt.Errorf("running migration %d: %w", i+1, err)
		}
		if _, err := s.db.Exec("UPDATE schema_version SET version = ?, applied_at = datetime('now') WHERE id = 1", i+1); err != nil {
			return fmt.Errorf("updating version to %d: %w", i+1, err)
		}
	}

	return nil
}

const migrationV1 = `
-- Sessions table
CREATE TABLE IF NOT EXISTS sessions (
	id TEXT PRIMARY KEY,
	server_name TEXT NOT NULL,
	phase TEXT NOT NULL DEFAULT 'notarizing' CHECK (phase IN ('notarizing', 'verifying', 'verified', 'failed')),
	request_summary TEXT NOT NULL,
	created_at TEXT NOT NULL DEFAULT (datetime('now')),
	completed_at TEXT,
	failure_reason TEXT,
	expires_at TEXT
);

-- Verification results table
CREATE TABLE IF NOT EXISTS verification_results (
	session_id TEXT PRIMARY KEY REFERENCES sessions(id) ON DELETE CASCADE,
	server_name TEXT NOT NULL,
	sent_bytes INTEGER NOT NULL DEFAULT 0,
	recv_bytes INTEGER NOT NULL DEFAULT 0,
	hash_algorithm TEXT NOT NULL,
	revealed_fields TEXT,
	bound_keypaths TEXT,
	unbound_commits INTEGER NOT NULL DEFAULT 0,
	verified INTEGER NOT NULL DEFAULT 0,
	verified_at TEXT,
	created_at TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_sessions_created ON sessions(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_sessions_server_created ON sessions(server_name, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_sessions_phase ON sessions(phase);
CREATE INDEX IF NOT EXISTS idx_sessions_expires ON sessions(expires_at) WHERE expires_at IS NOT NULL;
`

// SaveSession inserts a new session.
func (s *SQLiteStore) SaveSession(ctx context.Context, session *Session) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, server_name, phase, request_summary, expires_at)
		VALUES (?, ?, ?, ?, ?)
	`,
		session.ID, session.ServerName, session.Phase, session.RequestSummary,
		formatNullableTime(session.ExpiresAt),
	)
	return err
}

// UpdateSessionPhase transitions a session to a new phase, recording the
// completion time and, for a failed session, the reason.
func (s *SQLiteStore) UpdateSessionPhase(ctx context.Context, id, phase string, failureReason *string) error {
	var completedAt interface{}
	if phase == "verified" || phase == "failed" {
		completedAt = time.Now().Format(time.RFC3339Nano)
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET phase = ?, completed_at = COALESCE(?, completed_at), failure_reason = ?
		WHERE id = ?
	`, phase, completedAt, failureReason, id)
	return err
}

// GetSession retrieves a session by ID.
func (s *SQLiteStore) GetSession(ctx context.Context, id string) (*Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, server_name, phase, request_summary, created_at, completed_at, failure_reason, expires_at
		FROM sessions WHERE id = ?
	`, id)
	return scanSession(row)
}

// ListSessions returns sessions matching the filter.
func (s *SQLiteStore) ListSessions(ctx context.Context, filter SessionFilter) ([]*Session, error) {
	query := strings.Builder{}
	query.WriteString(`
		SELECT id, server_name, phase, request_summary, created_at, completed_at, failure_reason, expires_at
		FROM sessions WHERE 1=1
	`)

	args := []interface{}{}

	if filter.ServerName != nil {
		query.WriteString(" AND server_name = ?")
		args = append(args, *filter.ServerName)
	}
	if filter.Phase != nil {
		query.WriteString(" AND phase = ?")
		args = append(args, *filter.Phase)
	}
	if filter.StartTime != nil {
		query.WriteString(" AND created_at >= ?")
		args = append(args, filter.StartTime.Format(time.RFC3339Nano))
	}
	if filter.EndTime != nil {
		query.WriteString(" AND created_at <= ?")
		args = append(args, filter.EndTime.Format(time.RFC3339Nano))
	}

	query.WriteString(" ORDER BY created_at DESC")

	if filter.Limit > 0 {
		query.WriteString(" LIMIT ?")
		args = append(args, filter.Limit)
	}
	if filter.Offset > 0 {
		query.WriteString(" OFFSET ?")
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		session, err := scanSessionRows(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}

// DeleteSession removes a session and its verification result.
func (s *SQLiteStore) DeleteSession(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM sessions WHERE id = ?", id)
	return err
}

// SaveVerificationResult inserts or replaces the verification result for a session.
func (s *SQLiteStore) SaveVerificationResult(ctx context.Context, result *VerificationResult) error {
	revealed, _ := json.Marshal(result.RevealedFields)
	bound, _ := json.Marshal(result.BoundKeypaths)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO verification_results (
			session_id, server_name, sent_bytes, recv_bytes, hash_algorithm,
			revealed_fields, bound_keypaths, unbound_commits, verified, verified_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			sent_bytes = excluded.sent_bytes, recv_bytes = excluded.recv_bytes,
			hash_algorithm = excluded.hash_algorithm, revealed_fields = excluded.revealed_fields,
			bound_keypaths = excluded.bound_keypaths, unbound_commits = excluded.unbound_commits,
			verified = excluded.verified, verified_at = excluded.verified_at
	`,
		result.SessionID, result.ServerName, result.SentBytes, result.RecvBytes, result.HashAlgorithm,
		string(revealed), string(bound), result.UnboundCommits, result.Verified,
		result.VerifiedAt.Format(time.RFC3339Nano),
	)
	return err
}

// GetVerificationResult retrieves the verification result for a session.
func (s *SQLiteStore) GetVerificationResult(ctx context.Context, sessionID string) (*VerificationResult, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT session_id, server_name, sent_bytes, recv_bytes, hash_algorithm,
			revealed_fields, bound_keypaths, unbound_commits, verified, verified_at, created_at
		FROM verification_results WHERE session_id = ?
	`, sessionID)

	var r VerificationResult
	var revealed, bound sql.NullString
	var verifiedAt, createdAt string
	if err := row.Scan(
		&r.SessionID, &r.ServerName, &r.SentBytes, &r.RecvBytes, &r.HashAlgorithm,
		&revealed, &bound, &r.UnboundCommits, &r.Verified, &verifiedAt, &createdAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	if revealed.Valid {
		json.Unmarshal([]byte(revealed.String), &r.RevealedFields)
	}
	if bound.Valid {
		json.Unmarshal([]byte(bound.String), &r.BoundKeypaths)
	}
	r.VerifiedAt, _ = time.Parse(time.RFC3339Nano, verifiedAt)
	r.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)

	return &r, nil
}

// RunRetention deletes sessions (and cascaded verification results) past
// their expiry.
func (s *SQLiteStore) RunRetention(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM sessions WHERE expires_at IS NOT NULL AND expires_at < ?", time.Now().Format(time.RFC3339Nano))
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// DB returns the underlying database connection.
func (s *SQLiteStore) DB() interface{} {
	return s.db
}

func scanSession(row *sql.Row) (*Session, error) {
	var s Session
	var createdAt string
	var completedAt, failureReason, expiresAt sql.NullString

	if err := row.Scan(&s.ID, &s.ServerName, &s.Phase, &s.RequestSummary, &createdAt, &completedAt, &failureReason, &expiresAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	s.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	if completedAt.Valid {
		t, _ := time.Parse(time.RFC3339Nano, completedAt.String)
		s.CompletedAt = &t
	}
	if failureReason.Valid {
		s.FailureReason = &failureReason.String
	}
	if expiresAt.Valid {
		t, _ := time.Parse(time.RFC3339Nano, expiresAt.String)
		s.ExpiresAt = &t
	}
	return &s, nil
}

func scanSessionRows(rows *sql.Rows) (*Session, error) {
	var s Session
	var createdAt string
	var completedAt, failureReason, expiresAt sql.NullString

	if err := rows.Scan(&s.ID, &s.ServerName, &s.Phase, &s.RequestSummary, &createdAt, &completedAt, &failureReason, &expiresAt); err != nil {
		return nil, err
	}
	s.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	if completedAt.Valid {
		t, _ := time.Parse(time.RFC3339Nano, completedAt.String)
		s.CompletedAt = &t
	}
	if failureReason.Valid {
		s.FailureReason = &failureReason.String
	}
	if expiresAt.Valid {
		t, _ := time.Parse(time.RFC3339Nano, expiresAt.String)
		s.ExpiresAt = &t
	}
	return &s, nil
}

func formatNullableTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.Format(time.RFC3339Nano)
}
