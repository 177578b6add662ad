// Package store provides a SQLite-backed transcript of chat turns, keyed by
// session. Transcripts live exactly as long as their session: deleting or
// expiring a session purges its turns.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // register "sqlite" driver
)

// Turn is one answered chat request.
type Turn struct {
	// Mode is the request mode (qa, quiz, summary).
	Mode string
	// Question is the user's text, possibly empty for quiz and summary.
	Question string
	// Answer is the generated text.
	Answer string
	// CreatedAt is when the turn was persisted.
	CreatedAt time.Time
}

// TranscriptStore persists and retrieves chat turns keyed by session ID.
// Implementations must be safe for concurrent use.
type TranscriptStore interface {
	// Append persists a single turn for the given session.
	Append(ctx context.Context, sessionID string, turn Turn) error
	// Recent returns the most recent n turns for the session, ordered
	// oldest-first. If fewer than n turns exist, all are returned.
	Recent(ctx context.Context, sessionID string, n int) ([]Turn, error)
	// DeleteSession removes every turn of the session and reports how many
	// were removed.
	DeleteSession(ctx context.Context, sessionID string) (int64, error)
	// Close releases any resources held by the store.
	Close() error
}

// SQLiteStore is a TranscriptStore backed by a SQLite database.
type SQLiteStore struct {
	// db is the underlying database connection pool.
	db *sql.DB
}

// Open opens (or creates) a SQLiteStore at the given path and runs the schema
// migration. Use ":memory:" for an in-memory database.
func Open(path string) (*SQLiteStore, error) {
	// WAL mode improves concurrent read performance and is safe for single-host use.
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	// A single connection avoids SQLITE_BUSY under concurrent writes and keeps
	// an in-memory database alive for the life of the pool.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// migrate creates the schema if it does not already exist.
func (s *SQLiteStore) migrate() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS turns (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id   TEXT    NOT NULL,
    mode         TEXT    NOT NULL CHECK(mode IN ('qa','quiz','summary')),
    question     TEXT    NOT NULL,
    answer       TEXT    NOT NULL,
    created_at   INTEGER NOT NULL  -- Unix timestamp (seconds)
);
CREATE INDEX IF NOT EXISTS idx_turns_session_created
    ON turns (session_id, created_at);
`
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

// Append persists a single turn for the given session. A zero CreatedAt is
// set to the current time.
func (s *SQLiteStore) Append(ctx context.Context, sessionID string, turn Turn) error {
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now()
	}
	const q = `INSERT INTO turns (session_id, mode, question, answer, created_at) VALUES (?, ?, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, q, sessionID, turn.Mode, turn.Question, turn.Answer, turn.CreatedAt.Unix()); err != nil {
		return fmt.Errorf("store: append: %w", err)
	}
	return nil
}

// Recent returns the most recent n turns for the session, ordered
// oldest-first. Uses a subquery to select the tail then re-order it.
func (s *SQLiteStore) Recent(ctx context.Context, sessionID string, n int) ([]Turn, error) {
	const q = `
SELECT mode, question, answer, created_at FROM (
    SELECT id, mode, question, answer, created_at
    FROM   turns
    WHERE  session_id = ?
    ORDER  BY created_at DESC, id DESC
    LIMIT  ?
) ORDER BY created_at ASC, id ASC`

	rows, err := s.db.QueryContext(ctx, q, sessionID, n)
	if err != nil {
		return nil, fmt.Errorf("store: recent: %w", err)
	}
	defer rows.Close()

	var turns []Turn
	for rows.Next() {
		var t Turn
		var ts int64
		if err := rows.Scan(&t.Mode, &t.Question, &t.Answer, &ts); err != nil {
			return nil, fmt.Errorf("store: recent scan: %w", err)
		}
		t.CreatedAt = time.Unix(ts, 0)
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: recent rows: %w", err)
	}
	return turns, nil
}

// DeleteSession removes every turn of the session.
func (s *SQLiteStore) DeleteSession(ctx context.Context, sessionID string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM turns WHERE session_id = ?`, sessionID)
	if err != nil {
		return 0, fmt.Errorf("store: delete session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("store: delete session: %w", err)
	}
	return n, nil
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("store: ping: %w", err)
	}
	return nil
}

// Close releases the database connection pool.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("store: close: %w", err)
	}
	return nil
}
