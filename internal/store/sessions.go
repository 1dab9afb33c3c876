// ABOUTME: session.Store implementation backed by the sessions table
// ABOUTME: History is stored as a JSON document per session

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/2389/hearth/internal/session"
)

var _ session.Store = (*SQLiteStore)(nil)

// Get returns the session with id or session.ErrNotFound.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*session.Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, history, created_at, updated_at, expires_at
		FROM sessions
		WHERE id = ?
	`, id)

	sess, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, session.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying session: %w", err)
	}
	return sess, nil
}

// Create inserts an empty session. An existing row with the same id is kept
// and returned as is.
func (s *SQLiteStore) Create(ctx context.Context, id string) (*session.Session, error) {
	now := s.now().UTC()
	sess := session.New(id, now, s.ttl)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, history, created_at, updated_at, expires_at)
		VALUES (?, '[]', ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, id, formatTime(sess.CreatedAt), formatTime(sess.UpdatedAt), formatTime(sess.ExpiresAt))
	if err != nil {
		return nil, fmt.Errorf("inserting session: %w", err)
	}

	return s.Get(ctx, id)
}

// Save upserts the session including its history.
func (s *SQLiteStore) Save(ctx context.Context, sess *session.Session) error {
	history := sess.History
	if history == nil {
		history = []session.Turn{}
	}
	data, err := json.Marshal(history)
	if err != nil {
		return fmt.Errorf("encoding history: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, history, created_at, updated_at, expires_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			history = excluded.history,
			updated_at = excluded.updated_at,
			expires_at = excluded.expires_at
	`, sess.ID, string(data), formatTime(sess.CreatedAt), formatTime(sess.UpdatedAt), formatTime(sess.ExpiresAt))
	if err != nil {
		return fmt.Errorf("saving session: %w", err)
	}
	return nil
}

// List returns every session ordered by creation time.
func (s *SQLiteStore) List(ctx context.Context) ([]*session.Session, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, history, created_at, updated_at, expires_at
		FROM sessions
		ORDER BY created_at ASC, id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("querying sessions: %w", err)
	}
	defer rows.Close()

	var out []*session.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning session: %w", err)
		}
		out = append(out, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating sessions: %w", err)
	}
	return out, nil
}

// SweepExpired deletes sessions whose expiry is at or before now.
func (s *SQLiteStore) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= ?`, formatTime(now))
	if err != nil {
		return 0, fmt.Errorf("deleting expired sessions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("counting deleted sessions: %w", err)
	}
	return int(n), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*session.Session, error) {
	var (
		sess                            session.Session
		history                         string
		createdAt, updatedAt, expiresAt string
	)
	if err := row.Scan(&sess.ID, &history, &createdAt, &updatedAt, &expiresAt); err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(history), &sess.History); err != nil {
		return nil, fmt.Errorf("decoding history for %s: %w", sess.ID, err)
	}
	if len(sess.History) == 0 {
		sess.History = nil
	}

	var err error
	if sess.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if sess.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	if sess.UpdatedAt.IsZero() {
		sess.UpdatedAt = sess.CreatedAt
	}
	if sess.ExpiresAt, err = parseTime(expiresAt); err != nil {
		return nil, fmt.Errorf("parsing expires_at: %w", err)
	}
	return &sess, nil
}
