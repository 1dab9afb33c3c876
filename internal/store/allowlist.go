// ABOUTME: Durable always-allow decisions for (server, tool) pairs
// ABOUTME: Deny decisions are never stored

package store

import (
	"context"
	"database/sql"
	"fmt"
)

// IsAlwaysAllowed reports whether (server, tool) was permanently allowed.
func (s *SQLiteStore) IsAlwaysAllowed(ctx context.Context, server, tool string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM always_allow WHERE server = ? AND tool = ?`, server, tool,
	).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("querying always_allow: %w", err)
	}
	return true, nil
}

// AddAlwaysAllow records (server, tool) as permanently allowed. Adding an
// existing pair is a no-op.
func (s *SQLiteStore) AddAlwaysAllow(ctx context.Context, server, tool string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO always_allow (server, tool, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT(server, tool) DO NOTHING
	`, server, tool, formatTime(s.now()))
	if err != nil {
		return fmt.Errorf("inserting always_allow: %w", err)
	}
	return nil
}

// ListAlwaysAllowed returns every stored pair as "server/tool", sorted.
func (s *SQLiteStore) ListAlwaysAllowed(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT server, tool FROM always_allow ORDER BY server, tool`)
	if err != nil {
		return nil, fmt.Errorf("querying always_allow: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var server, tool string
		if err := rows.Scan(&server, &tool); err != nil {
			return nil, fmt.Errorf("scanning always_allow: %w", err)
		}
		out = append(out, server+"/"+tool)
	}
	return out, rows.Err()
}
