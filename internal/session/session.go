// ABOUTME: Session model and Store interface shared by the daemon components
// ABOUTME: Sessions hold conversation history and an absolute expiry

package session

import (
	"context"
	"errors"
	"time"

	"github.com/2389/hearth/internal/bridge"
)

// DefaultTTL is how long a session lives after its last access.
const DefaultTTL = 24 * time.Hour

// ErrNotFound is returned when a session does not exist.
var ErrNotFound = errors.New("session not found")

// Role identifies who produced a turn.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
	RoleTool  Role = "tool"
)

// ToolResult is the outcome of one executed (or refused) function call.
type ToolResult struct {
	CallID  string `json:"call_id,omitempty"`
	Name    string `json:"name"`
	Output  string `json:"output"`
	IsError bool   `json:"is_error,omitempty"`
}

// Turn is one entry in a session's conversation history.
type Turn struct {
	Role    Role                  `json:"role"`
	Text    string                `json:"text,omitempty"`
	Calls   []bridge.FunctionCall `json:"calls,omitempty"`
	Results []ToolResult          `json:"results,omitempty"`
}

// Session is a conversation addressed by an opaque id.
type Session struct {
	ID        string    `json:"id"`
	History   []Turn    `json:"history"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// New returns an empty session created at now and expiring after ttl.
func New(id string, now time.Time, ttl time.Duration) *Session {
	return &Session{
		ID:        id,
		CreatedAt: now,
		UpdatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
}

// Touch refreshes the session's expiry to now+ttl.
func (s *Session) Touch(now time.Time, ttl time.Duration) {
	s.UpdatedAt = now
	s.ExpiresAt = now.Add(ttl)
}

// Expired reports whether the session's expiry is at or before now.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}

// Append adds turns to the history.
func (s *Session) Append(turns ...Turn) {
	s.History = append(s.History, turns...)
}

// Clone returns a deep copy so callers never share history backing arrays.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	if s.History != nil {
		c.History = make([]Turn, len(s.History))
		for i, t := range s.History {
			c.History[i] = t.clone()
		}
	}
	return &c
}

func (t Turn) clone() Turn {
	c := t
	if t.Calls != nil {
		c.Calls = make([]bridge.FunctionCall, len(t.Calls))
		for i, call := range t.Calls {
			c.Calls[i] = call
			if call.Arguments != nil {
				c.Calls[i].Arguments = append([]byte(nil), call.Arguments...)
			}
		}
	}
	if t.Results != nil {
		c.Results = append([]ToolResult(nil), t.Results...)
	}
	return c
}

// Store persists sessions. Implementations must be safe for concurrent use,
// and returned sessions must be copies owned by the caller.
type Store interface {
	// Get returns the session with id, or ErrNotFound.
	Get(ctx context.Context, id string) (*Session, error)
	// Create inserts a new empty session with id, expiring after the store's TTL.
	Create(ctx context.Context, id string) (*Session, error)
	// Save upserts sess.
	Save(ctx context.Context, sess *Session) error
	// List returns a snapshot of every stored session.
	List(ctx context.Context) ([]*Session, error)
	// SweepExpired deletes every session whose expiry is at or before now and
	// returns how many were removed.
	SweepExpired(ctx context.Context, now time.Time) (int, error)
	Close() error
}

// GetOrCreate fetches id from st, creating it when it does not exist yet.
func GetOrCreate(ctx context.Context, st Store, id string) (*Session, error) {
	sess, err := st.Get(ctx, id)
	if err == nil {
		return sess, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	return st.Create(ctx, id)
}
