// ABOUTME: Client for the hearthd socket used by the hearth CLI
// ABOUTME: Each call dials, sends one framed request and reads one framed response

package ipc

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"time"
)

// DefaultClientTimeout applies when the caller's context has no deadline.
const DefaultClientTimeout = 5 * time.Minute

// Client talks to a running hearthd.
type Client struct {
	socketPath    string
	timeout       time.Duration
	maxFrameBytes int
}

// NewClient returns a client for the daemon at socketPath.
func NewClient(socketPath string) *Client {
	return &Client{
		socketPath:    socketPath,
		timeout:       DefaultClientTimeout,
		maxFrameBytes: DefaultMaxFrameBytes,
	}
}

// SetTimeout changes the per-request timeout used when ctx has no deadline.
func (c *Client) SetTimeout(d time.Duration) {
	c.timeout = d
}

// Send performs one request/response exchange.
func (c *Client) Send(ctx context.Context, req Request) (*Response, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", c.socketPath)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", c.socketPath, err)
	}
	defer conn.Close()

	deadline, ok := ctx.Deadline()
	if !ok && c.timeout > 0 {
		deadline, ok = time.Now().Add(c.timeout), true
	}
	if ok {
		_ = conn.SetDeadline(deadline)
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}
	if err := WriteFrame(conn, payload); err != nil {
		return nil, err
	}

	data, err := ReadFrame(conn, c.maxFrameBytes)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	var resp Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	return &resp, nil
}

// Ping checks that the daemon answers.
func (c *Client) Ping(ctx context.Context) error {
	resp, err := c.Send(ctx, Request{Query: PingQuery})
	if err != nil {
		return err
	}
	if resp.Response != PongResponse {
		return fmt.Errorf("unexpected ping response %q", resp.Response)
	}
	return nil
}

// ListSessions returns the ids of every live session.
func (c *Client) ListSessions(ctx context.Context) ([]string, error) {
	resp, err := c.Send(ctx, Request{Query: ListSessionsQuery})
	if err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("daemon: %s", *resp.Error)
	}

	var ids []string
	if err := json.Unmarshal([]byte(resp.Response), &ids); err != nil {
		return nil, fmt.Errorf("decoding session list: %w", err)
	}
	return ids, nil
}

// Query sends query in sessionID, or in a new session when sessionID is
// empty. Application errors are reported in Response.Error, not as err.
func (c *Client) Query(ctx context.Context, query, sessionID string) (*Response, error) {
	req := Request{Query: query}
	if sessionID != "" {
		req.SessionID = stringPtr(sessionID)
	}
	return c.Send(ctx, req)
}
