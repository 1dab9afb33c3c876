// ABOUTME: Client-side host that connects to capability servers over the MCP go-sdk
// ABOUTME: Caches tool and resource lists and routes tool calls to the owning server

package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"sort"
	"strings"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"golang.org/x/sync/errgroup"

	"github.com/2389/hearth/internal/bridge"
)

// clientName is how hearth identifies itself to capability servers.
const clientName = "hearth"

// Host manages one client session per configured capability server. It is
// safe for concurrent use.
type Host struct {
	logger       *slog.Logger
	version      string
	newTransport func(ServerConfig) (mcp.Transport, error)

	mu      sync.RWMutex
	servers map[string]*serverConn
	order   []string
}

// serverConn is the connection state and capability cache for one server.
type serverConn struct {
	mu        sync.Mutex
	config    ServerConfig
	session   *mcp.ClientSession
	tools     []*mcp.Tool
	resources []*mcp.Resource
}

// HostOption configures a Host.
type HostOption func(*Host)

// WithTransportFactory overrides how transports are built for a server.
func WithTransportFactory(f func(ServerConfig) (mcp.Transport, error)) HostOption {
	return func(h *Host) { h.newTransport = f }
}

// WithVersion sets the client version reported to servers.
func WithVersion(v string) HostOption {
	return func(h *Host) { h.version = v }
}

// NewHost creates a host for servers without connecting.
func NewHost(servers []ServerConfig, logger *slog.Logger, opts ...HostOption) *Host {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Host{
		logger:       logger.With("component", "mcp"),
		version:      "dev",
		newTransport: buildTransport,
		servers:      make(map[string]*serverConn, len(servers)),
	}
	for _, opt := range opts {
		opt(h)
	}
	for _, srv := range servers {
		h.servers[srv.Name] = &serverConn{config: srv}
		h.order = append(h.order, srv.Name)
	}
	sort.Strings(h.order)
	return h
}

// Connect dials every server concurrently and caches their capabilities.
// A server that fails to connect is logged and left disconnected; the
// returned error only reports ctx cancellation.
func (h *Host) Connect(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, conn := range h.conns() {
		g.Go(func() error {
			if err := h.connect(gctx, conn); err != nil {
				h.logger.Warn("capability server unavailable", "server", conn.config.Name, "error", err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// Tools returns every cached tool qualified as "server/tool", sorted by name.
func (h *Host) Tools() []bridge.Tool {
	var out []bridge.Tool
	for _, conn := range h.conns() {
		conn.mu.Lock()
		for _, t := range conn.tools {
			out = append(out, bridge.Tool{
				Name:        conn.config.Name + "/" + t.Name,
				Description: t.Description,
				Parameters:  schemaMap(t.InputSchema),
			})
		}
		conn.mu.Unlock()
	}
	bridge.SortTools(out)
	return out
}

// Resources returns every cached resource, sorted by server then name.
func (h *Host) Resources() []bridge.Resource {
	var out []bridge.Resource
	for _, conn := range h.conns() {
		conn.mu.Lock()
		for _, r := range conn.resources {
			out = append(out, bridge.Resource{
				Name:        conn.config.Name + "/" + r.Name,
				Description: r.Description,
				URI:         r.URI,
			})
		}
		conn.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// AutoExecute returns the configured auto-execute tools per server.
func (h *Host) AutoExecute() map[string][]string {
	out := make(map[string][]string)
	for _, conn := range h.conns() {
		if len(conn.config.AutoExecute) > 0 {
			out[conn.config.Name] = append([]string(nil), conn.config.AutoExecute...)
		}
	}
	return out
}

// Status describes each server's connection state.
func (h *Host) Status() map[string]string {
	out := make(map[string]string)
	for _, conn := range h.conns() {
		conn.mu.Lock()
		if conn.session != nil {
			out[conn.config.Name] = fmt.Sprintf("connected (%d tools, %d resources)", len(conn.tools), len(conn.resources))
		} else {
			out[conn.config.Name] = "disconnected"
		}
		conn.mu.Unlock()
	}
	return out
}

// CallTool runs tool on server. It reconnects once if the call fails at the
// transport level. The returned bool is the tool's own error flag; a non-nil
// error means the call never produced a result.
func (h *Host) CallTool(ctx context.Context, server, tool string, args map[string]any) (string, bool, error) {
	h.mu.RLock()
	conn, ok := h.servers[server]
	h.mu.RUnlock()
	if !ok {
		return "", false, fmt.Errorf("capability server %q not found", server)
	}

	result, err := conn.callTool(ctx, tool, args)
	if err != nil {
		h.logger.Warn("tool call failed, reconnecting", "server", server, "tool", tool, "error", err)
		conn.mu.Lock()
		conn.disconnect()
		conn.mu.Unlock()

		if reconnErr := h.connect(ctx, conn); reconnErr != nil {
			return "", false, fmt.Errorf("call tool %q on %q (reconnect failed: %v): %w", tool, server, reconnErr, err)
		}
		result, err = conn.callTool(ctx, tool, args)
		if err != nil {
			return "", false, fmt.Errorf("call tool %q on %q: %w", tool, server, err)
		}
	}

	return extractContent(result), result.IsError, nil
}

// Close disconnects every server.
func (h *Host) Close() error {
	for _, conn := range h.conns() {
		conn.mu.Lock()
		conn.disconnect()
		conn.mu.Unlock()
	}
	return nil
}

func (h *Host) conns() []*serverConn {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*serverConn, 0, len(h.order))
	for _, name := range h.order {
		out = append(out, h.servers[name])
	}
	return out
}

// connect is a no-op for servers that already have a session.
func (h *Host) connect(ctx context.Context, conn *serverConn) error {
	conn.mu.Lock()
	defer conn.mu.Unlock()

	if conn.session != nil {
		return nil
	}

	transport, err := h.newTransport(conn.config)
	if err != nil {
		return err
	}

	client := mcp.NewClient(&mcp.Implementation{Name: clientName, Version: h.version}, nil)
	session, err := client.Connect(ctx, transport, nil)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	conn.session = session

	tools, err := session.ListTools(ctx, nil)
	if err != nil {
		h.logger.Warn("listing tools", "server", conn.config.Name, "error", err)
		conn.tools = nil
	} else {
		conn.tools = tools.Tools
	}

	// Servers without the resources capability reject the request.
	resources, err := session.ListResources(ctx, nil)
	if err != nil {
		h.logger.Debug("listing resources", "server", conn.config.Name, "error", err)
		conn.resources = nil
	} else {
		conn.resources = resources.Resources
	}

	h.logger.Info("capability server connected",
		"server", conn.config.Name,
		"tools", len(conn.tools),
		"resources", len(conn.resources),
	)
	return nil
}

// disconnect must be called with conn.mu held.
func (conn *serverConn) disconnect() {
	if conn.session != nil {
		_ = conn.session.Close()
		conn.session = nil
	}
	conn.tools = nil
	conn.resources = nil
}

func (conn *serverConn) callTool(ctx context.Context, tool string, args map[string]any) (*mcp.CallToolResult, error) {
	conn.mu.Lock()
	session := conn.session
	conn.mu.Unlock()

	if session == nil {
		return nil, fmt.Errorf("not connected")
	}

	return session.CallTool(ctx, &mcp.CallToolParams{
		Name:      tool,
		Arguments: args,
	})
}

func buildTransport(cfg ServerConfig) (mcp.Transport, error) {
	switch cfg.EffectiveTransport() {
	case TransportStdio:
		if len(cfg.Command) == 0 {
			return nil, fmt.Errorf("stdio transport requires command")
		}
		argv := append(append([]string(nil), cfg.Command[1:]...), cfg.Args...)
		cmd := exec.Command(cfg.Command[0], argv...)
		if len(cfg.Env) > 0 {
			cmd.Env = os.Environ()
			for k, v := range cfg.Env {
				cmd.Env = append(cmd.Env, k+"="+v)
			}
		}
		return &mcp.CommandTransport{Command: cmd}, nil

	case TransportHTTP:
		return &mcp.StreamableClientTransport{Endpoint: cfg.URL, HTTPClient: httpClient(cfg.Headers)}, nil

	case TransportSSE:
		return &mcp.SSEClientTransport{Endpoint: cfg.URL, HTTPClient: httpClient(cfg.Headers)}, nil

	default:
		return nil, fmt.Errorf("unknown transport type: %q", cfg.Transport)
	}
}

func httpClient(headers map[string]string) *http.Client {
	if len(headers) == 0 {
		return nil
	}
	return &http.Client{Transport: &headerRoundTripper{base: http.DefaultTransport, headers: headers}}
}

// headerRoundTripper injects fixed headers into every request.
type headerRoundTripper struct {
	base    http.RoundTripper
	headers map[string]string
}

func (t *headerRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	r := req.Clone(req.Context())
	for k, v := range t.headers {
		r.Header.Set(k, v)
	}
	return t.base.RoundTrip(r)
}

// extractContent joins the text parts of a tool result.
func extractContent(result *mcp.CallToolResult) string {
	if result == nil {
		return ""
	}
	var parts []string
	for _, c := range result.Content {
		if tc, ok := c.(*mcp.TextContent); ok {
			parts = append(parts, tc.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// schemaMap normalizes a tool input schema to a JSON object. Schemas that
// are absent or not objects yield nil so the bridge applies its default.
func schemaMap(schema any) map[string]any {
	switch s := schema.(type) {
	case nil:
		return nil
	case map[string]any:
		return s
	default:
		data, err := json.Marshal(s)
		if err != nil {
			return nil
		}
		var m map[string]any
		if err := json.Unmarshal(data, &m); err != nil {
			return nil
		}
		return m
	}
}
