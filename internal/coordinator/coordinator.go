// ABOUTME: Query coordinator drives the model/tool loop for one query against a session
// ABOUTME: Every tool call passes the authorization gate before it reaches a capability server

package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/2389/hearth/internal/authz"
	"github.com/2389/hearth/internal/bridge"
	"github.com/2389/hearth/internal/model"
	"github.com/2389/hearth/internal/session"
)

// DefaultMaxToolRounds bounds model calls per query when Options leaves it unset.
const DefaultMaxToolRounds = 8

// ErrMaxRounds is returned when the model keeps requesting tools past the
// configured number of rounds.
var ErrMaxRounds = errors.New("exceeded maximum tool rounds")

// Capabilities defines what the coordinator needs from the capability host
type Capabilities interface {
	Tools() []bridge.Tool
	Resources() []bridge.Resource
	CallTool(ctx context.Context, server, tool string, args map[string]any) (output string, isError bool, err error)
}

// Authorizer defines what the coordinator needs from the authorization gate
type Authorizer interface {
	Check(ctx context.Context, call bridge.FunctionCall) (authz.Target, error)
}

// Options tunes the coordinator.
type Options struct {
	SystemPrompt  string
	MaxToolRounds int
	// LegacyTextCalls enables parsing fenced JSON blocks as function calls
	// when the model returns none in structured form.
	LegacyTextCalls bool
}

// Coordinator answers queries using the model and the capability servers.
type Coordinator struct {
	model  model.Client
	caps   Capabilities
	gate   Authorizer
	opts   Options
	logger *slog.Logger
}

// New creates a coordinator.
func New(client model.Client, caps Capabilities, gate Authorizer, opts Options, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.MaxToolRounds <= 0 {
		opts.MaxToolRounds = DefaultMaxToolRounds
	}
	return &Coordinator{
		model:  client,
		caps:   caps,
		gate:   gate,
		opts:   opts,
		logger: logger.With("component", "coordinator"),
	}
}

// Process answers query in the context of sess and returns the final model
// text. The session's history is extended in place, including on error, so
// the caller can persist whatever progress was made.
func (c *Coordinator) Process(ctx context.Context, sess *session.Session, query string) (string, error) {
	sess.Append(session.Turn{Role: session.RoleUser, Text: query})

	tools := c.caps.Tools()
	req := model.Request{
		Instructions: c.instructions(tools, c.caps.Resources()),
		Functions:    bridge.ToFunctionDefs(tools),
	}

	for round := 1; round <= c.opts.MaxToolRounds; round++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		req.History = sess.History
		reply, err := c.model.Generate(ctx, req)
		if err != nil {
			return "", fmt.Errorf("generating reply: %w", err)
		}

		calls := reply.Calls
		if len(calls) == 0 && c.opts.LegacyTextCalls {
			calls = bridge.ParseFunctionCallsFromText(reply.Text)
		}
		sess.Append(session.Turn{Role: session.RoleModel, Text: reply.Text, Calls: calls})

		if len(calls) == 0 {
			c.logger.Debug("query answered", "session_id", sess.ID, "rounds", round)
			return reply.Text, nil
		}

		results := make([]session.ToolResult, 0, len(calls))
		for _, call := range calls {
			results = append(results, c.execute(ctx, call))
		}
		sess.Append(session.Turn{Role: session.RoleTool, Results: results})
	}

	return "", fmt.Errorf("%w (%d)", ErrMaxRounds, c.opts.MaxToolRounds)
}

func (c *Coordinator) instructions(tools []bridge.Tool, resources []bridge.Resource) string {
	if len(tools) == 0 && len(resources) == 0 {
		return c.opts.SystemPrompt
	}
	// The addendum opens with its own blank-line separator.
	addendum := bridge.SystemPromptAddendum(tools, resources)
	if c.opts.SystemPrompt == "" {
		return strings.TrimLeft(addendum, "\n")
	}
	return c.opts.SystemPrompt + addendum
}

// execute authorizes and runs one call. Refusals and failures come back as
// error results for the model to read; they never abort the query.
func (c *Coordinator) execute(ctx context.Context, call bridge.FunctionCall) session.ToolResult {
	result := session.ToolResult{CallID: call.ID, Name: call.Name}

	target, err := c.gate.Check(ctx, call)
	if err != nil {
		c.logger.Info("tool call refused", "name", call.Name, "error", err)
		result.Output = err.Error()
		result.IsError = true
		return result
	}

	output, isError, err := c.caps.CallTool(ctx, target.Server, target.Tool, target.Arguments)
	if err != nil {
		c.logger.Warn("tool call failed", "tool", target.QualifiedName(), "error", err)
		result.Output = fmt.Sprintf("tool execution failed: %v", err)
		result.IsError = true
		return result
	}

	c.logger.Debug("tool call finished", "tool", target.QualifiedName(), "is_error", isError)
	result.Output = output
	result.IsError = isError
	return result
}
