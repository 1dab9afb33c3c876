// ABOUTME: Per-(server, tool) authorization gate consulted before every tool execution
// ABOUTME: Unknown pairs are put to a Decider; always-allow decisions are remembered

package authz

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/2389/hearth/internal/bridge"
)

// ErrDenied is returned when a tool execution was refused.
var ErrDenied = errors.New("tool execution denied")

// Verdict is the outcome of a policy lookup.
type Verdict int

const (
	// MustPrompt means nothing is recorded for the pair and a decision is needed.
	MustPrompt Verdict = iota
	// Allowed means the pair is always allowed.
	Allowed
)

func (v Verdict) String() string {
	if v == Allowed {
		return "allowed"
	}
	return "must_prompt"
}

// AllowList stores always-allow decisions. Additions must be visible to the
// very next lookup.
type AllowList interface {
	IsAlwaysAllowed(ctx context.Context, server, tool string) (bool, error)
	AddAlwaysAllow(ctx context.Context, server, tool string) error
}

// Target is an authorized call resolved to its server, tool and decoded
// arguments.
type Target struct {
	Server    string
	Tool      string
	Arguments map[string]any
}

// QualifiedName returns "server/tool".
func (t Target) QualifiedName() string {
	return t.Server + "/" + t.Tool
}

// Gate decides whether a function call may run.
type Gate struct {
	list    AllowList
	decider Decider
	logger  *slog.Logger

	// prompting holds one token while a decision is being elicited so
	// concurrent sessions never interleave prompts for the same operator.
	prompting chan struct{}
}

// NewGate creates a gate over list that asks decider about unknown pairs.
func NewGate(list AllowList, decider Decider, logger *slog.Logger) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{
		list:      list,
		decider:   decider,
		logger:    logger.With("component", "authz"),
		prompting: make(chan struct{}, 1),
	}
}

// Authorize looks up the recorded policy for (server, tool).
func (g *Gate) Authorize(ctx context.Context, server, tool string) (Verdict, error) {
	ok, err := g.list.IsAlwaysAllowed(ctx, server, tool)
	if err != nil {
		return MustPrompt, fmt.Errorf("looking up %s/%s: %w", server, tool, err)
	}
	if ok {
		return Allowed, nil
	}
	return MustPrompt, nil
}

// AddAlways records (server, tool) as always allowed.
func (g *Gate) AddAlways(ctx context.Context, server, tool string) error {
	if err := g.list.AddAlwaysAllow(ctx, server, tool); err != nil {
		return fmt.Errorf("recording always-allow for %s/%s: %w", server, tool, err)
	}
	g.logger.Info("tool always allowed", "server", server, "tool", tool)
	return nil
}

// Check runs the full authorization flow for a model-issued call. It returns
// the resolved target when the call may run. Malformed names wrap
// bridge.ErrMalformedName and refusals wrap ErrDenied; neither is meant to
// abort the surrounding request.
func (g *Gate) Check(ctx context.Context, call bridge.FunctionCall) (Target, error) {
	server, tool, err := bridge.SplitFunctionName(call.Name)
	if err != nil {
		g.logger.Warn("rejected tool call", "name", call.Name, "error", err)
		return Target{}, err
	}

	args, err := call.Args()
	if err != nil {
		return Target{}, err
	}
	target := Target{Server: server, Tool: tool, Arguments: args}

	if g.allowed(ctx, server, tool) {
		return target, nil
	}

	select {
	case g.prompting <- struct{}{}:
	case <-ctx.Done():
		g.logger.Warn("gave up waiting for a prompt, denying", "tool", target.QualifiedName(), "error", ctx.Err())
		return Target{}, fmt.Errorf("%w: %s: %w", ErrDenied, target.QualifiedName(), ctx.Err())
	}
	defer func() { <-g.prompting }()

	// An earlier prompt may have answered "always" while we waited.
	if g.allowed(ctx, server, tool) {
		return target, nil
	}

	decision, err := g.decider.Decide(ctx, Request{
		Server:    server,
		Tool:      tool,
		Arguments: call.Arguments,
	})
	if err != nil {
		g.logger.Warn("decision failed, denying", "tool", target.QualifiedName(), "error", err)
		return Target{}, fmt.Errorf("%w: %s: %w", ErrDenied, target.QualifiedName(), err)
	}

	switch decision {
	case AllowOnce:
		return target, nil
	case AlwaysAllow:
		if err := g.AddAlways(ctx, server, tool); err != nil {
			// The operator said yes; only the memory of it is lost.
			g.logger.Error("persisting always-allow", "tool", target.QualifiedName(), "error", err)
		}
		return target, nil
	default:
		g.logger.Info("tool execution denied", "tool", target.QualifiedName())
		return Target{}, fmt.Errorf("%w: %s", ErrDenied, target.QualifiedName())
	}
}

func (g *Gate) allowed(ctx context.Context, server, tool string) bool {
	verdict, err := g.Authorize(ctx, server, tool)
	if err != nil {
		g.logger.Error("allow-list lookup failed", "error", err)
		return false
	}
	return verdict == Allowed
}

// prettyArguments renders raw JSON arguments indented for display.
func prettyArguments(raw json.RawMessage) string {
	if len(raw) == 0 {
		return "{}"
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw)
	}
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return string(raw)
	}
	return string(out)
}
