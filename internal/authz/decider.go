// ABOUTME: Decision providers for tool executions that have no recorded policy
// ABOUTME: Includes an interactive terminal prompt and fixed non-interactive answers

package authz

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/fatih/color"
)

// Decision is an operator's answer for a single tool execution.
type Decision int

const (
	DenyOnce Decision = iota
	AllowOnce
	AlwaysAllow
)

func (d Decision) String() string {
	switch d {
	case AllowOnce:
		return "allow_once"
	case AlwaysAllow:
		return "always_allow"
	default:
		return "deny_once"
	}
}

// Request describes the tool execution awaiting a decision.
type Request struct {
	Server    string
	Tool      string
	Arguments json.RawMessage
}

// QualifiedName returns "server/tool".
func (r Request) QualifiedName() string {
	return r.Server + "/" + r.Tool
}

// Decider elicits a decision for a tool execution.
type Decider interface {
	Decide(ctx context.Context, req Request) (Decision, error)
}

// DeciderFunc adapts a function to the Decider interface.
type DeciderFunc func(ctx context.Context, req Request) (Decision, error)

func (f DeciderFunc) Decide(ctx context.Context, req Request) (Decision, error) {
	return f(ctx, req)
}

// StaticDecider answers every request with the same decision. It backs the
// non-interactive "allow" and "deny" modes.
type StaticDecider struct {
	Decision Decision
}

func (s StaticDecider) Decide(context.Context, Request) (Decision, error) {
	return s.Decision, nil
}

// TerminalDecider asks an operator on a terminal. Only "y"/"yes",
// "a"/"always" and "n"/"no" are understood; anything else is a deny.
//
// Input is read by a single goroutine started on the first prompt, so a
// prompt abandoned by its context does not leave a read behind that swallows
// the next answer.
type TerminalDecider struct {
	mu  sync.Mutex
	in  *bufio.Reader
	out io.Writer

	start   sync.Once
	lines   chan string
	eof     chan struct{}
	readErr error
	done    chan struct{}
	closed  sync.Once

	// abandoned is set when the last prompt ended without an answer.
	abandoned bool
}

// NewTerminalDecider reads answers from in and writes prompts to out.
func NewTerminalDecider(in io.Reader, out io.Writer) *TerminalDecider {
	return &TerminalDecider{
		in:    bufio.NewReader(in),
		out:   out,
		lines: make(chan string),
		eof:   make(chan struct{}),
		done:  make(chan struct{}),
	}
}

func (t *TerminalDecider) Decide(ctx context.Context, req Request) (Decision, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return DenyOnce, err
	}
	t.start.Do(func() { go t.readLines() })

	// A reply meant for an abandoned prompt must not answer this one.
	if t.abandoned {
		t.discardPending()
		t.abandoned = false
	}

	yellow := color.New(color.FgYellow, color.Bold)
	green := color.New(color.FgGreen)
	cyan := color.New(color.FgCyan)

	fmt.Fprintln(t.out)
	yellow.Fprint(t.out, "Tool execution requested:")
	fmt.Fprint(t.out, " ")
	green.Fprint(t.out, req.QualifiedName())
	fmt.Fprintln(t.out)
	fmt.Fprintln(t.out, prettyArguments(req.Arguments))
	cyan.Fprintln(t.out, "Do you want to allow this tool execution? [y/N/a(lways)]")

	select {
	case line := <-t.lines:
		return parseAnswer(line), nil
	case <-t.eof:
		return DenyOnce, fmt.Errorf("reading confirmation: %w", t.readErr)
	case <-ctx.Done():
		t.abandoned = true
		fmt.Fprintln(t.out, "(request cancelled, denied)")
		return DenyOnce, ctx.Err()
	case <-t.done:
		return DenyOnce, errDeciderClosed
	}
}

// Close stops handing out answers. A read already blocked on the input
// returns once the input itself is closed.
func (t *TerminalDecider) Close() error {
	t.closed.Do(func() { close(t.done) })
	return nil
}

var errDeciderClosed = errors.New("terminal decider closed")

// readLines feeds complete lines to Decide until the input fails. A final
// line without a newline still counts as an answer.
func (t *TerminalDecider) readLines() {
	for {
		line, err := t.in.ReadString('\n')
		if line != "" {
			select {
			case t.lines <- line:
			case <-t.done:
				return
			}
		}
		if err != nil {
			t.readErr = err
			close(t.eof)
			return
		}
	}
}

func (t *TerminalDecider) discardPending() {
	for {
		select {
		case <-t.lines:
		default:
			return
		}
	}
}

func parseAnswer(line string) Decision {
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return AllowOnce
	case "a", "always":
		return AlwaysAllow
	default:
		return DenyOnce
	}
}
