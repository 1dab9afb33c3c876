// ABOUTME: Language model client contract used by the query coordinator
// ABOUTME: A Request carries instructions, history and function definitions

package model

import (
	"context"

	"github.com/2389/hearth/internal/bridge"
	"github.com/2389/hearth/internal/session"
)

// Request is one generation call.
type Request struct {
	// Instructions is the system prompt, including any capability addendum.
	Instructions string
	// History is the full conversation so far, oldest first.
	History []session.Turn
	// Functions is empty when no tools are available.
	Functions []bridge.FunctionDef
}

// Reply is the model's answer to a Request. A reply with Calls asks the
// coordinator to run them and generate again.
type Reply struct {
	Text  string
	Calls []bridge.FunctionCall
}

// Client generates replies.
type Client interface {
	Generate(ctx context.Context, req Request) (*Reply, error)
}
