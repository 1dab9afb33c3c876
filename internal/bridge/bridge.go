// ABOUTME: Translates capability server descriptors into model function definitions
// ABOUTME: Also maps function names back to (server, tool) pairs

package bridge

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// DefaultDescription is used for tools that ship without a description.
const DefaultDescription = "No description provided"

// ErrMalformedName is returned when a qualified name cannot be split into
// a server and a tool.
var ErrMalformedName = errors.New("malformed qualified tool name")

// Tool describes one tool exposed by a capability server. Name is qualified
// as "server/tool".
type Tool struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// Resource describes one resource exposed by a capability server.
type Resource struct {
	Name        string
	Description string
	URI         string
}

// FunctionDef is the function-calling schema handed to the model.
type FunctionDef struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// FunctionCall is a single function invocation requested by the model.
type FunctionCall struct {
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// Args decodes the call arguments into a map. Missing arguments decode to an
// empty map.
func (c FunctionCall) Args() (map[string]any, error) {
	args := map[string]any{}
	if len(c.Arguments) == 0 || string(c.Arguments) == "null" {
		return args, nil
	}
	if err := json.Unmarshal(c.Arguments, &args); err != nil {
		return nil, fmt.Errorf("decoding arguments for %s: %w", c.Name, err)
	}
	return args, nil
}

// ToFunctionDefs converts tool descriptors into function definitions. The
// result preserves input order and is nil for empty input so callers can omit
// the tools field entirely.
func ToFunctionDefs(tools []Tool) []FunctionDef {
	if len(tools) == 0 {
		return nil
	}

	defs := make([]FunctionDef, 0, len(tools))
	for _, t := range tools {
		desc := t.Description
		if desc == "" {
			desc = DefaultDescription
		}
		params := t.Parameters
		if params == nil {
			params = emptyParameters()
		}
		defs = append(defs, FunctionDef{
			Name:        FunctionName(t.Name),
			Description: desc,
			Parameters:  params,
		})
	}
	return defs
}

func emptyParameters() map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": map[string]any{},
		"required":   []any{},
	}
}

// FunctionName rewrites a qualified tool name into its function form by
// replacing every "/" with ".".
func FunctionName(qualified string) string {
	return strings.ReplaceAll(qualified, "/", ".")
}

// ParseQualifiedName splits "server/tool" on the first "/". Both halves must
// be non-empty.
func ParseQualifiedName(name string) (server, tool string, err error) {
	server, tool, ok := strings.Cut(name, "/")
	if !ok || server == "" || tool == "" {
		return "", "", fmt.Errorf("%w: %q", ErrMalformedName, name)
	}
	return server, tool, nil
}

// QualifiedNameFromFunction inverts FunctionName. Server names never contain
// a ".", so only the first "." is rewritten and dots inside the tool name
// survive.
func QualifiedNameFromFunction(fn string) string {
	if strings.Contains(fn, "/") {
		return fn
	}
	return strings.Replace(fn, ".", "/", 1)
}

// SplitFunctionName resolves a function name (or an already qualified name)
// to its server and tool.
func SplitFunctionName(fn string) (server, tool string, err error) {
	return ParseQualifiedName(QualifiedNameFromFunction(fn))
}

// SortTools orders tools by qualified name.
func SortTools(tools []Tool) {
	sort.Slice(tools, func(i, j int) bool { return tools[i].Name < tools[j].Name })
}
