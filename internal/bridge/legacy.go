// ABOUTME: Fallback parser for function calls written as JSON inside fenced code blocks
// ABOUTME: Only used when a model reply carries no structured function calls

package bridge

import (
	"bufio"
	"encoding/json"
	"strings"
)

type textCall struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
	Args      json.RawMessage `json:"args"`
}

// ParseFunctionCallsFromText scans fenced code blocks in text and decodes
// each one as {"name": ..., "arguments"|"args": {...}}. Blocks that do not
// decode, lack a name, or are never closed are skipped.
func ParseFunctionCallsFromText(text string) []FunctionCall {
	var (
		calls   []FunctionCall
		inBlock bool
		block   strings.Builder
	)

	scanner := bufio.NewScanner(strings.NewReader(text))
	scanner.Buffer(make([]byte, 0, 64*1024), len(text)+1)
	for scanner.Scan() {
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)

		if strings.HasPrefix(trimmed, "```") {
			if !inBlock {
				inBlock = true
				block.Reset()
				continue
			}
			inBlock = false
			if call, ok := decodeTextCall(block.String()); ok {
				calls = append(calls, call)
			}
			block.Reset()
			continue
		}

		if inBlock {
			block.WriteString(line)
			block.WriteString("\n")
		}
	}

	return calls
}

func decodeTextCall(raw string) (FunctionCall, bool) {
	var tc textCall
	if err := json.Unmarshal([]byte(raw), &tc); err != nil {
		return FunctionCall{}, false
	}
	if tc.Name == "" {
		return FunctionCall{}, false
	}

	args := tc.Arguments
	if len(args) == 0 {
		args = tc.Args
	}
	return FunctionCall{Name: tc.Name, Arguments: args}, true
}
