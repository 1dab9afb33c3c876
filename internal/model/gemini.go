// ABOUTME: Gemini implementation of the model client on google.golang.org/genai
// ABOUTME: Converts session history to contents and function defs to declarations

package model

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/2389/hearth/internal/bridge"
	"github.com/2389/hearth/internal/session"
)

// ErrEmptyResponse is returned when the API answers without any candidate.
var ErrEmptyResponse = errors.New("model returned no candidates")

type generateFunc func(ctx context.Context, model string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)

// Gemini talks to the Gemini API.
type Gemini struct {
	model    string
	generate generateFunc
}

// NewGemini creates a client for model. An empty apiKey lets the SDK fall
// back to GOOGLE_API_KEY or GEMINI_API_KEY.
func NewGemini(ctx context.Context, apiKey, model string) (*Gemini, error) {
	if model == "" {
		return nil, fmt.Errorf("model name is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating genai client: %w", err)
	}
	return &Gemini{model: model, generate: client.Models.GenerateContent}, nil
}

// Model returns the configured model name.
func (g *Gemini) Model() string {
	return g.model
}

// Generate sends req to the model.
func (g *Gemini) Generate(ctx context.Context, req Request) (*Reply, error) {
	contents, err := toContents(req.History)
	if err != nil {
		return nil, err
	}

	cfg := &genai.GenerateContentConfig{}
	if req.Instructions != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.Instructions, genai.RoleUser)
	}
	if tools := toTools(req.Functions); tools != nil {
		cfg.Tools = tools
	}

	resp, err := g.generate(ctx, g.model, contents, cfg)
	if err != nil {
		return nil, fmt.Errorf("generating content: %w", err)
	}
	return fromResponse(resp)
}

// toContents maps history turns to Gemini contents. Tool results travel as
// function responses in a user-role content.
func toContents(history []session.Turn) ([]*genai.Content, error) {
	contents := make([]*genai.Content, 0, len(history))
	for _, turn := range history {
		var parts []*genai.Part
		role := genai.RoleUser

		switch turn.Role {
		case session.RoleUser:
			if turn.Text != "" {
				parts = append(parts, genai.NewPartFromText(turn.Text))
			}

		case session.RoleModel:
			role = genai.RoleModel
			if turn.Text != "" {
				parts = append(parts, genai.NewPartFromText(turn.Text))
			}
			for _, call := range turn.Calls {
				args, err := call.Args()
				if err != nil {
					return nil, err
				}
				parts = append(parts, &genai.Part{FunctionCall: &genai.FunctionCall{
					ID:   call.ID,
					Name: call.Name,
					Args: args,
				}})
			}

		case session.RoleTool:
			for _, res := range turn.Results {
				key := "output"
				if res.IsError {
					key = "error"
				}
				parts = append(parts, &genai.Part{FunctionResponse: &genai.FunctionResponse{
					ID:       res.CallID,
					Name:     res.Name,
					Response: map[string]any{key: res.Output},
				}})
			}

		default:
			return nil, fmt.Errorf("unknown turn role %q", turn.Role)
		}

		if len(parts) == 0 {
			continue
		}
		contents = append(contents, genai.NewContentFromParts(parts, genai.Role(role)))
	}
	return contents, nil
}

// toTools wraps defs in a single tool. No defs yields nil so the request
// carries no tools field.
func toTools(defs []bridge.FunctionDef) []*genai.Tool {
	if len(defs) == 0 {
		return nil
	}
	decls := make([]*genai.FunctionDeclaration, 0, len(defs))
	for _, def := range defs {
		decls = append(decls, &genai.FunctionDeclaration{
			Name:                 def.Name,
			Description:          def.Description,
			ParametersJsonSchema: def.Parameters,
		})
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}

// fromResponse reads the first candidate. Thought parts are dropped.
func fromResponse(resp *genai.GenerateContentResponse) (*Reply, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		if resp != nil && resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
			return nil, fmt.Errorf("%w: prompt blocked (%s)", ErrEmptyResponse, resp.PromptFeedback.BlockReason)
		}
		return nil, ErrEmptyResponse
	}

	reply := &Reply{}
	content := resp.Candidates[0].Content
	if content == nil {
		return reply, nil
	}

	var text strings.Builder
	for _, part := range content.Parts {
		if part == nil || part.Thought {
			continue
		}
		if part.Text != "" {
			text.WriteString(part.Text)
		}
		if fc := part.FunctionCall; fc != nil {
			args := fc.Args
			if args == nil {
				args = map[string]any{}
			}
			raw, err := json.Marshal(args)
			if err != nil {
				return nil, fmt.Errorf("encoding arguments for %s: %w", fc.Name, err)
			}
			reply.Calls = append(reply.Calls, bridge.FunctionCall{
				ID:        fc.ID,
				Name:      fc.Name,
				Arguments: raw,
			})
		}
	}
	reply.Text = text.String()
	return reply, nil
}
