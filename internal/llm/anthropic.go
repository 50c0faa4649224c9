package llm

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/monitor-judicial/whatsapp-agent/internal/tools"
)

// Anthropic is the Claude messages provider.
type Anthropic struct {
	client    *anthropic.Client
	model     string
	maxTokens int64
}

// NewAnthropic wraps an existing client.
func NewAnthropic(client *anthropic.Client, model string, maxTokens int64) *Anthropic {
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	return &Anthropic{client: client, model: model, maxTokens: maxTokens}
}

// Name implements Provider.
func (a *Anthropic) Name() string { return "anthropic" }

// Generate implements Provider.
func (a *Anthropic) Generate(ctx context.Context, req *Request) (*Response, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(a.model),
		MaxTokens: a.maxTokens,
		Messages:  ToAnthropicMessages(req.History),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	if len(req.Tools) > 0 {
		params.Tools = tools.ToAnthropic(req.Tools)
	}

	msg, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anthropic generate: %w", err)
	}

	out := &Response{}
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			out.Text += block.Text
		case "tool_use":
			args := map[string]any{}
			if err := json.Unmarshal(block.Input, &args); err != nil {
				args = map[string]any{UnparsedArgsKey: string(block.Input)}
			}
			out.ToolCalls = append(out.ToolCalls, ToolCall{ID: block.ID, Name: block.Name, Args: args})
		}
	}
	return out, nil
}

// ToAnthropicMessages converts history to Claude message params. Tool
// results travel in user messages as tool_result blocks.
func ToAnthropicMessages(history []Message) []anthropic.MessageParam {
	var out []anthropic.MessageParam
	for _, m := range history {
		var blocks []anthropic.ContentBlockParamUnion
		switch m.Role {
		case RoleUser:
			text := m.Text
			if m.Audio != nil && text == "" {
				text = voiceNoteText
			}
			if text != "" {
				blocks = append(blocks, anthropic.NewTextBlock(text))
			}
			if len(blocks) > 0 {
				out = append(out, anthropic.NewUserMessage(blocks...))
			}

		case RoleModel:
			if m.Text != "" {
				blocks = append(blocks, anthropic.NewTextBlock(m.Text))
			}
			for _, tc := range m.ToolCalls {
				args := tc.Args
				if args == nil {
					args = map[string]any{}
				}
				blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, args, tc.Name))
			}
			if len(blocks) > 0 {
				out = append(out, anthropic.NewAssistantMessage(blocks...))
			}

		case RoleTool:
			for _, tr := range m.ToolResults {
				blocks = append(blocks, anthropic.NewToolResultBlock(tr.CallID, encodeArguments(tr.Response), false))
			}
			if len(blocks) > 0 {
				out = append(out, anthropic.NewUserMessage(blocks...))
			}
		}
	}
	return out
}
