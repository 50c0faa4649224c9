package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/monitor-judicial/whatsapp-agent/internal/tools"
	"github.com/sashabaranov/go-openai"
)

// UnparsedArgsKey holds tool-call arguments that were not valid JSON. The
// catalog rejects it as an unexpected field, so the model sees the error.
const UnparsedArgsKey = "_unparsed_arguments"

// voiceNoteText stands in for audio on providers without audio input.
const voiceNoteText = "[El usuario envió una nota de voz que este modelo no puede escuchar]"

// OpenAI is the OpenAI chat-completions provider.
type OpenAI struct {
	client *openai.Client
	model  string
}

// NewOpenAI wraps an existing client.
func NewOpenAI(client *openai.Client, model string) *OpenAI {
	return &OpenAI{client: client, model: model}
}

// Name implements Provider.
func (o *OpenAI) Name() string { return "openai" }

// Generate implements Provider.
func (o *OpenAI) Generate(ctx context.Context, req *Request) (*Response, error) {
	var msgs []openai.ChatCompletionMessage
	if req.System != "" {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.System})
	}
	msgs = append(msgs, ToOpenAIMessages(req.History)...)

	creq := openai.ChatCompletionRequest{
		Model:    o.model,
		Messages: msgs,
	}
	if len(req.Tools) > 0 {
		creq.Tools = tools.ToOpenAI(req.Tools)
	}

	resp, err := o.client.CreateChatCompletion(ctx, creq)
	if err != nil {
		return nil, fmt.Errorf("openai generate: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("openai: no response choices")
	}

	choice := resp.Choices[0].Message
	out := &Response{Text: choice.Content}
	for _, tc := range choice.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, ToolCall{
			ID:   tc.ID,
			Name: tc.Function.Name,
			Args: decodeArguments(tc.Function.Arguments),
		})
	}
	return out, nil
}

// ToOpenAIMessages converts history to chat-completion messages. A tool
// entry with several results becomes one tool message per result.
func ToOpenAIMessages(history []Message) []openai.ChatCompletionMessage {
	var out []openai.ChatCompletionMessage
	for _, m := range history {
		switch m.Role {
		case RoleUser:
			text := m.Text
			if m.Audio != nil && text == "" {
				text = voiceNoteText
			}
			out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: text})

		case RoleModel:
			msg := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: m.Text}
			for _, tc := range m.ToolCalls {
				msg.ToolCalls = append(msg.ToolCalls, openai.ToolCall{
					ID:   tc.ID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      tc.Name,
						Arguments: encodeArguments(tc.Args),
					},
				})
			}
			out = append(out, msg)

		case RoleTool:
			for _, tr := range m.ToolResults {
				out = append(out, openai.ChatCompletionMessage{
					Role:       openai.ChatMessageRoleTool,
					Content:    encodeArguments(tr.Response),
					ToolCallID: tr.CallID,
				})
			}
		}
	}
	return out
}

// FromOpenAIMessages is the inverse of ToOpenAIMessages. System messages are
// dropped. Tool result names are recovered from the call they answer.
func FromOpenAIMessages(msgs []openai.ChatCompletionMessage) []Message {
	var out []Message
	callNames := make(map[string]string)
	for _, om := range msgs {
		switch om.Role {
		case openai.ChatMessageRoleUser:
			out = append(out, Message{Role: RoleUser, Text: om.Content})

		case openai.ChatMessageRoleAssistant:
			m := Message{Role: RoleModel, Text: om.Content}
			for _, tc := range om.ToolCalls {
				callNames[tc.ID] = tc.Function.Name
				m.ToolCalls = append(m.ToolCalls, ToolCall{
					ID:   tc.ID,
					Name: tc.Function.Name,
					Args: decodeArguments(tc.Function.Arguments),
				})
			}
			out = append(out, m)

		case openai.ChatMessageRoleTool:
			tr := ToolResult{
				CallID:   om.ToolCallID,
				Name:     callNames[om.ToolCallID],
				Response: decodeArguments(om.Content),
			}
			if n := len(out); n > 0 && out[n-1].Role == RoleTool {
				out[n-1].ToolResults = append(out[n-1].ToolResults, tr)
				continue
			}
			out = append(out, Message{Role: RoleTool, ToolResults: []ToolResult{tr}})
		}
	}
	return out
}

func encodeArguments(v map[string]any) string {
	if v == nil {
		return "{}"
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(data)
}

func decodeArguments(s string) map[string]any {
	out := map[string]any{}
	if s == "" {
		return out
	}
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return map[string]any{UnparsedArgsKey: s}
	}
	return out
}
