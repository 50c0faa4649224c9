// Package llm talks to hosted language models. It defines a provider-neutral
// message history, adapters for Gemini, OpenAI and Anthropic, codecs that
// persist history in a provider's own wire format, and a router that falls
// back to the next provider when one is overloaded.
package llm

import (
	"context"

	"github.com/monitor-judicial/whatsapp-agent/internal/tools"
)

// Role identifies who produced a message.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
	RoleTool  Role = "tool"
)

// Message is one entry of a conversation history.
type Message struct {
	Role        Role         `json:"role"`
	Text        string       `json:"text,omitempty"`
	ToolCalls   []ToolCall   `json:"tool_calls,omitempty"`
	ToolResults []ToolResult `json:"tool_results,omitempty"`
	// Audio is sent inline with the turn it arrived in and is never persisted.
	Audio *Blob `json:"-"`
}

// ToolCall is a function invocation proposed by the model.
type ToolCall struct {
	ID   string         `json:"id"`
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

// ToolResult answers a ToolCall.
type ToolResult struct {
	CallID   string         `json:"call_id"`
	Name     string         `json:"name"`
	Response map[string]any `json:"response"`
}

// Blob is inline binary content such as a voice note.
type Blob struct {
	MIMEType string
	Data     []byte
}

// UserText returns a user message.
func UserText(text string) Message {
	return Message{Role: RoleUser, Text: text}
}

// Request is one model call: system instruction, tool catalog and the history
// whose last entry is the turn being answered.
type Request struct {
	System  string
	Tools   []tools.Definition
	History []Message
}

// Response is what the model produced for a Request.
type Response struct {
	Text      string
	ToolCalls []ToolCall
}

// Provider is a hosted model backend.
type Provider interface {
	Name() string
	Generate(ctx context.Context, req *Request) (*Response, error)
}
