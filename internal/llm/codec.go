package llm

import (
	"encoding/json"
	"fmt"

	"github.com/sashabaranov/go-openai"
)

// Codec persists a history in one provider's wire format.
type Codec interface {
	Name() string
	Encode(history []Message) ([]byte, error)
	Decode(data []byte) ([]Message, error)
}

// CodecFor returns the codec that stores history the way provider expects
// it. Providers without their own codec use the OpenAI message format.
func CodecFor(provider string) (Codec, error) {
	switch provider {
	case "gemini":
		return GeminiCodec{}, nil
	case "openai", "anthropic":
		return OpenAICodec{}, nil
	}
	return nil, fmt.Errorf("no history codec for provider %q", provider)
}

// GeminiCodec stores history as Gemini REST contents. Function call ids are
// kept in the optional id field so results can be paired after decoding.
type GeminiCodec struct{}

type geminiContent struct {
	Role  string       `json:"role"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text             string                  `json:"text,omitempty"`
	FunctionCall     *geminiFunctionCall     `json:"functionCall,omitempty"`
	FunctionResponse *geminiFunctionResponse `json:"functionResponse,omitempty"`
}

type geminiFunctionCall struct {
	ID   string         `json:"id,omitempty"`
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

type geminiFunctionResponse struct {
	ID       string         `json:"id,omitempty"`
	Name     string         `json:"name"`
	Response map[string]any `json:"response"`
}

// Name implements Codec.
func (GeminiCodec) Name() string { return "gemini" }

// Encode implements Codec.
func (GeminiCodec) Encode(history []Message) ([]byte, error) {
	contents := make([]geminiContent, 0, len(history))
	for _, m := range history {
		c := geminiContent{Role: "user"}
		if m.Role == RoleModel {
			c.Role = "model"
		}
		if m.Text != "" {
			c.Parts = append(c.Parts, geminiPart{Text: m.Text})
		}
		for _, tc := range m.ToolCalls {
			c.Parts = append(c.Parts, geminiPart{FunctionCall: &geminiFunctionCall{ID: tc.ID, Name: tc.Name, Args: tc.Args}})
		}
		for _, tr := range m.ToolResults {
			c.Parts = append(c.Parts, geminiPart{FunctionResponse: &geminiFunctionResponse{ID: tr.CallID, Name: tr.Name, Response: tr.Response}})
		}
		if len(c.Parts) == 0 {
			continue
		}
		contents = append(contents, c)
	}
	data, err := json.Marshal(contents)
	if err != nil {
		return nil, fmt.Errorf("encode gemini history: %w", err)
	}
	return data, nil
}

// Decode implements Codec. A user content made of function responses is a
// tool entry.
func (GeminiCodec) Decode(data []byte) ([]Message, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var contents []geminiContent
	if err := json.Unmarshal(data, &contents); err != nil {
		return nil, fmt.Errorf("decode gemini history: %w", err)
	}

	out := make([]Message, 0, len(contents))
	for _, c := range contents {
		m := Message{Role: RoleUser}
		if c.Role == "model" {
			m.Role = RoleModel
		}
		for _, p := range c.Parts {
			switch {
			case p.FunctionCall != nil:
				m.ToolCalls = append(m.ToolCalls, ToolCall{ID: p.FunctionCall.ID, Name: p.FunctionCall.Name, Args: p.FunctionCall.Args})
			case p.FunctionResponse != nil:
				m.ToolResults = append(m.ToolResults, ToolResult{CallID: p.FunctionResponse.ID, Name: p.FunctionResponse.Name, Response: p.FunctionResponse.Response})
			default:
				m.Text += p.Text
			}
		}
		if len(m.ToolResults) > 0 {
			m.Role = RoleTool
		}
		out = append(out, m)
	}
	return out, nil
}

// OpenAICodec stores history as chat-completion messages.
type OpenAICodec struct{}

// Name implements Codec.
func (OpenAICodec) Name() string { return "openai" }

// Encode implements Codec.
func (OpenAICodec) Encode(history []Message) ([]byte, error) {
	msgs := ToOpenAIMessages(history)
	if msgs == nil {
		msgs = []openai.ChatCompletionMessage{}
	}
	data, err := json.Marshal(msgs)
	if err != nil {
		return nil, fmt.Errorf("encode openai history: %w", err)
	}
	return data, nil
}

// Decode implements Codec.
func (OpenAICodec) Decode(data []byte) ([]Message, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var msgs []openai.ChatCompletionMessage
	if err := json.Unmarshal(data, &msgs); err != nil {
		return nil, fmt.Errorf("decode openai history: %w", err)
	}
	return FromOpenAIMessages(msgs), nil
}
