package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"github.com/google/uuid"
	"github.com/monitor-judicial/whatsapp-agent/internal/tools"
)

// Gemini is the Google Gemini provider.
type Gemini struct {
	client      *genai.Client
	model       string
	temperature float32
}

// NewGemini wraps an existing client. The caller owns and closes it.
func NewGemini(client *genai.Client, model string, temperature float32) *Gemini {
	return &Gemini{client: client, model: model, temperature: temperature}
}

// Name implements Provider.
func (g *Gemini) Name() string { return "gemini" }

// Generate implements Provider. Everything before the last content becomes
// chat history and the last content is sent as the new message.
func (g *Gemini) Generate(ctx context.Context, req *Request) (*Response, error) {
	contents := ToGeminiContents(req.History)
	if len(contents) == 0 {
		return nil, errors.New("gemini: empty history")
	}

	model := g.client.GenerativeModel(g.model)
	model.SetTemperature(g.temperature)
	if req.System != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(req.System)}}
	}
	if len(req.Tools) > 0 {
		model.Tools = tools.ToGemini(req.Tools)
	}

	cs := model.StartChat()
	cs.History = contents[:len(contents)-1]
	last := contents[len(contents)-1]

	resp, err := cs.SendMessage(ctx, last.Parts...)
	if err != nil {
		return nil, fmt.Errorf("gemini generate: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, errors.New("gemini: empty response")
	}

	out := &Response{}
	for _, part := range resp.Candidates[0].Content.Parts {
		switch p := part.(type) {
		case genai.Text:
			out.Text += string(p)
		case genai.FunctionCall:
			out.ToolCalls = append(out.ToolCalls, ToolCall{
				ID:   newCallID(),
				Name: p.Name,
				Args: p.Args,
			})
		}
	}
	return out, nil
}

// Gemini function calls carry no id, so one is minted for the history.
func newCallID() string {
	return "call_" + uuid.NewString()
}

// ToGeminiContents converts history to Gemini contents. Tool results are
// sent with the user role. Consecutive entries with the same role are merged
// because Gemini expects user and model turns to alternate.
func ToGeminiContents(history []Message) []*genai.Content {
	var out []*genai.Content
	for _, m := range history {
		role := "user"
		if m.Role == RoleModel {
			role = "model"
		}

		var parts []genai.Part
		if m.Text != "" {
			parts = append(parts, genai.Text(m.Text))
		}
		if m.Audio != nil && len(m.Audio.Data) > 0 {
			parts = append(parts, genai.Blob{MIMEType: m.Audio.MIMEType, Data: m.Audio.Data})
		}
		for _, tc := range m.ToolCalls {
			parts = append(parts, genai.FunctionCall{Name: tc.Name, Args: tc.Args})
		}
		for _, tr := range m.ToolResults {
			parts = append(parts, genai.FunctionResponse{Name: tr.Name, Response: tr.Response})
		}
		if len(parts) == 0 {
			continue
		}

		if n := len(out); n > 0 && out[n-1].Role == role {
			out[n-1].Parts = append(out[n-1].Parts, parts...)
			continue
		}
		out = append(out, &genai.Content{Role: role, Parts: parts})
	}
	return out
}
