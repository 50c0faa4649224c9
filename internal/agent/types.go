// Package agent runs the billing and calendar assistant: it drives the model
// through the tool loop, enforces confirmation before anything is written,
// and serves the chat over HTTP and WebSocket.
package agent

import (
	"time"
)

// State is a position in the conversation state machine.
type State string

const (
	StateAwaitingInput        State = "AWAITING_INPUT"
	StateModelCall            State = "MODEL_CALL"
	StateToolProposed         State = "TOOL_PROPOSED"
	StateToolExecuted         State = "TOOL_EXECUTED"
	StateAwaitingConfirmation State = "AWAITING_CONFIRMATION"
	StateConfirmed            State = "CONFIRMED"
	StateMutatingToolExecuted State = "MUTATING_TOOL_EXECUTED"
	StateRejected             State = "REJECTED"
	StateFinalResponse        State = "FINAL_RESPONSE"
)

// Channel names the transport a message arrived on.
const (
	ChannelWhatsApp  = "whatsapp"
	ChannelHTTP      = "chat_http"
	ChannelWebSocket = "chat_ws"
)

// ChatRequest is one inbound user message.
type ChatRequest struct {
	UserID         string `json:"user_id"`
	ConversationID string `json:"conversation_id"`
	Message        string `json:"message"`
	AudioURL       string `json:"audio_url,omitempty"`
	Channel        string `json:"-"`
	RequestID      string `json:"-"`
}

// ChatResponse is the assistant's reply to a ChatRequest.
type ChatResponse struct {
	Reply          string   `json:"reply"`
	ConversationID string   `json:"conversation_id"`
	State          State    `json:"state"`
	Provider       string   `json:"provider,omitempty"`
	UsedFallback   bool     `json:"used_fallback"`
	ToolsUsed      []string `json:"tools_used,omitempty"`
}

// Config holds agent configuration.
type Config struct {
	MaxIterations  int
	HistoryWindow  int
	MaxPersisted   int
	RateLimit      RateLimitConfig
	MaxRequestBody int64
}

// RateLimitConfig bounds how often one user may talk to the agent.
type RateLimitConfig struct {
	RequestsPerWindow int
	Window            time.Duration
}

// DefaultConfig returns default agent configuration.
func DefaultConfig() Config {
	return Config{
		MaxIterations:  6,
		HistoryWindow:  16,
		MaxPersisted:   200,
		MaxRequestBody: 1 << 20,
		RateLimit: RateLimitConfig{
			RequestsPerWindow: 20,
			Window:            time.Minute,
		},
	}
}
