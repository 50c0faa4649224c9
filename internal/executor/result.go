package executor

import (
	"encoding/json"
)

// Result is what a tool call returns to the model. Message is already
// formatted for WhatsApp and is the source of truth for amounts and dates.
type Result struct {
	Success            bool     `json:"success"`
	Message            string   `json:"message"`
	Data               any      `json:"data,omitempty"`
	NeedsClarification bool     `json:"needs_clarification,omitempty"`
	CaseIDs            []string `json:"case_ids,omitempty"`
	EventIDs           []string `json:"event_ids,omitempty"`
	Error              string   `json:"error,omitempty"`
}

func ok(msg string) *Result {
	return &Result{Success: true, Message: msg}
}

func fail(msg string) *Result {
	return &Result{Success: false, Message: msg}
}

// Map renders r as the JSON object stored in a tool result.
func (r *Result) Map() map[string]any {
	data, err := json.Marshal(r)
	if err != nil {
		return map[string]any{"success": false, "message": r.Message}
	}
	out := map[string]any{}
	if err := json.Unmarshal(data, &out); err != nil {
		return map[string]any{"success": false, "message": r.Message}
	}
	return out
}
