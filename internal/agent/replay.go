package agent

import (
	"encoding/json"
	"fmt"

	"github.com/monitor-judicial/whatsapp-agent/internal/llm"
	"github.com/monitor-judicial/whatsapp-agent/internal/tools"
)

// Keys and values the orchestrator adds to tool results so that the state
// machine can be rebuilt from history alone.
const (
	keyStatus        = "status"
	keyPendingAction = "pending_action"
	keyCaseIDs       = "case_ids"
	keyEventIDs      = "event_ids"
	keyClarification = "needs_clarification"

	statusPending   = "pending_confirmation"
	statusConfirmed = "confirmed"
	statusRejected  = "rejected"
	statusDiscarded = "discarded"
	statusBlocked   = "blocked"
)

// PendingAction is a validated mutating call waiting for the user's answer.
type PendingAction struct {
	CallID string         `json:"call_id"`
	Tool   string         `json:"tool"`
	Args   map[string]any `json:"args"`
}

// Parse decodes the stored arguments back into the tool's argument type.
func (p *PendingAction) Parse() (tools.Args, error) {
	return tools.Parse(p.Tool, p.Args)
}

func (p *PendingAction) value() map[string]any {
	return map[string]any{"tool": p.Tool, "args": p.Args}
}

// newPendingAction records args as the plain JSON object they will be
// persisted as.
func newPendingAction(callID string, args tools.Args) (*PendingAction, error) {
	data, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("encode pending %s: %w", args.ToolName(), err)
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode pending %s: %w", args.ToolName(), err)
	}
	return &PendingAction{CallID: callID, Tool: args.ToolName(), Args: raw}, nil
}

// Snapshot is the conversation state derived from history.
//
// Pending, NeedsClarification and MeetingConfirmed are scoped to the current
// turn: a user message clears them, because whatever was pending has now been
// answered. Surfaced ids accumulate over the whole history. The user texts
// run from the message that resolved the last pending action to now, so a
// currency named a few messages back still applies to the payment it asked for.
type Snapshot struct {
	State              State
	Pending            *PendingAction
	NeedsClarification bool
	MeetingConfirmed   bool

	cases     map[string]bool
	events    map[string]bool
	userTexts []string
}

// Replay rebuilds the state machine from history without calling a model.
func Replay(history []llm.Message) *Snapshot {
	s := &Snapshot{
		State:  StateAwaitingInput,
		cases:  make(map[string]bool),
		events: make(map[string]bool),
	}
	for _, m := range history {
		s.Apply(m)
	}
	return s
}

// Apply advances the snapshot by one history entry.
func (s *Snapshot) Apply(m llm.Message) {
	switch m.Role {
	case llm.RoleUser:
		s.Pending = nil
		s.NeedsClarification = false
		s.MeetingConfirmed = false
		s.State = StateModelCall
		s.userTexts = append(s.userTexts, m.Text)
	case llm.RoleModel:
		switch {
		case len(m.ToolCalls) > 0:
			s.State = StateToolProposed
		case s.Pending != nil:
			s.State = StateAwaitingConfirmation
		default:
			s.State = StateAwaitingInput
		}
	case llm.RoleTool:
		for _, r := range m.ToolResults {
			s.absorb(r)
		}
	}
}

func (s *Snapshot) absorb(r llm.ToolResult) {
	for _, id := range stringList(r.Response[keyCaseIDs]) {
		s.cases[id] = true
	}
	for _, id := range stringList(r.Response[keyEventIDs]) {
		s.events[id] = true
	}
	if flag, _ := r.Response[keyClarification].(bool); flag {
		s.NeedsClarification = true
	}

	status, _ := r.Response[keyStatus].(string)
	switch status {
	case statusPending:
		if p := pendingFrom(r); p != nil {
			s.Pending = p
		}
		s.State = StateAwaitingConfirmation
	case statusConfirmed:
		s.State = StateMutatingToolExecuted
		s.MeetingConfirmed = s.MeetingConfirmed || r.Name == tools.CreateMeeting
		s.resetUserTexts()
	case statusRejected:
		s.State = StateRejected
		s.resetUserTexts()
	case statusDiscarded:
		s.State = StateToolExecuted
		s.resetUserTexts()
	default:
		s.State = StateToolExecuted
	}
}

// resetUserTexts starts a new request at the message that resolved the
// pending action.
func (s *Snapshot) resetUserTexts() {
	if n := len(s.userTexts); n > 1 {
		s.userTexts = []string{s.userTexts[n-1]}
	}
}

// UserTexts returns the user messages of the request in progress, oldest first.
func (s *Snapshot) UserTexts() []string { return s.userTexts }

// CaseSurfaced reports whether id was returned by an earlier tool result.
func (s *Snapshot) CaseSurfaced(id string) bool { return s.cases[id] }

// EventSurfaced reports whether id was returned by an earlier tool result.
func (s *Snapshot) EventSurfaced(id string) bool { return s.events[id] }

func pendingFrom(r llm.ToolResult) *PendingAction {
	v, ok := r.Response[keyPendingAction].(map[string]any)
	if !ok {
		return nil
	}
	tool, _ := v["tool"].(string)
	args, _ := v["args"].(map[string]any)
	if tool == "" {
		return nil
	}
	if args == nil {
		args = map[string]any{}
	}
	return &PendingAction{CallID: r.CallID, Tool: tool, Args: args}
}

func stringList(v any) []string {
	switch ids := v.(type) {
	case []string:
		return ids
	case []any:
		out := make([]string, 0, len(ids))
		for _, id := range ids {
			if s, ok := id.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
