package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/monitor-judicial/whatsapp-agent/internal/domain"
	"github.com/monitor-judicial/whatsapp-agent/internal/executor"
	"github.com/monitor-judicial/whatsapp-agent/internal/llm"
	"github.com/monitor-judicial/whatsapp-agent/internal/textnorm"
	"github.com/monitor-judicial/whatsapp-agent/internal/tools"
)

const (
	confirmQuestion = "\n\n¿Confirmas? Responde *sí* para continuar o *no* para cancelar."
	rejectedMessage = "El usuario canceló la acción. No se realizó ningún cambio."
	discardMessage  = "El usuario no confirmó la acción propuesta, así que se descartó sin cambios. Atiende su nuevo mensaje."
	exhaustedReply  = "No pude completar tu solicitud en este momento. Intenta de nuevo, por favor."
)

// Orchestrator runs one conversation turn at a time. It is the only place
// mutating tools are executed, and only for an action the user confirmed in
// the message right after it was proposed.
type Orchestrator struct {
	router        *llm.Router
	exec          *executor.Executor
	maxIterations int
	historyWindow int
	now           func() time.Time
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(router *llm.Router, exec *executor.Executor, cfg Config) *Orchestrator {
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = DefaultConfig().MaxIterations
	}
	if cfg.HistoryWindow <= 0 {
		cfg.HistoryWindow = DefaultConfig().HistoryWindow
	}
	return &Orchestrator{
		router:        router,
		exec:          exec,
		maxIterations: cfg.MaxIterations,
		historyWindow: cfg.HistoryWindow,
		now:           time.Now,
	}
}

// TurnResult is the outcome of one user turn.
type TurnResult struct {
	Reply        string
	History      []llm.Message
	State        State
	Provider     string
	UsedFallback bool
	ToolsUsed    []string
}

// turn is the working state of one Turn call. mutation is set once a
// confirmed action ran, so a later model failure still reports what was
// written. preview is the confirmation text of an action proposed this turn.
type turn struct {
	profile  *domain.UserProfile
	history  []llm.Message
	snap     *Snapshot
	result   *TurnResult
	mutation *executor.Result
	preview  string
}

func (t *turn) append(m llm.Message) {
	t.history = append(t.history, m)
	t.snap.Apply(m)
}

// Turn answers msg given the prior history. The returned history contains
// everything appended during the turn and is safe to persist.
func (o *Orchestrator) Turn(ctx context.Context, profile *domain.UserProfile, history []llm.Message, msg llm.Message) (*TurnResult, error) {
	t := &turn{
		profile: profile,
		history: slices.Clip(history),
		snap:    Replay(history),
		result:  &TurnResult{},
	}
	prior := t.snap.Pending
	t.append(msg)

	if prior != nil {
		o.resolve(ctx, t, prior, Classify(msg.Text))
	}

	text, err := o.loop(ctx, t)
	if err != nil {
		if t.mutation == nil {
			return nil, err
		}
		slog.Warn("Model failed after confirmed action, replying with executor message",
			"user_id", profile.UserID,
			"error", err)
		text = t.mutation.Message
		t.append(llm.Message{Role: llm.RoleModel, Text: text})
	}

	reply := FormatReply(text)
	if t.snap.Pending != nil && !strings.Contains(textnorm.Fold(reply), "confirm") {
		reply = FormatReply(reply + "\n\n" + t.preview)
	}

	t.result.Reply = reply
	t.result.History = t.history
	t.result.State = t.snap.State
	return t.result, nil
}

// resolve applies the user's answer to the action pending from the previous
// turn. The resolution is appended as a tool call and result so that replay
// never executes the same action twice.
func (o *Orchestrator) resolve(ctx context.Context, t *turn, pending *PendingAction, decision Decision) {
	slog.Info("Resolving pending action",
		"user_id", t.profile.UserID,
		"tool", pending.Tool,
		"decision", decision.String())

	var response map[string]any
	switch decision {
	case DecisionConfirm:
		t.snap.State = StateConfirmed
		args, err := pending.Parse()
		if err != nil {
			response = map[string]any{"success": false, "message": "La acción pendiente ya no es válida: " + err.Error()}
			break
		}
		res := o.exec.Execute(ctx, t.profile, args, t.snap.UserTexts()...)
		t.mutation = res
		t.result.ToolsUsed = append(t.result.ToolsUsed, pending.Tool)
		response = res.Map()
		response[keyStatus] = statusConfirmed
	case DecisionReject:
		response = map[string]any{"success": false, "message": rejectedMessage, keyStatus: statusRejected}
	default:
		response = map[string]any{"success": false, "message": discardMessage, keyStatus: statusDiscarded}
	}

	call := llm.ToolCall{ID: "confirm_" + uuid.NewString(), Name: pending.Tool, Args: pending.Args}
	t.append(llm.Message{Role: llm.RoleModel, ToolCalls: []llm.ToolCall{call}})
	t.append(llm.Message{Role: llm.RoleTool, ToolResults: []llm.ToolResult{{
		CallID:   call.ID,
		Name:     call.Name,
		Response: response,
	}}})
}

func (o *Orchestrator) loop(ctx context.Context, t *turn) (string, error) {
	loc := o.exec.Location(t.profile)
	defs := tools.Catalog()

	for i := 0; i < o.maxIterations; i++ {
		req := &llm.Request{
			System:  SystemPrompt(t.profile, o.now(), loc),
			Tools:   defs,
			History: Window(t.history, o.historyWindow),
		}
		res, err := o.router.Generate(ctx, req)
		if err != nil {
			return "", err
		}
		t.result.Provider = res.Provider
		t.result.UsedFallback = t.result.UsedFallback || res.UsedFallback

		resp := res.Response
		t.append(llm.Message{Role: llm.RoleModel, Text: resp.Text, ToolCalls: resp.ToolCalls})
		if len(resp.ToolCalls) == 0 {
			return resp.Text, nil
		}

		results := make([]llm.ToolResult, 0, len(resp.ToolCalls))
		for _, call := range resp.ToolCalls {
			response := o.dispatch(ctx, t, call)
			results = append(results, llm.ToolResult{CallID: call.ID, Name: call.Name, Response: response})
			t.result.ToolsUsed = append(t.result.ToolsUsed, call.Name)
			// Later calls in the same response must see this one's effect,
			// e.g. a second mutating proposal after a pending one.
			t.snap.absorb(results[len(results)-1])
		}
		t.history = append(t.history, llm.Message{Role: llm.RoleTool, ToolResults: results})
	}

	slog.Warn("Model iteration limit reached",
		"user_id", t.profile.UserID,
		"max_iterations", o.maxIterations)
	if t.mutation != nil {
		return t.mutation.Message, nil
	}
	if t.snap.Pending != nil {
		return "", nil
	}
	return exhaustedReply, nil
}

// dispatch runs a read-only call or turns a mutating one into a pending action.
func (o *Orchestrator) dispatch(ctx context.Context, t *turn, call llm.ToolCall) map[string]any {
	args, err := tools.Parse(call.Name, call.Args)
	if err != nil {
		slog.Warn("Rejected tool call",
			"user_id", t.profile.UserID,
			"tool", call.Name,
			"error", err)
		return blocked(invalidCallMessage(err), err.Error())
	}

	if !tools.IsMutating(call.Name) {
		if _, ok := args.(*tools.CheckClientPhoneArgs); ok {
			switch {
			case t.snap.Pending != nil:
				return blocked("Ya hay una acción pendiente de confirmación. Pide la confirmación antes de revisar el teléfono del cliente.", "pending_action_exists")
			case t.snap.MeetingConfirmed:
				return blocked("La reunión ya quedó agendada. El teléfono del cliente solo se revisa antes de proponerla.", "meeting_already_confirmed")
			}
		}
		return o.exec.Execute(ctx, t.profile, args, t.snap.UserTexts()...).Map()
	}

	if t.snap.Pending != nil {
		return blocked("Ya hay una acción pendiente de confirmación en este turno. Pide la confirmación de esa acción primero.", "pending_action_exists")
	}
	if t.snap.NeedsClarification {
		return blocked("Hay varios casos posibles. Pregunta al usuario a cuál se refiere antes de proponer cambios.", "needs_clarification")
	}
	caseID, eventID := tools.References(args)
	if caseID != "" && !t.snap.CaseSurfaced(caseID) {
		return blocked("Ese case_id no proviene de una búsqueda. Busca primero el caso con search_cases_by_client_name.", "unknown_case_id")
	}
	if eventID != "" && !t.snap.EventSurfaced(eventID) {
		return blocked("Ese event_id no proviene del calendario. Consulta primero get_calendar_events.", "unknown_event_id")
	}

	preview := o.exec.Preview(ctx, t.profile, args, t.snap.UserTexts()...)
	if !preview.Success {
		return preview.Map()
	}
	pending, err := newPendingAction(call.ID, args)
	if err != nil {
		slog.Error("Failed to record pending action", "tool", call.Name, "error", err)
		return blocked("No pude preparar la acción.", err.Error())
	}

	slog.Info("Mutating tool awaiting confirmation",
		"user_id", t.profile.UserID,
		"tool", call.Name)

	t.preview = preview.Message + confirmQuestion
	response := preview.Map()
	response["message"] = t.preview
	response[keyStatus] = statusPending
	response[keyPendingAction] = pending.value()
	return response
}

func blocked(message, reason string) map[string]any {
	return map[string]any{"success": false, "message": message, "error": reason, keyStatus: statusBlocked}
}

func invalidCallMessage(err error) string {
	switch {
	case errors.Is(err, tools.ErrUnknownTool):
		return "Esa herramienta no existe. Usa solo las herramientas disponibles."
	case errors.Is(err, tools.ErrInvalidArgs):
		if strings.Contains(err.Error(), "send_reminder") {
			return "Falta saber si el cliente debe recibir recordatorio. Pregúntale al usuario antes de agendar."
		}
		return fmt.Sprintf("Argumentos inválidos: %v. Pide al usuario el dato que falta.", err)
	}
	return err.Error()
}

// Window returns the last n messages of history, cut so it starts at a user
// message. A window never begins with an orphaned tool result, so it grows
// past n when the current turn alone is longer.
func Window(history []llm.Message, n int) []llm.Message {
	if n <= 0 || len(history) <= n {
		return history
	}
	start := len(history) - n
	for i := start; i < len(history); i++ {
		if history[i].Role == llm.RoleUser {
			return history[i:]
		}
	}
	for i := start - 1; i >= 0; i-- {
		if history[i].Role == llm.RoleUser {
			return history[i:]
		}
	}
	return history[start:]
}
