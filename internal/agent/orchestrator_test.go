package agent

import (
	"context"
	"errors"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/monitor-judicial/whatsapp-agent/internal/domain"
	"github.com/monitor-judicial/whatsapp-agent/internal/llm"
	"github.com/monitor-judicial/whatsapp-agent/internal/tools"
	"google.golang.org/api/googleapi"
)

func caseIDArg(amount float64, cur string) func(t *testing.T, req *llm.Request) map[string]any {
	return func(t *testing.T, req *llm.Request) map[string]any {
		args := map[string]any{"case_id": firstID(keyCaseIDs)(t, req), "amount": amount}
		if cur != "" {
			args["currency"] = cur
		}
		return args
	}
}

func TestTurn_PaymentRequiresConfirmation(t *testing.T) {
	f := newFixture(t)
	c := f.seedCase(t, &domain.Case{CaseNumber: "123/2025", Juzgado: "Juzgado 3o Civil", ClientName: "Juan Perez", TotalAmountCharged: 1000, Currency: domain.CurrencyUSD})

	p := newScripted(t, "gemini",
		call(tools.SearchCasesByClientName, map[string]any{"client_name": "Juan Perez"}),
		callWith(tools.AddPayment, caseIDArg(200, "USD")),
		say("Voy a registrar un pago de $200.00 USD. ¿Confirmas?"),
	)
	o := f.orchestrator(p)
	ctx := context.Background()

	first, err := o.Turn(ctx, f.profile, nil, llm.UserText("Agregale un pago de $200 dolares a Juan Perez"))
	if err != nil {
		t.Fatalf("Turn: %v", err)
	}
	if first.State != StateAwaitingConfirmation {
		t.Errorf("State = %s, want %s", first.State, StateAwaitingConfirmation)
	}
	if got := f.remaining(t, c.ID); got != 1000 {
		t.Fatalf("payment written before confirmation: remaining = %v", got)
	}
	pending := lastToolResult(t, first.History)
	if pending.Response[keyStatus] != statusPending {
		t.Fatalf("last tool result = %+v, want pending", pending.Response)
	}

	p.add(say("Listo, registré el pago. Saldo pendiente: $800.00 USD."))
	second, err := o.Turn(ctx, f.profile, first.History, llm.UserText("sí"))
	if err != nil {
		t.Fatalf("Turn: %v", err)
	}
	if got := f.remaining(t, c.ID); got != 800 {
		t.Errorf("remaining = %v, want 800", got)
	}
	if second.State != StateAwaitingInput {
		t.Errorf("State = %s, want %s", second.State, StateAwaitingInput)
	}
	confirmed := toolResults(second.History, tools.AddPayment)
	if last := confirmed[len(confirmed)-1]; last.Response[keyStatus] != statusConfirmed || !strings.HasPrefix(last.CallID, "confirm_") {
		t.Errorf("confirmation not recorded: %+v", last)
	}
	if len(second.ToolsUsed) != 1 || second.ToolsUsed[0] != tools.AddPayment {
		t.Errorf("ToolsUsed = %v", second.ToolsUsed)
	}
}

func TestTurn_CurrencyMismatchBlocksPayment(t *testing.T) {
	f := newFixture(t)
	c := f.seedCase(t, &domain.Case{CaseNumber: "77/2025", ClientName: "Juan Perez", TotalAmountCharged: 5000, Currency: domain.CurrencyMXN})

	p := newScripted(t, "gemini",
		call(tools.SearchCasesByClientName, map[string]any{"client_name": "Juan Perez"}),
		callWith(tools.AddPayment, caseIDArg(200, "")),
		say("No puedo registrar ese pago porque el caso se cobra en pesos."),
	)
	res, err := f.orchestrator(p).Turn(context.Background(), f.profile, nil, llm.UserText("Agregale un pago de $200 dolares a Juan Perez"))
	if err != nil {
		t.Fatalf("Turn: %v", err)
	}

	r := lastToolResult(t, res.History)
	if r.Response["error"] != "currency_mismatch" {
		t.Fatalf("tool result = %+v, want currency_mismatch", r.Response)
	}
	msg, _ := r.Response["message"].(string)
	if !strings.Contains(msg, "USD") || !strings.Contains(msg, "MXN") {
		t.Errorf("message %q should name both currencies", msg)
	}
	if res.State == StateAwaitingConfirmation || Replay(res.History).Pending != nil {
		t.Error("mismatched payment must not be pending")
	}
	if got := f.remaining(t, c.ID); got != 5000 {
		t.Errorf("remaining = %v, want 5000", got)
	}
}

func TestTurn_CurrencyCarriesAcrossClarification(t *testing.T) {
	tests := []struct {
		name        string
		answer      string
		wantPending bool
	}{
		{"currency stated before the question", "el primero, expediente 1/2025", false},
		{"user corrects the currency", "el primero, son pesos", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			first := f.seedCase(t, &domain.Case{CaseNumber: "1/2025", ClientName: "Juan Perez", TotalAmountCharged: 1000, Currency: domain.CurrencyMXN})
			second := f.seedCase(t, &domain.Case{CaseNumber: "2/2025", ClientName: "Juan Perez Gomez", TotalAmountCharged: 2000, Currency: domain.CurrencyMXN})

			p := newScripted(t, "gemini",
				call(tools.SearchCasesByClientName, map[string]any{"client_name": "Juan Perez"}),
				say("Encontré dos casos, ¿a cuál te refieres?"),
			)
			o := f.orchestrator(p)
			ctx := context.Background()

			asked, err := o.Turn(ctx, f.profile, nil, llm.UserText("Agregale un pago de $200 dolares a Juan Perez"))
			if err != nil {
				t.Fatalf("Turn: %v", err)
			}

			p.add(
				call(tools.AddPayment, map[string]any{"case_id": first.ID, "amount": 200}),
				say("Listo."),
			)
			answered, err := o.Turn(ctx, f.profile, asked.History, llm.UserText(tt.answer))
			if err != nil {
				t.Fatalf("Turn: %v", err)
			}
			r := lastToolResult(t, answered.History)
			if got := Replay(answered.History).Pending != nil; got != tt.wantPending {
				t.Fatalf("pending = %v, want %v; tool result = %+v", got, tt.wantPending, r.Response)
			}
			if !tt.wantPending && r.Response["error"] != "currency_mismatch" {
				t.Fatalf("tool result = %+v, want currency_mismatch", r.Response)
			}
			if tt.wantPending {
				return
			}

			p.add(say("No hay nada pendiente."))
			if _, err := o.Turn(ctx, f.profile, answered.History, llm.UserText("sí")); err != nil {
				t.Fatalf("Turn: %v", err)
			}
			if got := f.remaining(t, first.ID); got != 1000 {
				t.Errorf("dollar payment posted to peso ledger: remaining = %v", got)
			}
			if got := f.remaining(t, second.ID); got != 2000 {
				t.Errorf("remaining = %v, want 2000", got)
			}
		})
	}
}

func TestTurn_DeleteNeedsSurfacedEvent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	start := time.Date(2026, time.January, 22, 12, 0, 0, 0, testZone)
	ev := &domain.CalendarEvent{UserID: f.profile.UserID, Title: "Audiencia Juan Perez", StartTime: start, EndTime: start.Add(time.Hour)}
	if err := f.store.CreateEvent(ctx, ev, nil); err != nil {
		t.Fatalf("CreateEvent: %v", err)
	}

	p := newScripted(t, "gemini",
		call(tools.DeleteMeeting, map[string]any{"event_id": "evt-made-up"}),
		call(tools.GetCalendarEvents, map[string]any{"client_name": "Juan"}),
		callWith(tools.DeleteMeeting, func(t *testing.T, req *llm.Request) map[string]any {
			return map[string]any{"event_id": firstID(keyEventIDs)(t, req)}
		}),
		say("¿Confirmas que cancelo la audiencia del jueves?"),
	)
	o := f.orchestrator(p)

	first, err := o.Turn(ctx, f.profile, nil, llm.UserText("Cancela mi reunión con Juan"))
	if err != nil {
		t.Fatalf("Turn: %v", err)
	}
	deletes := toolResults(first.History, tools.DeleteMeeting)
	if len(deletes) != 2 {
		t.Fatalf("delete results = %d, want 2", len(deletes))
	}
	if deletes[0].Response["error"] != "unknown_event_id" {
		t.Errorf("fabricated id result = %+v", deletes[0].Response)
	}
	if deletes[1].Response[keyStatus] != statusPending {
		t.Errorf("surfaced id result = %+v, want pending", deletes[1].Response)
	}
	if got, _ := f.store.GetEvent(ctx, f.profile.UserID, ev.ID); got.IsDeleted() {
		t.Fatal("event deleted before confirmation")
	}

	p.add(say("Listo, cancelé la audiencia."))
	if _, err := o.Turn(ctx, f.profile, first.History, llm.UserText("Sí, cancélala")); err != nil {
		t.Fatalf("Turn: %v", err)
	}
	got, err := f.store.GetEvent(ctx, f.profile.UserID, ev.ID)
	if err != nil || got == nil || !got.IsDeleted() {
		t.Errorf("event after confirmation = %+v, %v; want deleted", got, err)
	}
}

func TestTurn_FallsBackWhenPrimaryOverloaded(t *testing.T) {
	f := newFixture(t)
	primary := newScripted(t, "gemini", fail(&googleapi.Error{Code: 429, Message: "quota"}))
	fallback := newScripted(t, "openai", say("Hola, ¿en qué te ayudo?"))

	res, err := f.orchestrator(primary, fallback).Turn(context.Background(), f.profile, nil, llm.UserText("hola"))
	if err != nil {
		t.Fatalf("Turn: %v", err)
	}
	if !res.UsedFallback || res.Provider != "openai" {
		t.Errorf("Provider = %q, UsedFallback = %v", res.Provider, res.UsedFallback)
	}
	if len(fallback.requests) != 1 || len(fallback.requests[0].History) != 1 {
		t.Errorf("fallback should receive the same history")
	}
}

func TestTurn_PrematureMutationIsNeverExecuted(t *testing.T) {
	f := newFixture(t)
	c := f.seedCase(t, &domain.Case{CaseNumber: "1/2026", ClientName: "Maria Lopez", TotalAmountCharged: 3000, Currency: domain.CurrencyMXN})

	p := newScripted(t, "gemini",
		call(tools.AddPayment, map[string]any{"case_id": c.ID, "amount": 500.0}),
		say("Primero necesito buscar el caso."),
	)
	res, err := f.orchestrator(p).Turn(context.Background(), f.profile, nil, llm.UserText("Registra 500 pesos a Maria Lopez"))
	if err != nil {
		t.Fatalf("Turn: %v", err)
	}
	if r := lastToolResult(t, res.History); r.Response["error"] != "unknown_case_id" {
		t.Errorf("tool result = %+v, want unknown_case_id", r.Response)
	}
	if got := f.remaining(t, c.ID); got != 3000 {
		t.Errorf("remaining = %v, want 3000", got)
	}

	// A confirmation without a pending action does nothing either.
	p.add(say("No hay nada pendiente."))
	if _, err := f.orchestrator(p).Turn(context.Background(), f.profile, res.History, llm.UserText("sí")); err != nil {
		t.Fatalf("Turn: %v", err)
	}
	if got := f.remaining(t, c.ID); got != 3000 {
		t.Errorf("remaining = %v, want 3000", got)
	}
}

func TestTurn_RejectAndDiscard(t *testing.T) {
	tests := []struct {
		reply  string
		status string
		state  State
	}{
		{"no", statusRejected, StateRejected},
		{"mejor no", statusRejected, StateRejected},
		{"¿cuánto debe Pedro?", statusDiscarded, StateToolExecuted},
		{"sí, pero que sean 300", statusDiscarded, StateToolExecuted},
	}
	for _, tt := range tests {
		t.Run(tt.reply, func(t *testing.T) {
			f := newFixture(t)
			c := f.seedCase(t, &domain.Case{CaseNumber: "9/2025", ClientName: "Juan Perez", TotalAmountCharged: 1000, Currency: domain.CurrencyMXN})
			var stateAfterResolve State
			p := newScripted(t, "gemini",
				call(tools.SearchCasesByClientName, map[string]any{"client_name": "Juan Perez"}),
				callWith(tools.AddPayment, caseIDArg(200, "")),
				say("¿Confirmas el pago?"),
				func(t *testing.T, req *llm.Request) (*llm.Response, error) {
					stateAfterResolve = Replay(req.History).State
					return &llm.Response{Text: "Entendido."}, nil
				},
			)
			o := f.orchestrator(p)
			first, err := o.Turn(context.Background(), f.profile, nil, llm.UserText("abona 200 pesos a Juan Perez"))
			if err != nil {
				t.Fatalf("Turn: %v", err)
			}
			second, err := o.Turn(context.Background(), f.profile, first.History, llm.UserText(tt.reply))
			if err != nil {
				t.Fatalf("Turn: %v", err)
			}
			results := toolResults(second.History, tools.AddPayment)
			if got := results[len(results)-1].Response[keyStatus]; got != tt.status {
				t.Errorf("status = %v, want %s", got, tt.status)
			}
			if stateAfterResolve != tt.state {
				t.Errorf("state after resolve = %s, want %s", stateAfterResolve, tt.state)
			}
			if got := f.remaining(t, c.ID); got != 1000 {
				t.Errorf("remaining = %v, want 1000", got)
			}
			if Replay(second.History).Pending != nil {
				t.Error("pending action survived the reply")
			}
		})
	}
}

func TestTurn_OnePendingActionPerTurn(t *testing.T) {
	f := newFixture(t)
	c := f.seedCase(t, &domain.Case{CaseNumber: "5/2025", ClientName: "Juan Perez", TotalAmountCharged: 1000, Currency: domain.CurrencyMXN})

	twoPayments := func(t *testing.T, req *llm.Request) (*llm.Response, error) {
		id := firstID(keyCaseIDs)(t, req)
		return &llm.Response{ToolCalls: []llm.ToolCall{
			{ID: "a", Name: tools.AddPayment, Args: map[string]any{"case_id": id, "amount": 100.0}},
			{ID: "b", Name: tools.AddPayment, Args: map[string]any{"case_id": id, "amount": 200.0}},
		}}, nil
	}
	p := newScripted(t, "gemini",
		call(tools.SearchCasesByClientName, map[string]any{"client_name": "Juan Perez"}),
		twoPayments,
		say("¿Confirmas el primer pago?"),
	)
	o := f.orchestrator(p)
	first, err := o.Turn(context.Background(), f.profile, nil, llm.UserText("registra 100 y 200 pesos a Juan Perez"))
	if err != nil {
		t.Fatalf("Turn: %v", err)
	}
	results := toolResults(first.History, tools.AddPayment)
	if len(results) != 2 {
		t.Fatalf("results = %d, want 2", len(results))
	}
	if results[0].Response[keyStatus] != statusPending || results[1].Response["error"] != "pending_action_exists" {
		t.Errorf("results = %+v / %+v", results[0].Response, results[1].Response)
	}

	p.add(say("Listo."))
	if _, err := o.Turn(context.Background(), f.profile, first.History, llm.UserText("si")); err != nil {
		t.Fatalf("Turn: %v", err)
	}
	if got := f.remaining(t, c.ID); got != 900 {
		t.Errorf("remaining = %v, want 900", got)
	}
}

func TestTurn_AmbiguousSearchBlocksMutation(t *testing.T) {
	f := newFixture(t)
	f.seedCase(t, &domain.Case{CaseNumber: "1/2025", ClientName: "Juan Perez", TotalAmountCharged: 1000, Currency: domain.CurrencyMXN})
	f.seedCase(t, &domain.Case{CaseNumber: "2/2025", ClientName: "Juan Perez Gomez", TotalAmountCharged: 2000, Currency: domain.CurrencyMXN})

	p := newScripted(t, "gemini",
		call(tools.SearchCasesByClientName, map[string]any{"client_name": "Juan Perez"}),
		callWith(tools.AddPayment, caseIDArg(100, "")),
		say("Encontré dos casos, ¿a cuál te refieres?"),
	)
	res, err := f.orchestrator(p).Turn(context.Background(), f.profile, nil, llm.UserText("abona 100 pesos a Juan Perez"))
	if err != nil {
		t.Fatalf("Turn: %v", err)
	}
	if r := lastToolResult(t, res.History); r.Response["error"] != "needs_clarification" {
		t.Errorf("tool result = %+v, want needs_clarification", r.Response)
	}
	if Replay(res.History).Pending != nil {
		t.Error("ambiguous payment must not be pending")
	}
}

func TestTurn_CreateMeetingRequiresReminderAnswer(t *testing.T) {
	f := newFixture(t)
	p := newScripted(t, "gemini",
		call(tools.CreateMeeting, map[string]any{"title": "Junta", "start_time": "2026-01-21T10:00:00"}),
		say("¿Quieres que le envíe recordatorio al cliente?"),
	)
	res, err := f.orchestrator(p).Turn(context.Background(), f.profile, nil, llm.UserText("agenda una junta mañana a las 10"))
	if err != nil {
		t.Fatalf("Turn: %v", err)
	}
	r := lastToolResult(t, res.History)
	if r.Response[keyStatus] != statusBlocked {
		t.Fatalf("tool result = %+v, want blocked", r.Response)
	}
	if msg, _ := r.Response["message"].(string); !strings.Contains(msg, "recordatorio") {
		t.Errorf("message = %q", msg)
	}
}

func TestTurn_ClientPhoneNotCheckedAfterMeetingConfirmed(t *testing.T) {
	f := newFixture(t)
	c := f.seedCase(t, &domain.Case{CaseNumber: "9/2025", ClientName: "Maria Lopez", TotalAmountCharged: 3000, Currency: domain.CurrencyMXN, Phone: "+525598765432"})

	meeting := map[string]any{"title": "Junta con Maria Lopez", "start_time": "2026-01-23T10:00:00", "case_id": c.ID, "send_reminder": true}
	p := newScripted(t, "gemini",
		call(tools.SearchCasesByClientName, map[string]any{"client_name": "Maria Lopez"}),
		call(tools.CheckClientPhone, map[string]any{"case_id": c.ID}),
		call(tools.CreateMeeting, meeting),
		say("Voy a agendar la junta. ¿Confirmas?"),
	)
	o := f.orchestrator(p)
	ctx := context.Background()

	proposed, err := o.Turn(ctx, f.profile, nil, llm.UserText("agenda una junta con Maria Lopez el viernes a las 10 y avísale"))
	if err != nil {
		t.Fatalf("Turn: %v", err)
	}
	if checks := toolResults(proposed.History, tools.CheckClientPhone); len(checks) != 1 || checks[0].Response["success"] != true {
		t.Fatalf("phone check before proposing = %+v", checks)
	}

	p.add(
		call(tools.CheckClientPhone, map[string]any{"case_id": c.ID}),
		say("Listo, la junta quedó agendada."),
	)
	confirmed, err := o.Turn(ctx, f.profile, proposed.History, llm.UserText("sí"))
	if err != nil {
		t.Fatalf("Turn: %v", err)
	}
	meetings := toolResults(confirmed.History, tools.CreateMeeting)
	if last := meetings[len(meetings)-1]; last.Response[keyStatus] != statusConfirmed {
		t.Fatalf("create_meeting result = %+v, want confirmed", last.Response)
	}
	checks := toolResults(confirmed.History, tools.CheckClientPhone)
	last := checks[len(checks)-1]
	if last.Response[keyStatus] != statusBlocked || last.Response["error"] != "meeting_already_confirmed" {
		t.Errorf("phone check after confirmation = %+v, want blocked", last.Response)
	}
}

func TestTurn_IterationLimit(t *testing.T) {
	f := newFixture(t)
	var steps []step
	for i := 0; i < DefaultConfig().MaxIterations; i++ {
		steps = append(steps, call(tools.GetUpcomingReminders, map[string]any{}))
	}
	p := newScripted(t, "gemini", steps...)

	res, err := f.orchestrator(p).Turn(context.Background(), f.profile, nil, llm.UserText("¿qué recordatorios tengo?"))
	if err != nil {
		t.Fatalf("Turn: %v", err)
	}
	if res.Reply != exhaustedReply {
		t.Errorf("Reply = %q", res.Reply)
	}
	if len(p.requests) != DefaultConfig().MaxIterations {
		t.Errorf("model calls = %d", len(p.requests))
	}
}

func TestTurn_PreviewAppendedWhenModelOmitsQuestion(t *testing.T) {
	f := newFixture(t)
	f.seedCase(t, &domain.Case{CaseNumber: "3/2025", ClientName: "Juan Perez", TotalAmountCharged: 1000, Currency: domain.CurrencyMXN})
	p := newScripted(t, "gemini",
		call(tools.SearchCasesByClientName, map[string]any{"client_name": "Juan Perez"}),
		callWith(tools.AddPayment, caseIDArg(250, "")),
		say("## Pago\n\n**Listo** para registrar."),
	)
	res, err := f.orchestrator(p).Turn(context.Background(), f.profile, nil, llm.UserText("abona 250 pesos a Juan Perez"))
	if err != nil {
		t.Fatalf("Turn: %v", err)
	}
	if strings.Contains(res.Reply, "**") || strings.Contains(res.Reply, "#") {
		t.Errorf("reply not formatted for WhatsApp: %q", res.Reply)
	}
	if !strings.Contains(res.Reply, "¿Confirmas?") || !strings.Contains(res.Reply, "$750.00 MXN") {
		t.Errorf("reply should carry the preview: %q", res.Reply)
	}
}

func TestTurn_ModelFailureAfterConfirmedAction(t *testing.T) {
	f := newFixture(t)
	c := f.seedCase(t, &domain.Case{CaseNumber: "4/2025", ClientName: "Juan Perez", TotalAmountCharged: 1000, Currency: domain.CurrencyMXN})
	p := newScripted(t, "gemini",
		call(tools.SearchCasesByClientName, map[string]any{"client_name": "Juan Perez"}),
		callWith(tools.AddPayment, caseIDArg(100, "")),
		say("¿Confirmas?"),
		fail(errors.New("invalid request")),
	)
	o := f.orchestrator(p)
	first, err := o.Turn(context.Background(), f.profile, nil, llm.UserText("abona 100 pesos a Juan Perez"))
	if err != nil {
		t.Fatalf("Turn: %v", err)
	}
	second, err := o.Turn(context.Background(), f.profile, first.History, llm.UserText("sí"))
	if err != nil {
		t.Fatalf("Turn: %v", err)
	}
	if !strings.Contains(second.Reply, "$900.00 MXN") {
		t.Errorf("Reply = %q, want the executor's receipt", second.Reply)
	}
	if got := f.remaining(t, c.ID); got != 900 {
		t.Errorf("remaining = %v, want 900", got)
	}
	if Replay(second.History).Pending != nil {
		t.Error("confirmed action still pending")
	}
}

func TestReplay_SurvivesCodecRoundTrip(t *testing.T) {
	f := newFixture(t)
	c := f.seedCase(t, &domain.Case{CaseNumber: "6/2025", ClientName: "Juan Perez", TotalAmountCharged: 1000, Currency: domain.CurrencyUSD})
	p := newScripted(t, "gemini",
		call(tools.SearchCasesByClientName, map[string]any{"client_name": "Juan Perez"}),
		callWith(tools.AddPayment, caseIDArg(200, "USD")),
		say("¿Confirmas?"),
	)
	o := f.orchestrator(p)
	first, err := o.Turn(context.Background(), f.profile, nil, llm.UserText("abona 200 dolares a Juan Perez"))
	if err != nil {
		t.Fatalf("Turn: %v", err)
	}

	for _, codec := range []llm.Codec{llm.GeminiCodec{}, llm.OpenAICodec{}} {
		data, err := codec.Encode(first.History)
		if err != nil {
			t.Fatalf("%s Encode: %v", codec.Name(), err)
		}
		decoded, err := codec.Decode(data)
		if err != nil {
			t.Fatalf("%s Decode: %v", codec.Name(), err)
		}
		snap := Replay(decoded)
		if snap.State != StateAwaitingConfirmation || snap.Pending == nil || snap.Pending.Tool != tools.AddPayment {
			t.Fatalf("%s replay = %+v", codec.Name(), snap)
		}
		if !snap.CaseSurfaced(c.ID) {
			t.Errorf("%s replay lost surfaced case ids", codec.Name())
		}
		args, err := snap.Pending.Parse()
		if err != nil {
			t.Fatalf("%s pending Parse: %v", codec.Name(), err)
		}
		if pay := args.(*tools.AddPaymentArgs); pay.Amount != 200 || pay.Currency != "USD" {
			t.Errorf("%s pending args = %+v", codec.Name(), pay)
		}
	}

	decoded, _ := llm.GeminiCodec{}.Decode(mustEncode(t, first.History))
	p.add(say("Listo."))
	if _, err := o.Turn(context.Background(), f.profile, decoded, llm.UserText("sí")); err != nil {
		t.Fatalf("Turn: %v", err)
	}
	if got := f.remaining(t, c.ID); got != 800 {
		t.Errorf("remaining = %v, want 800", got)
	}
}

func mustEncode(t *testing.T, history []llm.Message) []byte {
	t.Helper()
	data, err := llm.GeminiCodec{}.Encode(history)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	return data
}

func TestWindow(t *testing.T) {
	history := []llm.Message{
		llm.UserText("uno"),
		{Role: llm.RoleModel, ToolCalls: []llm.ToolCall{{ID: "1", Name: tools.GetUpcomingReminders}}},
		{Role: llm.RoleTool, ToolResults: []llm.ToolResult{{CallID: "1", Name: tools.GetUpcomingReminders}}},
		{Role: llm.RoleModel, Text: "a"},
		llm.UserText("dos"),
		{Role: llm.RoleModel, Text: "b"},
	}

	if got := Window(history, 10); len(got) != len(history) {
		t.Errorf("short history should be returned whole, got %d", len(got))
	}
	if got := Window(history, 3); len(got) != 2 || got[0].Text != "dos" {
		t.Errorf("Window(3) = %+v", got)
	}
	// The only user message before the cut is kept so no tool result is orphaned.
	if got := Window(history[:4], 2); len(got) != 4 || got[0].Role != llm.RoleUser {
		t.Errorf("Window(2) = %+v", got)
	}
}

func TestSnapshot_UserTextsStartAtLastResolution(t *testing.T) {
	resolution := func(status string) []llm.Message {
		call := llm.ToolCall{ID: "confirm_x", Name: tools.AddPayment, Args: map[string]any{}}
		return []llm.Message{
			{Role: llm.RoleModel, ToolCalls: []llm.ToolCall{call}},
			{Role: llm.RoleTool, ToolResults: []llm.ToolResult{{CallID: call.ID, Name: call.Name, Response: map[string]any{keyStatus: status}}}},
		}
	}

	history := []llm.Message{
		llm.UserText("pago de 200 dólares a Juan"),
		{Role: llm.RoleModel, Text: "¿Cuál caso?"},
		llm.UserText("el primero"),
	}
	if got := Replay(history).UserTexts(); len(got) != 2 {
		t.Fatalf("UserTexts = %q, want both messages", got)
	}

	for _, status := range []string{statusConfirmed, statusRejected, statusDiscarded} {
		h := append(slices.Clone(history), llm.UserText("sí"))
		h = append(h, resolution(status)...)
		h = append(h, llm.Message{Role: llm.RoleModel, Text: "Listo."}, llm.UserText("ahora 100 a Pedro"))
		got := Replay(h).UserTexts()
		if len(got) != 2 || got[0] != "sí" || got[1] != "ahora 100 a Pedro" {
			t.Errorf("%s: UserTexts = %q", status, got)
		}
	}
}
