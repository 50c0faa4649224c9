// Package executor runs the tools the model calls. Every executor checks
// ownership and business rules itself; the model is never trusted for
// amounts, currencies, ids or dates.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/monitor-judicial/whatsapp-agent/internal/currency"
	"github.com/monitor-judicial/whatsapp-agent/internal/domain"
	"github.com/monitor-judicial/whatsapp-agent/internal/matcher"
	"github.com/monitor-judicial/whatsapp-agent/internal/store"
	"github.com/monitor-judicial/whatsapp-agent/internal/textnorm"
	"github.com/monitor-judicial/whatsapp-agent/internal/tools"
)

const (
	defaultMeetingMinutes = 60
	maxMeetingMinutes     = 24 * 60
	defaultReminderDays   = 7
	maxReminderDays       = 90
	defaultEventRangeDays = 30
)

const storeFailureMessage = "No pude consultar la base de datos en este momento. Intenta de nuevo en unos minutos."

// Options configures an Executor.
type Options struct {
	StoreTimeout    time.Duration
	DefaultLocation *time.Location
	Now             func() time.Time
}

// Executor runs tool calls on behalf of one acting user at a time.
type Executor struct {
	repo         store.Repository
	matcher      *matcher.Matcher
	detector     *currency.Detector
	storeTimeout time.Duration
	defaultLoc   *time.Location
	now          func() time.Time
}

// New creates an Executor.
func New(repo store.Repository, detector *currency.Detector, opts Options) *Executor {
	if opts.DefaultLocation == nil {
		opts.DefaultLocation = time.UTC
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Executor{
		repo:         repo,
		matcher:      matcher.New(repo),
		detector:     detector,
		storeTimeout: opts.StoreTimeout,
		defaultLoc:   opts.DefaultLocation,
		now:          opts.Now,
	}
}

// Location returns the timezone tool times are interpreted in for profile.
func (e *Executor) Location(profile *domain.UserProfile) *time.Location {
	return profile.Location(e.defaultLoc)
}

func (e *Executor) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.storeTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, e.storeTimeout)
}

func (e *Executor) storeFailure(tool string, profile *domain.UserProfile, err error) *Result {
	slog.Error("Tool store operation failed",
		"tool", tool,
		"user_id", profile.UserID,
		"error", err)
	r := fail(storeFailureMessage)
	r.Error = err.Error()
	if errors.Is(err, context.DeadlineExceeded) {
		r.Error = "store timeout"
	}
	return r
}

// Execute runs a tool. Mutating tools must only reach this point after the
// user confirmed them. userTexts are the user messages of the request the
// call answers, oldest first, and are used for currency detection.
func (e *Executor) Execute(ctx context.Context, profile *domain.UserProfile, args tools.Args, userTexts ...string) *Result {
	switch a := args.(type) {
	case *tools.SearchCasesArgs:
		return e.searchCases(ctx, profile, a)
	case *tools.GetCaseBalanceArgs:
		return e.getCaseBalance(ctx, profile, a)
	case *tools.AddPaymentArgs:
		return e.addPayment(ctx, profile, a, userTexts)
	case *tools.CreateMeetingArgs:
		return e.createMeeting(ctx, profile, a)
	case *tools.CheckClientPhoneArgs:
		return e.checkClientPhone(ctx, profile, a)
	case *tools.GetCalendarEventsArgs:
		return e.getCalendarEvents(ctx, profile, a)
	case *tools.GetUpcomingRemindersArgs:
		return e.getUpcomingReminders(ctx, profile, a)
	case *tools.DeleteMeetingArgs:
		return e.deleteMeeting(ctx, profile, a)
	case *tools.RescheduleMeetingArgs:
		return e.rescheduleMeeting(ctx, profile, a)
	}
	return fail(fmt.Sprintf("Herramienta no soportada: %T", args))
}

// Preview validates a mutating call without writing anything and describes
// what confirming it will do. A failed Result means the call must not be
// offered for confirmation. Preview may normalize args, e.g. to pin the
// currency the user actually typed.
func (e *Executor) Preview(ctx context.Context, profile *domain.UserProfile, args tools.Args, userTexts ...string) *Result {
	switch a := args.(type) {
	case *tools.AddPaymentArgs:
		c, r := e.validatePayment(ctx, profile, a, userTexts)
		if r != nil {
			return r
		}
		bal, err := e.balance(ctx, profile, c.ID)
		if err != nil {
			return e.storeFailure(tools.AddPayment, profile, err)
		}
		res := ok(fmt.Sprintf("Registrar un pago de *%s* en el caso de *%s* (expediente %s). Saldo actual: %s. Saldo después del pago: *%s*.",
			domain.FormatMoney(a.Amount, c.Currency), c.ClientName, c.CaseNumber,
			domain.FormatMoney(bal.Remaining(), c.Currency),
			domain.FormatMoney(bal.Remaining()-a.Amount, c.Currency)))
		res.CaseIDs = []string{c.ID}
		return res

	case *tools.CreateMeetingArgs:
		plan, r := e.planMeeting(ctx, profile, a)
		if r != nil {
			return r
		}
		res := ok("Agendar " + plan.describe(e.Location(profile)))
		if plan.event.CaseID != "" {
			res.CaseIDs = []string{plan.event.CaseID}
		}
		return res

	case *tools.DeleteMeetingArgs:
		ev, r := e.liveEvent(ctx, profile, a.EventID)
		if r != nil {
			return r
		}
		res := ok(fmt.Sprintf("Cancelar la reunión *%s* del %s.", ev.Title, FormatDateTime(ev.StartTime, e.Location(profile))))
		res.EventIDs = []string{ev.ID}
		return res

	case *tools.RescheduleMeetingArgs:
		ev, start, end, r := e.planReschedule(ctx, profile, a)
		if r != nil {
			return r
		}
		loc := e.Location(profile)
		res := ok(fmt.Sprintf("Mover la reunión *%s* del %s al *%s* (%s).",
			ev.Title, FormatDateTime(ev.StartTime, loc), FormatDateTime(start, loc), formatDuration(end.Sub(start))))
		res.EventIDs = []string{ev.ID}
		return res
	}
	return fail(fmt.Sprintf("%s no requiere confirmación", args.ToolName()))
}

func (e *Executor) ownedCase(ctx context.Context, profile *domain.UserProfile, caseID string) (*domain.Case, *Result) {
	if strings.TrimSpace(caseID) == "" {
		return nil, fail("Falta el ID del caso. Primero busca el caso por nombre del cliente.")
	}
	sctx, cancel := e.storeCtx(ctx)
	defer cancel()
	c, err := e.repo.GetCase(sctx, profile.UserID, caseID)
	if err != nil {
		return nil, e.storeFailure("get_case", profile, err)
	}
	if c == nil {
		return nil, fail("No encontré ese caso entre tus expedientes. Verifica el cliente e intenta de nuevo.")
	}
	return c, nil
}

func (e *Executor) balance(ctx context.Context, profile *domain.UserProfile, caseID string) (*domain.Balance, error) {
	sctx, cancel := e.storeCtx(ctx)
	defer cancel()
	bal, err := e.repo.GetBalance(sctx, profile.UserID, caseID)
	if err != nil {
		return nil, err
	}
	if bal == nil {
		return nil, fmt.Errorf("case %s: %w", caseID, store.ErrNotFound)
	}
	return bal, nil
}

func (e *Executor) searchCases(ctx context.Context, profile *domain.UserProfile, a *tools.SearchCasesArgs) *Result {
	sctx, cancel := e.storeCtx(ctx)
	defer cancel()

	res, err := e.matcher.Search(sctx, profile.UserID, a.ClientName)
	if errors.Is(err, matcher.ErrEmptyQuery) {
		return fail("Indica el nombre del cliente que quieres buscar.")
	}
	if err != nil {
		return e.storeFailure(tools.SearchCasesByClientName, profile, err)
	}

	out := &Result{
		Success:            len(res.Matches) > 0,
		Message:            res.Message,
		Data:               res.Matches,
		NeedsClarification: res.NeedsClarification,
	}
	for _, m := range res.Matches {
		out.CaseIDs = append(out.CaseIDs, m.Case.ID)
	}
	return out
}

func (e *Executor) getCaseBalance(ctx context.Context, profile *domain.UserProfile, a *tools.GetCaseBalanceArgs) *Result {
	c, r := e.ownedCase(ctx, profile, a.CaseID)
	if r != nil {
		return r
	}
	bal, err := e.balance(ctx, profile, c.ID)
	if err != nil {
		return e.storeFailure(tools.GetCaseBalance, profile, err)
	}

	res := ok(fmt.Sprintf("Caso de *%s* (expediente %s, %s):\nTotal cobrado: %s\nTotal pagado: %s\nSaldo pendiente: *%s*",
		c.ClientName, c.CaseNumber, c.Juzgado,
		domain.FormatMoney(bal.TotalCharged, bal.Currency),
		domain.FormatMoney(bal.TotalPaid, bal.Currency),
		domain.FormatMoney(bal.Remaining(), bal.Currency)))
	res.Data = bal
	res.CaseIDs = []string{c.ID}
	return res
}

func (e *Executor) validatePayment(ctx context.Context, profile *domain.UserProfile, a *tools.AddPaymentArgs, userTexts []string) (*domain.Case, *Result) {
	if a.Amount <= 0 {
		return nil, fail("El monto del pago debe ser mayor a cero.")
	}
	c, r := e.ownedCase(ctx, profile, a.CaseID)
	if r != nil {
		return nil, r
	}

	detected := e.detector.DetectStated(userTexts)
	if detected == domain.CurrencyNone {
		detected = domain.ParseCurrency(a.Currency)
	}
	if err := currency.ValidateMatch(detected, c.Currency); err != nil {
		res := fail("No puedo registrar el pago: " + err.Error() + ".")
		res.Error = "currency_mismatch"
		res.CaseIDs = []string{c.ID}
		return nil, res
	}
	a.Currency = string(c.Currency)
	return c, nil
}

func (e *Executor) addPayment(ctx context.Context, profile *domain.UserProfile, a *tools.AddPaymentArgs, userTexts []string) *Result {
	c, r := e.validatePayment(ctx, profile, a, userTexts)
	if r != nil {
		return r
	}

	loc := e.Location(profile)
	payment := &domain.Payment{
		CaseID:      c.ID,
		UserID:      profile.UserID,
		Amount:      a.Amount,
		PaymentDate: StartOfDay(e.now(), loc),
		Notes:       strings.TrimSpace(a.Notes),
	}

	sctx, cancel := e.storeCtx(ctx)
	defer cancel()
	receipt, err := e.repo.AddPayment(sctx, payment)
	if errors.Is(err, store.ErrNotFound) {
		return fail("No encontré ese caso entre tus expedientes.")
	}
	if err != nil {
		return e.storeFailure(tools.AddPayment, profile, err)
	}

	slog.Info("Payment recorded",
		"user_id", profile.UserID,
		"case_id", c.ID,
		"payment_id", receipt.Payment.ID,
		"amount", a.Amount,
		"currency", c.Currency)

	res := ok(fmt.Sprintf("Pago registrado: *%s* en el caso de *%s* (expediente %s), con fecha %s.\nSaldo anterior: %s\nSaldo actual: *%s*",
		domain.FormatMoney(a.Amount, receipt.Currency), c.ClientName, c.CaseNumber,
		FormatDate(payment.PaymentDate, loc),
		domain.FormatMoney(receipt.BalanceBefore, receipt.Currency),
		domain.FormatMoney(receipt.BalanceAfter, receipt.Currency)))
	res.Data = receipt
	res.CaseIDs = []string{c.ID}
	return res
}

// meetingPlan is a validated create_meeting call. clientSkipped is set when
// the user asked for a client reminder but the case has no phone.
type meetingPlan struct {
	event         *domain.CalendarEvent
	reminder      *domain.MeetingReminder
	clientSkipped bool
	lawyerNoPhone bool
}

func (p *meetingPlan) describe(loc *time.Location) string {
	var b strings.Builder
	fmt.Fprintf(&b, "*%s* el *%s* (%s)", p.event.Title, FormatDateTime(p.event.StartTime, loc), formatDuration(p.event.Duration()))
	if p.event.ClientName != "" {
		fmt.Fprintf(&b, " con %s", p.event.ClientName)
	}
	b.WriteString(".")
	switch {
	case p.lawyerNoPhone:
		b.WriteString(" No se programará recordatorio porque no tienes un teléfono registrado.")
	case p.reminder != nil && p.reminder.SendToClient:
		fmt.Fprintf(&b, " Recordatorio por WhatsApp para ti y para el cliente el %s.", FormatDateTime(p.reminder.ScheduledFor, loc))
	case p.reminder != nil:
		fmt.Fprintf(&b, " Recordatorio por WhatsApp para ti el %s.", FormatDateTime(p.reminder.ScheduledFor, loc))
	}
	if p.clientSkipped {
		b.WriteString(" El cliente no tiene teléfono registrado, así que no recibirá recordatorio.")
	}
	return b.String()
}

func (e *Executor) planMeeting(ctx context.Context, profile *domain.UserProfile, a *tools.CreateMeetingArgs) (*meetingPlan, *Result) {
	title := strings.TrimSpace(a.Title)
	if title == "" {
		return nil, fail("La reunión necesita un título.")
	}
	loc := e.Location(profile)
	start, err := ParseLocalTime(a.StartTime, loc)
	if err != nil {
		return nil, fail("No pude interpretar la fecha: " + err.Error())
	}
	if start.Before(e.now()) {
		return nil, fail(fmt.Sprintf("La fecha %s ya pasó. Indica una fecha futura.", FormatDateTime(start, loc)))
	}
	minutes := a.DurationMinutes
	if minutes == 0 {
		minutes = defaultMeetingMinutes
	}
	if minutes < 0 || minutes > maxMeetingMinutes {
		return nil, fail("La duración debe estar entre 1 minuto y 24 horas.")
	}

	plan := &meetingPlan{event: &domain.CalendarEvent{
		UserID:    profile.UserID,
		Title:     title,
		StartTime: start,
		EndTime:   start.Add(time.Duration(minutes) * time.Minute),
	}}

	var linked *domain.Case
	if strings.TrimSpace(a.CaseID) != "" {
		c, r := e.ownedCase(ctx, profile, a.CaseID)
		if r != nil {
			return nil, r
		}
		linked = c
		plan.event.CaseID = c.ID
		plan.event.ClientName = c.ClientName
	}

	if !profile.HasPhone() {
		plan.lawyerNoPhone = true
		return plan, nil
	}
	plan.reminder = &domain.MeetingReminder{
		UserID:       profile.UserID,
		ScheduledFor: domain.ReminderTimeFor(start),
		LawyerName:   profile.DisplayName(),
		LawyerPhone:  profile.Phone,
		Status:       domain.ReminderPending,
		EventTitle:   title,
		EventStart:   start,
	}
	if linked != nil {
		plan.reminder.ClientName = linked.ClientName
	}
	if a.SendReminder && linked != nil {
		if linked.HasPhone() {
			plan.reminder.ClientPhone = linked.Phone
			plan.reminder.SendToClient = true
		} else {
			plan.clientSkipped = true
		}
	}
	return plan, nil
}

func (e *Executor) createMeeting(ctx context.Context, profile *domain.UserProfile, a *tools.CreateMeetingArgs) *Result {
	plan, r := e.planMeeting(ctx, profile, a)
	if r != nil {
		return r
	}

	sctx, cancel := e.storeCtx(ctx)
	defer cancel()
	if err := e.repo.CreateEvent(sctx, plan.event, plan.reminder); err != nil {
		return e.storeFailure(tools.CreateMeeting, profile, err)
	}

	res := ok("Reunión agendada: " + plan.describe(e.Location(profile)))
	res.Data = map[string]any{"event": plan.event, "reminder": plan.reminder}
	res.EventIDs = []string{plan.event.ID}
	if plan.event.CaseID != "" {
		res.CaseIDs = []string{plan.event.CaseID}
	}
	return res
}

func (e *Executor) checkClientPhone(ctx context.Context, profile *domain.UserProfile, a *tools.CheckClientPhoneArgs) *Result {
	c, r := e.ownedCase(ctx, profile, a.CaseID)
	if r != nil {
		return r
	}
	var res *Result
	if c.HasPhone() {
		res = ok(fmt.Sprintf("El cliente *%s* tiene teléfono registrado, puede recibir el recordatorio.", c.ClientName))
	} else {
		res = ok(fmt.Sprintf("El cliente *%s* no tiene teléfono registrado. El recordatorio solo te llegará a ti.", c.ClientName))
	}
	res.Data = map[string]any{"has_phone": c.HasPhone(), "client_name": c.ClientName}
	res.CaseIDs = []string{c.ID}
	return res
}

func (e *Executor) getCalendarEvents(ctx context.Context, profile *domain.UserProfile, a *tools.GetCalendarEventsArgs) *Result {
	loc := e.Location(profile)
	from := StartOfDay(e.now(), loc)
	if a.StartDate != "" {
		d, err := ParseLocalDate(a.StartDate, loc)
		if err != nil {
			return fail(err.Error())
		}
		from = d
	}
	to := from.AddDate(0, 0, defaultEventRangeDays)
	if a.EndDate != "" {
		d, err := ParseLocalDate(a.EndDate, loc)
		if err != nil {
			return fail(err.Error())
		}
		to = d.AddDate(0, 0, 1)
	}
	if !to.After(from) {
		return fail("La fecha final debe ser posterior a la inicial.")
	}

	sctx, cancel := e.storeCtx(ctx)
	defer cancel()
	events, err := e.repo.ListEvents(sctx, profile.UserID, from, to)
	if err != nil {
		return e.storeFailure(tools.GetCalendarEvents, profile, err)
	}

	if terms := textnorm.Terms(a.ClientName); len(terms) > 0 {
		filtered := events[:0]
		for _, ev := range events {
			if textnorm.ContainsAll(ev.Title+" "+ev.ClientName, terms) {
				filtered = append(filtered, ev)
			}
		}
		events = filtered
	}

	if len(events) == 0 {
		msg := fmt.Sprintf("No tienes reuniones entre el %s y el %s", FormatDate(from, loc), FormatDate(to.AddDate(0, 0, -1), loc))
		if a.ClientName != "" {
			msg += " con " + a.ClientName
		}
		res := ok(msg + ".")
		res.Data = []any{}
		return res
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Tienes %d reunión(es):\n", len(events))
	res := &Result{Success: true, Data: events}
	for i, ev := range events {
		fmt.Fprintf(&b, "%d. *%s*, %s (%s)", i+1, ev.Title, FormatDateTime(ev.StartTime, loc), formatDuration(ev.Duration()))
		if ev.ClientName != "" {
			fmt.Fprintf(&b, " con %s", ev.ClientName)
		}
		b.WriteString("\n")
		res.EventIDs = append(res.EventIDs, ev.ID)
		if ev.CaseID != "" {
			res.CaseIDs = append(res.CaseIDs, ev.CaseID)
		}
	}
	res.Message = strings.TrimRight(b.String(), "\n")
	return res
}

func (e *Executor) getUpcomingReminders(ctx context.Context, profile *domain.UserProfile, a *tools.GetUpcomingRemindersArgs) *Result {
	days := a.DaysAhead
	if days == 0 {
		days = defaultReminderDays
	}
	if days < 0 || days > maxReminderDays {
		return fail(fmt.Sprintf("Puedo revisar entre 1 y %d días.", maxReminderDays))
	}

	now := e.now()
	sctx, cancel := e.storeCtx(ctx)
	defer cancel()
	reminders, err := e.repo.ListUpcomingReminders(sctx, profile.UserID, now, now.AddDate(0, 0, days))
	if err != nil {
		return e.storeFailure(tools.GetUpcomingReminders, profile, err)
	}

	if len(reminders) == 0 {
		res := ok(fmt.Sprintf("No tienes recordatorios pendientes en los próximos %d días.", days))
		res.Data = []any{}
		return res
	}

	loc := e.Location(profile)
	var b strings.Builder
	fmt.Fprintf(&b, "Recordatorios pendientes en los próximos %d días:\n", days)
	res := &Result{Success: true, Data: reminders}
	for i, r := range reminders {
		fmt.Fprintf(&b, "%d. *%s*, %s. Se envía el %s", i+1, r.EventTitle,
			FormatDateTime(r.EventStart, loc), FormatDateTime(r.ScheduledFor, loc))
		if r.SendToClient {
			fmt.Fprintf(&b, ", también a %s", r.ClientName)
		}
		b.WriteString("\n")
		res.EventIDs = append(res.EventIDs, r.EventID)
	}
	res.Message = strings.TrimRight(b.String(), "\n")
	return res
}

func (e *Executor) liveEvent(ctx context.Context, profile *domain.UserProfile, eventID string) (*domain.CalendarEvent, *Result) {
	if strings.TrimSpace(eventID) == "" {
		return nil, fail("Falta el ID de la reunión. Primero consulta el calendario.")
	}
	sctx, cancel := e.storeCtx(ctx)
	defer cancel()
	ev, err := e.repo.GetEvent(sctx, profile.UserID, eventID)
	if err != nil {
		return nil, e.storeFailure("get_event", profile, err)
	}
	if ev == nil || ev.IsDeleted() {
		return nil, fail("No encontré esa reunión en tu calendario. Consulta tus reuniones e intenta de nuevo.")
	}
	return ev, nil
}

func (e *Executor) deleteMeeting(ctx context.Context, profile *domain.UserProfile, a *tools.DeleteMeetingArgs) *Result {
	ev, r := e.liveEvent(ctx, profile, a.EventID)
	if r != nil {
		return r
	}

	sctx, cancel := e.storeCtx(ctx)
	defer cancel()
	cancelled, err := e.repo.SoftDeleteEvent(sctx, profile.UserID, ev.ID, e.now())
	if errors.Is(err, store.ErrNotFound) {
		return fail("Esa reunión ya no existe o ya fue cancelada.")
	}
	if err != nil {
		return e.storeFailure(tools.DeleteMeeting, profile, err)
	}

	msg := fmt.Sprintf("Reunión cancelada: *%s* del %s.", ev.Title, FormatDateTime(ev.StartTime, e.Location(profile)))
	if cancelled > 0 {
		msg += " También cancelé su recordatorio."
	}
	res := ok(msg)
	res.Data = map[string]any{"event_id": ev.ID, "reminders_cancelled": cancelled}
	res.EventIDs = []string{ev.ID}
	return res
}

func (e *Executor) planReschedule(ctx context.Context, profile *domain.UserProfile, a *tools.RescheduleMeetingArgs) (*domain.CalendarEvent, time.Time, time.Time, *Result) {
	ev, r := e.liveEvent(ctx, profile, a.EventID)
	if r != nil {
		return nil, time.Time{}, time.Time{}, r
	}
	loc := e.Location(profile)
	start, err := ParseLocalTime(a.NewStartTime, loc)
	if err != nil {
		return nil, time.Time{}, time.Time{}, fail("No pude interpretar la nueva fecha: " + err.Error())
	}
	if start.Before(e.now()) {
		return nil, time.Time{}, time.Time{}, fail(fmt.Sprintf("La fecha %s ya pasó. Indica una fecha futura.", FormatDateTime(start, loc)))
	}

	duration := ev.Duration()
	if a.NewDurationMinutes != 0 {
		if a.NewDurationMinutes < 0 || a.NewDurationMinutes > maxMeetingMinutes {
			return nil, time.Time{}, time.Time{}, fail("La duración debe estar entre 1 minuto y 24 horas.")
		}
		duration = time.Duration(a.NewDurationMinutes) * time.Minute
	}
	return ev, start, start.Add(duration), nil
}

func (e *Executor) rescheduleMeeting(ctx context.Context, profile *domain.UserProfile, a *tools.RescheduleMeetingArgs) *Result {
	ev, start, end, r := e.planReschedule(ctx, profile, a)
	if r != nil {
		return r
	}

	sctx, cancel := e.storeCtx(ctx)
	defer cancel()
	reminder, err := e.repo.RescheduleEvent(sctx, profile.UserID, ev.ID, start, end)
	if errors.Is(err, store.ErrNotFound) {
		return fail("Esa reunión ya no existe o fue cancelada.")
	}
	if err != nil {
		return e.storeFailure(tools.RescheduleMeeting, profile, err)
	}

	loc := e.Location(profile)
	msg := fmt.Sprintf("Reunión reprogramada: *%s* ahora es el *%s* (%s).",
		ev.Title, FormatDateTime(start, loc), formatDuration(end.Sub(start)))
	if reminder != nil {
		msg += fmt.Sprintf(" El recordatorio se enviará el %s.", FormatDateTime(reminder.ScheduledFor, loc))
	}
	res := ok(msg)
	res.Data = map[string]any{"event_id": ev.ID, "start_time": start, "end_time": end, "reminder": reminder}
	res.EventIDs = []string{ev.ID}
	return res
}
