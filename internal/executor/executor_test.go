package executor

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/monitor-judicial/whatsapp-agent/internal/currency"
	"github.com/monitor-judicial/whatsapp-agent/internal/domain"
	"github.com/monitor-judicial/whatsapp-agent/internal/store"
	"github.com/monitor-judicial/whatsapp-agent/internal/tools"
)

var testZone = time.FixedZone("CST", -6*3600)

func testNow() time.Time {
	return time.Date(2026, time.January, 20, 10, 0, 0, 0, testZone)
}

type fixture struct {
	store  *store.SQLiteStore
	exec   *Executor
	lawyer *domain.UserProfile
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLite: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	lawyer := &domain.UserProfile{UserID: "u1", FullName: "Lic. Ana Ruiz", Phone: "+525512345678"}
	if err := s.UpsertUserProfile(context.Background(), lawyer); err != nil {
		t.Fatalf("UpsertUserProfile: %v", err)
	}

	exec := New(s, currency.NewDetector(domain.CurrencyMXN), Options{
		StoreTimeout:    time.Second,
		DefaultLocation: testZone,
		Now:             testNow,
	})
	return &fixture{store: s, exec: exec, lawyer: lawyer}
}

func (f *fixture) seedCase(t *testing.T, c *domain.Case) *domain.Case {
	t.Helper()
	if c.UserID == "" {
		c.UserID = f.lawyer.UserID
	}
	if err := f.store.CreateCase(context.Background(), c); err != nil {
		t.Fatalf("CreateCase: %v", err)
	}
	return c
}

func (f *fixture) totalPaid(t *testing.T, caseID string) float64 {
	t.Helper()
	bal, err := f.store.GetBalance(context.Background(), f.lawyer.UserID, caseID)
	if err != nil || bal == nil {
		t.Fatalf("GetBalance: %+v %v", bal, err)
	}
	return bal.TotalPaid
}

func TestAddPaymentCurrencyMismatchWritesNothing(t *testing.T) {
	f := newFixture(t)
	c := f.seedCase(t, &domain.Case{ClientName: "Juan Pérez", CaseNumber: "123/2025", TotalAmountCharged: 5000, Currency: domain.CurrencyUSD})

	res := f.exec.Execute(context.Background(), f.lawyer,
		&tools.AddPaymentArgs{CaseID: c.ID, Amount: 500}, "Juan me abonó 500 pesos")

	if res.Success {
		t.Fatalf("expected mismatch to block the payment, got %+v", res)
	}
	if res.Error != "currency_mismatch" {
		t.Errorf("expected currency_mismatch, got %q", res.Error)
	}
	if !strings.Contains(res.Message, "USD") || !strings.Contains(res.Message, "MXN") {
		t.Errorf("message should name both currencies: %q", res.Message)
	}
	if paid := f.totalPaid(t, c.ID); paid != 0 {
		t.Errorf("expected no payment rows, total paid %v", paid)
	}
}

func TestAddPaymentRejectsNonPositiveAmount(t *testing.T) {
	f := newFixture(t)
	c := f.seedCase(t, &domain.Case{ClientName: "Juan Pérez", TotalAmountCharged: 5000, Currency: domain.CurrencyMXN})

	for _, amount := range []float64{0, -250} {
		res := f.exec.Execute(context.Background(), f.lawyer, &tools.AddPaymentArgs{CaseID: c.ID, Amount: amount}, "")
		if res.Success {
			t.Errorf("amount %v should be rejected", amount)
		}
	}
	if paid := f.totalPaid(t, c.ID); paid != 0 {
		t.Errorf("expected no payment rows, total paid %v", paid)
	}
}

func TestAddPaymentRecordsBalances(t *testing.T) {
	f := newFixture(t)
	c := f.seedCase(t, &domain.Case{ClientName: "María López", CaseNumber: "88/2024", TotalAmountCharged: 10000, Currency: domain.CurrencyMXN})

	res := f.exec.Execute(context.Background(), f.lawyer,
		&tools.AddPaymentArgs{CaseID: c.ID, Amount: 2500, Notes: "transferencia"}, "María pagó $2,500")
	if !res.Success {
		t.Fatalf("expected success, got %+v", res)
	}
	receipt, ok := res.Data.(*domain.PaymentReceipt)
	if !ok {
		t.Fatalf("expected receipt data, got %T", res.Data)
	}
	if receipt.BalanceBefore != 10000 || receipt.BalanceAfter != 7500 {
		t.Errorf("unexpected balances %v -> %v", receipt.BalanceBefore, receipt.BalanceAfter)
	}
	if !strings.Contains(res.Message, "$7,500.00 MXN") {
		t.Errorf("message missing new balance: %q", res.Message)
	}
	if !strings.Contains(res.Message, "martes 20 de enero de 2026") {
		t.Errorf("payment should be dated today: %q", res.Message)
	}
	if len(res.CaseIDs) != 1 || res.CaseIDs[0] != c.ID {
		t.Errorf("expected case id surfaced, got %v", res.CaseIDs)
	}
}

func TestAddPaymentForeignCaseIsNotFound(t *testing.T) {
	f := newFixture(t)
	c := f.seedCase(t, &domain.Case{UserID: "u2", ClientName: "Otro Cliente", TotalAmountCharged: 100, Currency: domain.CurrencyMXN})

	res := f.exec.Execute(context.Background(), f.lawyer, &tools.AddPaymentArgs{CaseID: c.ID, Amount: 50}, "")
	if res.Success {
		t.Fatalf("payment on another user's case must fail, got %+v", res)
	}
}

func TestPreviewAddPaymentPinsCaseCurrency(t *testing.T) {
	f := newFixture(t)
	c := f.seedCase(t, &domain.Case{ClientName: "Juan Pérez", TotalAmountCharged: 5000, Currency: domain.CurrencyUSD})

	args := &tools.AddPaymentArgs{CaseID: c.ID, Amount: 1000}
	res := f.exec.Preview(context.Background(), f.lawyer, args, "registra 1000 de Juan")
	if !res.Success {
		t.Fatalf("expected preview to pass, got %+v", res)
	}
	if args.Currency != "USD" {
		t.Errorf("expected currency pinned to USD, got %q", args.Currency)
	}
	if !strings.Contains(res.Message, "$4,000.00 USD") {
		t.Errorf("preview should show the resulting balance: %q", res.Message)
	}
	if paid := f.totalPaid(t, c.ID); paid != 0 {
		t.Errorf("preview must not write, total paid %v", paid)
	}
}

func TestPreviewRejectsReadOnlyTool(t *testing.T) {
	f := newFixture(t)
	res := f.exec.Preview(context.Background(), f.lawyer, &tools.GetUpcomingRemindersArgs{}, "")
	if res.Success {
		t.Fatalf("read-only tools have nothing to confirm")
	}
}

func TestCreateMeetingReminderRules(t *testing.T) {
	tests := []struct {
		name         string
		lawyerPhone  string
		clientPhone  string
		sendReminder bool
		wantReminder bool
		wantClient   bool
		wantNote     string
	}{
		{name: "lawyer and client", lawyerPhone: "+525512345678", clientPhone: "+525598765432", sendReminder: true, wantReminder: true, wantClient: true},
		{name: "client opted out", lawyerPhone: "+525512345678", clientPhone: "+525598765432", sendReminder: false, wantReminder: true},
		{name: "client without phone", lawyerPhone: "+525512345678", sendReminder: true, wantReminder: true, wantNote: "no recibirá"},
		{name: "lawyer without phone", clientPhone: "+525598765432", sendReminder: true, wantNote: "no tienes un teléfono"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.lawyer.Phone = tt.lawyerPhone
			c := f.seedCase(t, &domain.Case{ClientName: "Juan Pérez", Phone: tt.clientPhone, Currency: domain.CurrencyMXN})

			res := f.exec.Execute(context.Background(), f.lawyer, &tools.CreateMeetingArgs{
				Title:        "Revisión de contrato",
				StartTime:    "2026-01-25T18:00",
				CaseID:       c.ID,
				SendReminder: tt.sendReminder,
			}, "")
			if !res.Success {
				t.Fatalf("expected success, got %+v", res)
			}
			if len(res.EventIDs) != 1 {
				t.Fatalf("expected created event id, got %v", res.EventIDs)
			}
			if tt.wantNote != "" && !strings.Contains(res.Message, tt.wantNote) {
				t.Errorf("message %q should contain %q", res.Message, tt.wantNote)
			}

			reminders, err := f.store.ListUpcomingReminders(context.Background(), "u1", testNow(), testNow().AddDate(0, 0, 30))
			if err != nil {
				t.Fatalf("ListUpcomingReminders: %v", err)
			}
			if !tt.wantReminder {
				if len(reminders) != 0 {
					t.Fatalf("expected no reminder, got %d", len(reminders))
				}
				return
			}
			if len(reminders) != 1 {
				t.Fatalf("expected one reminder, got %d", len(reminders))
			}
			r := reminders[0]
			start := time.Date(2026, time.January, 25, 18, 0, 0, 0, testZone)
			if !r.ScheduledFor.Equal(start.Add(-24 * time.Hour)) {
				t.Errorf("reminder scheduled for %v", r.ScheduledFor)
			}
			if r.SendToClient != tt.wantClient {
				t.Errorf("SendToClient = %v, want %v", r.SendToClient, tt.wantClient)
			}
			if tt.wantClient && r.ClientPhone != tt.clientPhone {
				t.Errorf("client phone snapshot = %q", r.ClientPhone)
			}
		})
	}
}

func TestCreateMeetingValidation(t *testing.T) {
	f := newFixture(t)
	tests := map[string]*tools.CreateMeetingArgs{
		"past":         {Title: "Audiencia", StartTime: "2026-01-19T09:00"},
		"bad time":     {Title: "Audiencia", StartTime: "mañana a las 5"},
		"no title":     {Title: "  ", StartTime: "2026-01-25T09:00"},
		"too long":     {Title: "Audiencia", StartTime: "2026-01-25T09:00", DurationMinutes: 3000},
		"foreign case": {Title: "Audiencia", StartTime: "2026-01-25T09:00", CaseID: "missing"},
	}
	for name, args := range tests {
		t.Run(name, func(t *testing.T) {
			if res := f.exec.Execute(context.Background(), f.lawyer, args, ""); res.Success {
				t.Fatalf("expected failure, got %+v", res)
			}
		})
	}
}

func (f *fixture) createMeeting(t *testing.T, args *tools.CreateMeetingArgs) string {
	t.Helper()
	res := f.exec.Execute(context.Background(), f.lawyer, args, "")
	if !res.Success || len(res.EventIDs) != 1 {
		t.Fatalf("create meeting: %+v", res)
	}
	return res.EventIDs[0]
}

func TestRescheduleMeetingPreservesDuration(t *testing.T) {
	tests := []struct {
		name     string
		duration time.Duration
	}{
		{"one minute", time.Minute},
		{"forty five minutes", 45 * time.Minute},
		{"ninety minutes", 90 * time.Minute},
		{"just under a day", 23*time.Hour + 59*time.Minute},
		{"multi day event", 50 * time.Hour},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			start := time.Date(2026, time.January, 25, 18, 0, 0, 0, testZone)
			// Seeded directly: create_meeting caps new meetings at 24 hours,
			// but stored events may be longer.
			ev := &domain.CalendarEvent{UserID: f.lawyer.UserID, Title: "Firma", StartTime: start, EndTime: start.Add(tt.duration)}
			if err := f.store.CreateEvent(ctx, ev, nil); err != nil {
				t.Fatalf("CreateEvent: %v", err)
			}

			res := f.exec.Execute(ctx, f.lawyer, &tools.RescheduleMeetingArgs{EventID: ev.ID, NewStartTime: "2026-01-27T11:30"})
			if !res.Success {
				t.Fatalf("expected success, got %+v", res)
			}

			got, err := f.store.GetEvent(ctx, "u1", ev.ID)
			if err != nil || got == nil {
				t.Fatalf("GetEvent: %+v %v", got, err)
			}
			wantStart := time.Date(2026, time.January, 27, 11, 30, 0, 0, testZone)
			if !got.StartTime.Equal(wantStart) {
				t.Errorf("start = %v, want %v", got.StartTime, wantStart)
			}
			if got.Duration() != tt.duration {
				t.Errorf("duration = %v, want %v", got.Duration(), tt.duration)
			}
		})
	}
}

func TestRescheduleMeetingMovesReminder(t *testing.T) {
	f := newFixture(t)
	id := f.createMeeting(t, &tools.CreateMeetingArgs{Title: "Firma", StartTime: "2026-01-25T18:00", DurationMinutes: 90})

	res := f.exec.Execute(context.Background(), f.lawyer,
		&tools.RescheduleMeetingArgs{EventID: id, NewStartTime: "2026-01-27T11:30"}, "")
	if !res.Success {
		t.Fatalf("expected success, got %+v", res)
	}

	ev, err := f.store.GetEvent(context.Background(), "u1", id)
	if err != nil || ev == nil {
		t.Fatalf("GetEvent: %+v %v", ev, err)
	}
	wantStart := time.Date(2026, time.January, 27, 11, 30, 0, 0, testZone)
	if !ev.StartTime.Equal(wantStart) {
		t.Errorf("start = %v, want %v", ev.StartTime, wantStart)
	}
	reminders, err := f.store.ListUpcomingReminders(context.Background(), "u1", testNow(), testNow().AddDate(0, 0, 30))
	if err != nil || len(reminders) != 1 {
		t.Fatalf("expected one reminder, got %d %v", len(reminders), err)
	}
	if !reminders[0].ScheduledFor.Equal(wantStart.Add(-24 * time.Hour)) {
		t.Errorf("reminder not re-derived: %v", reminders[0].ScheduledFor)
	}

	res = f.exec.Execute(context.Background(), f.lawyer,
		&tools.RescheduleMeetingArgs{EventID: id, NewStartTime: "2026-01-28T09:00", NewDurationMinutes: 30}, "")
	if !res.Success {
		t.Fatalf("expected success, got %+v", res)
	}
	ev, _ = f.store.GetEvent(context.Background(), "u1", id)
	if ev.Duration() != 30*time.Minute {
		t.Errorf("explicit duration ignored: %v", ev.Duration())
	}
}

func TestDeleteMeetingCancelsReminder(t *testing.T) {
	f := newFixture(t)
	id := f.createMeeting(t, &tools.CreateMeetingArgs{Title: "Firma", StartTime: "2026-01-25T18:00"})

	res := f.exec.Execute(context.Background(), f.lawyer, &tools.DeleteMeetingArgs{EventID: id}, "")
	if !res.Success {
		t.Fatalf("expected success, got %+v", res)
	}
	if !strings.Contains(res.Message, "recordatorio") {
		t.Errorf("expected reminder cancellation mentioned: %q", res.Message)
	}

	res = f.exec.Execute(context.Background(), f.lawyer, &tools.GetCalendarEventsArgs{}, "")
	if !res.Success || len(res.EventIDs) != 0 {
		t.Errorf("deleted meeting still listed: %+v", res)
	}
	res = f.exec.Execute(context.Background(), f.lawyer, &tools.GetUpcomingRemindersArgs{}, "")
	if len(res.EventIDs) != 0 {
		t.Errorf("cancelled reminder still listed: %+v", res)
	}

	res = f.exec.Execute(context.Background(), f.lawyer, &tools.DeleteMeetingArgs{EventID: id}, "")
	if res.Success {
		t.Errorf("deleting twice should fail")
	}
}

func TestGetCalendarEventsFiltersByClient(t *testing.T) {
	f := newFixture(t)
	c := f.seedCase(t, &domain.Case{ClientName: "José Hernández", Currency: domain.CurrencyMXN})
	withClient := f.createMeeting(t, &tools.CreateMeetingArgs{Title: "Audiencia", StartTime: "2026-01-22T10:00", CaseID: c.ID})
	f.createMeeting(t, &tools.CreateMeetingArgs{Title: "Comida", StartTime: "2026-01-23T14:00"})
	f.createMeeting(t, &tools.CreateMeetingArgs{Title: "Fuera de rango", StartTime: "2026-03-23T14:00"})

	res := f.exec.Execute(context.Background(), f.lawyer, &tools.GetCalendarEventsArgs{ClientName: "jose hernandez"}, "")
	if !res.Success || len(res.EventIDs) != 1 || res.EventIDs[0] != withClient {
		t.Fatalf("expected only the client's meeting, got %+v", res)
	}

	res = f.exec.Execute(context.Background(), f.lawyer,
		&tools.GetCalendarEventsArgs{StartDate: "2026-01-23", EndDate: "2026-01-23"}, "")
	if len(res.EventIDs) != 1 || !strings.Contains(res.Message, "Comida") {
		t.Fatalf("end date should be inclusive: %+v", res)
	}

	res = f.exec.Execute(context.Background(), f.lawyer, &tools.GetCalendarEventsArgs{}, "")
	if len(res.EventIDs) != 2 {
		t.Fatalf("default range should cover the next 30 days, got %v", res.EventIDs)
	}
}

func TestSearchCasesNeedsClarification(t *testing.T) {
	f := newFixture(t)
	f.seedCase(t, &domain.Case{ClientName: "Juan Pérez", CaseNumber: "1/2025", TotalAmountCharged: 1000, Currency: domain.CurrencyMXN})
	f.seedCase(t, &domain.Case{ClientName: "Juan Martínez", CaseNumber: "2/2025", TotalAmountCharged: 2000, Currency: domain.CurrencyMXN})

	res := f.exec.Execute(context.Background(), f.lawyer, &tools.SearchCasesArgs{ClientName: "Juan"}, "")
	if !res.NeedsClarification {
		t.Fatalf("expected clarification, got %+v", res)
	}
	if len(res.CaseIDs) != 2 {
		t.Errorf("expected both cases surfaced, got %v", res.CaseIDs)
	}

	res = f.exec.Execute(context.Background(), f.lawyer, &tools.SearchCasesArgs{ClientName: "juan perez"}, "")
	if res.NeedsClarification || len(res.CaseIDs) != 1 {
		t.Errorf("expected a single match, got %+v", res)
	}
}

func TestCheckClientPhone(t *testing.T) {
	f := newFixture(t)
	c := f.seedCase(t, &domain.Case{ClientName: "Juan Pérez", Currency: domain.CurrencyMXN})

	res := f.exec.Execute(context.Background(), f.lawyer, &tools.CheckClientPhoneArgs{CaseID: c.ID}, "")
	if !res.Success {
		t.Fatalf("expected success, got %+v", res)
	}
	if data := res.Data.(map[string]any); data["has_phone"] != false {
		t.Errorf("expected has_phone=false, got %v", data["has_phone"])
	}
}

// blockingRepo stalls every case lookup until the context ends.
type blockingRepo struct {
	store.Repository
}

func (blockingRepo) GetCase(ctx context.Context, userID, caseID string) (*domain.Case, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestStoreTimeoutIsToolFailure(t *testing.T) {
	f := newFixture(t)
	exec := New(blockingRepo{f.store}, currency.NewDetector(domain.CurrencyMXN), Options{
		StoreTimeout:    20 * time.Millisecond,
		DefaultLocation: testZone,
		Now:             testNow,
	})

	res := exec.Execute(context.Background(), f.lawyer, &tools.GetCaseBalanceArgs{CaseID: "c1"}, "")
	if res.Success {
		t.Fatalf("expected failure")
	}
	if res.Error != "store timeout" {
		t.Errorf("expected store timeout, got %q", res.Error)
	}
}
