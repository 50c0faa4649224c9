package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/monitor-judicial/whatsapp-agent/internal/domain"
	"github.com/monitor-judicial/whatsapp-agent/internal/textnorm"
	_ "modernc.org/sqlite"
)

// paymentDateLayout is how payment dates are stored.
const paymentDateLayout = "2006-01-02"

// SQLiteStore implements Repository using SQLite. It is used for local
// development and tests; production runs against Postgres.
type SQLiteStore struct {
	db             *sql.DB
	conversationMu sync.Mutex // Serializes conversation writes to prevent SQLITE_BUSY
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS user_profiles (
		user_id TEXT PRIMARY KEY,
		full_name TEXT NOT NULL DEFAULT '',
		phone TEXT,
		timezone TEXT,
		created_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS monitored_cases (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		case_number TEXT NOT NULL DEFAULT '',
		juzgado TEXT NOT NULL DEFAULT '',
		nombre TEXT NOT NULL,
		total_amount_charged REAL NOT NULL DEFAULT 0,
		currency TEXT NOT NULL DEFAULT 'MXN',
		telefono TEXT,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_cases_user ON monitored_cases(user_id);

	CREATE TABLE IF NOT EXISTS case_payments (
		id TEXT PRIMARY KEY,
		case_id TEXT NOT NULL REFERENCES monitored_cases(id),
		user_id TEXT NOT NULL,
		amount REAL NOT NULL CHECK (amount > 0),
		payment_date TEXT NOT NULL,
		notes TEXT,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_payments_case ON case_payments(case_id);

	CREATE TABLE IF NOT EXISTS calendar_events (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		title TEXT NOT NULL,
		case_id TEXT,
		start_time INTEGER NOT NULL,
		end_time INTEGER NOT NULL,
		deleted_at INTEGER,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_events_user_start ON calendar_events(user_id, start_time) WHERE deleted_at IS NULL;

	CREATE TABLE IF NOT EXISTS meeting_reminders (
		id TEXT PRIMARY KEY,
		event_id TEXT NOT NULL UNIQUE REFERENCES calendar_events(id),
		user_id TEXT NOT NULL,
		scheduled_for INTEGER NOT NULL,
		lawyer_name TEXT NOT NULL DEFAULT '',
		lawyer_phone TEXT NOT NULL,
		client_name TEXT,
		client_phone TEXT,
		send_to_client INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL DEFAULT 'pending',
		created_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS whatsapp_conversations (
		user_id TEXT NOT NULL,
		conversation_id TEXT NOT NULL,
		codec TEXT NOT NULL,
		history_json TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		PRIMARY KEY (user_id, conversation_id)
	);
	CREATE INDEX IF NOT EXISTS idx_conversations_updated ON whatsapp_conversations(updated_at);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// UpsertUserProfile creates or updates a profile. Profiles are owned by the
// dashboard; this exists for development seeding and tests.
func (s *SQLiteStore) UpsertUserProfile(ctx context.Context, p *domain.UserProfile) error {
	query := `
	INSERT INTO user_profiles (user_id, full_name, phone, timezone, created_at)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(user_id) DO UPDATE SET
		full_name = excluded.full_name,
		phone = excluded.phone,
		timezone = excluded.timezone`

	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, query,
		p.UserID, p.FullName, nullString(p.Phone), nullString(p.Timezone), p.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("upsert user profile: %w", err)
	}
	return nil
}

// CreateCase inserts a case. Cases are owned by the dashboard; this exists
// for development seeding and tests.
func (s *SQLiteStore) CreateCase(ctx context.Context, c *domain.Case) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	query := `
	INSERT INTO monitored_cases (id, user_id, case_number, juzgado, nombre, total_amount_charged, currency, telefono, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query,
		c.ID, c.UserID, c.CaseNumber, c.Juzgado, c.ClientName,
		c.TotalAmountCharged, string(c.Currency), nullString(c.Phone), c.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("insert case: %w", err)
	}
	return nil
}

const profileColumns = `user_id, full_name, COALESCE(phone, ''), COALESCE(timezone, ''), created_at`

func scanProfile(row interface{ Scan(...any) error }) (*domain.UserProfile, error) {
	var p domain.UserProfile
	var createdAt int64
	if err := row.Scan(&p.UserID, &p.FullName, &p.Phone, &p.Timezone, &createdAt); err != nil {
		return nil, err
	}
	p.CreatedAt = time.Unix(createdAt, 0)
	return &p, nil
}

// GetUserProfile retrieves a lawyer profile by user ID.
func (s *SQLiteStore) GetUserProfile(ctx context.Context, userID string) (*domain.UserProfile, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+profileColumns+` FROM user_profiles WHERE user_id = ?`, userID)
	p, err := scanProfile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan user profile: %w", err)
	}
	return p, nil
}

// GetUserProfileByPhone resolves a phone number to a profile by comparing
// phone keys. SQLite has no regexp_replace, so keys are computed here.
func (s *SQLiteStore) GetUserProfileByPhone(ctx context.Context, phone string) (*domain.UserProfile, error) {
	key := domain.PhoneKey(phone)
	if key == "" {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, `SELECT `+profileColumns+` FROM user_profiles WHERE phone IS NOT NULL AND phone != ''`)
	if err != nil {
		return nil, fmt.Errorf("query user profiles: %w", err)
	}
	defer closeRows(rows, "user profiles")

	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user profile: %w", err)
		}
		if domain.PhoneKey(p.Phone) == key {
			return p, nil
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate user profiles: %w", err)
	}
	return nil, nil
}

const caseColumns = `id, user_id, case_number, juzgado, nombre, total_amount_charged, currency, COALESCE(telefono, ''), created_at`

func scanCase(row interface{ Scan(...any) error }) (*domain.Case, error) {
	var c domain.Case
	var currency string
	var createdAt int64
	if err := row.Scan(&c.ID, &c.UserID, &c.CaseNumber, &c.Juzgado, &c.ClientName,
		&c.TotalAmountCharged, &currency, &c.Phone, &createdAt); err != nil {
		return nil, err
	}
	c.Currency = domain.ParseCurrency(currency)
	c.CreatedAt = time.Unix(createdAt, 0)
	return &c, nil
}

// GetCase retrieves one of the user's cases.
func (s *SQLiteStore) GetCase(ctx context.Context, userID, caseID string) (*domain.Case, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+caseColumns+` FROM monitored_cases WHERE id = ? AND user_id = ?`, caseID, userID)
	c, err := scanCase(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan case: %w", err)
	}
	return c, nil
}

func (s *SQLiteStore) listCases(ctx context.Context, userID string) ([]*domain.Case, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+caseColumns+` FROM monitored_cases WHERE user_id = ? ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("query cases: %w", err)
	}
	defer closeRows(rows, "cases")

	var cases []*domain.Case
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			return nil, fmt.Errorf("scan case row: %w", err)
		}
		cases = append(cases, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cases: %w", err)
	}
	return cases, nil
}

// FindCasesByName filters the user's cases in process because SQLite cannot
// fold accents.
func (s *SQLiteStore) FindCasesByName(ctx context.Context, userID string, terms []string) ([]*domain.Case, error) {
	if len(terms) == 0 {
		return nil, nil
	}
	cases, err := s.listCases(ctx, userID)
	if err != nil {
		return nil, err
	}
	var out []*domain.Case
	for _, c := range cases {
		if textnorm.ContainsAll(c.ClientName, terms) {
			out = append(out, c)
		}
	}
	return out, nil
}

// FuzzyFindCases scores every case of the user with Similarity.
func (s *SQLiteStore) FuzzyFindCases(ctx context.Context, userID, query string, limit int) ([]domain.CaseMatch, error) {
	cases, err := s.listCases(ctx, userID)
	if err != nil {
		return nil, err
	}
	var out []domain.CaseMatch
	for _, c := range cases {
		if score := Similarity(query, c.ClientName); score >= MinSimilarity {
			out = append(out, domain.CaseMatch{Case: c, Score: score})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Case.CreatedAt.After(out[j].Case.CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

const balanceQuery = `
	SELECT c.total_amount_charged, c.currency, COALESCE(SUM(p.amount), 0)
	FROM monitored_cases c
	LEFT JOIN case_payments p ON p.case_id = c.id
	WHERE c.id = ? AND c.user_id = ?
	GROUP BY c.id`

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func readBalance(ctx context.Context, q queryRower, userID, caseID string) (*domain.Balance, error) {
	b := domain.Balance{CaseID: caseID}
	var currency string
	err := q.QueryRowContext(ctx, balanceQuery, caseID, userID).Scan(&b.TotalCharged, &currency, &b.TotalPaid)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan balance: %w", err)
	}
	b.Currency = domain.ParseCurrency(currency)
	return &b, nil
}

// GetBalance computes a case balance from its payments.
func (s *SQLiteStore) GetBalance(ctx context.Context, userID, caseID string) (*domain.Balance, error) {
	return readBalance(ctx, s.db, userID, caseID)
}

// AddPayment inserts a payment and returns the before and after balances
// read inside the same transaction.
func (s *SQLiteStore) AddPayment(ctx context.Context, p *domain.Payment) (*domain.PaymentReceipt, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin payment transaction: %w", err)
	}
	defer rollback(tx)

	before, err := readBalance(ctx, tx, p.UserID, p.CaseID)
	if err != nil {
		return nil, err
	}
	if before == nil {
		return nil, fmt.Errorf("case %s: %w", p.CaseID, ErrNotFound)
	}

	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO case_payments (id, case_id, user_id, amount, payment_date, notes, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.CaseID, p.UserID, p.Amount, p.PaymentDate.Format(paymentDateLayout),
		nullString(p.Notes), p.CreatedAt.Unix())
	if err != nil {
		return nil, fmt.Errorf("insert payment: %w", err)
	}

	after, err := readBalance(ctx, tx, p.UserID, p.CaseID)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit payment: %w", err)
	}

	return &domain.PaymentReceipt{
		Payment:       p,
		BalanceBefore: before.Remaining(),
		BalanceAfter:  after.Remaining(),
		Currency:      before.Currency,
	}, nil
}

// CreateEvent inserts an event and its optional reminder in one transaction.
func (s *SQLiteStore) CreateEvent(ctx context.Context, ev *domain.CalendarEvent, reminder *domain.MeetingReminder) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin event transaction: %w", err)
	}
	defer rollback(tx)

	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now()
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO calendar_events (id, user_id, title, case_id, start_time, end_time, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.UserID, ev.Title, nullString(ev.CaseID),
		ev.StartTime.Unix(), ev.EndTime.Unix(), ev.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}

	if reminder != nil {
		if reminder.ID == "" {
			reminder.ID = uuid.NewString()
		}
		if reminder.Status == "" {
			reminder.Status = domain.ReminderPending
		}
		reminder.EventID = ev.ID
		reminder.CreatedAt = ev.CreatedAt
		_, err = tx.ExecContext(ctx, `
			INSERT INTO meeting_reminders (id, event_id, user_id, scheduled_for, lawyer_name, lawyer_phone,
				client_name, client_phone, send_to_client, status, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			reminder.ID, reminder.EventID, reminder.UserID, reminder.ScheduledFor.Unix(),
			reminder.LawyerName, reminder.LawyerPhone,
			nullString(reminder.ClientName), nullString(reminder.ClientPhone),
			reminder.SendToClient, string(reminder.Status), reminder.CreatedAt.Unix())
		if err != nil {
			return fmt.Errorf("insert reminder: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit event: %w", err)
	}
	return nil
}

const eventColumns = `e.id, e.user_id, e.title, COALESCE(e.case_id, ''), COALESCE(c.nombre, ''),
	e.start_time, e.end_time, e.deleted_at, e.created_at`

const eventFrom = ` FROM calendar_events e LEFT JOIN monitored_cases c ON c.id = e.case_id AND c.user_id = e.user_id`

func scanEvent(row interface{ Scan(...any) error }) (*domain.CalendarEvent, error) {
	var ev domain.CalendarEvent
	var start, end, createdAt int64
	var deletedAt sql.NullInt64
	if err := row.Scan(&ev.ID, &ev.UserID, &ev.Title, &ev.CaseID, &ev.ClientName,
		&start, &end, &deletedAt, &createdAt); err != nil {
		return nil, err
	}
	ev.StartTime = time.Unix(start, 0)
	ev.EndTime = time.Unix(end, 0)
	ev.CreatedAt = time.Unix(createdAt, 0)
	if deletedAt.Valid {
		ts := time.Unix(deletedAt.Int64, 0)
		ev.DeletedAt = &ts
	}
	return &ev, nil
}

// GetEvent retrieves one of the user's events, including soft-deleted ones.
func (s *SQLiteStore) GetEvent(ctx context.Context, userID, eventID string) (*domain.CalendarEvent, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+eventColumns+eventFrom+` WHERE e.id = ? AND e.user_id = ?`, eventID, userID)
	ev, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan event: %w", err)
	}
	return ev, nil
}

// ListEvents returns live events starting in [from, to), earliest first.
func (s *SQLiteStore) ListEvents(ctx context.Context, userID string, from, to time.Time) ([]*domain.CalendarEvent, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+eventColumns+eventFrom+`
		WHERE e.user_id = ? AND e.deleted_at IS NULL AND e.start_time >= ? AND e.start_time < ?
		ORDER BY e.start_time`, userID, from.Unix(), to.Unix())
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer closeRows(rows, "events")

	var events []*domain.CalendarEvent
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event row: %w", err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

// SoftDeleteEvent marks an event deleted and cancels its pending reminders.
func (s *SQLiteStore) SoftDeleteEvent(ctx context.Context, userID, eventID string, at time.Time) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin delete transaction: %w", err)
	}
	defer rollback(tx)

	result, err := tx.ExecContext(ctx,
		`UPDATE calendar_events SET deleted_at = ? WHERE id = ? AND user_id = ? AND deleted_at IS NULL`,
		at.Unix(), eventID, userID)
	if err != nil {
		return 0, fmt.Errorf("soft delete event: %w", err)
	}
	if n, err := result.RowsAffected(); err != nil {
		return 0, fmt.Errorf("get rows affected: %w", err)
	} else if n == 0 {
		return 0, fmt.Errorf("event %s: %w", eventID, ErrNotFound)
	}

	result, err = tx.ExecContext(ctx,
		`UPDATE meeting_reminders SET status = ? WHERE event_id = ? AND user_id = ? AND status = ?`,
		string(domain.ReminderCancelled), eventID, userID, string(domain.ReminderPending))
	if err != nil {
		return 0, fmt.Errorf("cancel reminders: %w", err)
	}
	cancelled, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("get rows affected: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit delete: %w", err)
	}
	return cancelled, nil
}

// RescheduleEvent moves an event and shifts its pending reminder so it
// still fires ReminderLeadTime before the new start.
func (s *SQLiteStore) RescheduleEvent(ctx context.Context, userID, eventID string, start, end time.Time) (*domain.MeetingReminder, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin reschedule transaction: %w", err)
	}
	defer rollback(tx)

	result, err := tx.ExecContext(ctx,
		`UPDATE calendar_events SET start_time = ?, end_time = ? WHERE id = ? AND user_id = ? AND deleted_at IS NULL`,
		start.Unix(), end.Unix(), eventID, userID)
	if err != nil {
		return nil, fmt.Errorf("reschedule event: %w", err)
	}
	if n, err := result.RowsAffected(); err != nil {
		return nil, fmt.Errorf("get rows affected: %w", err)
	} else if n == 0 {
		return nil, fmt.Errorf("event %s: %w", eventID, ErrNotFound)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE meeting_reminders SET scheduled_for = ? WHERE event_id = ? AND user_id = ? AND status = ?`,
		domain.ReminderTimeFor(start).Unix(), eventID, userID, string(domain.ReminderPending)); err != nil {
		return nil, fmt.Errorf("reschedule reminder: %w", err)
	}

	reminders, err := queryReminders(ctx, tx, reminderSelect+` WHERE r.event_id = ? AND r.user_id = ? AND r.status = ?`,
		eventID, userID, string(domain.ReminderPending))
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit reschedule: %w", err)
	}
	if len(reminders) == 0 {
		return nil, nil
	}
	return reminders[0], nil
}

const reminderSelect = `
	SELECT r.id, r.event_id, r.user_id, r.scheduled_for, r.lawyer_name, r.lawyer_phone,
		COALESCE(r.client_name, ''), COALESCE(r.client_phone, ''), r.send_to_client, r.status,
		e.title, e.start_time, r.created_at
	FROM meeting_reminders r
	JOIN calendar_events e ON e.id = r.event_id`

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func queryReminders(ctx context.Context, q queryer, query string, args ...any) ([]*domain.MeetingReminder, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query reminders: %w", err)
	}
	defer closeRows(rows, "reminders")

	var out []*domain.MeetingReminder
	for rows.Next() {
		var r domain.MeetingReminder
		var status string
		var scheduled, eventStart, createdAt int64
		if err := rows.Scan(&r.ID, &r.EventID, &r.UserID, &scheduled, &r.LawyerName, &r.LawyerPhone,
			&r.ClientName, &r.ClientPhone, &r.SendToClient, &status,
			&r.EventTitle, &eventStart, &createdAt); err != nil {
			return nil, fmt.Errorf("scan reminder row: %w", err)
		}
		r.Status = domain.ReminderStatus(status)
		r.ScheduledFor = time.Unix(scheduled, 0)
		r.EventStart = time.Unix(eventStart, 0)
		r.CreatedAt = time.Unix(createdAt, 0)
		out = append(out, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reminders: %w", err)
	}
	return out, nil
}

// ListUpcomingReminders returns pending reminders for live events starting in [from, to).
func (s *SQLiteStore) ListUpcomingReminders(ctx context.Context, userID string, from, to time.Time) ([]*domain.MeetingReminder, error) {
	return queryReminders(ctx, s.db, reminderSelect+`
		WHERE r.user_id = ? AND r.status = ? AND e.deleted_at IS NULL
		  AND e.start_time >= ? AND e.start_time < ?
		ORDER BY r.scheduled_for`,
		userID, string(domain.ReminderPending), from.Unix(), to.Unix())
}

// GetConversation retrieves persisted agent history.
func (s *SQLiteStore) GetConversation(ctx context.Context, userID, conversationID string) (*domain.Conversation, error) {
	query := `
		SELECT user_id, conversation_id, codec, history_json, created_at, updated_at
		FROM whatsapp_conversations WHERE user_id = ? AND conversation_id = ?`

	var conv domain.Conversation
	var createdAt, updatedAt int64
	err := s.db.QueryRowContext(ctx, query, userID, conversationID).Scan(
		&conv.UserID, &conv.ConversationID, &conv.Codec, &conv.HistoryJSON, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan conversation: %w", err)
	}
	conv.CreatedAt = time.Unix(createdAt, 0)
	conv.UpdatedAt = time.Unix(updatedAt, 0)
	return &conv, nil
}

// SaveConversation creates or updates persisted agent history.
func (s *SQLiteStore) SaveConversation(ctx context.Context, conv *domain.Conversation) error {
	s.conversationMu.Lock()
	defer s.conversationMu.Unlock()

	query := `
		INSERT INTO whatsapp_conversations (user_id, conversation_id, codec, history_json, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, conversation_id) DO UPDATE SET
			codec = excluded.codec,
			history_json = excluded.history_json,
			updated_at = excluded.updated_at`

	now := time.Now()
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = now
	}
	conv.UpdatedAt = now

	err := retryOnConflict(ctx, "save_conversation", func() error {
		_, err := s.db.ExecContext(ctx, query,
			conv.UserID, conv.ConversationID, conv.Codec, conv.HistoryJSON,
			conv.CreatedAt.Unix(), conv.UpdatedAt.Unix())
		return err
	})
	if err != nil {
		return fmt.Errorf("upsert conversation: %w", err)
	}
	return nil
}

// DeleteConversation removes persisted agent history. SQLITE_BUSY is
// retried with exponential backoff.
func (s *SQLiteStore) DeleteConversation(ctx context.Context, userID, conversationID string) error {
	err := retryOnConflict(ctx, "delete_conversation", func() error {
		return s.deleteConversationOnce(ctx, userID, conversationID)
	})
	if err != nil {
		return fmt.Errorf("delete conversation %s/%s: %w", userID, conversationID, err)
	}
	return nil
}

func (s *SQLiteStore) deleteConversationOnce(ctx context.Context, userID, conversationID string) error {
	s.conversationMu.Lock()
	defer s.conversationMu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`DELETE FROM whatsapp_conversations WHERE user_id = ? AND conversation_id = ?`, userID, conversationID)
	if err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	return nil
}

// CleanupExpiredConversations removes conversations idle longer than ttl.
func (s *SQLiteStore) CleanupExpiredConversations(ctx context.Context, ttl time.Duration) (int64, error) {
	s.conversationMu.Lock()
	defer s.conversationMu.Unlock()

	threshold := time.Now().Add(-ttl).Unix()
	result, err := s.db.ExecContext(ctx, `DELETE FROM whatsapp_conversations WHERE updated_at < ?`, threshold)
	if err != nil {
		return 0, fmt.Errorf("cleanup expired conversations: %w", err)
	}
	return result.RowsAffected()
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func rollback(tx *sql.Tx) {
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		slog.Warn("failed to roll back transaction", "error", err)
	}
}

func closeRows(rows *sql.Rows, what string) {
	if err := rows.Close(); err != nil {
		slog.Warn("failed to close rows", "rows", what, "error", err)
	}
}
