package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/monitor-judicial/whatsapp-agent/internal/domain"
)

// PostgresStore implements Repository against the dashboard's Supabase
// Postgres database. The schema is owned by the dashboard; name matching
// needs the unaccent and pg_trgm extensions.
type PostgresStore struct {
	DB *pgxpool.Pool
}

// NewPostgres connects to Postgres and verifies the connection.
func NewPostgres(ctx context.Context, connStr string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &PostgresStore{DB: pool}, nil
}

// Ping verifies database connectivity.
func (ps *PostgresStore) Ping(ctx context.Context) error {
	return ps.DB.Ping(ctx)
}

// Close closes the pool.
func (ps *PostgresStore) Close() error {
	ps.DB.Close()
	return nil
}

const pgProfileColumns = `id::text, COALESCE(full_name, ''), COALESCE(phone, ''), COALESCE(timezone, ''), created_at`

func scanPgProfile(row pgx.Row) (*domain.UserProfile, error) {
	var p domain.UserProfile
	if err := row.Scan(&p.UserID, &p.FullName, &p.Phone, &p.Timezone, &p.CreatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

// GetUserProfile retrieves a lawyer profile by user ID.
func (ps *PostgresStore) GetUserProfile(ctx context.Context, userID string) (*domain.UserProfile, error) {
	p, err := scanPgProfile(ps.DB.QueryRow(ctx,
		`SELECT `+pgProfileColumns+` FROM user_profiles WHERE id = $1`, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan user profile: %w", err)
	}
	return p, nil
}

// GetUserProfileByPhone compares the last ten digits of the stored phone.
func (ps *PostgresStore) GetUserProfileByPhone(ctx context.Context, phone string) (*domain.UserProfile, error) {
	key := domain.PhoneKey(phone)
	if key == "" {
		return nil, nil
	}
	p, err := scanPgProfile(ps.DB.QueryRow(ctx, `
		SELECT `+pgProfileColumns+` FROM user_profiles
		WHERE right(regexp_replace(phone, '\D', '', 'g'), 10) = $1
		LIMIT 1`, key))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan user profile: %w", err)
	}
	return p, nil
}

const pgCaseColumns = `id::text, user_id::text, COALESCE(case_number, ''), COALESCE(juzgado, ''), nombre,
	COALESCE(total_amount_charged, 0)::float8, COALESCE(currency, 'MXN'), COALESCE(telefono, ''), created_at`

func scanPgCase(row pgx.Row) (*domain.Case, error) {
	var c domain.Case
	var currency string
	if err := row.Scan(&c.ID, &c.UserID, &c.CaseNumber, &c.Juzgado, &c.ClientName,
		&c.TotalAmountCharged, &currency, &c.Phone, &c.CreatedAt); err != nil {
		return nil, err
	}
	c.Currency = domain.ParseCurrency(currency)
	return &c, nil
}

// GetCase retrieves one of the user's cases.
func (ps *PostgresStore) GetCase(ctx context.Context, userID, caseID string) (*domain.Case, error) {
	c, err := scanPgCase(ps.DB.QueryRow(ctx,
		`SELECT `+pgCaseColumns+` FROM monitored_cases WHERE id::text = $1 AND user_id::text = $2`, caseID, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan case: %w", err)
	}
	return c, nil
}

func (ps *PostgresStore) queryCases(ctx context.Context, query string, args ...any) ([]*domain.Case, error) {
	rows, err := ps.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query cases: %w", err)
	}
	defer rows.Close()

	var cases []*domain.Case
	for rows.Next() {
		c, err := scanPgCase(rows)
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

// FindCasesByName matches every folded term against the unaccented name.
func (ps *PostgresStore) FindCasesByName(ctx context.Context, userID string, terms []string) ([]*domain.Case, error) {
	if len(terms) == 0 {
		return nil, nil
	}
	patterns := make([]string, 0, len(terms))
	for _, t := range terms {
		patterns = append(patterns, "%"+t+"%")
	}
	return ps.queryCases(ctx, `
		SELECT `+pgCaseColumns+` FROM monitored_cases
		WHERE user_id::text = $1 AND lower(unaccent(nombre)) LIKE ALL($2::text[])
		ORDER BY created_at DESC`, userID, patterns)
}

// FuzzyFindCases ranks cases by pg_trgm similarity.
func (ps *PostgresStore) FuzzyFindCases(ctx context.Context, userID, query string, limit int) ([]domain.CaseMatch, error) {
	rows, err := ps.DB.Query(ctx, `
		SELECT `+pgCaseColumns+`, similarity(lower(unaccent(nombre)), $2)::float8 AS score
		FROM monitored_cases
		WHERE user_id::text = $1 AND similarity(lower(unaccent(nombre)), $2) >= $3
		ORDER BY score DESC, created_at DESC
		LIMIT $4`, userID, query, MinSimilarity, limit)
	if err != nil {
		return nil, fmt.Errorf("query fuzzy cases: %w", err)
	}
	defer rows.Close()

	var out []domain.CaseMatch
	for rows.Next() {
		var c domain.Case
		var currency string
		var score float64
		if err := rows.Scan(&c.ID, &c.UserID, &c.CaseNumber, &c.Juzgado, &c.ClientName,
			&c.TotalAmountCharged, &currency, &c.Phone, &c.CreatedAt, &score); err != nil {
			return nil, fmt.Errorf("scan fuzzy case row: %w", err)
		}
		c.Currency = domain.ParseCurrency(currency)
		out = append(out, domain.CaseMatch{Case: &c, Score: score})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate fuzzy cases: %w", err)
	}
	return out, nil
}

const pgBalanceQuery = `
	SELECT COALESCE(c.total_amount_charged, 0)::float8, COALESCE(c.currency, 'MXN'),
		COALESCE((SELECT SUM(p.amount) FROM case_payments p WHERE p.case_id = c.id), 0)::float8
	FROM monitored_cases c
	WHERE c.id::text = $1 AND c.user_id::text = $2`

func readPgBalance(ctx context.Context, row pgx.Row, caseID string) (*domain.Balance, error) {
	b := domain.Balance{CaseID: caseID}
	var currency string
	err := row.Scan(&b.TotalCharged, &currency, &b.TotalPaid)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan balance: %w", err)
	}
	b.Currency = domain.ParseCurrency(currency)
	return &b, nil
}

// GetBalance computes a case balance from its payments.
func (ps *PostgresStore) GetBalance(ctx context.Context, userID, caseID string) (*domain.Balance, error) {
	return readPgBalance(ctx, ps.DB.QueryRow(ctx, pgBalanceQuery, caseID, userID), caseID)
}

// AddPayment inserts a payment and reads both balances in one transaction.
// The case row is locked so concurrent payments observe each other.
func (ps *PostgresStore) AddPayment(ctx context.Context, p *domain.Payment) (receipt *domain.PaymentReceipt, err error) {
	tx, err := ps.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("begin payment transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if _, err = tx.Exec(ctx, `SELECT 1 FROM monitored_cases WHERE id::text = $1 AND user_id::text = $2 FOR UPDATE`,
		p.CaseID, p.UserID); err != nil {
		return nil, fmt.Errorf("lock case: %w", err)
	}
	before, err := readPgBalance(ctx, tx.QueryRow(ctx, pgBalanceQuery, p.CaseID, p.UserID), p.CaseID)
	if err != nil {
		return nil, err
	}
	if before == nil {
		err = fmt.Errorf("case %s: %w", p.CaseID, ErrNotFound)
		return nil, err
	}

	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if err = tx.QueryRow(ctx, `
		INSERT INTO case_payments (id, case_id, user_id, amount, payment_date, notes)
		VALUES ($1, $2, $3, $4, $5::date, NULLIF($6, ''))
		RETURNING created_at`,
		p.ID, p.CaseID, p.UserID, p.Amount, p.PaymentDate.Format(paymentDateLayout), p.Notes,
	).Scan(&p.CreatedAt); err != nil {
		return nil, fmt.Errorf("insert payment: %w", err)
	}

	after, err := readPgBalance(ctx, tx.QueryRow(ctx, pgBalanceQuery, p.CaseID, p.UserID), p.CaseID)
	if err != nil {
		return nil, err
	}
	if err = tx.Commit(ctx); err != nil {
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
func (ps *PostgresStore) CreateEvent(ctx context.Context, ev *domain.CalendarEvent, reminder *domain.MeetingReminder) (err error) {
	tx, err := ps.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin event transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if err = tx.QueryRow(ctx, `
		INSERT INTO calendar_events (id, user_id, title, case_id, start_time, end_time)
		VALUES ($1, $2, $3, NULLIF($4, '')::uuid, $5, $6)
		RETURNING created_at`,
		ev.ID, ev.UserID, ev.Title, ev.CaseID, ev.StartTime, ev.EndTime,
	).Scan(&ev.CreatedAt); err != nil {
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
		if err = tx.QueryRow(ctx, `
			INSERT INTO meeting_reminders (id, event_id, user_id, scheduled_for, lawyer_name, lawyer_phone,
				client_name, client_phone, send_to_client, status)
			VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), NULLIF($8, ''), $9, $10)
			RETURNING created_at`,
			reminder.ID, reminder.EventID, reminder.UserID, reminder.ScheduledFor,
			reminder.LawyerName, reminder.LawyerPhone, reminder.ClientName, reminder.ClientPhone,
			reminder.SendToClient, string(reminder.Status),
		).Scan(&reminder.CreatedAt); err != nil {
			return fmt.Errorf("insert reminder: %w", err)
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit event: %w", err)
	}
	return nil
}

const pgEventColumns = `e.id::text, e.user_id::text, e.title, COALESCE(e.case_id::text, ''), COALESCE(c.nombre, ''),
	e.start_time, e.end_time, e.deleted_at, e.created_at`

const pgEventFrom = ` FROM calendar_events e LEFT JOIN monitored_cases c ON c.id = e.case_id AND c.user_id = e.user_id`

func scanPgEvent(row pgx.Row) (*domain.CalendarEvent, error) {
	var ev domain.CalendarEvent
	if err := row.Scan(&ev.ID, &ev.UserID, &ev.Title, &ev.CaseID, &ev.ClientName,
		&ev.StartTime, &ev.EndTime, &ev.DeletedAt, &ev.CreatedAt); err != nil {
		return nil, err
	}
	return &ev, nil
}

// GetEvent retrieves one of the user's events, including soft-deleted ones.
func (ps *PostgresStore) GetEvent(ctx context.Context, userID, eventID string) (*domain.CalendarEvent, error) {
	ev, err := scanPgEvent(ps.DB.QueryRow(ctx,
		`SELECT `+pgEventColumns+pgEventFrom+` WHERE e.id::text = $1 AND e.user_id::text = $2`, eventID, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan event: %w", err)
	}
	return ev, nil
}

// ListEvents returns live events starting in [from, to), earliest first.
func (ps *PostgresStore) ListEvents(ctx context.Context, userID string, from, to time.Time) ([]*domain.CalendarEvent, error) {
	rows, err := ps.DB.Query(ctx, `SELECT `+pgEventColumns+pgEventFrom+`
		WHERE e.user_id::text = $1 AND e.deleted_at IS NULL AND e.start_time >= $2 AND e.start_time < $3
		ORDER BY e.start_time`, userID, from, to)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []*domain.CalendarEvent
	for rows.Next() {
		ev, err := scanPgEvent(rows)
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
func (ps *PostgresStore) SoftDeleteEvent(ctx context.Context, userID, eventID string, at time.Time) (cancelled int64, err error) {
	tx, err := ps.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, fmt.Errorf("begin delete transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	tag, err := tx.Exec(ctx,
		`UPDATE calendar_events SET deleted_at = $1 WHERE id::text = $2 AND user_id::text = $3 AND deleted_at IS NULL`,
		at, eventID, userID)
	if err != nil {
		return 0, fmt.Errorf("soft delete event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		err = fmt.Errorf("event %s: %w", eventID, ErrNotFound)
		return 0, err
	}

	tag, err = tx.Exec(ctx,
		`UPDATE meeting_reminders SET status = $1 WHERE event_id::text = $2 AND user_id::text = $3 AND status = $4`,
		string(domain.ReminderCancelled), eventID, userID, string(domain.ReminderPending))
	if err != nil {
		return 0, fmt.Errorf("cancel reminders: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit delete: %w", err)
	}
	return tag.RowsAffected(), nil
}

// RescheduleEvent moves an event and shifts its pending reminder.
func (ps *PostgresStore) RescheduleEvent(ctx context.Context, userID, eventID string, start, end time.Time) (reminder *domain.MeetingReminder, err error) {
	tx, err := ps.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("begin reschedule transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	tag, err := tx.Exec(ctx,
		`UPDATE calendar_events SET start_time = $1, end_time = $2 WHERE id::text = $3 AND user_id::text = $4 AND deleted_at IS NULL`,
		start, end, eventID, userID)
	if err != nil {
		return nil, fmt.Errorf("reschedule event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		err = fmt.Errorf("event %s: %w", eventID, ErrNotFound)
		return nil, err
	}

	rows, err := tx.Query(ctx, `
		UPDATE meeting_reminders r SET scheduled_for = $1
		FROM calendar_events e
		WHERE e.id = r.event_id AND r.event_id::text = $2 AND r.user_id::text = $3 AND r.status = $4
		RETURNING `+pgReminderColumns,
		domain.ReminderTimeFor(start), eventID, userID, string(domain.ReminderPending))
	if err != nil {
		return nil, fmt.Errorf("reschedule reminder: %w", err)
	}
	reminders, err := collectPgReminders(rows)
	if err != nil {
		return nil, err
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit reschedule: %w", err)
	}
	if len(reminders) == 0 {
		return nil, nil
	}
	return reminders[0], nil
}

const pgReminderColumns = `r.id::text, r.event_id::text, r.user_id::text, r.scheduled_for,
	COALESCE(r.lawyer_name, ''), COALESCE(r.lawyer_phone, ''), COALESCE(r.client_name, ''), COALESCE(r.client_phone, ''),
	r.send_to_client, r.status, e.title, e.start_time, r.created_at`

func collectPgReminders(rows pgx.Rows) ([]*domain.MeetingReminder, error) {
	defer rows.Close()

	var out []*domain.MeetingReminder
	for rows.Next() {
		var r domain.MeetingReminder
		var status string
		if err := rows.Scan(&r.ID, &r.EventID, &r.UserID, &r.ScheduledFor,
			&r.LawyerName, &r.LawyerPhone, &r.ClientName, &r.ClientPhone,
			&r.SendToClient, &status, &r.EventTitle, &r.EventStart, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan reminder row: %w", err)
		}
		r.Status = domain.ReminderStatus(status)
		out = append(out, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reminders: %w", err)
	}
	return out, nil
}

// ListUpcomingReminders returns pending reminders for live events starting in [from, to).
func (ps *PostgresStore) ListUpcomingReminders(ctx context.Context, userID string, from, to time.Time) ([]*domain.MeetingReminder, error) {
	rows, err := ps.DB.Query(ctx, `
		SELECT `+pgReminderColumns+`
		FROM meeting_reminders r
		JOIN calendar_events e ON e.id = r.event_id
		WHERE r.user_id::text = $1 AND r.status = $2 AND e.deleted_at IS NULL
		  AND e.start_time >= $3 AND e.start_time < $4
		ORDER BY r.scheduled_for`,
		userID, string(domain.ReminderPending), from, to)
	if err != nil {
		return nil, fmt.Errorf("query reminders: %w", err)
	}
	return collectPgReminders(rows)
}

// GetConversation retrieves persisted agent history.
func (ps *PostgresStore) GetConversation(ctx context.Context, userID, conversationID string) (*domain.Conversation, error) {
	var conv domain.Conversation
	err := ps.DB.QueryRow(ctx, `
		SELECT user_id::text, conversation_id, codec, history::text, created_at, updated_at
		FROM whatsapp_conversations WHERE user_id::text = $1 AND conversation_id = $2`,
		userID, conversationID,
	).Scan(&conv.UserID, &conv.ConversationID, &conv.Codec, &conv.HistoryJSON, &conv.CreatedAt, &conv.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan conversation: %w", err)
	}
	return &conv, nil
}

// SaveConversation creates or updates persisted agent history.
func (ps *PostgresStore) SaveConversation(ctx context.Context, conv *domain.Conversation) error {
	err := ps.DB.QueryRow(ctx, `
		INSERT INTO whatsapp_conversations (user_id, conversation_id, codec, history, created_at, updated_at)
		VALUES ($1, $2, $3, $4::jsonb, now(), now())
		ON CONFLICT (user_id, conversation_id) DO UPDATE SET
			codec = EXCLUDED.codec,
			history = EXCLUDED.history,
			updated_at = now()
		RETURNING created_at, updated_at`,
		conv.UserID, conv.ConversationID, conv.Codec, conv.HistoryJSON,
	).Scan(&conv.CreatedAt, &conv.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert conversation: %w", err)
	}
	return nil
}

// DeleteConversation removes persisted agent history.
func (ps *PostgresStore) DeleteConversation(ctx context.Context, userID, conversationID string) error {
	if _, err := ps.DB.Exec(ctx,
		`DELETE FROM whatsapp_conversations WHERE user_id::text = $1 AND conversation_id = $2`,
		userID, conversationID); err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	return nil
}

// CleanupExpiredConversations removes conversations idle longer than ttl.
func (ps *PostgresStore) CleanupExpiredConversations(ctx context.Context, ttl time.Duration) (int64, error) {
	tag, err := ps.DB.Exec(ctx,
		`DELETE FROM whatsapp_conversations WHERE updated_at < $1`, time.Now().Add(-ttl))
	if err != nil {
		return 0, fmt.Errorf("cleanup expired conversations: %w", err)
	}
	return tag.RowsAffected(), nil
}
