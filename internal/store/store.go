// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/monitor-judicial/whatsapp-agent/internal/domain"
)

// ErrNotFound is returned by mutations whose target row does not exist or
// does not belong to the acting user. Lookups return nil, nil instead.
var ErrNotFound = errors.New("not found")

// Repository defines the interface for the agent's data. Every query is
// scoped to the acting user.
type Repository interface {
	// GetUserProfile retrieves a lawyer profile by user ID.
	GetUserProfile(ctx context.Context, userID string) (*domain.UserProfile, error)

	// GetUserProfileByPhone resolves an inbound WhatsApp number to a profile.
	GetUserProfileByPhone(ctx context.Context, phone string) (*domain.UserProfile, error)

	// GetCase retrieves one of the user's cases.
	GetCase(ctx context.Context, userID, caseID string) (*domain.Case, error)

	// FindCasesByName returns the user's cases whose folded client name
	// contains every folded term.
	FindCasesByName(ctx context.Context, userID string, terms []string) ([]*domain.Case, error)

	// FuzzyFindCases returns up to limit cases similar to query, best first.
	FuzzyFindCases(ctx context.Context, userID, query string, limit int) ([]domain.CaseMatch, error)

	// GetBalance computes a case balance from its payments.
	GetBalance(ctx context.Context, userID, caseID string) (*domain.Balance, error)

	// AddPayment inserts a payment and returns the balances observed in the
	// same transaction.
	AddPayment(ctx context.Context, payment *domain.Payment) (*domain.PaymentReceipt, error)

	// CreateEvent inserts an event and, when reminder is non-nil, its reminder
	// in one transaction.
	CreateEvent(ctx context.Context, event *domain.CalendarEvent, reminder *domain.MeetingReminder) error

	// GetEvent retrieves one of the user's events, including soft-deleted ones.
	GetEvent(ctx context.Context, userID, eventID string) (*domain.CalendarEvent, error)

	// ListEvents returns live events starting in [from, to), earliest first.
	ListEvents(ctx context.Context, userID string, from, to time.Time) ([]*domain.CalendarEvent, error)

	// SoftDeleteEvent marks an event deleted and cancels its pending reminders.
	// It returns how many reminders were cancelled.
	SoftDeleteEvent(ctx context.Context, userID, eventID string, at time.Time) (int64, error)

	// RescheduleEvent moves an event and re-derives its pending reminder.
	// It returns the updated reminder, or nil when the event has none.
	RescheduleEvent(ctx context.Context, userID, eventID string, start, end time.Time) (*domain.MeetingReminder, error)

	// ListUpcomingReminders returns pending reminders for live events starting in [from, to).
	ListUpcomingReminders(ctx context.Context, userID string, from, to time.Time) ([]*domain.MeetingReminder, error)

	// GetConversation retrieves persisted agent history.
	GetConversation(ctx context.Context, userID, conversationID string) (*domain.Conversation, error)

	// SaveConversation creates or updates persisted agent history.
	SaveConversation(ctx context.Context, conv *domain.Conversation) error

	// DeleteConversation removes persisted agent history.
	DeleteConversation(ctx context.Context, userID, conversationID string) error

	// CleanupExpiredConversations removes conversations idle longer than ttl.
	CleanupExpiredConversations(ctx context.Context, ttl time.Duration) (int64, error)

	// Ping verifies database connectivity and returns an error if the database is unreachable.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
