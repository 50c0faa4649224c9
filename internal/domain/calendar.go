package domain

import (
	"time"
)

// ReminderLeadTime is how long before a meeting its reminder fires.
const ReminderLeadTime = 24 * time.Hour

// CalendarEvent is a meeting on the lawyer's calendar.
// ClientName is read from the linked case and is not stored on the event.
type CalendarEvent struct {
	ID         string     `json:"id"`
	UserID     string     `json:"user_id"`
	Title      string     `json:"title"`
	CaseID     string     `json:"case_id,omitempty"`
	ClientName string     `json:"client_name,omitempty"`
	StartTime  time.Time  `json:"start_time"`
	EndTime    time.Time  `json:"end_time"`
	DeletedAt  *time.Time `json:"deleted_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// Duration returns end minus start.
func (e *CalendarEvent) Duration() time.Duration {
	return e.EndTime.Sub(e.StartTime)
}

// IsDeleted returns true if the event was soft-deleted.
func (e *CalendarEvent) IsDeleted() bool {
	return e.DeletedAt != nil
}

// ReminderStatus is the delivery state of a meeting reminder.
type ReminderStatus string

const (
	ReminderPending   ReminderStatus = "pending"
	ReminderCancelled ReminderStatus = "cancelled"
	ReminderSent      ReminderStatus = "sent"
)

// MeetingReminder is a WhatsApp reminder linked 1:1 to a calendar event.
// Names and phones are snapshots taken when the reminder was created.
type MeetingReminder struct {
	ID           string         `json:"id"`
	EventID      string         `json:"event_id"`
	UserID       string         `json:"user_id"`
	ScheduledFor time.Time      `json:"scheduled_for"`
	LawyerName   string         `json:"lawyer_name"`
	LawyerPhone  string         `json:"lawyer_phone"`
	ClientName   string         `json:"client_name,omitempty"`
	ClientPhone  string         `json:"client_phone,omitempty"`
	SendToClient bool           `json:"send_to_client"`
	Status       ReminderStatus `json:"status"`
	EventTitle   string         `json:"event_title,omitempty"`
	EventStart   time.Time      `json:"event_start"`
	CreatedAt    time.Time      `json:"created_at"`
}

// ReminderTimeFor returns when the reminder for a meeting starting at start fires.
func ReminderTimeFor(start time.Time) time.Time {
	return start.Add(-ReminderLeadTime)
}
