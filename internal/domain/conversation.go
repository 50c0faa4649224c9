package domain

import (
	"time"
)

// Conversation stores the persisted agent history for one chat.
// HistoryJSON is encoded with the primary model provider's codec.
type Conversation struct {
	UserID         string
	ConversationID string
	Codec          string
	HistoryJSON    string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
