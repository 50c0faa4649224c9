// Package domain contains core domain types for the WhatsApp billing and calendar agent.
package domain

import (
	"strings"
	"time"
	"unicode"
)

// UserProfile is a lawyer account as stored in user_profiles.
type UserProfile struct {
	UserID    string    `json:"user_id"`
	FullName  string    `json:"full_name"`
	Phone     string    `json:"phone,omitempty"`
	Timezone  string    `json:"timezone,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// HasPhone returns true if the user registered a phone number.
// Meeting reminders are only created for users with a phone.
func (u *UserProfile) HasPhone() bool {
	return u != nil && u.Phone != ""
}

// Location resolves the user's configured timezone.
// Falls back to the given location when the profile has none or it is invalid.
func (u *UserProfile) Location(fallback *time.Location) *time.Location {
	if u == nil || u.Timezone == "" {
		return fallback
	}
	loc, err := time.LoadLocation(u.Timezone)
	if err != nil {
		return fallback
	}
	return loc
}

// DisplayName returns the lawyer's name for prompts and reminder snapshots.
func (u *UserProfile) DisplayName() string {
	if u == nil || u.FullName == "" {
		return "Abogado"
	}
	return u.FullName
}

// PhoneKey reduces a phone number to its last ten digits so that
// "whatsapp:+5215512345678", "+52 55 1234 5678" and "5512345678" compare equal.
func PhoneKey(phone string) string {
	digits := strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return r
		}
		return -1
	}, phone)
	if len(digits) > 10 {
		digits = digits[len(digits)-10:]
	}
	return digits
}
