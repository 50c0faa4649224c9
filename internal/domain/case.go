package domain

import (
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Mexico groups thousands with commas and uses a dot for decimals, like en-US.
var moneyPrinter = message.NewPrinter(language.AmericanEnglish)

// Case is a monitored court case with its billing terms.
type Case struct {
	ID                 string    `json:"id"`
	UserID             string    `json:"user_id"`
	CaseNumber         string    `json:"case_number"`
	Juzgado            string    `json:"juzgado"`
	ClientName         string    `json:"nombre"`
	TotalAmountCharged float64   `json:"total_amount_charged"`
	Currency           Currency  `json:"currency"`
	Phone              string    `json:"telefono,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
}

// HasPhone returns true if the client's phone is on file.
func (c *Case) HasPhone() bool {
	return c != nil && c.Phone != ""
}

// Payment is a row in the case payment ledger.
type Payment struct {
	ID          string    `json:"id"`
	CaseID      string    `json:"case_id"`
	UserID      string    `json:"user_id"`
	Amount      float64   `json:"amount"`
	PaymentDate time.Time `json:"payment_date"`
	Notes       string    `json:"notes,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Balance is derived from a case and the sum of its payments. It is never stored.
type Balance struct {
	CaseID       string   `json:"case_id"`
	TotalCharged float64  `json:"total_charged"`
	TotalPaid    float64  `json:"total_paid"`
	Currency     Currency `json:"currency"`
}

// Remaining returns what the client still owes.
func (b Balance) Remaining() float64 {
	return b.TotalCharged - b.TotalPaid
}

// PaymentReceipt is returned by a ledger insert together with the balances
// observed inside the same transaction.
type PaymentReceipt struct {
	Payment       *Payment `json:"payment"`
	BalanceBefore float64  `json:"balance_before"`
	BalanceAfter  float64  `json:"balance_after"`
	Currency      Currency `json:"currency"`
}

// CaseMatch is a case returned by a name search together with how it matched.
type CaseMatch struct {
	Case  *Case
	Exact bool
	Score float64
}

// FormatMoney renders an amount with its currency code, e.g. "$1,250.00 MXN".
func FormatMoney(amount float64, c Currency) string {
	out := moneyPrinter.Sprintf("$%.2f", amount)
	if amount < 0 {
		out = moneyPrinter.Sprintf("-$%.2f", -amount)
	}
	if c != CurrencyNone {
		out += " " + string(c)
	}
	return out
}
