package domain

import "strings"

// Currency is a case ledger currency.
type Currency string

const (
	// CurrencyNone means no currency could be determined.
	CurrencyNone Currency = ""
	// CurrencyUSD is US dollars.
	CurrencyUSD Currency = "USD"
	// CurrencyMXN is Mexican pesos.
	CurrencyMXN Currency = "MXN"
)

// ParseCurrency maps a free-form code to a Currency.
func ParseCurrency(s string) Currency {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "USD":
		return CurrencyUSD
	case "MXN":
		return CurrencyMXN
	default:
		return CurrencyNone
	}
}

// Valid reports whether c is a supported ledger currency.
func (c Currency) Valid() bool {
	return c == CurrencyUSD || c == CurrencyMXN
}

// Name returns the Spanish display name used in user-facing messages.
func (c Currency) Name() string {
	switch c {
	case CurrencyUSD:
		return "dólares (USD)"
	case CurrencyMXN:
		return "pesos (MXN)"
	default:
		return "moneda desconocida"
	}
}
