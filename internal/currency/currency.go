// Package currency detects which currency a user meant in free text and
// guards the case ledger against posting in the wrong one.
package currency

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/monitor-judicial/whatsapp-agent/internal/domain"
	"github.com/monitor-judicial/whatsapp-agent/internal/textnorm"
)

var (
	usdPattern = regexp.MustCompile(`\b(dolar|dolares|dollar|dollars|usd)\b|\bus\$`)
	mxnPattern = regexp.MustCompile(`\b(peso|pesos|mxn)\b|\bmx\$`)
)

// Detector classifies currency mentions. Default is used for a bare "$".
type Detector struct {
	Default domain.Currency
}

// NewDetector returns a Detector whose bare "$" resolves to def.
// An invalid def falls back to MXN.
func NewDetector(def domain.Currency) *Detector {
	if !def.Valid() {
		def = domain.CurrencyMXN
	}
	return &Detector{Default: def}
}

// Detect returns the currency named in text, or CurrencyNone when text has
// no monetary token. Explicit USD wins over explicit MXN, which wins over "$".
func (d *Detector) Detect(text string) domain.Currency {
	if c := explicit(text); c != domain.CurrencyNone {
		return c
	}
	if strings.ContainsRune(text, '$') {
		return d.Default
	}
	return domain.CurrencyNone
}

// DetectStated returns the currency the user stated across texts, oldest
// first. The most recent message naming a currency explicitly wins; a bare
// "$" counts only when no message names one, so "el primero, son $200"
// after "200 dólares" is still dollars.
func (d *Detector) DetectStated(texts []string) domain.Currency {
	bare := false
	for i := len(texts) - 1; i >= 0; i-- {
		if c := explicit(texts[i]); c != domain.CurrencyNone {
			return c
		}
		bare = bare || strings.ContainsRune(texts[i], '$')
	}
	if bare {
		return d.Default
	}
	return domain.CurrencyNone
}

func explicit(text string) domain.Currency {
	folded := textnorm.Fold(text)
	switch {
	case usdPattern.MatchString(folded):
		return domain.CurrencyUSD
	case mxnPattern.MatchString(folded):
		return domain.CurrencyMXN
	}
	return domain.CurrencyNone
}

// MismatchError is returned when a payment's currency differs from the case ledger.
type MismatchError struct {
	Detected domain.Currency
	Case     domain.Currency
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("el pago está en %s pero el caso se cobra en %s; no se puede registrar en otra moneda",
		e.Detected.Name(), e.Case.Name())
}

// ValidateMatch reports whether a payment in detected may be posted to a case
// billed in caseCurrency. CurrencyNone is always accepted.
func ValidateMatch(detected, caseCurrency domain.Currency) error {
	if detected == domain.CurrencyNone || detected == caseCurrency {
		return nil
	}
	return &MismatchError{Detected: detected, Case: caseCurrency}
}
