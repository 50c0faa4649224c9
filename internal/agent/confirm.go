package agent

import (
	"github.com/monitor-judicial/whatsapp-agent/internal/textnorm"
)

// Decision is how a user reply resolves a pending action.
type Decision int

const (
	// DecisionOther means the reply is about something else; the pending
	// action is discarded.
	DecisionOther Decision = iota
	DecisionConfirm
	DecisionReject
)

func (d Decision) String() string {
	switch d {
	case DecisionConfirm:
		return "confirm"
	case DecisionReject:
		return "reject"
	}
	return "other"
}

// Words that may make up an affirmative reply. Every term of the reply must
// be one of these, so "sí, pero a las cinco" is not a confirmation.
var affirmativeTerms = map[string]bool{
	"si": true, "sii": true, "siii": true, "claro": true, "confirmo": true, "confirmado": true,
	"confirma": true, "adelante": true, "ok": true, "okay": true, "va": true, "dale": true,
	"correcto": true, "hazlo": true, "procede": true, "afirmativo": true, "perfecto": true,
	"exacto": true, "registralo": true, "agendalo": true, "cancelala": true, "muevela": true,
	"de": true, "acuerdo": true, "por": true, "favor": true, "gracias": true, "asi": true,
	"es": true, "esta": true, "bien": true, "yes": true, "porfa": true, "listo": true,
	"cancela": true, "registra": true, "agenda": true,
}

// Terms that start a word-for-word affirmative reply.
var affirmativeLeads = map[string]bool{
	"si": true, "sii": true, "siii": true, "claro": true, "confirmo": true, "confirmado": true,
	"confirma": true, "adelante": true, "ok": true, "okay": true, "va": true, "dale": true,
	"correcto": true, "hazlo": true, "procede": true, "afirmativo": true, "perfecto": true,
	"exacto": true, "registralo": true, "agendalo": true, "cancelala": true, "muevela": true,
	"de": true, "yes": true, "listo": true, "esta": true,
}

var negativeLeads = map[string]bool{
	"no": true, "nel": true, "nop": true, "nope": true, "negativo": true, "cancela": true,
	"cancelalo": true, "olvidalo": true, "detente": true, "alto": true, "espera": true,
	"mejor": true,
}

// Classify decides whether text confirms or rejects a pending action.
// Anything ambiguous is DecisionOther, never a confirmation.
func Classify(text string) Decision {
	terms := textnorm.Terms(text)
	if len(terms) == 0 {
		return DecisionOther
	}
	if negativeLeads[terms[0]] {
		if terms[0] == "mejor" && (len(terms) < 2 || terms[1] != "no") {
			return DecisionOther
		}
		return DecisionReject
	}
	if !affirmativeLeads[terms[0]] {
		return DecisionOther
	}
	for _, t := range terms {
		if !affirmativeTerms[t] {
			return DecisionOther
		}
	}
	return DecisionConfirm
}
