// Package matcher resolves user-typed client names to stored cases.
//
// A query is folded and split into terms. Cases whose client name contains
// every term are exact matches. When there are none, the store's similarity
// search is used instead. Exact matches always rank ahead of fuzzy ones.
package matcher

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/monitor-judicial/whatsapp-agent/internal/domain"
	"github.com/monitor-judicial/whatsapp-agent/internal/textnorm"
)

// DefaultFuzzyLimit caps how many similarity results are offered to the user.
const DefaultFuzzyLimit = 5

// ErrEmptyQuery is returned when the query has no searchable terms.
var ErrEmptyQuery = errors.New("client name is empty")

// CaseSearcher is the subset of the store the matcher needs.
type CaseSearcher interface {
	FindCasesByName(ctx context.Context, userID string, terms []string) ([]*domain.Case, error)
	FuzzyFindCases(ctx context.Context, userID, query string, limit int) ([]domain.CaseMatch, error)
	GetBalance(ctx context.Context, userID, caseID string) (*domain.Balance, error)
}

// Match is one candidate case with its freshly computed balance.
type Match struct {
	Case    *domain.Case   `json:"case"`
	Balance domain.Balance `json:"balance"`
	Exact   bool           `json:"exact"`
	Score   float64        `json:"score,omitempty"`
}

// Result is the outcome of a name search.
type Result struct {
	Query              string  `json:"query"`
	Matches            []Match `json:"matches"`
	NeedsClarification bool    `json:"needs_clarification"`
	Message            string  `json:"message"`
}

// Matcher searches cases by client name.
type Matcher struct {
	searcher   CaseSearcher
	fuzzyLimit int
}

// New creates a Matcher backed by searcher.
func New(searcher CaseSearcher) *Matcher {
	return &Matcher{searcher: searcher, fuzzyLimit: DefaultFuzzyLimit}
}

// Search looks up the user's cases whose client name matches query.
func (m *Matcher) Search(ctx context.Context, userID, query string) (*Result, error) {
	terms := textnorm.Terms(query)
	if len(terms) == 0 {
		return nil, ErrEmptyQuery
	}

	cases, err := m.searcher.FindCasesByName(ctx, userID, terms)
	if err != nil {
		return nil, fmt.Errorf("find cases by name: %w", err)
	}

	var candidates []domain.CaseMatch
	for _, c := range cases {
		candidates = append(candidates, domain.CaseMatch{Case: c, Exact: true, Score: 1})
	}
	if len(candidates) == 0 {
		candidates, err = m.searcher.FuzzyFindCases(ctx, userID, strings.Join(terms, " "), m.fuzzyLimit)
		if err != nil {
			return nil, fmt.Errorf("fuzzy find cases: %w", err)
		}
	}
	candidates = Rank(candidates)

	result := &Result{Query: query}
	for _, cand := range candidates {
		bal, err := m.searcher.GetBalance(ctx, userID, cand.Case.ID)
		if err != nil {
			return nil, fmt.Errorf("get balance for case %s: %w", cand.Case.ID, err)
		}
		if bal == nil {
			continue
		}
		result.Matches = append(result.Matches, Match{
			Case:    cand.Case,
			Balance: *bal,
			Exact:   cand.Exact,
			Score:   cand.Score,
		})
	}

	result.NeedsClarification = len(result.Matches) > 1
	result.Message = describe(query, result.Matches)
	return result, nil
}

// Rank orders candidates: exact before fuzzy, then by score descending, then
// most recently created first. Duplicate case ids keep their best-ranked entry.
// The input slice is reused.
func Rank(candidates []domain.CaseMatch) []domain.CaseMatch {
	candidates = slices.DeleteFunc(candidates, func(c domain.CaseMatch) bool { return c.Case == nil })
	slices.SortStableFunc(candidates, func(a, b domain.CaseMatch) int {
		if a.Exact != b.Exact {
			if a.Exact {
				return -1
			}
			return 1
		}
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return b.Case.CreatedAt.Compare(a.Case.CreatedAt)
	})

	seen := make(map[string]bool, len(candidates))
	return slices.DeleteFunc(candidates, func(c domain.CaseMatch) bool {
		if seen[c.Case.ID] {
			return true
		}
		seen[c.Case.ID] = true
		return false
	})
}

func describe(query string, matches []Match) string {
	switch len(matches) {
	case 0:
		return fmt.Sprintf("No encontré ningún caso con el nombre \"%s\". Por favor verifica el nombre e intenta de nuevo.", query)
	case 1:
		m := matches[0]
		return fmt.Sprintf("Encontré el caso de *%s* (expediente *%s*, %s). Saldo pendiente: *%s*.",
			m.Case.ClientName, m.Case.CaseNumber, m.Case.Juzgado,
			domain.FormatMoney(m.Balance.Remaining(), m.Balance.Currency))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Encontré %d casos que coinciden con \"%s\":\n", len(matches), query)
	for i, m := range matches {
		fmt.Fprintf(&b, "%d. *%s*, expediente *%s*, saldo pendiente %s\n",
			i+1, m.Case.ClientName, m.Case.CaseNumber,
			domain.FormatMoney(m.Balance.Remaining(), m.Balance.Currency))
	}
	b.WriteString("¿A cuál de ellos te refieres?")
	return b.String()
}
