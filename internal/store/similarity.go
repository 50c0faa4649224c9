package store

import (
	"github.com/sahilm/fuzzy"

	"github.com/monitor-judicial/whatsapp-agent/internal/textnorm"
)

// MinSimilarity is the lowest score a fuzzy name match may have.
const MinSimilarity = 0.3

// subsequenceScore is credited when every query character appears in order
// in the name, e.g. "jn prz" against "juan perez".
const subsequenceScore = 0.5

// Similarity scores how close query is to name in [0, 1]. It is the trigram
// similarity Postgres' pg_trgm computes, raised to subsequenceScore when the
// folded query is a subsequence of the folded name.
func Similarity(query, name string) float64 {
	q := textnorm.Fold(query)
	n := textnorm.Fold(name)
	if q == "" || n == "" {
		return 0
	}
	score := trigramSimilarity(q, n)
	if score < subsequenceScore && len(fuzzy.Find(q, []string{n})) > 0 {
		score = subsequenceScore
	}
	return score
}

func trigramSimilarity(a, b string) float64 {
	ta := trigrams(a)
	tb := trigrams(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}
	shared := 0
	for t := range ta {
		if tb[t] {
			shared++
		}
	}
	return float64(shared) / float64(len(ta)+len(tb)-shared)
}

// trigrams pads every word with two leading spaces and one trailing space,
// as pg_trgm does.
func trigrams(s string) map[string]bool {
	set := make(map[string]bool)
	for _, word := range textnorm.Terms(s) {
		r := []rune("  " + word + " ")
		for i := 0; i+3 <= len(r); i++ {
			set[string(r[i:i+3])] = true
		}
	}
	return set
}
