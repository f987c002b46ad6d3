package source

import (
	"math"
	"strings"
	"time"
)

// RecencyScore computes the freshness multiplier for a live feed item.
// Formula: max(floor, 2^(-age / halfLife)). An item exactly one half-life
// old scores 0.5; items with a zero or future timestamp score 1.
func RecencyScore(publishedAt, now time.Time, halfLife time.Duration, floor float64) float64 {
	if publishedAt.IsZero() {
		return 1
	}
	age := now.Sub(publishedAt)
	if age <= 0 {
		return 1
	}
	if halfLife <= 0 {
		halfLife = 24 * time.Hour
	}
	decayed := math.Pow(2, -age.Hours()/halfLife.Hours())
	if decayed < floor {
		return floor
	}
	return decayed
}

// TermRelevance scores how well text matches a query: the fraction of
// distinct query terms that appear in the text. Returns 0 for an empty
// query.
func TermRelevance(query, text string) float64 {
	terms := QueryTerms(query)
	if len(terms) == 0 {
		return 0
	}
	lower := strings.ToLower(text)
	matched := 0
	for _, term := range terms {
		if strings.Contains(lower, term) {
			matched++
		}
	}
	return float64(matched) / float64(len(terms))
}

// stopwords excluded from query term extraction.
var stopwords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true,
	"be": true, "by": true, "for": true, "from": true, "how": true,
	"in": true, "is": true, "it": true, "of": true, "on": true, "or": true,
	"that": true, "the": true, "to": true, "was": true, "what": true,
	"when": true, "where": true, "which": true, "who": true, "why": true,
	"will": true, "with": true,
}

// QueryTerms extracts distinct lowercase search terms from a question,
// dropping stopwords and single-character tokens.
func QueryTerms(query string) []string {
	fields := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
	})
	seen := make(map[string]bool, len(fields))
	var terms []string
	for _, f := range fields {
		if len(f) < 2 || stopwords[f] || seen[f] {
			continue
		}
		seen[f] = true
		terms = append(terms, f)
	}
	return terms
}
