package source

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRecencyScore(t *testing.T) {
	now := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	halfLife := 24 * time.Hour

	// Fresh and future items score 1.
	assert.InDelta(t, 1.0, RecencyScore(now, now, halfLife, 0.05), 0.001)
	assert.InDelta(t, 1.0, RecencyScore(now.Add(time.Hour), now, halfLife, 0.05), 0.001)
	// Zero timestamps are treated as fresh, not ancient.
	assert.InDelta(t, 1.0, RecencyScore(time.Time{}, now, halfLife, 0.05), 0.001)

	// Exactly one half-life old scores 0.5, two half-lives 0.25.
	assert.InDelta(t, 0.5, RecencyScore(now.Add(-24*time.Hour), now, halfLife, 0.05), 0.001)
	assert.InDelta(t, 0.25, RecencyScore(now.Add(-48*time.Hour), now, halfLife, 0.05), 0.001)

	// Very old items bottom out at the floor.
	assert.InDelta(t, 0.05, RecencyScore(now.Add(-30*24*time.Hour), now, halfLife, 0.05), 0.001)
}

func TestTermRelevance(t *testing.T) {
	assert.InDelta(t, 1.0, TermRelevance("quantum computing", "A quantum computing breakthrough"), 0.001)
	assert.InDelta(t, 0.5, TermRelevance("quantum computing", "computing news roundup"), 0.001)
	assert.InDelta(t, 0.0, TermRelevance("quantum computing", "football results"), 0.001)
	// Empty or stopword-only queries never match.
	assert.InDelta(t, 0.0, TermRelevance("", "anything"), 0.001)
	assert.InDelta(t, 0.0, TermRelevance("the and of", "anything"), 0.001)
}

func TestQueryTerms(t *testing.T) {
	terms := QueryTerms("What is the latest on quantum computing?")
	assert.Equal(t, []string{"latest", "quantum", "computing"}, terms)

	// Duplicates collapse.
	terms = QueryTerms("rates rates RATES")
	assert.Equal(t, []string{"rates"}, terms)

	assert.Empty(t, QueryTerms(""))
}
