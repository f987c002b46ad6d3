package aggregate

import (
	"strings"

	"github.com/udaysk3/smart-research-assistant/internal/model"
)

// SnippetSimilarity computes token-set Jaccard similarity between two
// snippets, in [0, 1]. Two items describing the same fact in near-identical
// words score close to 1.
func SnippetSimilarity(a, b string) float64 {
	setA := tokenSet(a)
	setB := tokenSet(b)
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}

	intersection := 0
	for tok := range setA {
		if setB[tok] {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	return float64(intersection) / float64(union)
}

func tokenSet(s string) map[string]bool {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
	})
	set := make(map[string]bool, len(fields))
	for _, f := range fields {
		if len(f) >= 2 {
			set[f] = true
		}
	}
	return set
}

// Dedup collapses near-identical evidence items, keeping the higher-scored
// of each pair. Items must already be sorted by the evidence ordering key
// so survivors are the best-ranked representatives.
func Dedup(items []model.EvidenceItem, threshold float64) []model.EvidenceItem {
	var kept []model.EvidenceItem
	seenIDs := make(map[string]bool, len(items))

	for _, candidate := range items {
		// Exact identity: same source item retrieved twice.
		idKey := string(candidate.SourceKind) + "|" + candidate.SourceID
		if seenIDs[idKey] {
			continue
		}

		duplicate := false
		for _, existing := range kept {
			if SnippetSimilarity(candidate.Snippet, existing.Snippet) >= threshold {
				duplicate = true
				break
			}
		}
		if duplicate {
			continue
		}

		seenIDs[idKey] = true
		kept = append(kept, candidate)
	}
	return kept
}
