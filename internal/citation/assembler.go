// Package citation converts ranked evidence into the numbered citation
// list attached to a research report.
package citation

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/udaysk3/smart-research-assistant/internal/model"
)

// Assembly is the citation list for one report plus the mapping used to
// rewrite inline source markers.
type Assembly struct {
	Citations []model.Citation
	// Index maps an evidence item's source id to its 1-based citation
	// index.
	Index map[string]int
}

// Assemble assigns citation indices in evidence rank order, starting at 1.
// The assignment is deterministic: identical input sequences always yield
// identical indices, with no gaps.
func Assemble(items []model.EvidenceItem) *Assembly {
	a := &Assembly{
		Citations: make([]model.Citation, 0, len(items)),
		Index:     make(map[string]int, len(items)),
	}
	for i, item := range items {
		index := i + 1
		a.Citations = append(a.Citations, model.Citation{
			Index:       index,
			Title:       item.Title,
			Snippet:     item.Snippet,
			SourceLabel: item.SourceKind.Label(),
			Location:    item.Location,
		})
		if _, exists := a.Index[item.SourceID]; !exists {
			a.Index[item.SourceID] = index
		}
	}
	return a
}

var (
	sourceMarkerRe  = regexp.MustCompile(`\[source:([^\]\s]+)\]`)
	numericMarkerRe = regexp.MustCompile(`\[(\d+)\]`)
)

// RewriteMarkers normalizes the inline markers emitted by the synthesis
// step. `[source:<id>]` markers become the assigned `[n]`; numeric markers
// pointing past the citation list are dropped (the synthesis step
// referenced evidence that did not survive dedup or capping).
func (a *Assembly) RewriteMarkers(text string) string {
	out := sourceMarkerRe.ReplaceAllStringFunc(text, func(marker string) string {
		id := sourceMarkerRe.FindStringSubmatch(marker)[1]
		if index, ok := a.Index[id]; ok {
			return "[" + strconv.Itoa(index) + "]"
		}
		return ""
	})

	out = numericMarkerRe.ReplaceAllStringFunc(out, func(marker string) string {
		n, err := strconv.Atoi(numericMarkerRe.FindStringSubmatch(marker)[1])
		if err != nil || n < 1 || n > len(a.Citations) {
			return ""
		}
		return marker
	})

	// Tidy whitespace left behind by dropped markers.
	out = strings.ReplaceAll(out, "  ", " ")
	out = strings.ReplaceAll(out, " .", ".")
	out = strings.ReplaceAll(out, " ,", ",")
	return out
}
