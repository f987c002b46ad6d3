package model

import (
	"sort"
	"time"
)

// SourceKind identifies which adapter produced an evidence item.
type SourceKind string

const (
	SourceDocument SourceKind = "document"
	SourceLiveFeed SourceKind = "live_feed"
	SourceWeb      SourceKind = "web"
)

// Valid reports whether k is one of the three known source kinds.
func (k SourceKind) Valid() bool {
	switch k {
	case SourceDocument, SourceLiveFeed, SourceWeb:
		return true
	}
	return false
}

// Label returns the user-facing name of the source kind.
func (k SourceKind) Label() string {
	switch k {
	case SourceDocument:
		return "Uploaded Document"
	case SourceLiveFeed:
		return "Live Feed"
	case SourceWeb:
		return "Web Search"
	}
	return string(k)
}

// EvidenceItem is one retrieved fact/snippet with a relevance score and
// provenance. Immutable once produced by an adapter.
type EvidenceItem struct {
	SourceKind SourceKind `json:"source_kind"`
	SourceID   string     `json:"source_id"`
	Title      string     `json:"title"`
	Snippet    string     `json:"snippet"`
	Location   string     `json:"location"` // URL or document locator
	Score      float64    `json:"score"`
	FetchedAt  time.Time  `json:"fetched_at"`
}

// Less implements the evidence ordering key: score descending, ties broken
// by FetchedAt descending (freshest wins), then by source kind and id so
// exact ties rank identically regardless of adapter completion order.
func (e EvidenceItem) Less(other EvidenceItem) bool {
	if e.Score != other.Score {
		return e.Score > other.Score
	}
	if !e.FetchedAt.Equal(other.FetchedAt) {
		return e.FetchedAt.After(other.FetchedAt)
	}
	if e.SourceKind != other.SourceKind {
		return e.SourceKind < other.SourceKind
	}
	return e.SourceID < other.SourceID
}

// SortEvidence orders items by the evidence ordering key, in place.
func SortEvidence(items []EvidenceItem) {
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Less(items[j])
	})
}

// SourcesUsed returns the set of source kinds that contributed at least one
// item, as a sorted slice for stable serialization.
func SourcesUsed(items []EvidenceItem) []SourceKind {
	seen := make(map[SourceKind]bool, 3)
	for _, it := range items {
		seen[it.SourceKind] = true
	}
	kinds := make([]SourceKind, 0, len(seen))
	for k := range seen {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}
