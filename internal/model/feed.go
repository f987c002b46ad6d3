package model

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// LiveFeedItem is one externally ingested article held in the live feed
// cache. Created by the refresh cycle, never mutated, evicted when older
// than the retention window.
type LiveFeedItem struct {
	ItemID      string    `json:"item_id"` // content hash of canonical URL+title
	FeedName    string    `json:"feed_name"`
	Title       string    `json:"title"`
	Summary     string    `json:"summary"`
	URL         string    `json:"url"`
	PublishedAt time.Time `json:"published_at"`
	IngestedAt  time.Time `json:"ingested_at"`
}

var caseFolder = cases.Fold()

// FeedItemID computes the stable dedup identity of a feed item: a sha256
// hex digest of the case-folded, NFC-normalized, whitespace-collapsed title
// plus the canonical URL. Re-ingesting an unchanged feed yields the same id.
func FeedItemID(title, rawURL string) string {
	h := sha256.New()
	h.Write([]byte(normalizeTitle(title)))
	h.Write([]byte{0})
	h.Write([]byte(CanonicalURL(rawURL)))
	return hex.EncodeToString(h.Sum(nil))
}

func normalizeTitle(title string) string {
	folded := caseFolder.String(norm.NFC.String(title))
	return strings.Join(strings.Fields(folded), " ")
}

// CanonicalURL strips query, fragment, trailing slash, and lowercases the
// host so tracking parameters don't defeat dedup.
func CanonicalURL(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Host == "" {
		return strings.TrimSpace(rawURL)
	}
	u.RawQuery = ""
	u.Fragment = ""
	u.Host = strings.ToLower(u.Host)
	u.Path = strings.TrimSuffix(u.Path, "/")
	return u.String()
}
