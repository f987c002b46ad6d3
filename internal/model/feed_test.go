package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFeedItemID_StableAcrossReingestion(t *testing.T) {
	a := FeedItemID("Go 1.26 released", "https://example.com/go-1-26")
	b := FeedItemID("Go 1.26 released", "https://example.com/go-1-26")
	assert.Equal(t, a, b)
	assert.Len(t, a, 64) // sha256 hex
}

func TestFeedItemID_CaseAndWhitespaceInsensitive(t *testing.T) {
	a := FeedItemID("Go 1.26  Released", "https://example.com/go")
	b := FeedItemID("go 1.26 released", "https://example.com/go")
	assert.Equal(t, a, b)
}

func TestFeedItemID_TrackingParamsIgnored(t *testing.T) {
	a := FeedItemID("Title", "https://example.com/story?utm_source=rss&utm_medium=feed")
	b := FeedItemID("Title", "https://example.com/story")
	assert.Equal(t, a, b)
}

func TestFeedItemID_DistinctItemsDiffer(t *testing.T) {
	a := FeedItemID("Title one", "https://example.com/one")
	b := FeedItemID("Title two", "https://example.com/one")
	c := FeedItemID("Title one", "https://example.com/two")
	assert.NotEqual(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestCanonicalURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"https://Example.COM/Story/", "https://example.com/Story"},
		{"https://example.com/story?utm_source=x#frag", "https://example.com/story"},
		{"  https://example.com/story ", "https://example.com/story"},
		{"not a url", "not a url"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CanonicalURL(tt.in), "input %q", tt.in)
	}
}

func TestEntryReasonTerminal(t *testing.T) {
	assert.True(t, ReasonCommit.Terminal())
	assert.True(t, ReasonRollback.Terminal())
	assert.False(t, ReasonReservation.Terminal())
	assert.False(t, ReasonPurchase.Terminal())
}
