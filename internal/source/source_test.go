package source

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/udaysk3/smart-research-assistant/internal/model"
	"github.com/udaysk3/smart-research-assistant/internal/resilience"
	"github.com/udaysk3/smart-research-assistant/pkg/serpapi"
	"github.com/udaysk3/smart-research-assistant/pkg/vectorindex"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

// --- Registry ---

type stubAdapter struct {
	kind  model.SourceKind
	items []model.EvidenceItem
	err   error
}

func (a *stubAdapter) Kind() model.SourceKind { return a.kind }

func (a *stubAdapter) Search(_ context.Context, _ string, _ int) ([]model.EvidenceItem, error) {
	return a.items, a.err
}

func TestRegistry_AllFixedOrder(t *testing.T) {
	r := NewRegistry()
	r.Register(&stubAdapter{kind: model.SourceWeb})
	r.Register(&stubAdapter{kind: model.SourceDocument})
	r.Register(&stubAdapter{kind: model.SourceLiveFeed})

	all := r.All()
	require.Len(t, all, 3)
	assert.Equal(t, model.SourceDocument, all[0].Kind())
	assert.Equal(t, model.SourceLiveFeed, all[1].Kind())
	assert.Equal(t, model.SourceWeb, all[2].Kind())
}

func TestRegistry_RegisterReplaces(t *testing.T) {
	r := NewRegistry()
	first := &stubAdapter{kind: model.SourceWeb}
	second := &stubAdapter{kind: model.SourceWeb}
	r.Register(first)
	r.Register(second)

	require.Len(t, r.All(), 1)
	assert.Same(t, second, r.Get(model.SourceWeb).(*stubAdapter))
}

// --- Document adapter ---

type fakeVectorIndex struct {
	lastReq vectorindex.QueryRequest
	chunks  []vectorindex.Chunk
	err     error
}

func (f *fakeVectorIndex) Query(_ context.Context, req vectorindex.QueryRequest) ([]vectorindex.Chunk, error) {
	f.lastReq = req
	return f.chunks, f.err
}

func TestDocumentAdapter_ScopedToUser(t *testing.T) {
	now := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	index := &fakeVectorIndex{
		chunks: []vectorindex.Chunk{
			{DocumentID: "doc1", ChunkID: "3", Filename: "notes.pdf", Content: "chunk text", Similarity: 0.92},
		},
	}
	adapter := NewDocumentAdapter(index, "alice").WithNow(fixedClock(now))

	items, err := adapter.Search(context.Background(), "quantum", 5)
	require.NoError(t, err)

	// The query is always filtered to the constructing user.
	assert.Equal(t, "alice", index.lastReq.UserID)
	assert.Equal(t, 5, index.lastReq.TopK)

	require.Len(t, items, 1)
	assert.Equal(t, model.SourceDocument, items[0].SourceKind)
	assert.Equal(t, "doc1#3", items[0].SourceID)
	assert.Equal(t, "notes.pdf", items[0].Title)
	assert.InDelta(t, 0.92, items[0].Score, 0.001)
	assert.Equal(t, now, items[0].FetchedAt)
}

func TestDocumentAdapter_UnavailableIndex(t *testing.T) {
	index := &fakeVectorIndex{err: errors.New("connection refused")}
	adapter := NewDocumentAdapter(index, "alice")

	_, err := adapter.Search(context.Background(), "quantum", 5)
	assert.ErrorIs(t, err, model.ErrSourceUnavailable)
}

// --- Live feed adapter ---

type fakeItemSearcher struct {
	items []model.LiveFeedItem
	err   error
}

func (f *fakeItemSearcher) Search(_ context.Context, _ string, _ int) ([]model.LiveFeedItem, error) {
	return f.items, f.err
}

func TestLiveFeedAdapter_RecencyDemotesStaleItems(t *testing.T) {
	now := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	searcher := &fakeItemSearcher{
		items: []model.LiveFeedItem{
			{ItemID: "stale", Title: "quantum computing advance", Summary: "", PublishedAt: now.Add(-96 * time.Hour), IngestedAt: now},
			{ItemID: "fresh", Title: "quantum computing advance", Summary: "", PublishedAt: now.Add(-time.Hour), IngestedAt: now},
		},
	}
	adapter := NewLiveFeedAdapter(searcher, 24*time.Hour).WithNow(fixedClock(now))

	items, err := adapter.Search(context.Background(), "quantum computing", 5)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "fresh", items[0].SourceID)
	assert.Equal(t, "stale", items[1].SourceID)
	assert.Greater(t, items[0].Score, items[1].Score)
}

func TestLiveFeedAdapter_DropsIrrelevantItems(t *testing.T) {
	now := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	searcher := &fakeItemSearcher{
		items: []model.LiveFeedItem{
			{ItemID: "hit", Title: "quantum news", PublishedAt: now, IngestedAt: now},
			{ItemID: "miss", Title: "football results", PublishedAt: now, IngestedAt: now},
		},
	}
	adapter := NewLiveFeedAdapter(searcher, 24*time.Hour).WithNow(fixedClock(now))

	items, err := adapter.Search(context.Background(), "quantum", 5)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "hit", items[0].SourceID)
}

func TestLiveFeedAdapter_CapsAtLimit(t *testing.T) {
	now := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	var feedItems []model.LiveFeedItem
	for _, id := range []string{"a", "b", "c", "d"} {
		feedItems = append(feedItems, model.LiveFeedItem{
			ItemID: id, Title: "quantum " + id, PublishedAt: now, IngestedAt: now,
		})
	}
	adapter := NewLiveFeedAdapter(&fakeItemSearcher{items: feedItems}, 24*time.Hour).WithNow(fixedClock(now))

	items, err := adapter.Search(context.Background(), "quantum", 2)
	require.NoError(t, err)
	assert.Len(t, items, 2)
}

func TestLiveFeedAdapter_CacheFailure(t *testing.T) {
	adapter := NewLiveFeedAdapter(&fakeItemSearcher{err: errors.New("db closed")}, 24*time.Hour)

	_, err := adapter.Search(context.Background(), "quantum", 5)
	assert.ErrorIs(t, err, model.ErrSourceUnavailable)
}

// --- Web search adapter ---

type fakeSerpAPI struct {
	results   []serpapi.Result
	err       error
	failFirst error
	calls     int
}

func (f *fakeSerpAPI) Search(_ context.Context, _ string, _ int) ([]serpapi.Result, error) {
	f.calls++
	if f.failFirst != nil && f.calls == 1 {
		return nil, f.failFirst
	}
	return f.results, f.err
}

func TestWebSearchAdapter_PositionScores(t *testing.T) {
	now := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	client := &fakeSerpAPI{
		results: []serpapi.Result{
			{Title: "First", Link: "https://example.com/1", Snippet: "s1"},
			{Title: "Second", Link: "https://example.com/2", Snippet: "s2"},
			{Title: "Third", Link: "https://example.com/3", Snippet: "s3"},
		},
	}
	adapter := NewWebSearchAdapter(client).WithNow(fixedClock(now))

	items, err := adapter.Search(context.Background(), "quantum", 3)
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.InDelta(t, 1.0, items[0].Score, 0.001)
	assert.InDelta(t, 0.9, items[1].Score, 0.001)
	assert.InDelta(t, 0.81, items[2].Score, 0.001)
	assert.Equal(t, model.SourceWeb, items[0].SourceKind)
	assert.Equal(t, "https://example.com/1", items[0].SourceID)
	assert.Equal(t, "https://example.com/1", items[0].Location)
}

func TestWebSearchAdapter_ProviderFailure(t *testing.T) {
	client := &fakeSerpAPI{err: errors.New("provider down")}
	adapter := NewWebSearchAdapter(client)

	_, err := adapter.Search(context.Background(), "quantum", 3)
	assert.ErrorIs(t, err, model.ErrSourceUnavailable)
	// Non-transient errors are not retried.
	assert.Equal(t, 1, client.calls)
}

func TestWebSearchAdapter_RetriesTransientFailure(t *testing.T) {
	client := &fakeSerpAPI{
		failFirst: resilience.NewTransientError(errors.New("serpapi: status 503"), 503),
		results:   []serpapi.Result{{Title: "Recovered", Link: "https://example.com/r"}},
	}
	adapter := NewWebSearchAdapter(client)

	items, err := adapter.Search(context.Background(), "quantum", 3)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Recovered", items[0].Title)
	// The transient first attempt was retried exactly once.
	assert.Equal(t, 2, client.calls)
}
