package feedcache

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mmcdole/gofeed"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/udaysk3/smart-research-assistant/internal/store"
)

func testStore(t *testing.T) store.Store {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

// fakeFetcher serves canned feeds keyed by URL.
type fakeFetcher struct {
	feeds map[string]*gofeed.Feed
	errs  map[string]error
	calls atomic.Int64
}

func (f *fakeFetcher) Fetch(_ context.Context, url string) (*gofeed.Feed, error) {
	f.calls.Add(1)
	if err, ok := f.errs[url]; ok {
		return nil, err
	}
	feed, ok := f.feeds[url]
	if !ok {
		return nil, errors.New("unknown feed " + url)
	}
	return feed, nil
}

func feedWith(items ...*gofeed.Item) *gofeed.Feed {
	return &gofeed.Feed{Items: items}
}

func item(title, link string, published time.Time) *gofeed.Item {
	it := &gofeed.Item{Title: title, Link: link, Description: "about " + title}
	if !published.IsZero() {
		it.PublishedParsed = &published
	}
	return it
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestRunCycle_IngestsNewItems(t *testing.T) {
	now := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	fetcher := &fakeFetcher{feeds: map[string]*gofeed.Feed{
		"https://example.com/rss": feedWith(
			item("Quantum story", "https://example.com/quantum", now.Add(-time.Hour)),
			item("Rates story", "https://example.com/rates", now.Add(-2*time.Hour)),
		),
	}}
	cache := New(testStore(t), fetcher, []FeedConfig{{Name: "tech", URL: "https://example.com/rss"}}, Config{}).
		WithNow(fixedClock(now))

	stats, err := cache.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Fetched)
	assert.Equal(t, 2, stats.Inserted)
	assert.Equal(t, 0, stats.Duplicates)
	assert.Equal(t, 0, stats.FailedFeeds)

	count, err := cache.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestRunCycle_SecondCycleAllDuplicates(t *testing.T) {
	now := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	fetcher := &fakeFetcher{feeds: map[string]*gofeed.Feed{
		"https://example.com/rss": feedWith(
			item("Quantum story", "https://example.com/quantum", now.Add(-time.Hour)),
		),
	}}
	cache := New(testStore(t), fetcher, []FeedConfig{{Name: "tech", URL: "https://example.com/rss"}}, Config{}).
		WithNow(fixedClock(now))

	_, err := cache.RunCycle(context.Background())
	require.NoError(t, err)

	stats, err := cache.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Inserted)
	assert.Equal(t, 1, stats.Duplicates)

	count, err := cache.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestRunCycle_TrackingParamsDoNotDuplicate(t *testing.T) {
	now := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	fetcher := &fakeFetcher{feeds: map[string]*gofeed.Feed{
		"https://example.com/a": feedWith(
			item("Shared story", "https://example.com/story?utm_source=a", now.Add(-time.Hour)),
		),
		"https://example.com/b": feedWith(
			item("Shared story", "https://example.com/story?utm_source=b", now.Add(-time.Hour)),
		),
	}}
	cache := New(testStore(t), fetcher, []FeedConfig{
		{Name: "a", URL: "https://example.com/a"},
		{Name: "b", URL: "https://example.com/b"},
	}, Config{}).WithNow(fixedClock(now))

	_, err := cache.RunCycle(context.Background())
	require.NoError(t, err)

	count, err := cache.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestRunCycle_FailedFeedIsolated(t *testing.T) {
	now := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	fetcher := &fakeFetcher{
		feeds: map[string]*gofeed.Feed{
			"https://example.com/ok": feedWith(
				item("Working story", "https://example.com/working", now.Add(-time.Hour)),
			),
		},
		errs: map[string]error{
			"https://example.com/down": errors.New("connection refused"),
		},
	}
	cache := New(testStore(t), fetcher, []FeedConfig{
		{Name: "ok", URL: "https://example.com/ok"},
		{Name: "down", URL: "https://example.com/down"},
	}, Config{}).WithNow(fixedClock(now))

	stats, err := cache.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.FailedFeeds)
	assert.Equal(t, 1, stats.Inserted)
}

func TestRunCycle_EvictsBeforeInserting(t *testing.T) {
	now := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	st := testStore(t)

	fetcher := &fakeFetcher{feeds: map[string]*gofeed.Feed{
		"https://example.com/rss": feedWith(
			item("Old story", "https://example.com/old", now.Add(-100*time.Hour)),
			item("Fresh story", "https://example.com/fresh", now.Add(-time.Hour)),
		),
	}}
	cache := New(st, fetcher, []FeedConfig{{Name: "tech", URL: "https://example.com/rss"}},
		Config{Retention: 72 * time.Hour}).WithNow(fixedClock(now))

	// First cycle: the past-retention item is skipped, not ingested.
	stats, err := cache.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Inserted)
	assert.Equal(t, 0, stats.Evicted)

	// A later cycle evicts items that have aged past retention since.
	later := now.Add(80 * time.Hour)
	cache.WithNow(fixedClock(later))
	fetcher.feeds["https://example.com/rss"] = feedWith()

	stats, err = cache.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Evicted)

	count, err := cache.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestRunCycle_SkipsUntitledItems(t *testing.T) {
	now := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	fetcher := &fakeFetcher{feeds: map[string]*gofeed.Feed{
		"https://example.com/rss": feedWith(
			item("", "https://example.com/untitled", now),
			item("Titled story", "https://example.com/titled", now),
		),
	}}
	cache := New(testStore(t), fetcher, []FeedConfig{{Name: "tech", URL: "https://example.com/rss"}}, Config{}).
		WithNow(fixedClock(now))

	stats, err := cache.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Inserted)
}

func TestRunCycle_MaxPerFeedCap(t *testing.T) {
	now := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	var items []*gofeed.Item
	for i := 0; i < 10; i++ {
		items = append(items, item(
			"Story "+string(rune('a'+i)),
			"https://example.com/"+string(rune('a'+i)),
			now.Add(-time.Hour),
		))
	}
	fetcher := &fakeFetcher{feeds: map[string]*gofeed.Feed{
		"https://example.com/rss": feedWith(items...),
	}}
	cache := New(testStore(t), fetcher, []FeedConfig{{Name: "tech", URL: "https://example.com/rss"}},
		Config{MaxPerFeed: 3}).WithNow(fixedClock(now))

	stats, err := cache.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Inserted)
}

func TestSearch_UsesQueryTerms(t *testing.T) {
	now := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	st := testStore(t)
	fetcher := &fakeFetcher{feeds: map[string]*gofeed.Feed{
		"https://example.com/rss": feedWith(
			item("Quantum computing leap", "https://example.com/q", now.Add(-time.Hour)),
			item("Football final tonight", "https://example.com/f", now.Add(-time.Hour)),
		),
	}}
	cache := New(st, fetcher, []FeedConfig{{Name: "tech", URL: "https://example.com/rss"}}, Config{}).
		WithNow(fixedClock(now))
	_, err := cache.RunCycle(context.Background())
	require.NoError(t, err)

	items, err := cache.Search(context.Background(), "what is new in quantum computing?", 10)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Quantum computing leap", items[0].Title)
}

func TestSearchTerms(t *testing.T) {
	assert.Equal(t, []string{"quantum", "computing"}, searchTerms("Quantum computing?"))
	assert.Empty(t, searchTerms("a an it"))
}

func TestLoadFeeds(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "feeds.yaml")
	yaml := `
feeds:
  - name: bbc-tech
    url: https://feeds.bbci.co.uk/news/technology/rss.xml
  - name: hn
    url: https://news.ycombinator.com/rss
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0644))

	feeds, err := LoadFeeds(path)
	require.NoError(t, err)
	require.Len(t, feeds, 2)
	assert.Equal(t, "bbc-tech", feeds[0].Name)
	assert.Equal(t, "https://news.ycombinator.com/rss", feeds[1].URL)
}

func TestLoadFeeds_MissingFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "feeds.yaml")
	require.NoError(t, os.WriteFile(path, []byte("feeds:\n  - name: incomplete\n"), 0644))

	_, err := LoadFeeds(path)
	assert.Error(t, err)
}

func TestLoadFeeds_FileMissing(t *testing.T) {
	_, err := LoadFeeds(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
