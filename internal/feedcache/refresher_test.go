package feedcache

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/mmcdole/gofeed"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/udaysk3/smart-research-assistant/internal/store"
)

func newTestRefresher(t *testing.T) (*Refresher, *fakeFetcher) {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))

	now := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	fetcher := &fakeFetcher{feeds: map[string]*gofeed.Feed{
		"https://example.com/rss": feedWith(
			item("Background story", "https://example.com/bg", now.Add(-time.Hour)),
		),
	}}
	cache := New(st, fetcher, []FeedConfig{{Name: "tech", URL: "https://example.com/rss"}}, Config{}).
		WithNow(fixedClock(now))
	return NewRefresher(cache, time.Hour), fetcher
}

func TestRefresher_RunsImmediateCycleOnStart(t *testing.T) {
	r, fetcher := newTestRefresher(t)

	r.Start()
	defer r.Stop()

	// The first cycle runs synchronously within the loop goroutine; wait
	// briefly for it.
	deadline := time.After(2 * time.Second)
	for fetcher.calls.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("refresher never ran the initial cycle")
		case <-time.After(10 * time.Millisecond):
		}
	}
	assert.GreaterOrEqual(t, fetcher.calls.Load(), int64(1))
}

func TestRefresher_StartTwiceIsNoop(t *testing.T) {
	r, _ := newTestRefresher(t)

	r.Start()
	r.Start()
	r.Stop()
}

func TestRefresher_StopBeforeStartIsSafe(t *testing.T) {
	r, _ := newTestRefresher(t)

	r.Stop()
	r.Stop()
}

func TestRefresher_StopWaitsAndIsIdempotent(t *testing.T) {
	r, fetcher := newTestRefresher(t)

	r.Start()
	deadline := time.After(2 * time.Second)
	for fetcher.calls.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("refresher never ran the initial cycle")
		case <-time.After(10 * time.Millisecond):
		}
	}
	r.Stop()
	r.Stop()

	// No further cycles after Stop.
	calls := fetcher.calls.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, calls, fetcher.calls.Load())
}
