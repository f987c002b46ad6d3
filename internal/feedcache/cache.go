package feedcache

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/mmcdole/gofeed"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/udaysk3/smart-research-assistant/internal/model"
	"github.com/udaysk3/smart-research-assistant/internal/store"
)

// Fetcher retrieves and parses one feed. Abstracted so tests can supply
// canned feeds without network access.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*gofeed.Feed, error)
}

// HTTPFetcher fetches feeds over HTTP using gofeed.
type HTTPFetcher struct {
	parser *gofeed.Parser
}

// NewHTTPFetcher creates a feed fetcher with the given request timeout.
func NewHTTPFetcher(timeout time.Duration) *HTTPFetcher {
	parser := gofeed.NewParser()
	parser.Client = &http.Client{Timeout: timeout}
	parser.UserAgent = "smart-research-assistant/1.0"
	return &HTTPFetcher{parser: parser}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (*gofeed.Feed, error) {
	feed, err := f.parser.ParseURLWithContext(url, ctx)
	if err != nil {
		return nil, eris.Wrapf(err, "feedcache: fetch %s", url)
	}
	return feed, nil
}

// Config tunes the cache.
type Config struct {
	Retention   time.Duration
	MaxPerFeed  int
	Concurrency int
}

// Cache is the live feed cache service. The refresh cycle is its sole
// writer; request-side reads go through Search.
type Cache struct {
	store   store.Store
	fetcher Fetcher
	feeds   []FeedConfig
	cfg     Config
	now     func() time.Time
}

// New creates a feed cache over the given store and feed list.
func New(st store.Store, fetcher Fetcher, feeds []FeedConfig, cfg Config) *Cache {
	if cfg.Retention <= 0 {
		cfg.Retention = 72 * time.Hour
	}
	if cfg.MaxPerFeed <= 0 {
		cfg.MaxPerFeed = 25
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	return &Cache{
		store:   st,
		fetcher: fetcher,
		feeds:   feeds,
		cfg:     cfg,
		now:     time.Now,
	}
}

// WithNow sets a fixed clock for testing.
func (c *Cache) WithNow(now func() time.Time) *Cache {
	c.now = now
	return c
}

// Search returns cached items matching the query terms, freshest first.
func (c *Cache) Search(ctx context.Context, query string, limit int) ([]model.LiveFeedItem, error) {
	return c.store.SearchFeedItems(ctx, searchTerms(query), limit)
}

// searchTerms splits a query into lowercase LIKE terms, dropping tokens too
// short to be selective.
func searchTerms(query string) []string {
	var terms []string
	for _, f := range strings.Fields(strings.ToLower(query)) {
		f = strings.Trim(f, `.,;:!?"'()`)
		if len(f) >= 3 {
			terms = append(terms, f)
		}
	}
	return terms
}

// CycleStats summarizes one refresh cycle.
type CycleStats struct {
	Evicted     int
	Fetched     int
	Inserted    int
	Duplicates  int
	FailedFeeds int
}

// RunCycle performs one refresh cycle: evict items past retention, then
// fetch every configured feed and insert items not already present.
// A failing feed is logged and skipped; it never aborts the cycle.
func (c *Cache) RunCycle(ctx context.Context) (CycleStats, error) {
	var stats CycleStats
	now := c.now().UTC()

	// Eviction runs before insertion so the cache never grows past the
	// retention window within a cycle.
	evicted, err := c.store.EvictFeedItemsBefore(ctx, now.Add(-c.cfg.Retention))
	if err != nil {
		return stats, eris.Wrap(err, "feedcache: evict")
	}
	stats.Evicted = evicted

	var mu sync.Mutex
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.Concurrency)

	for _, feed := range c.feeds {
		g.Go(func() error {
			fetched, inserted, duplicates, feedErr := c.ingestFeed(gCtx, feed, now)
			mu.Lock()
			defer mu.Unlock()
			if feedErr != nil {
				// Per-feed isolation: log and continue with the rest.
				zap.L().Warn("feedcache: feed refresh failed",
					zap.String("feed", feed.Name),
					zap.Error(feedErr),
				)
				stats.FailedFeeds++
				return nil
			}
			stats.Fetched += fetched
			stats.Inserted += inserted
			stats.Duplicates += duplicates
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return stats, eris.Wrap(err, "feedcache: refresh cycle")
	}

	zap.L().Info("feedcache: cycle complete",
		zap.Int("evicted", stats.Evicted),
		zap.Int("fetched", stats.Fetched),
		zap.Int("inserted", stats.Inserted),
		zap.Int("duplicates", stats.Duplicates),
		zap.Int("failed_feeds", stats.FailedFeeds),
	)
	return stats, nil
}

func (c *Cache) ingestFeed(ctx context.Context, feed FeedConfig, now time.Time) (fetched, inserted, duplicates int, err error) {
	parsed, err := c.fetcher.Fetch(ctx, feed.URL)
	if err != nil {
		return 0, 0, 0, err
	}

	items := parsed.Items
	if len(items) > c.cfg.MaxPerFeed {
		items = items[:c.cfg.MaxPerFeed]
	}

	for _, entry := range items {
		if entry == nil || entry.Title == "" {
			continue
		}
		publishedAt := now
		if entry.PublishedParsed != nil {
			publishedAt = entry.PublishedParsed.UTC()
		}
		if now.Sub(publishedAt) > c.cfg.Retention {
			continue // already past retention, don't ingest just to evict
		}

		item := model.LiveFeedItem{
			ItemID:      model.FeedItemID(entry.Title, entry.Link),
			FeedName:    feed.Name,
			Title:       entry.Title,
			Summary:     entry.Description,
			URL:         entry.Link,
			PublishedAt: publishedAt,
			IngestedAt:  now,
		}
		fetched++

		isNew, insertErr := c.store.InsertFeedItem(ctx, item)
		if insertErr != nil {
			return fetched, inserted, duplicates, insertErr
		}
		if isNew {
			inserted++
		} else {
			duplicates++
		}
	}
	return fetched, inserted, duplicates, nil
}

// Count reports how many items the cache currently holds.
func (c *Cache) Count(ctx context.Context) (int, error) {
	return c.store.CountFeedItems(ctx)
}
