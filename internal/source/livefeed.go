package source

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/udaysk3/smart-research-assistant/internal/model"
)

// ItemSearcher is the read side of the live feed cache. The adapter never
// fetches feeds synchronously; request latency is bounded by the cache.
type ItemSearcher interface {
	Search(ctx context.Context, query string, limit int) ([]model.LiveFeedItem, error)
}

// LiveFeedAdapter serves evidence from the background-refreshed feed
// cache. Items are scored by textual relevance multiplied by a recency
// decay so stale articles rank below fresh ones even when equally
// relevant.
type LiveFeedAdapter struct {
	cache    ItemSearcher
	halfLife time.Duration
	floor    float64
	now      func() time.Time
}

// NewLiveFeedAdapter creates a live feed adapter.
func NewLiveFeedAdapter(cache ItemSearcher, halfLife time.Duration) *LiveFeedAdapter {
	return &LiveFeedAdapter{
		cache:    cache,
		halfLife: halfLife,
		floor:    0.05,
		now:      time.Now,
	}
}

// WithNow sets a fixed clock for testing.
func (a *LiveFeedAdapter) WithNow(now func() time.Time) *LiveFeedAdapter {
	a.now = now
	return a
}

func (a *LiveFeedAdapter) Kind() model.SourceKind {
	return model.SourceLiveFeed
}

func (a *LiveFeedAdapter) Search(ctx context.Context, query string, limit int) ([]model.EvidenceItem, error) {
	// Over-fetch so recency re-ranking has candidates to demote.
	fetchLimit := limit * 3
	if fetchLimit <= 0 {
		fetchLimit = 15
	}
	feedItems, err := a.cache.Search(ctx, query, fetchLimit)
	if err != nil {
		return nil, eris.Wrap(model.ErrSourceUnavailable, err.Error())
	}

	now := a.now().UTC()
	items := make([]model.EvidenceItem, 0, len(feedItems))
	for _, fi := range feedItems {
		relevance := TermRelevance(query, fi.Title+" "+fi.Summary)
		if relevance == 0 {
			continue
		}
		score := relevance * RecencyScore(fi.PublishedAt, now, a.halfLife, a.floor)
		items = append(items, model.EvidenceItem{
			SourceKind: model.SourceLiveFeed,
			SourceID:   fi.ItemID,
			Title:      fi.Title,
			Snippet:    fi.Summary,
			Location:   fi.URL,
			Score:      score,
			FetchedAt:  fi.IngestedAt,
		})
	}

	model.SortEvidence(items)
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}
