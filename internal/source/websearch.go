package source

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/udaysk3/smart-research-assistant/internal/model"
	"github.com/udaysk3/smart-research-assistant/internal/resilience"
	"github.com/udaysk3/smart-research-assistant/pkg/serpapi"
)

// WebSearchAdapter queries the external web search capability. It is the
// lowest-trust, highest-latency source: calls go through a retry policy
// and a circuit breaker so a flapping provider degrades to an empty
// contribution instead of stalling every request.
type WebSearchAdapter struct {
	client  serpapi.Client
	breaker *resilience.CircuitBreaker
	retry   resilience.RetryConfig
	now     func() time.Time
}

// NewWebSearchAdapter creates a web search adapter.
func NewWebSearchAdapter(client serpapi.Client) *WebSearchAdapter {
	retry := resilience.DefaultRetryConfig()
	retry.MaxAttempts = 2
	retry.InitialBackoff = 200 * time.Millisecond
	retry.OnRetry = resilience.RetryLogger("serpapi", "search")

	return &WebSearchAdapter{
		client:  client,
		breaker: resilience.NewCircuitBreaker(resilience.DefaultCircuitBreakerConfig()),
		retry:   retry,
		now:     time.Now,
	}
}

// WithNow sets a fixed clock for testing.
func (a *WebSearchAdapter) WithNow(now func() time.Time) *WebSearchAdapter {
	a.now = now
	return a
}

// WithBreaker replaces the adapter's circuit breaker, letting callers share
// one breaker across requests so failures accumulate globally rather than
// per-request.
func (a *WebSearchAdapter) WithBreaker(cb *resilience.CircuitBreaker) *WebSearchAdapter {
	a.breaker = cb
	return a
}

func (a *WebSearchAdapter) Kind() model.SourceKind {
	return model.SourceWeb
}

func (a *WebSearchAdapter) Search(ctx context.Context, query string, limit int) ([]model.EvidenceItem, error) {
	results, err := resilience.ExecuteVal(ctx, a.breaker, func(ctx context.Context) ([]serpapi.Result, error) {
		return resilience.DoVal(ctx, a.retry, func(ctx context.Context) ([]serpapi.Result, error) {
			return a.client.Search(ctx, query, limit)
		})
	})
	if err != nil {
		return nil, eris.Wrap(model.ErrSourceUnavailable, err.Error())
	}

	fetchedAt := a.now().UTC()
	items := make([]model.EvidenceItem, 0, len(results))
	for i, r := range results {
		items = append(items, model.EvidenceItem{
			SourceKind: model.SourceWeb,
			SourceID:   r.Link,
			Title:      r.Title,
			Snippet:    r.Snippet,
			Location:   r.Link,
			Score:      positionScore(i),
			FetchedAt:  fetchedAt,
		})
	}
	return items, nil
}

// positionScore maps search ranking position to a relevance score in
// (0, 1]: 1.0, 0.9, 0.81, ...
func positionScore(position int) float64 {
	score := 1.0
	for i := 0; i < position; i++ {
		score *= 0.9
	}
	return score
}
